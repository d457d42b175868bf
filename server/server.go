//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/buzznet/BuzzerWorker/service/buzzer"
)

// Server runs the HTTP server for the worker.
type Server interface {
	// Run the HTTP server until the given context is cancelled.
	Run(ctx context.Context) error
}

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
}

// API exposed by the worker service towards the HTTP server.
type API interface {
	// Snapshot returns a point-in-time copy of the buzzer state.
	Snapshot() buzzer.Snapshot
	// StartedAt returns the time the service was created.
	StartedAt() time.Time
}

// NewServer creates a new server.
func NewServer(conf Config, api API, log zerolog.Logger) (Server, error) {
	return &server{
		Config: conf,
		log:    log.With().Str("component", "server").Logger(),
		api:    api,
	}, nil
}

type server struct {
	Config
	log zerolog.Logger
	api API
}

// status is the JSON document returned by the status endpoint.
type status struct {
	buzzer.Snapshot
	Uptime string `json:"uptime"`
}

// Run the HTTP server until the given context is cancelled.
func (s *server) Run(ctx context.Context) error {
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		s.log.Error().Err(err).Msgf("failed to listen on address %s", httpAddr)
		return err
	}

	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.GET("/health", s.handleHealth)
	httpRouter.GET("/api/v1/status", s.handleStatus)
	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	httpSrv := http.Server{
		Handler: httpRouter,
	}

	s.log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(httpLis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Debug().Msg("Closing server...")
		httpSrv.Shutdown(context.Background())
		return nil
	}
}

func (s *server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, status{
		Snapshot: s.api.Snapshot(),
		Uptime:   humanize.Time(s.api.StartedAt()),
	})
}
