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

package service

import (
	"context"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/buzznet/BuzzerWorker/model"
	"github.com/buzznet/BuzzerWorker/service/bus"
	"github.com/buzznet/BuzzerWorker/service/buzzer"
	"github.com/buzznet/BuzzerWorker/service/devices"
)

// Service contains the API exposed by the buzzer worker service.
type Service interface {
	// Run the worker until the given context is cancelled.
	Run(ctx context.Context) error
	// Snapshot returns a point-in-time copy of the buzzer state.
	Snapshot() buzzer.Snapshot
	// StartedAt returns the time the service was created.
	StartedAt() time.Time
}

// Config of the buzzer worker service.
type Config struct {
	model.Config
}

// Dependencies of the buzzer worker service.
type Dependencies struct {
	Log zerolog.Logger
	// Device overrides the frequency device. When nil, the sysfs
	// clkout driver for the configured path is used.
	Device devices.Frequency
}

type service struct {
	Config

	log       zerolog.Logger
	device    devices.Frequency
	buzzer    *buzzer.Buzzer
	bus       bus.Service
	startedAt time.Time
}

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	log := deps.Log.With().Str("component", "service").Logger()
	device := deps.Device
	if device == nil {
		device = devices.NewClkout(conf.Device.ClkoutPath, deps.Log)
	}
	initial := conf.Defaults.Setpoints()
	s := &service{
		Config:    conf,
		log:       log,
		device:    device,
		startedAt: time.Now(),
	}
	bz, err := buzzer.New(buzzer.Config{
		Initial: initial,
	}, buzzer.Dependencies{
		Log:       deps.Log,
		Device:    device,
		Readbacks: s,
	})
	if err != nil {
		return nil, maskAny(err)
	}
	s.buzzer = bz
	busSvc, err := bus.NewService(bus.Config{
		MqttConfig: conf.Mqtt,
	}, bus.Dependencies{
		Log:     deps.Log,
		Sink:    bz,
		Initial: initial,
	})
	if err != nil {
		return nil, maskAny(err)
	}
	s.bus = busSvc
	return s, nil
}

// Run the worker until the given context is cancelled.
// A failure of the frequency device ends the run with an error; the
// device is essential hardware and there is no fallback.
func (s *service) Run(ctx context.Context) error {
	// Acquire the frequency device first; fail fast when it is absent.
	if err := s.device.Configure(ctx); err != nil {
		return maskAny(err)
	}
	defer s.close()
	if err := s.bus.Configure(ctx); err != nil {
		return maskAny(err)
	}
	s.log.Info().Msg("buzzer worker started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.buzzer.Run(ctx) })
	g.Go(func() error { return s.bus.Run(ctx) })
	if err := g.Wait(); err != nil {
		return maskAny(err)
	}
	return nil
}

// Snapshot returns a point-in-time copy of the buzzer state.
func (s *service) Snapshot() buzzer.Snapshot {
	return s.buzzer.Snapshot()
}

// StartedAt returns the time the service was created.
func (s *service) StartedAt() time.Time {
	return s.startedAt
}

// close tears the collaborators down, collecting all errors.
func (s *service) close() {
	var ae aerr.AggregateError
	if err := s.bus.Close(); err != nil {
		ae.Add(err)
	}
	if err := s.device.Close(); err != nil {
		ae.Add(err)
	}
	if err := ae.AsError(); err != nil {
		s.log.Warn().Err(err).Msg("Teardown failed")
	}
}

// Readback forwarding towards the parameter bus.

func (s *service) PublishEnabled(value bool) {
	s.bus.PublishEnabled(value)
}

func (s *service) PublishFrequency(hz int) {
	s.bus.PublishFrequency(hz)
}

func (s *service) PublishPeriod(period time.Duration) {
	s.bus.PublishPeriod(period)
}

func (s *service) PublishDutyOnPercent(percent int) {
	s.bus.PublishDutyOnPercent(percent)
}

var maskAny = errors.WithStack
