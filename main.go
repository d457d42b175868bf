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

package main

import (
	"context"
	"fmt"
	"os"

	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/buzznet/BuzzerWorker/model"
	"github.com/buzznet/BuzzerWorker/server"
	"github.com/buzznet/BuzzerWorker/service"
)

const (
	projectName       = "Buzzer Worker"
	defaultServerPort = 7131
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var configPath string
	var serverHost string
	var serverPort int
	var mqttBroker string
	var topicPrefix string
	var devicePath string

	pflag.StringVarP(&levelFlag, "level", "l", "debug", "Set log level")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of the configuration file")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.StringVar(&mqttBroker, "mqtt-broker", "", "Address of the MQTT broker used as parameter bus")
	pflag.StringVar(&topicPrefix, "topic-prefix", "", "Topic prefix of the buzzer parameters")
	pflag.StringVar(&devicePath, "device-path", "", "Path of the clkout sysfs attribute")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Unknown log level '%s'\n", levelFlag)
	}
	logger = logger.Level(level)

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}
	if mqttBroker != "" {
		cfg.Mqtt.BrokerAddress = mqttBroker
	}
	if topicPrefix != "" {
		cfg.Mqtt.TopicPrefix = topicPrefix
	}
	if devicePath != "" {
		cfg.Device.ClkoutPath = devicePath
	}

	svc, err := service.NewService(service.Config{
		Config: cfg,
	}, service.Dependencies{
		Log: logger,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	httpServer, err := server.NewServer(server.Config{
		Host: serverHost,
		Port: serverPort,
	}, svc, logger)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v", err)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
