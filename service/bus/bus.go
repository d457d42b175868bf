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

package bus

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/buzznet/BuzzerWorker/model"
)

// SetpointSink receives validated setpoint change events, one method
// per parameter. Calls are made synchronously, in delivery order.
type SetpointSink interface {
	SetEnabled(ctx context.Context, enable bool) error
	SetFrequency(ctx context.Context, hz int) error
	SetPeriod(ctx context.Context, period time.Duration) error
	SetDutyOnPercent(ctx context.Context, percent int) error
}

// Service contains the API exposed by the parameter bus adapter.
type Service interface {
	// Configure connects to the broker, registers the parameters and
	// binds inbound requests to the setpoint sink.
	Configure(ctx context.Context) error
	// Run publishes readbacks until the given context is cancelled.
	// Returns an error when the sink reports a fatal device failure.
	Run(ctx context.Context) error
	// Close unregisters the published parameters (best effort) and
	// disconnects from the broker.
	Close() error

	// Readback publications, used by the buzzer core.
	PublishEnabled(value bool)
	PublishFrequency(hz int)
	PublishPeriod(period time.Duration)
	PublishDutyOnPercent(percent int)
}

// Config for the parameter bus adapter.
type Config struct {
	model.MqttConfig
}

// Dependencies of the parameter bus adapter.
type Dependencies struct {
	Log zerolog.Logger
	// Sink receives the validated setpoint changes.
	Sink SetpointSink
	// Initial setpoint values, published as readbacks at startup.
	Initial model.Setpoints
}

const (
	mqttKeepAlive      = 30 * time.Second
	mqttPingTimeout    = 5 * time.Second
	mqttPublishTimeout = 200 * time.Millisecond
	mqttDisconnectMs   = 250
)

type readback struct {
	parameter string
	payload   interface{}
}

type service struct {
	Config
	log      zerolog.Logger
	sink     SetpointSink
	initial  model.Setpoints
	requests *requestService

	client    mqttapi.Client
	readbacks chan readback
	fatalErrs chan error
	cancels   []context.CancelFunc
}

// NewService instantiates a new parameter bus adapter.
func NewService(config Config, deps Dependencies) (Service, error) {
	if deps.Sink == nil {
		return nil, errors.Wrap(model.ValidationError, "Sink is nil")
	}
	log := deps.Log.With().Str("component", "parameter-bus").Logger()
	return &service{
		Config:    config,
		log:       log,
		sink:      deps.Sink,
		initial:   deps.Initial,
		requests:  newRequestService(log),
		readbacks: make(chan readback, 16),
		fatalErrs: make(chan error, 1),
	}, nil
}

// Configure connects to the broker, registers the parameters and binds
// inbound requests to the setpoint sink.
func (s *service) Configure(ctx context.Context) error {
	// Bind inbound requests to the sink.
	s.cancels = append(s.cancels,
		s.requests.RegisterEnableReceiver(func(v bool) error {
			return s.apply(ParamEnable, func(ctx context.Context) error {
				return s.sink.SetEnabled(ctx, v)
			})
		}),
		s.requests.RegisterFrequencyReceiver(func(hz int) error {
			return s.apply(ParamFrequency, func(ctx context.Context) error {
				return s.sink.SetFrequency(ctx, hz)
			})
		}),
		s.requests.RegisterPeriodReceiver(func(p time.Duration) error {
			return s.apply(ParamPeriod, func(ctx context.Context) error {
				return s.sink.SetPeriod(ctx, p)
			})
		}),
		s.requests.RegisterDutyOnPercentReceiver(func(pct int) error {
			return s.apply(ParamDutyCycle, func(ctx context.Context) error {
				return s.sink.SetDutyOnPercent(ctx, pct)
			})
		}),
	)

	// Prepare MQTT client options
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + s.BrokerAddress).
		SetClientID(s.ClientID)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetPingTimeout(mqttPingTimeout)
	if s.UserName != "" {
		opts.SetUsername(s.UserName)
		opts.SetPassword(s.Password)
	}
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})

	// Connect client
	s.client = mqttapi.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "failed to connect to mqtt at '%s'", s.BrokerAddress)
	}
	filter := s.TopicPrefix + "/+/" + setSuffix
	if token := s.client.Subscribe(filter, 0, s.onMessage); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "failed to subscribe to '%s'", filter)
	}
	s.log.Info().Str("broker", s.BrokerAddress).Str("filter", filter).Msg("parameter bus connected")
	return nil
}

// apply invokes the given sink operation, routing fatal device errors
// to the Run loop. Validation and precondition failures are terminal
// per event; the next valid update simply supersedes.
func (s *service) apply(parameter string, fn func(context.Context) error) error {
	err := fn(context.Background())
	if err == nil {
		return nil
	}
	if model.IsDeviceFatal(err) {
		select {
		case s.fatalErrs <- err:
		default:
		}
	}
	return errors.Wrapf(err, "parameter '%s'", parameter)
}

// onMessage routes an inbound set event to the matching request fanout.
// Malformed or unknown messages are logged and dropped.
func (s *service) onMessage(client mqttapi.Client, msg mqttapi.Message) {
	topic := strings.TrimPrefix(msg.Topic(), s.TopicPrefix+"/")
	parameter := strings.TrimSuffix(topic, "/"+setSuffix)
	log := s.log.With().Str("parameter", parameter).Logger()
	switch parameter {
	case ParamEnable:
		evt, err := parseBooleanEvent(msg.Payload())
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed enable event")
			return
		}
		s.requests.RequestEnable(evt.Value)
	case ParamFrequency:
		evt, err := parseNumericEvent(msg.Payload())
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frequency event")
			return
		}
		s.requests.RequestFrequency(int(evt.Value))
	case ParamPeriod:
		evt, err := parseNumericEvent(msg.Payload())
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed period event")
			return
		}
		s.requests.RequestPeriod(periodFromSeconds(evt.Value))
	case ParamDutyCycle:
		evt, err := parseNumericEvent(msg.Payload())
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed duty cycle event")
			return
		}
		s.requests.RequestDutyOnPercent(int(evt.Value))
	default:
		log.Debug().Str("topic", msg.Topic()).Msg("ignoring unknown parameter")
	}
}

// Run publishes readbacks until the given context is cancelled.
func (s *service) Run(ctx context.Context) error {
	// Publish the defaults so listeners see the initial state.
	s.PublishEnabled(s.initial.Enabled)
	s.PublishFrequency(s.initial.Frequency)
	s.PublishPeriod(s.initial.Period)
	s.PublishDutyOnPercent(s.initial.DutyOnPercent)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.fatalErrs:
			return maskAny(err)
		case rb := <-s.readbacks:
			s.publish(rb)
		}
	}
}

func (s *service) publish(rb readback) {
	payload, err := json.Marshal(rb.payload)
	if err != nil {
		s.log.Error().Err(err).Str("parameter", rb.parameter).Msg("failed to encode readback")
		return
	}
	topic := s.TopicPrefix + "/" + rb.parameter + "/" + valueSuffix
	token := s.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		s.log.Error().Err(token.Error()).
			Str("topic", topic).
			Msg("failed to deliver readback in time")
	}
}

// queueReadback enqueues a readback without ever blocking the caller.
func (s *service) queueReadback(parameter string, payload interface{}) {
	select {
	case s.readbacks <- readback{parameter: parameter, payload: payload}:
	default:
		s.log.Warn().Str("parameter", parameter).Msg("readback queue full, dropping")
	}
}

func (s *service) PublishEnabled(value bool) {
	s.queueReadback(ParamEnable, newBooleanEvent(value))
}

func (s *service) PublishFrequency(hz int) {
	s.queueReadback(ParamFrequency, newNumericEvent(float64(hz)))
}

func (s *service) PublishPeriod(period time.Duration) {
	s.queueReadback(ParamPeriod, newNumericEvent(period.Seconds()))
}

func (s *service) PublishDutyOnPercent(percent int) {
	s.queueReadback(ParamDutyCycle, newNumericEvent(float64(percent)))
}

// Close unregisters the published parameters (best effort) and
// disconnects from the broker.
func (s *service) Close() error {
	var ae aerr.AggregateError
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	if s.client != nil {
		// Clear the retained readbacks.
		for _, parameter := range []string{ParamEnable, ParamFrequency, ParamPeriod, ParamDutyCycle} {
			topic := s.TopicPrefix + "/" + parameter + "/" + valueSuffix
			token := s.client.Publish(topic, 0, true, []byte{})
			if !token.WaitTimeout(mqttPublishTimeout) {
				ae.Add(errors.Errorf("failed to clear retained value of '%s'", topic))
			}
		}
		filter := s.TopicPrefix + "/+/" + setSuffix
		if token := s.client.Unsubscribe(filter); token.Wait() && token.Error() != nil {
			ae.Add(maskAny(token.Error()))
		}
		s.client.Disconnect(mqttDisconnectMs)
		s.client = nil
	}
	return ae.AsError()
}

var maskAny = errors.WithStack
