package bus

import (
	"context"
	"testing"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/buzznet/BuzzerWorker/model"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

var _ mqttapi.Message = &fakeMessage{}

type sinkCall struct {
	parameter string
	value     interface{}
}

type fakeSink struct {
	calls chan sinkCall
	err   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{calls: make(chan sinkCall, 16)}
}

func (s *fakeSink) SetEnabled(ctx context.Context, enable bool) error {
	s.calls <- sinkCall{ParamEnable, enable}
	return s.err
}
func (s *fakeSink) SetFrequency(ctx context.Context, hz int) error {
	s.calls <- sinkCall{ParamFrequency, hz}
	return s.err
}
func (s *fakeSink) SetPeriod(ctx context.Context, period time.Duration) error {
	s.calls <- sinkCall{ParamPeriod, period}
	return s.err
}
func (s *fakeSink) SetDutyOnPercent(ctx context.Context, percent int) error {
	s.calls <- sinkCall{ParamDutyCycle, percent}
	return s.err
}

// waitCall waits for the next sink call, tolerating the asynchronous
// fanout of the request service.
func waitCall(t *testing.T, sink *fakeSink) sinkCall {
	t.Helper()
	select {
	case call := <-sink.calls:
		return call
	case <-time.After(time.Second):
		t.Fatalf("sink not called in time")
		return sinkCall{}
	}
}

func expectNoCall(t *testing.T, sink *fakeSink) {
	t.Helper()
	select {
	case call := <-sink.calls:
		t.Fatalf("unexpected sink call %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestService(t *testing.T, sink SetpointSink) *service {
	t.Helper()
	svc, err := NewService(Config{
		MqttConfig: model.MqttConfig{
			BrokerAddress: "localhost:1883",
			ClientID:      "test",
			TopicPrefix:   "buzzer",
		},
	}, Dependencies{
		Log:  zerolog.Nop(),
		Sink: sink,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc.(*service)
}

// bindSink wires the request fanout to the sink the way Configure does,
// without touching a broker.
func bindSink(s *service) {
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
}

func TestNewServiceRequiresSink(t *testing.T) {
	_, err := NewService(Config{}, Dependencies{Log: zerolog.Nop()})
	if !model.IsValidation(err) {
		t.Fatalf("NewService err=%v want validation error", err)
	}
}

func TestOnMessageRoutesSetEvents(t *testing.T) {
	sink := newFakeSink()
	s := newTestService(t, sink)
	bindSink(s)

	s.onMessage(nil, &fakeMessage{
		topic:   "buzzer/frequency/set",
		payload: []byte(`{"ts": 1756500000.5, "value": 4096}`),
	})
	if call := waitCall(t, sink); call.parameter != ParamFrequency || call.value != 4096 {
		t.Fatalf("call=%+v want frequency 4096", call)
	}

	s.onMessage(nil, &fakeMessage{
		topic:   "buzzer/enable/set",
		payload: []byte(`{"ts": 1756500000.5, "value": true}`),
	})
	if call := waitCall(t, sink); call.parameter != ParamEnable || call.value != true {
		t.Fatalf("call=%+v want enable true", call)
	}

	s.onMessage(nil, &fakeMessage{
		topic:   "buzzer/period/set",
		payload: []byte(`{"ts": 1756500000.5, "value": 1.5}`),
	})
	if call := waitCall(t, sink); call.parameter != ParamPeriod || call.value != 1500*time.Millisecond {
		t.Fatalf("call=%+v want period 1.5s", call)
	}

	s.onMessage(nil, &fakeMessage{
		topic:   "buzzer/duty-cycle/set",
		payload: []byte(`{"ts": 1756500000.5, "value": 30}`),
	})
	if call := waitCall(t, sink); call.parameter != ParamDutyCycle || call.value != 30 {
		t.Fatalf("call=%+v want duty cycle 30", call)
	}
}

func TestOnMessageDropsMalformedAndUnknown(t *testing.T) {
	sink := newFakeSink()
	s := newTestService(t, sink)
	bindSink(s)

	s.onMessage(nil, &fakeMessage{
		topic:   "buzzer/frequency/set",
		payload: []byte(`not json`),
	})
	s.onMessage(nil, &fakeMessage{
		topic:   "buzzer/enable/set",
		payload: []byte(`{"ts": 1, "value": "yes"}`),
	})
	s.onMessage(nil, &fakeMessage{
		topic:   "buzzer/volume/set",
		payload: []byte(`{"ts": 1, "value": 11}`),
	})
	expectNoCall(t, sink)
}

func TestReceiverCancelStopsDelivery(t *testing.T) {
	sink := newFakeSink()
	s := newTestService(t, sink)
	bindSink(s)

	for _, cancel := range s.cancels {
		cancel()
	}
	s.requests.RequestFrequency(2048)
	expectNoCall(t, sink)
}

func TestApplyRoutesFatalDeviceErrors(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.Wrap(model.DeviceFatalError, "clkout gone")
	s := newTestService(t, sink)

	err := s.apply(ParamEnable, func(ctx context.Context) error {
		return s.sink.SetEnabled(ctx, true)
	})
	if !model.IsDeviceFatal(err) {
		t.Fatalf("apply err=%v want device fatal", err)
	}
	<-sink.calls
	select {
	case fatal := <-s.fatalErrs:
		if !model.IsDeviceFatal(fatal) {
			t.Fatalf("fatal=%v want device fatal", fatal)
		}
	default:
		t.Fatalf("fatal error not routed to run loop")
	}
}

func TestApplyKeepsValidationErrorsLocal(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.Wrap(model.ValidationError, "bad frequency")
	s := newTestService(t, sink)

	err := s.apply(ParamFrequency, func(ctx context.Context) error {
		return s.sink.SetFrequency(ctx, 123)
	})
	if !model.IsValidation(err) {
		t.Fatalf("apply err=%v want validation error", err)
	}
	<-sink.calls
	select {
	case fatal := <-s.fatalErrs:
		t.Fatalf("validation error %v routed as fatal", fatal)
	default:
	}
}
