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

package buzzer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/buzznet/BuzzerWorker/model"
	"github.com/buzznet/BuzzerWorker/service/devices"
)

// phase indicates which half of the duty cycle is currently active.
type phase uint8

const (
	phaseOff phase = iota
	phaseOn
)

func (p phase) String() string {
	if p == phaseOn {
		return "on"
	}
	return "off"
}

// ReadbackPublisher is used by the buzzer to report validated setpoint
// values back onto the parameter bus.
type ReadbackPublisher interface {
	PublishEnabled(value bool)
	PublishFrequency(hz int)
	PublishPeriod(period time.Duration)
	PublishDutyOnPercent(percent int)
}

// Config holds the initial state of the buzzer.
type Config struct {
	// Initial setpoints; Enabled must be false.
	Initial model.Setpoints
}

// Dependencies of the buzzer.
type Dependencies struct {
	Log zerolog.Logger
	// Device is the frequency device driving the buzzer hardware.
	Device devices.Frequency
	// Readbacks receives validated setpoint values. May be nil.
	Readbacks ReadbackPublisher
}

// Buzzer owns the setpoints and the duty cycle scheduler.
//
// All state transitions happen under a single mutex, taken both by the
// parameter bus callbacks and by the timer expiry handling in Run.
// That gives the same run-to-completion semantics as a single threaded
// event loop: no transition ever observes another one half way.
type Buzzer struct {
	mutex     sync.Mutex
	log       zerolog.Logger
	device    devices.Frequency
	readbacks ReadbackPublisher

	setpoints model.Setpoints
	phase     phase
	timer     cycleTimer
	// armedAt is the time of the last Start or Stop of the timer.
	// Expiries that fired before it were superseded while in flight
	// and must be ignored.
	armedAt time.Time
}

// Snapshot is a point-in-time copy of the buzzer state.
type Snapshot struct {
	Enabled       bool    `json:"enabled"`
	FrequencyHz   int     `json:"frequency_hz"`
	PeriodSeconds float64 `json:"period_seconds"`
	DutyOnPercent int     `json:"duty_on_percent"`
	Phase         string  `json:"phase"`
	Sounding      bool    `json:"sounding"`
}

// New creates a Buzzer with the given initial setpoints.
func New(cfg Config, deps Dependencies) (*Buzzer, error) {
	if cfg.Initial.Enabled {
		return nil, errors.Wrap(model.ValidationError, "initial setpoints must be disabled")
	}
	if err := cfg.Initial.Validate(); err != nil {
		return nil, maskAny(err)
	}
	b := &Buzzer{
		log:       deps.Log.With().Str("component", "buzzer").Logger(),
		device:    deps.Device,
		readbacks: deps.Readbacks,
		setpoints: cfg.Initial,
		phase:     phaseOff,
		timer:     newCycleTimerFn(),
	}
	b.updateGaugesLocked()
	return b, nil
}

// Setpoints returns a copy of the current setpoints.
func (b *Buzzer) Setpoints() model.Setpoints {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.setpoints
}

// Snapshot returns a point-in-time copy of the buzzer state.
func (b *Buzzer) Snapshot() Snapshot {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return Snapshot{
		Enabled:       b.setpoints.Enabled,
		FrequencyHz:   b.setpoints.Frequency,
		PeriodSeconds: b.setpoints.Period.Seconds(),
		DutyOnPercent: b.setpoints.DutyOnPercent,
		Phase:         b.phase.String(),
		Sounding:      b.setpoints.Enabled && b.phase == phaseOn,
	}
}

// Run handles cycle expiries until the given context is cancelled.
// On cancellation the buzzer is disabled and silenced.
// Returns an error only when the frequency device fails.
func (b *Buzzer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.mutex.Lock()
			err := b.stopCycleLocked(context.Background())
			b.setpoints.Enabled = false
			b.updateGaugesLocked()
			b.mutex.Unlock()
			if err != nil {
				b.log.Error().Err(err).Msg("Failed to silence buzzer on shutdown")
			}
			return nil
		case tick := <-b.timer.C():
			if err := b.handleCycleExpiry(ctx, tick); err != nil {
				return maskAny(err)
			}
		}
	}
}

// SetEnabled starts or stops the duty cycle.
// Enabling requires frequency, period and duty cycle to be set.
func (b *Buzzer) SetEnabled(ctx context.Context, enable bool) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if enable == b.setpoints.Enabled {
		return nil
	}
	if enable {
		sp := b.setpoints
		if sp.Frequency == model.SilentFrequency || sp.Period == 0 || sp.DutyOnPercent == 0 {
			setpointRejectionsTotal.WithLabelValues("enable").Inc()
			return errors.Wrap(model.PreconditionError, "cannot enable with frequency, period or duty cycle unset")
		}
		if err := b.startCycleLocked(ctx); err != nil {
			return maskAny(err)
		}
		b.setpoints.Enabled = true
	} else {
		if err := b.stopCycleLocked(ctx); err != nil {
			return maskAny(err)
		}
		b.setpoints.Enabled = false
	}
	b.log.Info().Bool("enabled", enable).Msg("buzzer enable changed")
	setpointUpdatesTotal.WithLabelValues("enable").Inc()
	b.updateGaugesLocked()
	if b.readbacks != nil {
		b.readbacks.PublishEnabled(enable)
	}
	return nil
}

// SetFrequency updates the frequency setpoint.
// While sounding, the device is reprogrammed immediately; in the OFF
// phase the new frequency takes effect on the next ON transition.
func (b *Buzzer) SetFrequency(ctx context.Context, hz int) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := model.ValidateFrequency(hz); err != nil {
		setpointRejectionsTotal.WithLabelValues("frequency").Inc()
		return maskAny(err)
	}
	if hz == b.setpoints.Frequency {
		return nil
	}
	b.setpoints.Frequency = hz
	if b.setpoints.Enabled && b.phase == phaseOn {
		if err := b.setDeviceLocked(ctx, hz); err != nil {
			return maskAny(err)
		}
	}
	b.log.Debug().Int("frequency", hz).Msg("frequency changed")
	setpointUpdatesTotal.WithLabelValues("frequency").Inc()
	b.updateGaugesLocked()
	if b.readbacks != nil {
		b.readbacks.PublishFrequency(hz)
	}
	return nil
}

// SetPeriod updates the period setpoint.
// While enabled the cycle is restarted from the ON phase. That is a
// deliberate simplification: one audible blip instead of phase
// preserving math.
func (b *Buzzer) SetPeriod(ctx context.Context, period time.Duration) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := model.ValidatePeriod(period); err != nil {
		setpointRejectionsTotal.WithLabelValues("period").Inc()
		return maskAny(err)
	}
	if period == b.setpoints.Period {
		return nil
	}
	b.setpoints.Period = period
	if b.setpoints.Enabled {
		if err := b.stopCycleLocked(ctx); err != nil {
			return maskAny(err)
		}
		if err := b.startCycleLocked(ctx); err != nil {
			return maskAny(err)
		}
	}
	b.log.Debug().Dur("period", period).Msg("period changed")
	setpointUpdatesTotal.WithLabelValues("period").Inc()
	b.updateGaugesLocked()
	if b.readbacks != nil {
		b.readbacks.PublishPeriod(period)
	}
	return nil
}

// SetDutyOnPercent updates the duty cycle setpoint.
// In the ON phase the running countdown is re-armed with the full new
// ON interval, without touching the device. In the OFF phase the new
// percentage takes effect on the next phase transition.
func (b *Buzzer) SetDutyOnPercent(ctx context.Context, percent int) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := model.ValidateDutyOnPercent(percent); err != nil {
		setpointRejectionsTotal.WithLabelValues("duty_cycle").Inc()
		return maskAny(err)
	}
	if percent == b.setpoints.DutyOnPercent {
		return nil
	}
	b.setpoints.DutyOnPercent = percent
	if b.setpoints.Enabled && b.phase == phaseOn {
		b.armedAt = time.Now()
		b.timer.Start(b.onIntervalLocked())
	}
	b.log.Debug().Int("duty_cycle", percent).Msg("duty cycle changed")
	setpointUpdatesTotal.WithLabelValues("duty_cycle").Inc()
	b.updateGaugesLocked()
	if b.readbacks != nil {
		b.readbacks.PublishDutyOnPercent(percent)
	}
	return nil
}

// handleCycleExpiry flips the duty cycle phase.
// The timer is re-armed from its previous deadline so the cycle does
// not drift. At 0% and 100% duty the phase is a stable self loop.
func (b *Buzzer) handleCycleExpiry(ctx context.Context, firedAt time.Time) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if firedAt.Before(b.armedAt) {
		// The timer was re-armed while this tick was in flight;
		// the new countdown supersedes it.
		b.log.Debug().Str("phase", b.phase.String()).Msg("ignoring superseded cycle expiry")
		return nil
	}
	if !b.setpoints.Enabled {
		b.log.Error().Str("phase", b.phase.String()).Msg("cycle expiry while disabled")
		invariantViolationsTotal.Inc()
		return nil
	}
	switch b.phase {
	case phaseOn:
		if b.setpoints.DutyOnPercent >= 100 {
			// Buzzer stays on permanently.
			b.timer.Rearm(b.onIntervalLocked())
			return nil
		}
		if err := b.setDeviceLocked(ctx, model.SilentFrequency); err != nil {
			return maskAny(err)
		}
		b.phase = phaseOff
		b.timer.Rearm(b.offIntervalLocked())
		cycleTransitionsTotal.WithLabelValues("off").Inc()
	case phaseOff:
		if b.setpoints.DutyOnPercent <= 0 {
			// Buzzer stays off permanently.
			b.timer.Rearm(b.offIntervalLocked())
			return nil
		}
		if err := b.setDeviceLocked(ctx, b.setpoints.Frequency); err != nil {
			return maskAny(err)
		}
		b.phase = phaseOn
		b.timer.Rearm(b.onIntervalLocked())
		cycleTransitionsTotal.WithLabelValues("on").Inc()
	default:
		b.log.Error().Str("phase", b.phase.String()).Msg("cycle expiry in unknown phase")
		invariantViolationsTotal.Inc()
	}
	return nil
}

// startCycleLocked begins the duty cycle at the ON phase.
// The mutex must be held when calling this function.
func (b *Buzzer) startCycleLocked(ctx context.Context) error {
	if err := b.setDeviceLocked(ctx, b.setpoints.Frequency); err != nil {
		return maskAny(err)
	}
	b.phase = phaseOn
	b.armedAt = time.Now()
	b.timer.Start(b.onIntervalLocked())
	cycleTransitionsTotal.WithLabelValues("on").Inc()
	return nil
}

// stopCycleLocked stops the timer and silences the device when sounding.
// The mutex must be held when calling this function.
func (b *Buzzer) stopCycleLocked(ctx context.Context) error {
	b.armedAt = time.Now()
	b.timer.Stop()
	if b.phase == phaseOn {
		if err := b.setDeviceLocked(ctx, model.SilentFrequency); err != nil {
			return maskAny(err)
		}
		b.phase = phaseOff
		cycleTransitionsTotal.WithLabelValues("off").Inc()
	}
	return nil
}

// setDeviceLocked writes the given frequency to the device.
// The mutex must be held when calling this function.
func (b *Buzzer) setDeviceLocked(ctx context.Context, hz int) error {
	if err := b.device.SetFrequency(ctx, hz); err != nil {
		b.log.Error().Err(err).Int("frequency", hz).Msg("Frequency device write failed")
		return maskAny(err)
	}
	deviceWritesTotal.Inc()
	return nil
}

func (b *Buzzer) onIntervalLocked() time.Duration {
	return b.setpoints.Period * time.Duration(b.setpoints.DutyOnPercent) / 100
}

func (b *Buzzer) offIntervalLocked() time.Duration {
	return b.setpoints.Period * time.Duration(100-b.setpoints.DutyOnPercent) / 100
}

func (b *Buzzer) updateGaugesLocked() {
	if b.setpoints.Enabled {
		enabledGauge.Set(1)
	} else {
		enabledGauge.Set(0)
	}
	frequencyGauge.Set(float64(b.setpoints.Frequency))
	periodGauge.Set(b.setpoints.Period.Seconds())
	dutyOnGauge.Set(float64(b.setpoints.DutyOnPercent))
}

var maskAny = errors.WithStack
