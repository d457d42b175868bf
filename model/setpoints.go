package model

import (
	"time"

	"github.com/pkg/errors"
)

// SilentFrequency is the frequency value that stops audible output.
// It is programmed by the scheduler only and is never a valid setpoint.
const SilentFrequency = 0

// AllowedFrequencies lists the discrete clock-output frequencies (in Hz)
// the RTC chip can generate towards the buzzer.
var AllowedFrequencies = []int{1024, 2048, 4096, 8192, 16384}

const (
	// MinPeriod is the shortest supported duty cycle period.
	MinPeriod = 100 * time.Millisecond
	// MaxPeriod is the longest supported duty cycle period (1 hour).
	MaxPeriod = time.Hour
)

// Default setpoint values, published on the parameter bus at startup.
const (
	DefaultFrequency     = 1024
	DefaultPeriod        = 2 * time.Second
	DefaultDutyOnPercent = 50
)

// Setpoints holds the externally controllable configuration of the buzzer.
type Setpoints struct {
	// Enabled controls whether the duty cycle is running.
	Enabled bool
	// Frequency of the clock-output in Hz while sounding.
	Frequency int
	// Period of one full ON+OFF duty cycle.
	Period time.Duration
	// DutyOnPercent is the percentage of each period spent sounding.
	DutyOnPercent int
}

// DefaultSetpoints returns the setpoints used when no overrides are configured.
func DefaultSetpoints() Setpoints {
	return Setpoints{
		Enabled:       false,
		Frequency:     DefaultFrequency,
		Period:        DefaultPeriod,
		DutyOnPercent: DefaultDutyOnPercent,
	}
}

// Validate the given setpoints, returning nil on ok,
// or an error upon validation issues.
func (s Setpoints) Validate() error {
	if err := ValidateFrequency(s.Frequency); err != nil {
		return maskAny(err)
	}
	if err := ValidatePeriod(s.Period); err != nil {
		return maskAny(err)
	}
	if err := ValidateDutyOnPercent(s.DutyOnPercent); err != nil {
		return maskAny(err)
	}
	return nil
}

// ValidateFrequency checks that the given frequency is one of the
// discrete values the clock-output supports.
// The silent sentinel is not accepted here.
func ValidateFrequency(hz int) error {
	for _, allowed := range AllowedFrequencies {
		if hz == allowed {
			return nil
		}
	}
	return errors.Wrapf(ValidationError, "invalid frequency %d Hz, allowed %v", hz, AllowedFrequencies)
}

// ValidatePeriod checks that the given period is within [MinPeriod, MaxPeriod].
func ValidatePeriod(period time.Duration) error {
	if period < MinPeriod || period > MaxPeriod {
		return errors.Wrapf(ValidationError, "invalid period %s, allowed [%s..%s]", period, MinPeriod, MaxPeriod)
	}
	return nil
}

// ValidateDutyOnPercent checks that the given percentage is within [0, 100].
func ValidateDutyOnPercent(percent int) error {
	if percent < 0 || percent > 100 {
		return errors.Wrapf(ValidationError, "invalid duty cycle %d%%, allowed [0..100]", percent)
	}
	return nil
}
