package model

import (
	"testing"
	"time"
)

func TestValidateFrequency(t *testing.T) {
	for _, hz := range AllowedFrequencies {
		if err := ValidateFrequency(hz); err != nil {
			t.Errorf("ValidateFrequency(%d): %v", hz, err)
		}
	}
	for _, hz := range []int{SilentFrequency, -1024, 1000, 512, 32768} {
		if err := ValidateFrequency(hz); !IsValidation(err) {
			t.Errorf("ValidateFrequency(%d) err=%v want validation error", hz, err)
		}
	}
}

func TestValidatePeriod(t *testing.T) {
	for _, p := range []time.Duration{MinPeriod, time.Second, time.Minute, MaxPeriod} {
		if err := ValidatePeriod(p); err != nil {
			t.Errorf("ValidatePeriod(%s): %v", p, err)
		}
	}
	for _, p := range []time.Duration{0, 99 * time.Millisecond, MaxPeriod + time.Second, -time.Second} {
		if err := ValidatePeriod(p); !IsValidation(err) {
			t.Errorf("ValidatePeriod(%s) err=%v want validation error", p, err)
		}
	}
}

func TestValidateDutyOnPercent(t *testing.T) {
	for _, pct := range []int{0, 1, 50, 99, 100} {
		if err := ValidateDutyOnPercent(pct); err != nil {
			t.Errorf("ValidateDutyOnPercent(%d): %v", pct, err)
		}
	}
	for _, pct := range []int{-1, 101, 200} {
		if err := ValidateDutyOnPercent(pct); !IsValidation(err) {
			t.Errorf("ValidateDutyOnPercent(%d) err=%v want validation error", pct, err)
		}
	}
}

func TestDefaultSetpointsAreValid(t *testing.T) {
	sp := DefaultSetpoints()
	if sp.Enabled {
		t.Errorf("default setpoints start enabled")
	}
	if err := sp.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSetpointsValidateRejectsBadFields(t *testing.T) {
	sp := DefaultSetpoints()
	sp.Frequency = 123
	if err := sp.Validate(); !IsValidation(err) {
		t.Errorf("Validate with bad frequency err=%v want validation error", err)
	}
	sp = DefaultSetpoints()
	sp.Period = time.Millisecond
	if err := sp.Validate(); !IsValidation(err) {
		t.Errorf("Validate with bad period err=%v want validation error", err)
	}
	sp = DefaultSetpoints()
	sp.DutyOnPercent = 150
	if err := sp.Validate(); !IsValidation(err) {
		t.Errorf("Validate with bad duty cycle err=%v want validation error", err)
	}
}
