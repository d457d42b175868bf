package model

import (
	"github.com/pkg/errors"
)

var (
	// ValidationError indicates a setpoint value outside its domain.
	// The previous value is retained; never fatal.
	ValidationError = errors.New("validation failed")
	IsValidation    = isErrorFunc(ValidationError)

	// PreconditionError indicates an enable request while required
	// setpoints are unset.
	PreconditionError = errors.New("precondition failed")
	IsPrecondition    = isErrorFunc(PreconditionError)

	// DeviceFatalError indicates a failure to open or write the frequency
	// device. There is no fallback; the process must terminate.
	DeviceFatalError = errors.New("frequency device failure")
	IsDeviceFatal    = isErrorFunc(DeviceFatalError)

	// InvariantViolationError indicates a scheduler callback observed in an
	// impossible phase. Logged and ignored.
	InvariantViolationError = errors.New("invariant violation")
	IsInvariantViolation    = isErrorFunc(InvariantViolationError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
