package devices

import "context"

// Device is the lifecycle shared by all buzzer hardware devices.
type Device interface {
	// Configure is called once, before the first output operation,
	// to acquire the hardware and put it in a known state.
	Configure(ctx context.Context) error
	// Close brings the hardware back to a safe (silent) state.
	Close() error
}

// Frequency contains the API that is supported by all frequency output devices.
type Frequency interface {
	Device
	// SetFrequency programs the device to output a square wave of the
	// given frequency in Hz. The silent sentinel (0) stops the output
	// and is always accepted.
	SetFrequency(ctx context.Context, hz int) error
}
