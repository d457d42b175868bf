package devices

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/buzznet/BuzzerWorker/model"
)

// The driver appends to a single open handle like the hardware
// attribute does, so assertions below read the cumulative content.
func createAttribute(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clkout_freq")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func readAttribute(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(content)
}

func TestClkoutWritesFrequencies(t *testing.T) {
	ctx := context.Background()
	path := createAttribute(t)
	dev := NewClkout(path, zerolog.Nop())

	if err := dev.Configure(ctx); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := dev.SetFrequency(ctx, 4096); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if err := dev.SetFrequency(ctx, model.SilentFrequency); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if got := readAttribute(t, path); got != "40960" {
		t.Fatalf("attribute content=%q want %q", got, "40960")
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestClkoutConfigureFailsFatalOnMissingDevice(t *testing.T) {
	ctx := context.Background()
	dev := NewClkout(filepath.Join(t.TempDir(), "does-not-exist"), zerolog.Nop())

	err := dev.Configure(ctx)
	if !model.IsDeviceFatal(err) {
		t.Fatalf("Configure err=%v want device fatal", err)
	}
}

func TestClkoutRejectsWriteBeforeConfigure(t *testing.T) {
	ctx := context.Background()
	dev := NewClkout(createAttribute(t), zerolog.Nop())

	if err := dev.SetFrequency(ctx, 1024); !IsNotConfigured(err) {
		t.Fatalf("SetFrequency err=%v want not configured", err)
	}
}

func TestClkoutConfigureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := createAttribute(t)
	dev := NewClkout(path, zerolog.Nop())

	if err := dev.Configure(ctx); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := dev.Configure(ctx); err != nil {
		t.Fatalf("Configure again: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestClkoutCloseMutesOutput(t *testing.T) {
	ctx := context.Background()
	path := createAttribute(t)
	dev := NewClkout(path, zerolog.Nop())

	if err := dev.Configure(ctx); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := dev.SetFrequency(ctx, 2048); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := readAttribute(t, path); got != "20480" {
		t.Fatalf("attribute content=%q want trailing mute write", got)
	}
	// A second close is a no-op.
	if err := dev.Close(); err != nil {
		t.Fatalf("Close again: %v", err)
	}
	if err := dev.SetFrequency(ctx, 1024); !IsNotConfigured(err) {
		t.Fatalf("SetFrequency after close err=%v want not configured", err)
	}
}
