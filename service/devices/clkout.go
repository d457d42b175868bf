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

package devices

import (
	"context"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/buzznet/BuzzerWorker/model"
)

// clkout drives the clock-output line of an RTC chip via a sysfs attribute.
// The attribute accepts an integer frequency in Hz as its entire payload;
// writing 0 stops the output.
//
// The handle is opened once and kept open for the lifetime of the process.
// The device is essential hardware: failure to open or write it wraps
// model.DeviceFatalError and must terminate the process, since a buzzer
// whose control path is broken cannot be trusted to stay silent.
type clkout struct {
	mutex sync.Mutex
	log   zerolog.Logger
	path  string
	file  *os.File
}

// NewClkout creates a frequency device for the sysfs attribute at the given path.
func NewClkout(path string, log zerolog.Logger) Frequency {
	return &clkout{
		log:  log.With().Str("component", "clkout").Str("path", path).Logger(),
		path: path,
	}
}

// Configure is called once to put the device in the desired state.
// It opens the sysfs attribute, failing fast when the device is absent.
func (d *clkout) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file != nil {
		return nil
	}
	// Sysfs attributes reject truncation flags, so plain O_WRONLY.
	file, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	if err != nil {
		d.log.Error().Err(err).Msg("Failed to open clkout attribute")
		return errors.Wrapf(model.DeviceFatalError, "open '%s': %s", d.path, err.Error())
	}
	d.file = file
	return nil
}

// SetFrequency programs the clock-output to the given frequency in Hz.
// Every write is flushed so the hardware applies the value before returning.
func (d *clkout) SetFrequency(ctx context.Context, hz int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return maskAny(NotConfiguredError)
	}
	if _, err := d.file.WriteString(strconv.Itoa(hz)); err != nil {
		d.log.Error().Err(err).Int("frequency", hz).Msg("Failed to write clkout attribute")
		return errors.Wrapf(model.DeviceFatalError, "write '%s': %s", d.path, err.Error())
	}
	if err := d.file.Sync(); err != nil {
		d.log.Error().Err(err).Int("frequency", hz).Msg("Failed to flush clkout attribute")
		return errors.Wrapf(model.DeviceFatalError, "flush '%s': %s", d.path, err.Error())
	}
	return nil
}

// Close brings the device back to a safe state, silencing the output.
func (d *clkout) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.file == nil {
		return nil
	}
	// Best-effort mute before releasing the handle.
	if _, err := d.file.WriteString(strconv.Itoa(model.SilentFrequency)); err == nil {
		d.file.Sync()
	}
	err := d.file.Close()
	d.file = nil
	if err != nil {
		return maskAny(err)
	}
	return nil
}
