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
	"github.com/buzznet/BuzzerWorker/pkg/metrics"
)

const (
	subSystem = "buzzer"
)

var (
	// Number of accepted setpoint updates
	setpointUpdatesTotal = metrics.MustRegisterCounterVec(subSystem,
		"setpoint_updates_total",
		"Number of accepted setpoint updates",
		"parameter")

	// Number of rejected setpoint updates
	setpointRejectionsTotal = metrics.MustRegisterCounterVec(subSystem,
		"setpoint_rejections_total",
		"Number of rejected setpoint updates",
		"parameter")

	// Number of duty cycle phase transitions
	cycleTransitionsTotal = metrics.MustRegisterCounterVec(subSystem,
		"cycle_transitions_total",
		"Number of duty cycle phase transitions",
		"phase")

	// Number of writes to the frequency device
	deviceWritesTotal = metrics.MustRegisterCounter(subSystem,
		"device_writes_total",
		"Number of writes to the frequency device")

	// Number of cycle expiries observed in an impossible phase
	invariantViolationsTotal = metrics.MustRegisterCounter(subSystem,
		"invariant_violations_total",
		"Number of cycle expiries observed in an impossible phase")

	// Current setpoint values
	enabledGauge = metrics.MustRegisterGauge(subSystem,
		"enabled",
		"Whether the buzzer duty cycle is enabled (0=OFF, 1=ON)")
	frequencyGauge = metrics.MustRegisterGauge(subSystem,
		"frequency_hz",
		"Configured clock-output frequency in Hz")
	periodGauge = metrics.MustRegisterGauge(subSystem,
		"period_seconds",
		"Configured duty cycle period in seconds")
	dutyOnGauge = metrics.MustRegisterGauge(subSystem,
		"duty_on_percent",
		"Configured duty cycle ON percentage")
)
