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
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/buzznet/BuzzerWorker/model"
)

// Parameter names as they appear on the bus.
const (
	ParamEnable    = "enable"
	ParamFrequency = "frequency"
	ParamPeriod    = "period"
	ParamDutyCycle = "duty-cycle"
)

const (
	setSuffix   = "set"
	valueSuffix = "value"
)

// NumericEvent is the wire format of a numeric setpoint change.
// Timestamp is in unix seconds.
type NumericEvent struct {
	Timestamp float64 `json:"ts"`
	Value     float64 `json:"value"`
}

// BooleanEvent is the wire format of a boolean setpoint change.
type BooleanEvent struct {
	Timestamp float64 `json:"ts"`
	Value     bool    `json:"value"`
}

func newNumericEvent(value float64) NumericEvent {
	return NumericEvent{Timestamp: unixNow(), Value: value}
}

func newBooleanEvent(value bool) BooleanEvent {
	return BooleanEvent{Timestamp: unixNow(), Value: value}
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func parseNumericEvent(payload []byte) (NumericEvent, error) {
	var evt NumericEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return NumericEvent{}, errors.Wrapf(model.ValidationError, "malformed numeric event: %s", err.Error())
	}
	return evt, nil
}

func parseBooleanEvent(payload []byte) (BooleanEvent, error) {
	var evt BooleanEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return BooleanEvent{}, errors.Wrapf(model.ValidationError, "malformed boolean event: %s", err.Error())
	}
	return evt, nil
}

// periodFromSeconds converts a bus period (seconds) into a duration,
// rounded to whole milliseconds.
func periodFromSeconds(seconds float64) time.Duration {
	ms := int64(seconds * 1000)
	return time.Duration(ms) * time.Millisecond
}
