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
	"context"
	"time"

	"github.com/mattn/go-pubsub"
	"github.com/rs/zerolog"
)

// requestService fans inbound setpoint requests out to registered
// receivers. One pubsub instance per parameter keeps the typed
// subscriptions apart.
type requestService struct {
	log               zerolog.Logger
	enableRequests    *pubsub.PubSub
	frequencyRequests *pubsub.PubSub
	periodRequests    *pubsub.PubSub
	dutyCycleRequests *pubsub.PubSub
}

// newRequestService creates a new requestService.
func newRequestService(log zerolog.Logger) *requestService {
	return &requestService{
		log:               log,
		enableRequests:    pubsub.New(),
		frequencyRequests: pubsub.New(),
		periodRequests:    pubsub.New(),
		dutyCycleRequests: pubsub.New(),
	}
}

// Request the given enable state
func (s *requestService) RequestEnable(value bool) {
	s.enableRequests.Pub(value)
}

// Request the given frequency
func (s *requestService) RequestFrequency(hz int) {
	s.frequencyRequests.Pub(hz)
}

// Request the given period
func (s *requestService) RequestPeriod(period time.Duration) {
	s.periodRequests.Pub(period)
}

// Request the given duty cycle percentage
func (s *requestService) RequestDutyOnPercent(percent int) {
	s.dutyCycleRequests.Pub(percent)
}

func (s *requestService) RegisterEnableReceiver(cb func(bool) error) context.CancelFunc {
	wcb := func(x bool) {
		if err := cb(x); err != nil {
			s.log.Warn().Err(err).Msg("Enable processing error")
		}
	}
	s.enableRequests.Sub(wcb)
	return func() {
		s.enableRequests.Leave(wcb)
	}
}

func (s *requestService) RegisterFrequencyReceiver(cb func(int) error) context.CancelFunc {
	wcb := func(x int) {
		if err := cb(x); err != nil {
			s.log.Warn().Err(err).Msg("Frequency processing error")
		}
	}
	s.frequencyRequests.Sub(wcb)
	return func() {
		s.frequencyRequests.Leave(wcb)
	}
}

func (s *requestService) RegisterPeriodReceiver(cb func(time.Duration) error) context.CancelFunc {
	wcb := func(x time.Duration) {
		if err := cb(x); err != nil {
			s.log.Warn().Err(err).Msg("Period processing error")
		}
	}
	s.periodRequests.Sub(wcb)
	return func() {
		s.periodRequests.Leave(wcb)
	}
}

func (s *requestService) RegisterDutyOnPercentReceiver(cb func(int) error) context.CancelFunc {
	wcb := func(x int) {
		if err := cb(x); err != nil {
			s.log.Warn().Err(err).Msg("Duty cycle processing error")
		}
	}
	s.dutyCycleRequests.Sub(wcb)
	return func() {
		s.dutyCycleRequests.Leave(wcb)
	}
}
