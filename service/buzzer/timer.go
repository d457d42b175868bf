package buzzer

import "time"

// cycleTimer is a repeating timer whose interval can be changed while it
// keeps running.
type cycleTimer interface {
	// Start arms the timer to fire after d, measured from now.
	Start(d time.Duration)
	// Rearm arms the timer to fire after d, measured from the previous
	// deadline. Used when handling an expiry, so the cycle keeps its
	// anchor point and scheduling jitter does not accumulate.
	Rearm(d time.Duration)
	// Stop disarms the timer without releasing it.
	Stop()
	// C returns the expiry channel.
	C() <-chan time.Time
}

// newCycleTimerFn creates the timer used by the scheduler.
// Swappable for tests.
var newCycleTimerFn func() cycleTimer = func() cycleTimer { return newWallTimer() }

// wallTimer implements cycleTimer on a single reused time.Timer.
type wallTimer struct {
	timer    *time.Timer
	deadline time.Time
}

func newWallTimer() *wallTimer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &wallTimer{timer: t}
}

func (t *wallTimer) Start(d time.Duration) {
	if !t.timer.Stop() {
		t.drain()
	}
	t.deadline = time.Now().Add(d)
	t.timer.Reset(d)
}

func (t *wallTimer) Rearm(d time.Duration) {
	t.deadline = t.deadline.Add(d)
	t.timer.Reset(time.Until(t.deadline))
}

func (t *wallTimer) Stop() {
	if !t.timer.Stop() {
		t.drain()
	}
}

// drain removes an already fired, not yet received tick.
// Stop returns false after expiry and leaves the value in C; without
// draining it the next Start would deliver it immediately.
func (t *wallTimer) drain() {
	select {
	case <-t.timer.C:
	default:
	}
}

func (t *wallTimer) C() <-chan time.Time {
	return t.timer.C
}
