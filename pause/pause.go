// Package pause provides a randomized stall injector for exercising
// pipeline backpressure.
package pause

import (
	"math/rand"
	"time"
)

// Default stall ranges in milliseconds.
const (
	DefaultNextMin   = 10 * time.Millisecond
	DefaultNextMax   = 2000 * time.Millisecond
	DefaultLengthMin = 1 * time.Millisecond
	DefaultLengthMax = 500 * time.Millisecond
)

// Scheduler stalls its owning loop at randomized intervals for
// randomized durations, both redrawn after every stall. It is a
// cooperative delay local to one loop: it only ever blocks the caller.
// Not safe for concurrent use.
type Scheduler struct {
	nextMin, nextMax     time.Duration
	lengthMin, lengthMax time.Duration

	deadline time.Time
	length   time.Duration

	onPause func(d time.Duration)
}

// New creates a scheduler with the default stall ranges.
// If enabled is false it returns nil, and all methods on a nil Scheduler
// are no-ops, so callers never need to branch on the toggle.
func New(enabled bool) *Scheduler {
	if !enabled {
		return nil
	}
	s := &Scheduler{
		nextMin:   DefaultNextMin,
		nextMax:   DefaultNextMax,
		lengthMin: DefaultLengthMin,
		lengthMax: DefaultLengthMax,
	}
	s.redraw()
	return s
}

// NewWithRanges creates a scheduler with explicit ranges. Tests use
// tight ranges to make stalls deterministic enough to observe.
func NewWithRanges(nextMin, nextMax, lengthMin, lengthMax time.Duration) *Scheduler {
	s := &Scheduler{
		nextMin: nextMin, nextMax: nextMax,
		lengthMin: lengthMin, lengthMax: lengthMax,
	}
	s.redraw()
	return s
}

// OnPause registers a callback invoked with the stall duration right
// before sleeping. Used for the console notice.
func (s *Scheduler) OnPause(fn func(d time.Duration)) {
	if s != nil {
		s.onPause = fn
	}
}

// PauseIfNeeded blocks the calling loop for the drawn duration once the
// current time has reached the deadline, then redraws both values.
func (s *Scheduler) PauseIfNeeded() {
	if s == nil {
		return
	}
	if time.Now().Before(s.deadline) {
		return
	}
	if s.onPause != nil {
		s.onPause(s.length)
	}
	time.Sleep(s.length)
	s.redraw()
}

func (s *Scheduler) redraw() {
	s.deadline = time.Now().Add(randRange(s.nextMin, s.nextMax))
	s.length = randRange(s.lengthMin, s.lengthMax)
}

func randRange(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo+1)))
}
