// Package clock abstracts time so polling loops and visibility windows can be
// exercised without real sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and timer channels.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real is the wall clock.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

// Now returns the current wall time.
func (Real) Now() time.Time { return time.Now() }

// After waits for the duration to elapse on the wall clock.
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Simulated is a manually driven clock. After advances the clock by the requested
// duration and fires immediately, so a loop that sleeps between iterations runs
// through simulated time at full speed.
type Simulated struct {
	mu  sync.Mutex
	now time.Time
}

// NewSimulated returns a simulated clock starting at start.
func NewSimulated(start time.Time) *Simulated {
	return &Simulated{now: start}
}

// Now returns the simulated time.
func (s *Simulated) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// After advances the simulated time by d and returns an already-fired channel.
func (s *Simulated) After(d time.Duration) <-chan time.Time {
	now := s.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the simulated time forward and returns the new time.
func (s *Simulated) Advance(d time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.now = s.now.Add(d)
	}
	return s.now
}
