package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic wall clock for tests.
//
// Every Now() call advances the clock by a fixed step, so timestamps are
// strictly increasing and queue order follows call order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// DefaultClockStart is 2024-01-01 09:00 UTC.
var DefaultClockStart = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// NewClock creates a clock at start that advances by step per Now() call.
// A zero start uses DefaultClockStart; a zero step uses one millisecond.
func NewClock(start time.Time, step time.Duration) *Clock {
	if start.IsZero() {
		start = DefaultClockStart
	}
	if step <= 0 {
		step = time.Millisecond
	}
	return &Clock{now: start, step: step}
}

// Now advances the clock by one step and returns the new time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Current returns the time without advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
