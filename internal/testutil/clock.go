package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a StepClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a wall clock that advances by a fixed step on every reading,
// so measured runtimes are exact multiples of the step.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu       sync.Mutex
	now      time.Time
	step     time.Duration
	readings int
}

// NewStepClock creates a clock whose first reading is start.
// A zero start selects Epoch.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if start.IsZero() {
		start = Epoch
	}
	return &StepClock{now: start, step: step}
}

// Now returns the current reading and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.now
	c.now = c.now.Add(c.step)
	c.readings++
	return cur
}

// Readings returns how many times Now has been called.
func (c *StepClock) Readings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readings
}
