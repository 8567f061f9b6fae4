// Package clock provides an injectable wall-clock capability so that
// time-dependent logic (attempt expiry, exam availability) can be tested
// deterministically.
package clock

import "time"

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the real wall clock.
var System Clock = systemClock{}

// Fixed returns a clock frozen at t. Intended for tests.
func Fixed(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// FixedClock is a settable clock for tests.
type FixedClock struct {
	t time.Time
}

func (c *FixedClock) Now() time.Time { return c.t }

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) { c.t = t }

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
