package domain

import "time"

// Clock abstracts time so readiness polling and timestamps can be driven by
// tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// After waits for d to elapse.
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
