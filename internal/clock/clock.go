// Package clock abstracts time for the node core.
//
// The core never sleeps or spawns timers directly. Timed waits (link polling)
// and deferred work (boot counter reset, delayed restarts) go through a Clock
// so tests can drive them deterministically with Fake.
package clock

import "time"

// Clock provides the current time, timed suspensions and scheduled callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc runs f on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// System is the Clock backed by the time package.
type System struct{}

// New returns the system clock.
func New() Clock {
	return System{}
}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// After wraps time.After.
func (System) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// AfterFunc wraps time.AfterFunc.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
