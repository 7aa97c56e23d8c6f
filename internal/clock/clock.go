// Package clock provides the time source used by session timers.
//
// Everything that schedules work (reconnect delays, keep-alive ticks, manual
// action loops) goes through a Clock so tests can drive time explicitly.
package clock

import "time"

// Timer is a handle on a scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented a future run.
	Stop() bool
}

// Clock is a testable time source with one-shot scheduling.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is a Clock backed by the time package.
type Real struct{}

// Now implements Clock.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Every runs f every period until the returned Timer is stopped.
// The first run happens one period after the call.
func Every(c Clock, period time.Duration, f func()) Timer {
	r := &repeater{clock: c, period: period, f: f}
	r.schedule()
	return r
}

// Group combines timers so they can be stored and stopped as one.
type Group []Timer

// Stop implements Timer.
func (g Group) Stop() bool {
	stopped := false
	for _, t := range g {
		if t != nil && t.Stop() {
			stopped = true
		}
	}
	return stopped
}
