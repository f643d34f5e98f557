// Package clock provides an injectable time source so that session
// timers, OTP cooldowns and refresh schedules can be driven
// deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), which only moves when
// Advance is called and runs AfterFunc callbacks synchronously inside
// Advance in deadline order.
package clock

import "time"

// Clock abstracts the parts of the time package the wallet core uses.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d and then calls f. If d <= 0 the call
	// happens immediately (in a new goroutine for Real, synchronously
	// for Fake).
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable scheduled call created by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It returns false if the timer
// already fired or was already stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}
