package session

import (
	"sync"
	"time"

	"github.com/wolfeidau/upiwallet/internal/clock"
)

// TimerState is the state of the session timer pair.
type TimerState int

const (
	// TimerIdle means nothing is scheduled.
	TimerIdle TimerState = iota
	// TimerArmed means the warning and the logout are both pending.
	TimerArmed
	// TimerWarned means the warning has been delivered and only the
	// logout is pending.
	TimerWarned
	// TimerExpired means the logout fired.
	TimerExpired
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerArmed:
		return "armed"
	case TimerWarned:
		return "warned"
	case TimerExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Timers owns the warn timer and the logout timer for one session.
// Arm always cancels what was there before, and a callback that
// belongs to a cancelled arming is dropped even if its timer already
// fired. The expiry callback is handed the expiry it was armed for so
// the receiver can tell it apart from a later arming.
type Timers struct {
	clock      clock.Clock
	warnWindow time.Duration
	onWarn     func(remaining time.Duration)
	onExpire   func(expiresAt time.Time)

	mu        sync.Mutex
	gen       uint64
	state     TimerState
	expiresAt time.Time
	warn      *clock.Timer
	logout    *clock.Timer
}

// NewTimers creates an idle timer pair.
func NewTimers(clk clock.Clock, warnWindow time.Duration, onWarn func(time.Duration), onExpire func(time.Time)) *Timers {
	return &Timers{
		clock:      clk,
		warnWindow: warnWindow,
		onWarn:     onWarn,
		onExpire:   onExpire,
	}
}

// Arm schedules the warning and the logout for a session expiring at
// expiresAt. It returns false, leaving the pair idle, when expiresAt is
// not in the future.
//
// When expiresAt is already inside the warn window the warning is
// delivered before Arm returns.
func (t *Timers) Arm(expiresAt time.Time) bool {
	t.mu.Lock()
	t.cancelLocked()

	untilExpiry := expiresAt.Sub(t.clock.Now())
	if untilExpiry <= 0 {
		t.mu.Unlock()
		return false
	}

	gen := t.gen
	t.expiresAt = expiresAt
	t.state = TimerArmed

	warnNow := false
	if untilWarn := untilExpiry - t.warnWindow; untilWarn > 0 {
		t.warn = t.clock.AfterFunc(untilWarn, func() { t.fireWarn(gen) })
	} else {
		t.state = TimerWarned
		warnNow = true
	}
	t.logout = t.clock.AfterFunc(untilExpiry, func() { t.fireExpire(gen) })
	t.mu.Unlock()

	if warnNow {
		t.onWarn(untilExpiry)
	}
	return true
}

// Cancel stops both timers. Safe to call when idle.
func (t *Timers) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// State returns the current state of the pair.
func (t *Timers) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pending reports which timers are still scheduled.
func (t *Timers) Pending() (warn, logout bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warn != nil, t.logout != nil
}

// ExpiresAt returns the expiry the pair is armed for, or zero when idle.
func (t *Timers) ExpiresAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TimerIdle {
		return time.Time{}
	}
	return t.expiresAt
}

func (t *Timers) cancelLocked() {
	t.gen++
	if t.warn != nil {
		t.warn.Stop()
		t.warn = nil
	}
	if t.logout != nil {
		t.logout.Stop()
		t.logout = nil
	}
	t.state = TimerIdle
	t.expiresAt = time.Time{}
}

func (t *Timers) fireWarn(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != TimerArmed {
		t.mu.Unlock()
		return
	}
	t.state = TimerWarned
	t.warn = nil
	remaining := t.expiresAt.Sub(t.clock.Now())
	t.mu.Unlock()

	t.onWarn(remaining)
}

func (t *Timers) fireExpire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state == TimerIdle || t.state == TimerExpired {
		t.mu.Unlock()
		return
	}
	t.state = TimerExpired
	expiresAt := t.expiresAt
	t.logout = nil
	if t.warn != nil {
		t.warn.Stop()
		t.warn = nil
	}
	t.mu.Unlock()

	t.onExpire(expiresAt)
}
