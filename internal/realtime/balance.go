package realtime

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Direction is how the balance moved.
type Direction int

const (
	Unchanged Direction = iota
	Credited
	Debited
)

func (d Direction) String() string {
	switch d {
	case Credited:
		return "credited"
	case Debited:
		return "debited"
	default:
		return "unchanged"
	}
}

// BalanceUpdate is one accepted balance change. Previous and Delta are
// only meaningful when HasPrevious is set.
type BalanceUpdate struct {
	WalletID    int64
	Previous    decimal.Decimal
	Current     decimal.Decimal
	Delta       decimal.Decimal
	HasPrevious bool
	Direction   Direction
}

// BalanceTracker remembers the last displayed balance so each update can
// say by how much it moved.
type BalanceTracker struct {
	mu      sync.Mutex
	current decimal.Decimal
	known   bool
}

// Seed sets the balance without producing an update, typically from the
// REST balance fetched at mount.
func (b *BalanceTracker) Seed(v decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = v
	b.known = true
}

// Apply overwrites the balance with v and reports the change.
func (b *BalanceTracker) Apply(v decimal.Decimal) BalanceUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := BalanceUpdate{Current: v, Previous: b.current, HasPrevious: b.known}
	if b.known {
		u.Delta = v.Sub(b.current)
		switch u.Delta.Sign() {
		case 1:
			u.Direction = Credited
		case -1:
			u.Direction = Debited
		}
	}

	b.current = v
	b.known = true
	return u
}

// Reset forgets the balance.
func (b *BalanceTracker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = decimal.Decimal{}
	b.known = false
}

// Current returns the last known balance.
func (b *BalanceTracker) Current() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.known
}
