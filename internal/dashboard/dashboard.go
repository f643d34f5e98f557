// Package dashboard assembles the wallet home view: the balance fetched
// at mount, live balance events, and the recent transaction list.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/upiwallet/internal/clock"
	"github.com/wolfeidau/upiwallet/internal/realtime"
	"github.com/wolfeidau/upiwallet/internal/session"
	"github.com/wolfeidau/upiwallet/internal/wallet"
)

// BalanceSource fetches the balance over REST.
type BalanceSource interface {
	Balance(ctx context.Context) (wallet.Balance, error)
}

// Stream is the live balance channel.
type Stream interface {
	Connect(ctx context.Context, walletID int64, onUpdate func(realtime.BalanceUpdate)) error
	Disconnect()
	State() realtime.State
	OnState(fn func(realtime.State))
	Tracker() *realtime.BalanceTracker
}

// History keeps the recent transaction list fresh.
type History interface {
	Start(ctx context.Context) error
	Stop()
	ScheduleRefresh()
	Recent() []wallet.Transaction
	OnUpdate(fn func([]wallet.Transaction))
}

// Sessions is the part of the session manager the dashboard watches.
type Sessions interface {
	Current() session.Session
	Subscribe(fn func(session.Session)) (cancel func())
}

// View is what the dashboard renders.
type View struct {
	Mounted    bool
	WalletID   int64
	Balance    decimal.Decimal
	Previous   decimal.Decimal
	Change     realtime.Direction
	Recent     []wallet.Transaction
	Live       bool
	UpdatedAt  time.Time
	HistoryErr error
}

// Dashboard owns the subscriptions behind the home view between Mount
// and Unmount.
type Dashboard struct {
	balances BalanceSource
	stream   Stream
	history  History
	sessions Sessions
	clock    clock.Clock
	logger   zerolog.Logger

	mu       sync.Mutex
	gen      uint64
	mounted  bool
	view     View
	unwatch  func()
	onChange func(View)
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithClock sets the clock used to stamp updates.
func WithClock(c clock.Clock) Option { return func(d *Dashboard) { d.clock = c } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(d *Dashboard) { d.logger = l } }

// New creates an unmounted dashboard.
func New(balances BalanceSource, stream Stream, history History, sessions Sessions, opts ...Option) *Dashboard {
	d := &Dashboard{
		balances: balances,
		stream:   stream,
		history:  history,
		sessions: sessions,
		clock:    clock.Real(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	stream.OnState(d.streamChanged)
	return d
}

// OnChange registers fn to receive the view after every change.
func (d *Dashboard) OnChange(fn func(View)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Mount loads the balance, starts the history refresher and opens the
// live channel for the wallet. The dashboard unmounts itself when the
// session ends.
func (d *Dashboard) Mount(ctx context.Context) error {
	if !d.sessions.Current().Authenticated {
		return session.ErrNotAuthenticated
	}

	d.mu.Lock()
	if d.mounted {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	bal, err := d.balances.Balance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}

	d.mu.Lock()
	if d.mounted {
		d.mu.Unlock()
		return nil
	}
	d.gen++
	gen := d.gen
	d.mounted = true
	d.view = View{
		Mounted:   true,
		WalletID:  bal.WalletID,
		Balance:   bal.Amount,
		Previous:  bal.Amount,
		UpdatedAt: d.clock.Now(),
	}
	d.mu.Unlock()

	cancel := d.sessions.Subscribe(func(s session.Session) {
		if !s.Authenticated {
			d.logger.Debug().Msg("session ended, unmounting dashboard")
			d.Unmount()
		}
	})
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		cancel()
		return session.ErrNotAuthenticated
	}
	d.unwatch = cancel
	d.mu.Unlock()

	// The session may have ended between the check above and Subscribe.
	if !d.sessions.Current().Authenticated {
		d.Unmount()
		return session.ErrNotAuthenticated
	}

	d.history.OnUpdate(func(txns []wallet.Transaction) { d.setRecent(gen, txns) })
	if err := d.history.Start(ctx); err != nil {
		d.mu.Lock()
		if gen == d.gen {
			d.view.HistoryErr = err
		}
		d.mu.Unlock()
	}

	d.stream.Tracker().Seed(bal.Amount)
	if err := d.stream.Connect(ctx, bal.WalletID, func(u realtime.BalanceUpdate) { d.applyBalance(gen, u) }); err != nil {
		d.logger.Warn().Err(err).Int64("wallet_id", bal.WalletID).Msg("live balance unavailable")
	}

	d.mu.Lock()
	stale := gen != d.gen
	d.mu.Unlock()
	if stale {
		d.stream.Disconnect()
		d.history.Stop()
		return session.ErrNotAuthenticated
	}

	d.logger.Info().Int64("wallet_id", bal.WalletID).Msg("dashboard mounted")
	d.notify()
	return nil
}

// Unmount disconnects the channel and stops the refresher. Safe to call
// repeatedly.
func (d *Dashboard) Unmount() {
	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		return
	}
	d.gen++
	d.mounted = false
	d.view.Mounted = false
	d.view.Live = false
	unwatch := d.unwatch
	d.unwatch = nil
	d.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	d.stream.Disconnect()
	d.history.Stop()

	d.logger.Debug().Msg("dashboard unmounted")
	d.notify()
}

// View returns the current view.
func (d *Dashboard) View() View {
	d.mu.Lock()
	v := d.view
	mounted := d.mounted
	d.mu.Unlock()

	v.Live = mounted && d.stream.State() == realtime.Connected
	v.Recent = d.history.Recent()
	return v
}

func (d *Dashboard) applyBalance(gen uint64, u realtime.BalanceUpdate) {
	d.mu.Lock()
	if gen != d.gen || u.WalletID != d.view.WalletID {
		d.mu.Unlock()
		return
	}
	if u.HasPrevious {
		d.view.Previous = u.Previous
	} else {
		d.view.Previous = u.Current
	}
	d.view.Balance = u.Current
	d.view.Change = u.Direction
	d.view.UpdatedAt = d.clock.Now()
	d.mu.Unlock()

	d.logger.Debug().Int64("wallet_id", u.WalletID).Stringer("balance", u.Current).Stringer("change", u.Direction).Msg("balance updated")

	d.history.ScheduleRefresh()
	d.notify()
}

func (d *Dashboard) setRecent(gen uint64, _ []wallet.Transaction) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.view.HistoryErr = nil
	d.mu.Unlock()

	d.notify()
}

// streamChanged re-renders when the channel connects or drops in the
// background, so Live is never stale.
func (d *Dashboard) streamChanged(state realtime.State) {
	d.mu.Lock()
	mounted := d.mounted
	d.mu.Unlock()
	if !mounted {
		return
	}

	d.logger.Debug().Stringer("state", state).Msg("balance stream state changed")
	d.notify()
}

func (d *Dashboard) notify() {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()

	if fn != nil {
		fn(d.View())
	}
}
