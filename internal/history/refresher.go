package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/upiwallet/internal/clock"
	"github.com/wolfeidau/upiwallet/internal/telemetry"
	"github.com/wolfeidau/upiwallet/internal/wallet"
)

const (
	// DefaultDelay gives the backend time to make a completed transfer
	// visible before history is re-read.
	DefaultDelay    = 2 * time.Second
	DefaultInterval = 30 * time.Second
	DefaultLimit    = 5
)

// Fetcher reads the transaction history, most recent first.
type Fetcher interface {
	Transactions(ctx context.Context) ([]wallet.Transaction, error)
}

// Refresher keeps a short list of recent transactions up to date. A
// periodic refresh is the backstop; ScheduleRefresh adds one delayed
// refresh after a known change.
type Refresher struct {
	fetcher  Fetcher
	clock    clock.Clock
	delay    time.Duration
	interval time.Duration
	limit    int
	logger   zerolog.Logger

	mu          sync.Mutex
	ctx         context.Context
	gen         uint64
	pending     *clock.Timer
	periodic    *clock.Timer
	recent      []wallet.Transaction
	lastErr     error
	refreshedAt time.Time
	onUpdate    func([]wallet.Transaction)
}

// Option configures a Refresher.
type Option func(*Refresher)

func WithClock(c clock.Clock) Option { return func(r *Refresher) { r.clock = c } }
func WithDelay(d time.Duration) Option { return func(r *Refresher) { r.delay = d } }
func WithInterval(d time.Duration) Option { return func(r *Refresher) { r.interval = d } }
func WithLimit(n int) Option { return func(r *Refresher) { r.limit = n } }
func WithLogger(l zerolog.Logger) Option { return func(r *Refresher) { r.logger = l } }

// NewRefresher creates a stopped refresher.
func NewRefresher(f Fetcher, opts ...Option) *Refresher {
	r := &Refresher{
		fetcher:  f,
		clock:    clock.Real(),
		delay:    DefaultDelay,
		interval: DefaultInterval,
		limit:    DefaultLimit,
		logger:   log.Logger,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnUpdate registers fn to receive the list after every successful
// refresh.
func (r *Refresher) OnUpdate(fn func([]wallet.Transaction)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = fn
}

// Start refreshes now and then every interval until Stop.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	r.stopLocked()
	r.ctx = ctx
	gen := r.gen
	if r.interval > 0 {
		r.periodic = r.clock.AfterFunc(r.interval, func() { r.tick(gen) })
	}
	r.mu.Unlock()

	return r.Refresh(ctx)
}

// ScheduleRefresh arranges one refresh after the delay. Calls made while
// one is already pending are folded into it.
func (r *Refresher) ScheduleRefresh() {
	r.mu.Lock()

	if r.pending != nil {
		r.mu.Unlock()
		return
	}

	if r.delay <= 0 {
		ctx := r.ctx
		r.mu.Unlock()
		go func() { _ = r.Refresh(ctx) }()
		return
	}

	gen := r.gen
	var timer *clock.Timer
	timer = r.clock.AfterFunc(r.delay, func() {
		r.mu.Lock()
		if gen != r.gen || r.pending != timer {
			r.mu.Unlock()
			return
		}
		r.pending = nil
		ctx := r.ctx
		r.mu.Unlock()

		_ = r.Refresh(ctx)
	})
	r.pending = timer
	r.mu.Unlock()
}

// Pending reports whether a delayed refresh is scheduled.
func (r *Refresher) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != nil
}

// Refresh fetches the history now. Failures are kept for LastError and
// leave the previous list in place.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	txns, err := r.fetcher.Transactions(ctx)

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return nil
	}
	r.lastErr = err
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn().Err(err).Msg("failed to refresh transaction history")
		return err
	}
	if r.limit > 0 && len(txns) > r.limit {
		txns = txns[:r.limit]
	}
	r.recent = txns
	r.refreshedAt = r.clock.Now()
	fn := r.onUpdate
	r.mu.Unlock()

	telemetry.GetMetrics().HistoryRefreshes.Add(ctx, 1)
	r.logger.Debug().Int("count", len(txns)).Msg("transaction history refreshed")

	if fn != nil {
		fn(r.Recent())
	}
	return nil
}

// Recent returns a copy of the latest list.
func (r *Refresher) Recent() []wallet.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wallet.Transaction, len(r.recent))
	copy(out, r.recent)
	return out
}

// LastError is the error of the latest refresh, nil if it succeeded.
func (r *Refresher) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// RefreshedAt is when the list was last replaced.
func (r *Refresher) RefreshedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshedAt
}

// Stop cancels the periodic and any pending refresh. Results of
// refreshes already in flight are dropped.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Refresher) stopLocked() {
	r.gen++
	r.pending.Stop()
	r.pending = nil
	r.periodic.Stop()
	r.periodic = nil
}

func (r *Refresher) tick(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	r.periodic = r.clock.AfterFunc(r.interval, func() { r.tick(gen) })
	r.mu.Unlock()

	_ = r.Refresh(ctx)
}
