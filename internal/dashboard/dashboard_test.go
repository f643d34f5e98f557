package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/upiwallet/internal/auth"
	"github.com/wolfeidau/upiwallet/internal/clock"
	"github.com/wolfeidau/upiwallet/internal/history"
	"github.com/wolfeidau/upiwallet/internal/realtime"
	"github.com/wolfeidau/upiwallet/internal/session"
	"github.com/wolfeidau/upiwallet/internal/store"
	"github.com/wolfeidau/upiwallet/internal/wallet"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type stubWallet struct {
	mu      sync.Mutex
	balance wallet.Balance
	err     error
	fetches int
	txns    []wallet.Transaction
}

func (s *stubWallet) Balance(context.Context) (wallet.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, s.err
}

func (s *stubWallet) Transactions(context.Context) ([]wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.txns, nil
}

func (s *stubWallet) historyFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// fakeStream connects immediately and lets the test push balances.
type fakeStream struct {
	mu          sync.Mutex
	tracker     realtime.BalanceTracker
	walletID    int64
	onUpdate    func(realtime.BalanceUpdate)
	state       realtime.State
	onState     func(realtime.State)
	connects    int
	disconnects int
	connectErr  error

	// pending leaves the stream connecting after Connect.
	pending bool
}

func (f *fakeStream) Connect(_ context.Context, walletID int64, onUpdate func(realtime.BalanceUpdate)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.walletID = walletID
	f.onUpdate = onUpdate
	f.state = realtime.Connected
	if f.pending {
		f.state = realtime.Connecting
	}
	return nil
}

func (f *fakeStream) OnState(fn func(realtime.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

// setState moves the stream as a background reconnect would.
func (f *fakeStream) setState(state realtime.State) {
	f.mu.Lock()
	f.state = state
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (f *fakeStream) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.onUpdate = nil
	f.state = realtime.Disconnected
}

func (f *fakeStream) State() realtime.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) Tracker() *realtime.BalanceTracker { return &f.tracker }

func (f *fakeStream) push(amount string) {
	f.mu.Lock()
	fn, walletID := f.onUpdate, f.walletID
	f.mu.Unlock()
	if fn == nil {
		return
	}
	u := f.tracker.Apply(decimal.RequireFromString(amount))
	u.WalletID = walletID
	fn(u)
}

type fixture struct {
	clock    *clock.FakeClock
	sessions *session.Manager
	wallet   *stubWallet
	stream   *fakeStream
	history  *history.Refresher
	dash     *Dashboard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock: clock.Fake(epoch),
		wallet: &stubWallet{
			balance: wallet.Balance{WalletID: 42, Amount: decimal.RequireFromString("1000.00")},
			txns:    []wallet.Transaction{{ID: 7, Type: wallet.Credit, Amount: decimal.NewFromInt(50)}},
		},
		stream: &fakeStream{},
	}
	f.sessions = session.NewManager(store.NewMemoryTokenStore(),
		session.WithClock(f.clock),
		session.WithLogger(zerolog.Nop()),
	)
	f.history = history.NewRefresher(f.wallet,
		history.WithClock(f.clock),
		history.WithLogger(zerolog.Nop()),
	)
	f.dash = New(f.wallet, f.stream, f.history, f.sessions,
		WithClock(f.clock),
		WithLogger(zerolog.Nop()),
	)
	return f
}

func (f *fixture) login(t *testing.T, ttl time.Duration) {
	t.Helper()
	raw, err := auth.IssueToken([]byte("dashboard-test-secret-32-bytes!!"), "asha@example.com", "ROLE_USER", epoch.Add(ttl))
	require.NoError(t, err)
	_, err = f.sessions.Login(raw)
	require.NoError(t, err)
}

func TestDashboard_MountRequiresSession(t *testing.T) {
	f := newFixture(t)

	err := f.dash.Mount(context.Background())
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.Zero(t, f.stream.connects)
	assert.False(t, f.dash.View().Mounted)
}

func TestDashboard_Mount(t *testing.T) {
	f := newFixture(t)
	f.login(t, time.Hour)

	require.NoError(t, f.dash.Mount(context.Background()))

	v := f.dash.View()
	assert.True(t, v.Mounted)
	assert.True(t, v.Live)
	assert.Equal(t, int64(42), v.WalletID)
	assert.Equal(t, "1000", v.Balance.String())
	assert.Equal(t, realtime.Unchanged, v.Change)
	require.Len(t, v.Recent, 1)
	assert.Equal(t, int64(7), v.Recent[0].ID)
	assert.Equal(t, 1, f.wallet.historyFetches())
	assert.Equal(t, int64(42), f.stream.walletID)

	// Mounting again keeps the one connection.
	require.NoError(t, f.dash.Mount(context.Background()))
	assert.Equal(t, 1, f.stream.connects)
}

func TestDashboard_LiveFollowsStream(t *testing.T) {
	f := newFixture(t)
	f.stream.pending = true
	f.login(t, time.Hour)
	require.NoError(t, f.dash.Mount(context.Background()))
	assert.False(t, f.dash.View().Live)

	var views []View
	f.dash.OnChange(func(v View) { views = append(views, v) })

	f.stream.setState(realtime.Connected)
	require.Len(t, views, 1)
	assert.True(t, views[0].Live)

	f.stream.setState(realtime.Connecting)
	require.Len(t, views, 2)
	assert.False(t, views[1].Live)

	f.dash.Unmount()
	views = nil
	f.stream.setState(realtime.Connected)
	assert.Empty(t, views)
}

func TestDashboard_BalanceEvent(t *testing.T) {
	f := newFixture(t)
	f.login(t, time.Hour)
	require.NoError(t, f.dash.Mount(context.Background()))

	var views []View
	f.dash.OnChange(func(v View) { views = append(views, v) })

	f.stream.push("750.00")

	v := f.dash.View()
	assert.Equal(t, "750", v.Balance.String())
	assert.Equal(t, "1000", v.Previous.String())
	assert.Equal(t, realtime.Debited, v.Change)
	require.Len(t, views, 1)
	assert.Equal(t, realtime.Debited, views[0].Change)

	// The event schedules one delayed history read.
	assert.True(t, f.history.Pending())
	f.stream.push("800.00")
	assert.Equal(t, realtime.Credited, f.dash.View().Change)

	f.clock.Advance(history.DefaultDelay)
	assert.Equal(t, 2, f.wallet.historyFetches())
	assert.False(t, f.history.Pending())
}

func TestDashboard_PeriodicHistory(t *testing.T) {
	f := newFixture(t)
	f.login(t, 2*time.Hour)
	require.NoError(t, f.dash.Mount(context.Background()))

	f.clock.Advance(3 * history.DefaultInterval)
	assert.Equal(t, 4, f.wallet.historyFetches())
}

func TestDashboard_Unmount(t *testing.T) {
	f := newFixture(t)
	f.login(t, time.Hour)
	require.NoError(t, f.dash.Mount(context.Background()))

	f.dash.Unmount()
	f.dash.Unmount()

	v := f.dash.View()
	assert.False(t, v.Mounted)
	assert.False(t, v.Live)
	assert.Equal(t, 1, f.stream.disconnects)

	f.clock.Advance(10 * history.DefaultInterval)
	assert.Equal(t, 1, f.wallet.historyFetches())
}

func TestDashboard_UnmountsWhenSessionEnds(t *testing.T) {
	t.Run("logout", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, time.Hour)
		require.NoError(t, f.dash.Mount(context.Background()))

		f.sessions.Logout()

		assert.False(t, f.dash.View().Mounted)
		assert.Equal(t, 1, f.stream.disconnects)
	})

	t.Run("expiry", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, 10*time.Minute)
		require.NoError(t, f.dash.Mount(context.Background()))

		f.clock.Advance(10 * time.Minute)

		assert.False(t, f.sessions.Current().Authenticated)
		assert.False(t, f.dash.View().Mounted)
		assert.Equal(t, 1, f.stream.disconnects)
	})
}

func TestDashboard_MountFailures(t *testing.T) {
	t.Run("balance unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, time.Hour)
		f.wallet.err = errors.New("service unavailable")

		err := f.dash.Mount(context.Background())
		require.Error(t, err)
		assert.False(t, f.dash.View().Mounted)
		assert.Zero(t, f.stream.connects)
	})

	t.Run("stream unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, time.Hour)
		f.stream.connectErr = realtime.ErrNoSession

		require.NoError(t, f.dash.Mount(context.Background()))
		v := f.dash.View()
		assert.True(t, v.Mounted)
		assert.False(t, v.Live)
		assert.Equal(t, "1000", v.Balance.String())
	})
}
