package realtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/upiwallet/internal/telemetry"
	"golang.org/x/oauth2"
)

// ErrNoSession is returned by Connect when there is no token to
// authenticate the transport with.
var ErrNoSession = errors.New("no active session")

// State is the connection state of a Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Topic is the destination carrying balance events for walletID.
func Topic(walletID int64) string {
	return fmt.Sprintf("/topic/wallet/%d", walletID)
}

// Channel keeps one transport and at most one wallet subscription open,
// and turns balance events into BalanceUpdates.
type Channel struct {
	tokens  oauth2.TokenSource
	dialer  Dialer
	logger  zerolog.Logger
	tracker *BalanceTracker

	mu        sync.Mutex
	gen       uint64
	state     State
	transport Transport
	sub       Subscription
	walletID  int64
	onUpdate  func(BalanceUpdate)
	onState   func(State)
	connects  int
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithTracker shares a balance tracker with the caller.
func WithTracker(t *BalanceTracker) Option {
	return func(c *Channel) { c.tracker = t }
}

// NewChannel creates a disconnected channel.
func NewChannel(tokens oauth2.TokenSource, dialer Dialer, opts ...Option) *Channel {
	c := &Channel{
		tokens: tokens,
		dialer: dialer,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = &BalanceTracker{}
	}
	return c
}

// OnState registers fn to receive every connection state change,
// including reconnects made in the background.
func (c *Channel) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Tracker returns the channel's balance tracker.
func (c *Channel) Tracker() *BalanceTracker { return c.tracker }

// Connect streams balance updates for walletID to onUpdate.
//
// While a transport is open, Connect for the same wallet does nothing,
// and Connect for another wallet moves the single subscription over on
// the existing transport. Otherwise a transport is dialled with the
// current session token and activated; the subscription is (re)made on
// every transport-level connect.
func (c *Channel) Connect(ctx context.Context, walletID int64, onUpdate func(BalanceUpdate)) error {
	c.mu.Lock()

	if c.transport != nil {
		if walletID == c.walletID {
			c.mu.Unlock()
			return nil
		}

		c.logger.Debug().Int64("from", c.walletID).Int64("to", walletID).Msg("switching wallet subscription")
		c.walletID = walletID
		c.onUpdate = onUpdate
		c.tracker.Reset()
		var err error
		if c.state == Connected {
			err = c.resubscribeLocked()
		}
		c.mu.Unlock()
		return err
	}

	tok, err := c.tokens.Token()
	if err != nil || tok.AccessToken == "" {
		c.mu.Unlock()
		return ErrNoSession
	}

	t, err := c.dialer.Dial(tok.AccessToken)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to dial balance stream: %w", err)
	}

	c.gen++
	gen := c.gen
	c.transport = t
	c.walletID = walletID
	c.onUpdate = onUpdate
	prev := c.state
	c.state = Connecting
	c.connects = 0
	c.mu.Unlock()
	c.changed(prev, Connecting)

	err = t.Activate(Handlers{
		OnConnect:    func() { c.connected(ctx, gen) },
		OnDisconnect: func(err error) { c.disconnected(gen, err) },
		OnError:      func(err error) { c.logger.Warn().Err(err).Msg("balance stream error") },
	})
	if err != nil {
		c.mu.Lock()
		prev := c.state
		if c.gen == gen {
			c.reset()
		}
		next := c.state
		c.mu.Unlock()
		c.changed(prev, next)
		return fmt.Errorf("failed to activate balance stream: %w", err)
	}

	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		// Disconnect raced with Activate.
		_ = t.Deactivate()
	}

	return nil
}

// Disconnect drops the subscription and closes the transport. It is
// safe to call at any time, repeatedly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	t, sub, prev := c.transport, c.sub, c.state
	c.reset()
	c.mu.Unlock()
	c.changed(prev, Disconnected)

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Debug().Err(err).Msg("unsubscribe on disconnect")
		}
	}
	if t != nil {
		if err := t.Deactivate(); err != nil {
			c.logger.Debug().Err(err).Msg("deactivate on disconnect")
		}
	}
}

// State returns the connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WalletID returns the wallet currently subscribed, or zero.
func (c *Channel) WalletID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.walletID
}

func (c *Channel) reset() {
	c.gen++
	c.transport = nil
	c.sub = nil
	c.walletID = 0
	c.onUpdate = nil
	c.state = Disconnected
}

func (c *Channel) connected(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	prev := c.state
	if err := c.resubscribeLocked(); err != nil {
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("failed to subscribe to balance topic")
		return
	}

	c.connects++
	if c.connects == 1 {
		telemetry.GetMetrics().RealtimeConnects.Add(ctx, 1)
	} else {
		telemetry.GetMetrics().RealtimeReconnects.Add(ctx, 1)
	}
	c.logger.Info().Int64("wallet_id", c.walletID).Int("connects", c.connects).Msg("balance stream connected")
	c.mu.Unlock()

	c.changed(prev, Connected)
}

func (c *Channel) disconnected(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = Connecting
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("balance stream lost, waiting for reconnect")
	c.changed(prev, Connecting)
}

// changed reports a state change to the OnState callback. Called
// without the lock held.
func (c *Channel) changed(prev, next State) {
	if prev == next {
		return
	}
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(next)
	}
}

// resubscribeLocked drops the previous subscription, if any, and
// subscribes to the current wallet's topic.
func (c *Channel) resubscribeLocked() error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.logger.Debug().Err(err).Msg("unsubscribe previous topic")
		}
		c.sub = nil
	}

	gen, walletID := c.gen, c.walletID
	sub, err := c.transport.Subscribe(Topic(walletID), func(m Message) { c.deliver(gen, walletID, m) })
	if err != nil {
		return err
	}

	c.sub = sub
	c.state = Connected
	return nil
}

func (c *Channel) deliver(gen uint64, walletID int64, m Message) {
	var balance decimal.Decimal
	if body := bytes.TrimSpace(m.Body); len(body) == 0 || bytes.Equal(body, []byte("null")) {
		c.logger.Warn().Str("destination", m.Destination).Msg("dropping empty balance event")
		return
	}
	if err := balance.UnmarshalJSON(bytes.TrimSpace(m.Body)); err != nil {
		c.logger.Warn().Err(err).Str("destination", m.Destination).Msg("dropping malformed balance event")
		return
	}

	c.mu.Lock()
	if gen != c.gen || walletID != c.walletID || c.onUpdate == nil {
		c.mu.Unlock()
		return
	}
	fn := c.onUpdate
	c.mu.Unlock()

	update := c.tracker.Apply(balance)
	update.WalletID = walletID

	telemetry.GetMetrics().RealtimeUpdates.Add(context.Background(), 1)
	fn(update)
}
