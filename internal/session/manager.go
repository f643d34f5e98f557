package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/upiwallet/internal/auth"
	"github.com/wolfeidau/upiwallet/internal/clock"
	"github.com/wolfeidau/upiwallet/internal/store"
	"github.com/wolfeidau/upiwallet/internal/telemetry"
	"golang.org/x/oauth2"
)

// DefaultWarnWindow is how long before expiry the user is warned.
const DefaultWarnWindow = 5 * time.Minute

var (
	// ErrNotAuthenticated is returned when a token is needed but no
	// session is current.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrEmptyToken is returned by Login for an empty token.
	ErrEmptyToken = errors.New("empty token")

	// ErrTokenExpired is returned by Login for a token whose expiry has
	// already passed.
	ErrTokenExpired = errors.New("token already expired")
)

// Session is a snapshot of the authenticated context.
type Session struct {
	RawToken      string
	Subject       string
	Role          string
	ExpiresAt     time.Time
	Authenticated bool
	Admin         bool
	AdminRole     auth.Role

	// Restored is false until the durable slot has been checked, so
	// callers can tell "not yet checked" apart from "checked, signed out".
	Restored bool
}

// Fingerprint identifies the session token in logs.
func (s Session) Fingerprint() string {
	return auth.Fingerprint(s.RawToken)
}

// Manager owns the current session: it restores it from the durable
// slot, adopts new tokens on login, and forces a logout at expiry.
type Manager struct {
	tokens     store.TokenStore
	clock      clock.Clock
	notifier   Notifier
	logger     zerolog.Logger
	warnWindow time.Duration
	timers     *Timers

	mu        sync.RWMutex
	current   Session
	listeners map[int]func(Session)
	nextID    int
}

var _ oauth2.TokenSource = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for expiry checks and timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithWarnWindow sets how long before expiry the warning fires.
func WithWarnWindow(d time.Duration) Option {
	return func(m *Manager) { m.warnWindow = d }
}

// WithNotifier sets the receiver of session notices.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over the given token slot. The session
// is unrestored until Restore is called.
func NewManager(tokens store.TokenStore, opts ...Option) *Manager {
	m := &Manager{
		tokens:     tokens,
		clock:      clock.Real(),
		logger:     log.Logger,
		warnWindow: DefaultWarnWindow,
		listeners:  make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = LogNotifier{Logger: m.logger}
	}

	m.timers = NewTimers(m.clock, m.warnWindow, m.notifier.SessionExpiring, m.expire)

	return m
}

// Restore adopts the token in the durable slot if it is still valid.
// It never fails: a missing, unreadable, undecodable or expired token
// leaves the session signed out. The returned session is always marked
// Restored.
func (m *Manager) Restore(ctx context.Context) Session {
	raw, err := m.tokens.Load()
	if err != nil && !errors.Is(err, store.ErrNoToken) {
		m.logger.Warn().Err(err).Msg("failed to read stored token, starting signed out")
	}

	if raw == "" {
		return m.set(Session{Restored: true})
	}

	if auth.Expired(raw, m.clock.Now()) {
		m.logger.Info().
			Str("fingerprint", auth.Fingerprint(raw)).
			Msg("stored token expired or unreadable, discarding")
		if err := m.tokens.Clear(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to clear stored token")
		}
		return m.set(Session{Restored: true})
	}

	sess := m.set(m.decode(raw))
	m.timers.Arm(sess.ExpiresAt)

	m.logger.Info().
		Str("subject", sess.Subject).
		Str("fingerprint", sess.Fingerprint()).
		Time("expires_at", sess.ExpiresAt).
		Msg("session restored")

	return m.Current()
}

// Login persists raw, adopts it as the current session and arms the
// expiry timers. A token whose claims cannot be decoded is still
// adopted, without privileges and without timers; only a decodable
// expiry in the past is rejected.
func (m *Manager) Login(raw string) (Session, error) {
	if raw == "" {
		return m.Current(), ErrEmptyToken
	}

	if id, err := auth.Identify(raw); err == nil && !id.ExpiresAt.After(m.clock.Now()) {
		return m.Current(), ErrTokenExpired
	}

	m.mu.Lock()
	if err := m.tokens.Save(raw); err != nil {
		m.mu.Unlock()
		return m.Current(), fmt.Errorf("failed to persist token: %w", err)
	}
	sess := m.decode(raw)
	m.current = sess
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.notify(listeners, sess)

	if sess.ExpiresAt.IsZero() {
		m.timers.Cancel()
	} else {
		m.timers.Arm(sess.ExpiresAt)
	}

	telemetry.GetMetrics().SessionLogins.Add(context.Background(), 1)

	m.logger.Info().
		Str("subject", sess.Subject).
		Str("role", sess.Role).
		Bool("admin", sess.Admin).
		Str("fingerprint", sess.Fingerprint()).
		Msg("logged in")

	return m.Current(), nil
}

// Logout cancels the timers, clears the durable slot and signs out.
// Calling it while signed out does nothing.
func (m *Manager) Logout() {
	m.logout(func(Session) bool { return true })
}

// logout signs out if match accepts the current session. The check and
// the clear happen under one lock so a session adopted in between is
// never cleared.
func (m *Manager) logout(match func(Session) bool) bool {
	m.mu.Lock()
	if !match(m.current) {
		m.mu.Unlock()
		return false
	}

	m.timers.Cancel()
	if m.current.RawToken == "" {
		m.mu.Unlock()
		return false
	}

	if err := m.tokens.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear stored token")
	}
	sess := Session{Restored: true}
	m.current = sess
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.notify(listeners, sess)

	telemetry.GetMetrics().SessionLogouts.Add(context.Background(), 1)
	m.logger.Info().Msg("logged out")
	return true
}

// Current returns a snapshot of the session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Token implements oauth2.TokenSource with the current bearer token.
func (m *Manager) Token() (*oauth2.Token, error) {
	sess := m.Current()
	if !sess.Authenticated {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken: sess.RawToken,
		TokenType:   "Bearer",
		Expiry:      sess.ExpiresAt,
	}, nil
}

// Subscribe registers fn to receive every session transition. The
// returned function removes the subscription.
func (m *Manager) Subscribe(fn func(Session)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// TimerState exposes the state of the expiry timers.
func (m *Manager) TimerState() TimerState {
	return m.timers.State()
}

// expire is the logout timer callback. It only ends the session the
// timers were armed for.
func (m *Manager) expire(expiresAt time.Time) {
	armedFor := func(sess Session) bool {
		return sess.Authenticated && sess.ExpiresAt.Equal(expiresAt)
	}

	sess := m.Current()
	if !armedFor(sess) {
		m.logger.Debug().Time("expires_at", expiresAt).Msg("ignoring expiry of a replaced session")
		return
	}

	m.logger.Info().Str("fingerprint", sess.Fingerprint()).Msg("session expired")
	m.notifier.SessionExpired()
	telemetry.GetMetrics().SessionExpired.Add(context.Background(), 1)
	m.logout(armedFor)
}

// decode derives a session from raw. Claims that cannot be decoded
// leave the role fields at their non-privileged defaults.
func (m *Manager) decode(raw string) Session {
	sess := Session{
		RawToken:      raw,
		Authenticated: true,
		Restored:      true,
	}

	id, err := auth.Identify(raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("token claims unreadable, continuing without privileges")
		return sess
	}

	sess.Subject = id.Subject
	sess.Role = id.Role
	sess.ExpiresAt = id.ExpiresAt
	if role, ok := auth.AdminRole(id.Role); ok {
		sess.Admin = true
		sess.AdminRole = role
	}

	return sess
}

// set replaces the current session and notifies listeners.
func (m *Manager) set(sess Session) Session {
	m.mu.Lock()
	m.current = sess
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.notify(listeners, sess)

	return sess
}

func (m *Manager) listenersLocked() []func(Session) {
	listeners := make([]func(Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func (m *Manager) notify(listeners []func(Session), sess Session) {
	for _, fn := range listeners {
		fn(sess)
	}
}
