package transfer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/upiwallet/internal/clock"
	"github.com/wolfeidau/upiwallet/internal/session"
	"github.com/wolfeidau/upiwallet/internal/telemetry"
	"github.com/wolfeidau/upiwallet/internal/wallet"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultCooldown is how long resend stays disabled after a challenge.
const DefaultCooldown = 30 * time.Second

// Submitter sends a transfer to the wallet service.
type Submitter interface {
	Transfer(ctx context.Context, req wallet.TransferRequest) (wallet.TransferResult, error)
}

// HistoryScheduler is told once per completed transfer so history can
// be re-read after the backend catches up.
type HistoryScheduler interface {
	ScheduleRefresh()
}

// Sessions reports the current session.
type Sessions interface {
	Current() session.Session
}

// Result is what a submission ended in.
type Result struct {
	Outcome State
	Message string
	Ack     string
}

// Snapshot is a read-only view of the flow for rendering.
type Snapshot struct {
	State      State
	To         string
	Amount     string
	PINEntered bool
	Message    string
	Ack        string
	Err        error
	Cooldown   time.Duration
	CanResend  bool
}

// Flow drives one transfer from draft to completion, including the OTP
// step-up the service may ask for.
type Flow struct {
	submitter Submitter
	history   HistoryScheduler
	sessions  Sessions
	clock     clock.Clock
	cooldown  time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	state    State
	form     Form
	amount   decimal.Decimal
	message  string
	ack      string
	lastErr  error
	gen      uint64
	left     time.Duration
	cdTimer  *clock.Timer
	cdGen    uint64
	onChange func(Snapshot)
}

// Option configures a Flow.
type Option func(*Flow)

// WithClock sets the clock driving the resend cooldown.
func WithClock(c clock.Clock) Option { return func(f *Flow) { f.clock = c } }

// WithCooldown sets the resend cooldown.
func WithCooldown(d time.Duration) Option { return func(f *Flow) { f.cooldown = d } }

// WithSessions makes submissions require an authenticated session.
func WithSessions(s Sessions) Option { return func(f *Flow) { f.sessions = s } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(f *Flow) { f.logger = l } }

// NewFlow creates a flow in Draft. history may be nil.
func NewFlow(submitter Submitter, history HistoryScheduler, opts ...Option) *Flow {
	f := &Flow{
		submitter: submitter,
		history:   history,
		clock:     clock.Real(),
		cooldown:  DefaultCooldown,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// OnChange registers fn to receive a snapshot after every change.
func (f *Flow) OnChange(fn func(Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

// Snapshot returns the current view.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	return Snapshot{
		State:      f.state,
		To:         f.form.To,
		Amount:     f.form.Amount,
		PINEntered: f.form.PIN != "",
		Message:    f.message,
		Ack:        f.ack,
		Err:        f.lastErr,
		Cooldown:   f.left,
		CanResend:  f.state == ChallengePending && f.left <= 0,
	}
}

// Edit replaces the form. Only allowed in Draft.
func (f *Flow) Edit(form Form) error {
	f.mu.Lock()
	if f.state != Draft {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.form = form
	f.lastErr = nil
	f.mu.Unlock()

	f.notify()
	return nil
}

// Review validates the form and moves to Confirming.
func (f *Flow) Review() error {
	f.mu.Lock()
	if f.state != Draft {
		f.mu.Unlock()
		return ErrInvalidState
	}

	amount, err := f.form.validate()
	if err != nil {
		f.lastErr = err
		f.mu.Unlock()
		f.notify()
		return err
	}

	f.amount = amount
	f.lastErr = nil
	f.message = ""
	f.state = Confirming
	f.mu.Unlock()

	f.notify()
	return nil
}

// Back returns from Confirming to Draft keeping the form.
func (f *Flow) Back() error {
	f.mu.Lock()
	if f.state != Confirming {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.state = Draft
	f.mu.Unlock()

	f.notify()
	return nil
}

// Confirm submits the reviewed transfer.
func (f *Flow) Confirm(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if err := f.checkLocked(Confirming); err != nil {
		f.mu.Unlock()
		return Result{Outcome: f.state}, err
	}
	req, gen := f.beginLocked(Submitted, "")
	f.mu.Unlock()

	f.notify()
	f.logger.Info().Str("to", req.To).Stringer("amount", req.Amount).Msg("submitting transfer")

	res, err := f.submitter.Transfer(ctx, req)
	return f.settle(ctx, gen, res, err, false)
}

// VerifyOTP answers the challenge. A code the service rejects leaves the
// flow waiting for another attempt.
func (f *Flow) VerifyOTP(ctx context.Context, otp string) (Result, error) {
	f.mu.Lock()
	if err := f.checkLocked(ChallengePending); err != nil {
		f.mu.Unlock()
		return Result{Outcome: f.state}, err
	}
	if !fourDigits(otp) {
		err := &ValidationError{Field: "otp", Reason: "OTP must be exactly 4 digits"}
		f.lastErr = err
		f.mu.Unlock()
		f.notify()
		return Result{Outcome: ChallengePending}, err
	}
	req, gen := f.beginLocked(Verifying, otp)
	f.mu.Unlock()

	f.notify()

	res, err := f.submitter.Transfer(ctx, req)
	return f.settle(ctx, gen, res, err, true)
}

// Resend asks for a new challenge once the cooldown has run out.
func (f *Flow) Resend(ctx context.Context) (Result, error) {
	f.mu.Lock()
	if err := f.checkLocked(ChallengePending); err != nil {
		f.mu.Unlock()
		return Result{Outcome: f.state}, err
	}
	if f.left > 0 {
		f.mu.Unlock()
		return Result{Outcome: ChallengePending}, ErrCooldownActive
	}
	req, gen := f.beginLocked(Submitted, "")
	f.mu.Unlock()

	f.notify()

	res, err := f.submitter.Transfer(ctx, req)
	return f.settle(ctx, gen, res, err, false)
}

// Cancel abandons the transfer and starts a blank draft. The answer to
// a request still in flight is ignored.
func (f *Flow) Cancel() {
	f.mu.Lock()
	f.clearLocked()
	f.mu.Unlock()

	f.notify()
}

// Reset starts a blank draft after a completed transfer.
func (f *Flow) Reset() error {
	f.mu.Lock()
	if f.state != Succeeded {
		f.mu.Unlock()
		return ErrInvalidState
	}
	f.clearLocked()
	f.mu.Unlock()

	f.notify()
	return nil
}

func (f *Flow) checkLocked(want State) error {
	if f.state.inFlight() {
		return ErrBusy
	}
	if f.state != want {
		return ErrInvalidState
	}
	if f.sessions != nil && !f.sessions.Current().Authenticated {
		return session.ErrNotAuthenticated
	}
	return nil
}

func (f *Flow) beginLocked(next State, otp string) (wallet.TransferRequest, uint64) {
	f.state = next
	f.lastErr = nil
	f.gen++
	return wallet.TransferRequest{
		To:     strings.TrimSpace(f.form.To),
		Amount: f.amount,
		PIN:    f.form.PIN,
		OTP:    otp,
	}, f.gen
}

func (f *Flow) settle(ctx context.Context, gen uint64, res wallet.TransferResult, err error, verifying bool) (Result, error) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		f.logger.Debug().Msg("discarding response for cancelled transfer")
		return Result{Outcome: Draft}, ErrCancelled
	}

	var (
		result  Result
		outcome string
	)

	switch {
	case err == nil && res.Outcome == wallet.TransferCompleted:
		f.state = Succeeded
		f.message = res.Message
		if f.message == "" {
			f.message = "Transfer successful"
		}
		f.ack = ""
		f.form.PIN = ""
		f.stopCooldownLocked()
		result = Result{Outcome: Succeeded, Message: f.message}
		outcome = "succeeded"

	case err == nil && res.Outcome == wallet.ChallengeRequired:
		f.state = ChallengePending
		f.message = res.Message
		f.ack = res.Ack
		f.startCooldownLocked()
		result = Result{Outcome: ChallengePending, Message: res.Message, Ack: res.Ack}
		outcome = "challenged"

	case verifying && otpRejected(err):
		f.state = ChallengePending
		f.lastErr = err
		f.message = failureMessage(err, "Invalid OTP")
		result = Result{Outcome: ChallengePending, Message: f.message, Ack: f.ack}
		outcome = "otp_rejected"

	default:
		f.state = Draft
		f.lastErr = err
		f.message = failureMessage(err, "Transfer failed")
		f.ack = ""
		f.stopCooldownLocked()
		result = Result{Outcome: Failed, Message: f.message}
		outcome = "failed"
	}
	f.mu.Unlock()

	telemetry.GetMetrics().TransferOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
	f.logger.Info().Str("outcome", outcome).Err(err).Msg("transfer settled")

	if result.Outcome == Succeeded && f.history != nil {
		f.history.ScheduleRefresh()
	}

	f.notify()

	if result.Outcome == Failed && err == nil {
		err = errors.New(result.Message)
	}
	return result, err
}

// otpRejected reports whether the service refused the code itself, as
// opposed to the request failing.
func otpRejected(err error) bool {
	var apiErr *wallet.APIError
	return errors.As(err, &apiErr) && apiErr.Rejected() && !errors.Is(err, wallet.ErrUnauthorized)
}

func failureMessage(err error, fallback string) string {
	var apiErr *wallet.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func (f *Flow) clearLocked() {
	f.gen++
	f.stopCooldownLocked()
	f.state = Draft
	f.form = Form{}
	f.amount = decimal.Decimal{}
	f.message = ""
	f.ack = ""
	f.lastErr = nil
}

func (f *Flow) startCooldownLocked() {
	f.stopCooldownLocked()
	if f.cooldown <= 0 {
		return
	}
	f.left = f.cooldown
	gen := f.cdGen
	f.cdTimer = f.clock.AfterFunc(time.Second, func() { f.tick(gen) })
}

func (f *Flow) stopCooldownLocked() {
	f.cdGen++
	f.cdTimer.Stop()
	f.cdTimer = nil
	f.left = 0
}

func (f *Flow) tick(gen uint64) {
	f.mu.Lock()
	if gen != f.cdGen {
		f.mu.Unlock()
		return
	}
	f.left -= time.Second
	if f.left > 0 {
		f.cdTimer = f.clock.AfterFunc(time.Second, func() { f.tick(gen) })
	} else {
		f.left = 0
		f.cdTimer = nil
	}
	f.mu.Unlock()

	f.notify()
}

func (f *Flow) notify() {
	f.mu.Lock()
	fn := f.onChange
	snap := f.snapshotLocked()
	f.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}
