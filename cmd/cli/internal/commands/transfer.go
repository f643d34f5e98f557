package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wolfeidau/upiwallet/internal/history"
	"github.com/wolfeidau/upiwallet/internal/transfer"
	"github.com/wolfeidau/upiwallet/internal/wallet"
)

type TransferCmd struct {
	To     string `help:"Recipient UPI id" required:""`
	Amount string `help:"Amount in rupees" required:""`
	Yes    bool   `help:"Skip the confirmation prompt" short:"y"`
}

func (t *TransferCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	if _, err := a.requireSession(); err != nil {
		return err
	}

	refresher := history.NewRefresher(a.wallet, history.WithDelay(a.cfg.RefreshDelay))
	refreshed := make(chan []wallet.Transaction, 1)
	refresher.OnUpdate(func(txns []wallet.Transaction) {
		select {
		case refreshed <- txns:
		default:
		}
	})
	defer refresher.Stop()

	flow := transfer.NewFlow(a.wallet, refresher,
		transfer.WithCooldown(a.cfg.OTPCooldown),
		transfer.WithSessions(a.sessions),
	)

	pin, err := a.prompt.Secret("UPI PIN: ")
	if err != nil {
		return err
	}

	if err := flow.Edit(transfer.Form{To: t.To, Amount: t.Amount, PIN: pin}); err != nil {
		return err
	}
	if err := flow.Review(); err != nil {
		return err
	}

	snap := flow.Snapshot()
	fmt.Printf("Send ₹%s to %s\n", decimal.RequireFromString(strings.TrimSpace(snap.Amount)).StringFixed(2), strings.TrimSpace(snap.To))
	if !t.Yes {
		ok, err := a.prompt.Confirm("Confirm transfer?")
		if err != nil {
			return err
		}
		if !ok {
			flow.Cancel()
			fmt.Println("Cancelled.")
			return nil
		}
	}

	res, err := flow.Confirm(ctx)
	for err == nil && res.Outcome == transfer.ChallengePending {
		res, err = t.challenge(ctx, a, flow, res)
	}
	if err != nil {
		if errors.Is(err, transfer.ErrCancelled) {
			fmt.Println("Cancelled.")
			return nil
		}
		return fmt.Errorf("transfer failed: %w", err)
	}

	fmt.Println(res.Message)

	select {
	case txns := <-refreshed:
		printTransactions(os.Stdout, txns)
	case <-time.After(a.cfg.RefreshDelay + a.cfg.Timeout):
	case <-ctx.Done():
	}
	return nil
}

// challenge runs one round of the OTP prompt. It returns with the flow
// still pending when the user should be asked again.
func (t *TransferCmd) challenge(ctx context.Context, a *app, flow *transfer.Flow, res transfer.Result) (transfer.Result, error) {
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	if res.Ack != "" {
		fmt.Printf("Code sent: %s\n", res.Ack)
	}

	answer, err := a.prompt.Line("Enter OTP ('resend' for a new code, 'cancel' to abort): ")
	if err != nil {
		flow.Cancel()
		return transfer.Result{}, err
	}

	switch strings.ToLower(answer) {
	case "cancel":
		flow.Cancel()
		return transfer.Result{}, transfer.ErrCancelled

	case "resend":
		next, err := flow.Resend(ctx)
		if errors.Is(err, transfer.ErrCooldownActive) {
			fmt.Printf("Resend available in %ds.\n", int(flow.Snapshot().Cooldown.Seconds()))
			return transfer.Result{Outcome: transfer.ChallengePending}, nil
		}
		return next, err

	default:
		next, err := flow.VerifyOTP(ctx, answer)
		if err != nil && next.Outcome == transfer.ChallengePending {
			fmt.Printf("Error: %s\n", verifyMessage(next, err))
			return transfer.Result{Outcome: transfer.ChallengePending}, nil
		}
		return next, err
	}
}

func verifyMessage(res transfer.Result, err error) string {
	var vErr *transfer.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reason
	}
	if res.Message != "" {
		return res.Message
	}
	return err.Error()
}
