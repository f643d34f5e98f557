package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/wolfeidau/upiwallet/internal/dashboard"
	"github.com/wolfeidau/upiwallet/internal/history"
	"github.com/wolfeidau/upiwallet/internal/realtime"
	"github.com/wolfeidau/upiwallet/internal/realtime/stomp"
	"github.com/wolfeidau/upiwallet/internal/session"
)

type WatchCmd struct{}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals, session.WithNotifier(consoleNotifier{out: os.Stderr}))
	if err != nil {
		return err
	}
	if _, err := a.requireSession(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := a.sessions.Subscribe(func(s session.Session) {
		if !s.Authenticated {
			cancel()
		}
	})
	defer stop()

	channel := realtime.NewChannel(a.sessions, stomp.NewDialer(stomp.Config{
		URL:            a.cfg.Stream(),
		ReconnectDelay: a.cfg.ReconnectDelay,
	}))
	refresher := history.NewRefresher(a.wallet,
		history.WithDelay(a.cfg.RefreshDelay),
		history.WithInterval(a.cfg.RefreshInterval),
	)

	dash := dashboard.New(a.wallet, channel, refresher, a.sessions)
	r := &renderer{out: os.Stdout}
	dash.OnChange(r.render)

	if err := dash.Mount(ctx); err != nil {
		return fmt.Errorf("failed to load dashboard: %w", err)
	}
	defer dash.Unmount()

	fmt.Println("Watching wallet (press Ctrl+C to stop)...")
	<-ctx.Done()

	if !a.sessions.Current().Authenticated {
		fmt.Println("Stopped: session ended.")
	}
	return nil
}

// consoleNotifier prints session notices for an interactive user.
type consoleNotifier struct {
	out io.Writer
}

func (n consoleNotifier) SessionExpiring(remaining time.Duration) {
	fmt.Fprintf(n.out, "⚠ %s\n", session.ExpiryWarning(remaining))
}

func (n consoleNotifier) SessionExpired() {
	fmt.Fprintf(n.out, "⚠ %s\n", session.ExpiredNotice)
}

// renderer prints the balance line when it changes and the recent
// transactions when a new one shows up.
type renderer struct {
	mu          sync.Mutex
	out         io.Writer
	lastBalance string
	lastLive    bool
	lastTxnID   int64
}

func (r *renderer) render(v dashboard.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !v.Mounted {
		return
	}

	balance := v.Balance.StringFixed(2)
	if balance != r.lastBalance || v.Live != r.lastLive {
		fmt.Fprintf(r.out, "[%s] wallet %d  ₹%s%s%s\n",
			v.UpdatedAt.Local().Format("15:04:05"),
			v.WalletID,
			balance,
			changeIndicator(v),
			liveIndicator(v.Live),
		)
		r.lastBalance = balance
		r.lastLive = v.Live
	}

	if len(v.Recent) > 0 && v.Recent[0].ID != r.lastTxnID {
		r.lastTxnID = v.Recent[0].ID
		printTransactions(r.out, v.Recent)
	}
}

func changeIndicator(v dashboard.View) string {
	delta := v.Balance.Sub(v.Previous).Abs().StringFixed(2)
	switch v.Change {
	case realtime.Credited:
		return "  ▲ " + delta
	case realtime.Debited:
		return "  ▼ " + delta
	default:
		return ""
	}
}

func liveIndicator(live bool) string {
	if live {
		return "  (live)"
	}
	return "  (offline)"
}
