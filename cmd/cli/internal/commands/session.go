package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/upiwallet/internal/authz"
	"github.com/wolfeidau/upiwallet/internal/session"
	"github.com/wolfeidau/upiwallet/internal/wallet"
)

type LoginCmd struct {
	Email string `help:"Account email" required:""`
	Admin bool   `help:"Sign in to the admin console"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}

	password, err := a.prompt.Secret("Password: ")
	if err != nil {
		return err
	}

	token, err := a.wallet.Login(ctx, wallet.Credentials{Email: l.Email, Password: password, Admin: l.Admin})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	sess, err := a.sessions.Login(token)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if l.Admin && !sess.Admin {
		fmt.Println("Warning: this account has no admin role.")
	}
	printSession(sess)
	return nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}

	if !a.sessions.Current().Authenticated {
		fmt.Println("Not logged in.")
		return nil
	}

	a.sessions.Logout()
	fmt.Println("Logged out.")
	return nil
}

type StatusCmd struct{}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}

	sess := a.sessions.Current()
	if !sess.Authenticated {
		fmt.Println("Not logged in.")
		return nil
	}

	printSession(sess)
	if !sess.ExpiresAt.IsZero() {
		remaining := time.Until(sess.ExpiresAt)
		if remaining <= a.cfg.WarnWindow {
			fmt.Println(session.ExpiryWarning(remaining))
		}
	}
	return nil
}

func printSession(sess session.Session) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Subject:\t%s\n", valueOr(sess.Subject, "(unknown)"))
	fmt.Fprintf(w, "Role:\t%s\n", valueOr(sess.Role, "(none)"))
	if sess.Admin {
		fmt.Fprintf(w, "Admin role:\t%s\n", sess.AdminRole)
	}
	if !sess.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "Expires:\t%s\n", sess.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Fingerprint:\t%s\n", sess.Fingerprint())
	fmt.Fprintf(w, "Landing page:\t%s\n", authz.LandingPage(sess))
	w.Flush()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

type AccessCmd struct {
	Route string `arg:"" optional:"" help:"Route to check, all routes when omitted"`
}

func (c *AccessCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	sess := a.sessions.Current()

	rules := authz.Routes()
	if c.Route != "" {
		rule, ok := authz.Lookup(authz.Route(c.Route))
		if !ok {
			return fmt.Errorf("unknown route %q", c.Route)
		}
		rules = []authz.RouteRule{rule}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tTITLE\tREQUIRES\tDECISION")
	for _, rule := range rules {
		d := authz.Decide(sess, rule.Requirement)
		decision := d.Outcome.String()
		if d.RedirectTo != "" {
			decision += " -> " + string(d.RedirectTo)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rule.Route, rule.Title, rule.Requirement, decision)
	}
	w.Flush()
	return nil
}
