package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/upiwallet/internal/auth"
)

// TokenCmd mints a local token for exercising session expiry without a
// server.
type TokenCmd struct {
	Subject    string        `help:"Subject identifier" required:""`
	Role       string        `help:"Role claim" default:"ROLE_USER"`
	TTL        time.Duration `help:"Token lifetime" default:"1h"`
	SigningKey string        `help:"JWT signing key" required:"" env:"JWT_SIGNING_KEY"`
	Login      bool          `help:"Adopt the token as the current session"`
}

func (t *TokenCmd) Run(ctx context.Context, globals *Globals) error {
	token, err := auth.IssueToken([]byte(t.SigningKey), t.Subject, t.Role, time.Now().Add(t.TTL))
	if err != nil {
		return err
	}

	if !t.Login {
		fmt.Println(token)
		return nil
	}

	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	sess, err := a.sessions.Login(token)
	if err != nil {
		return err
	}
	printSession(sess)
	return nil
}
