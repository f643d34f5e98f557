package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/upiwallet/internal/config"
	"github.com/wolfeidau/upiwallet/internal/session"
	"github.com/wolfeidau/upiwallet/internal/store"
	"github.com/wolfeidau/upiwallet/internal/wallet"
)

type Globals struct {
	Debug   bool
	Version string
	Config  string
	Server  string
}

// app is the wiring every command starts from: the profile, the
// restored session and a REST client authenticated by it.
type app struct {
	cfg      config.Config
	sessions *session.Manager
	wallet   *wallet.Client
	prompt   *prompter
}

func newApp(ctx context.Context, globals *Globals, opts ...session.Option) (*app, error) {
	cfg, err := config.Load(globals.Config)
	if err != nil {
		return nil, err
	}
	if globals.Server != "" {
		cfg.ServerURL = globals.Server
	}

	tokens, err := store.NewFileTokenStore(cfg.TokenDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}

	opts = append([]session.Option{session.WithWarnWindow(cfg.WarnWindow)}, opts...)
	sessions := session.NewManager(tokens, opts...)
	sess := sessions.Restore(ctx)
	log.Debug().Bool("authenticated", sess.Authenticated).Str("fingerprint", sess.Fingerprint()).Msg("session restored")

	wcfg := wallet.Config{
		ServerURL: cfg.ServerURL,
		Timeout:   cfg.Timeout,
		Tokens:    sessions,
	}
	if sess.Authenticated {
		// Cached responses are per user.
		if dir, err := config.Dir(); err == nil {
			wcfg.CacheDir = filepath.Join(dir, "cache", sess.Fingerprint())
		}
	}

	client, err := wallet.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet client: %w", err)
	}

	return &app{
		cfg:      cfg,
		sessions: sessions,
		wallet:   client,
		prompt:   newPrompter(os.Stdin, os.Stderr),
	}, nil
}

// requireSession returns the current session or explains how to get one.
func (a *app) requireSession() (session.Session, error) {
	sess := a.sessions.Current()
	if !sess.Authenticated {
		return sess, fmt.Errorf("not logged in, run 'walletctl login': %w", session.ErrNotAuthenticated)
	}
	return sess, nil
}
