// Package config loads the walletctl profile from
// ~/.upiwallet/config.yaml. A missing file yields the defaults; fields
// left out of the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	dirName  = ".upiwallet"
	fileName = "config.yaml"

	// streamPath is the raw WebSocket endpoint the service exposes
	// alongside its SockJS fallback.
	streamPath = "/ws/websocket"
)

// Config is the walletctl profile.
type Config struct {
	ServerURL       string        `yaml:"server_url"`
	StreamURL       string        `yaml:"stream_url,omitempty"`
	// TokenDir holds the session file; empty means Dir().
	TokenDir        string        `yaml:"token_dir,omitempty"`
	WarnWindow      time.Duration `yaml:"warn_window"`
	OTPCooldown     time.Duration `yaml:"otp_cooldown"`
	RefreshDelay    time.Duration `yaml:"refresh_delay"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Default returns the built-in profile.
func Default() Config {
	return Config{
		ServerURL:       "http://localhost:8080",
		WarnWindow:      5 * time.Minute,
		OTPCooldown:     30 * time.Second,
		RefreshDelay:    2 * time.Second,
		RefreshInterval: 30 * time.Second,
		ReconnectDelay:  5 * time.Second,
		Timeout:         30 * time.Second,
	}
}

// Dir returns ~/.upiwallet.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// DefaultPath returns ~/.upiwallet/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the profile at path, or at DefaultPath when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("no config file, using defaults")
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	log.Debug().Str("path", path).Str("server_url", cfg.ServerURL).Msg("config loaded")
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the URLs and durations.
func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url must be an http or https URL, got %q", c.ServerURL)
	}

	if c.StreamURL != "" {
		s, err := url.Parse(c.StreamURL)
		if err != nil || (s.Scheme != "ws" && s.Scheme != "wss") || s.Host == "" {
			return fmt.Errorf("stream_url must be a ws or wss URL, got %q", c.StreamURL)
		}
	}

	for name, d := range map[string]time.Duration{
		"warn_window":      c.WarnWindow,
		"otp_cooldown":     c.OTPCooldown,
		"refresh_delay":    c.RefreshDelay,
		"refresh_interval": c.RefreshInterval,
		"reconnect_delay":  c.ReconnectDelay,
		"timeout":          c.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	return nil
}

// Stream returns the event-stream URL, derived from ServerURL when not
// set explicitly.
func (c Config) Stream() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + streamPath
	return u.String()
}
