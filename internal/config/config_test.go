package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://wallet.example.com
warn_window: 2m
otp_cooldown: 45s
token_dir: /var/lib/walletctl
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://wallet.example.com", cfg.ServerURL)
	assert.Equal(t, 2*time.Minute, cfg.WarnWindow)
	assert.Equal(t, 45*time.Second, cfg.OTPCooldown)
	assert.Equal(t, "/var/lib/walletctl", cfg.TokenDir)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "wss://wallet.example.com/ws/websocket", cfg.Stream())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "server_url: [", "failed to parse"},
		{"bad duration", "timeout: soon", "failed to parse"},
		{"server scheme", "server_url: ftp://wallet", "server_url"},
		{"stream scheme", "stream_url: http://wallet/ws", "stream_url"},
		{"negative", "refresh_delay: -1s", "refresh_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Default()
	want.ServerURL = "https://wallet.example.com"
	want.StreamURL = "wss://stream.example.com/ws"
	want.RefreshDelay = 3 * time.Second

	require.NoError(t, Save(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStream(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"http", Config{ServerURL: "http://localhost:8080"}, "ws://localhost:8080/ws/websocket"},
		{"https with path", Config{ServerURL: "https://example.com/api/"}, "wss://example.com/api/ws/websocket"},
		{"explicit", Config{ServerURL: "http://localhost:8080", StreamURL: "ws://other:9000/stomp"}, "ws://other:9000/stomp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Stream())
		})
	}
}
