package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/upiwallet/internal/auth"
)

const tokenFileName = "session.json"

// tokenFile is the on-disk layout of the slot.
type tokenFile struct {
	Version     int       `json:"version"`
	Token       string    `json:"token"`
	Fingerprint string    `json:"fingerprint"`
	SavedAt     time.Time `json:"saved_at"`
}

// FileTokenStore keeps the token in a 0600 JSON file that survives restarts.
type FileTokenStore struct {
	baseDir string
}

var _ TokenStore = (*FileTokenStore)(nil)

// NewFileTokenStore creates a file-backed slot.
// If baseDir is empty, uses ~/.upiwallet/
func NewFileTokenStore(baseDir string) (*FileTokenStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".upiwallet")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("token store initialized")

	return &FileTokenStore{baseDir: baseDir}, nil
}

func (s *FileTokenStore) path() string {
	return filepath.Join(s.baseDir, tokenFileName)
}

// Load returns the stored token or ErrNoToken.
func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("failed to parse token file: %w", err)
	}

	if tf.Token == "" {
		return "", ErrNoToken
	}

	return tf.Token, nil
}

// Save writes the token atomically, replacing whatever was there.
func (s *FileTokenStore) Save(token string) error {
	tf := tokenFile{
		Version:     1,
		Token:       token,
		Fingerprint: auth.Fingerprint(token),
		SavedAt:     time.Now().UTC(),
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	tempPath := s.path() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tempPath, s.path()); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save token file: %w", err)
	}

	log.Debug().Str("fingerprint", tf.Fingerprint).Msg("token saved")

	return nil
}

// Clear removes the token. Clearing an empty slot is not an error.
func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
