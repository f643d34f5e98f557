package store

import "errors"

// ErrNoToken is returned by Load when the slot is empty.
var ErrNoToken = errors.New("no token stored")

// TokenStore is the single durable slot holding the current bearer
// token. Save overwrites, Clear empties; last writer wins.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}
