package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

var (
	// ErrMalformedToken is returned when a token cannot be decoded into claims.
	ErrMalformedToken = errors.New("malformed token")

	// ErrMissingExpiry is returned when a token carries no exp claim.
	ErrMissingExpiry = errors.New("token has no expiry")
)

// Claims is the claim set issued by the wallet service.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Identity is the decoded view of a bearer token the client cares about.
type Identity struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// DecodeClaims decodes a compact JWT without verifying its signature.
// The issuer is trusted; the client only enforces expiry.
func DecodeClaims(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(raw, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}

	return claims, nil
}

// Identify decodes raw and extracts subject, role and expiry.
func Identify(raw string) (Identity, error) {
	claims, err := DecodeClaims(raw)
	if err != nil {
		return Identity{}, err
	}

	if claims.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrMalformedToken, ErrMissingExpiry)
	}

	return Identity{
		Subject:   claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// Expired reports whether raw is past its expiry at now. Tokens that
// cannot be decoded count as expired.
func Expired(raw string, now time.Time) bool {
	id, err := Identify(raw)
	if err != nil {
		return true
	}
	return !id.ExpiresAt.After(now)
}

// Fingerprint returns a short Base58 digest of the token (first eight
// bytes of its SHA-256), safe to log.
func Fingerprint(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return base58.Encode(sum[:8])
}
