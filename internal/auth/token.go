package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into tokens minted locally.
const Issuer = "upiwallet-dev"

// IssueToken mints an HS256 token carrying subject, role and expiry.
// The wallet service issues the real tokens; this is for offline drills
// of the session timers and for tests.
func IssueToken(secret []byte, subject, role string, expiresAt time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    Issuer,
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
