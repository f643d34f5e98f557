package auth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-test-secret-test-sec")

func TestDecodeClaims(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	t.Run("valid token", func(t *testing.T) {
		raw, err := IssueToken(testSecret, "alice@example.com", "ROLE_ANALYTICS", expiry)
		require.NoError(t, err)

		claims, err := DecodeClaims(raw)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", claims.Subject)
		assert.Equal(t, "ROLE_ANALYTICS", claims.Role)
		require.NotNil(t, claims.ExpiresAt)
		assert.True(t, expiry.Equal(claims.ExpiresAt.Time))
	})

	t.Run("signature is not verified", func(t *testing.T) {
		raw, err := IssueToken([]byte("some-other-secret-some-other-sec"), "bob", "", expiry)
		require.NoError(t, err)

		claims, err := DecodeClaims(raw)
		require.NoError(t, err)
		assert.Equal(t, "bob", claims.Subject)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := DecodeClaims("")
		require.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeClaims("not-a-jwt")
		require.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("payload is not json", func(t *testing.T) {
		header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`not json`))
		_, err := DecodeClaims(header + "." + payload + ".sig")
		require.ErrorIs(t, err, ErrMalformedToken)
	})
}

func TestIdentify(t *testing.T) {
	t.Run("missing expiry", func(t *testing.T) {
		header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"carol","role":"ROLE_USER"}`))
		_, err := Identify(header + "." + payload + ".sig")
		require.ErrorIs(t, err, ErrMalformedToken)
		require.ErrorIs(t, err, ErrMissingExpiry)
	})

	t.Run("expiry in seconds", func(t *testing.T) {
		header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"carol","role":"ROLE_USER","exp":1767225600}`))
		id, err := Identify(header + "." + payload + ".sig")
		require.NoError(t, err)
		assert.Equal(t, "carol", id.Subject)
		assert.Equal(t, "ROLE_USER", id.Role)
		assert.Equal(t, int64(1767225600000), id.ExpiresAt.UnixMilli())
	})
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	live, err := IssueToken(testSecret, "a", "", now.Add(time.Minute))
	require.NoError(t, err)
	dead, err := IssueToken(testSecret, "a", "", now.Add(-time.Minute))
	require.NoError(t, err)
	edge, err := IssueToken(testSecret, "a", "", now)
	require.NoError(t, err)

	assert.False(t, Expired(live, now))
	assert.True(t, Expired(dead, now))
	assert.True(t, Expired(edge, now))
	assert.True(t, Expired("garbage", now))
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	a := Fingerprint("token-a")
	assert.NotEmpty(t, a)
	assert.Equal(t, a, Fingerprint("token-a"))
	assert.NotEqual(t, a, Fingerprint("token-b"))
	assert.NotContains(t, a, "token")
}
