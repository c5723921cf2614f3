package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civigate/pkg/domain-errors"
)

const signingKey = "test-signing-key"

func signToken(t *testing.T, key string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestDecodeValidToken(t *testing.T) {
	decoder := NewJWTDecoder(signingKey)
	token := signToken(t, signingKey, Claims{
		Roles: []string{"citizen", "health-worker"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	ident, err := decoder.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", ident.Subject)
	assert.Equal(t, []string{"citizen", "health-worker"}, ident.Roles)
}

func TestDecodeExpiredToken(t *testing.T) {
	decoder := NewJWTDecoder(signingKey)
	token := signToken(t, signingKey, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := decoder.Decode(token)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	assert.Contains(t, err.Error(), "expired")
}

func TestDecodeWrongKey(t *testing.T) {
	decoder := NewJWTDecoder(signingKey)
	token := signToken(t, "other-key", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := decoder.Decode(token)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func TestDecodeMissingSubject(t *testing.T) {
	decoder := NewJWTDecoder(signingKey)
	token := signToken(t, signingKey, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := decoder.Decode(token)
	require.Error(t, err)
}
