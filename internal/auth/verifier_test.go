package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/models"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signHS256(t *testing.T, claims models.SupabaseClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() models.SupabaseClaims {
	return models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: "dev@example.com",
		Role:  "authenticated",
	}
}

func TestSecretVerifier(t *testing.T) {
	verifier, err := NewSecretVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		claims, err := verifier.VerifyToken(signHS256(t, validClaims(), testSecret))
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, "dev@example.com", claims.Email)
	})

	tests := []struct {
		name   string
		mutate func(*models.SupabaseClaims)
		secret string
	}{
		{"wrong secret", func(*models.SupabaseClaims) {}, "another-secret-entirely-and-long-enough"},
		{"expired", func(c *models.SupabaseClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}, testSecret},
		{"missing subject", func(c *models.SupabaseClaims) { c.Subject = "" }, testSecret},
		{"anonymous role", func(c *models.SupabaseClaims) { c.Role = "anon" }, testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(&claims)

			_, err := verifier.VerifyToken(signHS256(t, claims, tt.secret))
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.VerifyToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestSecretVerifier_RejectsOtherAlgorithms(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
	require.NoError(t, err)

	verifier, err := NewSecretVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(context.Background(), "", testSecret, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SecretVerifier{}, v)

	_, err = NewVerifier(context.Background(), "", "", zap.NewNop())
	assert.Error(t, err)
}
