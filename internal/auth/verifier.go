// Package auth verifies access tokens and wraps the hosted auth REST API.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/models"
)

// ErrUnauthorized is returned for any token that fails verification.
var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)
}

// JWKSVerifier validates asymmetric tokens against the auth service's JWKS.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	logger *zap.Logger
}

// NewJWKSVerifier fetches public keys from jwksURL.
// The keys are cached and refreshed by keyfunc.
func NewJWKSVerifier(ctx context.Context, jwksURL string, logger *zap.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", zap.String("jwks_url", jwksURL))
	return &JWKSVerifier{jwks: jwks, logger: logger}, nil
}

// VerifyToken implements TokenVerifier. Only RS256 and ES256 are accepted.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*models.SupabaseClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SupabaseClaims{}, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}))
	if err != nil {
		v.logger.Debug("token parse failed", zap.Error(err))
		return nil, ErrUnauthorized
	}
	return checkClaims(token, v.logger)
}

// SecretVerifier validates HS256 tokens signed with the project's JWT secret.
type SecretVerifier struct {
	secret []byte
	logger *zap.Logger
}

// NewSecretVerifier creates a verifier for the shared signing secret.
func NewSecretVerifier(secret string, logger *zap.Logger) (*SecretVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &SecretVerifier{secret: []byte(secret), logger: logger}, nil
}

// VerifyToken implements TokenVerifier.
func (v *SecretVerifier) VerifyToken(tokenString string) (*models.SupabaseClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SupabaseClaims{},
		func(*jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		v.logger.Debug("token parse failed", zap.Error(err))
		return nil, ErrUnauthorized
	}
	return checkClaims(token, v.logger)
}

// checkClaims requires a subject and the "authenticated" role; anonymous
// tokens are rejected.
func checkClaims(token *jwt.Token, logger *zap.Logger) (*models.SupabaseClaims, error) {
	if !token.Valid {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*models.SupabaseClaims)
	if !ok {
		logger.Error("failed to extract claims from token")
		return nil, ErrUnauthorized
	}
	if claims.Subject == "" {
		logger.Debug("token missing subject claim")
		return nil, ErrUnauthorized
	}
	if claims.Role != "authenticated" {
		logger.Warn("token has invalid role",
			zap.String("role", claims.Role),
			zap.String("user_id", claims.Subject))
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// NewVerifier prefers JWKS and falls back to the shared secret.
func NewVerifier(ctx context.Context, jwksURL, secret string, logger *zap.Logger) (TokenVerifier, error) {
	if jwksURL != "" {
		return NewJWKSVerifier(ctx, jwksURL, logger)
	}
	return NewSecretVerifier(secret, logger)
}
