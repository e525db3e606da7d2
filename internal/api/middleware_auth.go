package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sprint-insights/backend/internal/auth"
)

const (
	ctxUserID      = "user_id"
	ctxUserEmail   = "user_email"
	ctxAccessToken = "access_token"
)

// RequireAuth verifies the bearer token and stores the caller's identity in the
// request context. Browsers cannot set headers on WebSocket upgrades, so the
// token is also accepted from the access_token query parameter.
func RequireAuth(verifier auth.TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return NewUnauthorizedError("missing bearer token", nil)
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				return NewUnauthorizedError("invalid or expired token", nil)
			}
			if claims.Subject == "" {
				return NewUnauthorizedError("token has no subject", nil)
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxUserEmail, claims.Email)
			c.Set(ctxAccessToken, token)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return c.QueryParam("access_token")
}

// userID returns the authenticated caller set by RequireAuth.
func userID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

func accessToken(c echo.Context) string {
	token, _ := c.Get(ctxAccessToken).(string)
	return token
}
