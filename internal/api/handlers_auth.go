// handlers_auth.go - Sign-in, magic link, OAuth and token handlers
package api

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/activity"
	"github.com/sprint-insights/backend/internal/auth"
	"github.com/sprint-insights/backend/internal/metrics"
)

// MagicLinkSent is the message returned once a magic link is on its way.
const MagicLinkSent = "Check your email for the magic link"

// AuthHandlerImpl implements the AuthHandler interface
type AuthHandlerImpl struct {
	client      AuthClient
	activity    activity.Recorder
	providers   map[string]bool
	redirectURL string
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler. providers lists the OAuth
// providers the sign-in page offers.
func NewAuthHandler(client AuthClient, rec activity.Recorder, providers []string, redirectURL string, logger *zap.Logger) AuthHandler {
	allowed := make(map[string]bool, len(providers))
	for _, p := range providers {
		allowed[p] = true
	}
	return &AuthHandlerImpl{
		client:      client,
		activity:    rec,
		providers:   allowed,
		redirectURL: redirectURL,
		logger:      logger,
	}
}

// HandleSignIn signs in with email and password, or sends a magic link when
// called with ?mode=guest.
func (h *AuthHandlerImpl) HandleSignIn(c echo.Context) error {
	var creds auth.Credentials
	if err := c.Bind(&creds); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	guest := c.QueryParam("mode") == "guest"
	if err := creds.Validate(guest); err != nil {
		return NewValidationError("credentials", err)
	}

	ctx := c.Request().Context()
	if guest {
		err := h.client.SignInWithOTP(ctx, creds.Email, h.redirectURL)
		metrics.RecordAuthAttempt("otp", err == nil)
		if err != nil {
			return MapError("failed to send magic link", err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"message": MagicLinkSent})
	}

	sess, err := h.client.SignInWithPassword(ctx, creds.Email, creds.Password)
	metrics.RecordAuthAttempt("password", err == nil)
	if err != nil {
		h.logger.Info("sign-in rejected", zap.String("email", creds.Email), zap.Error(err))
		return MapError("sign-in failed", err)
	}

	_ = h.activity.Record(ctx, activity.Event{UserID: sess.User.ID, Action: activity.ActionSignIn, Detail: "password"})
	return c.JSON(http.StatusOK, sess)
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// HandleMagicLink sends a one-time sign-in link.
func (h *AuthHandlerImpl) HandleMagicLink(c echo.Context) error {
	var req magicLinkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := validation.Validate(req.Email, validation.Required, is.EmailFormat); err != nil {
		return NewValidationError("email", err)
	}

	err := h.client.SignInWithOTP(c.Request().Context(), req.Email, h.redirectURL)
	metrics.RecordAuthAttempt("otp", err == nil)
	if err != nil {
		return MapError("failed to send magic link", err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": MagicLinkSent})
}

// HandleOAuth redirects the browser to the provider's authorize page.
func (h *AuthHandlerImpl) HandleOAuth(c echo.Context) error {
	provider := c.Param("provider")
	if !h.providers[provider] {
		return NewNotFoundError("oauth provider", provider)
	}
	metrics.RecordAuthAttempt("oauth", true)
	return c.Redirect(http.StatusFound, h.client.OAuthURL(provider, h.redirectURL))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh exchanges a refresh token for a new session.
func (h *AuthHandlerImpl) HandleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.RefreshToken == "" {
		return NewValidationError("refresh_token", validation.ErrRequired)
	}

	sess, err := h.client.RefreshSession(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return MapError("failed to refresh session", err)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleCurrentUser returns the signed-in user as the auth service knows it.
func (h *AuthHandlerImpl) HandleCurrentUser(c echo.Context) error {
	user, err := h.client.GetUser(c.Request().Context(), accessToken(c))
	if err != nil {
		return MapError("failed to load user", err)
	}
	return c.JSON(http.StatusOK, user)
}

// HandleSignOut revokes the caller's session.
func (h *AuthHandlerImpl) HandleSignOut(c echo.Context) error {
	if err := h.client.SignOut(c.Request().Context(), accessToken(c)); err != nil {
		return MapError("failed to sign out", err)
	}
	return c.NoContent(http.StatusNoContent)
}
