package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/auth"
	"github.com/sprint-insights/backend/internal/dashboard"
	"github.com/sprint-insights/backend/internal/session"
	"github.com/sprint-insights/backend/internal/sprint"
	"github.com/sprint-insights/backend/internal/storage"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not csv inside upload error", &dashboard.UploadError{File: "a.txt", Err: dashboard.ErrNotCSV}, http.StatusBadRequest, "BAD_REQUEST"},
		{"invalid folder name", fmt.Errorf("%w: must not contain '.'", dashboard.ErrInvalidFolderName), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"same name", dashboard.ErrSameName, http.StatusBadRequest, "BAD_REQUEST"},
		{"folder not found", fmt.Errorf("x: %w", dashboard.ErrFolderNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"object not found", fmt.Errorf("k: %w", storage.ErrObjectNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"object exists", storage.ErrObjectExists, http.StatusConflict, "CONFLICT"},
		{"unauthorized", auth.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"remote bad credentials", &auth.RemoteError{Status: 400, Message: "Invalid login credentials"}, http.StatusBadRequest, "BAD_REQUEST"},
		{"remote forbidden", &auth.RemoteError{Status: 403, Message: "forbidden"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"remote outage", &auth.RemoteError{Status: 503, Message: "down"}, http.StatusBadGateway, "BAD_GATEWAY"},
		{"too many sessions", session.ErrTooManySessions, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"invalid archive", sprint.ErrInvalidArchive, http.StatusBadRequest, "BAD_REQUEST"},
		{"storage failure", errors.New("bucket unavailable"), http.StatusBadGateway, "BAD_GATEWAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := MapError("operation failed", tt.err)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestMapError_RemoteMessageInDetails(t *testing.T) {
	apiErr := MapError("sign-in failed", &auth.RemoteError{Status: 400, Message: "Invalid login credentials"})
	assert.Equal(t, "sign-in failed", apiErr.Message)
	assert.Equal(t, "Invalid login credentials", apiErr.Details)
}

func TestMapError_PassesAPIErrorThrough(t *testing.T) {
	orig := NewConflictError("busy")
	assert.Same(t, orig, MapError("ignored", fmt.Errorf("wrapped: %w", orig)))
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()
	handler := NewErrorHandler(zap.NewNop())

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"api error", NewNotFoundError("session", "abc"), http.StatusNotFound, "NOT_FOUND"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handler(tt.err, c)

			assert.Equal(t, tt.status, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestErrorHandler_IncludesPartialData(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	NewErrorHandler(zap.NewNop())(NewBadGatewayError("rename failed", errors.New("copy failed")).
		WithData(map[string]int{"moved": 1, "total": 3}), c)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"code":"BAD_GATEWAY","message":"rename failed","details":"copy failed","data":{"moved":1,"total":3}}`, rec.Body.String())
}
