// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/auth"
	"github.com/sprint-insights/backend/internal/dashboard"
	"github.com/sprint-insights/backend/internal/session"
	"github.com/sprint-insights/backend/internal/sprint"
	"github.com/sprint-insights/backend/internal/storage"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithData attaches a partial result to the error body.
func (e *APIError) WithData(data interface{}) *APIError {
	e.Data = data
	return e
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewPayloadTooLargeError creates a 413 error for an upload over limit bytes.
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "PAYLOAD_TOO_LARGE",
		Message: fmt.Sprintf("archive exceeds %d bytes", limit),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewBadGatewayError creates a 502 error for a failed call to a hosted service.
// Details carry the remote message unchanged.
func NewBadGatewayError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "BAD_GATEWAY",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// MapError translates errors from the service layers into an APIError.
// message is used when err carries no better description.
func MapError(message string, err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var remote *auth.RemoteError
	if errors.As(err, &remote) {
		switch {
		case remote.Status == http.StatusUnauthorized || remote.Status == http.StatusForbidden:
			return NewUnauthorizedError(message, remote)
		case remote.Status >= 400 && remote.Status < 500:
			return NewBadRequestError(message, remote)
		default:
			return NewBadGatewayError(message, remote)
		}
	}

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return NewUnauthorizedError("authentication required", err)
	case errors.Is(err, dashboard.ErrNotCSV):
		return NewBadRequestError(dashboard.ErrNotCSV.Error(), err)
	case errors.Is(err, dashboard.ErrNoFiles), errors.Is(err, dashboard.ErrSameName):
		return NewBadRequestError(message, err)
	case errors.Is(err, dashboard.ErrInvalidFolderName):
		return NewValidationError("folder", err)
	case errors.Is(err, dashboard.ErrInvalidFileName):
		return NewValidationError("file", err)
	case errors.Is(err, dashboard.ErrMissingUser):
		return NewUnauthorizedError("authentication required", err)
	case errors.Is(err, dashboard.ErrFolderNotFound):
		return notFound("folder not found", err)
	case errors.Is(err, storage.ErrObjectNotFound):
		return notFound("file not found", err)
	case errors.Is(err, storage.ErrObjectExists):
		apiErr = NewConflictError(message)
		apiErr.Details = err.Error()
		return apiErr
	case errors.Is(err, session.ErrTooManySessions):
		apiErr = NewServiceUnavailableError("too many concurrent analyses, try again later")
		apiErr.Details = err.Error()
		return apiErr
	case errors.Is(err, sprint.ErrInvalidArchive), errors.Is(err, sprint.ErrNoCSVFiles), errors.Is(err, sprint.ErrEmptyTable):
		return NewBadRequestError(err.Error(), nil)
	}

	// Anything else came back from object storage or another hosted service.
	return NewBadGatewayError(message, err)
}

func notFound(message string, cause error) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: message,
		Details: cause.Error(),
	}
}

// NewErrorHandler returns the echo error handler.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(logger)
func NewErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError

		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "INTERNAL_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("code", apiErr.Code),
				zap.Error(err))
		}

		var sendErr error
		if c.Request().Method == http.MethodHead {
			sendErr = c.NoContent(apiErr.Status)
		} else {
			sendErr = c.JSON(apiErr.Status, apiErr)
		}
		if sendErr != nil {
			logger.Warn("failed to send error response", zap.Error(sendErr))
		}
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
