package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sprint-insights/backend/internal/activity"
)

// ActivityHandlerImpl implements the ActivityHandler interface
type ActivityHandlerImpl struct {
	recorder activity.Recorder
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(rec activity.Recorder) ActivityHandler {
	return &ActivityHandlerImpl{recorder: rec}
}

// HandleRecentActivity lists the caller's latest actions, newest first.
func (h *ActivityHandlerImpl) HandleRecentActivity(c echo.Context) error {
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return NewValidationError("limit", err)
		}
		limit = n
	}

	events, err := h.recorder.Recent(c.Request().Context(), userID(c), limit)
	if err != nil {
		return NewInternalError("failed to load activity", err)
	}
	if events == nil {
		events = []activity.Event{}
	}
	return c.JSON(http.StatusOK, events)
}
