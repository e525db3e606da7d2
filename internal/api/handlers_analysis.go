// handlers_analysis.go - Analysis session handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/activity"
	"github.com/sprint-insights/backend/internal/dashboard"
	"github.com/sprint-insights/backend/internal/models"
	"github.com/sprint-insights/backend/internal/sprint"
)

// progressPollInterval is how often the SSE stream checks the session.
const progressPollInterval = 100 * time.Millisecond

// AnalysisHandlerImpl implements the AnalysisHandler interface
type AnalysisHandlerImpl struct {
	sessions SessionManager
	activity activity.Recorder
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(sessions SessionManager, rec activity.Recorder, logger *zap.Logger) AnalysisHandler {
	return &AnalysisHandlerImpl{
		sessions: sessions,
		activity: rec,
		logger:   logger,
	}
}

type startAnalysisRequest struct {
	Sprint string `json:"sprint"`
	Until  string `json:"until"`
}

// HandleStartAnalysis starts analysing a folder's CSV exports.
func (h *AnalysisHandlerImpl) HandleStartAnalysis(c echo.Context) error {
	var req startAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	folder := c.Param("folder")
	if err := dashboard.ValidateFolderName(folder); err != nil {
		return MapError("invalid folder", err)
	}

	opts := sprint.AnalyzeOptions{Sprint: strings.TrimSpace(req.Sprint)}
	if req.Until != "" {
		until, err := sprint.ParseUntil(req.Until)
		if err != nil {
			return NewValidationError("until", err)
		}
		opts.Until = until
	}

	user := userID(c)
	sess, err := h.sessions.Start(user, folder, opts)
	if err != nil {
		return MapError("failed to start analysis", err)
	}

	_ = h.activity.Record(c.Request().Context(), activity.Event{
		UserID: user,
		Action: activity.ActionAnalyze,
		Folder: folder,
		Detail: sess.ID,
	})
	return c.JSON(http.StatusAccepted, sess)
}

// session returns the caller's session or a 404. Sessions of other users are
// reported as missing.
func (h *AnalysisHandlerImpl) session(c echo.Context) (*models.AnalysisSession, error) {
	id := c.Param("sessionId")
	sess, ok := h.sessions.Get(id)
	if !ok || sess.UserID != userID(c) {
		return nil, NewNotFoundError("session", id)
	}
	return sess, nil
}

// HandleAnalysisStatus returns the session's status and progress.
func (h *AnalysisHandlerImpl) HandleAnalysisStatus(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	h.sessions.Touch(sess.ID)
	return c.JSON(http.StatusOK, sess)
}

// HandleAnalysisProgressStream streams progress as Server-Sent Events until
// the session completes or fails.
func (h *AnalysisHandlerImpl) HandleAnalysisProgressStream(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	id := sess.ID

	// The stream outlives the server's WriteTimeout; lift the deadline.
	rc := http.NewResponseController(c.Response().Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("cannot clear write deadline", zap.String("session_id", id), zap.Error(err))
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if done := h.writeProgress(c, sess); done {
		return nil
	}

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	lastProgress := sess.Progress
	lastStatus := sess.Status
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			sess, ok := h.sessions.Get(id)
			if !ok {
				data, _ := json.Marshal(map[string]string{"error": "session not found"})
				fmt.Fprintf(c.Response(), "data: %s\n\n", data)
				c.Response().Flush()
				return nil
			}

			// Only send update if something changed
			if sess.Progress == lastProgress && sess.Status == lastStatus {
				continue
			}
			lastProgress, lastStatus = sess.Progress, sess.Status
			h.sessions.Touch(id)
			if done := h.writeProgress(c, sess); done {
				return nil
			}
		}
	}
}

// writeProgress sends one event and reports whether the session has finished.
func (h *AnalysisHandlerImpl) writeProgress(c echo.Context, sess *models.AnalysisSession) bool {
	data, err := json.Marshal(map[string]interface{}{
		"status":   sess.Status,
		"progress": sess.Progress,
		"stage":    sess.Stage,
		"errors":   sess.Errors,
		"warnings": sess.Warnings,
	})
	if err != nil {
		h.logger.Warn("failed to encode progress", zap.String("session_id", sess.ID), zap.Error(err))
		return true
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	c.Response().Flush()

	return sess.Status == models.SessionStatusComplete || sess.Status == models.SessionStatusError
}

// HandleAnalysisResult returns the metrics of a completed session.
func (h *AnalysisHandlerImpl) HandleAnalysisResult(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	h.sessions.Touch(sess.ID)

	switch sess.Status {
	case models.SessionStatusComplete:
	case models.SessionStatusError:
		apiErr := NewConflictError("analysis failed")
		apiErr.Details = strings.Join(sess.Errors, "; ")
		return apiErr
	default:
		return NewConflictError(fmt.Sprintf("analysis is still %s", sess.Status))
	}

	result, ok := h.sessions.Result(sess.ID)
	if !ok {
		return NewNotFoundError("result", sess.ID)
	}
	return statusOK(c, result)
}
