// Package activity keeps a per-user log of dashboard actions.
package activity

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Actions recorded by the dashboard.
const (
	ActionUpload   = "upload"
	ActionRename   = "rename"
	ActionDelete   = "delete"
	ActionAnalyze  = "analyze"
	ActionProcess  = "process"
	ActionSignIn   = "sign_in"
	ActionCleanZip = "clean_zip"
)

// DefaultLimit is the number of events Recent returns when asked for none.
const DefaultLimit = 50

// Event is one recorded action.
type Event struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"-"`
	Action    string    `json:"action"`
	Folder    string    `json:"folder,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder stores and lists activity events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
	Recent(ctx context.Context, userID string, limit int) ([]Event, error)
	Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultLimit
	}
	return limit
}

// loggingRecorder swallows write failures after logging them.
type loggingRecorder struct {
	Recorder
	logger *zap.Logger
}

// WithLogging wraps r so that Record never fails; errors are logged instead.
func WithLogging(r Recorder, logger *zap.Logger) Recorder {
	return &loggingRecorder{Recorder: r, logger: logger}
}

func (l *loggingRecorder) Record(ctx context.Context, e Event) error {
	if err := l.Recorder.Record(ctx, e); err != nil {
		l.logger.Warn("failed to record activity",
			zap.String("user_id", e.UserID),
			zap.String("action", e.Action),
			zap.Error(err))
	}
	return nil
}
