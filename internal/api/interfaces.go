// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/sprint-insights/backend/internal/auth"
	"github.com/sprint-insights/backend/internal/dashboard"
	"github.com/sprint-insights/backend/internal/models"
	"github.com/sprint-insights/backend/internal/processing"
	"github.com/sprint-insights/backend/internal/session"
	"github.com/sprint-insights/backend/internal/sprint"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// AuthHandler handles sign-in and token operations
type AuthHandler interface {
	HandleSignIn(c echo.Context) error
	HandleMagicLink(c echo.Context) error
	HandleOAuth(c echo.Context) error
	HandleRefresh(c echo.Context) error
	HandleCurrentUser(c echo.Context) error
	HandleSignOut(c echo.Context) error
}

// FolderHandler handles folder and file operations
type FolderHandler interface {
	HandleListFolders(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleUpload(c echo.Context) error
	HandleRenameFolder(c echo.Context) error
	HandleDeleteFolder(c echo.Context) error
}

// ChartHandler serves chart datasets
type ChartHandler interface {
	HandleFileCharts(c echo.Context) error
	HandleSprintData(c echo.Context) error
}

// AnalysisHandler handles analysis session operations
type AnalysisHandler interface {
	HandleStartAnalysis(c echo.Context) error
	HandleAnalysisStatus(c echo.Context) error
	HandleAnalysisProgressStream(c echo.Context) error
	HandleAnalysisResult(c echo.Context) error
}

// ProcessHandler handles CSV cleaning jobs and ZIP cleaning
type ProcessHandler interface {
	HandleStartProcess(c echo.Context) error
	HandleJobStatus(c echo.Context) error
	HandleProcessZip(c echo.Context) error
}

// ActivityHandler lists recorded user actions
type ActivityHandler interface {
	HandleRecentActivity(c echo.Context) error
}

// JobStreamHandler streams processing job progress
type JobStreamHandler interface {
	HandleJobStream(c echo.Context) error
}

// AuthClient defines the hosted auth calls used by the handlers.
// This allows mocking in tests
type AuthClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignInWithOTP(ctx context.Context, email, redirectTo string) error
	OAuthURL(provider, redirectTo string) string
	RefreshSession(ctx context.Context, refreshToken string) (*models.AuthSession, error)
	GetUser(ctx context.Context, accessToken string) (*models.User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// FolderService defines the folder operations used by the handlers
type FolderService interface {
	ListFolders(ctx context.Context, userID string) ([]models.Folder, error)
	ListFiles(ctx context.Context, userID, folder string) ([]models.FileInfo, error)
	Upload(ctx context.Context, userID string, files []dashboard.UploadFile) (*models.UploadResult, error)
	RenameFolder(ctx context.Context, userID, folder, newName string) (*models.Folder, error)
	DeleteFolder(ctx context.Context, userID, folder string) error
	OpenFile(ctx context.Context, userID, folder, file string) (io.ReadCloser, error)
}

// SessionManager defines the interface for analysis session management
type SessionManager interface {
	Start(userID, folder string, opts sprint.AnalyzeOptions) (*models.AnalysisSession, error)
	Get(id string) (*models.AnalysisSession, bool)
	Result(id string) (*models.AnalysisResult, bool)
	Touch(id string) bool
}

// JobManager defines the interface for processing job management
type JobManager interface {
	StartJob(userID, folder string) processing.Job
	GetJob(id string) (processing.Job, bool)
	Subscribe(userID string) (<-chan processing.Job, func())
}

var (
	_ AuthClient     = (*auth.Client)(nil)
	_ FolderService  = (*dashboard.Service)(nil)
	_ SessionManager = (*session.Manager)(nil)
	_ JobManager     = (*processing.Manager)(nil)
)
