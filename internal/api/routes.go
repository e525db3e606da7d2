// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/activity"
	"github.com/sprint-insights/backend/internal/auth"
	"github.com/sprint-insights/backend/internal/logging"
	"github.com/sprint-insights/backend/internal/sprint"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Folders    FolderService
	AuthClient AuthClient
	Verifier   auth.TokenVerifier
	Sessions   SessionManager
	Jobs       JobManager
	Activity   activity.Recorder
	Stats      *sprint.Stats
	Logger     *zap.Logger

	Version             string
	StorageProvider     string
	OAuthProviders      []string
	AuthRedirectURL     string
	AllowedOrigins      []string
	AllowFolderDeletion bool
	MaxZipSize          int64
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Auth      AuthHandler
	Folders   FolderHandler
	Charts    ChartHandler
	Analysis  AnalysisHandler
	Process   ProcessHandler
	Activity  ActivityHandler
	JobStream JobStreamHandler

	requireAuth echo.MiddlewareFunc
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := deps.Activity
	if rec == nil {
		rec = activity.NewMemoryRecorder(activity.DefaultLimit)
	}
	rec = activity.WithLogging(rec, logger)

	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.StorageProvider),
		Auth:      NewAuthHandler(deps.AuthClient, rec, deps.OAuthProviders, deps.AuthRedirectURL, logger),
		Folders:   NewFolderHandler(deps.Folders, rec, deps.AllowFolderDeletion, logger),
		Charts:    NewChartHandler(deps.Folders, deps.Stats),
		Analysis:  NewAnalysisHandler(deps.Sessions, rec, logger),
		Process:   NewProcessHandler(deps.Jobs, rec, deps.MaxZipSize, logger),
		Activity:  NewActivityHandler(rec),
		JobStream: NewWebSocketHandler(deps.Jobs, deps.AllowedOrigins, logger),

		requireAuth: RequireAuth(deps.Verifier),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Auth routes; sign-in flows are public
	authGroup := e.Group("/api/auth")
	authGroup.POST("/signin", handlers.Auth.HandleSignIn)
	authGroup.POST("/otp", handlers.Auth.HandleMagicLink)
	authGroup.GET("/oauth/:provider", handlers.Auth.HandleOAuth)
	authGroup.POST("/refresh", handlers.Auth.HandleRefresh)
	authGroup.GET("/user", handlers.Auth.HandleCurrentUser, handlers.requireAuth)
	authGroup.POST("/signout", handlers.Auth.HandleSignOut, handlers.requireAuth)

	// Legacy summary, public like the original page
	e.GET("/api/sprint-data", handlers.Charts.HandleSprintData)

	api := e.Group("/api", handlers.requireAuth)

	// Folder routes
	api.GET("/folders", handlers.Folders.HandleListFolders)
	api.POST("/folders", handlers.Folders.HandleUpload)
	api.GET("/folders/:folder/files", handlers.Folders.HandleListFiles)
	api.PUT("/folders/:folder", handlers.Folders.HandleRenameFolder)
	api.DELETE("/folders/:folder", handlers.Folders.HandleDeleteFolder)
	api.GET("/folders/:folder/files/:file/charts", handlers.Charts.HandleFileCharts)

	// Analysis session routes
	api.POST("/folders/:folder/analysis", handlers.Analysis.HandleStartAnalysis)
	api.GET("/analysis/:sessionId", handlers.Analysis.HandleAnalysisStatus)
	api.GET("/analysis/:sessionId/progress", handlers.Analysis.HandleAnalysisProgressStream)
	api.GET("/analysis/:sessionId/result", handlers.Analysis.HandleAnalysisResult)

	// Processing routes
	api.POST("/folders/:folder/process", handlers.Process.HandleStartProcess)
	api.GET("/jobs/:jobId", handlers.Process.HandleJobStatus)
	api.POST("/process-zip", handlers.Process.HandleProcessZip)

	api.GET("/activity", handlers.Activity.HandleRecentActivity)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/jobs", handlers.JobStream.HandleJobStream, handlers.requireAuth)
}

// MiddlewareOptions configures SetupMiddleware.
type MiddlewareOptions struct {
	AllowedOrigins       []string
	BodyLimit            string
	RequestTimeout       time.Duration
	EnableCompression    bool
	CompressionLevel     int
	EnableRequestLogging bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions, logger *zap.Logger) {
	// Use custom error handler
	e.HTTPErrorHandler = NewErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	if len(opts.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  opts.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			ExposeHeaders: []string{echo.HeaderContentDisposition, HeaderDuplicateCounts},
		}))
	}

	if opts.EnableRequestLogging {
		e.Use(logging.RequestLogger(logger))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: opts.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				// Streaming responses must reach the client unbuffered
				return isStreamingPath(c.Request().URL.Path)
			},
		}))
	}

	if opts.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout:      opts.RequestTimeout,
			ErrorMessage: "request timed out",
			Skipper: func(c echo.Context) bool {
				return isStreamingPath(c.Request().URL.Path)
			},
		}))
	}
}

func isStreamingPath(path string) bool {
	return path == "/api/ws/jobs" || strings.HasSuffix(path, "/progress")
}
