package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/activity"
	"github.com/sprint-insights/backend/internal/api"
	"github.com/sprint-insights/backend/internal/auth"
	"github.com/sprint-insights/backend/internal/config"
	"github.com/sprint-insights/backend/internal/dashboard"
	"github.com/sprint-insights/backend/internal/logging"
	"github.com/sprint-insights/backend/internal/metrics"
	"github.com/sprint-insights/backend/internal/processing"
	"github.com/sprint-insights/backend/internal/session"
	"github.com/sprint-insights/backend/internal/sprint"
	"github.com/sprint-insights/backend/internal/storage"
	"github.com/sprint-insights/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configFileName = "SprintDashboard.config.xml"

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, configPath, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, configPath string, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	folders := dashboard.NewService(store, logger, dashboard.WithFolderLimit(cfg.Storage.FolderLimit))

	authClient := auth.NewClient(cfg.Auth.URL, cfg.Auth.AnonKey,
		time.Duration(cfg.Auth.RequestTimeoutMs)*time.Millisecond)
	verifier, err := auth.NewVerifier(ctx, cfg.Auth.JWKSURL, cfg.Auth.JWTSecret, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	categories := sprint.DefaultCategories()
	if cfg.Processing.CategoriesFile != "" {
		if categories, err = sprint.LoadCategories(cfg.Processing.CategoriesFile); err != nil {
			return fmt.Errorf("failed to load categories: %w", err)
		}
	}

	sessions := session.NewManager(folders, logger, session.Options{
		MaxSessions: cfg.Processing.MaxSessions,
		Categories:  categories,
		Store: sprint.StoreOptions{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
			TempDir:     cfg.Storage.TempDirectory,
		},
	})
	defer sessions.Close()

	jobs := processing.NewManager(folders, store, func(key string) string {
		return storage.PublicURL(cfg.Storage.PublicBaseURL, cfg.Storage.Bucket, key)
	}, logger)
	defer jobs.Close()

	recorder, err := activity.New(ctx, cfg.Database.URL, cfg.Database.TablePrefix, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize activity log: %w", err)
	}
	defer recorder.Close()

	stats, err := sprint.LoadStats()
	if err != nil {
		return fmt.Errorf("failed to load sprint statistics: %w", err)
	}

	go cleanupLoop(ctx, cfg, sessions, jobs, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareOptions{
		AllowedOrigins:       cfg.GetAllowedOrigins(),
		BodyLimit:            cfg.Server.BodyLimit,
		RequestTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		EnableCompression:    cfg.Processing.EnableCompression,
		CompressionLevel:     cfg.Processing.CompressionLevel,
		EnableRequestLogging: cfg.Advanced.EnableRequestLogging,
	}, logger)

	handlers := api.NewHandlers(&api.Dependencies{
		Folders:             folders,
		AuthClient:          authClient,
		Verifier:            verifier,
		Sessions:            sessions,
		Jobs:                jobs,
		Activity:            recorder,
		Stats:               stats,
		Logger:              logger,
		Version:             Version,
		StorageProvider:     cfg.Storage.Provider,
		OAuthProviders:      cfg.GetOAuthProviders(),
		AuthRedirectURL:     cfg.Auth.RedirectURL,
		AllowedOrigins:      cfg.GetAllowedOrigins(),
		AllowFolderDeletion: cfg.Security.AllowFolderDeletion,
		MaxZipSize:          cfg.GetMaxZipSize(),
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", zap.Error(err))
		}
	}

	metrics.Info.WithLabelValues(Version, cfg.Storage.Provider).Set(1)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)
	logger.Info("starting server",
		zap.String("addr", s.Addr),
		zap.String("version", Version),
		zap.String("storage", cfg.Storage.Provider),
		zap.Bool("embedded_frontend", embeddedMode))

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// cleanupLoop expires idle analysis sessions and finished processing jobs.
func cleanupLoop(ctx context.Context, cfg *config.AppConfig, sessions *session.Manager, jobs *processing.Manager, logger *zap.Logger) {
	interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sessionTTL := time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute
	jobTTL := time.Duration(cfg.Processing.JobRetentionMinutes) * time.Minute
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removedSessions := sessions.CleanupOldSessions(sessionTTL)
			removedJobs := jobs.CleanupOldJobs(jobTTL)
			if removedSessions > 0 || removedJobs > 0 {
				logger.Debug("cleanup",
					zap.Int("sessions", removedSessions),
					zap.Int("jobs", removedJobs))
			}
		}
	}
}

func printBanner(cfg *config.AppConfig, configPath string, embedded bool) {
	mode := "API only"
	if embedded {
		mode = "Embedded frontend"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Sprint Dashboard Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Storage:   %-46s║\n", cfg.Storage.Provider+"://"+cfg.Storage.Bucket)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
