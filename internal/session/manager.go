// Package session runs folder analyses in the background and keeps their
// results around while the dashboard polls for them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/metrics"
	"github.com/sprint-insights/backend/internal/models"
	"github.com/sprint-insights/backend/internal/sprint"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrTooManySessions is returned when every slot holds a running analysis.
	ErrTooManySessions = errors.New("too many running analyses")
	// ErrMissingTables is returned when a folder lacks the entities or sprints export.
	ErrMissingTables = errors.New("folder must contain an entities export and a sprints export")
)

// FolderReader gives the manager access to a user's uploaded CSV files.
type FolderReader interface {
	FolderFiles(ctx context.Context, userID, folder string) ([]string, error)
	OpenFile(ctx context.Context, userID, folder, file string) (io.ReadCloser, error)
}

// Options configures a Manager.
type Options struct {
	MaxSessions int
	Store       sprint.StoreOptions
	Categories  *sprint.Categories
}

// Manager handles analysis sessions.
type Manager struct {
	sessions map[string]*sessionState
	mu       sync.RWMutex
	source   FolderReader
	logger   *zap.Logger
	opts     Options
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type sessionState struct {
	Session      *models.AnalysisSession
	Result       *models.AnalysisResult
	LastAccessed time.Time
}

// NewManager creates a session manager reading folders from source.
func NewManager(source FolderReader, logger *zap.Logger, opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = MaxSessions
	}
	if opts.Categories == nil {
		opts.Categories = sprint.DefaultCategories()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions: make(map[string]*sessionState),
		source:   source,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins analysing folder for userID.
func (m *Manager) Start(userID, folder string, opts sprint.AnalyzeOptions) (*models.AnalysisSession, error) {
	m.cleanupOldSessionsIfNeeded()

	m.mu.Lock()
	if len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	session := models.NewAnalysisSession(uuid.New().String(), userID, folder)
	session.Status = models.SessionStatusRunning
	session.Stage = "queued"
	m.sessions[session.ID] = &sessionState{Session: session, LastAccessed: m.now()}
	snapshot := *session
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(session.ID, userID, folder, opts)

	return &snapshot, nil
}

func (m *Manager) run(sessionID, userID, folder string, opts sprint.AnalyzeOptions) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("analysis panicked", zap.String("session_id", sessionID), zap.Any("panic", r))
			m.updateSessionError(sessionID, fmt.Sprintf("analysis panicked: %v", r))
		}
	}()

	start := time.Now()
	log := m.logger.With(zap.String("session_id", sessionID), zap.String("folder", folder))
	log.Info("starting analysis")

	result, warnings, err := m.analyze(m.ctx, sessionID, userID, folder, opts)
	elapsed := time.Since(start)
	metrics.AnalysisDuration.Observe(elapsed.Seconds())
	if err != nil {
		log.Warn("analysis failed", zap.Error(err))
		m.updateSessionError(sessionID, err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	state.Result = result
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.Stage = "done"
	state.Session.Warnings = warnings
	state.Session.ProcessingTimeMs = elapsed.Milliseconds()

	log.Info("analysis complete",
		zap.Int("sprints", len(result.Sprints)),
		zap.Int("entities", result.EntityCount),
		zap.Duration("elapsed", elapsed))
}

func (m *Manager) analyze(ctx context.Context, sessionID, userID, folder string, opts sprint.AnalyzeOptions) (*models.AnalysisResult, []string, error) {
	m.setProgress(sessionID, "listing", 5)
	files, err := m.source.FolderFiles(ctx, userID, folder)
	if err != nil {
		return nil, nil, err
	}
	m.setFileCount(sessionID, len(files))

	var dataset sprint.Dataset
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := m.readExport(ctx, &dataset, userID, folder, name); err != nil {
			dataset.Warnings = append(dataset.Warnings, err.Error())
		}
		m.setProgress(sessionID, "reading", 10+60*float64(i+1)/float64(len(files)))
	}
	if len(dataset.Entities) == 0 || len(dataset.Sprints) == 0 {
		return nil, dataset.Warnings, ErrMissingTables
	}

	m.setProgress(sessionID, "loading", 75)
	store, err := sprint.NewStore(m.opts.Store, m.opts.Categories, m.logger)
	if err != nil {
		return nil, dataset.Warnings, err
	}
	defer store.Close()
	if err := store.Load(ctx, &dataset); err != nil {
		return nil, dataset.Warnings, err
	}

	m.setProgress(sessionID, "analyzing", 85)
	result, err := store.Analyze(ctx, opts)
	if err != nil {
		return nil, dataset.Warnings, err
	}
	result.SourceFiles = files
	return result, dataset.Warnings, nil
}

func (m *Manager) readExport(ctx context.Context, dataset *sprint.Dataset, userID, folder, name string) error {
	rc, err := m.source.OpenFile(ctx, userID, folder, name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer rc.Close()
	_, err = dataset.AddExport(name, rc)
	return err
}

func (m *Manager) setProgress(sessionID, stage string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Stage = stage
		state.Session.Progress = progress
	}
}

func (m *Manager) setFileCount(sessionID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.FileCount = n
	}
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	state.Session.Status = models.SessionStatusError
	state.Session.Errors = append(state.Session.Errors, reason)
}

func finished(s *models.AnalysisSession) bool {
	return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
}

// cleanupOldSessionsIfNeeded drops the least recently used finished sessions
// once the manager is at capacity.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.sessions) >= m.opts.MaxSessions {
		var oldestID string
		var oldest time.Time
		for id, state := range m.sessions {
			if !finished(state.Session) {
				continue
			}
			if oldestID == "" || state.LastAccessed.Before(oldest) {
				oldestID, oldest = id, state.LastAccessed
			}
		}
		if oldestID == "" {
			return
		}
		delete(m.sessions, oldestID)
		m.logger.Debug("evicted analysis session", zap.String("session_id", oldestID))
	}
}

// CleanupOldSessions removes finished sessions not accessed for maxAge.
// Sessions touched within SessionKeepAliveWindow are always kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	removed := 0
	for id, state := range m.sessions {
		if !finished(state.Session) {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("cleaned up analysis sessions", zap.Int("removed", removed))
	}
	return removed
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (*models.AnalysisSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	snapshot.Errors = append([]string(nil), state.Session.Errors...)
	snapshot.Warnings = append([]string(nil), state.Session.Warnings...)
	return &snapshot, true
}

// Result returns the analysis result once the session is complete.
func (m *Manager) Result(id string) (*models.AnalysisResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Result == nil {
		return nil, false
	}
	return state.Result, true
}

// Touch updates the last access time of a session so cleanup keeps it.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = m.now()
	return true
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close cancels running analyses and waits for them to stop.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
