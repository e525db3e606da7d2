// Package processing cleans a folder's CSV exports in the background and
// publishes the cleaned copies to object storage.
package processing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/metrics"
	"github.com/sprint-insights/backend/internal/sprint"
	"github.com/sprint-insights/backend/internal/storage"
)

// Status represents the processing job status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCleaning   Status = "cleaning"
	StatusUploading  Status = "uploading"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ProcessedPrefix is the key prefix cleaned files are published under.
const ProcessedPrefix = "processed/"

// ProcessedObject is one cleaned file written back to storage.
type ProcessedObject struct {
	Source string            `json:"source"`
	Key    string            `json:"key"`
	URL    string            `json:"url,omitempty"`
	Stats  sprint.CleanStats `json:"stats"`
}

// Job represents an async folder processing job.
type Job struct {
	ID          string            `json:"id"`
	UserID      string            `json:"-"`
	Folder      string            `json:"folder"`
	Status      Status            `json:"status"`
	Progress    float64           `json:"progress"`
	Stage       string            `json:"stage"`
	CurrentFile string            `json:"currentFile,omitempty"`
	TotalFiles  int               `json:"totalFiles"`
	Files       []ProcessedObject `json:"files"`
	Skipped     []string          `json:"skipped,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

func (j *Job) snapshot() Job {
	s := *j
	s.Files = append([]ProcessedObject(nil), j.Files...)
	s.Skipped = append([]string(nil), j.Skipped...)
	return s
}

func (j *Job) finished() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// FolderReader gives the manager access to a user's uploaded CSV files.
type FolderReader interface {
	FolderFiles(ctx context.Context, userID, folder string) ([]string, error)
	OpenFile(ctx context.Context, userID, folder, file string) (io.ReadCloser, error)
}

// URLFunc maps a stored key to its public URL. It may return "".
type URLFunc func(key string) string

type subscriber struct {
	userID string
	ch     chan Job
}

// Manager handles async folder processing.
type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	source FolderReader
	store  storage.ObjectStore
	url    URLFunc
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	subsMu sync.Mutex
	subs   map[int]subscriber
	nextID int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a processing manager. url may be nil.
func NewManager(source FolderReader, store storage.ObjectStore, url URLFunc, logger *zap.Logger) *Manager {
	if url == nil {
		url = func(string) string { return "" }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:   make(map[string]*Job),
		source: source,
		store:  store,
		url:    url,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		subs:   make(map[int]subscriber),
		ctx:    ctx,
		cancel: cancel,
	}
}

// StartJob begins async processing of folder.
func (m *Manager) StartJob(userID, folder string) Job {
	job := &Job{
		ID:        m.newID(),
		UserID:    userID,
		Folder:    folder,
		Status:    StatusProcessing,
		Stage:     "preparing",
		Files:     make([]ProcessedObject, 0),
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snap := job.snapshot()
	m.mu.Unlock()

	m.publish(snap)

	m.wg.Add(1)
	go m.processJob(job)

	return snap
}

// GetJob returns a snapshot of a job by ID.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

func (m *Manager) processJob(job *Job) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.markJobError(job, fmt.Sprintf("processing panicked: %v", r))
		}
	}()

	log := m.logger.With(zap.String("job_id", job.ID), zap.String("folder", job.Folder))
	log.Info("starting processing job")

	files, err := m.source.FolderFiles(m.ctx, job.UserID, job.Folder)
	if err != nil {
		m.markJobError(job, err.Error())
		return
	}

	m.mu.Lock()
	job.TotalFiles = len(files)
	m.mu.Unlock()

	for i, name := range files {
		if err := m.ctx.Err(); err != nil {
			m.markJobError(job, err.Error())
			return
		}
		obj, err := m.processFile(job, i, name)
		if err != nil {
			log.Warn("skipping file", zap.String("file", name), zap.Error(err))
			m.mu.Lock()
			job.Skipped = append(job.Skipped, name)
			m.mu.Unlock()
			continue
		}
		m.mu.Lock()
		job.Files = append(job.Files, obj)
		m.mu.Unlock()
	}

	m.mu.Lock()
	produced := len(job.Files)
	m.mu.Unlock()
	if produced == 0 {
		m.markJobError(job, sprint.ErrNoCSVFiles.Error())
		return
	}

	m.markJobComplete(job)
	log.Info("processing job complete", zap.Int("files", produced))
}

func (m *Manager) processFile(job *Job, index int, name string) (ProcessedObject, error) {
	total := float64(job.TotalFiles)
	m.updateJobStatus(job, StatusCleaning, name, float64(index)/total*100)

	rc, err := m.source.OpenFile(m.ctx, job.UserID, job.Folder, name)
	if err != nil {
		return ProcessedObject{}, err
	}
	var buf bytes.Buffer
	stats, err := sprint.CleanCSV(rc, &buf)
	rc.Close()
	if err != nil {
		return ProcessedObject{}, err
	}
	metrics.DuplicateRowsDropped.Add(float64(stats.Duplicates))

	m.updateJobStatus(job, StatusUploading, name, (float64(index)+0.5)/total*100)
	key := ProcessedKey(m.newID(), name)
	if _, err := m.store.Upload(m.ctx, key, bytes.NewReader(buf.Bytes()), "text/csv"); err != nil {
		return ProcessedObject{}, fmt.Errorf("failed to upload processed file: %w", err)
	}

	return ProcessedObject{Source: name, Key: key, URL: m.url(key), Stats: stats}, nil
}

// ProcessedKey is the storage key of the cleaned copy of file.
func ProcessedKey(id, file string) string {
	base := strings.TrimSuffix(path.Base(file), ".csv")
	return ProcessedPrefix + strings.ReplaceAll(id, "-", "") + "/" + base + "_processed.csv"
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, file string, progress float64) {
	m.mu.Lock()
	job.Status = status
	job.Stage = string(status)
	job.CurrentFile = file
	job.Progress = progress
	snap := job.snapshot()
	m.mu.Unlock()

	m.publish(snap)
}

// markJobComplete marks job as complete (thread-safe).
func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	job.Status = StatusComplete
	job.Stage = "done"
	job.CurrentFile = ""
	job.Progress = 100
	now := m.now()
	job.CompletedAt = &now
	snap := job.snapshot()
	m.mu.Unlock()

	metrics.RecordProcessingJob(true)
	m.publish(snap)
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	job.Status = StatusError
	job.Error = errMsg
	now := m.now()
	job.CompletedAt = &now
	snap := job.snapshot()
	m.mu.Unlock()

	metrics.RecordProcessingJob(false)
	m.logger.Warn("processing job failed", zap.String("job_id", job.ID), zap.String("error", errMsg))
	m.publish(snap)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.finished() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Subscribe streams snapshots of userID's jobs as they change. Slow readers
// miss intermediate updates rather than blocking the job. Call the returned
// function to unsubscribe.
func (m *Manager) Subscribe(userID string) (<-chan Job, func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Job, 16)
	m.subs[id] = subscriber{userID: userID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) publish(job Job) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, sub := range m.subs {
		if sub.userID != job.UserID {
			continue
		}
		select {
		case sub.ch <- job:
		default:
		}
	}
}

// Close cancels running jobs and waits for them to stop.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
