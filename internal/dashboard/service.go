// Package dashboard organizes a user's uploaded sprint exports into folders
// on top of an object store. Keys have the form <userID>/<folder>/<file>.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/metrics"
	"github.com/sprint-insights/backend/internal/models"
	"github.com/sprint-insights/backend/internal/storage"
)

// DefaultFolderLimit is how many folders ListFolders returns at most.
const DefaultFolderLimit = 100

// UploadFolderPrefix starts every folder created by an upload.
const UploadFolderPrefix = "upload-"

var (
	ErrNotCSV            = errors.New("Only CSV files are allowed")
	ErrNoFiles           = errors.New("no files to upload")
	ErrFolderNotFound    = errors.New("folder not found")
	ErrInvalidFolderName = errors.New("invalid folder name")
	ErrInvalidFileName   = errors.New("invalid file name")
	ErrSameName          = errors.New("new folder name equals the current name")
	ErrMissingUser       = errors.New("user id is required")
)

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// RenameError reports a rename that stopped part way. Files already moved
// stay in the new folder.
type RenameError struct {
	Moved int
	Total int
	File  string
	Err   error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("rename stopped after moving %d of %d files (at %s): %v", e.Moved, e.Total, e.File, e.Err)
}

func (e *RenameError) Unwrap() error { return e.Err }

// UploadError reports an upload batch that stopped part way. Files uploaded
// before the failure stay in the new folder.
type UploadError struct {
	Result *models.UploadResult
	File   string
	Err    error
}

func (e *UploadError) Error() string {
	return e.Err.Error()
}

func (e *UploadError) Unwrap() error { return e.Err }

// Service implements folder and file operations for the dashboard.
type Service struct {
	store       storage.ObjectStore
	logger      *zap.Logger
	folderLimit int
	locks       *keyedMutex
	now         func() time.Time

	stampMu   sync.Mutex
	lastStamp int64
}

// Option configures a Service.
type Option func(*Service)

// WithFolderLimit overrides DefaultFolderLimit.
func WithFolderLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.folderLimit = n
		}
	}
}

// WithClock overrides the time source used to name upload folders.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a dashboard service backed by store.
func NewService(store storage.ObjectStore, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:       store,
		logger:      logger,
		folderLimit: DefaultFolderLimit,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func userPrefix(userID string) string {
	return userID + "/"
}

func folderPrefix(userID, folder string) string {
	return userID + "/" + folder + "/"
}

// ObjectKey returns the storage key of file inside folder.
func ObjectKey(userID, folder, file string) string {
	return userID + "/" + folder + "/" + file
}

// ListFolders returns the user's folders, newest first.
// A folder's creation time is the oldest object inside it.
func (s *Service) ListFolders(ctx context.Context, userID string) ([]models.Folder, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	objects, err := s.store.List(ctx, userPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	created := make(map[string]time.Time)
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, userPrefix(userID))
		name, _, isDir := strings.Cut(rest, "/")
		if !isDir || name == "" || strings.Contains(name, ".") {
			continue
		}
		if t, ok := created[name]; !ok || obj.LastModified.Before(t) {
			created[name] = obj.LastModified
		}
	}

	folders := make([]models.Folder, 0, len(created))
	for name, t := range created {
		folders = append(folders, models.Folder{ID: name, Name: name, CreatedAt: t})
	}
	sort.Slice(folders, func(i, j int) bool {
		if !folders[i].CreatedAt.Equal(folders[j].CreatedAt) {
			return folders[i].CreatedAt.After(folders[j].CreatedAt)
		}
		return folders[i].Name > folders[j].Name
	})

	if len(folders) > s.folderLimit {
		folders = folders[:s.folderLimit]
	}
	return folders, nil
}

// ListFiles returns the CSV files directly inside folder, sorted by name.
func (s *Service) ListFiles(ctx context.Context, userID, folder string) ([]models.FileInfo, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if err := ValidateFolderName(folder); err != nil {
		return nil, err
	}

	prefix := folderPrefix(userID, folder)
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	files := make([]models.FileInfo, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		if strings.Contains(name, "/") || !IsCSV(name) {
			continue
		}
		files = append(files, models.FileInfo{
			Name:      name,
			CreatedAt: obj.LastModified,
			Metadata:  models.FileMetadata{Size: obj.Size},
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// nextFolderName returns upload-<unix-millis>, strictly increasing per service.
func (s *Service) nextFolderName() string {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()

	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return fmt.Sprintf("%s%d", UploadFolderPrefix, stamp)
}

// Upload stores files, in order, into a new folder. The first non-CSV file
// aborts the batch and files uploaded before it are kept.
func (s *Service) Upload(ctx context.Context, userID string, files []UploadFile) (*models.UploadResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	folder := s.nextFolderName()
	unlock := s.locks.Lock(folderPrefix(userID, folder))
	defer unlock()

	result := &models.UploadResult{
		Folder: models.Folder{ID: folder, Name: folder, CreatedAt: s.now()},
		Files:  make([]models.FileInfo, 0, len(files)),
	}

	for _, f := range files {
		if !IsCSV(f.Name) {
			return s.abortUpload(userID, result, f.Name, ErrNotCSV)
		}
		if err := ValidateFileName(f.Name); err != nil {
			return s.abortUpload(userID, result, f.Name, err)
		}

		contentType := f.ContentType
		if contentType == "" {
			contentType = "text/csv"
		}
		info, err := s.store.Upload(ctx, ObjectKey(userID, folder, f.Name), f.Content, contentType)
		if err != nil {
			return s.abortUpload(userID, result, f.Name, err)
		}

		if len(result.Files) == 0 && !info.LastModified.IsZero() {
			result.Folder.CreatedAt = info.LastModified
		}
		result.Files = append(result.Files, models.FileInfo{
			Name:      f.Name,
			CreatedAt: info.LastModified,
			Metadata:  models.FileMetadata{Size: info.Size},
		})
		metrics.UploadedFiles.Inc()
	}

	metrics.RecordFolderMutation("upload", true)
	s.logger.Info("uploaded folder",
		zap.String("user_id", userID),
		zap.String("folder", folder),
		zap.Int("files", len(result.Files)))
	return result, nil
}

func (s *Service) abortUpload(userID string, result *models.UploadResult, file string, err error) (*models.UploadResult, error) {
	metrics.RecordFolderMutation("upload", false)
	s.logger.Warn("upload aborted",
		zap.String("user_id", userID),
		zap.String("folder", result.Folder.Name),
		zap.String("file", file),
		zap.Int("persisted", len(result.Files)),
		zap.Error(err))
	return result, &UploadError{Result: result, File: file, Err: err}
}

// RenameFolder moves every CSV file of folder to newName by copy then delete.
// The first failure stops the move; nothing is rolled back.
func (s *Service) RenameFolder(ctx context.Context, userID, folder, newName string) (*models.Folder, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if err := ValidateFolderName(folder); err != nil {
		return nil, err
	}
	if err := ValidateFolderName(newName); err != nil {
		return nil, err
	}
	if folder == newName {
		return nil, ErrSameName
	}

	unlockOld, unlockNew := s.lockPair(folderPrefix(userID, folder), folderPrefix(userID, newName))
	defer unlockOld()
	defer unlockNew()

	files, err := s.ListFiles(ctx, userID, folder)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", folder, ErrFolderNotFound)
	}

	for i, f := range files {
		oldKey := ObjectKey(userID, folder, f.Name)
		newKey := ObjectKey(userID, newName, f.Name)

		if err := s.store.Copy(ctx, oldKey, newKey); err != nil {
			return nil, s.renameFailed(userID, folder, newName, i, len(files), f.Name, err)
		}
		if err := s.store.Remove(ctx, []string{oldKey}); err != nil {
			return nil, s.renameFailed(userID, folder, newName, i, len(files), f.Name, err)
		}
	}

	metrics.RecordFolderMutation("rename", true)
	s.logger.Info("renamed folder",
		zap.String("user_id", userID),
		zap.String("from", folder),
		zap.String("to", newName),
		zap.Int("files", len(files)))

	return &models.Folder{ID: newName, Name: newName, CreatedAt: earliest(files)}, nil
}

func (s *Service) renameFailed(userID, folder, newName string, moved, total int, file string, err error) error {
	metrics.RecordFolderMutation("rename", false)
	s.logger.Warn("rename stopped part way",
		zap.String("user_id", userID),
		zap.String("from", folder),
		zap.String("to", newName),
		zap.Int("moved", moved),
		zap.Int("total", total),
		zap.Error(err))
	return &RenameError{Moved: moved, Total: total, File: file, Err: err}
}

// lockPair takes two folder locks in a stable order.
func (s *Service) lockPair(a, b string) (func(), func()) {
	if a > b {
		second, first := s.lockPair(b, a)
		return first, second
	}
	first := s.locks.Lock(a)
	second := s.locks.Lock(b)
	return first, second
}

// DeleteFolder removes every CSV file of folder in one bulk call.
func (s *Service) DeleteFolder(ctx context.Context, userID, folder string) error {
	if userID == "" {
		return ErrMissingUser
	}
	if err := ValidateFolderName(folder); err != nil {
		return err
	}

	unlock := s.locks.Lock(folderPrefix(userID, folder))
	defer unlock()

	files, err := s.ListFiles(ctx, userID, folder)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%s: %w", folder, ErrFolderNotFound)
	}

	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = ObjectKey(userID, folder, f.Name)
	}
	if err := s.store.Remove(ctx, keys); err != nil {
		metrics.RecordFolderMutation("delete", false)
		return fmt.Errorf("deleting folder %s: %w", folder, err)
	}

	metrics.RecordFolderMutation("delete", true)
	s.logger.Info("deleted folder",
		zap.String("user_id", userID),
		zap.String("folder", folder),
		zap.Int("files", len(keys)))
	return nil
}

// OpenFile streams one CSV file back from storage.
func (s *Service) OpenFile(ctx context.Context, userID, folder, file string) (io.ReadCloser, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if err := ValidateFolderName(folder); err != nil {
		return nil, err
	}
	if err := ValidateFileName(file); err != nil {
		return nil, err
	}
	if !IsCSV(file) {
		return nil, ErrNotCSV
	}
	return s.store.Download(ctx, ObjectKey(userID, folder, file))
}

// FolderFiles returns the names of folder's CSV files and fails when there are none.
func (s *Service) FolderFiles(ctx context.Context, userID, folder string) ([]string, error) {
	files, err := s.ListFiles(ctx, userID, folder)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", folder, ErrFolderNotFound)
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names, nil
}

func earliest(files []models.FileInfo) time.Time {
	var t time.Time
	for _, f := range files {
		if t.IsZero() || f.CreatedAt.Before(t) {
			t = f.CreatedAt
		}
	}
	return t
}
