package storage

import (
	"context"
	"io"
	"time"

	"github.com/sprint-insights/backend/internal/metrics"
)

// InstrumentedStore records Prometheus metrics for every call to the wrapped store.
type InstrumentedStore struct {
	store    ObjectStore
	provider string
}

// NewInstrumentedStore wraps store, labelling metrics with provider.
func NewInstrumentedStore(store ObjectStore, provider string) *InstrumentedStore {
	return &InstrumentedStore{store: store, provider: provider}
}

func (s *InstrumentedStore) record(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(op, s.provider, err == nil, time.Since(start))
}

// List implements ObjectStore.List.
func (s *InstrumentedStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	start := time.Now()
	objects, err := s.store.List(ctx, prefix)
	s.record("list", start, err)
	return objects, err
}

// Upload implements ObjectStore.Upload.
func (s *InstrumentedStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error) {
	start := time.Now()
	info, err := s.store.Upload(ctx, key, r, contentType)
	s.record("upload", start, err)
	return info, err
}

// Download implements ObjectStore.Download.
func (s *InstrumentedStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.store.Download(ctx, key)
	s.record("download", start, err)
	return rc, err
}

// Copy implements ObjectStore.Copy.
func (s *InstrumentedStore) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := s.store.Copy(ctx, src, dst)
	s.record("copy", start, err)
	return err
}

// Remove implements ObjectStore.Remove.
func (s *InstrumentedStore) Remove(ctx context.Context, keys []string) error {
	start := time.Now()
	err := s.store.Remove(ctx, keys)
	s.record("remove", start, err)
	return err
}
