package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// RetryConfig holds retry configuration for storage operations.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryableStore wraps an ObjectStore with retry logic.
// Not-found and already-exists errors are returned immediately.
type RetryableStore struct {
	store  ObjectStore
	config RetryConfig
}

// NewRetryableStore creates a new storage wrapper with retry logic.
func NewRetryableStore(store ObjectStore, config RetryConfig) *RetryableStore {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &RetryableStore{
		store:  store,
		config: config,
	}
}

// List implements ObjectStore.List with retry logic.
func (r *RetryableStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var result []ObjectInfo
	err := r.retry(ctx, func() error {
		var err error
		result, err = r.store.List(ctx, prefix)
		return err
	})
	return result, err
}

// Upload implements ObjectStore.Upload. The body can only be replayed when it
// is seekable, so other readers get a single attempt.
func (r *RetryableStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) (ObjectInfo, error) {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return r.store.Upload(ctx, key, body, contentType)
	}

	var result ObjectInfo
	first := true
	err := r.retry(ctx, func() error {
		if !first {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		first = false
		var err error
		result, err = r.store.Upload(ctx, key, body, contentType)
		return err
	})
	return result, err
}

// Download implements ObjectStore.Download with retry logic.
func (r *RetryableStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	var result io.ReadCloser
	err := r.retry(ctx, func() error {
		var err error
		result, err = r.store.Download(ctx, key)
		return err
	})
	return result, err
}

// Copy implements ObjectStore.Copy with retry logic.
func (r *RetryableStore) Copy(ctx context.Context, src, dst string) error {
	return r.retry(ctx, func() error {
		return r.store.Copy(ctx, src, dst)
	})
}

// Remove implements ObjectStore.Remove with retry logic.
func (r *RetryableStore) Remove(ctx context.Context, keys []string) error {
	return r.retry(ctx, func() error {
		return r.store.Remove(ctx, keys)
	})
}

// retry executes a function with exponential backoff retry logic.
func (r *RetryableStore) retry(ctx context.Context, fn func() error) error {
	delay := r.config.InitialDelay

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}

		if attempt >= r.config.MaxAttempts {
			if attempt == 1 {
				return err
			}
			return fmt.Errorf("operation failed after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.config.Multiplier)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}
}
