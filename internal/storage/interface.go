// Package storage defines the object store used for uploaded sprint exports.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound is returned when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectExists is returned when writing to a key that is already taken.
	// Uploads never overwrite.
	ErrObjectExists = errors.New("object already exists")
)

// ObjectStore is a flat key/value blob store addressed by slash-separated keys.
type ObjectStore interface {
	// List returns every object whose key starts with prefix, recursively.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Upload stores the content of r under key.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error)

	// Download opens the object stored under key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Copy duplicates src into dst.
	Copy(ctx context.Context, src, dst string) error

	// Remove deletes keys in a single call. Missing keys are ignored.
	Remove(ctx context.Context, keys []string) error
}

// ObjectInfo contains information about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// IsPermanent reports errors that will not change on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrObjectExists) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
