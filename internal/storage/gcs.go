package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore implements ObjectStore for Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds GCS-specific configuration.
type GCSConfig struct {
	Bucket             string
	ProjectID          string
	ServiceAccountJSON string
	Prefix             string // Optional prefix for all keys
}

// NewGCSStore creates a new GCS storage provider.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.ServiceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// List implements ObjectStore.List.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{
		Prefix: g.getFullKey(prefix),
	})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}

		objects = append(objects, ObjectInfo{
			Key:          g.stripPrefix(attrs.Name),
			Size:         attrs.Size,
			LastModified: attrs.Created,
			ContentType:  attrs.ContentType,
		})
	}

	return objects, nil
}

// Upload implements ObjectStore.Upload with a DoesNotExist precondition.
func (g *GCSStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error) {
	obj := g.client.Bucket(g.bucket).Object(g.getFullKey(key)).
		If(storage.Conditions{DoesNotExist: true})

	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return ObjectInfo{}, fmt.Errorf("failed to upload %s to GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to finalize GCS upload of %s: %w", key, mapGCSError(err))
	}

	attrs := w.Attrs()
	info := ObjectInfo{Key: key, Size: n, ContentType: contentType}
	if attrs != nil {
		info.LastModified = attrs.Created
	}
	return info, nil
}

// Download implements ObjectStore.Download.
func (g *GCSStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := g.client.Bucket(g.bucket).Object(g.getFullKey(key)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from GCS: %w", key, mapGCSError(err))
	}
	return rc, nil
}

// Copy implements ObjectStore.Copy with a server-side rewrite.
func (g *GCSStore) Copy(ctx context.Context, src, dst string) error {
	bucket := g.client.Bucket(g.bucket)
	srcObj := bucket.Object(g.getFullKey(src))
	dstObj := bucket.Object(g.getFullKey(dst)).If(storage.Conditions{DoesNotExist: true})

	if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
		return fmt.Errorf("failed to copy %s to %s in GCS: %w", src, dst, mapGCSError(err))
	}
	return nil
}

// Remove implements ObjectStore.Remove.
func (g *GCSStore) Remove(ctx context.Context, keys []string) error {
	bucket := g.client.Bucket(g.bucket)
	for _, key := range keys {
		err := bucket.Object(g.getFullKey(key)).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete %s from GCS: %w", key, err)
		}
	}
	return nil
}

// Close closes the GCS client connection.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// getFullKey returns the full GCS object name with prefix.
func (g *GCSStore) getFullKey(key string) string {
	if g.prefix == "" {
		return key
	}
	full := path.Join(g.prefix, key)
	if strings.HasSuffix(key, "/") {
		full += "/"
	}
	return full
}

// stripPrefix removes the storage prefix from a key.
func (g *GCSStore) stripPrefix(key string) string {
	if g.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, g.prefix+"/")
}

func mapGCSError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", ErrObjectExists, gErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrObjectNotFound, gErr.Message)
		}
	}
	return err
}

// ValidateServiceAccountJSON validates the service account JSON string.
func ValidateServiceAccountJSON(jsonStr string) error {
	var sa struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &sa); err != nil {
		return fmt.Errorf("invalid service account JSON: %w", err)
	}

	if sa.Type != "service_account" {
		return fmt.Errorf("invalid service account type: %s", sa.Type)
	}

	return nil
}
