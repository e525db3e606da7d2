package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/sprint-insights/backend/internal/config"
)

// NewObjectStore creates a storage provider based on configuration.
// The provider is wrapped with retries and metrics.
func NewObjectStore(ctx context.Context, cfg *config.AppConfig) (ObjectStore, error) {
	var store ObjectStore
	var err error

	sc := cfg.Storage
	switch sc.Provider {
	case "local":
		store, err = NewLocalStore(filepath.Join(sc.LocalRoot, sc.Bucket))

	case "s3":
		store, err = NewS3Store(ctx, S3Config{
			AccessKeyID:     sc.AWSAccessKeyID,
			SecretAccessKey: sc.AWSSecretAccessKey,
			Region:          sc.S3Region,
			Bucket:          sc.Bucket,
			Endpoint:        sc.S3Endpoint,
			Prefix:          sc.Prefix,
			UsePathStyle:    sc.S3Endpoint != "", // Use path style for custom endpoints
		})

	case "gcs":
		if sc.GoogleServiceAccountJSON != "" {
			if err := ValidateServiceAccountJSON(sc.GoogleServiceAccountJSON); err != nil {
				return nil, fmt.Errorf("invalid GCS service account: %w", err)
			}
		}
		store, err = NewGCSStore(ctx, GCSConfig{
			Bucket:             sc.Bucket,
			ProjectID:          sc.GCSProjectID,
			ServiceAccountJSON: sc.GoogleServiceAccountJSON,
			Prefix:             sc.Prefix,
		})

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", sc.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", sc.Provider, err)
	}

	retryCfg := DefaultRetryConfig()
	if cfg.Advanced.StorageRetries > 0 {
		retryCfg.MaxAttempts = cfg.Advanced.StorageRetries
	}
	return NewInstrumentedStore(NewRetryableStore(store, retryCfg), sc.Provider), nil
}

// PublicURL builds the public download URL of key in bucket under the hosted
// storage layout: {base}/storage/v1/object/public/{bucket}/{key}.
func PublicURL(base, bucket, key string) string {
	if base == "" {
		return ""
	}
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		strings.TrimSuffix(base, "/"), url.PathEscape(bucket), strings.Join(segments, "/"))
}
