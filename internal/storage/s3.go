package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// maxDeleteBatch is the DeleteObjects key limit.
const maxDeleteBatch = 1000

// S3Store implements ObjectStore for AWS S3 and S3-compatible services.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// S3Config holds S3-specific configuration.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string // Optional custom endpoint
	Prefix          string // Optional prefix for all keys
	UsePathStyle    bool   // For S3-compatible services
}

// NewS3Store creates a new S3 storage provider.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.UsePathStyle
		},
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

// List implements ObjectStore.List.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.getFullKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          s.stripPrefix(aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

// Upload implements ObjectStore.Upload. The conditional write makes S3
// reject the request when the key already exists.
func (s *S3Store) Upload(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error) {
	fullKey := s.getFullKey(key)
	counter := &countingReader{r: r}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        counter,
		IfNoneMatch: aws.String("*"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to upload %s to S3: %w", key, mapS3Error(err))
	}

	return ObjectInfo{
		Key:          key,
		Size:         counter.n,
		LastModified: time.Now(),
		ContentType:  contentType,
	}, nil
}

// Download implements ObjectStore.Download.
func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getFullKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from S3: %w", key, mapS3Error(err))
	}
	return out.Body, nil
}

// Copy implements ObjectStore.Copy with a server-side CopyObject.
func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	dstKey := s.getFullKey(dst)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(dstKey),
	})
	if err == nil {
		return fmt.Errorf("%s: %w", dst, ErrObjectExists)
	}
	if !errors.Is(mapS3Error(err), ErrObjectNotFound) {
		return fmt.Errorf("failed to check %s in S3: %w", dst, err)
	}

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(s.copySource(src)),
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s in S3: %w", src, dst, mapS3Error(err))
	}
	return nil
}

// Remove implements ObjectStore.Remove with batched DeleteObjects.
func (s *S3Store) Remove(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(s.getFullKey(key))})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: ids,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete from S3: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects from S3: %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

// copySource builds the URL-encoded "bucket/key" source for CopyObject.
func (s *S3Store) copySource(key string) string {
	segments := strings.Split(s.getFullKey(key), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.bucket + "/" + strings.Join(segments, "/")
}

// getFullKey returns the full S3 key with prefix.
func (s *S3Store) getFullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	full := path.Join(s.prefix, key)
	if strings.HasSuffix(key, "/") {
		full += "/"
	}
	return full
}

// stripPrefix removes the storage prefix from a key.
func (s *S3Store) stripPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// mapS3Error translates S3 error codes into the package sentinels.
func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrObjectNotFound, apiErr.ErrorMessage())
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %s", ErrObjectExists, apiErr.ErrorMessage())
		}
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
