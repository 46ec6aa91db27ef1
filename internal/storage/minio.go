package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/voxetl/voxetl/internal/config"
)

const (
	putAttempts = 3
	putPause    = time.Second
)

// MinIOStore implements Store against a MinIO (or any S3-compatible) backend.
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinIOStore connects to the configured endpoint and ensures the bucket
// exists.
func NewMinIOStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}

	s := &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// Another instance may have raced us to it.
		exists, existsErr := s.client.BucketExists(ctx, s.bucket)
		if existsErr == nil && exists {
			return nil
		}
		return fmt.Errorf("creating bucket %q: %w", s.bucket, err)
	}
	s.logger.Info("created bucket", slog.String("bucket", s.bucket))
	return nil
}

// Put uploads an object, retrying transient failures. When the reader is
// seekable the offset is rewound before each retry.
func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, userMeta map[string]string) error {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: userMeta,
	}

	var lastErr error
	for attempt := 1; attempt <= putAttempts; attempt++ {
		if attempt > 1 {
			seeker, ok := r.(io.Seeker)
			if !ok {
				// Non-seekable stream cannot be replayed.
				break
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewinding stream for retry: %w", err)
			}
			select {
			case <-time.After(putPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warn("put failed",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("putting %q after %d attempts: %w", key, putAttempts, lastErr)
}

// Get returns a reader over the object contents.
func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting %q: %w", key, err)
	}
	// GetObject is lazy; Stat forces the first request so missing objects
	// surface here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting %q: %w", key, err)
	}
	return obj, nil
}

// GetBytes reads the full object into memory.
func (s *MinIOStore) GetBytes(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// List returns all objects under the prefix.
func (s *MinIOStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, obj.Err)
		}
		infos = append(infos, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	return infos, nil
}

// Delete removes an object.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

// Presign returns a time-limited GET URL for the object.
func (s *MinIOStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning %q: %w", key, err)
	}
	return u.String(), nil
}

// SaveJSON marshals v and stores it under key.
func (s *MinIOStore) SaveJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", key, err)
	}
	return s.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json", nil)
}

// GetJSON fetches the object and unmarshals it into v.
func (s *MinIOStore) GetJSON(ctx context.Context, key string, v any) error {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
