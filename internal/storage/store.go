// Package storage provides the object store gateway used to persist every
// pipeline artifact: source audio, chunks, per-chunk transcription results,
// and merged transcripts.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is the object store gateway. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores an object. When the reader also implements io.Seeker the
	// implementation may rewind and retry on transient backend errors.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, userMeta map[string]string) error

	// Get returns a reader over the object contents. The caller must close
	// it. Returns ErrNotFound when the object does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetBytes reads the full object into memory.
	GetBytes(ctx context.Context, key string) ([]byte, error)

	// List returns info for all objects under the given key prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Presign returns a time-limited URL granting read access to the object.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)

	// SaveJSON marshals v and stores it under key with a JSON content type.
	SaveJSON(ctx context.Context, key string, v any) error

	// GetJSON fetches the object and unmarshals it into v. Returns
	// ErrNotFound when the object does not exist.
	GetJSON(ctx context.Context, key string, v any) error
}
