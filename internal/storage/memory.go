package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data         []byte
	contentType  string
	userMeta     map[string]string
	lastModified time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores an object.
func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string, userMeta map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{
		data:         data,
		contentType:  contentType,
		userMeta:     userMeta,
		lastModified: time.Now(),
	}
	return nil
}

// Get returns a reader over the object contents.
func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// GetBytes returns a copy of the object contents.
func (s *MemoryStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// List returns info for all objects under the prefix in key order.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []ObjectInfo
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				ContentType:  obj.contentType,
				LastModified: obj.lastModified,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Delete removes an object. Missing objects are ignored.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Presign returns a fake memory:// URL.
func (s *MemoryStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", ErrNotFound
	}
	return "memory://" + key, nil
}

// SaveJSON marshals v and stores it under key.
func (s *MemoryStore) SaveJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", key, err)
	}
	return s.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json", nil)
}

// GetJSON fetches the object and unmarshals it into v.
func (s *MemoryStore) GetJSON(ctx context.Context, key string, v any) error {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// UserMetadata returns the user metadata recorded for key, for test
// assertions.
func (s *MemoryStore) UserMetadata(key string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].userMeta
}

var _ Store = (*MemoryStore)(nil)
