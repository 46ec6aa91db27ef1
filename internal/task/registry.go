package task

import (
	"errors"
	"sync"
)

// Registry errors.
var (
	ErrNotFound     = errors.New("task: not found")
	ErrDuplicateURL = errors.New("task: url already registered")
)

// Registry is the in-memory task index. A URL may appear at most once at a
// time; tasks are retained for the life of the process unless removed.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Task
	byURL map[string]*Task
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Task),
		byURL: make(map[string]*Task),
	}
}

// Add registers a task. Returns ErrDuplicateURL when the URL is already
// present.
func (r *Registry) Add(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byURL[t.URL]; exists {
		return ErrDuplicateURL
	}
	r.byID[t.ID] = t
	r.byURL[t.URL] = t
	return nil
}

// Get returns the task with the given ID.
func (r *Registry) Get(id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// GetByURL returns the task registered for the URL.
func (r *Registry) GetByURL(url string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// Remove deletes a task from both indexes. Used to roll back a submission
// that could not be queued.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byURL, t.URL)
}

// List returns snapshots of all registered tasks.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	tasks := make([]*Task, 0, len(r.byID))
	for _, t := range r.byID {
		tasks = append(tasks, t)
	}
	r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snaps = append(snaps, t.Snapshot())
	}
	return snaps
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
