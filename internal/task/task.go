package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stats tracks download and progress counters for a task.
type Stats struct {
	Progress        float64 `json:"progress"`
	TotalBytes      int64   `json:"total_bytes"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	Speed           float64 `json:"speed"`
}

// VideoMetadata is the fixed subset of probed source metadata carried on the
// task.
type VideoMetadata struct {
	Title          string   `json:"title,omitempty"`
	ProcessedTitle string   `json:"processed_title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Duration       float64  `json:"duration,omitempty"`
	Uploader       string   `json:"uploader,omitempty"`
	Channel        string   `json:"channel,omitempty"`
	Language       string   `json:"language,omitempty"`
	ViewCount      int64    `json:"view_count,omitempty"`
	LikeCount      int64    `json:"like_count,omitempty"`
	CommentCount   int64    `json:"comment_count,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Format         string   `json:"format,omitempty"`
	Extension      string   `json:"ext,omitempty"`
	ApproxSize     int64    `json:"filesize_approx,omitempty"`
}

// TranscriptionMetadata aggregates transcription results across chunks.
type TranscriptionMetadata struct {
	WordCount            int       `json:"word_count"`
	DetectedLanguage     string    `json:"detected_language,omitempty"`
	ChunkCount           int       `json:"chunk_count"`
	ConfidenceScores     []float64 `json:"confidence_scores,omitempty"`
	AverageConfidence    float64   `json:"average_confidence"`
	TotalDuration        float64   `json:"total_duration"`
	MergedTranscriptPath string    `json:"merged_transcript_path,omitempty"`
}

// Metadata groups all metadata sections of a task.
type Metadata struct {
	Video         VideoMetadata         `json:"video"`
	Transcription TranscriptionMetadata `json:"transcription"`
	// Processing is a free-form bag recording per-stage facts such as
	// chunks_info, failed_chunks, ordered_results, audio_path, and
	// download timings.
	Processing map[string]any `json:"processing"`
}

// Error is one entry in a task's append-only error list.
type Error struct {
	Stage     Status    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Snapshot is a point-in-time copy of a task, safe for serialization.
type Snapshot struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Stats     Stats     `json:"stats"`
	Metadata  Metadata  `json:"metadata"`
	Errors    []Error   `json:"errors"`
	AudioPath string    `json:"audio_path,omitempty"`
}

// Task is the central record for one submission. All mutation goes through
// Atomic, which serializes access and advances UpdatedAt.
type Task struct {
	mu sync.RWMutex

	ID        string
	URL       string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Stats     Stats
	Metadata  Metadata
	Errors    []Error
	AudioPath string
}

// New creates a Pending task for the given URL.
func New(url string) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.NewString(),
		URL:       url,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  Metadata{Processing: make(map[string]any)},
	}
}

// Atomic runs fn while holding the task lock, then advances UpdatedAt.
func (t *Task) Atomic(fn func(*Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t)
	t.UpdatedAt = time.Now()
}

// TryTransition moves the task to the new status when the transition is
// legal. Returns false without mutation otherwise.
func (t *Task) TryTransition(to Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !CanTransition(t.Status, to) {
		return false
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return true
}

// GetStatus returns the current status.
func (t *Task) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// CanResume reports whether the task may be re-queued.
func (t *Task) CanResume() bool {
	return t.GetStatus().IsResumable()
}

// AddError appends an entry to the error list. The latest entry defines the
// failure explanation surfaced by the progress stream.
func (t *Task) AddError(stage Status, message, details string) {
	t.Atomic(func(task *Task) {
		task.Errors = append(task.Errors, Error{
			Stage:     stage,
			Message:   message,
			Timestamp: time.Now(),
			Details:   details,
		})
	})
}

// LatestError returns the most recent error, or nil when none recorded.
func (t *Task) LatestError() *Error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.Errors) == 0 {
		return nil
	}
	e := t.Errors[len(t.Errors)-1]
	return &e
}

// SetProgress records stage-local progress clamped to [0, 100].
func (t *Task) SetProgress(progress float64) {
	t.Atomic(func(task *Task) {
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		task.Stats.Progress = progress
	})
}

// SetProcessing records a key in the free-form processing bag.
func (t *Task) SetProcessing(key string, value any) {
	t.Atomic(func(task *Task) {
		if task.Metadata.Processing == nil {
			task.Metadata.Processing = make(map[string]any)
		}
		task.Metadata.Processing[key] = value
	})
}

// GetProcessing reads a key from the processing bag.
func (t *Task) GetProcessing(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.Metadata.Processing[key]
	return v, ok
}

// Snapshot returns a point-in-time copy of the task.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := Snapshot{
		ID:        t.ID,
		URL:       t.URL,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Stats:     t.Stats,
		Metadata:  t.Metadata,
		AudioPath: t.AudioPath,
		Errors:    append([]Error(nil), t.Errors...),
	}
	snap.Metadata.Processing = make(map[string]any, len(t.Metadata.Processing))
	for k, v := range t.Metadata.Processing {
		snap.Metadata.Processing[k] = v
	}
	return snap
}
