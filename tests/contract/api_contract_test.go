package contract

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxetl/voxetl/internal/pipeline"
	"github.com/voxetl/voxetl/internal/task"
)

// TestStreamEventContract pins the wire shape of SSE progress events.
func TestStreamEventContract(t *testing.T) {
	event := pipeline.Event{
		ID:           "task-1",
		Status:       "Transcribing",
		Progress:     42.5,
		Error:        "boom",
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
		CurrentStage: "Transcribing",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, key := range []string{"id", "status", "progress", "error", "created_at", "updated_at", "current_stage"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, "task-1", decoded["id"])
	assert.Equal(t, "Transcribing", decoded["status"])
	assert.InDelta(t, 42.5, decoded["progress"], 0.001)
}

// TestTaskSnapshotContract pins the wire shape of the task read API.
func TestTaskSnapshotContract(t *testing.T) {
	tk := task.New("https://example.com/watch?v=abc")
	tk.TryTransition(task.StatusDownloading)
	tk.AddError(task.StatusDownloading, "network hiccup", "dial tcp: timeout")
	tk.SetProgress(12.5)

	data, err := json.Marshal(tk.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, key := range []string{"id", "url", "status", "stats", "metadata", "errors", "created_at", "updated_at"} {
		assert.Contains(t, decoded, key)
	}

	assert.Equal(t, "Downloading", decoded["status"])

	stats, ok := decoded["stats"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 12.5, stats["progress"], 0.001)

	errs, ok := decoded["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	first, ok := errs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "network hiccup", first["message"])
	assert.Equal(t, "Downloading", first["stage"])
}

// TestStatusValuesContract pins the status vocabulary observed by clients.
func TestStatusValuesContract(t *testing.T) {
	expected := []string{
		"Pending", "Downloading", "Splitting", "Transcribing",
		"Merging", "Completed", "Failed", "Cancelled", "Paused",
	}

	actual := []string{
		task.StatusPending.String(),
		task.StatusDownloading.String(),
		task.StatusSplitting.String(),
		task.StatusTranscribing.String(),
		task.StatusMerging.String(),
		task.StatusCompleted.String(),
		task.StatusFailed.String(),
		task.StatusCancelled.String(),
		task.StatusPaused.String(),
	}

	assert.Equal(t, expected, actual)
}

// TestChunkManifestContract pins the manifest layout consumed by the
// transcriber and any external tooling reading the bucket.
func TestChunkManifestContract(t *testing.T) {
	manifest := pipeline.Manifest{
		TotalChunks:     2,
		TotalDurationMS: 600000,
		ChunkDuration:   300,
		AudioFormat:     "wav",
		SampleRate:      16000,
		Channels:        1,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
		Chunks: []pipeline.ChunkInfo{
			{
				ChunkIndex:   0,
				Filename:     "chunk_000_00_00_00_000_00_05_00_000.wav",
				RelativePath: "task-1/chunks/chunk_000_00_00_00_000_00_05_00_000.wav",
				StartTime:    "00_00_00_000",
				EndTime:      "00_05_00_000",
				DurationMS:   300000,
				StartMS:      0,
				EndMS:        300000,
				AudioFormat:  "wav",
				SampleRate:   16000,
				Channels:     1,
			},
		},
	}

	data, err := json.Marshal(manifest)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, key := range []string{"total_chunks", "total_duration_ms", "chunk_duration", "audio_format", "sample_rate", "channels", "created_at", "chunks"} {
		assert.Contains(t, decoded, key)
	}

	chunks, ok := decoded["chunks"].([]any)
	require.True(t, ok)
	require.Len(t, chunks, 1)
	chunk, ok := chunks[0].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"chunk_index", "filename", "relative_path", "start_time", "end_time", "duration_ms", "start_ms", "end_ms"} {
		assert.Contains(t, chunk, key)
	}
}
