package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("hello audio")
	err := store.Put(ctx, "task-1/audio/clip.wav", bytes.NewReader(data), int64(len(data)), "audio/wav", map[string]string{"chunk-index": "0"})
	require.NoError(t, err)

	got, err := store.GetBytes(ctx, "task-1/audio/clip.wav")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "0", store.UserMetadata("task-1/audio/clip.wav")["chunk-index"])
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetBytes(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, key := range []string{
		"t/chunks/chunk_002_x.json",
		"t/chunks/chunk_000_x.json",
		"t/chunks/chunk_001_x.json",
		"t/transcripts/merged_transcript.txt",
	} {
		require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("{}")), 2, "application/json", nil))
	}

	infos, err := store.List(ctx, "t/chunks/")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "t/chunks/chunk_000_x.json", infos[0].Key)
	assert.Equal(t, "t/chunks/chunk_001_x.json", infos[1].Key)
	assert.Equal(t, "t/chunks/chunk_002_x.json", infos[2].Key)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "k", bytes.NewReader([]byte("x")), 1, "", nil))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err := store.GetBytes(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing object is not an error.
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryStore_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.SaveJSON(ctx, "t/metadata/video_metadata.json", record{Name: "clip", Count: 3}))

	var got record
	require.NoError(t, store.GetJSON(ctx, "t/metadata/video_metadata.json", &got))
	assert.Equal(t, record{Name: "clip", Count: 3}, got)

	err := store.GetJSON(ctx, "missing.json", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "00_00_00_000"},
		{300 * time.Second, "00_05_00_000"},
		{3661*time.Second + 250*time.Millisecond, "01_01_01_250"},
		{-time.Second, "00_00_00_000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatTimestamp(tt.d))
	}
}

func TestChunkKey(t *testing.T) {
	key := ChunkKey("task-7", 2, 600*time.Second, 900*time.Second, "wav")
	assert.Equal(t, "task-7/chunks/chunk_002_00_10_00_000_00_15_00_000.wav", key)
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "t1/metadata/video_metadata.json", VideoMetadataKey("t1"))
	assert.Equal(t, "t1/audio/vid.wav", AudioKey("t1", "vid"))
	assert.Equal(t, "t1/chunks/", ChunksPrefix("t1"))
	assert.Equal(t, "t1/chunks/chunks_manifest.json", ManifestKey("t1"))
	assert.Equal(t, "t1/transcripts/merged_transcript.txt", MergedTranscriptKey("t1"))
	assert.Equal(t, "t1/transcripts/merged_metadata.json", MergedMetadataKey("t1"))
}
