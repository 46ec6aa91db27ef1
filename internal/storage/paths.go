package storage

import (
	"fmt"
	"path"
	"time"
)

// Artifact key layout. All artifacts for a task live under its ID so that a
// single prefix list (or delete) covers the whole task.
const (
	metadataDir    = "metadata"
	audioDir       = "audio"
	chunksDir      = "chunks"
	transcriptsDir = "transcripts"

	manifestFilename         = "chunks_manifest.json"
	mergedTranscriptFilename = "merged_transcript.txt"
	mergedMetadataFilename   = "merged_metadata.json"
)

// VideoMetadataKey returns the key of the probed source metadata record.
func VideoMetadataKey(taskID string) string {
	return path.Join(taskID, metadataDir, "video_metadata.json")
}

// AudioKey returns the key of the canonical audio artifact.
func AudioKey(taskID, videoID string) string {
	return path.Join(taskID, audioDir, videoID+".wav")
}

// ChunksPrefix returns the prefix under which all chunk artifacts live.
func ChunksPrefix(taskID string) string {
	return path.Join(taskID, chunksDir) + "/"
}

// ChunkKey returns the key of a chunk blob. The index is zero-padded so that
// lexicographic ordering of keys matches chunk order.
func ChunkKey(taskID string, index int, start, end time.Duration, format string) string {
	name := fmt.Sprintf("chunk_%03d_%s_%s.%s", index, FormatTimestamp(start), FormatTimestamp(end), format)
	return path.Join(taskID, chunksDir, name)
}

// ManifestKey returns the key of the chunk manifest.
func ManifestKey(taskID string) string {
	return path.Join(taskID, chunksDir, manifestFilename)
}

// MergedTranscriptKey returns the key of the merged transcript text.
func MergedTranscriptKey(taskID string) string {
	return path.Join(taskID, transcriptsDir, mergedTranscriptFilename)
}

// MergedMetadataKey returns the key of the merged transcript metadata.
func MergedMetadataKey(taskID string) string {
	return path.Join(taskID, transcriptsDir, mergedMetadataFilename)
}

// FormatTimestamp renders a duration as HH_MM_SS_mmm for use in chunk
// filenames.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d_%02d_%02d_%03d", h, m, s, ms)
}
