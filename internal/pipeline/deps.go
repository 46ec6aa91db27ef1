package pipeline

import (
	"context"
	"time"

	"github.com/voxetl/voxetl/internal/media"
)

// AudioExtractor probes source metadata and extracts the canonical WAV.
// *media.Extractor is the production implementation.
type AudioExtractor interface {
	FetchMetadata(ctx context.Context, url string) (map[string]any, error)
	ExtractAudio(ctx context.Context, url, outDir string, progress media.ProgressFunc) (string, error)
}

// AudioProber reports format and duration of a local media file.
// *media.Prober is the production implementation.
type AudioProber interface {
	Probe(ctx context.Context, input string) (*media.ProbeResult, error)
}

// AudioCutter extracts one contiguous segment from a local audio file.
// *media.Transformer is the production implementation.
type AudioCutter interface {
	Cut(ctx context.Context, inPath, outPath string, start, duration time.Duration, sampleRate, channels int) error
}

// AudioNormalizer transcodes a chunk for upload to the transcription API.
// *media.Transformer is the production implementation.
type AudioNormalizer interface {
	Normalize(ctx context.Context, inPath, outPath string, maxSize int64) error
}
