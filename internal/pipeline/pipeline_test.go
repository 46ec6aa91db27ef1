package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voxetl/voxetl/internal/config"
	"github.com/voxetl/voxetl/internal/media"
	"github.com/voxetl/voxetl/internal/ratelimit"
	"github.com/voxetl/voxetl/internal/storage"
)

// Shared fakes for exercising the pipeline without external tools.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wavBytes returns a minimal valid WAV payload.
func wavBytes() []byte {
	header := append([]byte("RIFF"), 0, 0, 0, 0)
	header = append(header, []byte("WAVEfmt ")...)
	data := make([]byte, 64)
	copy(data, header)
	return data
}

type fakeExtractor struct {
	mu         sync.Mutex
	meta       map[string]any
	metaErr    error
	extractErr error
	block      chan struct{}
	calls      int
}

func (f *fakeExtractor) FetchMetadata(_ context.Context, _ string) (map[string]any, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	if f.meta != nil {
		return f.meta, nil
	}
	return map[string]any{
		"id":       "vid123",
		"title":    "Test Video",
		"duration": 600.0,
		"uploader": "tester",
	}, nil
}

func (f *fakeExtractor) ExtractAudio(ctx context.Context, _, outDir string, progress media.ProgressFunc) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls++
	err := f.extractErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}

	if progress != nil {
		progress(media.ProgressUpdate{Percent: 50, TotalBytes: 1000, DownloadedBytes: 500, Speed: 100})
		progress(media.ProgressUpdate{Percent: 100, TotalBytes: 1000, DownloadedBytes: 1000, Finished: true})
	}

	path := filepath.Join(outDir, "vid123.wav")
	if err := os.WriteFile(path, wavBytes(), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

type fakeProber struct {
	duration time.Duration
	err      error
}

func (f *fakeProber) Probe(_ context.Context, input string) (*media.ProbeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &media.ProbeResult{
		Format: media.ProbeFormat{
			Filename:   input,
			FormatName: "wav",
			Duration:   strconv.FormatFloat(f.duration.Seconds(), 'f', 6, 64),
		},
	}, nil
}

type fakeCutter struct {
	mu          sync.Mutex
	failIndexes map[int]bool
	calls       int
}

func (f *fakeCutter) Cut(_ context.Context, _, outPath string, _, _ time.Duration, _, _ int) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	index := chunkIndexFromName(filepath.Base(outPath))
	if f.failIndexes[index] {
		return fmt.Errorf("simulated cut failure for chunk %d", index)
	}
	return os.WriteFile(outPath, wavBytes(), 0o600)
}

func chunkIndexFromName(name string) int {
	if !strings.HasPrefix(name, "chunk_") || len(name) < 9 {
		return -1
	}
	idx, err := strconv.Atoi(name[6:9])
	if err != nil {
		return -1
	}
	return idx
}

type fakeNormalizer struct {
	err error
}

func (f *fakeNormalizer) Normalize(_ context.Context, inPath, outPath string, _ int64) error {
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o600)
}

// transcriptionServer fakes the remote API. failFiles maps uploaded chunk
// base names to the status code they should receive.
func transcriptionServer(failFiles map[string]int, texts map[string]string) *httptest.Server {
	var requestCount int
	var mu sync.Mutex

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestCount++
		mu.Unlock()

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if code, ok := failFiles[header.Filename]; ok {
			if code == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "0")
			}
			http.Error(w, "simulated failure", code)
			return
		}

		text := "hello world"
		if t, ok := texts[header.Filename]; ok {
			text = t
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"text":%q,"language":"en","confidence":0.92}`, text)
	}))
}

func testTranscriptionConfig(apiURL string) config.TranscriptionConfig {
	return config.TranscriptionConfig{
		APIURL:        apiURL,
		APIKey:        "test-key",
		Model:         "whisper-large-v3",
		APITimeout:    5 * time.Second,
		ChunkMaxSize:  25 * 1024 * 1024,
		ChunkDuration: 300 * time.Second,
		AudioFormat:   "wav",
		AudioSettings: config.AudioSettings{SampleRate: 16000, Channels: 1},
		BatchSize:     5,
	}
}

func newTestTranscriber(store storage.Store, apiURL string) *Transcriber {
	limiter := ratelimit.New(time.Minute, 1000)
	return NewTranscriber(store, &fakeNormalizer{}, limiter, testTranscriptionConfig(apiURL), 10*time.Millisecond, testLogger())
}
