package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxetl/voxetl/internal/config"
	"github.com/voxetl/voxetl/internal/ratelimit"
	"github.com/voxetl/voxetl/internal/storage"
	"github.com/voxetl/voxetl/internal/task"
	"github.com/voxetl/voxetl/internal/version"
)

const (
	maxTranscribeAttempts = 3
	retryTotalCap         = 300 * time.Second
	waveGap               = time.Second
)

// retryableError marks a failure that the backoff wrapper may retry, with an
// optional server-provided wait hint.
type retryableError struct {
	err  error
	wait time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// transcriptionResponse is the subset of the API response body the pipeline
// interprets. The raw body is persisted verbatim alongside it.
type transcriptionResponse struct {
	Text       string   `json:"text"`
	Language   string   `json:"language,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// chunkArtifact is the per-chunk JSON artifact written after transcription.
type chunkArtifact struct {
	Transcription json.RawMessage   `json:"transcription"`
	Metadata      chunkArtifactMeta `json:"metadata"`
}

type chunkArtifactMeta struct {
	ChunkPath   string   `json:"chunk_path"`
	ProcessedAt string   `json:"processed_at"`
	Model       string   `json:"model"`
	Language    string   `json:"language,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// Transcriber runs the Transcribing and Merging stages: per-chunk remote
// transcription in rate-limited waves, then deterministic merge of the
// per-chunk results.
type Transcriber struct {
	store       storage.Store
	transformer AudioNormalizer
	limiter     *ratelimit.SlidingWindow
	client      *http.Client
	cfg         config.TranscriptionConfig
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewTranscriber creates a transcriber stage. retryDelay is the fallback
// backoff used when the API rate-limits without a Retry-After header.
func NewTranscriber(store storage.Store, transformer AudioNormalizer, limiter *ratelimit.SlidingWindow, cfg config.TranscriptionConfig, retryDelay time.Duration, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		store:       store,
		transformer: transformer,
		limiter:     limiter,
		client:      &http.Client{Timeout: cfg.APITimeout},
		cfg:         cfg,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

// TranscribeAll processes every chunk from the manifest in fixed-size waves.
// Within a wave chunks run concurrently; waves are separated by a 1 second
// gap on top of the rate limiter. Returns an error iff any chunk failed.
func (tr *Transcriber) TranscribeAll(ctx context.Context, t *task.Task) error {
	manifest, ok := manifestFromTask(t)
	if !ok || len(manifest.Chunks) == 0 {
		err := fmt.Errorf("no chunk manifest recorded for task")
		t.AddError(task.StatusTranscribing, err.Error(), "")
		return err
	}

	batchSize := tr.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	total := len(manifest.Chunks)
	done := 0
	var mu sync.Mutex
	orderedResults := make(map[string]bool, total)
	var failedChunks []string

	for waveStart := 0; waveStart < total; waveStart += batchSize {
		waveEnd := waveStart + batchSize
		if waveEnd > total {
			waveEnd = total
		}

		g, waveCtx := errgroup.WithContext(ctx)
		for _, chunk := range manifest.Chunks[waveStart:waveEnd] {
			chunk := chunk
			g.Go(func() error {
				err := tr.transcribeWithRetry(waveCtx, t, chunk.RelativePath)
				mu.Lock()
				orderedResults[chunk.RelativePath] = err == nil
				if err != nil {
					failedChunks = append(failedChunks, chunk.RelativePath)
					tr.logger.Warn("chunk transcription failed",
						slog.String("task_id", t.ID),
						slog.String("chunk", chunk.RelativePath),
						slog.String("error", err.Error()),
					)
				}
				mu.Unlock()
				// Chunk failures are recorded, not propagated, so the rest
				// of the wave still runs.
				return nil
			})
		}
		_ = g.Wait()

		done = waveEnd
		t.SetProgress(math.Min(float64(done)/float64(total)*100, 99.9))

		if done < total {
			select {
			case <-time.After(waveGap):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	sort.Strings(failedChunks)
	t.Atomic(func(tk *task.Task) {
		tk.Metadata.Processing[procFailedChunks] = failedChunks
		tk.Metadata.Processing[procOrderedResults] = orderedResults
	})

	if len(failedChunks) > 0 {
		err := fmt.Errorf("transcription failed for %d of %d chunks: %s",
			len(failedChunks), total, strings.Join(failedChunks, ", "))
		t.AddError(task.StatusTranscribing, err.Error(), "")
		return err
	}
	return nil
}

// transcribeWithRetry wraps the per-chunk contract in exponential backoff:
// up to 3 attempts, total wait capped at 300 seconds, retrying only
// transport and retryable API errors.
func (tr *Transcriber) transcribeWithRetry(ctx context.Context, t *task.Task, chunkKey string) error {
	start := time.Now()
	backoff := tr.retryDelay
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxTranscribeAttempts; attempt++ {
		err := tr.transcribeChunk(ctx, t, chunkKey)
		if err == nil {
			return nil
		}
		lastErr = err

		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return err
		}
		if attempt == maxTranscribeAttempts {
			break
		}

		wait := backoff
		if retryable.wait > wait {
			wait = retryable.wait
		}
		if time.Since(start)+wait > retryTotalCap {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return lastErr
}

// transcribeChunk runs the per-chunk contract: rate-limit admission, fetch,
// normalize, POST, persist artifacts, update task metadata.
func (tr *Transcriber) transcribeChunk(ctx context.Context, t *task.Task, chunkKey string) error {
	if err := tr.waitForAdmission(ctx); err != nil {
		return err
	}

	data, err := tr.store.GetBytes(ctx, chunkKey)
	if err != nil {
		return fmt.Errorf("fetching chunk %s: %w", chunkKey, err)
	}

	scratchDir, err := os.MkdirTemp("", "voxetl-transcribe-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratchDir)

	inPath := filepath.Join(scratchDir, filepath.Base(chunkKey))
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return err
	}

	// Keep the normalized name distinct from the input: chunks may already
	// be mp3, and ffmpeg cannot read and write the same file.
	normalizedPath := strings.TrimSuffix(inPath, filepath.Ext(inPath)) + ".norm.mp3"
	if err := tr.transformer.Normalize(ctx, inPath, normalizedPath, tr.cfg.ChunkMaxSize.Bytes()); err != nil {
		return fmt.Errorf("normalizing chunk %s: %w", chunkKey, err)
	}

	body, err := tr.callAPI(ctx, normalizedPath)
	if err != nil {
		return err
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("parsing transcription response for %s: %w", chunkKey, err)
	}

	if err := tr.persistArtifacts(ctx, chunkKey, body, parsed); err != nil {
		return err
	}

	tr.updateTaskMetadata(t, parsed)
	return nil
}

// waitForAdmission blocks until the rate limiter admits a request.
func (tr *Transcriber) waitForAdmission(ctx context.Context) error {
	for {
		admitted, wait := tr.limiter.Acquire()
		if admitted {
			return nil
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// callAPI issues the multipart POST and returns the response body on 2xx.
// 429 and other non-2xx statuses surface as retryable errors.
func (tr *Transcriber) callAPI(ctx context.Context, audioPath string) ([]byte, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := writer.WriteField("model", tr.cfg.Model); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, err
	}
	if tr.cfg.Language != "" {
		if err := writer.WriteField("language", tr.cfg.Language); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tr.cfg.APIURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tr.cfg.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := tr.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("transcription request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("reading transcription response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := tr.retryDelay
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		return nil, &retryableError{
			err:  fmt.Errorf("transcription API rate limited (429)"),
			wait: wait,
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &retryableError{
			err: fmt.Errorf("transcription API returned %d: %s", resp.StatusCode, truncate(body, 256)),
		}
	}
	return body, nil
}

// persistArtifacts writes the per-chunk JSON and text artifacts next to the
// chunk blob.
func (tr *Transcriber) persistArtifacts(ctx context.Context, chunkKey string, rawBody []byte, parsed transcriptionResponse) error {
	base := strings.TrimSuffix(chunkKey, filepath.Ext(chunkKey))

	language := parsed.Language
	if language == "" {
		language = tr.cfg.Language
	}
	artifact := chunkArtifact{
		Transcription: json.RawMessage(rawBody),
		Metadata: chunkArtifactMeta{
			ChunkPath:   chunkKey,
			ProcessedAt: time.Now().UTC().Format(time.RFC3339),
			Model:       tr.cfg.Model,
			Language:    language,
			Confidence:  parsed.Confidence,
		},
	}
	if err := tr.store.SaveJSON(ctx, base+".json", artifact); err != nil {
		return fmt.Errorf("persisting chunk result %s: %w", base+".json", err)
	}

	text := []byte(parsed.Text)
	if err := tr.store.Put(ctx, base+".txt", bytes.NewReader(text), int64(len(text)), "text/plain", nil); err != nil {
		return fmt.Errorf("persisting chunk text %s: %w", base+".txt", err)
	}
	return nil
}

// updateTaskMetadata folds one chunk result into the task's transcription
// metadata under the task lock.
func (tr *Transcriber) updateTaskMetadata(t *task.Task, parsed transcriptionResponse) {
	t.Atomic(func(tk *task.Task) {
		meta := &tk.Metadata.Transcription
		meta.WordCount += len(strings.Fields(parsed.Text))

		if parsed.Language != "" {
			meta.DetectedLanguage = parsed.Language
		} else if meta.DetectedLanguage == "" {
			meta.DetectedLanguage = tr.cfg.Language
		}

		if parsed.Confidence != nil {
			meta.ConfidenceScores = append(meta.ConfidenceScores, *parsed.Confidence)
			var sum float64
			for _, c := range meta.ConfidenceScores {
				sum += c
			}
			meta.AverageConfidence = sum / float64(len(meta.ConfidenceScores))
		}
	})
}

// Merge concatenates per-chunk texts in chunk-index order and writes the
// merged transcript plus its metadata record.
func (tr *Transcriber) Merge(ctx context.Context, t *task.Task) error {
	infos, err := tr.store.List(ctx, storage.ChunksPrefix(t.ID))
	if err != nil {
		t.AddError(task.StatusMerging, "listing chunk results failed", err.Error())
		return err
	}

	// Lexicographic key order matches chunk order via the zero-padded index.
	var resultKeys []string
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") && filepath.Base(info.Key) != "chunks_manifest.json" {
			resultKeys = append(resultKeys, info.Key)
		}
	}
	sort.Strings(resultKeys)

	if len(resultKeys) == 0 {
		err := fmt.Errorf("no chunk results to merge")
		t.AddError(task.StatusMerging, err.Error(), "")
		return err
	}

	var texts []string
	var chunkMetas []chunkArtifactMeta
	for _, key := range resultKeys {
		var artifact chunkArtifact
		if err := tr.store.GetJSON(ctx, key, &artifact); err != nil {
			t.AddError(task.StatusMerging, fmt.Sprintf("reading chunk result %s failed", key), err.Error())
			return err
		}
		var parsed transcriptionResponse
		if err := json.Unmarshal(artifact.Transcription, &parsed); err != nil {
			t.AddError(task.StatusMerging, fmt.Sprintf("decoding chunk result %s failed", key), err.Error())
			return err
		}
		texts = append(texts, parsed.Text)
		chunkMetas = append(chunkMetas, artifact.Metadata)
	}

	merged := strings.Join(texts, "\n")
	transcriptKey := storage.MergedTranscriptKey(t.ID)
	if err := tr.store.Put(ctx, transcriptKey, strings.NewReader(merged), int64(len(merged)), "text/plain", nil); err != nil {
		t.AddError(task.StatusMerging, "writing merged transcript failed", err.Error())
		return err
	}

	mergedMeta := map[string]any{
		"task_id":      t.ID,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
		"chunks":       chunkMetas,
	}
	if err := tr.store.SaveJSON(ctx, storage.MergedMetadataKey(t.ID), mergedMeta); err != nil {
		t.AddError(task.StatusMerging, "writing merged metadata failed", err.Error())
		return err
	}

	t.Atomic(func(tk *task.Task) {
		tk.Metadata.Transcription.MergedTranscriptPath = transcriptKey
	})

	tr.logger.Info("merge complete",
		slog.String("task_id", t.ID),
		slog.Int("chunks", len(resultKeys)),
	)
	return nil
}

// manifestFromTask reads the chunk manifest recorded by the splitter.
func manifestFromTask(t *task.Task) (Manifest, bool) {
	v, ok := t.GetProcessing(procChunksInfo)
	if !ok {
		return Manifest{}, false
	}
	manifest, ok := v.(Manifest)
	return manifest, ok
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
