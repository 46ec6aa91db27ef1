// Package pipeline implements the task pipeline stages (download, split,
// transcribe, merge), the worker pool that drives them, and the progress
// stream observed by subscribers.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/voxetl/voxetl/internal/media"
	"github.com/voxetl/voxetl/internal/storage"
	"github.com/voxetl/voxetl/internal/task"
)

// Processing bag keys written by the pipeline stages.
const (
	procAudioPath           = "audio_path"
	procTotalSizeBytes      = "total_size_bytes"
	procTotalSize           = "total_size"
	procDownloadedSize      = "downloaded_size"
	procDownloadSpeed       = "download_speed"
	procDownloadStartedAt   = "download_started_at"
	procDownloadCompletedAt = "download_completed_at"
	procDownloadedFilename  = "downloaded_filename"
	procVideoURL            = "video_url"
	procAutomaticCaptions   = "automatic_captions"
	procSubtitles           = "subtitles"
	procChunksInfo          = "chunks_info"
	procChunkDuration       = "chunk_duration"
	procTotalDuration       = "total_duration"
	procFailedChunks        = "failed_chunks"
	procOrderedResults      = "ordered_results"
	procCompletedAt         = "processing_completed_at"
)

// Downloader runs the Downloading stage: probe source metadata, extract the
// canonical WAV, verify it, and persist it to the object store.
type Downloader struct {
	store         storage.Store
	extractor     AudioExtractor
	verifyTimeout time.Duration
	logger        *slog.Logger
}

// NewDownloader creates a downloader stage.
func NewDownloader(store storage.Store, extractor AudioExtractor, logger *slog.Logger) *Downloader {
	return &Downloader{
		store:     store,
		extractor: extractor,
		logger:    logger,
	}
}

// WithVerifyTimeout bounds the post-extraction audio verification. Zero
// means unbounded.
func (d *Downloader) WithVerifyTimeout(timeout time.Duration) *Downloader {
	d.verifyTimeout = timeout
	return d
}

// Run executes the stage for a task in Downloading. On failure it records a
// task error and returns it; the caller performs the transition to Failed.
func (d *Downloader) Run(ctx context.Context, t *task.Task) error {
	url := strings.TrimSpace(t.URL)
	if url == "" {
		err := fmt.Errorf("empty source url")
		t.AddError(task.StatusDownloading, err.Error(), "")
		return err
	}

	t.Atomic(func(tk *task.Task) {
		tk.Metadata.Processing[procDownloadStartedAt] = time.Now().UTC().Format(time.RFC3339)
		tk.Metadata.Processing[procVideoURL] = url
	})

	meta, err := d.extractor.FetchMetadata(ctx, url)
	if err != nil {
		t.AddError(task.StatusDownloading, "fetching source metadata failed", err.Error())
		return err
	}
	if err := d.store.SaveJSON(ctx, storage.VideoMetadataKey(t.ID), meta); err != nil {
		t.AddError(task.StatusDownloading, "persisting source metadata failed", err.Error())
		return err
	}
	applyVideoMetadata(t, meta)

	scratchDir, err := os.MkdirTemp("", "voxetl-download-*")
	if err != nil {
		t.AddError(task.StatusDownloading, "creating scratch directory failed", err.Error())
		return err
	}
	defer os.RemoveAll(scratchDir)

	wavPath, err := d.extractor.ExtractAudio(ctx, url, scratchDir, func(u media.ProgressUpdate) {
		t.Atomic(func(tk *task.Task) {
			if u.TotalBytes > 0 {
				tk.Stats.TotalBytes = u.TotalBytes
			}
			if u.DownloadedBytes > 0 {
				tk.Stats.DownloadedBytes = u.DownloadedBytes
			}
			if u.Speed > 0 {
				tk.Stats.Speed = u.Speed
				tk.Metadata.Processing[procDownloadSpeed] = u.Speed
			}
			if u.Finished {
				tk.Stats.Progress = 100
			} else {
				tk.Stats.Progress = u.Percent
			}
			tk.Metadata.Processing[procTotalSize] = tk.Stats.TotalBytes
			tk.Metadata.Processing[procDownloadedSize] = tk.Stats.DownloadedBytes
		})
	})
	if err != nil {
		t.AddError(task.StatusDownloading, "audio extraction failed", err.Error())
		return err
	}

	if err := d.verify(ctx, wavPath); err != nil {
		t.AddError(task.StatusDownloading, "audio verification failed", err.Error())
		return err
	}

	f, err := os.Open(wavPath)
	if err != nil {
		t.AddError(task.StatusDownloading, "opening extracted audio failed", err.Error())
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.AddError(task.StatusDownloading, "inspecting extracted audio failed", err.Error())
		return err
	}

	audioKey := storage.AudioKey(t.ID, videoID(t, meta))
	if err := d.store.Put(ctx, audioKey, f, info.Size(), "audio/wav", nil); err != nil {
		t.AddError(task.StatusDownloading, "uploading audio failed", err.Error())
		return err
	}

	t.Atomic(func(tk *task.Task) {
		tk.AudioPath = audioKey
		tk.Metadata.Processing[procAudioPath] = audioKey
		tk.Metadata.Processing[procDownloadedFilename] = audioKey
		tk.Metadata.Processing[procTotalSizeBytes] = info.Size()
		tk.Metadata.Processing[procDownloadCompletedAt] = time.Now().UTC().Format(time.RFC3339)
	})

	d.logger.Info("download complete",
		slog.String("task_id", t.ID),
		slog.String("audio_path", audioKey),
		slog.Int64("size_bytes", info.Size()),
	)
	return nil
}

// verify runs the WAV header check under the configured timeout. The check
// reads from disk, which can stall on network-backed scratch volumes.
func (d *Downloader) verify(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.verifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.verifyTimeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- media.VerifyWAV(path) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyVideoMetadata lifts the fixed metadata subset onto the task and
// computes the sanitized title.
func applyVideoMetadata(t *task.Task, meta map[string]any) {
	var video task.VideoMetadata
	if data, err := json.Marshal(meta); err == nil {
		_ = json.Unmarshal(data, &video)
	}
	video.ProcessedTitle = media.SanitizeTitle(video.Title)

	t.Atomic(func(tk *task.Task) {
		tk.Metadata.Video = video
		if captions, ok := meta["automatic_captions"]; ok {
			tk.Metadata.Processing[procAutomaticCaptions] = captionLanguages(captions)
		}
		if subs, ok := meta["subtitles"]; ok {
			tk.Metadata.Processing[procSubtitles] = captionLanguages(subs)
		}
	})
}

// captionLanguages reduces a yt-dlp caption map to its language codes; the
// full track listings are large and already persisted in the metadata blob.
func captionLanguages(v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	langs := make([]string, 0, len(m))
	for lang := range m {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// videoID picks a stable artifact name for the canonical audio: the source
// ID when available, else the sanitized title, else the task ID.
func videoID(t *task.Task, meta map[string]any) string {
	if id, ok := meta["id"].(string); ok && id != "" {
		return media.SanitizeTitle(id)
	}
	snap := t.Snapshot()
	if snap.Metadata.Video.ProcessedTitle != "" && snap.Metadata.Video.ProcessedTitle != "untitled" {
		return snap.Metadata.Video.ProcessedTitle
	}
	return t.ID
}
