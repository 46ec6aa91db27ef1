package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/voxetl/voxetl/internal/config"
	"github.com/voxetl/voxetl/internal/storage"
	"github.com/voxetl/voxetl/internal/task"
)

// ChunkInfo describes one chunk in the manifest.
type ChunkInfo struct {
	ChunkIndex   int    `json:"chunk_index"`
	Filename     string `json:"filename"`
	RelativePath string `json:"relative_path"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	DurationMS   int64  `json:"duration_ms"`
	StartMS      int64  `json:"start_ms"`
	EndMS        int64  `json:"end_ms"`
	AudioFormat  string `json:"audio_format"`
	SampleRate   int    `json:"sample_rate"`
	Channels     int    `json:"channels"`
	CreatedAt    string `json:"created_at"`
}

// Manifest is the chunk manifest written at the end of the Splitting stage.
type Manifest struct {
	TotalChunks     int         `json:"total_chunks"`
	TotalDurationMS int64       `json:"total_duration_ms"`
	ChunkDuration   float64     `json:"chunk_duration"`
	AudioFormat     string      `json:"audio_format"`
	SampleRate      int         `json:"sample_rate"`
	Channels        int         `json:"channels"`
	CreatedAt       string      `json:"created_at"`
	Chunks          []ChunkInfo `json:"chunks"`
}

// Splitter runs the Splitting stage: partition the canonical audio into
// chunk artifacts and write the chunk manifest.
type Splitter struct {
	store       storage.Store
	prober      AudioProber
	transformer AudioCutter
	cfg         config.TranscriptionConfig
	logger      *slog.Logger
}

// NewSplitter creates a splitter stage.
func NewSplitter(store storage.Store, prober AudioProber, transformer AudioCutter, cfg config.TranscriptionConfig, logger *slog.Logger) *Splitter {
	return &Splitter{
		store:       store,
		prober:      prober,
		transformer: transformer,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run executes the stage for a task in Splitting with AudioPath set.
func (s *Splitter) Run(ctx context.Context, t *task.Task) error {
	snap := t.Snapshot()
	if snap.AudioPath == "" {
		err := fmt.Errorf("no audio artifact recorded for task")
		t.AddError(task.StatusSplitting, err.Error(), "")
		return err
	}

	scratchDir, err := os.MkdirTemp("", "voxetl-split-*")
	if err != nil {
		t.AddError(task.StatusSplitting, "creating scratch directory failed", err.Error())
		return err
	}
	defer os.RemoveAll(scratchDir)

	audioPath := filepath.Join(scratchDir, "source.wav")
	if err := s.fetchAudio(ctx, snap.AudioPath, audioPath); err != nil {
		t.AddError(task.StatusSplitting, "fetching canonical audio failed", err.Error())
		return err
	}

	probe, err := s.prober.Probe(ctx, audioPath)
	if err != nil {
		t.AddError(task.StatusSplitting, "probing audio duration failed", err.Error())
		return err
	}
	duration := probe.Duration()
	if duration <= 0 {
		err := fmt.Errorf("probed zero duration for %s", snap.AudioPath)
		t.AddError(task.StatusSplitting, err.Error(), "")
		return err
	}

	chunkDuration := s.chunkDuration(t)
	numChunks := int(math.Ceil(duration.Seconds() / chunkDuration.Seconds()))
	if numChunks < 1 {
		numChunks = 1
	}

	manifest := Manifest{
		TotalChunks:     numChunks,
		TotalDurationMS: duration.Milliseconds(),
		ChunkDuration:   chunkDuration.Seconds(),
		AudioFormat:     s.cfg.AudioFormat,
		SampleRate:      s.cfg.AudioSettings.SampleRate,
		Channels:        s.cfg.AudioSettings.Channels,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	produced := 0
	for i := 0; i < numChunks; i++ {
		start := time.Duration(i) * chunkDuration
		end := start + chunkDuration
		if end > duration {
			end = duration
		}
		segment := end - start

		key := storage.ChunkKey(t.ID, i, start, end, s.cfg.AudioFormat)
		outPath := filepath.Join(scratchDir, filepath.Base(key))

		if err := s.transformer.Cut(ctx, audioPath, outPath, start, segment,
			s.cfg.AudioSettings.SampleRate, s.cfg.AudioSettings.Channels); err != nil {
			t.AddError(task.StatusSplitting, fmt.Sprintf("cutting chunk %d failed", i), err.Error())
			continue
		}
		if err := s.uploadChunk(ctx, key, outPath, i); err != nil {
			t.AddError(task.StatusSplitting, fmt.Sprintf("uploading chunk %d failed", i), err.Error())
			continue
		}

		manifest.Chunks = append(manifest.Chunks, ChunkInfo{
			ChunkIndex:   i,
			Filename:     filepath.Base(key),
			RelativePath: key,
			StartTime:    storage.FormatTimestamp(start),
			EndTime:      storage.FormatTimestamp(end),
			DurationMS:   segment.Milliseconds(),
			StartMS:      start.Milliseconds(),
			EndMS:        end.Milliseconds(),
			AudioFormat:  s.cfg.AudioFormat,
			SampleRate:   s.cfg.AudioSettings.SampleRate,
			Channels:     s.cfg.AudioSettings.Channels,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		})
		produced++

		progress := float64(i+1) / float64(numChunks) * 100
		t.SetProgress(math.Min(progress, 99.9))
	}

	if produced == 0 {
		err := fmt.Errorf("no chunks produced from %s", snap.AudioPath)
		t.AddError(task.StatusSplitting, err.Error(), "")
		return err
	}

	if err := s.store.SaveJSON(ctx, storage.ManifestKey(t.ID), manifest); err != nil {
		t.AddError(task.StatusSplitting, "writing chunk manifest failed", err.Error())
		return err
	}

	t.Atomic(func(tk *task.Task) {
		tk.Metadata.Processing[procChunksInfo] = manifest
		tk.Metadata.Processing[procTotalDuration] = duration.Seconds()
		tk.Metadata.Transcription.ChunkCount = produced
		tk.Metadata.Transcription.TotalDuration = duration.Seconds()
	})

	s.logger.Info("split complete",
		slog.String("task_id", t.ID),
		slog.Int("chunks", produced),
		slog.Duration("duration", duration),
	)
	return nil
}

func (s *Splitter) fetchAudio(ctx context.Context, key, destPath string) error {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.ReadFrom(rc); err != nil {
		return err
	}
	return f.Sync()
}

func (s *Splitter) uploadChunk(ctx context.Context, key, path string, index int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	return s.store.Put(ctx, key, f, info.Size(), contentTypeForFormat(s.cfg.AudioFormat),
		map[string]string{"chunk-index": strconv.Itoa(index)})
}

// chunkDuration returns the configured chunk length, honoring a per-task
// override from the processing bag.
func (s *Splitter) chunkDuration(t *task.Task) time.Duration {
	if v, ok := t.GetProcessing(procChunkDuration); ok {
		switch d := v.(type) {
		case time.Duration:
			if d > 0 {
				return d
			}
		case float64:
			if d > 0 {
				return time.Duration(d * float64(time.Second))
			}
		case int:
			if d > 0 {
				return time.Duration(d) * time.Second
			}
		}
	}
	return s.cfg.ChunkDuration
}

func contentTypeForFormat(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
