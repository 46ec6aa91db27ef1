package media

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ProgressUpdate reports download progress parsed from the extractor output.
type ProgressUpdate struct {
	Percent         float64
	TotalBytes      int64
	DownloadedBytes int64
	Speed           float64 // bytes per second
	Finished        bool
}

// ProgressFunc receives progress updates during extraction.
type ProgressFunc func(ProgressUpdate)

// ExtractorOptions controls audio extraction behavior.
type ExtractorOptions struct {
	SampleRate int
	Channels   int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Extractor downloads a source URL and produces a canonical WAV file using
// yt-dlp. Extraction is fixed to best audio, no playlist, no subtitles,
// 16-bit PCM.
type Extractor struct {
	ytdlpPath string
	opts      ExtractorOptions
	logger    *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(ytdlpPath string, opts ExtractorOptions, logger *slog.Logger) *Extractor {
	return &Extractor{
		ytdlpPath: ytdlpPath,
		opts:      opts,
		logger:    logger,
	}
}

// FetchMetadata probes the source URL without downloading and returns the
// full metadata record.
func (e *Extractor) FetchMetadata(ctx context.Context, url string) (map[string]any, error) {
	cmd := exec.CommandContext(ctx, e.ytdlpPath,
		"--dump-single-json",
		"--no-playlist",
		"--skip-download",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", url, err)
	}

	var meta map[string]any
	if err := json.Unmarshal(output, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata for %s: %w", url, err)
	}
	return meta, nil
}

// ExtractAudio downloads the URL into outDir and returns the path of the
// resulting WAV file. Retries up to MaxRetries times with RetryDelay between
// attempts.
func (e *Extractor) ExtractAudio(ctx context.Context, url, outDir string, progress ProgressFunc) (string, error) {
	attempts := e.opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			e.logger.Warn("retrying audio extraction",
				slog.String("url", url),
				slog.Int("attempt", attempt),
			)
			select {
			case <-time.After(e.opts.RetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		path, err := e.extract(ctx, url, outDir, progress)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("extracting audio from %s after %d attempts: %w", url, attempts, lastErr)
}

func (e *Extractor) extract(ctx context.Context, url, outDir string, progress ProgressFunc) (string, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	postArgs := fmt.Sprintf("ExtractAudio:-ar %d -ac %d -sample_fmt s16", e.opts.SampleRate, e.opts.Channels)
	outTemplate := filepath.Join(outDir, "%(id)s.%(ext)s")

	cmd := exec.CommandContext(ctx, e.ytdlpPath,
		"-f", "bestaudio",
		"--no-playlist",
		"--no-write-subs",
		"--extract-audio",
		"--audio-format", "wav",
		"--postprocessor-args", postArgs,
		"--newline",
		"--print", "after_move:filepath",
		"-o", outTemplate,
		url,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting yt-dlp: %w", err)
	}

	var finalPath string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if update, ok := parseProgressLine(line); ok {
			if progress != nil {
				progress(update)
			}
			continue
		}
		// The after_move print yields the final file path as a bare line.
		if strings.HasPrefix(line, "/") || strings.HasSuffix(line, ".wav") {
			finalPath = strings.TrimSpace(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("yt-dlp timeout after %v", e.opts.Timeout)
		}
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}

	if finalPath == "" {
		// Older yt-dlp versions without after_move support fall back to a
		// directory scan.
		matches, globErr := filepath.Glob(filepath.Join(outDir, "*.wav"))
		if globErr != nil || len(matches) == 0 {
			return "", fmt.Errorf("yt-dlp produced no wav output in %s", outDir)
		}
		finalPath = matches[0]
	}

	if progress != nil {
		progress(ProgressUpdate{Percent: 100, Finished: true})
	}
	return finalPath, nil
}

// downloadLinePattern matches yt-dlp progress lines like:
//
//	[download]  45.2% of 10.55MiB at 2.31MiB/s ETA 00:02
//	[download] 100% of 10.55MiB in 00:05
var downloadLinePattern = regexp.MustCompile(
	`^\[download\]\s+([\d.]+)%\s+of\s+~?\s*([\d.]+)(KiB|MiB|GiB|B)(?:\s+at\s+([\d.]+)(KiB|MiB|GiB|B)/s)?`)

func parseProgressLine(line string) (ProgressUpdate, bool) {
	matches := downloadLinePattern.FindStringSubmatch(line)
	if matches == nil {
		return ProgressUpdate{}, false
	}

	percent, _ := strconv.ParseFloat(matches[1], 64)
	total := sizeToBytes(matches[2], matches[3])

	update := ProgressUpdate{
		Percent:         percent,
		TotalBytes:      int64(total),
		DownloadedBytes: int64(total * percent / 100),
		Finished:        percent >= 100,
	}
	if matches[4] != "" {
		update.Speed = sizeToBytes(matches[4], matches[5])
	}
	return update, true
}

func sizeToBytes(value, unit string) float64 {
	v, _ := strconv.ParseFloat(value, 64)
	switch unit {
	case "KiB":
		return v * 1024
	case "MiB":
		return v * 1024 * 1024
	case "GiB":
		return v * 1024 * 1024 * 1024
	default:
		return v
	}
}
