package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrChunkTooLarge is returned when a normalized chunk still exceeds the
// configured size ceiling.
var ErrChunkTooLarge = fmt.Errorf("media: normalized chunk exceeds size limit")

// Transformer runs ffmpeg cut and normalize operations on local files.
type Transformer struct {
	ffmpegPath string
	timeout    time.Duration
}

// NewTransformer creates a transformer. Operations are bounded by the given
// wall-clock timeout.
func NewTransformer(ffmpegPath string, timeout time.Duration) *Transformer {
	return &Transformer{
		ffmpegPath: ffmpegPath,
		timeout:    timeout,
	}
}

// Cut extracts a single contiguous segment into outPath, resampling to the
// requested rate and channel count. The output codec follows the outPath
// extension, with WAV forced to 16-bit PCM.
func (t *Transformer) Cut(ctx context.Context, inPath, outPath string, start, duration time.Duration, sampleRate, channels int) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", inPath,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
	}
	if strings.EqualFold(filepath.Ext(outPath), ".wav") {
		args = append(args, "-c:a", "pcm_s16le")
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("cut timeout after %v", t.timeout)
		}
		return fmt.Errorf("cutting %s: %w: %s", inPath, err, tail(output))
	}
	return nil
}

// Normalize transcodes inPath to MP3 mono 16 kHz 128 kbps with a fixed
// filter chain and strips container metadata. Returns ErrChunkTooLarge when
// the result exceeds maxSize bytes.
func (t *Transformer) Normalize(ctx context.Context, inPath, outPath string, maxSize int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-i", inPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		"-filter:a", "volume=1.0,highpass=f=40,lowpass=f=7000",
		"-map_metadata", "-1",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("normalize timeout after %v", t.timeout)
		}
		return fmt.Errorf("normalizing %s: %w: %s", inPath, err, tail(output))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("checking normalized output: %w", err)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return fmt.Errorf("%w: %d bytes > %d", ErrChunkTooLarge, info.Size(), maxSize)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// tail returns the last portion of command output for error messages.
func tail(output []byte) string {
	const limit = 512
	if len(output) <= limit {
		return string(output)
	}
	return "..." + string(output[len(output)-limit:])
}
