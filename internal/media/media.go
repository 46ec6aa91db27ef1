// Package media wraps the external tools used by the pipeline: ffprobe for
// stream inspection, ffmpeg for cutting and normalizing audio, and yt-dlp
// for source download and extraction.
package media

import (
	"fmt"

	"github.com/voxetl/voxetl/internal/config"
	"github.com/voxetl/voxetl/internal/util"
)

// Tools holds resolved paths to the external binaries.
type Tools struct {
	FFmpegPath  string
	FFprobePath string
	YTDLPPath   string
}

// DetectTools resolves the external binaries from config, environment
// overrides, the working directory, and PATH, in that order.
func DetectTools(cfg config.MediaConfig) (*Tools, error) {
	ffmpegPath, err := util.FindBinary("ffmpeg", cfg.FFmpegPath, "VOXETL_FFMPEG_BINARY")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := util.FindBinary("ffprobe", cfg.FFprobePath, "VOXETL_FFPROBE_BINARY")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	ytdlpPath, err := util.FindBinary("yt-dlp", cfg.YTDLPPath, "VOXETL_YTDLP_BINARY")
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not found: %w", err)
	}

	return &Tools{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		YTDLPPath:   ytdlpPath,
	}, nil
}
