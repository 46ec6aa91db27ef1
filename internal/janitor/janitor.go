// Package janitor removes orphaned scratch directories left behind by
// crashed or interrupted pipeline runs.
package janitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voxetl/voxetl/internal/config"
)

// ScratchPrefix marks every temp directory the pipeline creates.
const ScratchPrefix = "voxetl-"

// Janitor runs the cleanup on a cron schedule.
type Janitor struct {
	mu      sync.Mutex
	cfg     config.JanitorConfig
	baseDir string
	cron    *cron.Cron
	logger  *slog.Logger
}

// New creates a janitor that sweeps the system temp directory.
func New(cfg config.JanitorConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		cfg:     cfg,
		baseDir: os.TempDir(),
		logger:  logger,
	}
}

// WithBaseDir overrides the swept directory.
func (j *Janitor) WithBaseDir(dir string) *Janitor {
	j.baseDir = dir
	return j
}

// Start schedules the cleanup and runs one sweep immediately. It is a
// no-op when the janitor is disabled.
func (j *Janitor) Start() error {
	if !j.cfg.Enabled {
		j.logger.Debug("janitor disabled")
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return fmt.Errorf("janitor already started")
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(j.cfg.Cron, func() {
		if _, err := j.Sweep(); err != nil {
			j.logger.Error("scheduled sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("invalid janitor cron expression %q: %w", j.cfg.Cron, err)
	}

	if _, err := j.Sweep(); err != nil {
		j.logger.Warn("initial sweep failed", slog.Any("error", err))
	}

	c.Start()
	j.cron = c

	j.logger.Info("janitor started",
		slog.String("cron", j.cfg.Cron),
		slog.Duration("max_age", j.cfg.MaxAge),
		slog.String("base_dir", j.baseDir),
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	j.logger.Info("janitor stopped")
}

// Sweep removes scratch directories older than the configured max age.
// It returns the number of directories removed.
func (j *Janitor) Sweep() (int, error) {
	if _, err := os.Stat(j.baseDir); os.IsNotExist(err) {
		return 0, nil
	}

	entries, err := os.ReadDir(j.baseDir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", j.baseDir, err)
	}

	cutoff := time.Now().Add(-j.cfg.MaxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), ScratchPrefix) {
			continue
		}

		path := filepath.Join(j.baseDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			j.logger.Warn("failed to stat scratch directory",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("failed to remove scratch directory",
				slog.String("path", path),
				slog.Any("error", err),
			)
			continue
		}

		j.logger.Info("removed orphaned scratch directory",
			slog.String("path", path),
			slog.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
		)
		removed++
	}

	return removed, nil
}
