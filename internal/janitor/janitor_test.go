package janitor

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxetl/voxetl/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.JanitorConfig {
	return config.JanitorConfig{
		Enabled: true,
		Cron:    "0 0 * * * *",
		MaxAge:  time.Hour,
	}
}

func makeScratchDir(t *testing.T, base, name string, age time.Duration) string {
	t.Helper()

	path := filepath.Join(base, name)
	require.NoError(t, os.Mkdir(path, 0o755))

	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	return path
}

func TestSweep_RemovesOldScratchDirs(t *testing.T) {
	base := t.TempDir()

	old := makeScratchDir(t, base, "voxetl-download-abc", 2*time.Hour)
	recent := makeScratchDir(t, base, "voxetl-split-def", time.Minute)
	unrelated := makeScratchDir(t, base, "other-project-xyz", 2*time.Hour)

	file := filepath.Join(base, "voxetl-not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	stamp := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(file, stamp, stamp))

	j := New(testConfig(), testLogger()).WithBaseDir(base)

	removed, err := j.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, old)
	assert.DirExists(t, recent)
	assert.DirExists(t, unrelated)
	assert.FileExists(t, file)
}

func TestSweep_MissingBaseDir(t *testing.T) {
	j := New(testConfig(), testLogger()).WithBaseDir(filepath.Join(t.TempDir(), "missing"))

	removed, err := j.Sweep()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStart_DisabledIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	j := New(cfg, testLogger())
	require.NoError(t, j.Start())
	j.Stop()
}

func TestStart_InvalidCron(t *testing.T) {
	cfg := testConfig()
	cfg.Cron = "not a cron"

	j := New(cfg, testLogger()).WithBaseDir(t.TempDir())
	assert.Error(t, j.Start())
}

func TestStart_RunsInitialSweep(t *testing.T) {
	base := t.TempDir()
	old := makeScratchDir(t, base, "voxetl-transcribe-ghi", 2*time.Hour)

	j := New(testConfig(), testLogger()).WithBaseDir(base)
	require.NoError(t, j.Start())
	defer j.Stop()

	assert.NoDirExists(t, old)
}

func TestStart_Twice(t *testing.T) {
	j := New(testConfig(), testLogger()).WithBaseDir(t.TempDir())
	require.NoError(t, j.Start())
	defer j.Stop()

	assert.Error(t, j.Start())
}
