package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestFindBinary_ExplicitPath(t *testing.T) {
	path := writeExecutable(t, t.TempDir(), "sometool")

	got, err := FindBinary("sometool", path, "")
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestFindBinary_ExplicitPathNotExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sometool")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	_, err := FindBinary("sometool", path, "")
	assert.Error(t, err)
}

func TestFindBinary_EnvOverride(t *testing.T) {
	path := writeExecutable(t, t.TempDir(), "sometool")
	t.Setenv("VOXETL_TEST_BINARY", path)

	got, err := FindBinary("sometool", "", "VOXETL_TEST_BINARY")
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestFindBinary_NotFound(t *testing.T) {
	_, err := FindBinary("definitely-not-a-real-binary-xyz", "", "")
	assert.Error(t, err)
}
