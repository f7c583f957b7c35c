package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preheat.log")
	lg, err := New(path)
	require.NoError(t, err)
	defer lg.Close()

	lg.Slog().Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestReopen_SurvivesRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheat.log")
	lg, err := New(path)
	require.NoError(t, err)
	defer lg.Close()

	lg.Slog().Info("before-rotate")
	require.NoError(t, os.Rename(path, path+".1"))

	require.NoError(t, lg.Reopen())
	lg.Slog().Info("after-rotate")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after-rotate")
	assert.NotContains(t, string(data), "before-rotate")
}

func TestNew_EmptyPathUsesStderr(t *testing.T) {
	lg, err := New("")
	require.NoError(t, err)
	defer lg.Close()
	assert.NoError(t, lg.Reopen())
}
