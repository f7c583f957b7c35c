package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesOnlyNamedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preheat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  cycle: 5\nsystem:\n  maxprocs: 2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Model.Cycle)
	assert.Equal(t, 2, cfg.System.MaxProcs)
	assert.True(t, cfg.Model.UseCorrelation) // untouched key keeps its default
}

func TestValidate_RejectsZeroCycle(t *testing.T) {
	cfg := Default()
	cfg.Model.Cycle = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsUnknownSortStrategy(t *testing.T) {
	cfg := Default()
	cfg.System.SortStrategy = "bogus"
	assert.Error(t, Validate(cfg))
}

func TestLoad_InvalidYAMLIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preheat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [this is not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
