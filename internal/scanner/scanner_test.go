//go:build linux

package scanner

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasteddreams/preheat/internal/pathfilter"
)

func TestEnumerateProcesses_IncludesSelf(t *testing.T) {
	procs, err := EnumerateProcesses()
	require.NoError(t, err)

	me := os.Getpid()
	found := false
	for _, p := range procs {
		if p.PID == me {
			found = true
			assert.NotEmpty(t, p.Path)
			assert.True(t, p.Path[0] == '/', "exe path should be absolute")
		}
	}
	assert.True(t, found, "self PID should be present in the enumeration")
}

func TestGetMaps_Self(t *testing.T) {
	f := pathfilter.New("", "", "", "")
	total, seeds, err := GetMaps(os.Getpid(), f, true)
	require.NoError(t, err)
	assert.Greater(t, total, int64(0), "the test binary itself should have file-backed maps")
	assert.NotEmpty(t, seeds)
	for _, s := range seeds {
		assert.Equal(t, 1.0, s.Prob)
		assert.True(t, s.Path[0] == '/')
		assert.Greater(t, s.Length, int64(0))
	}
}

func TestGetMaps_VanishedProcess(t *testing.T) {
	f := pathfilter.New("", "", "", "")
	total, seeds, err := GetMaps(999999999, f, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, seeds)
}

func TestGetMaps_MapPrefixFilterExcludes(t *testing.T) {
	// Excluding everything via mapprefix should zero out the total
	// regardless of what is actually mapped.
	f := pathfilter.New("!/", "", "", "")
	total, seeds, err := GetMaps(os.Getpid(), f, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, seeds)
}

func TestGetMemStat(t *testing.T) {
	ms, err := GetMemStat()
	require.NoError(t, err)
	assert.Greater(t, ms.Total, int64(0))
	assert.GreaterOrEqual(t, ms.Free, int64(0))
}
