//go:build linux

package readahead

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasteddreams/preheat/internal/model"
)

func TestRun_ReadaheadsSelfExecutable(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	info, err := os.Stat(exe)
	require.NoError(t, err)

	m := &model.Map{Key: model.MapKey{Path: exe, Offset: 0, Length: info.Size()}}

	events := Run(context.Background(), []*model.Map{m}, 2, time.Second)
	var got []Event
	for e := range events {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.NoError(t, got[0].Err)
}

func TestGroupByFile_PartitionsByPath(t *testing.T) {
	m1 := &model.Map{Key: model.MapKey{Path: "/nonexistent/a", Offset: 0, Length: 10}}
	m2 := &model.Map{Key: model.MapKey{Path: "/nonexistent/a", Offset: 10, Length: 10}}
	m3 := &model.Map{Key: model.MapKey{Path: "/nonexistent/b", Offset: 0, Length: 10}}

	groups := groupByFile([]*model.Map{m1, m2, m3})
	assert.Len(t, groups, 2)
	assert.Len(t, groups["/nonexistent/a"], 2)
	assert.Len(t, groups["/nonexistent/b"], 1)
}

func TestRun_MissingFileEmitsError(t *testing.T) {
	m := &model.Map{Key: model.MapKey{Path: "/nonexistent/file", Offset: 0, Length: 10}}

	events := Run(context.Background(), []*model.Map{m}, 1, time.Second)
	var got []Event
	for e := range events {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Error(t, got[0].Err)
}
