//go:build linux

package prophet

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasteddreams/preheat/internal/model"
)

func TestParseSortStrategy(t *testing.T) {
	assert.Equal(t, SortPath, ParseSortStrategy("path"))
	assert.Equal(t, SortInode, ParseSortStrategy("inode"))
	assert.Equal(t, SortBlock, ParseSortStrategy("block"))
	assert.Equal(t, SortNone, ParseSortStrategy("bogus"))
}

func TestOrder_SortPath(t *testing.T) {
	maps := []*model.Map{
		{Key: model.MapKey{Path: "/b", Offset: 0}},
		{Key: model.MapKey{Path: "/a", Offset: 10}},
		{Key: model.MapKey{Path: "/a", Offset: 0}},
	}
	Order(maps, SortPath)
	require.Len(t, maps, 3)
	assert.Equal(t, "/a", maps[0].Path())
	assert.Equal(t, int64(0), maps[0].Offset())
	assert.Equal(t, "/a", maps[1].Path())
	assert.Equal(t, int64(10), maps[1].Offset())
	assert.Equal(t, "/b", maps[2].Path())
}

func TestOrder_SortNoneLeavesOrderUnchanged(t *testing.T) {
	a := &model.Map{Key: model.MapKey{Path: "/b"}}
	b := &model.Map{Key: model.MapKey{Path: "/a"}}
	maps := []*model.Map{a, b}
	Order(maps, SortNone)
	assert.Equal(t, []*model.Map{a, b}, maps)
}

func TestOrder_SortInode_GroupsSameFile(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	maps := []*model.Map{
		{Key: model.MapKey{Path: exe, Offset: 100}},
		{Key: model.MapKey{Path: exe, Offset: 0}},
	}
	Order(maps, SortInode)
	assert.Equal(t, int64(0), maps[0].Offset())
	assert.Equal(t, int64(100), maps[1].Offset())
}
