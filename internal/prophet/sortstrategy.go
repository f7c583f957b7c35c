//go:build linux

package prophet

import (
	"os"
	"sort"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wasteddreams/preheat/internal/model"
)

// SortStrategy is spec §4.6/§6's "system.sortstrategy" knob: how the
// selected Maps are ordered before being handed to the Readahead
// Frontend (C6).
type SortStrategy int

const (
	// SortNone preserves selection order (ascending Lnprob).
	SortNone SortStrategy = iota
	// SortPath orders lexically by file path, then by offset.
	SortPath
	// SortInode orders by the backing file's inode number, then
	// offset — cheaper than block ordering and a good proxy for
	// on-disk locality on most filesystems.
	SortInode
	// SortBlock orders by the file's first physical block number via
	// the FIBMAP ioctl, falling back to inode ordering for any Map
	// whose ioctl fails (e.g. on filesystems that don't support it).
	SortBlock
)

// ParseSortStrategy parses the config string (spec §6), defaulting
// unknown values to SortNone.
func ParseSortStrategy(s string) SortStrategy {
	switch s {
	case "path":
		return SortPath
	case "inode":
		return SortInode
	case "block":
		return SortBlock
	default:
		return SortNone
	}
}

// Order sorts a selected slice of Maps in place according to strategy
// and returns it, for convenient chaining after Select.
func Order(maps []*model.Map, strategy SortStrategy) []*model.Map {
	switch strategy {
	case SortPath:
		sort.SliceStable(maps, func(i, j int) bool {
			if maps[i].Path() != maps[j].Path() {
				return maps[i].Path() < maps[j].Path()
			}
			return maps[i].Offset() < maps[j].Offset()
		})
	case SortInode:
		orderByInode(maps)
	case SortBlock:
		orderByBlock(maps)
	}
	return maps
}

type inodeKey struct {
	inode  uint64
	offset int64
}

func orderByInode(maps []*model.Map) {
	keys := make(map[string]inodeKey, len(maps))
	for _, m := range maps {
		keys[m.Path()] = inodeKey{inode: statInode(m.Path()), offset: m.Offset()}
	}
	sort.SliceStable(maps, func(i, j int) bool {
		ki, kj := keys[maps[i].Path()], keys[maps[j].Path()]
		if ki.inode != kj.inode {
			return ki.inode < kj.inode
		}
		return ki.offset < kj.offset
	})
}

func statInode(path string) uint64 {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0
	}
	return st.Ino
}

type blockKey struct {
	block  int64
	offset int64
}

func orderByBlock(maps []*model.Map) {
	keys := make(map[string]blockKey, len(maps))
	for _, m := range maps {
		block, err := firstPhysicalBlock(m.Path())
		if err != nil {
			// FIBMAP unsupported or failed: fall back to inode
			// ordering for this one Map rather than aborting the
			// whole pass.
			block = int64(statInode(m.Path()))
		}
		keys[m.Path()] = blockKey{block: block, offset: m.Offset()}
	}
	sort.SliceStable(maps, func(i, j int) bool {
		ki, kj := keys[maps[i].Path()], keys[maps[j].Path()]
		if ki.block != kj.block {
			return ki.block < kj.block
		}
		return ki.offset < kj.offset
	})
}

// firstPhysicalBlock resolves the physical block number backing
// logical block 0 of path via the FIBMAP ioctl, the same mechanism the
// original C daemon uses to order readahead by disk locality.
func firstPhysicalBlock(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var block uint32 // in: logical block 0; out: physical block number
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(unix.FIBMAP), uintptr(unsafe.Pointer(&block)))
	if errno != 0 {
		return 0, errno
	}
	return int64(block), nil
}
