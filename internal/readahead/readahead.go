//go:build linux

// Package readahead implements spec §4.7's Readahead Frontend (C6):
// grouping the Prophet's selected Maps by backing file, issuing
// bounded-concurrency readahead(2) and fadvise(WILLNEED) hints, and
// reporting per-Map outcomes for the Stats collector (C9) to turn into
// preload hit/miss accounting.
package readahead

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/wasteddreams/preheat/internal/model"
)

// Event reports the outcome of one Map's readahead attempt.
type Event struct {
	Map *model.Map
	Err error
}

// Run groups maps by backing file and issues readahead + fadvise hints
// with at most maxProcs files open concurrently, for up to deadline
// wall time (the system.maxprocs setting and the half-cycle deadline
// the daemon's predict step passes in). Every attempted
// Map is sent on the returned channel, which is closed once every
// group has been processed or the deadline expires. maxProcs <= 0
// means unbounded.
func Run(ctx context.Context, maps []*model.Map, maxProcs int, deadline time.Duration) <-chan Event {
	events := make(chan Event, len(maps))

	go func() {
		defer close(events)

		dctx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()

		g, gctx := errgroup.WithContext(dctx)
		if maxProcs > 0 {
			g.SetLimit(maxProcs)
		}

		for path, group := range groupByFile(maps) {
			path, group := path, group
			g.Go(func() error {
				preloadFile(gctx, path, group, events)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return events
}

// groupByFile partitions maps by backing path so each file is opened
// exactly once per readahead pass.
func groupByFile(maps []*model.Map) map[string][]*model.Map {
	groups := make(map[string][]*model.Map)
	for _, m := range maps {
		groups[m.Path()] = append(groups[m.Path()], m)
	}
	return groups
}

// preloadFile opens path once and issues a readahead + fadvise pair
// for every Map region within it, stopping early if ctx is cancelled
// (deadline exceeded) partway through a large group.
func preloadFile(ctx context.Context, path string, group []*model.Map, events chan<- Event) {
	f, err := os.Open(path)
	if err != nil {
		for _, m := range group {
			events <- Event{Map: m, Err: err}
		}
		return
	}
	defer f.Close()
	fd := int(f.Fd())

	for _, m := range group {
		select {
		case <-ctx.Done():
			events <- Event{Map: m, Err: ctx.Err()}
			continue
		default:
		}

		err := unix.Readahead(fd, m.Offset(), int(m.Length()))
		if err == nil || err == unix.ENOSYS {
			// Without readahead(2), fadvise(WILLNEED) alone is the hint.
			err = unix.Fadvise(fd, m.Offset(), m.Length(), unix.FADV_WILLNEED)
		}
		events <- Event{Map: m, Err: err}
	}
}
