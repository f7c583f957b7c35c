// Package scheduler implements spec §4.9's Scheduler (C8): the
// single-threaded cooperative loop that sequences tick_scan,
// phase-offset tick_model, and tick_save, and serializes deferred
// control signals (reload/dump/save/stop) between ticks. Grounded on
// the ticker-driven select loop of the example pack's CLI sampling
// loop (cmd/consumption/main.go's `for { select { ...; case
// <-ticker.C: ... } }`), generalized to three independently
// configurable periods instead of one. The periods are read once when
// Run starts; they are not rescheduled while it runs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/wasteddreams/preheat/internal/model"
)

// Signal is one of spec §6's asynchronously latched control requests.
type Signal int

const (
	SignalReload Signal = iota
	SignalDump
	SignalSave
	SignalStop
)

// Scheduler owns the single *model.State for the daemon's lifetime
// (spec §9 "Global state": never a package global) and the callbacks
// that perform each tick's work. Callbacks are injected rather than
// the Scheduler importing spy/prophet/readahead/persist directly, so
// this package stays a pure control-flow primitive.
type Scheduler struct {
	State *model.State

	Cycle    time.Duration
	Autosave time.Duration // 0 disables tick_save

	// DoScan implements spec §4.4 steps 1-3 (Spy.Scan). Called at every
	// tick_scan, after S.time has been advanced by Cycle.
	DoScan func() error
	// DoPredict implements spec §4.6+§4.7 (Prophet + Readahead), run
	// immediately after DoScan within the same tick_scan per spec
	// §4.9's table ("tick_scan: ... C4 step 1-3; C5 + C6").
	DoPredict func() error
	// DoModel implements spec §4.4 steps 4-6 (Spy.UpdateModel), run at
	// tick_model, phase-offset by Cycle/2.
	DoModel func() error
	// DoSave implements spec §4.8's write procedure (persist.Save).
	DoSave func() error

	// OnReload/OnDump/OnStop run synchronously on the scheduler
	// goroutine when the corresponding signal is drained, guaranteeing
	// they never race a tick (spec §5 "processed between ticks").
	OnReload func()
	OnDump   func()
	OnStop   func()

	// ErrHandler receives any error a tick callback returns (spec §7:
	// most of these are Transient and already swallowed by the callee,
	// but this is the catch-all for anything that bubbles up).
	ErrHandler func(source string, err error)

	mu         sync.Mutex
	pending    []Signal
	pendingSet map[Signal]bool
	wake       chan struct{}
}

// New creates a Scheduler. Callbacks are wired by the caller (cmd/preheatd)
// after construction.
func New(s *model.State, cycle, autosave time.Duration) *Scheduler {
	return &Scheduler{
		State:      s,
		Cycle:      cycle,
		Autosave:   autosave,
		pendingSet: make(map[Signal]bool),
		wake:       make(chan struct{}, 1),
	}
}

// Signal enqueues a deferred control request. Duplicate signals of the
// same kind queued before the scheduler drains them collapse to one
// (spec §5 "multiple coalescable events... collapse to one").
func (sch *Scheduler) Signal(sig Signal) {
	sch.mu.Lock()
	if !sch.pendingSet[sig] {
		sch.pendingSet[sig] = true
		sch.pending = append(sch.pending, sig)
	}
	sch.mu.Unlock()

	select {
	case sch.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled or a stop signal is
// processed. It never returns a non-nil error on a graceful stop;
// ctx.Err() is swallowed too, since cancellation is the normal way a
// caller asks the daemon to exit.
func (sch *Scheduler) Run(ctx context.Context) error {
	if sch.Cycle <= 0 {
		sch.Cycle = 20 * time.Second
	}

	scanTicker := time.NewTicker(sch.Cycle)
	defer scanTicker.Stop()

	// tick_model starts phase-offset by half a cycle, then settles into
	// the same period as tick_scan (spec §4.9's table).
	modelOffset := time.NewTimer(sch.Cycle / 2)
	defer modelOffset.Stop()
	var modelTicker *time.Ticker
	defer func() {
		if modelTicker != nil {
			modelTicker.Stop()
		}
	}()

	var saveTicker *time.Ticker
	var saveC <-chan time.Time
	if sch.Autosave > 0 {
		saveTicker = time.NewTicker(sch.Autosave)
		defer saveTicker.Stop()
		saveC = saveTicker.C
	}

	for {
		var modelC <-chan time.Time
		if modelTicker != nil {
			modelC = modelTicker.C
		} else {
			modelC = modelOffset.C
		}

		select {
		case <-ctx.Done():
			sch.finalSave()
			return nil

		case <-sch.wake:
			if sch.drainSignals() {
				sch.finalSave()
				return nil
			}

		case <-scanTicker.C:
			sch.State.Time += sch.Cycle.Seconds()
			sch.run("scan", sch.DoScan)
			sch.run("predict", sch.DoPredict)

		case <-modelC:
			if modelTicker == nil {
				modelTicker = time.NewTicker(sch.Cycle)
			}
			sch.run("model", sch.DoModel)

		case <-saveC:
			if sch.State.Dirty {
				if sch.run("save", sch.DoSave) {
					sch.State.Dirty = false
				}
			}
		}
	}
}

// run invokes fn if non-nil, reporting any error via ErrHandler, and
// returns whether it completed without error.
func (sch *Scheduler) run(source string, fn func() error) bool {
	if fn == nil {
		return true
	}
	if err := fn(); err != nil {
		if sch.ErrHandler != nil {
			sch.ErrHandler(source, err)
		}
		return false
	}
	return true
}

// drainSignals processes every signal queued since the last drain, in
// FIFO order, and reports whether a stop was among them.
func (sch *Scheduler) drainSignals() bool {
	sch.mu.Lock()
	sigs := sch.pending
	sch.pending = nil
	sch.pendingSet = make(map[Signal]bool)
	sch.mu.Unlock()

	stop := false
	for _, sig := range sigs {
		switch sig {
		case SignalReload:
			if sch.OnReload != nil {
				sch.OnReload()
			}
		case SignalDump:
			if sch.OnDump != nil {
				sch.OnDump()
			}
		case SignalSave:
			if sch.run("save", sch.DoSave) {
				sch.State.Dirty = false
			}
		case SignalStop:
			stop = true
		}
	}
	return stop
}

// finalSave performs spec §6's "stop: ... final save" before the
// scheduler returns.
func (sch *Scheduler) finalSave() {
	if sch.State.Dirty {
		if sch.run("final-save", sch.DoSave) {
			sch.State.Dirty = false
		}
	}
	if sch.OnStop != nil {
		sch.OnStop()
	}
}
