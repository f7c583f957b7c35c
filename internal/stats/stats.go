// Package stats implements spec §4.10's Stats (C9): per-Exe launch and
// preload accounting, and the global counters reported by the `dump`
// control command. It mutates State.Exe fields directly (the
// per-Exe half of spec §4.10) and keeps the global counters the Model
// Store has no natural home for.
package stats

import "github.com/wasteddreams/preheat/internal/model"

// Global holds the daemon-wide counters of spec §4.10. It is owned by
// the Scheduler alongside the State, never a package global (spec §9).
type Global struct {
	PreloadsTotal         int64
	PreloadHits           int64
	PreloadMisses         int64
	MemoryPressureEvents  int64
	AppsTracked           int64
	AppsPreloaded         int64
	TotalPreloadedBytes   int64
	DaemonStart           float64
	LastPrediction        float64
}

// preloadRecord tracks when and how much of an Exe was last preloaded,
// so a later launch can be classified hit/miss against hitstats_window.
type preloadRecord struct {
	at    float64
	bytes int64
}

// Tracker accumulates the transient per-cycle bookkeeping the pure
// counters above can't hold on their own: which Exes were preloaded
// and when, for the hit/miss window test.
type Tracker struct {
	Global Global

	hitstatsWindow float64
	preloaded      map[string]preloadRecord
}

// New creates a Tracker. daemonStart and hitstatsWindow come from the
// scheduler's clock and config respectively (spec §6 model.hitstats_window).
func New(daemonStart, hitstatsWindow float64) *Tracker {
	return &Tracker{
		Global:         Global{DaemonStart: daemonStart},
		hitstatsWindow: hitstatsWindow,
		preloaded:      make(map[string]preloadRecord),
	}
}

// RecordPreload is called once per Map successfully read ahead (spec
// §4.7/§4.10): it updates the global counters and remembers that the
// owning Exe(s) were preloaded at "now", for the hit/miss check below.
func (t *Tracker) RecordPreload(now float64, m *model.Map, owners []*model.Exe) {
	t.Global.PreloadsTotal++
	t.Global.TotalPreloadedBytes += m.Length()
	t.Global.LastPrediction = now

	for _, e := range owners {
		t.preloaded[e.Path] = preloadRecord{at: now, bytes: m.Length()}
	}
}

// RecordLaunch is called whenever Spy observes a transition from
// not-running to running for e (spec §4.4's stateChanged set, positive
// direction). It increments the raw/weighted launch counters and
// classifies hit vs miss against hitstats_window.
func (t *Tracker) RecordLaunch(now float64, e *model.Exe, weightDurationDivisor float64) {
	e.RawLaunches++
	if e.LaunchedDuration > 0 && weightDurationDivisor > 0 {
		e.WeightedLaunches += e.LaunchedDuration / weightDurationDivisor
	}

	rec, wasPreloaded := t.preloaded[e.Path]
	if wasPreloaded && now-rec.at <= t.hitstatsWindow {
		t.Global.PreloadHits++
	} else {
		t.Global.PreloadMisses++
	}
	delete(t.preloaded, e.Path)
}

// Recompute refreshes AppsTracked/AppsPreloaded from the live Store,
// called once per cycle after the Model Store mutations settle.
func (t *Tracker) Recompute(s *model.State) {
	t.Global.AppsTracked = int64(len(s.Exes()))

	var preloaded int64
	for _, e := range s.Exes() {
		if e.Pool == model.Priority {
			preloaded++
		}
	}
	t.Global.AppsPreloaded = preloaded
}

// RecordMemoryPressure increments the pressure-event counter (spec
// §4.10), called by the daemon's predict step when a tick's memory
// budget computes to zero or less.
func (t *Tracker) RecordMemoryPressure() {
	t.Global.MemoryPressureEvents++
}

// PromotionReason sets spec §4.10's "promotion reason string" on e,
// recording why it moved (or stayed) in the priority pool — purely
// descriptive, consumed by `dump` and never by the model itself.
func PromotionReason(e *model.Exe, reason string) {
	e.PromotionReason = reason
}
