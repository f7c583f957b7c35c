//go:build linux

// Package spy implements spec §4.4's Spy/Accounting (C4): the two-
// phase scan / update_model pipeline that diffs the running set across
// ticks, admits newly observed executables, drives Markov state
// transitions, and accrues running-time counters.
package spy

import (
	"github.com/wasteddreams/preheat/internal/model"
	"github.com/wasteddreams/preheat/internal/pathfilter"
	"github.com/wasteddreams/preheat/internal/scanner"
)

// Spy holds the configuration and the cross-tick deferred state the
// scan/update_model split needs to cooperate (spec §4.4, §4.9
// "coroutine-style control flow").
type Spy struct {
	Filter  pathfilter.Filter
	MinSize int64

	newCandidates map[string]int       // path -> pid, deferred from Scan to UpdateModel
	stateChanged  map[string]*model.Exe // exes whose running/not-running flipped this cycle
}

// New creates a Spy ready to drive a fresh or loaded State.
func New(filter pathfilter.Filter, minSize int64) *Spy {
	return &Spy{
		Filter:        filter,
		MinSize:       minSize,
		newCandidates: make(map[string]int),
		stateChanged:  make(map[string]*model.Exe),
	}
}

// Scan implements spec §4.4 steps 1-3: enumerate the running set, diff
// it against the Exes already tracked, and recompute running_exes.
// Must be called after S.Time has been advanced by the scheduler for
// this tick (spec §4.9 tick_scan).
func (sp *Spy) Scan(s *model.State) error {
	procs, err := scanner.EnumerateProcesses()
	if err != nil {
		return err
	}

	oldLastRunningTimestamp := s.LastRunningTimestamp
	newRunning := make([]*model.Exe, 0, len(procs))

	seenPath := make(map[string]bool, len(procs))
	for _, p := range procs {
		if seenPath[p.Path] {
			continue // multiple PIDs for one path collapse to one Exe
		}
		seenPath[p.Path] = true

		if s.IsBadExe(p.Path) {
			continue
		}
		if e, ok := s.LookupExe(p.Path); ok {
			wasRunning := e.RunningTimestamp >= oldLastRunningTimestamp
			if !wasRunning {
				newRunning = append(newRunning, e)
				sp.stateChanged[e.Path] = e
			}
			e.RunningTimestamp = s.Time
			continue
		}
		if !sp.Filter.AllowExe(p.Path) {
			continue // exeprefix gate: not a candidate for admission (spec §4.2)
		}
		sp.newCandidates[p.Path] = p.PID
	}

	// Carry-over: anything running last tick that we didn't just touch
	// above is either still running (its RunningTimestamp was bumped
	// to s.Time by the loop above when re-observed) or has stopped.
	stillRunning := make([]*model.Exe, 0, len(s.RunningExes))
	for _, e := range s.RunningExes {
		if e.RunningTimestamp == s.Time {
			// Observed again in the loop above this tick: still running.
			stillRunning = append(stillRunning, e)
			continue
		}
		// Not observed again this scan: it stopped.
		sp.stateChanged[e.Path] = e
	}

	s.RunningExes = append(newRunning, stillRunning...)
	s.LastRunningTimestamp = s.Time
	return nil
}

// UpdateModel implements spec §4.4 steps 4-6: admit deferred
// candidates, propagate state changes into every affected Markov, and
// accrue running-time / state-3 dwell counters.
func (sp *Spy) UpdateModel(s *model.State) error {
	if err := sp.admitCandidates(s); err != nil {
		return err
	}
	sp.propagateStateChanges(s)
	sp.accrue(s)
	return nil
}

// admitCandidates implements spec §4.4 step 4.
func (sp *Spy) admitCandidates(s *model.State) error {
	for path, pid := range sp.newCandidates {
		delete(sp.newCandidates, path)

		size, _, err := scanner.GetMaps(pid, sp.Filter, false)
		if err != nil {
			return err
		}
		if size == 0 {
			continue // dead
		}
		if size < sp.MinSize {
			s.MarkBadExe(path, size, s.Time)
			continue
		}

		size, seeds, err := scanner.GetMaps(pid, sp.Filter, true)
		if err != nil {
			return err
		}
		if size == 0 {
			continue // vanished between probes
		}

		e := model.NewExe(path, s.NextExeSeq())
		e.RunningTimestamp = s.Time
		s.RegisterExe(e, true)
		for _, seed := range seeds {
			m := s.GetOrCreateMap(seed.Path, seed.Offset, seed.Length, s.Time)
			s.CreateExeMap(e, m, seed.Prob)
		}
		s.RunningExes = append([]*model.Exe{e}, s.RunningExes...)

		for _, k := range e.Markovs {
			k.HandleStateChange(s.Time, s.LastRunningTimestamp)
		}
	}
	return nil
}

// propagateStateChanges implements spec §4.4 step 5.
func (sp *Spy) propagateStateChanges(s *model.State) {
	for path, e := range sp.stateChanged {
		delete(sp.stateChanged, path)
		e.ChangeTimestamp = s.Time
		for _, k := range e.Markovs {
			k.HandleStateChange(s.Time, s.LastRunningTimestamp)
		}
	}
}

// accrue implements spec §4.4 step 6.
func (sp *Spy) accrue(s *model.State) {
	delta := s.Time - s.LastAccountingTimestamp
	for _, e := range s.RunningExes {
		e.Time += delta
		e.LaunchedDuration += delta
	}
	for _, k := range s.Markovs() {
		k.AccrueStateTime(delta)
	}
	s.LastAccountingTimestamp = s.Time
}
