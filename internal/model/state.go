// Package model implements preheat's in-memory entity graph: the Map,
// Exe, ExeMap and Markov types of spec §3, and the Model Store
// operations of spec §4.3 that keep their invariants intact. The
// package does no I/O; persistence lives in internal/persist and the
// live process scan in internal/scanner.
package model

import "sort"

// MemStat mirrors the fields spec §4.1 defines for get_memstat, all in
// kilobytes (or cumulative kilobytes since boot for Pagein/Pageout).
type MemStat struct {
	Total   int64
	Free    int64
	Buffers int64
	Cached  int64
	Pagein  int64
	Pageout int64
}

// State is the top-level container described in spec §3 "State (S)".
// It is owned by exactly one value (the Scheduler's), never a package
// global, per spec §9 "Global state".
type State struct {
	Time float64

	exes    map[string]*Exe
	badExes map[string]int64 // path -> size
	maps    map[MapKey]*Map
	markovs map[MarkovKey]*Markov

	RunningExes []*Exe

	// Families holds the most recently computed correlation families
	// (supplemented feature, SPEC_FULL §S), refreshed once per cycle by
	// the caller via BuildAutoFamilies and round-tripped through the
	// FAMILY records of the state file.
	Families []Family

	LastRunningTimestamp    float64
	LastAccountingTimestamp float64

	MemStat MemStat

	Dirty      bool
	ModelDirty bool

	mapSeq uint64
	exeSeq uint64
}

// New creates an empty State, as used both at first-ever startup and
// whenever persistence falls back to "start fresh" (spec §4.8).
func New() *State {
	return &State{
		exes:    make(map[string]*Exe),
		badExes: make(map[string]int64),
		maps:    make(map[MapKey]*Map),
		markovs: make(map[MarkovKey]*Markov),
	}
}

// Exes returns the path->Exe table. Callers must not retain the map
// across a mutation of the Store.
func (s *State) Exes() map[string]*Exe { return s.exes }

// BadExes returns the path->size table (spec §3 "bad_exes").
func (s *State) BadExes() map[string]int64 { return s.badExes }

// Maps returns the content-addressed Map table.
func (s *State) Maps() map[MapKey]*Map { return s.maps }

// Markovs returns the central Markov table, keyed by unordered pair.
func (s *State) Markovs() map[MarkovKey]*Markov { return s.markovs }

// LookupExe returns the tracked Exe at path, if any.
func (s *State) LookupExe(path string) (*Exe, bool) {
	e, ok := s.exes[path]
	return e, ok
}

// IsBadExe reports whether path was previously rejected for being
// below minsize (spec §3 invariant 3: exes and bad_exes are disjoint).
func (s *State) IsBadExe(path string) bool {
	_, ok := s.badExes[path]
	return ok
}

// MarkBadExe records path in bad_exes (spec §3 "Exe... Lifetime").
func (s *State) MarkBadExe(path string, size int64, now float64) {
	_ = now
	s.badExes[path] = size
}

// ResetBadExes discards the bad-exes table. Spec §3: "Bad-exes are
// discarded at each startup (every exe gets a second chance)."
func (s *State) ResetBadExes() {
	s.badExes = make(map[string]int64)
}

// NextExeSeq mints a new, never-reused Exe sequence id (spec §3
// invariant 5).
func (s *State) NextExeSeq() uint64 {
	s.exeSeq++
	return s.exeSeq
}

// NextMapSeq mints a new, never-reused Map sequence id.
func (s *State) NextMapSeq() uint64 {
	s.mapSeq++
	return s.mapSeq
}

// SetSeqWatermarks is used by the persistence loader to re-mint
// sequence ids above whatever the file's highest recorded value was
// (spec §3 invariant 5: "re-minted on load").
func (s *State) SetSeqWatermarks(mapSeq, exeSeq uint64) {
	if mapSeq > s.mapSeq {
		s.mapSeq = mapSeq
	}
	if exeSeq > s.exeSeq {
		s.exeSeq = exeSeq
	}
}

// GetOrCreateMap returns the Map for (path, offset, length), creating
// it with refcount 0 if it does not already exist (spec §4.3 "insert/
// deduplicate of Maps"). The caller is expected to immediately acquire
// a reference via CreateExeMap; a Map left at refcount 0 stays in the
// table, since only UnregisterExe removes Maps (when it releases their
// last reference).
func (s *State) GetOrCreateMap(path string, offset, length int64, now float64) *Map {
	key := MapKey{Path: path, Offset: offset, Length: length}
	if m, ok := s.maps[key]; ok {
		m.UpdateTime = now
		return m
	}
	m := &Map{Key: key, Seq: s.NextMapSeq(), UpdateTime: now}
	s.maps[key] = m
	return m
}

// InsertMapRaw inserts a fully-formed Map as read from the state file.
// Duplicate keys are a hard error under spec §4.8/§9 ("duplicates are
// a hard error").
func (s *State) InsertMapRaw(m *Map) bool {
	if _, exists := s.maps[m.Key]; exists {
		return false
	}
	s.maps[m.Key] = m
	return true
}

// RegisterExe inserts a newly observed Exe into the Store. When
// createMarkovs is true, a fresh Markov is instantiated between e and
// every other currently tracked Exe (spec §4.4 step 4, spec §8
// invariant 4).
func (s *State) RegisterExe(e *Exe, createMarkovs bool) {
	s.exes[e.Path] = e
	if !createMarkovs {
		return
	}
	for _, other := range s.sortedExesExcept(e.Path) {
		s.createMarkov(e, other)
	}
}

// InsertExeRaw inserts a fully-formed Exe as read from the state file,
// without creating any Markovs (the MARKOV records that follow in the
// file do that explicitly via LinkMarkovRaw).
func (s *State) InsertExeRaw(e *Exe) bool {
	if _, exists := s.exes[e.Path]; exists {
		return false
	}
	s.exes[e.Path] = e
	return true
}

// sortedExesExcept returns every tracked Exe other than the one at
// except, in a deterministic path order, so that Markov creation order
// (and therefore any tie-break on Markov seq in tests) is stable.
func (s *State) sortedExesExcept(except string) []*Exe {
	paths := make([]string, 0, len(s.exes))
	for p := range s.exes {
		if p == except {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]*Exe, 0, len(paths))
	for _, p := range paths {
		out = append(out, s.exes[p])
	}
	return out
}

// createMarkov creates (idempotently) the Markov chain for {a,b} and
// links it from both endpoints' non-owning sets (spec §4.3 "Markov
// creation... idempotent per unordered pair").
func (s *State) createMarkov(a, b *Exe) *Markov {
	if a.Path == b.Path {
		return nil
	}
	key := markovKey(a.Path, b.Path)
	if k, exists := s.markovs[key]; exists {
		return k
	}
	k := newMarkov(a, b, s.Time)
	s.markovs[key] = k
	a.Markovs[b.Path] = k
	b.Markovs[a.Path] = k
	return k
}

// LinkMarkovRaw installs a Markov read from the state file, linking it
// from both endpoints exactly as createMarkov does.
func (s *State) LinkMarkovRaw(k *Markov) bool {
	if _, exists := s.markovs[k.Key]; exists {
		return false
	}
	s.markovs[k.Key] = k
	k.A.Markovs[k.B.Path] = k
	k.B.Markovs[k.A.Path] = k
	return true
}

// CreateExeMap links e -> m with probability prob, acquiring a
// reference on m (spec §4.3 "ExeMap creation (takes a reference on
// M)").
func (s *State) CreateExeMap(e *Exe, m *Map, prob float64) *ExeMap {
	if existing, ok := e.ExeMaps[m.Key]; ok {
		existing.Prob = prob
		return existing
	}
	em := &ExeMap{Map: m, Prob: prob}
	e.ExeMaps[m.Key] = em
	m.acquire()
	e.recomputeSize()
	return em
}

// UnregisterExe removes e from the Store: every ExeMap it owns
// releases its Map reference (destroying Maps that reach refcount
// zero), every Markov it participates in is removed from the peer's
// set and from the central table, and e itself is dropped from exes
// (spec §4.3 "unregister of an Exe", spec §8 invariant 5).
func (s *State) UnregisterExe(path string) {
	e, ok := s.exes[path]
	if !ok {
		return
	}

	for key, em := range e.ExeMaps {
		if em.Map.release() {
			delete(s.maps, key)
		}
	}
	e.ExeMaps = nil

	for peerPath, k := range e.Markovs {
		delete(s.markovs, k.Key)
		if peer, ok := s.exes[peerPath]; ok {
			delete(peer.Markovs, path)
		}
	}
	e.Markovs = nil

	delete(s.exes, path)
}

// Destroy tears the Store down in dependency order — Markovs, then
// ExeMaps, then Exes, then Maps — matching spec §4.3's prescribed
// destruction order. Go's garbage collector does not require this for
// memory safety, but the ordering is preserved so that invariant
// checks (spec §8 #1, #3) can run mid-teardown in tests.
func (s *State) Destroy() {
	s.markovs = make(map[MarkovKey]*Markov)
	for _, e := range s.exes {
		e.Markovs = nil
		e.ExeMaps = nil
	}
	s.exes = make(map[string]*Exe)
	s.maps = make(map[MapKey]*Map)
}
