package model

// Pool classifies an Exe for statistics and preloading consideration
// (spec §4.2, GLOSSARY "Priority pool" / "Observation pool").
type Pool int

const (
	// Observation exes are tracked only to enrich correlation learning;
	// they are never themselves the target of a readahead.
	Observation Pool = iota
	// Priority exes are promoted for statistics and preloading.
	Priority
)

func (p Pool) String() string {
	if p == Priority {
		return "priority"
	}
	return "observation"
}

// ParsePool parses the wire-format pool tag, defaulting unknown values
// to Observation (used when migrating legacy records, spec §4.8 S5).
func ParsePool(s string) Pool {
	if s == "priority" {
		return Priority
	}
	return Observation
}

// ExeMap is the directed Exe -> Map relationship with an estimated
// use-probability (spec §3 "ExeMap"). It is owned by the Exe and holds
// a reference count on the Map for as long as it exists.
type ExeMap struct {
	Map  *Map
	Prob float64
}

// Exe is a tracked executable, keyed by its absolute path (spec §3
// "Exe (E)").
type Exe struct {
	Path string

	Seq        uint64
	Time       float64 // accumulated running seconds
	UpdateTime float64

	ExeMaps map[MapKey]*ExeMap // owned

	// Markovs is the non-owning set of Markov chains this Exe
	// participates in, keyed by the peer's path (spec §9 "Graph with
	// cycles"): the central table in State owns the Markov; this is
	// a back-reference used to fan transitions out and to clean up
	// on unregister.
	Markovs map[string]*Markov

	Pool             Pool
	PromotionReason  string // supplemented, spec §4.10 "promotion reason string"
	WeightedLaunches float64
	RawLaunches      int64
	LaunchedDuration float64

	// Transient, recomputed every cycle; not meaningful across a
	// load/save round trip except where explicitly persisted.
	RunningTimestamp float64
	ChangeTimestamp  float64
	Lnprob           float64
	Size             int64 // sum of |M| across ExeMaps
}

// NewExe constructs a fresh, untracked Exe. Callers register it with a
// State via State.RegisterExe or State.InsertExeRaw.
func NewExe(path string, seq uint64) *Exe {
	return newExe(path, seq)
}

func newExe(path string, seq uint64) *Exe {
	return &Exe{
		Path:    path,
		Seq:     seq,
		ExeMaps: make(map[MapKey]*ExeMap),
		Markovs: make(map[string]*Markov),
		Pool:    Observation,
	}
}

// Running reports whether the Exe is in the current tick's running set.
// Callers pass the State's last_running_timestamp (spec §4.4 step 1's
// "timestamp check": an Exe is running iff its own RunningTimestamp was
// refreshed on the scan that just completed).
func (e *Exe) Running(lastRunningTimestamp float64) bool {
	return e.RunningTimestamp >= lastRunningTimestamp
}

// recomputeSize recalculates Size from the current ExeMap set. Called
// whenever ExeMaps changes (registration, and defensively after load).
func (e *Exe) recomputeSize() {
	var total int64
	for k := range e.ExeMaps {
		total += k.Length
	}
	e.Size = total
}
