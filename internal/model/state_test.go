package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrackedExe(t *testing.T, s *State, path string) *Exe {
	t.Helper()
	e := newExe(path, s.NextExeSeq())
	s.RegisterExe(e, true)
	return e
}

func TestRegisterExe_CreatesMarkovWithEveryOtherExe(t *testing.T) {
	s := New()
	a := newTrackedExe(t, s, "/usr/bin/a")
	b := newTrackedExe(t, s, "/usr/bin/b")
	c := newTrackedExe(t, s, "/usr/bin/c")

	// Spec §8 invariant 4: after register_exe(E), for every other Exe X
	// there exists exactly one Markov linking E and X.
	assert.Len(t, a.Markovs, 2)
	assert.Len(t, b.Markovs, 2)
	assert.Len(t, c.Markovs, 2)
	assert.Same(t, a.Markovs["/usr/bin/b"], b.Markovs["/usr/bin/a"])

	assert.Empty(t, CheckInvariants(s))
}

func TestUnregisterExe_ReleasesMapsAndMarkovs(t *testing.T) {
	s := New()
	a := newTrackedExe(t, s, "/usr/bin/a")
	b := newTrackedExe(t, s, "/usr/bin/b")

	m := s.GetOrCreateMap("/usr/lib/libc.so", 0, 4096, s.Time)
	s.CreateExeMap(a, m, 1.0)
	s.CreateExeMap(b, m, 0.5)
	require.Equal(t, 2, m.Refcount)

	s.UnregisterExe(a.Path)

	// Spec §8 invariant 5: no surviving Markov refers to the
	// unregistered Exe, and its ExeMaps released their Map references.
	_, stillTracked := s.LookupExe(a.Path)
	assert.False(t, stillTracked)
	assert.Empty(t, b.Markovs)
	assert.Equal(t, 1, m.Refcount)

	s.UnregisterExe(b.Path)
	assert.Equal(t, 0, len(s.Maps()), "map should be pruned once refcount reaches zero")

	assert.Empty(t, CheckInvariants(s))
}

func TestMapDeduplication(t *testing.T) {
	s := New()
	m1 := s.GetOrCreateMap("/bin/foo", 0, 4096, 0)
	m2 := s.GetOrCreateMap("/bin/foo", 0, 4096, 10)
	assert.Same(t, m1, m2, "identical (path,offset,length) must dedupe to one Map")
	assert.Equal(t, float64(10), m1.UpdateTime)

	m3 := s.GetOrCreateMap("/bin/foo", 4096, 4096, 0)
	assert.NotSame(t, m1, m3)
}

// TestMarkovTransitionSequence implements spec §8 scenario S2: two
// exes A, B, both starting not-running. Tick 0: A starts. Tick 1: A
// stops, B starts. Tick 2: both running.
func TestMarkovTransitionSequence(t *testing.T) {
	s := New()
	a := newTrackedExe(t, s, "/usr/bin/a")
	b := newTrackedExe(t, s, "/usr/bin/b")
	k := a.Markovs[b.Path]
	require.NotNil(t, k)

	// Each tick passes its own time as lastRunningTimestamp, as Spy does
	// after Scan: an Exe counts as running iff it was seen on that scan.
	// Ticks start at 20 so B's zero RunningTimestamp reads as not running.

	// Tick 0: A starts running.
	s.Time = 20
	a.RunningTimestamp = s.Time
	k.HandleStateChange(s.Time, s.Time)

	// Tick 1: A stops (its RunningTimestamp falls behind), B starts.
	s.Time = 40
	b.RunningTimestamp = s.Time
	k.HandleStateChange(s.Time, s.Time)

	// Tick 2: both running.
	s.Time = 60
	a.RunningTimestamp = s.Time
	b.RunningTimestamp = s.Time
	k.HandleStateChange(s.Time, s.Time)

	assert.Equal(t, int64(1), k.Weight[StateNeitherRunning][StateARunning])
	assert.Equal(t, int64(1), k.Weight[StateARunning][StateBRunning])
	assert.Equal(t, int64(1), k.Weight[StateBRunning][StateBothRunning])
	assert.Equal(t, int64(1), k.Weight[StateNeitherRunning][StateNeitherRunning])
	assert.Equal(t, int64(1), k.Weight[StateARunning][StateARunning])
	assert.Equal(t, int64(1), k.Weight[StateBRunning][StateBRunning])
	assert.Equal(t, StateBothRunning, k.State)
}

func TestCorr_ZeroVarianceIsZero(t *testing.T) {
	k := &Markov{}
	// No dwell time recorded at all: total <= 0.
	assert.Equal(t, 0.0, k.Corr())

	// Always in the same state: variance of one marginal is zero.
	k.TimeToLeave = [4]float64{100, 0, 0, 0}
	assert.Equal(t, 0.0, k.Corr())
}

func TestBuildAutoFamilies_ClustersOnCorrelation(t *testing.T) {
	s := New()
	a := newTrackedExe(t, s, "/usr/bin/a")
	b := newTrackedExe(t, s, "/usr/bin/b")
	_ = newTrackedExe(t, s, "/usr/bin/c") // uncorrelated, stays alone

	k := a.Markovs[b.Path]
	// Strongly co-resident: almost all dwell time in state 0 or state 3,
	// with balanced marginals so the variance terms are non-degenerate
	// (corr = (0.45 - 0.5*0.5) / 0.25 = 0.8).
	k.TimeToLeave = [4]float64{45, 5, 5, 45}
	k.Time = 45 // observed state-3 time matches the dwell-time proxy above

	n := 0
	families := BuildAutoFamilies(s, 0.5, func() string {
		n++
		return "fam-test"
	})
	require.Len(t, families, 1)
	assert.Equal(t, []string{"/usr/bin/a", "/usr/bin/b"}, families[0].Members)
	assert.Equal(t, DiscoveryAuto, families[0].Method)
}
