package model

import "math"

// MarkovKey identifies a Markov chain by its unordered pair of
// endpoint paths, always stored with the lexicographically smaller
// path first so {A,B} and {B,A} hash identically (spec §3 "Markov
// (K)... between an unordered pair").
type MarkovKey struct {
	A, B string
}

func markovKey(a, b string) MarkovKey {
	if a <= b {
		return MarkovKey{A: a, B: b}
	}
	return MarkovKey{A: b, B: a}
}

// Markov states, bit0 = A running, bit1 = B running (spec §3).
const (
	StateNeitherRunning = 0
	StateARunning       = 1
	StateBRunning       = 2
	StateBothRunning    = 3
)

// Markov is the symmetric continuous-time 4-state chain between an
// unordered pair of Exes (spec §3 "Markov (K)"). It is owned jointly
// by its two endpoints: the central table in State holds the single
// instance, and each endpoint keeps a non-owning back-reference keyed
// by the peer's path (see Exe.Markovs and spec §9).
type Markov struct {
	Key MarkovKey
	A   *Exe
	B   *Exe

	Time           float64    // cumulative seconds spent in state 3
	TimeToLeave    [4]float64 // mean dwell per state, seconds
	Weight         [4][4]int64
	State          int
	ChangeTimestamp float64
}

// NewMarkovRaw constructs a Markov from persisted fields so the
// persistence loader can populate Time/TimeToLeave/Weight directly
// before linking it into a State via State.LinkMarkovRaw. The wire
// format (spec §4.8) does not persist State/ChangeTimestamp — callers
// must follow with ReinitState once a live scan has run.
func NewMarkovRaw(a, b *Exe) *Markov {
	return &Markov{Key: markovKey(a.Path, b.Path), A: a, B: b}
}

func newMarkov(a, b *Exe, now float64) *Markov {
	k := &Markov{
		Key:             markovKey(a.Path, b.Path),
		A:               a,
		B:               b,
		ChangeTimestamp: now,
	}
	return k
}

// other returns the endpoint that is not e.
func (k *Markov) other(e *Exe) *Exe {
	if k.A == e {
		return k.B
	}
	return k.A
}

// runningState computes the current bitmask from the two endpoints'
// running status at the given reference timestamp (spec §4.5).
func (k *Markov) runningState(lastRunningTimestamp float64) int {
	s := 0
	if k.A.Running(lastRunningTimestamp) {
		s |= StateARunning
	}
	if k.B.Running(lastRunningTimestamp) {
		s |= StateBRunning
	}
	return s
}

// HandleStateChange implements spec §4.5 markov_state_changed: it is
// invoked whenever an endpoint flipped running/not-running, updates
// the dwell-time EWMA and transition-weight counters, and advances
// the chain's state.
func (k *Markov) HandleStateChange(now float64, lastRunningTimestamp float64) {
	newState := k.runningState(lastRunningTimestamp)
	if newState == k.State {
		// Both endpoints flipped simultaneously to the same net
		// result; no observable transition (spec §4.5).
		return
	}

	dwell := now - k.ChangeTimestamp
	old := k.State

	// Running arithmetic mean of dwell times: alpha = 1/(n+1) before
	// the weight increment, applied to the *exit* count from old.
	exits := k.Weight[old][old]
	alpha := 1.0 / float64(exits+1)
	k.TimeToLeave[old] = alpha*dwell + (1-alpha)*k.TimeToLeave[old]

	k.Weight[old][old]++
	k.Weight[old][newState]++

	k.State = newState
	k.ChangeTimestamp = now
}

// ReinitState sets the chain's state directly from the endpoints'
// current running flags, without touching weight or dwell statistics.
// Used once after loading persisted state and performing a live scan
// (spec §4.8 "reinitialise each Markov's state from current running
// flags"): the wire format never persists State itself.
func (k *Markov) ReinitState(lastRunningTimestamp, now float64) {
	k.State = k.runningState(lastRunningTimestamp)
	k.ChangeTimestamp = now
}

// AccrueStateTime adds delta seconds to Time if the chain is currently
// in state 3 (both running), per spec §4.4 step 6.
func (k *Markov) AccrueStateTime(delta float64) {
	if k.State == StateBothRunning {
		k.Time += delta
	}
}

// marginalRunningFraction estimates P(exe running) from a Markov's
// per-state dwell times: the fraction of total dwell time in which the
// given endpoint's bit is set in the state bitmask. This is the
// "marginal running fraction derived from time_to_leave" referenced by
// spec §4.5 "Correlation".
func (k *Markov) marginalRunningFraction(bit int) float64 {
	var running, total float64
	for state := 0; state < 4; state++ {
		ttl := k.TimeToLeave[state]
		total += ttl
		if state&bit != 0 {
			running += ttl
		}
	}
	if total <= 0 {
		return 0
	}
	return running / total
}

// Corr computes corr(K) in [-1,1], the excess co-residency of the two
// endpoints, per spec §4.5's conservative canonical formulation:
//
//	corr = (p(AB) - p(A)*p(B)) / sqrt(p(A)(1-p(A)) * p(B)(1-p(B)))
//
// where p(AB) is the observed state-3 time (Time, accrued every tick by
// AccrueStateTime) divided by the sum of the four mean dwell times in
// TimeToLeave, which stands in for total observation time. TimeToLeave
// is a separate model that also yields the marginals p(A)/p(B). When
// either variance term is zero, corr is defined as 0 (spec §4.5).
func (k *Markov) Corr() float64 {
	var total float64
	for _, ttl := range k.TimeToLeave {
		total += ttl
	}
	if total <= 0 {
		return 0
	}
	pAB := k.Time / total
	pA := k.marginalRunningFraction(StateARunning)
	pB := k.marginalRunningFraction(StateBRunning)

	varA := pA * (1 - pA)
	varB := pB * (1 - pB)
	if varA <= 0 || varB <= 0 {
		return 0
	}

	return (pAB - pA*pB) / math.Sqrt(varA*varB)
}
