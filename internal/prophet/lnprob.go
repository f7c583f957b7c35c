package prophet

import (
	"math"
	"sort"

	"github.com/wasteddreams/preheat/internal/model"
)

// eps keeps probabilities in [0, 1-eps] so ln never sees 0 or a
// negative argument; spec §9 calls for "a single, documented
// reduction order" given the ambiguity in the original's log-space
// arithmetic, and this is it.
const eps = 1e-9

// exeNeed holds the computed p_needed for one Exe, kept around just
// long enough to fold into the per-Map sums below.
type exeNeed struct {
	pNeeded float64
}

// ComputeLnprobs implements spec §4.6's "Per-Exe probability" and
// "Per-Map probability" passes in one walk: every Exe's Lnprob field is
// set to ln(1 - p_needed), and every Map's Lnprob field is set to the
// sum, over its referring ExeMaps, of ln(1 - p * p_needed(E)).
// lastRunningTimestamp and useCorrelation come straight from the
// State/config the caller already holds (spec §6 model.usecorrelation).
func ComputeLnprobs(s *model.State, lastRunningTimestamp float64, useCorrelation bool) {
	needs := make(map[string]exeNeed, len(s.Exes()))

	for path, e := range s.Exes() {
		pNeeded := e.Time / math.Max(1, s.Time) // base prior: running fraction

		if e.Running(lastRunningTimestamp) {
			pNeeded = 1
		} else if useCorrelation {
			pNeeded += correlationAdjustment(e, lastRunningTimestamp)
		}

		pNeeded = clamp(pNeeded, 0, 1-eps)
		e.Lnprob = math.Log(1 - pNeeded)
		needs[path] = exeNeed{pNeeded: pNeeded}
	}

	sums := make(map[model.MapKey]float64, len(s.Maps()))
	for _, e := range s.Exes() {
		need := needs[e.Path]
		for key, em := range e.ExeMaps {
			x := clamp(em.Prob*need.pNeeded, 0, 1-eps)
			sums[key] += math.Log(1 - x)
		}
	}
	for key, m := range s.Maps() {
		m.Lnprob = sums[key]
	}
}

// correlationAdjustment sums corr(K) over every Markov whose peer is
// currently running, in a deterministic (peer-path-sorted) order, per
// spec §4.5 "Sign of corr determines whether one Exe running predicts
// the other or predicts its absence" and §4.6 "lift... by |corr| if
// corr > 0, depress... if corr < 0" — both captured by a plain sum of
// the signed correlation.
func correlationAdjustment(e *model.Exe, lastRunningTimestamp float64) float64 {
	peers := make([]string, 0, len(e.Markovs))
	for peer := range e.Markovs {
		peers = append(peers, peer)
	}
	sort.Strings(peers)

	var adj float64
	for _, peer := range peers {
		k := e.Markovs[peer]
		other := k.A
		if other == e {
			other = k.B
		}
		if other.Running(lastRunningTimestamp) {
			adj += k.Corr()
		}
	}
	return adj
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
