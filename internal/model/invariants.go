package model

import "fmt"

// CheckInvariants walks the Store and reports every violation of the
// invariants listed in spec §3. It is used by property-based tests
// (spec §8 #1-#5, #8) and is intentionally exhaustive rather than
// fast: it is not called from any hot path.
func CheckInvariants(s *State) []error {
	var errs []error

	// Invariant 1 & 4: ExeMap -> Map membership, refcount, prob range;
	// refcount equals the number of referring ExeMaps.
	refCount := make(map[MapKey]int)
	for path, e := range s.exes {
		for key, em := range e.ExeMaps {
			if em.Map == nil {
				errs = append(errs, fmt.Errorf("exe %s: exemap %v has nil map", path, key))
				continue
			}
			if _, ok := s.maps[em.Map.Key]; !ok {
				errs = append(errs, fmt.Errorf("exe %s: map %v not in store", path, em.Map.Key))
			}
			if em.Prob < 0 || em.Prob > 1 {
				errs = append(errs, fmt.Errorf("exe %s: exemap %v prob %v out of range", path, key, em.Prob))
			}
			refCount[em.Map.Key]++
		}
	}
	for key, m := range s.maps {
		if m.Refcount < 1 {
			errs = append(errs, fmt.Errorf("map %v refcount %d < 1", key, m.Refcount))
		}
		if got := refCount[key]; got != m.Refcount {
			errs = append(errs, fmt.Errorf("map %v refcount %d does not match %d referring exemaps", key, m.Refcount, got))
		}
	}

	// Invariant 2: Markov endpoints tracked, distinct, linked exactly
	// once from each side.
	for key, k := range s.markovs {
		if k.A == k.B {
			errs = append(errs, fmt.Errorf("markov %v: A == B", key))
		}
		if _, ok := s.exes[k.A.Path]; !ok {
			errs = append(errs, fmt.Errorf("markov %v: endpoint A not tracked", key))
		}
		if _, ok := s.exes[k.B.Path]; !ok {
			errs = append(errs, fmt.Errorf("markov %v: endpoint B not tracked", key))
		}
		if k.A.Markovs[k.B.Path] != k {
			errs = append(errs, fmt.Errorf("markov %v: missing back-reference from A", key))
		}
		if k.B.Markovs[k.A.Path] != k {
			errs = append(errs, fmt.Errorf("markov %v: missing back-reference from B", key))
		}
	}
	for path, e := range s.exes {
		for peer, k := range e.Markovs {
			if s.markovs[k.Key] != k {
				errs = append(errs, fmt.Errorf("exe %s: markov with %s not in central table", path, peer))
			}
		}
	}

	// Invariant 3: exes and bad_exes disjoint.
	for path := range s.exes {
		if _, ok := s.badExes[path]; ok {
			errs = append(errs, fmt.Errorf("path %s present in both exes and bad_exes", path))
		}
	}

	// Invariant 6: dwell times non-negative; weight[i][i] equals the
	// sum of weight[i][j] for j != i, for any state that has been
	// exited at least once.
	for key, k := range s.markovs {
		for i := 0; i < 4; i++ {
			if k.TimeToLeave[i] < 0 {
				errs = append(errs, fmt.Errorf("markov %v: time_to_leave[%d] negative", key, i))
			}
			if k.Weight[i][i] == 0 {
				continue
			}
			var sum int64
			for j := 0; j < 4; j++ {
				if j != i {
					sum += k.Weight[i][j]
				}
			}
			if sum != k.Weight[i][i] {
				errs = append(errs, fmt.Errorf("markov %v: weight[%d][%d]=%d != sum of exits %d", key, i, i, k.Weight[i][i], sum))
			}
		}
	}

	return errs
}
