package prophet

import (
	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/wasteddreams/preheat/internal/model"
)

// candidateComparator orders Maps by ascending Lnprob (most likely to
// be needed first), breaking ties on Seq so that two runs over the
// same State select the same Maps in the same order (spec §8
// invariant 9 "selection is deterministic given identical inputs").
func candidateComparator(a, b interface{}) int {
	ma := a.(*model.Map)
	mb := b.(*model.Map)
	switch {
	case ma.Lnprob < mb.Lnprob:
		return -1
	case ma.Lnprob > mb.Lnprob:
		return 1
	case ma.Seq < mb.Seq:
		return -1
	case ma.Seq > mb.Seq:
		return 1
	default:
		return 0
	}
}

// Select implements spec §4.6's bounded-knapsack selection: walk Maps
// in ascending-Lnprob order, accumulating bytes, and stop before the
// first Map that would push the running total over budgetKB — except
// a single Map is always admitted even if it alone exceeds the budget,
// so that preload never starves entirely when one executable is larger
// than the configured budget (spec §8 invariant 9 "never select zero
// Maps solely because the single most-needed Map exceeds budget").
func Select(candidates []*model.Map, budgetKB int64) []*model.Map {
	if budgetKB <= 0 || len(candidates) == 0 {
		return nil
	}
	budgetBytes := budgetKB * 1024

	heap := binaryheap.NewWith(candidateComparator)
	for _, m := range candidates {
		heap.Push(m)
	}

	var selected []*model.Map
	var used int64
	for {
		v, ok := heap.Pop()
		if !ok {
			break
		}
		m := v.(*model.Map)
		length := m.Length()

		if len(selected) > 0 && used+length > budgetBytes {
			break
		}
		selected = append(selected, m)
		used += length
		if used >= budgetBytes {
			break
		}
	}
	return selected
}
