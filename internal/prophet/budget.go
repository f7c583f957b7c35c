// Package prophet implements spec §4.6's Prophet/Predictor (C5): the
// per-exe and per-map urgency model, the memory-bounded selection, and
// the I/O ordering strategies Readahead Frontend (C6) consumes.
package prophet

import (
	"math"

	"github.com/wasteddreams/preheat/internal/model"
)

// MemoryBudgetConfig holds the three signed-percent knobs of spec §6
// (model.memtotal, model.memfree, model.memcached).
type MemoryBudgetConfig struct {
	MemTotalPct   float64
	MemFreePct    float64
	MemCachedPct  float64
}

// BudgetKB computes spec §4.6's "Memory budget":
//
//	budget_kb = memtotal% * total + memfree% * free + memcached% * cached
//
// Negative percentages subtract. A non-positive result means readahead
// should be skipped entirely this tick.
func BudgetKB(cfg MemoryBudgetConfig, mem model.MemStat) int64 {
	budget := cfg.MemTotalPct/100*float64(mem.Total) +
		cfg.MemFreePct/100*float64(mem.Free) +
		cfg.MemCachedPct/100*float64(mem.Cached)
	return int64(math.Round(budget))
}
