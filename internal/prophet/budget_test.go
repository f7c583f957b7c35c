package prophet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wasteddreams/preheat/internal/model"
)

func TestBudgetKB_WeightsAllThreeTerms(t *testing.T) {
	cfg := MemoryBudgetConfig{MemTotalPct: 10, MemFreePct: 50, MemCachedPct: 25}
	mem := model.MemStat{Total: 1_000_000, Free: 200_000, Cached: 400_000}

	got := BudgetKB(cfg, mem)
	want := int64(0.10*1_000_000 + 0.50*200_000 + 0.25*400_000)
	assert.Equal(t, want, got)
}

func TestBudgetKB_NegativePercentSubtracts(t *testing.T) {
	cfg := MemoryBudgetConfig{MemTotalPct: 0, MemFreePct: -100, MemCachedPct: 0}
	mem := model.MemStat{Free: 50_000}

	got := BudgetKB(cfg, mem)
	assert.Equal(t, int64(-50_000), got)
}
