package engine

import (
	"options-trading-bot/internal/types"
)

type SizingConfig struct {
	BaseSizePct    float64 // of free cash, before the multiplier
	MaxSizePct     float64 // hard ceiling as a fraction of free cash
	MinPositionUSD float64
}

const (
	multiplierFloor   = 0.3
	multiplierCeiling = 1.5
)

// sizeMultiplier scales the base position size with recent form: losing
// runs cut size before the confidence gate ever gets a say, winning runs
// earn a modest increase.
func sizeMultiplier(h types.PerformanceHistory) float64 {
	m := 1.0
	switch {
	case h.ConsecutiveLosses >= 3:
		m = 0.5
	case h.ConsecutiveLosses >= 2:
		m = 0.7
	case h.CurrentStreak > 5:
		m = 1.3
	case h.CurrentStreak > 3:
		m = 1.2
	}
	if m < multiplierFloor {
		m = multiplierFloor
	}
	if m > multiplierCeiling {
		m = multiplierCeiling
	}
	return m
}

// positionBudget computes the dollar budget for one new position. The base
// allocation is BaseSizePct of cash times the form multiplier, clamped to
// [MinPositionUSD, MaxSizePct of cash], then capped by the opportunity's own
// max risk. Returns 0 when no valid budget exists (cash too small to clear
// the minimum, or max risk below it).
func positionBudget(cfg SizingConfig, cash float64, h types.PerformanceHistory, o types.Opportunity) float64 {
	if cash <= 0 {
		return 0
	}
	budget := cash * cfg.BaseSizePct / 100 * sizeMultiplier(h)

	ceiling := cash * cfg.MaxSizePct / 100
	if budget > ceiling {
		budget = ceiling
	}
	if budget < cfg.MinPositionUSD {
		budget = cfg.MinPositionUSD
	}
	if budget > ceiling {
		// Cash so small the minimum exceeds the ceiling.
		return 0
	}
	if o.MaxRisk > 0 && budget > o.MaxRisk {
		budget = o.MaxRisk
	}
	if budget < cfg.MinPositionUSD {
		return 0
	}
	return budget
}

// contractCount converts a budget into whole units of the structure.
func contractCount(budget, unitCost float64) int {
	if unitCost <= 0 || budget < unitCost {
		return 0
	}
	return int(budget / unitCost)
}
