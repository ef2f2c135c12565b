package engine

import (
	"testing"

	"options-trading-bot/internal/types"
)

func sizingCfg() SizingConfig {
	return SizingConfig{BaseSizePct: 2.0, MaxSizePct: 10.0, MinPositionUSD: 500}
}

func TestSizeMultiplierLadder(t *testing.T) {
	cases := []struct {
		name string
		h    types.PerformanceHistory
		want float64
	}{
		{"three losses", types.PerformanceHistory{ConsecutiveLosses: 3}, 0.5},
		{"two losses", types.PerformanceHistory{ConsecutiveLosses: 2}, 0.7},
		{"hot streak", types.PerformanceHistory{CurrentStreak: 6}, 1.3},
		{"warm streak", types.PerformanceHistory{CurrentStreak: 4}, 1.2},
		{"neutral", types.PerformanceHistory{}, 1.0},
	}
	for _, tc := range cases {
		if got := sizeMultiplier(tc.h); got != tc.want {
			t.Errorf("%s: expected %.1f, got %.1f", tc.name, tc.want, got)
		}
	}
}

func TestPositionBudgetBasics(t *testing.T) {
	o := types.Opportunity{MaxRisk: 5000}
	// 50k cash, neutral: 2% = 1000.
	if got := positionBudget(sizingCfg(), 50000, types.PerformanceHistory{}, o); got != 1000 {
		t.Errorf("Expected 1000, got %.2f", got)
	}
	// Loss streak halves it.
	h := types.PerformanceHistory{ConsecutiveLosses: 3}
	if got := positionBudget(sizingCfg(), 50000, h, o); got != 500 {
		t.Errorf("Expected 500 after loss scaling, got %.2f", got)
	}
}

func TestPositionBudgetClampedByMaxRisk(t *testing.T) {
	o := types.Opportunity{MaxRisk: 600}
	if got := positionBudget(sizingCfg(), 50000, types.PerformanceHistory{}, o); got != 600 {
		t.Errorf("Expected the opportunity's max risk to cap at 600, got %.2f", got)
	}
}

func TestPositionBudgetFloorAndCeiling(t *testing.T) {
	o := types.Opportunity{MaxRisk: 100000}
	// 10k cash: base 200 is below the 500 floor; floor 500 fits under the
	// 1000 ceiling.
	if got := positionBudget(sizingCfg(), 10000, types.PerformanceHistory{}, o); got != 500 {
		t.Errorf("Expected the 500 floor, got %.2f", got)
	}
	// 4k cash: ceiling 400 is below the floor, no valid budget.
	if got := positionBudget(sizingCfg(), 4000, types.PerformanceHistory{}, o); got != 0 {
		t.Errorf("Expected no budget when the floor exceeds the ceiling, got %.2f", got)
	}
	// 1M cash: base 20000 times hot-streak 1.3 is 26000, under the 100000
	// ceiling.
	h := types.PerformanceHistory{CurrentStreak: 6}
	if got := positionBudget(sizingCfg(), 1000000, h, o); got != 26000 {
		t.Errorf("Expected 26000, got %.2f", got)
	}
}

func TestPositionBudgetMaxRiskBelowMinimum(t *testing.T) {
	o := types.Opportunity{MaxRisk: 300}
	if got := positionBudget(sizingCfg(), 50000, types.PerformanceHistory{}, o); got != 0 {
		t.Errorf("Max risk below the position minimum must yield no budget, got %.2f", got)
	}
}

func TestContractCount(t *testing.T) {
	if got := contractCount(1000, 300); got != 3 {
		t.Errorf("Expected 3 contracts, got %d", got)
	}
	if got := contractCount(250, 300); got != 0 {
		t.Errorf("Expected 0 when budget is below unit cost, got %d", got)
	}
	if got := contractCount(1000, 0); got != 0 {
		t.Errorf("Expected 0 for a degenerate unit cost, got %d", got)
	}
}
