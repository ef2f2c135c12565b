package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"options-trading-bot/internal/types"
)

func TestThresholdBaseValues(t *testing.T) {
	g := NewGate(10000)
	neutral := types.PerformanceHistory{RecentWinRate: 0.6}

	assert.InDelta(t, 0.75, g.Threshold(types.StrategyLongCall, neutral), 1e-9)
	assert.InDelta(t, 0.78, g.Threshold(types.StrategyLongPut, neutral), 1e-9)
	assert.InDelta(t, 0.68, g.Threshold(types.StrategyCallSpread, neutral), 1e-9)
	assert.InDelta(t, 0.70, g.Threshold(types.StrategyPutSpread, neutral), 1e-9)
	assert.InDelta(t, 0.65, g.Threshold(types.StrategyIronCondor, neutral), 1e-9)
	assert.InDelta(t, 0.75, g.Threshold(types.StrategyStraddle, neutral), 1e-9)
	assert.InDelta(t, 0.68, g.Threshold(types.StrategyCoveredCall, neutral), 1e-9)
}

func TestThresholdTightensAfterLosses(t *testing.T) {
	g := NewGate(10000)
	neutral := types.PerformanceHistory{RecentWinRate: 0.6}
	twoLosses := types.PerformanceHistory{ConsecutiveLosses: 2, RecentWinRate: 0.6}
	threeLosses := types.PerformanceHistory{ConsecutiveLosses: 3, RecentWinRate: 0.6}

	for _, s := range types.Strategies {
		base := g.Threshold(s, neutral)
		after2 := g.Threshold(s, twoLosses)
		after3 := g.Threshold(s, threeLosses)
		assert.GreaterOrEqual(t, after2, base, "two losses must not loosen %s", s)
		assert.GreaterOrEqual(t, after3, after2, "third loss must not loosen %s", s)
	}

	// The deep-loss adjustment replaces the two-loss one, not stacks on it.
	assert.InDelta(t, 0.75+0.15, g.Threshold(types.StrategyLongCall, threeLosses), 1e-9)
}

func TestThresholdScenarioLossesAndLowWinRate(t *testing.T) {
	g := NewGate(10000)
	h := types.PerformanceHistory{ConsecutiveLosses: 3, RecentWinRate: 0.40}

	// long_call: 0.75 + 0.15 + 0.05 = 0.95, at the ceiling.
	assert.InDelta(t, 0.95, g.Threshold(types.StrategyLongCall, h), 1e-9)
	// long_put would exceed the ceiling and clamps to it.
	assert.InDelta(t, 0.95, g.Threshold(types.StrategyLongPut, h), 1e-9)
	// iron_condor: 0.65 + 0.15 + 0.05 = 0.85.
	assert.InDelta(t, 0.85, g.Threshold(types.StrategyIronCondor, h), 1e-9)
}

func TestThresholdRelaxesOnStrongRun(t *testing.T) {
	g := NewGate(10000)
	hot := types.PerformanceHistory{CurrentStreak: 5, RecentWinRate: 0.85}

	// iron_condor: 0.65 - 0.05 - 0.03 = 0.57, clamped to the floor.
	assert.InDelta(t, 0.60, g.Threshold(types.StrategyIronCondor, hot), 1e-9)
	// long_put: 0.78 - 0.05 - 0.03 = 0.70, inside the clamp.
	assert.InDelta(t, 0.70, g.Threshold(types.StrategyLongPut, hot), 1e-9)
}

func TestEvaluateCashReserve(t *testing.T) {
	g := NewGate(10000)
	h := types.PerformanceHistory{RecentWinRate: 0.6}
	opp := types.Opportunity{
		Symbol:     "AAPL",
		Strategy:   types.StrategyIronCondor,
		Confidence: 0.99,
	}

	d := g.Evaluate(opp, h, 10000)
	assert.False(t, d.Accepted, "reserve breach must reject even at max confidence")
	assert.Contains(t, d.Reason, "reserve")

	d = g.Evaluate(opp, h, 10001)
	assert.True(t, d.Accepted)
}

func TestEvaluateConfidenceGate(t *testing.T) {
	g := NewGate(10000)
	h := types.PerformanceHistory{RecentWinRate: 0.6}

	d := g.Evaluate(types.Opportunity{
		Symbol: "NVDA", Strategy: types.StrategyLongCall, Confidence: 0.74,
	}, h, 50000)
	assert.False(t, d.Accepted)
	assert.InDelta(t, 0.75, d.Threshold, 1e-9)

	d = g.Evaluate(types.Opportunity{
		Symbol: "NVDA", Strategy: types.StrategyLongCall, Confidence: 0.75,
	}, h, 50000)
	assert.True(t, d.Accepted)
}

func TestEvaluateUnknownStrategy(t *testing.T) {
	g := NewGate(10000)
	d := g.Evaluate(types.Opportunity{
		Symbol: "TSLA", Strategy: "butterfly", Confidence: 0.94,
	}, types.PerformanceHistory{RecentWinRate: 0.6}, 50000)
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "unknown strategy")
}
