// Package policy implements the confidence gate: the deterministic check
// every proposed opportunity must clear before any money moves. The advisory
// service proposes; this package disposes.
package policy

import (
	"fmt"

	"options-trading-bot/internal/types"
)

// defaultBases are the per-strategy confidence bars. Defined-risk spreads
// clear a lower bar than naked long premium.
var defaultBases = map[types.StrategyType]float64{
	types.StrategyLongCall:      0.75,
	types.StrategyLongPut:       0.78,
	types.StrategyCallSpread:    0.68,
	types.StrategyPutSpread:     0.70,
	types.StrategyStraddle:      0.75,
	types.StrategyStrangle:      0.75,
	types.StrategyIronCondor:    0.65,
	types.StrategyCoveredCall:   0.68,
	types.StrategyProtectivePut: 0.68,
}

// Thresholds tunes the gate. Zero fields take the defaults, so the zero
// value is the stock policy.
type Thresholds struct {
	Floor           float64
	Ceiling         float64
	Bases           map[types.StrategyType]float64
	LossBoost       float64 // added after 2 consecutive losses
	DeepLossBoost   float64 // replaces LossBoost after 3
	WinReduction    float64 // subtracted on a 4+ win streak
	LowWinRateBoost float64 // added when the recent win rate is under 50%
	HighWinRateTrim float64 // subtracted when it is over 80%
}

func (t *Thresholds) applyDefaults() {
	if t.Floor == 0 {
		t.Floor = 0.60
	}
	if t.Ceiling == 0 {
		t.Ceiling = 0.95
	}
	if t.Bases == nil {
		t.Bases = defaultBases
	}
	if t.LossBoost == 0 {
		t.LossBoost = 0.10
	}
	if t.DeepLossBoost == 0 {
		t.DeepLossBoost = 0.15
	}
	if t.WinReduction == 0 {
		t.WinReduction = 0.05
	}
	if t.LowWinRateBoost == 0 {
		t.LowWinRateBoost = 0.05
	}
	if t.HighWinRateTrim == 0 {
		t.HighWinRateTrim = 0.03
	}
}

// Decision is the outcome of gating one opportunity.
type Decision struct {
	Accepted   bool
	Threshold  float64
	Confidence float64
	Reason     string
}

// Gate applies the confidence thresholds. MinCashReserve mirrors the
// account-level reserve: no opportunity is accepted while free cash sits at
// or below it.
type Gate struct {
	MinCashReserve float64
	th             Thresholds
}

func NewGate(minCashReserve float64) *Gate {
	return NewGateWithThresholds(minCashReserve, Thresholds{})
}

func NewGateWithThresholds(minCashReserve float64, th Thresholds) *Gate {
	th.applyDefaults()
	return &Gate{MinCashReserve: minCashReserve, th: th}
}

// Threshold returns the confidence bar for a strategy given recent
// performance. Adjustments are additive and the result is clamped to
// [Floor, Ceiling]. Unknown strategies get the ceiling, so they can only
// pass at maximum confidence.
func (g *Gate) Threshold(strategy types.StrategyType, h types.PerformanceHistory) float64 {
	base, ok := g.th.Bases[strategy]
	if !ok {
		return g.th.Ceiling
	}

	t := base
	switch {
	case h.ConsecutiveLosses >= 3:
		t += g.th.DeepLossBoost
	case h.ConsecutiveLosses >= 2:
		t += g.th.LossBoost
	}
	if h.CurrentStreak >= 4 {
		t -= g.th.WinReduction
	}
	if h.RecentWinRate < 0.50 {
		t += g.th.LowWinRateBoost
	} else if h.RecentWinRate > 0.80 {
		t -= g.th.HighWinRateTrim
	}

	if t < g.th.Floor {
		t = g.th.Floor
	}
	if t > g.th.Ceiling {
		t = g.th.Ceiling
	}
	return t
}

// Evaluate gates one opportunity against the history and available cash.
func (g *Gate) Evaluate(opp types.Opportunity, h types.PerformanceHistory, cash float64) Decision {
	d := Decision{Confidence: opp.Confidence}

	if !opp.Strategy.Valid() {
		d.Threshold = g.th.Ceiling
		d.Reason = fmt.Sprintf("unknown strategy %q", opp.Strategy)
		return d
	}
	d.Threshold = g.Threshold(opp.Strategy, h)

	if cash <= g.MinCashReserve {
		d.Reason = fmt.Sprintf("cash %.2f at or below reserve %.2f", cash, g.MinCashReserve)
		return d
	}
	if opp.Confidence < d.Threshold {
		d.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", opp.Confidence, d.Threshold)
		return d
	}

	d.Accepted = true
	d.Reason = fmt.Sprintf("confidence %.2f cleared threshold %.2f", opp.Confidence, d.Threshold)
	return d
}
