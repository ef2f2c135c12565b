// Package perf derives trading performance statistics from the closed
// position ledger. Everything here is a pure function of the ledger and a
// clock reading, so the same ledger always yields the same history.
package perf

import (
	"sort"
	"time"

	"options-trading-bot/internal/types"
)

const (
	// winRateWindow is how many recent graded trades the win rate covers.
	winRateWindow = 20

	riskConfidenceFloor   = 0.1
	riskConfidenceCeiling = 0.9
)

// Compute builds a PerformanceHistory from closed positions. Positions with
// no exit time are skipped; they cannot be graded.
func Compute(ledger []*types.Position, now time.Time) types.PerformanceHistory {
	graded := make([]*types.Position, 0, len(ledger))
	for _, p := range ledger {
		if p.Status == types.StatusClosed && p.ExitTime != nil {
			graded = append(graded, p)
		}
	}
	sort.Slice(graded, func(i, j int) bool {
		return graded[i].ExitTime.Before(*graded[j].ExitTime)
	})

	h := types.PerformanceHistory{GradedTrades: len(graded)}
	for _, p := range graded {
		age := now.Sub(*p.ExitTime)
		pnl := p.RealizedPnL
		if age <= 7*24*time.Hour {
			h.PnL7Day += pnl
		}
		if age <= 30*24*time.Hour {
			h.PnL30Day += pnl
		}
		if age <= 60*24*time.Hour {
			h.PnL60Day += pnl
		}
	}

	h.CurrentStreak = streak(graded)
	h.ConsecutiveLosses = trailingLosses(graded)
	h.RecentWinRate = winRate(graded, winRateWindow)
	h.Trend = trend(h)
	h.RiskConfidence = riskConfidence(h)
	return h
}

// streak is the signed length of the run of same-sign results at the tail:
// positive for consecutive wins, negative for consecutive losses. Break-even
// trades end the run.
func streak(graded []*types.Position) int {
	n := 0
	for i := len(graded) - 1; i >= 0; i-- {
		pnl := graded[i].RealizedPnL
		switch {
		case pnl > 0 && n >= 0:
			n++
		case pnl < 0 && n <= 0:
			n--
		default:
			return n
		}
	}
	return n
}

func trailingLosses(graded []*types.Position) int {
	n := 0
	for i := len(graded) - 1; i >= 0; i-- {
		if graded[i].RealizedPnL >= 0 {
			break
		}
		n++
	}
	return n
}

// winRate is the fraction of winners among the last `window` graded trades.
// With no graded trades it reports 0.5, a neutral prior.
func winRate(graded []*types.Position, window int) float64 {
	if len(graded) == 0 {
		return 0.5
	}
	start := len(graded) - window
	if start < 0 {
		start = 0
	}
	wins := 0
	for _, p := range graded[start:] {
		if p.RealizedPnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(graded)-start)
}

// trend compares the recent window against the longer one: positive 7-day
// P&L on top of a losing 30-day run is improving, and the reverse is
// declining.
func trend(h types.PerformanceHistory) types.Trend {
	if h.GradedTrades == 0 {
		return types.TrendStable
	}
	if h.PnL7Day > 0 && h.PnL30Day < 0 {
		return types.TrendImproving
	}
	if h.PnL7Day < 0 && h.PnL30Day > 0 {
		return types.TrendDeclining
	}
	if h.PnL7Day > 0 && h.PnL30Day > 0 {
		return types.TrendImproving
	}
	if h.PnL7Day < 0 && h.PnL30Day < 0 {
		return types.TrendDeclining
	}
	return types.TrendStable
}

// riskConfidence starts from a neutral 0.5 and shifts with the win rate and
// the current run, clamped to [0.1, 0.9].
func riskConfidence(h types.PerformanceHistory) float64 {
	c := 0.5
	c += (h.RecentWinRate - 0.5) * 0.4
	if h.CurrentStreak > 0 {
		c += 0.03 * float64(h.CurrentStreak)
	}
	c -= 0.08 * float64(h.ConsecutiveLosses)
	if c < riskConfidenceFloor {
		c = riskConfidenceFloor
	}
	if c > riskConfidenceCeiling {
		c = riskConfidenceCeiling
	}
	return c
}

// RiskLevel maps the history onto the five-step risk ladder used by the
// fallback candidate generator and position sizing.
func RiskLevel(h types.PerformanceHistory) types.RiskLevel {
	switch {
	case h.ConsecutiveLosses >= 3:
		return types.RiskVeryConservative
	case h.ConsecutiveLosses >= 2:
		return types.RiskConservative
	case h.CurrentStreak > 5:
		return types.RiskAggressive
	case h.CurrentStreak > 3:
		return types.RiskModerateAggressive
	default:
		return types.RiskNormal
	}
}
