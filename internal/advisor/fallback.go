package advisor

import (
	"fmt"
	"time"

	"options-trading-bot/internal/types"
)

// Strategy rotation per risk level. Lower risk levels lean on defined-risk
// structures.
var fallbackStrategies = map[types.RiskLevel][]types.StrategyType{
	types.RiskVeryConservative:   {types.StrategyIronCondor, types.StrategyCoveredCall},
	types.RiskConservative:       {types.StrategyPutSpread, types.StrategyCallSpread},
	types.RiskNormal:             {types.StrategyCallSpread, types.StrategyLongCall},
	types.RiskModerateAggressive: {types.StrategyLongCall, types.StrategyLongPut},
	types.RiskAggressive:         {types.StrategyLongCall, types.StrategyStraddle},
}

const fallbackConfidence = 0.70

// FallbackCandidates generates rule-based candidates when the advisory
// service cannot produce a valid proposal. Selection is a pure function of
// the date, the risk level and the held set: the day of year rotates through
// the universe minus held symbols, so reruns within a day pick the same
// names and no symbol is doubled up.
func FallbackCandidates(universe []string, held []string, risk types.RiskLevel, now time.Time, n int) []types.Opportunity {
	heldSet := make(map[string]bool, len(held))
	for _, s := range held {
		heldSet[s] = true
	}
	var available []string
	for _, s := range universe {
		if !heldSet[s] {
			available = append(available, s)
		}
	}
	if len(available) == 0 || n <= 0 {
		return nil
	}
	if n > len(available) {
		n = len(available)
	}

	strategies := fallbackStrategies[risk]
	if len(strategies) == 0 {
		strategies = fallbackStrategies[types.RiskNormal]
	}

	offset := now.YearDay() % len(available)
	out := make([]types.Opportunity, 0, n)
	for i := 0; i < n; i++ {
		symbol := available[(offset+i)%len(available)]
		strategy := strategies[(now.YearDay()+i)%len(strategies)]
		out = append(out, types.Opportunity{
			Symbol:       symbol,
			Strategy:     strategy,
			Confidence:   fallbackConfidence,
			TargetReturn: 0.25,
			TimeHorizon:  30,
			Rationale: fmt.Sprintf("rule-based rotation (%s risk, advisory unavailable)",
				risk),
		})
	}
	return out
}
