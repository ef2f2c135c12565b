package engine

import (
	"fmt"
	"math"
	"time"

	"options-trading-bot/internal/types"
)

// LegPlan is one constructed options structure, priced per unit. UnitCost is
// the capital one unit ties up in USD: the net debit for debit structures,
// the defined max loss for credit structures.
type LegPlan struct {
	Legs     []types.ContractLeg
	UnitCost float64
	Delta    float64
	Theta    float64
	Vega     float64
}

// Strike offsets from spot, per structure role.
const (
	nearOffset = 0.02
	midOffset  = 0.05
	farOffset  = 0.10
)

// BuildLegs turns a strategy into concrete contracts from the chain. The
// expiry closest to the opportunity's horizon within [minDTE, maxDTE] wins;
// strikes snap to the closest listed strike. A strike hint from the
// confirmation round overrides the default offset for the primary leg.
func BuildLegs(chain *types.OptionChain, o types.Opportunity, minDTE, maxDTE int, now time.Time) (*LegPlan, error) {
	if chain == nil || len(chain.Legs) == 0 {
		return nil, fmt.Errorf("no chain data for %s", o.Symbol)
	}
	spot := chain.UnderlyingPrice
	if spot <= 0 {
		return nil, fmt.Errorf("no underlying price for %s", o.Symbol)
	}

	expiry, err := pickExpiry(chain, o.TimeHorizon, minDTE, maxDTE, now)
	if err != nil {
		return nil, err
	}

	primary := func(def float64) float64 {
		if o.StrikeHint > 0 {
			return o.StrikeHint
		}
		return def
	}

	var plan *LegPlan
	switch o.Strategy {
	case types.StrategyLongCall:
		plan, err = debit(chain, expiry,
			leg(types.OptionCall, primary(spot*(1+nearOffset)), 1))
	case types.StrategyLongPut:
		plan, err = debit(chain, expiry,
			leg(types.OptionPut, primary(spot*(1-nearOffset)), 1))
	case types.StrategyCallSpread:
		plan, err = debit(chain, expiry,
			leg(types.OptionCall, primary(spot*(1+nearOffset)), 1),
			leg(types.OptionCall, spot*(1+farOffset), -1))
	case types.StrategyPutSpread:
		plan, err = debit(chain, expiry,
			leg(types.OptionPut, primary(spot*(1-nearOffset)), 1),
			leg(types.OptionPut, spot*(1-farOffset), -1))
	case types.StrategyStraddle:
		plan, err = debit(chain, expiry,
			leg(types.OptionCall, primary(spot), 1),
			leg(types.OptionPut, primary(spot), 1))
	case types.StrategyStrangle:
		plan, err = debit(chain, expiry,
			leg(types.OptionCall, spot*(1+midOffset), 1),
			leg(types.OptionPut, spot*(1-midOffset), 1))
	case types.StrategyIronCondor:
		plan, err = condor(chain, expiry, spot)
	case types.StrategyCoveredCall:
		plan, err = collateralized(chain, expiry, spot,
			leg(types.OptionCall, spot*(1+midOffset), -1))
	case types.StrategyProtectivePut:
		plan, err = collateralized(chain, expiry, spot,
			leg(types.OptionPut, spot*(1-midOffset), 1))
	default:
		return nil, fmt.Errorf("no leg construction for strategy %s", o.Strategy)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", o.Symbol, o.Strategy, err)
	}
	return plan, nil
}

type legSpec struct {
	ot       types.OptionType
	strike   float64
	quantity int
}

func leg(ot types.OptionType, strike float64, quantity int) legSpec {
	return legSpec{ot: ot, strike: strike, quantity: quantity}
}

func pickExpiry(chain *types.OptionChain, horizon, minDTE, maxDTE int, now time.Time) (time.Time, error) {
	if horizon <= 0 {
		horizon = 30
	}
	var best time.Time
	bestDist := math.MaxFloat64
	for _, exp := range chain.Expirations {
		dte := exp.Sub(now).Hours() / 24
		if dte < float64(minDTE) || dte > float64(maxDTE) {
			continue
		}
		if dist := math.Abs(dte - float64(horizon)); dist < bestDist {
			bestDist = dist
			best = exp
		}
	}
	if best.IsZero() {
		return time.Time{}, fmt.Errorf("no expiry within %d-%d DTE", minDTE, maxDTE)
	}
	return best, nil
}

// closestLeg snaps a target strike to the nearest listed contract.
func closestLeg(chain *types.OptionChain, ot types.OptionType, expiry time.Time, target float64) (*types.ChainLeg, error) {
	var best *types.ChainLeg
	bestDist := math.MaxFloat64
	for i := range chain.Legs {
		l := &chain.Legs[i]
		if l.OptionType != ot || !l.Expiry.Equal(expiry) {
			continue
		}
		if dist := math.Abs(l.Strike - target); dist < bestDist {
			bestDist = dist
			best = l
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no %s contracts at %s", ot, expiry.Format("2006-01-02"))
	}
	return best, nil
}

func resolve(chain *types.OptionChain, expiry time.Time, specs ...legSpec) ([]types.ContractLeg, []*types.ChainLeg, error) {
	legs := make([]types.ContractLeg, 0, len(specs))
	quoted := make([]*types.ChainLeg, 0, len(specs))
	seen := make(map[string]bool)
	for _, s := range specs {
		q, err := closestLeg(chain, s.ot, expiry, s.strike)
		if err != nil {
			return nil, nil, err
		}
		key := fmt.Sprintf("%s|%.2f", s.ot, q.Strike)
		if seen[key] {
			return nil, nil, fmt.Errorf("strikes collapsed to the same %s %.2f contract", s.ot, q.Strike)
		}
		seen[key] = true
		legs = append(legs, types.ContractLeg{
			OptionType: s.ot,
			Strike:     q.Strike,
			Expiry:     q.Expiry,
			Quantity:   s.quantity,
			EntryPrice: q.Mid(),
			LastPrice:  q.Mid(),
		})
		quoted = append(quoted, q)
	}
	return legs, quoted, nil
}

func planFrom(legs []types.ContractLeg, quoted []*types.ChainLeg, unitCost float64) *LegPlan {
	p := &LegPlan{Legs: legs, UnitCost: unitCost}
	for i, q := range quoted {
		sign := float64(legs[i].Quantity)
		p.Delta += q.Delta * sign * 100
		p.Theta += q.Theta * sign * 100
		p.Vega += q.Vega * sign * 100
	}
	return p
}

// debit builds a plan whose unit cost is the net premium paid. A structure
// that nets a credit here means the quotes are crossed; reject it.
func debit(chain *types.OptionChain, expiry time.Time, specs ...legSpec) (*LegPlan, error) {
	legs, quoted, err := resolve(chain, expiry, specs...)
	if err != nil {
		return nil, err
	}
	net := 0.0
	for i, q := range quoted {
		net += q.Mid() * float64(legs[i].Quantity) * 100
	}
	if net <= 0 {
		return nil, fmt.Errorf("structure prices at a credit (%.2f), quotes unusable", net)
	}
	return planFrom(legs, quoted, net), nil
}

// condor builds the four-legged iron condor. Unit cost is the wider wing
// width minus the credit received: the defined max loss.
func condor(chain *types.OptionChain, expiry time.Time, spot float64) (*LegPlan, error) {
	legs, quoted, err := resolve(chain, expiry,
		leg(types.OptionCall, spot*(1+midOffset), -1),
		leg(types.OptionCall, spot*(1+farOffset), 1),
		leg(types.OptionPut, spot*(1-midOffset), -1),
		leg(types.OptionPut, spot*(1-farOffset), 1),
	)
	if err != nil {
		return nil, err
	}
	credit := 0.0
	for i, q := range quoted {
		credit -= q.Mid() * float64(legs[i].Quantity) * 100
	}
	if credit <= 0 {
		return nil, fmt.Errorf("condor prices at a debit, quotes unusable")
	}
	callWidth := math.Abs(legs[1].Strike - legs[0].Strike)
	putWidth := math.Abs(legs[2].Strike - legs[3].Strike)
	maxLoss := math.Max(callWidth, putWidth)*100 - credit
	if maxLoss <= 0 {
		return nil, fmt.Errorf("condor credit %.2f exceeds wing width", credit)
	}
	return planFrom(legs, quoted, maxLoss), nil
}

// collateralized covers the stock-backed structures. The unit cost includes
// the 100-share position, which is what actually leaves the cash balance.
func collateralized(chain *types.OptionChain, expiry time.Time, spot float64, spec legSpec) (*LegPlan, error) {
	legs, quoted, err := resolve(chain, expiry, spec)
	if err != nil {
		return nil, err
	}
	premium := quoted[0].Mid() * float64(legs[0].Quantity) * 100
	unitCost := spot*100 + premium
	if unitCost <= 0 {
		return nil, fmt.Errorf("collateralized structure priced below zero")
	}
	return planFrom(legs, quoted, unitCost), nil
}
