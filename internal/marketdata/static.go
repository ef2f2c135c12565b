package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"options-trading-bot/internal/types"
)

// StaticProvider serves synthetic quotes and chains for DRY_RUN mode. Prices
// are a pure function of the symbol and the hour, so repeated runs inside an
// hour see identical data and nothing leaves the process.
type StaticProvider struct {
	now func() time.Time
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{now: time.Now}
}

func (p *StaticProvider) FetchQuote(ctx context.Context, symbol string) (*types.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, newBadSymbolError(symbol, "empty symbol")
	}
	now := p.now()
	price := syntheticPrice(symbol, now)
	return &types.Quote{
		Symbol:    symbol,
		Price:     price,
		ChangePct: syntheticDrift(symbol, now),
		Volume:    1_000_000 + int64(hashOf(symbol)%9_000_000),
		Timestamp: now,
	}, nil
}

func (p *StaticProvider) FetchChain(ctx context.Context, symbol string) (*types.OptionChain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, newBadSymbolError(symbol, "empty symbol")
	}
	now := p.now()
	spot := syntheticPrice(symbol, now)

	// Weekly expirations out to ~8 weeks.
	var expirations []time.Time
	for w := 1; w <= 8; w++ {
		expirations = append(expirations, nextFriday(now).AddDate(0, 0, 7*(w-1)))
	}

	var legs []types.ChainLeg
	for _, exp := range expirations {
		dte := exp.Sub(now).Hours() / 24
		// Strikes in 2.5% steps from 85% to 115% of spot.
		for pct := -0.15; pct <= 0.1501; pct += 0.025 {
			strike := roundStrike(spot * (1 + pct))
			for _, ot := range []types.OptionType{types.OptionCall, types.OptionPut} {
				mid := syntheticPremium(spot, strike, dte, ot)
				legs = append(legs, types.ChainLeg{
					OptionType:   ot,
					Strike:       strike,
					Expiry:       exp,
					Bid:          mid * 0.97,
					Ask:          mid * 1.03,
					Last:         mid,
					Volume:       100 + int64(hashOf(symbol)%900),
					OpenInterest: 500 + int64(hashOf(symbol)%4500),
					Delta:        syntheticDelta(spot, strike, ot),
					Theta:        -mid / math.Max(dte, 1),
					Vega:         mid * 0.1,
				})
			}
		}
	}

	return &types.OptionChain{
		Symbol:          symbol,
		UnderlyingPrice: spot,
		Expirations:     expirations,
		Legs:            legs,
	}, nil
}

func hashOf(symbol string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return h.Sum64()
}

// syntheticPrice anchors each symbol in [40, 540] and adds a slow hourly
// oscillation so monitoring sees movement across a day.
func syntheticPrice(symbol string, now time.Time) float64 {
	base := 40 + float64(hashOf(symbol)%500)
	phase := float64(now.YearDay()*24+now.Hour()) / 24
	wobble := math.Sin(phase+float64(hashOf(symbol)%7)) * base * 0.02
	return math.Round((base+wobble)*100) / 100
}

func syntheticDrift(symbol string, now time.Time) float64 {
	phase := float64(now.YearDay()*24+now.Hour()) / 24
	return math.Round(math.Sin(phase+float64(hashOf(symbol)%11))*300) / 100
}

// syntheticPremium is intrinsic value plus a time-value term that decays
// with the square root of time, floored at five cents.
func syntheticPremium(spot, strike, dte float64, ot types.OptionType) float64 {
	var intrinsic float64
	if ot == types.OptionCall {
		intrinsic = math.Max(spot-strike, 0)
	} else {
		intrinsic = math.Max(strike-spot, 0)
	}
	timeValue := spot * 0.015 * math.Sqrt(math.Max(dte, 1)/30)
	moneyness := math.Abs(spot-strike) / spot
	timeValue *= math.Exp(-4 * moneyness)
	p := intrinsic + timeValue
	if p < 0.05 {
		p = 0.05
	}
	return math.Round(p*100) / 100
}

func syntheticDelta(spot, strike float64, ot types.OptionType) float64 {
	// Logistic in moneyness, signed by option type.
	d := 1 / (1 + math.Exp(-(spot-strike)/(spot*0.03)))
	if ot == types.OptionPut {
		return math.Round((d-1)*100) / 100
	}
	return math.Round(d*100) / 100
}

func roundStrike(v float64) float64 {
	if v >= 200 {
		return math.Round(v/5) * 5
	}
	return math.Round(v)
}

func nextFriday(now time.Time) time.Time {
	d := now
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, d.Location())
}
