package types

import (
	"time"
)

// StrategyType enumerates the options strategies the bot knows how to
// construct legs for. Dispatching code switches exhaustively over these.
type StrategyType string

const (
	StrategyLongCall      StrategyType = "long_call"
	StrategyLongPut       StrategyType = "long_put"
	StrategyCallSpread    StrategyType = "call_spread"
	StrategyPutSpread     StrategyType = "put_spread"
	StrategyStraddle      StrategyType = "straddle"
	StrategyStrangle      StrategyType = "strangle"
	StrategyIronCondor    StrategyType = "iron_condor"
	StrategyCoveredCall   StrategyType = "covered_call"
	StrategyProtectivePut StrategyType = "protective_put"
)

// Strategies lists every known strategy, in a stable order.
var Strategies = []StrategyType{
	StrategyLongCall, StrategyLongPut, StrategyCallSpread, StrategyPutSpread,
	StrategyStraddle, StrategyStrangle, StrategyIronCondor,
	StrategyCoveredCall, StrategyProtectivePut,
}

// Valid reports whether s is a known strategy.
func (s StrategyType) Valid() bool {
	for _, k := range Strategies {
		if s == k {
			return true
		}
	}
	return false
}

type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// CloseReason records why the monitor (or an operator) closed a position.
// Trigger evaluation order in the monitor matches the declaration order here.
type CloseReason string

const (
	CloseProfitTarget CloseReason = "profit_target"
	CloseStopLoss     CloseReason = "stop_loss"
	CloseExpiryWindow CloseReason = "expiry_window"
	CloseMaxHolding   CloseReason = "max_holding_period"
	CloseAdvisor      CloseReason = "advisor_close"
	CloseManual       CloseReason = "manual"
)

// AdvisorAction is the action enum the advisory service may return for an
// open position review.
type AdvisorAction string

const (
	ActionHold         AdvisorAction = "hold"
	ActionClose        AdvisorAction = "close"
	ActionAdjustStop   AdvisorAction = "adjust_stop"
	ActionAdjustTarget AdvisorAction = "adjust_target"
	ActionRoll         AdvisorAction = "roll"
)

func (a AdvisorAction) Valid() bool {
	switch a {
	case ActionHold, ActionClose, ActionAdjustStop, ActionAdjustTarget, ActionRoll:
		return true
	}
	return false
}

// RiskLevel is derived from recent performance and steers the fallback
// candidate generator and position sizing.
type RiskLevel string

const (
	RiskVeryConservative   RiskLevel = "very_conservative"
	RiskConservative       RiskLevel = "conservative"
	RiskNormal             RiskLevel = "normal"
	RiskModerateAggressive RiskLevel = "moderate_aggressive"
	RiskAggressive         RiskLevel = "aggressive"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// ContractLeg is one option contract within a position. Quantity is signed:
// positive for long legs, negative for short legs.
type ContractLeg struct {
	OptionType OptionType `json:"option_type"`
	Strike     float64    `json:"strike"`
	Expiry     time.Time  `json:"expiry"`
	Quantity   int        `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	LastPrice  float64    `json:"last_price"`
}

// DaysToExpiry is the number of whole days from now until the leg expires.
func (l ContractLeg) DaysToExpiry(now time.Time) int {
	return int(l.Expiry.Sub(now).Hours() / 24)
}

// Position is an executed trade tracked until closed. Closed positions are
// never deleted; they form the performance ledger.
type Position struct {
	ID            string         `json:"id" db:"id"`
	Symbol        string         `json:"symbol" db:"symbol"`
	Strategy      StrategyType   `json:"strategy" db:"strategy"`
	Status        PositionStatus `json:"status" db:"status"`
	Legs          []ContractLeg  `json:"legs"`
	EntryCost     float64        `json:"entry_cost" db:"entry_cost"`
	CurrentValue  float64        `json:"current_value" db:"current_value"`
	RealizedPnL   float64        `json:"realized_pnl" db:"realized_pnl"`
	UnrealizedPnL float64        `json:"unrealized_pnl" db:"unrealized_pnl"`
	ProfitTarget  float64        `json:"profit_target" db:"profit_target"`
	MaxLoss       float64        `json:"max_loss" db:"max_loss"`
	CloseReason   CloseReason    `json:"close_reason,omitempty" db:"close_reason"`
	EntryTime     time.Time      `json:"entry_time" db:"entry_time"`
	ExitTime      *time.Time     `json:"exit_time,omitempty" db:"exit_time"`

	// Aggregate risk sensitivities, as reported by the market data provider.
	Delta float64 `json:"delta" db:"delta"`
	Theta float64 `json:"theta" db:"theta"`
	Vega  float64 `json:"vega" db:"vega"`

	LastAdvisorCheck *time.Time `json:"last_advisor_check,omitempty" db:"last_advisor_check"`
}

// TotalPnL is realized plus unrealized P&L.
func (p *Position) TotalPnL() float64 { return p.RealizedPnL + p.UnrealizedPnL }

// PnLPercent is total P&L relative to entry cost.
func (p *Position) PnLPercent() float64 {
	if p.EntryCost == 0 {
		return 0
	}
	return p.TotalPnL() / p.EntryCost * 100
}

// DaysHeld is the holding period in whole days.
func (p *Position) DaysHeld(now time.Time) int {
	end := now
	if p.ExitTime != nil {
		end = *p.ExitTime
	}
	return int(end.Sub(p.EntryTime).Hours() / 24)
}

// MinDaysToExpiry returns the smallest DTE across legs, or a large value for
// positions without legs (stock-only collateral).
func (p *Position) MinDaysToExpiry(now time.Time) int {
	min := int(1<<31 - 1)
	for _, l := range p.Legs {
		if d := l.DaysToExpiry(now); d < min {
			min = d
		}
	}
	return min
}

// NeedsAdvisorCheck reports whether the position is due for an advisory
// review: never checked, moved more than 25% either way, inside the expiry
// window, or last checked over 24h ago.
func (p *Position) NeedsAdvisorCheck(now time.Time) bool {
	if p.LastAdvisorCheck == nil {
		return true
	}
	if pct := p.PnLPercent(); pct > 25 || pct < -25 {
		return true
	}
	if p.MinDaysToExpiry(now) <= 7 {
		return true
	}
	return now.Sub(*p.LastAdvisorCheck) > 24*time.Hour
}

// Opportunity is a candidate trade proposed by the advisory service (or the
// rule-based fallback). It lives for one decision cycle and is never
// persisted directly.
type Opportunity struct {
	Symbol       string       `json:"symbol"`
	Strategy     StrategyType `json:"strategy_type"`
	Confidence   float64      `json:"confidence"`
	TargetReturn float64      `json:"target_return"`
	MaxRisk      float64      `json:"max_risk"`
	TimeHorizon  int          `json:"time_horizon"`
	Rationale    string       `json:"rationale"`

	// Optional hints from the confirmation round.
	StrikeHint float64    `json:"strike_price,omitempty"`
	ExpiryHint *time.Time `json:"expiry_hint,omitempty"`
}

// PerformanceHistory is fully derived from the closed-position ledger.
// CurrentStreak is positive for a winning run, negative for a losing run.
type PerformanceHistory struct {
	PnL7Day           float64 `json:"last_7_days_pnl"`
	PnL30Day          float64 `json:"last_30_days_pnl"`
	PnL60Day          float64 `json:"last_60_days_pnl"`
	CurrentStreak     int     `json:"current_streak"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	RecentWinRate     float64 `json:"recent_win_rate"`
	GradedTrades      int     `json:"graded_trades"`
	Trend             Trend   `json:"performance_trend"`
	RiskConfidence    float64 `json:"risk_confidence"`
}

// PortfolioSummary is the snapshot handed to the advisory service and the
// confidence gate.
type PortfolioSummary struct {
	TotalValue    float64            `json:"total_value"`
	CashBalance   float64            `json:"cash_balance"`
	TotalPnL      float64            `json:"total_pnl"`
	OpenPositions int                `json:"open_positions"`
	History       PerformanceHistory `json:"performance_history"`
}

// Quote is a point-in-time snapshot for one symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// ChainLeg is one quoted contract within an option chain.
type ChainLeg struct {
	OptionType   OptionType `json:"option_type"`
	Strike       float64    `json:"strike"`
	Expiry       time.Time  `json:"expiry"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	Delta        float64    `json:"delta"`
	Theta        float64    `json:"theta"`
	Vega         float64    `json:"vega"`
}

// Mid returns the bid/ask midpoint, falling back to the last trade.
func (c ChainLeg) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}

// OptionChain is the set of quoted contracts for one underlying.
type OptionChain struct {
	Symbol          string      `json:"symbol"`
	UnderlyingPrice float64     `json:"underlying_price"`
	Expirations     []time.Time `json:"expirations"`
	Legs            []ChainLeg  `json:"legs"`
}

// MarketAssessment is the advisory service's view from the confirmation
// round.
type MarketAssessment struct {
	OverallSentiment    string `json:"overall_sentiment"`
	RecommendedExposure string `json:"recommended_exposure"`
}

// CashStrategy is the advisory service's cash allocation decision.
type CashStrategy struct {
	Action     string  `json:"action"`
	Percentage float64 `json:"percentage"`
	Reasoning  string  `json:"reasoning"`
}

// PositionReview is the advisory service's verdict on one open position.
type PositionReview struct {
	Action      AdvisorAction `json:"action"`
	Confidence  float64       `json:"confidence"`
	Reasoning   string        `json:"reasoning"`
	TargetPrice float64       `json:"target_price,omitempty"`
	StopLoss    float64       `json:"stop_loss,omitempty"`
}

// NewsSentiment is the aggregated sentiment for one symbol's recent
// headlines.
type NewsSentiment struct {
	Symbol           string  `json:"symbol"`
	OverallSentiment string  `json:"overall_sentiment"`
	OverallScore     float64 `json:"overall_score"`
	Confidence       float64 `json:"confidence"`
	Summary          string  `json:"summary"`
	Headlines        int     `json:"headlines"`
	Timestamp        int64   `json:"timestamp"`
}

// NewsArticle is one scraped headline.
type NewsArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content,omitempty"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
	Symbol      string `json:"symbol"`
}

// CycleOutcome is the structured record every decision cycle ends with,
// whatever happened inside it. A reporting collaborator may render these.
type CycleOutcome struct {
	Session      string           `json:"session"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Proposed     int              `json:"proposed"`
	Accepted     int              `json:"accepted"`
	Executed     int              `json:"executed"`
	UsedFallback bool             `json:"used_fallback"`
	Cash         CashStrategy     `json:"cash_strategy"`
	Assessment   MarketAssessment `json:"market_assessment"`
	Degraded     string           `json:"degraded,omitempty"` // failure class, when the cycle ran in degraded mode
	Note         string           `json:"note,omitempty"`
}
