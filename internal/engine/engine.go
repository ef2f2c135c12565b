// Package engine runs the decision cycle: propose candidates, fetch live
// data for them, confirm, gate, size and persist. A cycle always produces a
// CycleOutcome, whatever happened inside it; only configuration-level
// failures propagate as errors.
package engine

import (
	"context"
	"fmt"
	"time"

	"options-trading-bot/internal/advisor"
	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/perf"
	"options-trading-bot/internal/policy"
	"options-trading-bot/internal/tradelog"
	"options-trading-bot/internal/types"
)

var _ interfaces.Engine = (*Engine)(nil)

// SentimentSource supplies the market color for the proposal round. It is
// optional; a nil source just means the proposal round sees no news.
type SentimentSource interface {
	Snapshot(ctx context.Context, symbols []string) (map[string]any, []types.NewsSentiment)
}

type Config struct {
	MaxPositions       int
	MaxDailyPositions  int
	MinCashReserve     float64
	MinDTE             int
	MaxDTE             int
	DefaultStopLossPct float64
	Sizing             SizingConfig
	Confidence         policy.Thresholds
	Universe           []string
}

type Engine struct {
	store     interfaces.PositionStore
	market    interfaces.MarketData
	advisor   interfaces.Advisor
	gate      *policy.Gate
	news      SentimentSource
	cfg       Config
	now       func() time.Time
}

func New(store interfaces.PositionStore, market interfaces.MarketData, adv interfaces.Advisor, news SentimentSource, cfg Config) *Engine {
	return &Engine{
		store:   store,
		market:  market,
		advisor: adv,
		gate:    policy.NewGateWithThresholds(cfg.MinCashReserve, cfg.Confidence),
		news:    news,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RunSession executes one decision cycle. Degraded paths (budget spent,
// advisory unavailable, no candidates) finish the cycle with a populated
// Degraded field and a nil error; only auth/config failures return an error.
func (e *Engine) RunSession(ctx context.Context, session string) (*types.CycleOutcome, error) {
	ctx, span := logger.StartSpan(ctx, "engine-session")
	defer span.End()

	outcome := &types.CycleOutcome{
		Session:   session,
		StartedAt: e.now(),
		Cash:      types.CashStrategy{Action: "hold_cash", Percentage: 100},
	}
	defer func() {
		outcome.FinishedAt = e.now()
		if err := tradelog.AppendOutcome(*outcome); err != nil {
			logger.Warn(ctx, "Failed to record cycle outcome", "error", err.Error())
		}
	}()

	timer := logger.StartOperation(ctx, "decision_session", "session", session)

	// Two advisory rounds per session; don't start one we cannot finish.
	if e.advisor.RemainingBudget() < 2 {
		outcome.Degraded = string(advisor.FailBudget)
		outcome.Note = "advisory budget too low for a full session"
		logger.Warn(ctx, "Skipping session, advisory budget too low",
			"remaining", e.advisor.RemainingBudget())
		timer.End("result", "skipped_budget")
		return outcome, nil
	}

	portfolio, held, err := e.snapshot(ctx)
	if err != nil {
		timer.EndWithError(err)
		return outcome, err
	}
	if portfolio.OpenPositions >= e.cfg.MaxPositions {
		outcome.Note = fmt.Sprintf("position limit reached (%d)", portfolio.OpenPositions)
		logger.Info(ctx, "Skipping session, position limit reached",
			"open", portfolio.OpenPositions, "max", e.cfg.MaxPositions)
		timer.End("result", "skipped_position_limit")
		return outcome, nil
	}
	openedToday, err := e.countOpenedToday(ctx)
	if err != nil {
		timer.EndWithError(err)
		return outcome, err
	}
	if openedToday >= e.cfg.MaxDailyPositions {
		outcome.Note = fmt.Sprintf("daily position cap reached (%d)", openedToday)
		timer.End("result", "skipped_daily_cap")
		return outcome, nil
	}

	// Round 1: autonomous proposal.
	var summary map[string]any
	var sentiment []types.NewsSentiment
	if e.news != nil {
		summary, sentiment = e.news.Snapshot(ctx, e.cfg.Universe)
	}
	candidates, err := e.advisor.ProposeCandidates(ctx, interfaces.ProposalRequest{
		Portfolio:     portfolio,
		MarketSummary: summary,
		HeldSymbols:   held,
		Sentiment:     sentiment,
	})
	if err != nil {
		return e.degradeOrFail(ctx, outcome, timer, "proposal", err)
	}
	outcome.Proposed = len(candidates)
	if len(candidates) == 0 {
		outcome.Note = "no candidates proposed"
		timer.End("result", "no_candidates")
		return outcome, nil
	}

	// Round 2: live data for the proposed names only.
	symbols := make([]string, 0, len(candidates))
	for _, c := range candidates {
		symbols = append(symbols, c.Symbol)
	}
	e.market.Refresh(ctx, symbols)

	quotes := make(map[string]*types.Quote, len(candidates))
	quotable := candidates[:0]
	for _, c := range candidates {
		q, qerr := e.market.Quote(ctx, c.Symbol)
		if qerr != nil {
			logger.Warn(ctx, "Dropping candidate without live quote",
				"symbol", c.Symbol, "error", qerr.Error())
			continue
		}
		quotes[c.Symbol] = q
		quotable = append(quotable, c)
	}
	candidates = quotable
	if len(candidates) == 0 {
		outcome.Degraded = "market_data"
		outcome.Note = "no candidate had live data"
		timer.End("result", "no_live_data")
		return outcome, nil
	}

	// Round 3: confirmation over the live data.
	conf, err := e.advisor.ConfirmCandidates(ctx, interfaces.ConfirmRequest{
		Candidates: candidates,
		Quotes:     quotes,
		Portfolio:  portfolio,
	})
	if err != nil {
		return e.degradeOrFail(ctx, outcome, timer, "confirmation", err)
	}
	outcome.Assessment = conf.Assessment
	outcome.Cash = conf.Cash
	outcome.UsedFallback = conf.FromFallback

	executed, accepted := e.execute(ctx, conf, portfolio, openedToday)
	outcome.Accepted = accepted
	outcome.Executed = executed

	timer.End("proposed", outcome.Proposed, "accepted", accepted, "executed", executed,
		"fallback", conf.FromFallback)
	return outcome, nil
}

// execute gates, sizes and persists the confirmed opportunities. Returns
// executed and accepted counts.
func (e *Engine) execute(ctx context.Context, conf *interfaces.Confirmation, portfolio types.PortfolioSummary, openedToday int) (int, int) {
	deployable := 1.0
	if conf.Cash.Action != "deploy" {
		deployable = 1 - conf.Cash.Percentage/100
	}
	if deployable <= 0 {
		logger.Info(ctx, "Cash strategy holds everything back, no executions",
			"action", conf.Cash.Action, "pct", conf.Cash.Percentage)
		return 0, 0
	}

	cash := portfolio.CashBalance
	history := portfolio.History
	open := portfolio.OpenPositions
	executed, accepted := 0, 0

	for _, opp := range conf.Opportunities {
		if open+executed >= e.cfg.MaxPositions {
			break
		}
		if openedToday+executed >= e.cfg.MaxDailyPositions {
			break
		}

		decision := e.gate.Evaluate(opp, history, cash)
		logger.Decision(ctx, opp.Symbol, string(opp.Strategy), opp.Confidence, decision.Reason,
			"threshold", decision.Threshold, "accepted", decision.Accepted)
		if err := tradelog.AppendDecision(tradelog.DecisionEntry{
			Symbol:     opp.Symbol,
			Action:     string(opp.Strategy),
			Confidence: opp.Confidence,
			Threshold:  decision.Threshold,
			Accepted:   decision.Accepted,
			Reason:     decision.Reason,
		}); err != nil {
			logger.Warn(ctx, "Failed to record decision", "error", err.Error())
		}
		if !decision.Accepted {
			continue
		}
		accepted++

		cost, err := e.open(ctx, opp, cash*deployable, history)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to open position", err,
				"symbol", opp.Symbol, "strategy", string(opp.Strategy))
			continue
		}
		cash -= cost
		executed++
	}
	return executed, accepted
}

// open sizes the opportunity, builds legs from the chain and persists the
// position. Cash is deducted before the insert and released if the insert
// fails, so the balance never drifts from the position set.
func (e *Engine) open(ctx context.Context, opp types.Opportunity, deployableCash float64, history types.PerformanceHistory) (float64, error) {
	budget := positionBudget(e.cfg.Sizing, deployableCash, history, opp)
	if budget <= 0 {
		return 0, fmt.Errorf("no valid budget for %s (cash %.2f)", opp.Symbol, deployableCash)
	}

	chain, err := e.market.Chain(ctx, opp.Symbol)
	if err != nil {
		return 0, fmt.Errorf("chain unavailable: %w", err)
	}
	plan, err := BuildLegs(chain, opp, e.cfg.MinDTE, e.cfg.MaxDTE, e.now())
	if err != nil {
		return 0, err
	}
	count := contractCount(budget, plan.UnitCost)
	if count < 1 {
		return 0, fmt.Errorf("unit cost %.2f exceeds budget %.2f for %s",
			plan.UnitCost, budget, opp.Symbol)
	}

	legs := make([]types.ContractLeg, len(plan.Legs))
	copy(legs, plan.Legs)
	for i := range legs {
		legs[i].Quantity *= count
	}
	cost := plan.UnitCost * float64(count)

	pos := &types.Position{
		Symbol:       opp.Symbol,
		Strategy:     opp.Strategy,
		Status:       types.StatusOpen,
		Legs:         legs,
		EntryCost:    cost,
		CurrentValue: cost,
		ProfitTarget: opp.TargetReturn * 100,
		MaxLoss:      cost * e.cfg.DefaultStopLossPct / 100,
		EntryTime:    e.now(),
		Delta:        plan.Delta * float64(count),
		Theta:        plan.Theta * float64(count),
		Vega:         plan.Vega * float64(count),
	}
	if pos.ProfitTarget <= 0 {
		pos.ProfitTarget = 25
	}

	if err := e.store.AdjustCash(ctx, -cost); err != nil {
		return 0, fmt.Errorf("insufficient cash for %s: %w", opp.Symbol, err)
	}
	if err := e.store.Create(ctx, pos); err != nil {
		if rerr := e.store.AdjustCash(ctx, cost); rerr != nil {
			logger.ErrorWithErr(ctx, "Failed to release cash after aborted open", rerr,
				"symbol", opp.Symbol, "cost", cost)
		}
		return 0, fmt.Errorf("persist failed: %w", err)
	}

	logger.Trade(ctx, pos.Symbol, string(pos.Strategy), cost, pos.ID,
		"contracts", count, "confidence", opp.Confidence)
	if err := tradelog.Append(tradelog.TradeEntry{
		Event:      "OPEN",
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Cost:       cost,
		Confidence: opp.Confidence,
	}); err != nil {
		logger.Warn(ctx, "Failed to record trade", "error", err.Error())
	}
	return cost, nil
}

func (e *Engine) snapshot(ctx context.Context) (types.PortfolioSummary, []string, error) {
	cash, err := e.store.CashBalance(ctx)
	if err != nil {
		return types.PortfolioSummary{}, nil, fmt.Errorf("load cash: %w", err)
	}
	open, err := e.store.List(ctx, types.StatusOpen)
	if err != nil {
		return types.PortfolioSummary{}, nil, fmt.Errorf("load open positions: %w", err)
	}
	ledger, err := e.store.Ledger(ctx)
	if err != nil {
		return types.PortfolioSummary{}, nil, fmt.Errorf("load ledger: %w", err)
	}
	held, err := e.store.HeldSymbols(ctx)
	if err != nil {
		return types.PortfolioSummary{}, nil, fmt.Errorf("load held symbols: %w", err)
	}

	total := cash
	pnl := 0.0
	for _, p := range open {
		total += p.CurrentValue
		pnl += p.UnrealizedPnL
	}
	for _, p := range ledger {
		pnl += p.RealizedPnL
	}
	return types.PortfolioSummary{
		TotalValue:    total,
		CashBalance:   cash,
		TotalPnL:      pnl,
		OpenPositions: len(open),
		History:       perf.Compute(ledger, e.now()),
	}, held, nil
}

func (e *Engine) countOpenedToday(ctx context.Context) (int, error) {
	y, m, d := e.now().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, e.now().Location())

	count := 0
	open, err := e.store.List(ctx, types.StatusOpen)
	if err != nil {
		return 0, err
	}
	for _, p := range open {
		if !p.EntryTime.Before(midnight) {
			count++
		}
	}
	ledger, err := e.store.Ledger(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range ledger {
		if !p.EntryTime.Before(midnight) {
			count++
		}
	}
	return count, nil
}

// degradeOrFail sorts an advisory round failure: auth and config problems
// propagate, everything else completes the cycle in degraded mode.
func (e *Engine) degradeOrFail(ctx context.Context, outcome *types.CycleOutcome, timer *logger.OperationTimer, round string, err error) (*types.CycleOutcome, error) {
	class := advisor.ClassOf(err)
	if class == advisor.FailAuth {
		timer.EndWithError(err)
		return outcome, fmt.Errorf("%s round: %w", round, err)
	}
	outcome.Degraded = string(class)
	outcome.Note = fmt.Sprintf("%s round failed: %v", round, err)
	logger.ErrorWithErr(ctx, "Advisory round failed, completing cycle degraded", err,
		"round", round, "class", string(class))
	timer.End("result", "degraded", "class", string(class))
	return outcome, nil
}
