// Package monitor re-values open positions and applies exit triggers. Exits
// are evaluated in a fixed priority order, so a position that is both past
// its profit target and near expiry always books as a profit target close.
package monitor

import (
	"context"
	"fmt"
	"time"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/tradelog"
	"options-trading-bot/internal/types"
)

var _ interfaces.Monitor = (*Monitor)(nil)

type Config struct {
	ExpiryCloseDTE int
	MaxHoldingDays int
}

type Monitor struct {
	store   interfaces.PositionStore
	market  interfaces.MarketData
	advisor interfaces.Advisor
	cfg     Config
	now     func() time.Time
}

func New(store interfaces.PositionStore, market interfaces.MarketData, adv interfaces.Advisor, cfg Config) *Monitor {
	if cfg.ExpiryCloseDTE <= 0 {
		cfg.ExpiryCloseDTE = 7
	}
	if cfg.MaxHoldingDays <= 0 {
		cfg.MaxHoldingDays = 30
	}
	return &Monitor{store: store, market: market, advisor: adv, cfg: cfg, now: time.Now}
}

// Tick runs one monitoring pass over every open position. Per-position
// failures are logged and skipped; the pass always visits every position.
func (m *Monitor) Tick(ctx context.Context) error {
	ctx, span := logger.StartSpan(ctx, "monitor-tick")
	defer span.End()

	open, err := m.store.List(ctx, types.StatusOpen)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}
	logger.Debug(ctx, "Monitoring pass", "open_positions", len(open))

	for _, pos := range open {
		if err := m.check(ctx, pos); err != nil {
			logger.ErrorWithErr(ctx, "Position check failed", err,
				"position_id", pos.ID, "symbol", pos.Symbol)
		}
	}
	return nil
}

func (m *Monitor) check(ctx context.Context, pos *types.Position) error {
	now := m.now()

	// Re-value from the chain. When the chain is unavailable the last known
	// value stands; a pricing outage must never trigger a stop.
	if value, ok := m.revalue(ctx, pos); ok {
		pos.CurrentValue = value
		pos.UnrealizedPnL = value - pos.EntryCost
		if err := m.store.UpdateValue(ctx, pos.ID, pos.CurrentValue, pos.UnrealizedPnL); err != nil {
			return fmt.Errorf("update value: %w", err)
		}
	}

	if reason, hit := m.exitTrigger(pos, now); hit {
		return m.close(ctx, pos, reason)
	}

	// No mechanical trigger: ask the advisory service when the position is
	// due and budget remains.
	if m.advisor != nil && pos.NeedsAdvisorCheck(now) && m.advisor.RemainingBudget() > 0 {
		return m.advisorCheck(ctx, pos)
	}
	return nil
}

// exitTrigger evaluates the mechanical exits in priority order.
func (m *Monitor) exitTrigger(pos *types.Position, now time.Time) (types.CloseReason, bool) {
	if pos.ProfitTarget > 0 && pos.PnLPercent() >= pos.ProfitTarget {
		return types.CloseProfitTarget, true
	}
	if pos.MaxLoss > 0 && pos.TotalPnL() <= -pos.MaxLoss {
		return types.CloseStopLoss, true
	}
	if len(pos.Legs) > 0 && pos.MinDaysToExpiry(now) <= m.cfg.ExpiryCloseDTE {
		return types.CloseExpiryWindow, true
	}
	if pos.DaysHeld(now) > m.cfg.MaxHoldingDays {
		return types.CloseMaxHolding, true
	}
	return "", false
}

func (m *Monitor) advisorCheck(ctx context.Context, pos *types.Position) error {
	quote, err := m.market.Quote(ctx, pos.Symbol)
	if err != nil {
		logger.Debug(ctx, "Skipping advisor check without a quote",
			"position_id", pos.ID, "error", err.Error())
		return nil
	}
	review, err := m.advisor.ReviewPosition(ctx, pos, quote)
	if err != nil {
		// Budget or transport trouble; the mechanical triggers still stand.
		logger.Warn(ctx, "Position review unavailable",
			"position_id", pos.ID, "error", err.Error())
		return nil
	}
	if err := m.store.MarkAdvisorCheck(ctx, pos.ID); err != nil {
		return fmt.Errorf("mark advisor check: %w", err)
	}

	if review.Action == types.ActionClose {
		logger.Decision(ctx, pos.Symbol, "advisor_close", review.Confidence, review.Reasoning,
			"position_id", pos.ID)
		return m.close(ctx, pos, types.CloseAdvisor)
	}
	logger.Debug(ctx, "Advisor verdict", "position_id", pos.ID,
		"action", string(review.Action), "confidence", review.Confidence)
	return nil
}

// close books the exit. The store's compare-and-transition makes a double
// close a no-op, so proceeds and the ledger entry are booked exactly once.
func (m *Monitor) close(ctx context.Context, pos *types.Position, reason types.CloseReason) error {
	closed, err := m.store.Close(ctx, pos.ID, reason)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if !closed {
		return nil
	}
	if pos.CurrentValue > 0 {
		if err := m.store.AdjustCash(ctx, pos.CurrentValue); err != nil {
			logger.ErrorWithErr(ctx, "Failed to credit close proceeds", err,
				"position_id", pos.ID, "proceeds", pos.CurrentValue)
		}
	}

	pnl := pos.CurrentValue - pos.EntryCost
	logger.Trade(ctx, pos.Symbol, string(pos.Strategy), pos.CurrentValue, pos.ID,
		"event", "close", "reason", string(reason), "pnl", pnl)
	if err := tradelog.Append(tradelog.TradeEntry{
		Event:      "CLOSE",
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Cost:       pos.EntryCost,
		PnL:        pnl,
		Reason:     string(reason),
	}); err != nil {
		logger.Warn(ctx, "Failed to record close", "error", err.Error())
	}
	return nil
}

// revalue prices the position off the current chain as entry cost plus the
// mark change since entry. The mark-change form prices credit structures
// correctly too, where entry cost is collateral rather than premium paid.
// Legs without a matching contract keep their entry price; a chain miss
// returns ok=false and the position keeps its previous value.
func (m *Monitor) revalue(ctx context.Context, pos *types.Position) (float64, bool) {
	if len(pos.Legs) == 0 {
		return 0, false
	}
	chain, err := m.market.Chain(ctx, pos.Symbol)
	if err != nil {
		logger.Debug(ctx, "Chain unavailable, retaining last value",
			"position_id", pos.ID, "symbol", pos.Symbol, "error", err.Error())
		return 0, false
	}

	markChange := 0.0
	for _, l := range pos.Legs {
		price := l.EntryPrice
		if q := findContract(chain, l); q != nil {
			price = q.Mid()
		}
		markChange += (price - l.EntryPrice) * float64(l.Quantity) * 100
	}
	value := pos.EntryCost + markChange
	if value < 0 {
		value = 0
	}
	return value, true
}

func findContract(chain *types.OptionChain, l types.ContractLeg) *types.ChainLeg {
	for i := range chain.Legs {
		c := &chain.Legs[i]
		if c.OptionType == l.OptionType && c.Strike == l.Strike && c.Expiry.Equal(l.Expiry) {
			return c
		}
	}
	return nil
}
