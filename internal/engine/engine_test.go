package engine

import (
	"context"
	"testing"
	"time"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/marketdata"
	"options-trading-bot/internal/store"
	"options-trading-bot/internal/types"
)

// fakeAdvisor returns scripted proposals and confirmations.
type fakeAdvisor struct {
	budget        int
	proposals     []types.Opportunity
	proposalErr   error
	confirmation  *interfaces.Confirmation
	confirmErr    error
	proposeCalls  int
	confirmCalls  int
}

func (f *fakeAdvisor) ProposeCandidates(ctx context.Context, req interfaces.ProposalRequest) ([]types.Opportunity, error) {
	f.proposeCalls++
	if f.proposalErr != nil {
		return nil, f.proposalErr
	}
	return f.proposals, nil
}

func (f *fakeAdvisor) ConfirmCandidates(ctx context.Context, req interfaces.ConfirmRequest) (*interfaces.Confirmation, error) {
	f.confirmCalls++
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if f.confirmation != nil {
		return f.confirmation, nil
	}
	return &interfaces.Confirmation{
		Cash:          types.CashStrategy{Action: "deploy", Percentage: 0},
		Opportunities: req.Candidates,
	}, nil
}

func (f *fakeAdvisor) ReviewPosition(ctx context.Context, pos *types.Position, quote *types.Quote) (*types.PositionReview, error) {
	return &types.PositionReview{Action: types.ActionHold}, nil
}

func (f *fakeAdvisor) RemainingBudget() int { return f.budget }

func testEngineConfig() Config {
	return Config{
		MaxPositions:       6,
		MaxDailyPositions:  3,
		MinCashReserve:     10000,
		MinDTE:             7,
		MaxDTE:             60,
		DefaultStopLossPct: 50,
		Sizing: SizingConfig{
			BaseSizePct:    2.0,
			MaxSizePct:     10.0,
			MinPositionUSD: 500,
		},
		Universe: []string{"AAPL", "MSFT", "NVDA"},
	}
}

func testMarket() interfaces.MarketData {
	return marketdata.NewAggregator(marketdata.NewStaticProvider(), marketdata.AggregatorConfig{
		CacheTTL: time.Minute,
	})
}

func opp(symbol string, strategy types.StrategyType, confidence float64) types.Opportunity {
	return types.Opportunity{
		Symbol:       symbol,
		Strategy:     strategy,
		Confidence:   confidence,
		TargetReturn: 0.30,
		MaxRisk:      2000,
		TimeHorizon:  30,
	}
}

func TestRunSessionExecutesConfirmedTrades(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	st := store.NewMemoryStore(50000)
	adv := &fakeAdvisor{
		budget:    10,
		proposals: []types.Opportunity{opp("AAPL", types.StrategyLongCall, 0.85)},
	}
	e := New(st, testMarket(), adv, nil, testEngineConfig())

	outcome, err := e.RunSession(ctx, "morning")
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}
	if outcome.Proposed != 1 || outcome.Accepted != 1 || outcome.Executed != 1 {
		t.Fatalf("Unexpected outcome counts: %+v", outcome)
	}

	open, _ := st.List(ctx, types.StatusOpen)
	if len(open) != 1 {
		t.Fatalf("Expected one open position, got %d", len(open))
	}
	pos := open[0]
	if pos.Symbol != "AAPL" || pos.Strategy != types.StrategyLongCall {
		t.Errorf("Unexpected position: %+v", pos)
	}
	if len(pos.Legs) != 1 || pos.Legs[0].Quantity < 1 {
		t.Errorf("Unexpected legs: %+v", pos.Legs)
	}
	if pos.EntryCost <= 0 || pos.MaxLoss != pos.EntryCost*0.5 {
		t.Errorf("Unexpected cost/max loss: %.2f / %.2f", pos.EntryCost, pos.MaxLoss)
	}

	cash, _ := st.CashBalance(ctx)
	if cash != 50000-pos.EntryCost {
		t.Errorf("Cash not deducted: %.2f after cost %.2f", cash, pos.EntryCost)
	}
}

func TestRunSessionSkipsOnLowBudget(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	st := store.NewMemoryStore(50000)
	adv := &fakeAdvisor{budget: 1}
	e := New(st, testMarket(), adv, nil, testEngineConfig())

	outcome, err := e.RunSession(context.Background(), "morning")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Degraded != "budget_exhausted" {
		t.Errorf("Expected budget degradation, got %q", outcome.Degraded)
	}
	if adv.proposeCalls != 0 {
		t.Error("A skipped session must not spend advisory queries")
	}
}

func TestRunSessionDailyCap(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	st := store.NewMemoryStore(200000)
	cfg := testEngineConfig()
	cfg.MaxDailyPositions = 2
	adv := &fakeAdvisor{
		budget: 10,
		proposals: []types.Opportunity{
			opp("AAPL", types.StrategyLongCall, 0.9),
			opp("MSFT", types.StrategyLongCall, 0.9),
			opp("NVDA", types.StrategyLongCall, 0.9),
		},
	}
	e := New(st, testMarket(), adv, nil, cfg)

	outcome, err := e.RunSession(ctx, "morning")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Executed != 2 {
		t.Errorf("Expected the daily cap to stop at 2, executed %d", outcome.Executed)
	}

	// Second session the same day opens nothing more.
	outcome, err = e.RunSession(ctx, "evening")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Executed != 0 {
		t.Errorf("Expected no executions after the cap, got %d", outcome.Executed)
	}
}

func TestRunSessionRespectsCashReserve(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	st := store.NewMemoryStore(9500) // below the 10k reserve
	adv := &fakeAdvisor{
		budget:    10,
		proposals: []types.Opportunity{opp("AAPL", types.StrategyLongCall, 0.95)},
	}
	e := New(st, testMarket(), adv, nil, testEngineConfig())

	outcome, err := e.RunSession(context.Background(), "morning")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Accepted != 0 || outcome.Executed != 0 {
		t.Errorf("Reserve breach must reject everything: %+v", outcome)
	}
}

func TestRunSessionHoldCashExecutesNothing(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	st := store.NewMemoryStore(50000)
	adv := &fakeAdvisor{
		budget:    10,
		proposals: []types.Opportunity{opp("AAPL", types.StrategyLongCall, 0.9)},
		confirmation: &interfaces.Confirmation{
			Cash:          types.CashStrategy{Action: "hold_cash", Percentage: 100},
			Opportunities: []types.Opportunity{opp("AAPL", types.StrategyLongCall, 0.9)},
		},
	}
	e := New(st, testMarket(), adv, nil, testEngineConfig())

	outcome, err := e.RunSession(context.Background(), "morning")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Executed != 0 {
		t.Errorf("hold_cash at 100%% must execute nothing, got %d", outcome.Executed)
	}
}

func TestRunSessionConfidenceBelowThresholdRejected(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	st := store.NewMemoryStore(50000)
	adv := &fakeAdvisor{
		budget:    10,
		proposals: []types.Opportunity{opp("AAPL", types.StrategyLongCall, 0.70)}, // below 0.75
	}
	e := New(st, testMarket(), adv, nil, testEngineConfig())

	outcome, err := e.RunSession(context.Background(), "morning")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Accepted != 0 {
		t.Errorf("Expected rejection below threshold, accepted %d", outcome.Accepted)
	}
}

func TestRunSessionPositionLimit(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	st := store.NewMemoryStore(50000)
	cfg := testEngineConfig()
	cfg.MaxPositions = 1
	for _, s := range []string{"SPY"} {
		if err := st.Create(ctx, &types.Position{Symbol: s, Strategy: types.StrategyLongCall, EntryCost: 100}); err != nil {
			t.Fatal(err)
		}
	}
	adv := &fakeAdvisor{budget: 10, proposals: []types.Opportunity{opp("AAPL", types.StrategyLongCall, 0.9)}}
	e := New(st, testMarket(), adv, nil, cfg)

	outcome, err := e.RunSession(ctx, "morning")
	if err != nil {
		t.Fatal(err)
	}
	if adv.proposeCalls != 0 {
		t.Error("A session at the position limit must not spend advisory queries")
	}
	if outcome.Executed != 0 {
		t.Errorf("Expected no executions at the limit, got %d", outcome.Executed)
	}
}
