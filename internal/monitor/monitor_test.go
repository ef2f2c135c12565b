package monitor

import (
	"context"
	"testing"
	"time"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/store"
	"options-trading-bot/internal/types"
)

type fakeMarket struct {
	chains map[string]*types.OptionChain
	quotes map[string]*types.Quote
}

func (f *fakeMarket) Quote(ctx context.Context, symbol string) (*types.Quote, error) {
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return &types.Quote{Symbol: symbol, Price: 100, Timestamp: time.Now()}, nil
}

func (f *fakeMarket) Chain(ctx context.Context, symbol string) (*types.OptionChain, error) {
	if c, ok := f.chains[symbol]; ok {
		return c, nil
	}
	return nil, context.DeadlineExceeded
}

func (f *fakeMarket) Refresh(ctx context.Context, symbols []string) {}

// fakeReviewer only cares about reviews; the session rounds are unused by
// the monitor.
type fakeReviewer struct {
	action  types.AdvisorAction
	budget  int
	reviews int
}

func (f *fakeReviewer) ProposeCandidates(ctx context.Context, req interfaces.ProposalRequest) ([]types.Opportunity, error) {
	return nil, nil
}

func (f *fakeReviewer) ConfirmCandidates(ctx context.Context, req interfaces.ConfirmRequest) (*interfaces.Confirmation, error) {
	return nil, nil
}

func (f *fakeReviewer) ReviewPosition(ctx context.Context, pos *types.Position, q *types.Quote) (*types.PositionReview, error) {
	f.reviews++
	return &types.PositionReview{Action: f.action, Confidence: 0.8, Reasoning: "test"}, nil
}

func (f *fakeReviewer) RemainingBudget() int { return f.budget }

func chainFor(symbol string, leg types.ContractLeg, mid float64) *types.OptionChain {
	return &types.OptionChain{
		Symbol:          symbol,
		UnderlyingPrice: 100,
		Legs: []types.ChainLeg{{
			OptionType: leg.OptionType,
			Strike:     leg.Strike,
			Expiry:     leg.Expiry,
			Bid:        mid,
			Ask:        mid,
			Last:       mid,
		}},
	}
}

func openPosition(t *testing.T, s *store.MemoryStore, symbol string, entryPrice float64, dte int) *types.Position {
	t.Helper()
	pos := &types.Position{
		Symbol:   symbol,
		Strategy: types.StrategyLongCall,
		Legs: []types.ContractLeg{{
			OptionType: types.OptionCall,
			Strike:     100,
			Expiry:     time.Now().AddDate(0, 0, dte),
			Quantity:   1,
			EntryPrice: entryPrice,
			LastPrice:  entryPrice,
		}},
		EntryCost:    entryPrice * 100,
		CurrentValue: entryPrice * 100,
		ProfitTarget: 30,
		MaxLoss:      entryPrice * 100 * 0.5,
	}
	if err := s.Create(context.Background(), pos); err != nil {
		t.Fatal(err)
	}
	return pos
}

func TestTickProfitTargetClose(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "AAPL", 5.0, 30)

	// Mid moves from 5.00 to 7.00: +40%, past the 30% target.
	market := &fakeMarket{chains: map[string]*types.OptionChain{
		"AAPL": chainFor("AAPL", pos.Legs[0], 7.0),
	}}
	m := New(s, market, nil, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.Status != types.StatusClosed || got.CloseReason != types.CloseProfitTarget {
		t.Fatalf("Expected profit target close, got %s/%s", got.Status, got.CloseReason)
	}
	if got.RealizedPnL != 200 {
		t.Errorf("Expected realized P&L 200, got %.2f", got.RealizedPnL)
	}

	// Proceeds credited: 10000 + 700.
	cash, _ := s.CashBalance(ctx)
	if cash != 10700 {
		t.Errorf("Expected proceeds credited once, balance %.2f", cash)
	}
}

func TestTickProfitTargetBeatsExpiryWindow(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	// 5 DTE and past the profit target at once.
	pos := openPosition(t, s, "AAPL", 5.0, 5)
	market := &fakeMarket{chains: map[string]*types.OptionChain{
		"AAPL": chainFor("AAPL", pos.Legs[0], 7.0),
	}}
	m := New(s, market, nil, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.CloseReason != types.CloseProfitTarget {
		t.Errorf("Profit target must outrank the expiry window, got %s", got.CloseReason)
	}
}

func TestTickStopLossClose(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "NVDA", 5.0, 30)

	// Mid collapses to 2.00: -60%, past the 50% stop.
	market := &fakeMarket{chains: map[string]*types.OptionChain{
		"NVDA": chainFor("NVDA", pos.Legs[0], 2.0),
	}}
	m := New(s, market, nil, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.CloseReason != types.CloseStopLoss {
		t.Errorf("Expected stop loss close, got %s", got.CloseReason)
	}
}

func TestTickExpiryWindowClose(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "SPY", 5.0, 5)
	// Flat price, only the expiry trigger applies.
	market := &fakeMarket{chains: map[string]*types.OptionChain{
		"SPY": chainFor("SPY", pos.Legs[0], 5.0),
	}}
	m := New(s, market, nil, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.CloseReason != types.CloseExpiryWindow {
		t.Errorf("Expected expiry window close, got %s", got.CloseReason)
	}
}

func TestTickChainOutageNeverTriggersStop(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "META", 5.0, 30)

	// No chain at all: value retained, nothing closes.
	m := New(s, &fakeMarket{}, nil, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})
	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.Status != types.StatusOpen {
		t.Fatalf("Pricing outage must not close positions, got %s/%s", got.Status, got.CloseReason)
	}
	if got.CurrentValue != 500 {
		t.Errorf("Expected retained value 500, got %.2f", got.CurrentValue)
	}
}

func TestDoubleCloseBooksOnce(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "AAPL", 5.0, 30)
	m := New(s, &fakeMarket{}, nil, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})

	if err := m.close(ctx, pos, types.CloseManual); err != nil {
		t.Fatal(err)
	}
	if err := m.close(ctx, pos, types.CloseStopLoss); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, pos.ID)
	if got.CloseReason != types.CloseManual {
		t.Errorf("Second close must not overwrite the reason, got %s", got.CloseReason)
	}
	cash, _ := s.CashBalance(ctx)
	if cash != 10500 {
		t.Errorf("Proceeds must be credited exactly once, balance %.2f", cash)
	}
}

func TestTickMaxHoldingClose(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "QQQ", 5.0, 45)
	m := New(s, &fakeMarket{chains: map[string]*types.OptionChain{
		"QQQ": chainFor("QQQ", pos.Legs[0], 5.0),
	}}, nil, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})
	m.now = func() time.Time { return time.Now().AddDate(0, 0, 31) }

	// 31 days held, 14 DTE left from the shifted clock: only max holding
	// applies.
	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.CloseReason != types.CloseMaxHolding {
		t.Errorf("Expected max holding close, got %s", got.CloseReason)
	}
}

func TestTickAdvisorCloseAndBudgetGate(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "AAPL", 5.0, 30)
	market := &fakeMarket{chains: map[string]*types.OptionChain{
		"AAPL": chainFor("AAPL", pos.Legs[0], 5.0),
	}}

	// No budget: the review never runs.
	reviewer := &fakeReviewer{action: types.ActionClose, budget: 0}
	m := New(s, market, reviewer, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})
	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if reviewer.reviews != 0 {
		t.Error("Review must not run with no budget left")
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.Status != types.StatusOpen {
		t.Fatal("Position must stay open without a review")
	}

	// Budget restored: the close verdict is applied and the check recorded.
	reviewer.budget = 5
	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if reviewer.reviews != 1 {
		t.Errorf("Expected one review, got %d", reviewer.reviews)
	}
	got, _ = s.Get(ctx, pos.ID)
	if got.Status != types.StatusClosed || got.CloseReason != types.CloseAdvisor {
		t.Errorf("Expected advisor close, got %s/%s", got.Status, got.CloseReason)
	}
	if got.LastAdvisorCheck == nil {
		t.Error("Expected the advisor check to be recorded")
	}
}

func TestTickAdvisorHoldKeepsPosition(t *testing.T) {
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	ctx := context.Background()
	s := store.NewMemoryStore(10000)
	pos := openPosition(t, s, "MSFT", 5.0, 30)
	market := &fakeMarket{chains: map[string]*types.OptionChain{
		"MSFT": chainFor("MSFT", pos.Legs[0], 5.2),
	}}
	reviewer := &fakeReviewer{action: types.ActionHold, budget: 5}
	m := New(s, market, reviewer, Config{ExpiryCloseDTE: 7, MaxHoldingDays: 30})

	if err := m.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, pos.ID)
	if got.Status != types.StatusOpen {
		t.Errorf("Hold verdict must keep the position open, got %s", got.Status)
	}
	if got.UnrealizedPnL != 20 {
		t.Errorf("Expected re-valued P&L 20, got %.2f", got.UnrealizedPnL)
	}
}
