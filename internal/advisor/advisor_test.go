package advisor

import (
	"context"
	"testing"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/types"
)

// scriptedCompleter replays canned responses in order.
type scriptedCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", newSchemaError("script exhausted", nil)
}

func testConfig() Config {
	return Config{
		DailyQueryBudget: 10,
		MaxCandidates:    5,
		FallbackUniverse: []string{"AAPL", "MSFT", "GOOGL", "SPY", "QQQ"},
		FallbackCashPct:  75,
		Retry:            fastPolicy(),
	}
}

func TestProposeParsesValidResponse(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"symbol": "NVDA", "strategy_type": "long_call", "confidence": 0.82,
		  "target_return": 0.4, "max_risk": 1200, "time_horizon": 30, "rationale": "ai capex"}]`,
	}}
	c := New(completer, testConfig())

	opps, err := c.ProposeCandidates(context.Background(), interfaces.ProposalRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(opps) != 1 || opps[0].Symbol != "NVDA" {
		t.Errorf("Unexpected proposals: %+v", opps)
	}
	if c.RemainingBudget() != 9 {
		t.Errorf("Expected one query spent, remaining %d", c.RemainingBudget())
	}
}

func TestProposeDropsHeldSymbols(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"symbol": "AAPL", "strategy_type": "long_call", "confidence": 0.8, "max_risk": 500},
		  {"symbol": "MSFT", "strategy_type": "long_call", "confidence": 0.8, "max_risk": 500}]`,
	}}
	c := New(completer, testConfig())

	opps, err := c.ProposeCandidates(context.Background(), interfaces.ProposalRequest{
		HeldSymbols: []string{"AAPL"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(opps) != 1 || opps[0].Symbol != "MSFT" {
		t.Errorf("Expected the held symbol to be dropped, got %+v", opps)
	}
}

func TestProposeFallsBackOnGarbage(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"I would rather not say."}}
	c := New(completer, testConfig())

	opps, err := c.ProposeCandidates(context.Background(), interfaces.ProposalRequest{
		HeldSymbols: []string{"AAPL"},
	})
	if err != nil {
		t.Fatalf("Schema failure must degrade, not fail: %v", err)
	}
	if len(opps) == 0 {
		t.Fatal("Expected rule-based fallback candidates")
	}
	for _, o := range opps {
		if o.Symbol == "AAPL" {
			t.Errorf("Fallback proposed a held symbol")
		}
		if !o.Strategy.Valid() {
			t.Errorf("Fallback produced invalid strategy %s", o.Strategy)
		}
	}
}

func TestConfirmDoubleSchemaFailureDegrades(t *testing.T) {
	// Unparsable confirmation: the round keeps the candidates and parks cash.
	completer := &scriptedCompleter{responses: []string{"{broken json"}}
	c := New(completer, testConfig())

	candidates := []types.Opportunity{
		{Symbol: "SPY", Strategy: types.StrategyCallSpread, Confidence: 0.74, MaxRisk: 600},
	}
	conf, err := c.ConfirmCandidates(context.Background(), interfaces.ConfirmRequest{
		Candidates: candidates,
	})
	if err != nil {
		t.Fatalf("Confirmation must degrade, not fail: %v", err)
	}
	if !conf.FromFallback {
		t.Error("Expected the confirmation to be marked as fallback")
	}
	if conf.Cash.Action != "hold_cash" || conf.Cash.Percentage != 75 {
		t.Errorf("Expected defensive hold_cash at 75%%, got %+v", conf.Cash)
	}
	if len(conf.Opportunities) != 1 || conf.Opportunities[0].Symbol != "SPY" {
		t.Errorf("Expected round-1 candidates to survive, got %+v", conf.Opportunities)
	}
}

func TestConfirmValidResponse(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{
		"market_assessment": {"overall_sentiment": "bullish", "recommended_exposure": "full"},
		"cash_strategy": {"action": "deploy", "percentage": 20, "reasoning": "strong tape"},
		"opportunities": [{"symbol": "QQQ", "strategy_type": "long_call",
			"confidence": 0.81, "max_risk": 900, "time_horizon": 30, "rationale": "breadth"}]
	}`}}
	c := New(completer, testConfig())

	conf, err := c.ConfirmCandidates(context.Background(), interfaces.ConfirmRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if conf.FromFallback {
		t.Error("Valid confirmation must not be marked fallback")
	}
	if conf.Assessment.OverallSentiment != "bullish" {
		t.Errorf("Unexpected assessment: %+v", conf.Assessment)
	}
}

func TestBudgetExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.DailyQueryBudget = 1
	completer := &scriptedCompleter{responses: []string{
		`[{"symbol": "NVDA", "strategy_type": "long_call", "confidence": 0.82, "max_risk": 1200}]`,
	}}
	c := New(completer, cfg)

	if _, err := c.ProposeCandidates(context.Background(), interfaces.ProposalRequest{}); err != nil {
		t.Fatal(err)
	}
	if c.RemainingBudget() != 0 {
		t.Fatalf("Expected budget exhausted, remaining %d", c.RemainingBudget())
	}
	_, err := c.ProposeCandidates(context.Background(), interfaces.ProposalRequest{})
	if err == nil {
		t.Fatal("Expected a budget error")
	}
	if ClassOf(err) != FailBudget {
		t.Errorf("Expected budget class, got %s", ClassOf(err))
	}
	if completer.calls != 1 {
		t.Errorf("Budget rejection must not reach the service, got %d calls", completer.calls)
	}
}

func TestReviewDegradesToHold(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"nonsense"}}
	c := New(completer, testConfig())

	pos := &types.Position{ID: "p1", Symbol: "AAPL", EntryCost: 500}
	r, err := c.ReviewPosition(context.Background(), pos, &types.Quote{Symbol: "AAPL", Price: 180})
	if err != nil {
		t.Fatalf("Review must degrade, not fail: %v", err)
	}
	if r.Action != types.ActionHold {
		t.Errorf("Expected hold, got %s", r.Action)
	}
}
