// Package advisor talks to the external reasoning service that proposes and
// confirms trades. The protocol is two advisory rounds per decision session:
// an autonomous proposal round, then a confirmation round over live data the
// engine fetched for the proposed names only. Every failure degrades along a
// defined path; a session never dies inside this package.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/perf"
	"options-trading-bot/internal/types"
)

var _ interfaces.Advisor = (*Client)(nil)

// Completer is the transport under the advisor: one prompt in, one text
// response out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	DailyQueryBudget int
	MaxCandidates    int
	FallbackUniverse []string
	FallbackCashPct  float64
	Retry            RetryPolicy
}

type Client struct {
	completer Completer
	cfg       Config

	mu         sync.Mutex
	usedToday  int
	budgetDate string
}

func New(completer Completer, cfg Config) *Client {
	if cfg.DailyQueryBudget <= 0 {
		cfg.DailyQueryBudget = 10
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}
	if cfg.FallbackCashPct <= 0 {
		cfg.FallbackCashPct = 75
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = defaultRetryPolicy()
	}
	return &Client{completer: completer, cfg: cfg}
}

// RemainingBudget reports queries left today. The window rolls at local
// midnight.
func (c *Client) RemainingBudget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollBudgetLocked()
	return c.cfg.DailyQueryBudget - c.usedToday
}

func (c *Client) spendQuery() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollBudgetLocked()
	if c.usedToday >= c.cfg.DailyQueryBudget {
		return newBudgetError()
	}
	c.usedToday++
	return nil
}

func (c *Client) rollBudgetLocked() {
	today := time.Now().Format("2006-01-02")
	if c.budgetDate != today {
		c.budgetDate = today
		c.usedToday = 0
	}
}

const proposalSystem = `You are a disciplined options strategist managing a small US equity options book.
Respond ONLY with a JSON array of opportunity objects, no prose. Each object:
{"symbol": string, "strategy_type": string, "confidence": number 0-1,
 "target_return": number, "max_risk": number USD, "time_horizon": days,
 "rationale": string}.
strategy_type is one of: long_call, long_put, call_spread, put_spread,
straddle, strangle, iron_condor, covered_call, protective_put.
Never propose a symbol already held.`

// ProposeCandidates runs the autonomous proposal round. A schema violation
// falls back to rule-based candidates; transport failure classes propagate
// after the retry policy is exhausted.
func (c *Client) ProposeCandidates(ctx context.Context, req interfaces.ProposalRequest) ([]types.Opportunity, error) {
	if err := c.spendQuery(); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"portfolio":      req.Portfolio,
		"market_summary": req.MarketSummary,
		"held_symbols":   req.HeldSymbols,
		"news_sentiment": req.Sentiment,
	})
	user := fmt.Sprintf("Current state:\n%s\n\nPropose up to %d opportunities as a JSON array.",
		string(payload), c.cfg.MaxCandidates)

	text, err := withRetry(ctx, c.cfg.Retry, "propose", func() (string, error) {
		return c.completer.Complete(ctx, proposalSystem, user)
	})
	if err != nil {
		if ClassOf(err) == FailSchema {
			return c.fallbackProposal(ctx, req), nil
		}
		return nil, err
	}

	opps, err := parseCandidates(text, c.cfg.MaxCandidates)
	if err != nil {
		logger.Warn(ctx, "Proposal response failed validation, using rule-based candidates",
			"error", err.Error())
		return c.fallbackProposal(ctx, req), nil
	}

	// The service was told not to repropose held names; drop any it sent
	// anyway.
	held := make(map[string]bool, len(req.HeldSymbols))
	for _, s := range req.HeldSymbols {
		held[s] = true
	}
	kept := opps[:0]
	for _, o := range opps {
		if !held[o.Symbol] {
			kept = append(kept, o)
		}
	}
	return kept, nil
}

func (c *Client) fallbackProposal(ctx context.Context, req interfaces.ProposalRequest) []types.Opportunity {
	risk := perf.RiskLevel(req.Portfolio.History)
	opps := FallbackCandidates(c.cfg.FallbackUniverse, req.HeldSymbols, risk, time.Now(), 3)
	logger.Info(ctx, "Generated rule-based fallback candidates",
		"count", len(opps), "risk_level", string(risk))
	return opps
}

const confirmSystem = `You are a disciplined options strategist giving final confirmation on proposed trades.
You are shown live quotes for the proposed symbols. Drop or adjust anything the live data no longer supports.
Respond ONLY with a JSON object, no prose:
{"market_assessment": {"overall_sentiment": string, "recommended_exposure": string},
 "cash_strategy": {"action": "deploy"|"hold_cash"|"partial", "percentage": number 0-100, "reasoning": string},
 "opportunities": [ ... same schema as before, optionally with "strike_price" ... ]}`

// ConfirmCandidates runs the confirmation round. When the service cannot
// produce a valid confirmation, the round degrades to the unconfirmed
// candidates under a defensive hold-cash strategy rather than failing the
// session.
func (c *Client) ConfirmCandidates(ctx context.Context, req interfaces.ConfirmRequest) (*interfaces.Confirmation, error) {
	if err := c.spendQuery(); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"candidates":  req.Candidates,
		"live_quotes": req.Quotes,
		"portfolio":   req.Portfolio,
	})
	user := fmt.Sprintf("Candidates and live data:\n%s\n\nConfirm, trim or adjust. JSON object only.",
		string(payload))

	text, err := withRetry(ctx, c.cfg.Retry, "confirm", func() (string, error) {
		return c.completer.Complete(ctx, confirmSystem, user)
	})
	if err != nil {
		if ClassOf(err) == FailSchema {
			return c.defensiveConfirmation(ctx, req.Candidates), nil
		}
		return nil, err
	}

	p, err := parseConfirmation(text)
	if err != nil {
		logger.Warn(ctx, "Confirmation response failed validation, degrading to defensive hold",
			"error", err.Error())
		return c.defensiveConfirmation(ctx, req.Candidates), nil
	}
	return &interfaces.Confirmation{
		Assessment:    p.Assessment,
		Cash:          p.Cash,
		Opportunities: p.Opportunities,
	}, nil
}

// defensiveConfirmation keeps the round-1 candidates but parks most of the
// cash. The gate still applies downstream, so nothing is executed that would
// not have passed anyway.
func (c *Client) defensiveConfirmation(ctx context.Context, candidates []types.Opportunity) *interfaces.Confirmation {
	logger.Info(ctx, "Using defensive confirmation", "candidates", len(candidates),
		"hold_cash_pct", c.cfg.FallbackCashPct)
	return &interfaces.Confirmation{
		Assessment: types.MarketAssessment{
			OverallSentiment:    "unknown",
			RecommendedExposure: "reduced",
		},
		Cash: types.CashStrategy{
			Action:     "hold_cash",
			Percentage: c.cfg.FallbackCashPct,
			Reasoning:  "advisory confirmation unavailable, holding cash defensively",
		},
		Opportunities: candidates,
		FromFallback:  true,
	}
}

const reviewSystem = `You are reviewing one open options position. Decide what to do with it.
Respond ONLY with a JSON object:
{"action": "hold"|"close"|"adjust_stop"|"adjust_target"|"roll",
 "confidence": number 0-1, "reasoning": string,
 "target_price": number optional, "stop_loss": number optional}`

// ReviewPosition asks for a verdict on one open position. Schema violations
// degrade to a low-confidence hold; acting on an unparsable verdict is worse
// than doing nothing.
func (c *Client) ReviewPosition(ctx context.Context, pos *types.Position, quote *types.Quote) (*types.PositionReview, error) {
	if err := c.spendQuery(); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"position":   pos,
		"live_quote": quote,
		"pnl_pct":    pos.PnLPercent(),
		"days_held":  pos.DaysHeld(time.Now()),
	})
	user := fmt.Sprintf("Position under review:\n%s\n\nJSON verdict only.", string(payload))

	text, err := withRetry(ctx, c.cfg.Retry, "review", func() (string, error) {
		return c.completer.Complete(ctx, reviewSystem, user)
	})
	if err != nil {
		if ClassOf(err) == FailSchema {
			return holdReview(ctx, pos), nil
		}
		return nil, err
	}
	r, err := parseReview(text)
	if err != nil {
		logger.Warn(ctx, "Review response failed validation, holding",
			"position_id", pos.ID, "error", err.Error())
		return holdReview(ctx, pos), nil
	}
	return r, nil
}

func holdReview(ctx context.Context, pos *types.Position) *types.PositionReview {
	logger.Debug(ctx, "Defaulting position review to hold", "position_id", pos.ID)
	return &types.PositionReview{
		Action:     types.ActionHold,
		Confidence: 0,
		Reasoning:  "advisory review unavailable",
	}
}
