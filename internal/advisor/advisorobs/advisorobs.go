package advisorobs

import (
	"context"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/trace"
	"options-trading-bot/internal/types"
)

// observableAdvisor wraps an Advisor with logging and tracing
type observableAdvisor struct {
	advisor interfaces.Advisor
}

// Compile-time interface check
var _ interfaces.Advisor = (*observableAdvisor)(nil)

// Wrap wraps an advisor with observability middleware
func Wrap(advisor interfaces.Advisor) interfaces.Advisor {
	return &observableAdvisor{advisor: advisor}
}

func (oa *observableAdvisor) ProposeCandidates(ctx context.Context, req interfaces.ProposalRequest) ([]types.Opportunity, error) {
	ctx, span := trace.StartSpan(ctx, "advisor.ProposeCandidates")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting trade proposals",
		"held_symbols", len(req.HeldSymbols),
		"open_positions", req.Portfolio.OpenPositions,
		"cash", req.Portfolio.CashBalance,
	)

	opps, err := oa.advisor.ProposeCandidates(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Proposal round failed", err,
			"open_positions", req.Portfolio.OpenPositions,
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Trade proposals received",
		"count", len(opps),
		"remaining_budget", oa.advisor.RemainingBudget(),
	)
	return opps, nil
}

func (oa *observableAdvisor) ConfirmCandidates(ctx context.Context, req interfaces.ConfirmRequest) (*interfaces.Confirmation, error) {
	ctx, span := trace.StartSpan(ctx, "advisor.ConfirmCandidates")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Requesting trade confirmation",
		"candidates", len(req.Candidates),
		"live_quotes", len(req.Quotes),
	)

	conf, err := oa.advisor.ConfirmCandidates(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Confirmation round failed", err,
			"candidates", len(req.Candidates),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Trade confirmation received",
		"confirmed", len(conf.Opportunities),
		"cash_action", conf.Cash.Action,
		"cash_pct", conf.Cash.Percentage,
		"from_fallback", conf.FromFallback,
	)
	return conf, nil
}

func (oa *observableAdvisor) ReviewPosition(ctx context.Context, pos *types.Position, quote *types.Quote) (*types.PositionReview, error) {
	ctx, span := trace.StartSpan(ctx, "advisor.ReviewPosition")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Requesting position review",
		"position_id", pos.ID,
		"symbol", pos.Symbol,
		"pnl_pct", pos.PnLPercent(),
	)

	review, err := oa.advisor.ReviewPosition(ctx, pos, quote)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Position review failed", err,
			"position_id", pos.ID,
			"symbol", pos.Symbol,
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Position review received",
		"position_id", pos.ID,
		"symbol", pos.Symbol,
		"action", string(review.Action),
		"confidence", review.Confidence,
	)
	return review, nil
}

func (oa *observableAdvisor) RemainingBudget() int {
	return oa.advisor.RemainingBudget()
}
