package interfaces

import (
	"context"

	"options-trading-bot/internal/types"
)

// Advisor is the external reasoning service behind the decision pipeline.
// ProposeCandidates and ConfirmCandidates are the open/confirm rounds of a
// decision session; ReviewPosition backs the monitor's exit re-checks.
type Advisor interface {
	ProposeCandidates(ctx context.Context, req ProposalRequest) ([]types.Opportunity, error)
	ConfirmCandidates(ctx context.Context, req ConfirmRequest) (*Confirmation, error)
	ReviewPosition(ctx context.Context, pos *types.Position, quote *types.Quote) (*types.PositionReview, error)

	// RemainingBudget reports how many advisory calls are left today.
	RemainingBudget() int
}

// ProposalRequest carries the context for the candidate-generation round.
type ProposalRequest struct {
	Portfolio     types.PortfolioSummary
	MarketSummary map[string]any
	HeldSymbols   []string
	Sentiment     []types.NewsSentiment
}

// ConfirmRequest carries round-1 candidates plus the targeted live context
// fetched for them.
type ConfirmRequest struct {
	Candidates []types.Opportunity
	Quotes     map[string]*types.Quote
	Portfolio  types.PortfolioSummary
}

// Confirmation is the final-round response: a possibly reduced candidate
// list plus the market and cash calls that frame it.
type Confirmation struct {
	Assessment    types.MarketAssessment
	Cash          types.CashStrategy
	Opportunities []types.Opportunity
	FromFallback  bool
}
