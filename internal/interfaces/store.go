package interfaces

import (
	"context"

	"options-trading-bot/internal/types"
)

// PositionStore is the persistence boundary for positions. Close performs a
// compare-and-transition on status and returns false when the position was
// already closed, so a double close can never book P&L twice.
type PositionStore interface {
	Create(ctx context.Context, pos *types.Position) error
	Get(ctx context.Context, id string) (*types.Position, error)
	UpdateValue(ctx context.Context, id string, currentValue, unrealizedPnL float64) error
	Close(ctx context.Context, id string, reason types.CloseReason) (bool, error)
	List(ctx context.Context, status types.PositionStatus) ([]*types.Position, error)
	Ledger(ctx context.Context) ([]*types.Position, error)
	HeldSymbols(ctx context.Context) ([]string, error)
	CashBalance(ctx context.Context) (float64, error)
	AdjustCash(ctx context.Context, delta float64) error
	MarkAdvisorCheck(ctx context.Context, id string) error
}
