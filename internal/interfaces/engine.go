package interfaces

import (
	"context"

	"options-trading-bot/internal/types"
)

// Engine turns accepted opportunities into persisted positions.
type Engine interface {
	RunSession(ctx context.Context, session string) (*types.CycleOutcome, error)
}

// Monitor re-values open positions and applies exit triggers.
type Monitor interface {
	Tick(ctx context.Context) error
}
