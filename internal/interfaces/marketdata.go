package interfaces

import (
	"context"

	"options-trading-bot/internal/types"
)

// MarketData serves cached quotes and chains. Implementations must treat a
// failed upstream fetch as an unknown value, never a hard failure.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*types.Quote, error)
	Chain(ctx context.Context, symbol string) (*types.OptionChain, error)
	Refresh(ctx context.Context, symbols []string)
}
