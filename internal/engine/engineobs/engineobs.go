package engineobs

import (
	"context"

	"options-trading-bot/internal/interfaces"
	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/trace"
	"options-trading-bot/internal/types"
)

// observableEngine wraps an Engine with logging and tracing
type observableEngine struct {
	engine interfaces.Engine
}

// Compile-time interface check
var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap wraps an engine with observability middleware
func Wrap(engine interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: engine}
}

func (oe *observableEngine) RunSession(ctx context.Context, session string) (*types.CycleOutcome, error) {
	ctx, span := trace.StartSpan(ctx, "engine.RunSession")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Decision session starting", "session", session)

	outcome, err := oe.engine.RunSession(ctx, session)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision session failed", err, "session", session)
		return outcome, err
	}

	logger.InfoSkip(ctx, 1, "Decision session finished",
		"session", session,
		"proposed", outcome.Proposed,
		"accepted", outcome.Accepted,
		"executed", outcome.Executed,
		"fallback", outcome.UsedFallback,
		"degraded", outcome.Degraded,
	)
	return outcome, nil
}
