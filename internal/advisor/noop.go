package advisor

import (
	"context"
)

// NoopCompleter always fails with a schema-class error, which drives every
// advisory round down its fallback path. It backs DRY_RUN deployments that
// have no API key configured.
type NoopCompleter struct{}

func (NoopCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return "", newSchemaError("no advisory service configured", nil)
}
