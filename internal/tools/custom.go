package tools

import (
	"context"

	"github.com/agentplate/agentplate/internal/functions"
	"github.com/agentplate/agentplate/pkg/schema"
)

// customGateway executes custom-type tools through the function invoker.
type customGateway struct {
	invoker functions.Invoker
}

func (g *customGateway) run(ctx context.Context, cfg schema.CustomConfig, input map[string]any) (map[string]any, error) {
	if g.invoker == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no function backend configured")
	}
	if cfg.FunctionName == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "custom tool requires functionName")
	}
	return g.invoker.Invoke(ctx, cfg.FunctionName, input)
}
