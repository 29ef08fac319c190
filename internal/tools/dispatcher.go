// Package tools dispatches tool invocations to their effect backends by
// tool type: api, database, file_system and custom.
package tools

import (
	"context"
	"net/http"
	"time"

	"github.com/agentplate/agentplate/internal/blob"
	"github.com/agentplate/agentplate/internal/functions"
	"github.com/agentplate/agentplate/internal/secrets"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

// ToolSource looks up tool definitions. Satisfied by store.Store.
type ToolSource interface {
	GetTool(ctx context.Context, id string) (*store.Tool, error)
}

// Dispatcher routes a tool invocation to the handler for the tool's type.
// Every failure it returns is a TOOL_EXECUTION_ERROR carrying the tool id
// and the invocation input, so callers can record it without unwrapping.
type Dispatcher struct {
	tools    ToolSource
	resolver *secrets.Resolver

	api      *apiGateway
	database *databaseGateway
	files    *fileGateway
	custom   *customGateway
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used by api tools.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.api.client = client }
}

// WithSecretResolver enables ${{secrets.KEY}} resolution in tool
// configurations before dispatch.
func WithSecretResolver(r *secrets.Resolver) Option {
	return func(d *Dispatcher) { d.resolver = r }
}

// NewDispatcher wires a Dispatcher with its effect backends. db may be nil
// when no database tools are configured; likewise files and invoker.
func NewDispatcher(tools ToolSource, db DBExecutor, files blob.Store, invoker functions.Invoker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tools:    tools,
		api:      &apiGateway{client: &http.Client{Timeout: 30 * time.Second}},
		database: &databaseGateway{db: db},
		files:    &fileGateway{store: files},
		custom:   &customGateway{invoker: invoker},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute looks up the tool, resolves and decodes its configuration, and
// runs the invocation against the matching backend. Partial external
// effects are not rolled back on failure.
func (d *Dispatcher) Execute(ctx context.Context, toolID string, input map[string]any) (map[string]any, error) {
	tool, err := d.tools.GetTool(ctx, toolID)
	if err != nil {
		return nil, d.failure(toolID, input, err)
	}

	config := schema.NormalizeDocument(tool.Configuration)
	if d.resolver != nil {
		config, err = d.resolver.ResolveDocument(ctx, config)
		if err != nil {
			return nil, d.failure(toolID, input, err)
		}
	}

	cfg, err := schema.ParseToolConfig(tool.Type, config)
	if err != nil {
		return nil, d.failure(toolID, input, err)
	}

	var output map[string]any
	switch cfg := cfg.(type) {
	case schema.APIConfig:
		output, err = d.api.run(ctx, cfg, input)
	case schema.DatabaseConfig:
		output, err = d.database.run(ctx, cfg, input)
	case schema.FileSystemConfig:
		output, err = d.files.run(ctx, cfg, input)
	case schema.CustomConfig:
		output, err = d.custom.run(ctx, cfg, input)
	default:
		err = schema.NewErrorf(schema.ErrCodeValidation, "unsupported tool type: %s", cfg.Kind())
	}
	if err != nil {
		return nil, d.failure(toolID, input, err)
	}
	return output, nil
}

// failure normalizes any error crossing the dispatcher boundary into a
// TOOL_EXECUTION_ERROR with tool and input context attached.
func (d *Dispatcher) failure(toolID string, input map[string]any, err error) error {
	return schema.NewErrorf(schema.ErrCodeToolExecution, "tool execution failed: %s", err.Error()).
		WithTool(toolID).
		WithCause(err).
		WithDetails(map[string]any{"input": input})
}
