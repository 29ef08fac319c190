// Package agents runs named assistants. A run is a single invocation of
// the agent-service function tracked through the same lifecycle as a
// workflow execution.
package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentplate/agentplate/internal/functions"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

// agentFunction is the well-known function backing every agent run.
const agentFunction = "agent-service"

// Runner executes agents and records their runs.
type Runner struct {
	store   store.Store
	invoker functions.Invoker
	logger  *slog.Logger
}

// NewRunner wires a Runner.
func NewRunner(s store.Store, invoker functions.Invoker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: s, invoker: invoker, logger: logger}
}

// Run invokes the agent with a query and returns the recorded execution.
// Invocation failures are recorded as a failed run with a nil error;
// bookkeeping failures propagate.
func (r *Runner) Run(ctx context.Context, agentID, query string) (*store.AgentExecution, error) {
	agent, err := r.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "agent %q is not active", agentID)
	}

	now := time.Now().UTC()
	running := schema.StatusRunning
	exec := &store.AgentExecution{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		Status:    schema.StatusPending,
		Input:     map[string]any{"query": query},
		StartedAt: &now,
	}
	if err := r.store.CreateAgentExecution(ctx, exec); err != nil {
		return nil, err
	}
	if err := r.store.UpdateAgentExecution(ctx, exec.ID, store.AgentExecutionUpdate{Status: &running}); err != nil {
		return nil, err
	}

	output, invokeErr := r.invoker.Invoke(ctx, agentFunction, map[string]any{"query": query})
	completed := time.Now().UTC()

	if invokeErr != nil {
		r.logger.WarnContext(ctx, "agent run failed",
			slog.String("agent_id", agent.ID),
			slog.String("error", invokeErr.Error()))

		failed := schema.StatusFailed
		msg := invokeErr.Error()
		if err := r.store.UpdateAgentExecution(ctx, exec.ID, store.AgentExecutionUpdate{
			Status:      &failed,
			Error:       &msg,
			CompletedAt: &completed,
		}); err != nil {
			return nil, err
		}
		return r.store.GetAgentExecution(ctx, exec.ID)
	}

	r.logger.InfoContext(ctx, "agent run completed",
		slog.String("agent_id", agent.ID),
		slog.Duration("elapsed", completed.Sub(now)))

	done := schema.StatusCompleted
	if err := r.store.UpdateAgentExecution(ctx, exec.ID, store.AgentExecutionUpdate{
		Status:      &done,
		Output:      schema.NormalizeDocument(output),
		CompletedAt: &completed,
	}); err != nil {
		return nil, err
	}
	return r.store.GetAgentExecution(ctx, exec.ID)
}
