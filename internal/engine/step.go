package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentplate/agentplate/internal/logging"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

// ToolRunner executes a tool invocation. Satisfied by tools.Dispatcher.
type ToolRunner interface {
	Execute(ctx context.Context, toolID string, input map[string]any) (map[string]any, error)
}

// StepManager drives a single step execution through its lifecycle:
// running, dispatch, then completed or failed.
//
// Tool-level failures are recorded into the step execution row and
// returned as a terminal record with a nil error; only bookkeeping
// failures (and non-tool dispatch errors such as cancellation) come back
// as errors.
type StepManager struct {
	store  store.Store
	runner ToolRunner
	logger *slog.Logger
}

// NewStepManager wires a StepManager.
func NewStepManager(s store.Store, runner ToolRunner, logger *slog.Logger) *StepManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepManager{store: s, runner: runner, logger: logger}
}

// ExecuteStep runs the given workflow step within an execution.
func (m *StepManager) ExecuteStep(ctx context.Context, execCtx *ExecutionContext, step *store.WorkflowStep) (*store.StepExecution, error) {
	ctx = logging.WithStepID(ctx, step.ID)

	record, err := m.store.GetStepExecutionByStep(ctx, execCtx.ExecutionID, step.ID)
	if err != nil {
		return nil, err
	}
	if err := Transition(record.Status, schema.StatusRunning); err != nil {
		return nil, err
	}

	input := schema.NormalizeDocument(execCtx.GlobalVariables)
	started := time.Now().UTC()
	running := schema.StatusRunning
	logs := append(record.Logs, fmt.Sprintf("dispatching tool %s", step.ToolID))
	if err := m.store.UpdateStepExecution(ctx, record.ID, store.StepExecutionUpdate{
		Status:    &running,
		Input:     input,
		Logs:      logs,
		StartedAt: &started,
	}); err != nil {
		return nil, err
	}

	output, toolErr := m.runner.Execute(ctx, step.ToolID, input)
	completed := time.Now().UTC()

	if toolErr != nil {
		if !schema.IsToolError(toolErr) {
			// Cancellation and other non-tool errors are infrastructural.
			return nil, toolErr
		}
		m.logger.WarnContext(ctx, "step failed",
			slog.String("tool_id", step.ToolID),
			slog.String("error", toolErr.Error()))

		failed := schema.StatusFailed
		msg := toolErr.Error()
		trace := fmt.Sprintf("%+v", toolErr)
		logs = append(logs, fmt.Sprintf("tool %s failed: %s", step.ToolID, msg))
		if err := m.store.UpdateStepExecution(ctx, record.ID, store.StepExecutionUpdate{
			Status:      &failed,
			Error:       &msg,
			StackTrace:  &trace,
			Logs:        logs,
			CompletedAt: &completed,
		}); err != nil {
			return nil, err
		}
		return m.store.GetStepExecution(ctx, record.ID)
	}

	m.logger.InfoContext(ctx, "step completed",
		slog.String("tool_id", step.ToolID),
		slog.Duration("elapsed", completed.Sub(started)))

	done := schema.StatusCompleted
	logs = append(logs, fmt.Sprintf("tool %s completed in %s", step.ToolID, completed.Sub(started)))
	if err := m.store.UpdateStepExecution(ctx, record.ID, store.StepExecutionUpdate{
		Status:      &done,
		Output:      schema.NormalizeDocument(output),
		Logs:        logs,
		CompletedAt: &completed,
	}); err != nil {
		return nil, err
	}
	return m.store.GetStepExecution(ctx, record.ID)
}

// skipStep short-circuits a step whose conditional evaluated false. The
// record completes without dispatch, its output marking the skip.
func (m *StepManager) skipStep(ctx context.Context, executionID string, step *store.WorkflowStep) (*store.StepExecution, error) {
	record, err := m.store.GetStepExecutionByStep(ctx, executionID, step.ID)
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "step skipped",
		slog.String("step_id", step.ID),
		slog.String("expression", step.ConditionalExpression))

	now := time.Now().UTC()
	done := schema.StatusCompleted
	logs := append(record.Logs, "condition evaluated false, step skipped")
	if err := m.store.UpdateStepExecution(ctx, record.ID, store.StepExecutionUpdate{
		Status:      &done,
		Output:      map[string]any{"skipped": true},
		Logs:        logs,
		StartedAt:   &now,
		CompletedAt: &now,
	}); err != nil {
		return nil, err
	}
	return m.store.GetStepExecution(ctx, record.ID)
}
