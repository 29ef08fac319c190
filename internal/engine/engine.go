// Package engine schedules workflow executions: it creates the execution
// and its step records, then walks steps in step_order until none remain
// pending or an infrastructural failure aborts the run.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentplate/agentplate/internal/expressions"
	"github.com/agentplate/agentplate/internal/logging"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

// Config tunes engine behavior.
type Config struct {
	// EvaluateConditions enables CEL evaluation of each step's
	// conditional_expression before dispatch. Off by default: the
	// scheduler then executes every step strictly by step_order.
	EvaluateConditions bool
}

// Engine runs workflow executions against a Store and a ToolRunner.
type Engine struct {
	store store.Store
	steps *StepManager
	cel   *expressions.CELEngine

	logger *slog.Logger
	cfg    Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConfig sets the engine config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithExpressions sets the CEL engine used when EvaluateConditions is on.
func WithExpressions(cel *expressions.CELEngine) Option {
	return func(e *Engine) { e.cel = cel }
}

// New wires an Engine.
func New(s store.Store, runner ToolRunner, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.steps = NewStepManager(s, runner, e.logger)
	return e
}

// Start creates a workflow execution with one pending step record per
// workflow step, then drives it with the continue loop. The returned
// execution is terminal unless an infrastructural failure aborted it.
func (e *Engine) Start(ctx context.Context, workflowID string, input map[string]any) (*store.WorkflowExecution, error) {
	ctx = logging.WithWorkflowID(ctx, workflowID)

	workflow, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	steps, err := e.store.ListWorkflowSteps(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	exec := &store.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: workflow.ID,
		Status:     schema.StatusPending,
		Input:      schema.NormalizeDocument(input),
		StartedAt:  &now,
	}
	if err := e.store.CreateWorkflowExecution(ctx, exec); err != nil {
		return nil, err
	}
	ctx = logging.WithExecutionID(ctx, exec.ID)

	records := make([]*store.StepExecution, len(steps))
	for i, step := range steps {
		records[i] = &store.StepExecution{
			ID:                  uuid.New().String(),
			WorkflowExecutionID: exec.ID,
			WorkflowStepID:      step.ID,
			StepOrder:           step.StepOrder,
			Status:              schema.StatusPending,
			Input:               exec.Input,
		}
	}
	if err := e.store.CreateStepExecutions(ctx, records); err != nil {
		return nil, e.failExecution(ctx, exec.ID, err)
	}

	e.logger.InfoContext(ctx, "execution started",
		slog.Int("steps", len(steps)))

	return e.run(ctx, exec.ID)
}

// Continue resumes an execution, scanning for pending steps in step_order.
// Calling it on a terminal execution returns the record unchanged.
func (e *Engine) Continue(ctx context.Context, executionID string) (*store.WorkflowExecution, error) {
	exec, err := e.store.GetWorkflowExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithWorkflowID(ctx, exec.WorkflowID)
	ctx = logging.WithExecutionID(ctx, exec.ID)
	return e.run(ctx, executionID)
}

// run is the scheduler loop. Each pass re-reads the step records, picks
// the first pending one by step_order, executes it, and re-scans. The
// pass count is bounded by the step count so a bookkeeping anomaly can
// never loop forever.
func (e *Engine) run(ctx context.Context, executionID string) (*store.WorkflowExecution, error) {
	exec, err := e.store.GetWorkflowExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.IsTerminal() {
		return exec, nil
	}

	steps, err := e.store.ListWorkflowSteps(ctx, exec.WorkflowID)
	if err != nil {
		return nil, e.failExecution(ctx, exec.ID, err)
	}
	stepsByID := make(map[string]*store.WorkflowStep, len(steps))
	for _, step := range steps {
		stepsByID[step.ID] = step
	}

	for pass := 0; pass <= len(steps); pass++ {
		if err := ctx.Err(); err != nil {
			return nil, e.failExecution(ctx, exec.ID, err)
		}

		next, err := e.nextPending(ctx, exec.ID)
		if err != nil {
			return nil, e.failExecution(ctx, exec.ID, err)
		}
		if next == nil {
			return e.completeExecution(ctx, exec.ID)
		}

		step, ok := stepsByID[next.WorkflowStepID]
		if !ok {
			return nil, e.failExecution(ctx, exec.ID, schema.NewErrorf(schema.ErrCodeStore,
				"step execution %s references unknown workflow step %s", next.ID, next.WorkflowStepID))
		}

		if err := e.markRunning(ctx, exec, step.StepOrder); err != nil {
			return nil, e.failExecution(ctx, exec.ID, err)
		}

		if _, err := e.dispatchStep(ctx, exec, step); err != nil {
			return nil, e.failExecution(ctx, exec.ID, err)
		}
	}

	return nil, e.failExecution(ctx, exec.ID, schema.NewErrorf(schema.ErrCodeExecution,
		"execution %s did not settle after %d passes", exec.ID, len(steps)+1))
}

// nextPending returns the first pending step execution by step_order, or
// nil when none remain.
func (e *Engine) nextPending(ctx context.Context, executionID string) (*store.StepExecution, error) {
	records, err := e.store.ListStepExecutions(ctx, executionID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Status == schema.StatusPending {
			return record, nil
		}
	}
	return nil, nil
}

// dispatchStep builds the context for one step and delegates to the step
// manager, applying the conditional short-circuit when enabled.
func (e *Engine) dispatchStep(ctx context.Context, exec *store.WorkflowExecution, step *store.WorkflowStep) (*store.StepExecution, error) {
	execCtx, err := buildContext(ctx, e.store, exec, step.StepOrder)
	if err != nil {
		return nil, err
	}

	if e.cfg.EvaluateConditions && e.cel != nil && step.ConditionalExpression != "" {
		proceed, err := e.cel.EvaluateBool(ctx, step.ConditionalExpression, execCtx.expressionData())
		if err != nil {
			return nil, err
		}
		if !proceed {
			return e.steps.skipStep(ctx, exec.ID, step)
		}
	}

	return e.steps.ExecuteStep(ctx, execCtx, step)
}

// markRunning moves the execution to running (first step only) and tracks
// the step_order about to run.
func (e *Engine) markRunning(ctx context.Context, exec *store.WorkflowExecution, stepOrder int) error {
	update := store.WorkflowExecutionUpdate{CurrentStep: &stepOrder}
	if exec.Status != schema.StatusRunning {
		if err := Transition(exec.Status, schema.StatusRunning); err != nil {
			return err
		}
		running := schema.StatusRunning
		update.Status = &running
		exec.Status = running
	}
	return e.store.UpdateWorkflowExecution(ctx, exec.ID, update)
}

// completeExecution marks an execution completed, aggregating completed
// step outputs keyed by workflow step id into the execution output.
func (e *Engine) completeExecution(ctx context.Context, executionID string) (*store.WorkflowExecution, error) {
	records, err := e.store.ListStepExecutions(ctx, executionID)
	if err != nil {
		return nil, e.failExecution(ctx, executionID, err)
	}
	output := make(map[string]any)
	for _, record := range records {
		if record.Status == schema.StatusCompleted && record.Output != nil {
			output[record.WorkflowStepID] = record.Output
		}
	}

	now := time.Now().UTC()
	completed := schema.StatusCompleted
	if err := e.store.UpdateWorkflowExecution(ctx, executionID, store.WorkflowExecutionUpdate{
		Status:      &completed,
		Output:      output,
		CompletedAt: &now,
	}); err != nil {
		return nil, e.failExecution(ctx, executionID, err)
	}

	e.logger.InfoContext(ctx, "execution completed",
		slog.Int("steps_completed", len(output)))

	return e.store.GetWorkflowExecution(ctx, executionID)
}

// failExecution best-effort marks the execution failed and always returns
// the original error so callers see the real cause even when the status
// write also fails.
func (e *Engine) failExecution(ctx context.Context, executionID string, cause error) error {
	now := time.Now().UTC()
	failed := schema.StatusFailed
	msg := cause.Error()
	if err := e.store.UpdateWorkflowExecution(context.WithoutCancel(ctx), executionID, store.WorkflowExecutionUpdate{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &now,
	}); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark execution failed",
			slog.String("execution_id", executionID),
			slog.String("error", err.Error()))
	}
	e.logger.ErrorContext(ctx, "execution failed",
		slog.String("execution_id", executionID),
		slog.String("error", msg))
	return cause
}
