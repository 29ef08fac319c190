package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplate/agentplate/internal/expressions"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

// fakeRunner scripts tool results per tool id and records call order.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]map[string]any
	errs    map[string]error
	calls   []string
	inputs  []map[string]any
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]map[string]any),
		errs:    make(map[string]error),
	}
}

func (f *fakeRunner) Execute(ctx context.Context, toolID string, input map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolID)
	f.inputs = append(f.inputs, input)
	if err, ok := f.errs[toolID]; ok {
		return nil, err
	}
	if out, ok := f.results[toolID]; ok {
		return out, nil
	}
	return map[string]any{"tool": toolID}, nil
}

func toolFailure(toolID, msg string) error {
	return schema.NewError(schema.ErrCodeToolExecution, msg).WithTool(toolID)
}

type harness struct {
	store  *store.MemoryStore
	runner *fakeRunner
	engine *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	s := store.NewMemoryStore()
	runner := newFakeRunner()
	return &harness{
		store:  s,
		runner: runner,
		engine: New(s, runner, opts...),
	}
}

// addWorkflow creates a workflow with one step per tool id, ordered as given.
func (h *harness) addWorkflow(t *testing.T, toolIDs ...string) (string, []string) {
	t.Helper()
	ctx := context.Background()
	wf := &store.Workflow{ID: uuid.New().String(), Name: "wf"}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	stepIDs := make([]string, len(toolIDs))
	for i, toolID := range toolIDs {
		step := &store.WorkflowStep{
			ID:         uuid.New().String(),
			WorkflowID: wf.ID,
			ToolID:     toolID,
			StepOrder:  i,
		}
		require.NoError(t, h.store.CreateWorkflowStep(ctx, step))
		stepIDs[i] = step.ID
	}
	return wf.ID, stepIDs
}

func TestStart_TwoStepSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wfID, stepIDs := h.addWorkflow(t, "tool-a", "tool-b")
	h.runner.results["tool-a"] = map[string]any{"rows": 3}
	h.runner.results["tool-b"] = map[string]any{"status": "sent"}

	exec, err := h.engine.Start(ctx, wfID, map[string]any{"query": "orders"})
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	assert.NotNil(t, exec.StartedAt)
	assert.NotNil(t, exec.CompletedAt)

	// Steps ran in step_order, each fed the execution input.
	assert.Equal(t, []string{"tool-a", "tool-b"}, h.runner.calls)
	assert.Equal(t, "orders", h.runner.inputs[0]["query"])

	records, err := h.store.ListStepExecutions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, schema.StatusCompleted, record.Status)
		assert.NotNil(t, record.StartedAt)
		assert.NotNil(t, record.CompletedAt)
	}
	assert.Equal(t, map[string]any{"rows": 3}, records[0].Output)

	// Execution output aggregates step outputs by workflow step id.
	assert.Equal(t, map[string]any{"status": "sent"}, exec.Output[stepIDs[1]])
}

func TestStart_StepOrderWinsOverInsertionOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := &store.Workflow{ID: uuid.New().String(), Name: "wf"}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	// Inserted 2, 0, 1; must execute 0, 1, 2.
	for _, order := range []int{2, 0, 1} {
		step := &store.WorkflowStep{
			ID:         uuid.New().String(),
			WorkflowID: wf.ID,
			ToolID:     map[int]string{0: "first", 1: "second", 2: "third"}[order],
			StepOrder:  order,
		}
		require.NoError(t, h.store.CreateWorkflowStep(ctx, step))
	}

	exec, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	assert.Equal(t, []string{"first", "second", "third"}, h.runner.calls)
}

func TestStart_DependenciesAndConditionsIgnoredByDefault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := &store.Workflow{ID: uuid.New().String(), Name: "wf"}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	step := &store.WorkflowStep{
		ID:                    uuid.New().String(),
		WorkflowID:            wf.ID,
		ToolID:                "tool-a",
		StepOrder:             0,
		Dependencies:          []string{"some-unmet-step"},
		ConditionalExpression: `input.never == true`,
	}
	require.NoError(t, h.store.CreateWorkflowStep(ctx, step))

	exec, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	assert.Equal(t, []string{"tool-a"}, h.runner.calls)
}

func TestStart_BusinessFailureRecordedAndRunContinues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wfID, stepIDs := h.addWorkflow(t, "broken", "tool-b")
	h.runner.errs["broken"] = toolFailure("broken", "tool execution failed: missing functionName")

	exec, err := h.engine.Start(ctx, wfID, nil)
	require.NoError(t, err)

	// The execution itself completes: a tool failure is data, not an abort.
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	assert.Equal(t, []string{"broken", "tool-b"}, h.runner.calls)

	failed, err := h.store.GetStepExecutionByStep(ctx, exec.ID, stepIDs[0])
	require.NoError(t, err)
	assert.Equal(t, schema.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "missing functionName")
	assert.NotNil(t, failed.CompletedAt)

	succeeded, err := h.store.GetStepExecutionByStep(ctx, exec.ID, stepIDs[1])
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, succeeded.Status)

	// Failed steps contribute no output.
	_, ok := exec.Output[stepIDs[0]]
	assert.False(t, ok)
}

func TestStart_InfrastructuralFailureAbortsAndMarksFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wfID, _ := h.addWorkflow(t, "tool-a", "tool-b")

	// A non-tool error from dispatch is infrastructural.
	infra := errors.New("connection reset by peer")
	h.runner.errs["tool-a"] = infra

	exec, err := h.engine.Start(ctx, wfID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, infra)
	assert.Nil(t, exec)

	// Only the first tool was attempted.
	assert.Equal(t, []string{"tool-a"}, h.runner.calls)

	execs, listErr := h.store.ListWorkflowExecutions(ctx, store.ExecutionFilter{WorkflowID: wfID})
	require.NoError(t, listErr)
	require.Len(t, execs, 1)
	assert.Equal(t, schema.StatusFailed, execs[0].Status)
	assert.Contains(t, execs[0].Error, "connection reset")
	assert.NotNil(t, execs[0].CompletedAt)
}

func TestStart_ZeroStepWorkflowCompletes(t *testing.T) {
	h := newHarness(t)
	wfID, _ := h.addWorkflow(t)

	exec, err := h.engine.Start(context.Background(), wfID, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	assert.Empty(t, h.runner.calls)
}

func TestStart_UnknownWorkflow(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Start(context.Background(), "nope", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestStart_CreatesAllStepRecordsUpFront(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wfID, _ := h.addWorkflow(t, "tool-a", "tool-b", "tool-c")
	h.runner.errs["tool-a"] = errors.New("infra down")

	_, err := h.engine.Start(ctx, wfID, nil)
	require.Error(t, err)

	execs, err := h.store.ListWorkflowExecutions(ctx, store.ExecutionFilter{WorkflowID: wfID})
	require.NoError(t, err)
	require.Len(t, execs, 1)

	// All three records were created before the first dispatch; the
	// untouched tail is still pending after the abort.
	records, err := h.store.ListStepExecutions(ctx, execs[0].ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, schema.StatusRunning, records[0].Status)
	assert.Equal(t, schema.StatusPending, records[1].Status)
	assert.Equal(t, schema.StatusPending, records[2].Status)
}

func TestContinue_TerminalExecutionUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wfID, _ := h.addWorkflow(t, "tool-a")

	exec, err := h.engine.Start(ctx, wfID, nil)
	require.NoError(t, err)
	require.Equal(t, schema.StatusCompleted, exec.Status)
	callsBefore := len(h.runner.calls)

	again, err := h.engine.Continue(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, again.Status)
	assert.Len(t, h.runner.calls, callsBefore)
}

func TestContinue_ResumesPendingSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wfID, stepIDs := h.addWorkflow(t, "tool-a", "tool-b")

	// Simulate an interrupted run: execution exists with one completed
	// and one pending step record.
	exec := &store.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: wfID,
		Status:     schema.StatusRunning,
	}
	require.NoError(t, h.store.CreateWorkflowExecution(ctx, exec))
	require.NoError(t, h.store.CreateStepExecutions(ctx, []*store.StepExecution{
		{
			ID: uuid.New().String(), WorkflowExecutionID: exec.ID,
			WorkflowStepID: stepIDs[0], StepOrder: 0,
			Status: schema.StatusCompleted, Output: map[string]any{"done": true},
		},
		{
			ID: uuid.New().String(), WorkflowExecutionID: exec.ID,
			WorkflowStepID: stepIDs[1], StepOrder: 1,
			Status: schema.StatusPending,
		},
	}))

	got, err := h.engine.Continue(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, got.Status)
	assert.Equal(t, []string{"tool-b"}, h.runner.calls)
	assert.Equal(t, 1, got.CurrentStep)
}

func TestContinue_UnknownExecution(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Continue(context.Background(), "nope")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestStart_CancelledContextIsInfrastructural(t *testing.T) {
	h := newHarness(t)
	wfID, _ := h.addWorkflow(t, "tool-a")
	h.runner.errs["tool-a"] = context.Canceled

	_, err := h.engine.Start(context.Background(), wfID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	execs, listErr := h.store.ListWorkflowExecutions(context.Background(), store.ExecutionFilter{WorkflowID: wfID})
	require.NoError(t, listErr)
	require.Len(t, execs, 1)
	assert.Equal(t, schema.StatusFailed, execs[0].Status)
}

func TestEvaluateConditions_SkipsOnFalse(t *testing.T) {
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	h := newHarness(t,
		WithConfig(Config{EvaluateConditions: true}),
		WithExpressions(cel))
	ctx := context.Background()

	wf := &store.Workflow{ID: uuid.New().String(), Name: "wf"}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))

	guarded := &store.WorkflowStep{
		ID: uuid.New().String(), WorkflowID: wf.ID,
		ToolID: "guarded", StepOrder: 0,
		ConditionalExpression: `input.enabled == true`,
	}
	always := &store.WorkflowStep{
		ID: uuid.New().String(), WorkflowID: wf.ID,
		ToolID: "always", StepOrder: 1,
	}
	require.NoError(t, h.store.CreateWorkflowStep(ctx, guarded))
	require.NoError(t, h.store.CreateWorkflowStep(ctx, always))

	exec, err := h.engine.Start(ctx, wf.ID, map[string]any{"enabled": false})
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	assert.Equal(t, []string{"always"}, h.runner.calls)

	skipped, err := h.store.GetStepExecutionByStep(ctx, exec.ID, guarded.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, skipped.Status)
	assert.Equal(t, map[string]any{"skipped": true}, skipped.Output)
}

func TestEvaluateConditions_RunsOnTrue(t *testing.T) {
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	h := newHarness(t,
		WithConfig(Config{EvaluateConditions: true}),
		WithExpressions(cel))
	ctx := context.Background()

	wf := &store.Workflow{ID: uuid.New().String(), Name: "wf"}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))
	step := &store.WorkflowStep{
		ID: uuid.New().String(), WorkflowID: wf.ID,
		ToolID: "guarded", StepOrder: 0,
		ConditionalExpression: `input.enabled == true`,
	}
	require.NoError(t, h.store.CreateWorkflowStep(ctx, step))

	exec, err := h.engine.Start(ctx, wf.ID, map[string]any{"enabled": true})
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	assert.Equal(t, []string{"guarded"}, h.runner.calls)
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to schema.ExecutionStatus
		ok       bool
	}{
		{schema.StatusPending, schema.StatusRunning, true},
		{schema.StatusPending, schema.StatusCompleted, true},
		{schema.StatusPending, schema.StatusFailed, true},
		{schema.StatusRunning, schema.StatusCompleted, true},
		{schema.StatusRunning, schema.StatusFailed, true},
		{schema.StatusRunning, schema.StatusPending, false},
		{schema.StatusCompleted, schema.StatusRunning, false},
		{schema.StatusCompleted, schema.StatusFailed, false},
		{schema.StatusFailed, schema.StatusRunning, false},
		{schema.StatusFailed, schema.StatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
		err := Transition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err)
		} else {
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
		}
	}
}
