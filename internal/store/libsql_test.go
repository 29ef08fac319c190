package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplate/agentplate/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedWorkflow(t *testing.T, s Store) *Workflow {
	t.Helper()
	wf := &Workflow{
		ID:   uuid.New().String(),
		Name: "test-workflow",
	}
	require.NoError(t, s.CreateWorkflow(context.Background(), wf))
	return wf
}

func seedTool(t *testing.T, s Store, toolType schema.ToolType, config map[string]any) *Tool {
	t.Helper()
	tool := &Tool{
		ID:            uuid.New().String(),
		Name:          "tool-" + uuid.New().String()[:8],
		Type:          toolType,
		Configuration: config,
	}
	require.NoError(t, s.CreateTool(context.Background(), tool))
	return tool
}

func TestNewLibSQLStoreAcceptsBarePath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bare.db")
	s, err := NewLibSQLStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	seedWorkflow(t, s)
}

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "file:/tmp/agentplate.db", normalizeDSN("/tmp/agentplate.db"))
	assert.Equal(t, "file:/tmp/agentplate.db", normalizeDSN("file:/tmp/agentplate.db"))
	assert.Equal(t, "libsql://db.example.turso.io", normalizeDSN("libsql://db.example.turso.io"))
	assert.Equal(t, "https://db.example.turso.io", normalizeDSN("https://db.example.turso.io"))
}

// --- Workflows ---

func TestCreateAndGetWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := &Workflow{
		ID:          uuid.New().String(),
		Name:        "order-pipeline",
		Description: "imports orders nightly",
		CreatedBy:   "user-1",
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, "order-pipeline", got.Name)
	assert.Equal(t, "imports orders nightly", got.Description)
	assert.Equal(t, "user-1", got.CreatedBy)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorkflow(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestUpdateWorkflow_Partial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	name := "renamed"
	require.NoError(t, s.UpdateWorkflow(ctx, wf.ID, WorkflowUpdate{Name: &name}))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, wf.Description, got.Description)
}

func TestDeleteWorkflow_CascadesSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)
	tool := seedTool(t, s, schema.ToolTypeAPI, map[string]any{"url": "https://example.com"})

	step := &WorkflowStep{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		ToolID:     tool.ID,
		StepOrder:  1,
	}
	require.NoError(t, s.CreateWorkflowStep(ctx, step))
	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))

	steps, err := s.ListWorkflowSteps(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestListWorkflows_FilterByCreator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, creator := range []string{"alice", "alice", "bob"} {
		wf := &Workflow{ID: uuid.New().String(), Name: "wf", CreatedBy: creator}
		require.NoError(t, s.CreateWorkflow(ctx, wf))
	}

	got, err := s.ListWorkflows(ctx, WorkflowFilter{CreatedBy: "alice"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// --- Workflow steps ---

func TestWorkflowSteps_OrderedAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)
	tool := seedTool(t, s, schema.ToolTypeCustom, map[string]any{"functionName": "fn"})

	for _, order := range []int{3, 1, 2} {
		step := &WorkflowStep{
			ID:           uuid.New().String(),
			WorkflowID:   wf.ID,
			ToolID:       tool.ID,
			StepOrder:    order,
			InputMapping: map[string]any{"source": "input.query"},
			Dependencies: []string{"step-a"},
		}
		require.NoError(t, s.CreateWorkflowStep(ctx, step))
	}

	steps, err := s.ListWorkflowSteps(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.Equal(t, 2, steps[1].StepOrder)
	assert.Equal(t, 3, steps[2].StepOrder)
	assert.Equal(t, "input.query", steps[0].InputMapping["source"])
	assert.Equal(t, []string{"step-a"}, steps[0].Dependencies)
}

func TestCreateWorkflowStep_DuplicateOrderRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	first := &WorkflowStep{ID: uuid.New().String(), WorkflowID: wf.ID, StepOrder: 1}
	require.NoError(t, s.CreateWorkflowStep(ctx, first))

	dup := &WorkflowStep{ID: uuid.New().String(), WorkflowID: wf.ID, StepOrder: 1}
	assert.Error(t, s.CreateWorkflowStep(ctx, dup))
}

func TestUpdateWorkflowStep_ConditionalExpression(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	step := &WorkflowStep{ID: uuid.New().String(), WorkflowID: wf.ID, StepOrder: 1}
	require.NoError(t, s.CreateWorkflowStep(ctx, step))

	expr := `input.amount > 100`
	require.NoError(t, s.UpdateWorkflowStep(ctx, step.ID, WorkflowStepUpdate{ConditionalExpression: &expr}))

	got, err := s.GetWorkflowStep(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, expr, got.ConditionalExpression)
}

// --- Tools ---

func TestCreateAndGetTool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tool := seedTool(t, s, schema.ToolTypeAPI, map[string]any{
		"url":    "https://api.example.com/v1",
		"method": "POST",
	})

	got, err := s.GetTool(ctx, tool.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ToolTypeAPI, got.Type)
	assert.Equal(t, "https://api.example.com/v1", got.Configuration["url"])
	assert.Equal(t, "POST", got.Configuration["method"])
}

func TestListTools_FilterByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedTool(t, s, schema.ToolTypeAPI, map[string]any{"url": "https://a"})
	seedTool(t, s, schema.ToolTypeDatabase, map[string]any{"table": "orders", "operation": "select"})
	seedTool(t, s, schema.ToolTypeDatabase, map[string]any{"table": "users", "operation": "select"})

	dbType := schema.ToolTypeDatabase
	got, err := s.ListTools(ctx, ToolFilter{Type: &dbType})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// --- Workflow executions ---

func TestWorkflowExecution_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	exec := &WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		Status:     schema.StatusPending,
		Input:      map[string]any{"query": "hello"},
	}
	require.NoError(t, s.CreateWorkflowExecution(ctx, exec))

	got, err := s.GetWorkflowExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusPending, got.Status)
	assert.Equal(t, "hello", got.Input["query"])
	assert.Nil(t, got.StartedAt)

	now := time.Now().UTC()
	running := schema.StatusRunning
	step := 1
	require.NoError(t, s.UpdateWorkflowExecution(ctx, exec.ID, WorkflowExecutionUpdate{
		Status:      &running,
		CurrentStep: &step,
		StartedAt:   &now,
	}))

	got, err = s.GetWorkflowExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusRunning, got.Status)
	assert.Equal(t, 1, got.CurrentStep)
	require.NotNil(t, got.StartedAt)

	completed := schema.StatusCompleted
	require.NoError(t, s.UpdateWorkflowExecution(ctx, exec.ID, WorkflowExecutionUpdate{
		Status:      &completed,
		Output:      map[string]any{"result": "ok"},
		CompletedAt: &now,
	}))

	got, err = s.GetWorkflowExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, got.Status)
	assert.Equal(t, "ok", got.Output["result"])
	assert.NotNil(t, got.CompletedAt)
}

func TestListWorkflowExecutions_FilterByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	for _, status := range []schema.ExecutionStatus{schema.StatusPending, schema.StatusFailed, schema.StatusFailed} {
		exec := &WorkflowExecution{ID: uuid.New().String(), WorkflowID: wf.ID, Status: status}
		require.NoError(t, s.CreateWorkflowExecution(ctx, exec))
	}

	failed := schema.StatusFailed
	got, err := s.ListWorkflowExecutions(ctx, ExecutionFilter{WorkflowID: wf.ID, Status: &failed})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// --- Step executions ---

func TestCreateStepExecutions_BulkAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)
	tool := seedTool(t, s, schema.ToolTypeCustom, map[string]any{"functionName": "fn"})

	exec := &WorkflowExecution{ID: uuid.New().String(), WorkflowID: wf.ID, Status: schema.StatusPending}
	require.NoError(t, s.CreateWorkflowExecution(ctx, exec))

	var stepIDs []string
	var records []*StepExecution
	for _, order := range []int{2, 1, 3} {
		step := &WorkflowStep{ID: uuid.New().String(), WorkflowID: wf.ID, ToolID: tool.ID, StepOrder: order}
		require.NoError(t, s.CreateWorkflowStep(ctx, step))
		stepIDs = append(stepIDs, step.ID)
		records = append(records, &StepExecution{
			ID:                  uuid.New().String(),
			WorkflowExecutionID: exec.ID,
			WorkflowStepID:      step.ID,
			StepOrder:           order,
			Status:              schema.StatusPending,
		})
	}
	require.NoError(t, s.CreateStepExecutions(ctx, records))

	got, err := s.ListStepExecutions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].StepOrder)
	assert.Equal(t, 3, got[2].StepOrder)

	byStep, err := s.GetStepExecutionByStep(ctx, exec.ID, stepIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, byStep.StepOrder)
}

func TestUpdateStepExecution_FailureFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	exec := &WorkflowExecution{ID: uuid.New().String(), WorkflowID: wf.ID, Status: schema.StatusRunning}
	require.NoError(t, s.CreateWorkflowExecution(ctx, exec))

	step := &WorkflowStep{ID: uuid.New().String(), WorkflowID: wf.ID, StepOrder: 1}
	require.NoError(t, s.CreateWorkflowStep(ctx, step))

	se := &StepExecution{
		ID:                  uuid.New().String(),
		WorkflowExecutionID: exec.ID,
		WorkflowStepID:      step.ID,
		StepOrder:           1,
		Status:              schema.StatusRunning,
	}
	require.NoError(t, s.CreateStepExecutions(ctx, []*StepExecution{se}))

	failed := schema.StatusFailed
	errMsg := "connection refused"
	trace := "dial tcp: connection refused"
	now := time.Now().UTC()
	require.NoError(t, s.UpdateStepExecution(ctx, se.ID, StepExecutionUpdate{
		Status:      &failed,
		Error:       &errMsg,
		StackTrace:  &trace,
		Logs:        []string{"attempt 1 failed"},
		CompletedAt: &now,
	}))

	got, err := s.GetStepExecution(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusFailed, got.Status)
	assert.Equal(t, "connection refused", got.Error)
	assert.Equal(t, trace, got.StackTrace)
	assert.Equal(t, []string{"attempt 1 failed"}, got.Logs)
	assert.NotNil(t, got.CompletedAt)
}

// --- Scheduled runs ---

func TestScheduledRun_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	run := &ScheduledRun{
		ID:             uuid.New().String(),
		WorkflowID:     wf.ID,
		CronExpression: "0 3 * * *",
		Input:          map[string]any{"source": "nightly"},
		Enabled:        true,
	}
	require.NoError(t, s.CreateScheduledRun(ctx, run))

	got, err := s.GetScheduledRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", got.CronExpression)
	assert.True(t, got.Enabled)
	assert.Equal(t, "nightly", got.Input["source"])

	enabled := true
	runs, err := s.ListScheduledRuns(ctx, ScheduledRunFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	status := "completed"
	now := time.Now().UTC()
	require.NoError(t, s.UpdateScheduledRun(ctx, run.ID, ScheduledRunUpdate{
		LastRunAt:     &now,
		LastRunStatus: &status,
	}))

	got, err = s.GetScheduledRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.LastRunStatus)
	assert.NotNil(t, got.LastRunAt)
}

// --- Secrets ---

func TestSecrets_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreSecret(ctx, "API_KEY", []byte("ciphertext-1")))
	require.NoError(t, s.StoreSecret(ctx, "DB_PASS", []byte("ciphertext-2")))

	got, err := s.GetSecret(ctx, "API_KEY")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext-1"), got)

	// Upsert replaces.
	require.NoError(t, s.StoreSecret(ctx, "API_KEY", []byte("ciphertext-3")))
	got, err = s.GetSecret(ctx, "API_KEY")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext-3"), got)

	keys, err := s.ListSecrets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"API_KEY", "DB_PASS"}, keys)

	require.NoError(t, s.DeleteSecret(ctx, "DB_PASS"))
	_, err = s.GetSecret(ctx, "DB_PASS")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
