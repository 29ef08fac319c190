package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/internal/tools"
	"github.com/agentplate/agentplate/pkg/schema"
)

// Runs a workflow through the real dispatcher and gateways: a database
// insert followed by an api call, backed by a libSQL file and an httptest
// server rather than fakes.
func TestStart_DatabaseThenAPIEndToEnd(t *testing.T) {
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "engine.db")
	s, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	_, err = s.DB().Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer TEXT, total REAL)`)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	insertTool := &store.Tool{
		ID:            uuid.New().String(),
		Name:          "insert-order",
		Type:          schema.ToolTypeDatabase,
		Configuration: map[string]any{"table": "orders", "operation": "insert"},
	}
	require.NoError(t, s.CreateTool(ctx, insertTool))

	notifyTool := &store.Tool{
		ID:            uuid.New().String(),
		Name:          "notify",
		Type:          schema.ToolTypeAPI,
		Configuration: map[string]any{"url": srv.URL},
	}
	require.NoError(t, s.CreateTool(ctx, notifyTool))

	wf := &store.Workflow{ID: uuid.New().String(), Name: "order-intake"}
	require.NoError(t, s.CreateWorkflow(ctx, wf))
	stepIDs := make([]string, 2)
	for i, toolID := range []string{insertTool.ID, notifyTool.ID} {
		step := &store.WorkflowStep{
			ID:         uuid.New().String(),
			WorkflowID: wf.ID,
			ToolID:     toolID,
			StepOrder:  i,
		}
		require.NoError(t, s.CreateWorkflowStep(ctx, step))
		stepIDs[i] = step.ID
	}

	eng := New(s, tools.NewDispatcher(s, s.DB(), nil, nil))

	exec, err := eng.Start(ctx, wf.ID, map[string]any{"customer": "acme", "total": 99.5})
	require.NoError(t, err)
	assert.Equal(t, schema.StatusCompleted, exec.Status)
	require.NotNil(t, exec.CompletedAt)

	records, err := s.ListStepExecutions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, schema.StatusCompleted, record.Status)
	}

	// The insert gateway reports the row it wrote. Outputs round-trip
	// through JSON in the store, so numbers come back as float64.
	assert.EqualValues(t, 1, records[0].Output["count"])
	row := records[0].Output["rows"].([]any)[0].(map[string]any)
	assert.Equal(t, "acme", row["customer"])

	// The api step returns the parsed response body.
	assert.Equal(t, map[string]any{"ok": true}, records[1].Output)
	assert.Equal(t, map[string]any{"ok": true}, exec.Output[stepIDs[1]])

	// The row really landed in the user table.
	var customer string
	require.NoError(t, s.DB().QueryRow(`SELECT customer FROM orders`).Scan(&customer))
	assert.Equal(t, "acme", customer)
}
