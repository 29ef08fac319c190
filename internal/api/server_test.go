package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentplate/agentplate/internal/agents"
	"github.com/agentplate/agentplate/internal/blob"
	"github.com/agentplate/agentplate/internal/engine"
	"github.com/agentplate/agentplate/internal/expressions"
	"github.com/agentplate/agentplate/internal/functions"
	"github.com/agentplate/agentplate/internal/schedule"
	"github.com/agentplate/agentplate/internal/secrets"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/internal/tools"
	"github.com/agentplate/agentplate/internal/validation"
	"github.com/agentplate/agentplate/pkg/schema"
)

type testEnv struct {
	store  *store.MemoryStore
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s := store.NewMemoryStore()

	files, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	registry := functions.NewRegistry()
	require.NoError(t, registry.Register("echo", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"echo": input}, nil
	}))
	require.NoError(t, registry.Register("agent-service", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"answer": "42"}, nil
	}))

	dispatcher := tools.NewDispatcher(s, nil, files, registry)

	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	eng := engine.New(s, dispatcher, engine.WithExpressions(cel))

	vault, err := secrets.NewAESVault(s, secrets.Config{Key: bytes.Repeat([]byte("k"), 32)})
	require.NoError(t, err)

	toolValidator, err := validation.NewToolValidator()
	require.NoError(t, err)

	srv := NewServer(Deps{
		Store:     s,
		Engine:    eng,
		Agents:    agents.NewRunner(s, registry, nil),
		Vault:     vault,
		Cron:      schedule.NewRunner(s, eng, nil, time.Minute),
		Tools:     toolValidator,
		Workflows: validation.NewWorkflowValidator(s, cel),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{store: s, server: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestWorkflowCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/workflows", map[string]any{
		"name":        "etl",
		"description": "nightly load",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "etl", body["name"])

	resp, body = env.do(t, http.MethodGet, "/api/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "nightly load", body["description"])

	resp, body = env.do(t, http.MethodPatch, "/api/workflows/"+id, map[string]any{"name": "etl-v2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "etl-v2", body["name"])

	resp, body = env.do(t, http.MethodGet, "/api/workflows", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])

	resp, _ = env.do(t, http.MethodDelete, "/api/workflows/"+id, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/workflows/"+id, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, string(schema.ErrCodeNotFound), body["code"])
}

func TestCreateWorkflowRequiresName(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/workflows", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(schema.ErrCodeValidation), body["code"])
}

func TestToolValidationOnCreate(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/tools", map[string]any{
		"name": "orders-api",
		"type": "api",
		"configuration": map[string]any{
			"url":    "https://example.com/orders",
			"method": "POST",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// method outside the schema enum
	resp, body := env.do(t, http.MethodPost, "/api/tools", map[string]any{
		"name": "bad-api",
		"type": "api",
		"configuration": map[string]any{
			"url":    "https://example.com",
			"method": "YANK",
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(schema.ErrCodeValidation), body["code"])

	resp, _ = env.do(t, http.MethodPost, "/api/tools", map[string]any{
		"name":          "mystery",
		"type":          "telepathy",
		"configuration": map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToolUpdateRevalidatesConfig(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/tools", map[string]any{
		"name":          "fn",
		"type":          "custom",
		"configuration": map[string]any{"functionName": "echo"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)

	// dropping functionName must be rejected
	resp, _ = env.do(t, http.MethodPatch, "/api/tools/"+id, map[string]any{
		"configuration": map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPatch, "/api/tools/"+id, map[string]any{
		"configuration": map[string]any{"functionName": "other"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := body["configuration"].(map[string]any)
	require.Equal(t, "other", cfg["functionName"])
}

func seedCustomWorkflow(t *testing.T, env *testEnv) (workflowID string) {
	t.Helper()
	resp, body := env.do(t, http.MethodPost, "/api/tools", map[string]any{
		"name":          "echo-tool",
		"type":          "custom",
		"configuration": map[string]any{"functionName": "echo"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	toolID := body["id"].(string)

	resp, body = env.do(t, http.MethodPost, "/api/workflows", map[string]any{"name": "wf"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	workflowID = body["id"].(string)

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/workflows/%s/steps", workflowID), map[string]any{
		"tool_id":    toolID,
		"step_order": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return workflowID
}

func TestStartExecutionRunsWorkflow(t *testing.T) {
	env := newTestEnv(t)
	workflowID := seedCustomWorkflow(t, env)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/workflows/%s/executions", workflowID), map[string]any{
		"input": map[string]any{"city": "Valdivia"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "completed", body["status"])
	execID := body["id"].(string)

	resp, body = env.do(t, http.MethodGet, "/api/executions/"+execID+"/steps", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])
	step := body["step_executions"].([]any)[0].(map[string]any)
	require.Equal(t, "completed", step["status"])

	resp, body = env.do(t, http.MethodGet, "/api/executions?status=completed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])
}

func TestContinueTerminalExecutionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	workflowID := seedCustomWorkflow(t, env)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/workflows/%s/executions", workflowID), map[string]any{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	execID := body["id"].(string)

	resp, body = env.do(t, http.MethodPost, "/api/executions/"+execID+"/continue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "completed", body["status"])
}

func TestValidateWorkflowEndpoint(t *testing.T) {
	env := newTestEnv(t)
	workflowID := seedCustomWorkflow(t, env)

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/workflows/%s/validate", workflowID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["valid"])

	// a step bound to a missing tool fails validation
	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/api/workflows/%s/steps", workflowID), map[string]any{
		"tool_id":    "nope",
		"step_order": 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/api/workflows/%s/validate", workflowID), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(schema.ErrCodeValidation), body["code"])
}

func TestAgentRunEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/agents", map[string]any{"name": "helper"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	agentID := body["id"].(string)
	require.Equal(t, true, body["is_active"])

	resp, body = env.do(t, http.MethodPost, "/api/agents/"+agentID+"/runs", map[string]any{"query": "what now"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "completed", body["status"])
	output := body["output"].(map[string]any)
	require.Equal(t, "42", output["answer"])

	resp, body = env.do(t, http.MethodGet, "/api/agents/"+agentID+"/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])

	resp, _ = env.do(t, http.MethodPost, "/api/agents/"+agentID+"/runs", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScheduleCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/workflows", map[string]any{"name": "wf"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	workflowID := body["id"].(string)

	resp, body = env.do(t, http.MethodPost, "/api/schedules", map[string]any{
		"workflow_id":     workflowID,
		"cron_expression": "*/5 * * * *",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, body["next_run_at"])
	scheduleID := body["id"].(string)

	resp, body = env.do(t, http.MethodPost, "/api/schedules", map[string]any{
		"workflow_id":     workflowID,
		"cron_expression": "not a cron",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(schema.ErrCodeValidation), body["code"])

	resp, body = env.do(t, http.MethodPatch, "/api/schedules/"+scheduleID, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["enabled"])

	resp, _ = env.do(t, http.MethodDelete, "/api/schedules/"+scheduleID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSecretsAreWriteOnly(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPut, "/api/secrets/api-token", map[string]any{"value": "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/secrets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.ElementsMatch(t, []any{"api-token"}, body["keys"])
	// plaintext never leaves the vault
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hunter2")

	resp, _ = env.do(t, http.MethodDelete, "/api/secrets/api-token", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/secrets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, body["count"])
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestWorkflowDiagramEndpoint(t *testing.T) {
	env := newTestEnv(t)
	workflowID := seedCustomWorkflow(t, env)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/workflows/"+workflowID+"/diagram", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "graph TD")
	require.Contains(t, buf.String(), "echo-tool")

	resp2, body := env.do(t, http.MethodGet, "/api/workflows/"+workflowID+"/diagram?format=svg", nil)
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	require.Equal(t, string(schema.ErrCodeValidation), body["code"])
}
