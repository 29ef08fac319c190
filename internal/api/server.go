// Package api exposes the JSON HTTP surface: workflow and tool
// definitions, execution control, agent runs, schedules and secrets.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/agentplate/agentplate/internal/secrets"
	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/internal/validation"
)

// ExecutionEngine is the workflow control surface the API drives.
// Satisfied by engine.Engine.
type ExecutionEngine interface {
	Start(ctx context.Context, workflowID string, input map[string]any) (*store.WorkflowExecution, error)
	Continue(ctx context.Context, executionID string) (*store.WorkflowExecution, error)
}

// AgentRunner runs an agent. Satisfied by agents.Runner.
type AgentRunner interface {
	Run(ctx context.Context, agentID, query string) (*store.AgentExecution, error)
}

// CronSource computes cron fire times. Satisfied by schedule.Runner.
type CronSource interface {
	NextRun(expr string, from time.Time) (time.Time, error)
}

// Deps holds the server's collaborators.
type Deps struct {
	Store     store.Store
	Engine    ExecutionEngine
	Agents    AgentRunner
	Vault     secrets.Vault
	Cron      CronSource
	Tools     *validation.ToolValidator
	Workflows *validation.WorkflowValidator
	Logger    *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	deps Deps
}

// NewServer wires a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Server{deps: deps}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PATCH /api/workflows/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/steps", s.handleCreateStep)
	mux.HandleFunc("GET /api/workflows/{id}/steps", s.handleListSteps)
	mux.HandleFunc("POST /api/workflows/{id}/validate", s.handleValidateWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/diagram", s.handleWorkflowDiagram)
	mux.HandleFunc("PATCH /api/steps/{id}", s.handleUpdateStep)
	mux.HandleFunc("DELETE /api/steps/{id}", s.handleDeleteStep)

	mux.HandleFunc("POST /api/tools", s.handleCreateTool)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/tools/{id}", s.handleGetTool)
	mux.HandleFunc("PATCH /api/tools/{id}", s.handleUpdateTool)
	mux.HandleFunc("DELETE /api/tools/{id}", s.handleDeleteTool)

	mux.HandleFunc("POST /api/workflows/{id}/executions", s.handleStartExecution)
	mux.HandleFunc("GET /api/executions", s.handleListExecutions)
	mux.HandleFunc("GET /api/executions/{id}", s.handleGetExecution)
	mux.HandleFunc("POST /api/executions/{id}/continue", s.handleContinueExecution)
	mux.HandleFunc("GET /api/executions/{id}/steps", s.handleListStepExecutions)

	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PATCH /api/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)
	mux.HandleFunc("POST /api/agents/{id}/runs", s.handleRunAgent)
	mux.HandleFunc("GET /api/agents/{id}/runs", s.handleListAgentRuns)

	mux.HandleFunc("POST /api/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("GET /api/schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("PATCH /api/schedules/{id}", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)

	mux.HandleFunc("GET /api/secrets", s.handleListSecrets)
	mux.HandleFunc("PUT /api/secrets/{key}", s.handlePutSecret)
	mux.HandleFunc("DELETE /api/secrets/{key}", s.handleDeleteSecret)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
