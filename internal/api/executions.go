package api

import (
	"net/http"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

type startExecutionRequest struct {
	Input map[string]any `json:"input"`
}

// handleStartExecution kicks off a workflow run synchronously and returns
// the settled execution record. Business step failures do not surface as
// HTTP errors; only infrastructural failures do.
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req startExecutionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	exec, err := s.deps.Engine.Start(r.Context(), r.PathValue("id"), req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	filter := store.ExecutionFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := schema.ExecutionStatus(raw)
		if !schema.ValidStatus(status) {
			writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown status %q", raw))
			return
		}
		filter.Status = &status
	}
	execs, err := s.deps.Store.ListWorkflowExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Store.GetWorkflowExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleContinueExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Engine.Continue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleListStepExecutions(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("id")
	if _, err := s.deps.Store.GetWorkflowExecution(r.Context(), executionID); err != nil {
		writeError(w, err)
		return
	}
	steps, err := s.deps.Store.ListStepExecutions(r.Context(), executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"step_executions": steps, "count": len(steps)})
}
