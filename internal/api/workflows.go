package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

type createWorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "workflow name is required"))
		return
	}
	wf := &store.Workflow{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	}
	if err := s.deps.Store.CreateWorkflow(r.Context(), wf); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.deps.Store.GetWorkflow(r.Context(), wf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	filter := store.WorkflowFilter{
		CreatedBy: r.URL.Query().Get("created_by"),
		Limit:     limit,
		Offset:    offset,
	}
	workflows, err := s.deps.Store.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows, "count": len(workflows)})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var update store.WorkflowUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Store.UpdateWorkflow(r.Context(), id, update); err != nil {
		writeError(w, err)
		return
	}
	wf, err := s.deps.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createStepRequest struct {
	ToolID                string         `json:"tool_id"`
	StepOrder             int            `json:"step_order"`
	InputMapping          map[string]any `json:"input_mapping"`
	OutputMapping         map[string]any `json:"output_mapping"`
	ValidationRules       map[string]any `json:"validation_rules"`
	Dependencies          []string       `json:"dependencies"`
	ConditionalExpression string         `json:"conditional_expression"`
}

func (s *Server) handleCreateStep(w http.ResponseWriter, r *http.Request) {
	var req createStepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workflowID := r.PathValue("id")
	if _, err := s.deps.Store.GetWorkflow(r.Context(), workflowID); err != nil {
		writeError(w, err)
		return
	}
	if req.StepOrder < 0 {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "step_order must be non-negative"))
		return
	}
	step := &store.WorkflowStep{
		ID:                    uuid.NewString(),
		WorkflowID:            workflowID,
		ToolID:                req.ToolID,
		StepOrder:             req.StepOrder,
		InputMapping:          req.InputMapping,
		OutputMapping:         req.OutputMapping,
		ValidationRules:       req.ValidationRules,
		Dependencies:          req.Dependencies,
		ConditionalExpression: req.ConditionalExpression,
	}
	if err := s.deps.Store.CreateWorkflowStep(r.Context(), step); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.deps.Store.GetWorkflowStep(r.Context(), step.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	if _, err := s.deps.Store.GetWorkflow(r.Context(), workflowID); err != nil {
		writeError(w, err)
		return
	}
	steps, err := s.deps.Store.ListWorkflowSteps(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps, "count": len(steps)})
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	var update store.WorkflowStepUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Store.UpdateWorkflowStep(r.Context(), id, update); err != nil {
		writeError(w, err)
		return
	}
	step, err := s.deps.Store.GetWorkflowStep(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteWorkflowStep(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateWorkflow runs the structural checks over a workflow's steps
// without executing anything. A passing workflow returns {"valid": true};
// a failing one returns the validation error payload with status 400.
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	if _, err := s.deps.Store.GetWorkflow(r.Context(), workflowID); err != nil {
		writeError(w, err)
		return
	}
	steps, err := s.deps.Store.ListWorkflowSteps(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Workflows.ValidateSteps(r.Context(), steps); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "steps": len(steps)})
}
