package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

type createAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
	CreatedBy   string `json:"created_by"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "agent name is required"))
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	agent := &store.Agent{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		IsActive:    active,
		CreatedBy:   req.CreatedBy,
	}
	if err := s.deps.Store.CreateAgent(r.Context(), agent); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.deps.Store.GetAgent(r.Context(), agent.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Store.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.deps.Store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var update store.AgentUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Store.UpdateAgent(r.Context(), id, update); err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.deps.Store.GetAgent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runAgentRequest struct {
	Query string `json:"query"`
}

// handleRunAgent runs an agent synchronously. Invocation failures come back
// as a failed run record, not as an HTTP error.
func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	var req runAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Query == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "query is required"))
		return
	}
	run, err := s.deps.Agents.Run(r.Context(), r.PathValue("id"), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListAgentRuns(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if _, err := s.deps.Store.GetAgent(r.Context(), agentID); err != nil {
		writeError(w, err)
		return
	}
	runs, err := s.deps.Store.ListAgentExecutions(r.Context(), agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}
