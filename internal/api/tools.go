package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

type createToolRequest struct {
	Name          string          `json:"name"`
	Type          schema.ToolType `json:"type"`
	Configuration map[string]any  `json:"configuration"`
	CreatedBy     string          `json:"created_by"`
}

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var req createToolRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "tool name is required"))
		return
	}
	if !schema.ValidToolType(req.Type) {
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown tool type %q", req.Type))
		return
	}
	if err := s.deps.Tools.ValidateToolConfig(req.Type, req.Configuration); err != nil {
		writeError(w, err)
		return
	}
	tool := &store.Tool{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Type:          req.Type,
		Configuration: req.Configuration,
		CreatedBy:     req.CreatedBy,
	}
	if err := s.deps.Store.CreateTool(r.Context(), tool); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.deps.Store.GetTool(r.Context(), tool.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	filter := store.ToolFilter{
		CreatedBy: r.URL.Query().Get("created_by"),
		Limit:     queryInt(r, "limit", 0),
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		tt := schema.ToolType(raw)
		if !schema.ValidToolType(tt) {
			writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown tool type %q", raw))
			return
		}
		filter.Type = &tt
	}
	tools, err := s.deps.Store.ListTools(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools, "count": len(tools)})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.deps.Store.GetTool(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	var update store.ToolUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	current, err := s.deps.Store.GetTool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// Re-validate the configuration against the effective type.
	effType := current.Type
	if update.Type != nil {
		if !schema.ValidToolType(*update.Type) {
			writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown tool type %q", *update.Type))
			return
		}
		effType = *update.Type
	}
	effConfig := current.Configuration
	if update.Configuration != nil {
		effConfig = update.Configuration
	}
	if update.Type != nil || update.Configuration != nil {
		if err := s.deps.Tools.ValidateToolConfig(effType, effConfig); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := s.deps.Store.UpdateTool(r.Context(), id, update); err != nil {
		writeError(w, err)
		return
	}
	tool, err := s.deps.Store.GetTool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteTool(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
