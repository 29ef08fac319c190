package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

type createScheduleRequest struct {
	WorkflowID     string         `json:"workflow_id"`
	CronExpression string         `json:"cron_expression"`
	Input          map[string]any `json:"input"`
	Enabled        *bool          `json:"enabled"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.WorkflowID == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "workflow_id is required"))
		return
	}
	if _, err := s.deps.Store.GetWorkflow(r.Context(), req.WorkflowID); err != nil {
		writeError(w, err)
		return
	}
	next, err := s.deps.Cron.NextRun(req.CronExpression, time.Now().UTC())
	if err != nil {
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression: %s", err))
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	run := &store.ScheduledRun{
		ID:             uuid.NewString(),
		WorkflowID:     req.WorkflowID,
		CronExpression: req.CronExpression,
		Input:          req.Input,
		Enabled:        enabled,
		NextRunAt:      &next,
	}
	if err := s.deps.Store.CreateScheduledRun(r.Context(), run); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.deps.Store.GetScheduledRun(r.Context(), run.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduledRunFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Limit:      queryInt(r, "limit", 0),
	}
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled := raw == "true"
		filter.Enabled = &enabled
	}
	runs, err := s.deps.Store.ListScheduledRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": runs, "count": len(runs)})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Store.GetScheduledRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type updateScheduleRequest struct {
	CronExpression *string        `json:"cron_expression"`
	Input          map[string]any `json:"input"`
	Enabled        *bool          `json:"enabled"`
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	update := store.ScheduledRunUpdate{
		CronExpression: req.CronExpression,
		Input:          req.Input,
		Enabled:        req.Enabled,
	}
	// A new expression resets the next fire time.
	if req.CronExpression != nil {
		next, err := s.deps.Cron.NextRun(*req.CronExpression, time.Now().UTC())
		if err != nil {
			writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression: %s", err))
			return
		}
		update.NextRunAt = &next
	}
	if err := s.deps.Store.UpdateScheduledRun(r.Context(), id, update); err != nil {
		writeError(w, err)
		return
	}
	run, err := s.deps.Store.GetScheduledRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteScheduledRun(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
