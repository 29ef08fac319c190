package api

import (
	"net/http"

	"github.com/agentplate/agentplate/internal/diagram"
	"github.com/agentplate/agentplate/pkg/schema"
)

// handleWorkflowDiagram renders a workflow's step graph. format is mermaid
// (default) or png; execution_id overlays that run's step statuses.
func (s *Server) handleWorkflowDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflow, err := s.deps.Store.GetWorkflow(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	steps, err := s.deps.Store.ListWorkflowSteps(ctx, workflow.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	toolNames := make(map[string]string)
	for _, step := range steps {
		if step.ToolID == "" {
			continue
		}
		if _, seen := toolNames[step.ToolID]; seen {
			continue
		}
		tool, err := s.deps.Store.GetTool(ctx, step.ToolID)
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeNotFound) {
				continue
			}
			writeError(w, err)
			return
		}
		toolNames[step.ToolID] = tool.Name
	}

	var statuses map[string]string
	if executionID := r.URL.Query().Get("execution_id"); executionID != "" {
		exec, err := s.deps.Store.GetWorkflowExecution(ctx, executionID)
		if err != nil {
			writeError(w, err)
			return
		}
		if exec.WorkflowID != workflow.ID {
			writeError(w, schema.NewErrorf(schema.ErrCodeValidation,
				"execution %s does not belong to workflow %s", executionID, workflow.ID))
			return
		}
		records, err := s.deps.Store.ListStepExecutions(ctx, executionID)
		if err != nil {
			writeError(w, err)
			return
		}
		statuses = make(map[string]string, len(records))
		for _, record := range records {
			statuses[record.WorkflowStepID] = string(record.Status)
		}
	}

	model := diagram.Build(workflow, steps, toolNames, statuses)

	switch format := r.URL.Query().Get("format"); format {
	case "", "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(diagram.RenderMermaid(model)))
	case "png":
		img, err := diagram.RenderPNG(ctx, model)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write(img)
	default:
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format))
	}
}
