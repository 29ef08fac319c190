package engine

import (
	"context"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

// ExecutionContext is the per-pass view of an execution handed to step
// dispatch and condition evaluation. It is rebuilt before every step so
// later steps observe the outputs of earlier ones.
type ExecutionContext struct {
	WorkflowID  string
	ExecutionID string

	// GlobalVariables is the execution's input document.
	GlobalVariables map[string]any

	// PreviousStepOutputs holds outputs of completed steps keyed by
	// WorkflowStep id.
	PreviousStepOutputs map[string]map[string]any

	// CurrentStepOrder is the step_order about to run.
	CurrentStepOrder int
}

// buildContext assembles an ExecutionContext from the execution record and
// its step execution rows.
func buildContext(ctx context.Context, s store.Store, exec *store.WorkflowExecution, stepOrder int) (*ExecutionContext, error) {
	stepExecs, err := s.ListStepExecutions(ctx, exec.ID)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]map[string]any)
	for _, se := range stepExecs {
		if se.Status == schema.StatusCompleted && se.Output != nil {
			outputs[se.WorkflowStepID] = se.Output
		}
	}

	return &ExecutionContext{
		WorkflowID:          exec.WorkflowID,
		ExecutionID:         exec.ID,
		GlobalVariables:     schema.NormalizeDocument(exec.Input),
		PreviousStepOutputs: outputs,
		CurrentStepOrder:    stepOrder,
	}, nil
}

// expressionData shapes the context for CEL evaluation.
func (ec *ExecutionContext) expressionData() map[string]any {
	steps := make(map[string]any, len(ec.PreviousStepOutputs))
	for id, out := range ec.PreviousStepOutputs {
		steps[id] = out
	}
	return map[string]any{
		"input": ec.GlobalVariables,
		"steps": steps,
		"execution": map[string]any{
			"id":           ec.ExecutionID,
			"workflow_id":  ec.WorkflowID,
			"current_step": ec.CurrentStepOrder,
		},
	}
}
