package engine

import "github.com/agentplate/agentplate/pkg/schema"

// validTransitions encodes the execution lifecycle shared by workflow
// executions and step executions. pending may complete directly so a
// workflow with no steps can finish without a running phase. Terminal
// states admit nothing.
var validTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.StatusPending:   {schema.StatusRunning, schema.StatusCompleted, schema.StatusFailed},
	schema.StatusRunning:   {schema.StatusCompleted, schema.StatusFailed},
	schema.StatusCompleted: {},
	schema.StatusFailed:    {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to schema.ExecutionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates a status change, returning INVALID_TRANSITION with
// the offending pair when the lifecycle forbids it.
func Transition(from, to schema.ExecutionStatus) error {
	if !CanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid transition: %s -> %s", from, to).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}
	return nil
}
