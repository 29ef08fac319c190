package validation

import (
	"context"
	"sort"

	"github.com/agentplate/agentplate/internal/store"
	"github.com/agentplate/agentplate/pkg/schema"
)

// ExpressionChecker compiles a conditional expression without running it.
// Satisfied by expressions.CELEngine.
type ExpressionChecker interface {
	Compile(expression string) error
}

// WorkflowValidator checks the steps of a workflow as a set: unique
// orders, resolvable tool references, well-formed dependency graphs and
// compilable conditionals. Dependencies are advisory metadata for the
// scheduler, but a broken graph is still a definition error.
type WorkflowValidator struct {
	tools       ToolSource
	expressions ExpressionChecker
}

// ToolSource resolves tool references. Satisfied by store.Store.
type ToolSource interface {
	GetTool(ctx context.Context, id string) (*store.Tool, error)
}

// NewWorkflowValidator wires a WorkflowValidator. expressions may be nil
// to skip conditional compilation checks.
func NewWorkflowValidator(tools ToolSource, expressions ExpressionChecker) *WorkflowValidator {
	return &WorkflowValidator{tools: tools, expressions: expressions}
}

// ValidateSteps checks a workflow's full step set.
func (v *WorkflowValidator) ValidateSteps(ctx context.Context, steps []*store.WorkflowStep) error {
	if err := checkStepOrders(steps); err != nil {
		return err
	}
	if err := v.checkToolRefs(ctx, steps); err != nil {
		return err
	}
	if err := checkDependencies(steps); err != nil {
		return err
	}
	return v.checkConditionals(steps)
}

// checkStepOrders rejects duplicate step_order values. Contiguity from
// zero is convention, not a requirement.
func checkStepOrders(steps []*store.WorkflowStep) error {
	seen := make(map[int]string, len(steps))
	for _, step := range steps {
		if step.StepOrder < 0 {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %s has negative step_order %d", step.ID, step.StepOrder).WithStep(step.ID)
		}
		if other, ok := seen[step.StepOrder]; ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"steps %s and %s share step_order %d", other, step.ID, step.StepOrder).WithStep(step.ID)
		}
		seen[step.StepOrder] = step.ID
	}
	return nil
}

func (v *WorkflowValidator) checkToolRefs(ctx context.Context, steps []*store.WorkflowStep) error {
	if v.tools == nil {
		return nil
	}
	for _, step := range steps {
		if step.ToolID == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %s has no tool", step.ID).WithStep(step.ID)
		}
		if _, err := v.tools.GetTool(ctx, step.ToolID); err != nil {
			if schema.IsCode(err, schema.ErrCodeNotFound) {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"step %s references unknown tool %s", step.ID, step.ToolID).
					WithStep(step.ID).WithCause(err)
			}
			return err
		}
	}
	return nil
}

// checkDependencies verifies that declared dependencies reference sibling
// steps and form no cycle (Kahn's algorithm).
func checkDependencies(steps []*store.WorkflowStep) error {
	ids := make(map[string]bool, len(steps))
	for _, step := range steps {
		ids[step.ID] = true
	}

	// deps[id] = dependencies of step id, dependents[id] = reverse edges.
	deps := make(map[string][]string, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, step := range steps {
		seen := make(map[string]bool, len(step.Dependencies))
		for _, dep := range step.Dependencies {
			if !ids[dep] {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"step %s depends on unknown step %s", step.ID, dep).WithStep(step.ID)
			}
			if dep == step.ID {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"step %s depends on itself", step.ID).WithStep(step.ID)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			deps[step.ID] = append(deps[step.ID], dep)
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	inDegree := make(map[string]int, len(steps))
	for id := range ids {
		inDegree[id] = len(deps[id])
	}
	queue := make([]string, 0, len(steps))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range dependents[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if visited != len(ids) {
		var cyclic []string
		for id, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return schema.NewErrorf(schema.ErrCodeValidation,
			"dependency cycle involving steps %v", cyclic)
	}
	return nil
}

func (v *WorkflowValidator) checkConditionals(steps []*store.WorkflowStep) error {
	if v.expressions == nil {
		return nil
	}
	for _, step := range steps {
		if step.ConditionalExpression == "" {
			continue
		}
		if err := v.expressions.Compile(step.ConditionalExpression); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %s has an invalid conditional expression: %s", step.ID, err.Error()).
				WithStep(step.ID).WithCause(err)
		}
	}
	return nil
}
