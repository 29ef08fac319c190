// Package diagram renders workflow definitions, and optionally the state of
// one execution, as Mermaid flowcharts or Graphviz images.
package diagram

import (
	"fmt"
	"sort"

	"github.com/agentplate/agentplate/internal/store"
)

// Model is the renderer-independent graph of a workflow: one node per step,
// edges from explicit dependencies plus the step_order chain the scheduler
// actually walks.
type Model struct {
	Title string
	Nodes []Node
	Edges []Edge
}

// Node is one workflow step. Status is empty when rendering a bare
// definition and carries the step execution status otherwise.
type Node struct {
	ID          string
	Label       string
	StepOrder   int
	Conditional bool
	Status      string
}

// Edge links two nodes. Ordered edges follow step_order; dependency edges
// carry the "dep" label.
type Edge struct {
	From  string
	To    string
	Label string
}

// Build assembles a Model from a workflow's steps. toolNames maps tool id
// to display name; statuses maps workflow step id to execution status and
// may be nil.
func Build(workflow *store.Workflow, steps []*store.WorkflowStep, toolNames map[string]string, statuses map[string]string) *Model {
	ordered := append([]*store.WorkflowStep(nil), steps...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StepOrder < ordered[j].StepOrder })

	m := &Model{Title: workflow.Name}
	for _, step := range ordered {
		label := fmt.Sprintf("%d. %s", step.StepOrder, stepLabel(step, toolNames))
		m.Nodes = append(m.Nodes, Node{
			ID:          step.ID,
			Label:       label,
			StepOrder:   step.StepOrder,
			Conditional: step.ConditionalExpression != "",
			Status:      statuses[step.ID],
		})
	}

	// The execution order chain.
	for i := 1; i < len(ordered); i++ {
		m.Edges = append(m.Edges, Edge{From: ordered[i-1].ID, To: ordered[i].ID})
	}

	// Declared dependencies, drawn but not scheduled.
	known := make(map[string]bool, len(ordered))
	for _, step := range ordered {
		known[step.ID] = true
	}
	for _, step := range ordered {
		for _, dep := range step.Dependencies {
			if known[dep] {
				m.Edges = append(m.Edges, Edge{From: dep, To: step.ID, Label: "dep"})
			}
		}
	}
	return m
}

func stepLabel(step *store.WorkflowStep, toolNames map[string]string) string {
	if name, ok := toolNames[step.ToolID]; ok && name != "" {
		return name
	}
	if step.ToolID != "" {
		return step.ToolID
	}
	return "step"
}
