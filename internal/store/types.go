package store

import (
	"time"

	"github.com/agentplate/agentplate/pkg/schema"
)

// Workflow is a named, user-owned workflow definition. Steps are referenced
// rows, never embedded.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowStep is one ordered unit of a workflow, optionally bound to a tool.
// step_order is unique per workflow and defines execution order; the mapping
// documents and dependency list are stored but never consulted by the
// scheduler, which scans purely by step_order.
type WorkflowStep struct {
	ID                    string         `json:"id"`
	WorkflowID            string         `json:"workflow_id"`
	ToolID                string         `json:"tool_id,omitempty"`
	StepOrder             int            `json:"step_order"`
	InputMapping          map[string]any `json:"input_mapping,omitempty"`
	OutputMapping         map[string]any `json:"output_mapping,omitempty"`
	ValidationRules       map[string]any `json:"validation_rules,omitempty"`
	Dependencies          []string       `json:"dependencies,omitempty"`
	ConditionalExpression string         `json:"conditional_expression,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Tool is a typed integration descriptor referenced by workflow steps.
type Tool struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          schema.ToolType `json:"type"`
	Configuration map[string]any  `json:"configuration"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// WorkflowExecution is one run of a workflow. Status is monotonic through
// pending -> running -> {completed|failed}; terminal rows are never mutated
// again by the engine.
type WorkflowExecution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      schema.ExecutionStatus `json:"status"`
	CurrentStep int                    `json:"current_step"`
	Input       map[string]any         `json:"input"`
	Output      map[string]any         `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// StepExecution is one run of a workflow step within a workflow execution,
// created in bulk at execution start with status pending. Exactly one row
// exists per (execution, step) pair.
type StepExecution struct {
	ID                  string                 `json:"id"`
	WorkflowExecutionID string                 `json:"workflow_execution_id"`
	WorkflowStepID      string                 `json:"workflow_step_id"`
	StepOrder           int                    `json:"step_order"`
	Status              schema.ExecutionStatus `json:"status"`
	Input               map[string]any         `json:"input"`
	Output              map[string]any         `json:"output,omitempty"`
	Error               string                 `json:"error,omitempty"`
	StackTrace          string                 `json:"stack_trace,omitempty"`
	Logs                []string               `json:"logs,omitempty"`
	StartedAt           *time.Time             `json:"started_at,omitempty"`
	CompletedAt         *time.Time             `json:"completed_at,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// Agent is a named LLM-backed assistant runnable through the functions
// invoker.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AgentExecution is one run of an agent; same lifecycle as step executions.
type AgentExecution struct {
	ID          string                 `json:"id"`
	AgentID     string                 `json:"agent_id"`
	Status      schema.ExecutionStatus `json:"status"`
	Input       map[string]any         `json:"input"`
	Output      map[string]any         `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ScheduledRun is a cron-triggered workflow start.
type ScheduledRun struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	CronExpression string         `json:"cron_expression"`
	Input          map[string]any `json:"input,omitempty"`
	Enabled        bool           `json:"enabled"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastRunStatus  string         `json:"last_run_status,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	CreatedBy string `json:"created_by,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// WorkflowUpdate specifies mutable fields of a workflow.
type WorkflowUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// WorkflowStepUpdate specifies mutable fields of a workflow step.
type WorkflowStepUpdate struct {
	ToolID                *string        `json:"tool_id,omitempty"`
	StepOrder             *int           `json:"step_order,omitempty"`
	InputMapping          map[string]any `json:"input_mapping,omitempty"`
	OutputMapping         map[string]any `json:"output_mapping,omitempty"`
	ValidationRules       map[string]any `json:"validation_rules,omitempty"`
	Dependencies          []string       `json:"dependencies,omitempty"`
	ConditionalExpression *string        `json:"conditional_expression,omitempty"`
}

// ToolFilter specifies criteria for listing tools.
type ToolFilter struct {
	Type      *schema.ToolType `json:"type,omitempty"`
	CreatedBy string           `json:"created_by,omitempty"`
	Limit     int              `json:"limit,omitempty"`
}

// ToolUpdate specifies mutable fields of a tool.
type ToolUpdate struct {
	Name          *string          `json:"name,omitempty"`
	Type          *schema.ToolType `json:"type,omitempty"`
	Configuration map[string]any   `json:"configuration,omitempty"`
}

// ExecutionFilter specifies criteria for listing workflow executions.
type ExecutionFilter struct {
	WorkflowID string                  `json:"workflow_id,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}

// WorkflowExecutionUpdate specifies mutable fields of a workflow execution.
type WorkflowExecutionUpdate struct {
	Status      *schema.ExecutionStatus `json:"status,omitempty"`
	CurrentStep *int                    `json:"current_step,omitempty"`
	Output      map[string]any          `json:"output,omitempty"`
	Error       *string                 `json:"error,omitempty"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// StepExecutionUpdate specifies mutable fields of a step execution.
type StepExecutionUpdate struct {
	Status      *schema.ExecutionStatus `json:"status,omitempty"`
	Input       map[string]any          `json:"input,omitempty"`
	Output      map[string]any          `json:"output,omitempty"`
	Error       *string                 `json:"error,omitempty"`
	StackTrace  *string                 `json:"stack_trace,omitempty"`
	Logs        []string                `json:"logs,omitempty"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// AgentUpdate specifies mutable fields of an agent.
type AgentUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// AgentExecutionUpdate specifies mutable fields of an agent execution.
type AgentExecutionUpdate struct {
	Status      *schema.ExecutionStatus `json:"status,omitempty"`
	Output      map[string]any          `json:"output,omitempty"`
	Error       *string                 `json:"error,omitempty"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// ScheduledRunFilter specifies criteria for listing scheduled runs.
type ScheduledRunFilter struct {
	WorkflowID string `json:"workflow_id,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// ScheduledRunUpdate specifies mutable fields of a scheduled run.
type ScheduledRunUpdate struct {
	CronExpression *string        `json:"cron_expression,omitempty"`
	Input          map[string]any `json:"input,omitempty"`
	Enabled        *bool          `json:"enabled,omitempty"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastRunStatus  *string        `json:"last_run_status,omitempty"`
}
