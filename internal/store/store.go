package store

import "context"

// Store defines the persistence layer contract. It is injected into every
// component that needs data access so tests can substitute MemoryStore.
// All implementations must be safe for concurrent use and must return
// documents (never JSON-encoded strings) for input/output/configuration
// fields regardless of how rows were written.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	DeleteWorkflow(ctx context.Context, id string) error

	// Workflow steps
	CreateWorkflowStep(ctx context.Context, step *WorkflowStep) error
	GetWorkflowStep(ctx context.Context, id string) (*WorkflowStep, error)
	ListWorkflowSteps(ctx context.Context, workflowID string) ([]*WorkflowStep, error)
	UpdateWorkflowStep(ctx context.Context, id string, update WorkflowStepUpdate) error
	DeleteWorkflowStep(ctx context.Context, id string) error

	// Tools
	CreateTool(ctx context.Context, tool *Tool) error
	GetTool(ctx context.Context, id string) (*Tool, error)
	ListTools(ctx context.Context, filter ToolFilter) ([]*Tool, error)
	UpdateTool(ctx context.Context, id string, update ToolUpdate) error
	DeleteTool(ctx context.Context, id string) error

	// Workflow executions
	CreateWorkflowExecution(ctx context.Context, exec *WorkflowExecution) error
	GetWorkflowExecution(ctx context.Context, id string) (*WorkflowExecution, error)
	ListWorkflowExecutions(ctx context.Context, filter ExecutionFilter) ([]*WorkflowExecution, error)
	UpdateWorkflowExecution(ctx context.Context, id string, update WorkflowExecutionUpdate) error

	// Step executions
	CreateStepExecutions(ctx context.Context, execs []*StepExecution) error
	GetStepExecution(ctx context.Context, id string) (*StepExecution, error)
	GetStepExecutionByStep(ctx context.Context, executionID, workflowStepID string) (*StepExecution, error)
	ListStepExecutions(ctx context.Context, executionID string) ([]*StepExecution, error)
	UpdateStepExecution(ctx context.Context, id string, update StepExecutionUpdate) error

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	UpdateAgent(ctx context.Context, id string, update AgentUpdate) error
	DeleteAgent(ctx context.Context, id string) error

	// Agent executions
	CreateAgentExecution(ctx context.Context, exec *AgentExecution) error
	GetAgentExecution(ctx context.Context, id string) (*AgentExecution, error)
	ListAgentExecutions(ctx context.Context, agentID string) ([]*AgentExecution, error)
	UpdateAgentExecution(ctx context.Context, id string, update AgentExecutionUpdate) error

	// Scheduled runs
	CreateScheduledRun(ctx context.Context, run *ScheduledRun) error
	GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error)
	ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error)
	UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error
	DeleteScheduledRun(ctx context.Context, id string) error

	// Secrets (ciphertext; encryption is the vault's concern)
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
