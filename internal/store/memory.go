package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentplate/agentplate/pkg/schema"
)

// MemoryStore is an in-memory Store used by tests and ephemeral setups.
type MemoryStore struct {
	mu             sync.RWMutex
	workflows      map[string]*Workflow
	steps          map[string]*WorkflowStep
	tools          map[string]*Tool
	executions     map[string]*WorkflowExecution
	stepExecutions map[string]*StepExecution
	agents         map[string]*Agent
	agentExecs     map[string]*AgentExecution
	scheduledRuns  map[string]*ScheduledRun
	secrets        map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:      make(map[string]*Workflow),
		steps:          make(map[string]*WorkflowStep),
		tools:          make(map[string]*Tool),
		executions:     make(map[string]*WorkflowExecution),
		stepExecutions: make(map[string]*StepExecution),
		agents:         make(map[string]*Agent),
		agentExecs:     make(map[string]*AgentExecution),
		scheduledRuns:  make(map[string]*ScheduledRun),
		secrets:        make(map[string][]byte),
	}
}

func (m *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                      { return nil }

// --- Workflows ---

func (m *MemoryStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID)
	}
	stampTimes(&wf.CreatedAt, &wf.UpdatedAt)
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	cp := *wf
	return &cp, nil
}

func (m *MemoryStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Workflow
	for _, wf := range m.workflows {
		if filter.CreatedBy != "" && wf.CreatedBy != filter.CreatedBy {
			continue
		}
		cp := *wf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return storeNotFound("workflow", id)
	}
	if update.Name != nil {
		wf.Name = *update.Name
	}
	if update.Description != nil {
		wf.Description = *update.Description
	}
	wf.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(m.workflows, id)
	for sid, step := range m.steps {
		if step.WorkflowID == id {
			delete(m.steps, sid)
		}
	}
	return nil
}

// --- Workflow steps ---

func (m *MemoryStore) CreateWorkflowStep(ctx context.Context, step *WorkflowStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[step.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow step %q already exists", step.ID)
	}
	for _, existing := range m.steps {
		if existing.WorkflowID == step.WorkflowID && existing.StepOrder == step.StepOrder {
			return schema.NewErrorf(schema.ErrCodeConflict,
				"workflow %q already has a step at order %d", step.WorkflowID, step.StepOrder)
		}
	}
	stampTimes(&step.CreatedAt, &step.UpdatedAt)
	cp := *step
	m.steps[step.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWorkflowStep(ctx context.Context, id string) (*WorkflowStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	step, ok := m.steps[id]
	if !ok {
		return nil, storeNotFound("workflow step", id)
	}
	cp := *step
	return &cp, nil
}

func (m *MemoryStore) ListWorkflowSteps(ctx context.Context, workflowID string) ([]*WorkflowStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WorkflowStep
	for _, step := range m.steps {
		if step.WorkflowID != workflowID {
			continue
		}
		cp := *step
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (m *MemoryStore) UpdateWorkflowStep(ctx context.Context, id string, update WorkflowStepUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.steps[id]
	if !ok {
		return storeNotFound("workflow step", id)
	}
	if update.ToolID != nil {
		step.ToolID = *update.ToolID
	}
	if update.StepOrder != nil {
		step.StepOrder = *update.StepOrder
	}
	if update.InputMapping != nil {
		step.InputMapping = update.InputMapping
	}
	if update.OutputMapping != nil {
		step.OutputMapping = update.OutputMapping
	}
	if update.ValidationRules != nil {
		step.ValidationRules = update.ValidationRules
	}
	if update.Dependencies != nil {
		step.Dependencies = update.Dependencies
	}
	if update.ConditionalExpression != nil {
		step.ConditionalExpression = *update.ConditionalExpression
	}
	step.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteWorkflowStep(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[id]; !ok {
		return storeNotFound("workflow step", id)
	}
	delete(m.steps, id)
	return nil
}

// --- Tools ---

func (m *MemoryStore) CreateTool(ctx context.Context, tool *Tool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tools[tool.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool %q already exists", tool.ID)
	}
	stampTimes(&tool.CreatedAt, &tool.UpdatedAt)
	cp := *tool
	m.tools[tool.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTool(ctx context.Context, id string) (*Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tool, ok := m.tools[id]
	if !ok {
		return nil, storeNotFound("tool", id)
	}
	cp := *tool
	cp.Configuration = schema.NormalizeDocument(tool.Configuration)
	return &cp, nil
}

func (m *MemoryStore) ListTools(ctx context.Context, filter ToolFilter) ([]*Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Tool
	for _, tool := range m.tools {
		if filter.Type != nil && tool.Type != *filter.Type {
			continue
		}
		if filter.CreatedBy != "" && tool.CreatedBy != filter.CreatedBy {
			continue
		}
		cp := *tool
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, filter.Limit, 0), nil
}

func (m *MemoryStore) UpdateTool(ctx context.Context, id string, update ToolUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tool, ok := m.tools[id]
	if !ok {
		return storeNotFound("tool", id)
	}
	if update.Name != nil {
		tool.Name = *update.Name
	}
	if update.Type != nil {
		tool.Type = *update.Type
	}
	if update.Configuration != nil {
		tool.Configuration = update.Configuration
	}
	tool.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteTool(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tools[id]; !ok {
		return storeNotFound("tool", id)
	}
	delete(m.tools, id)
	return nil
}

// --- Workflow executions ---

func (m *MemoryStore) CreateWorkflowExecution(ctx context.Context, exec *WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[exec.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow execution %q already exists", exec.ID)
	}
	stampTimes(&exec.CreatedAt, &exec.UpdatedAt)
	exec.Input = schema.NormalizeDocument(exec.Input)
	cp := *exec
	m.executions[exec.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWorkflowExecution(ctx context.Context, id string) (*WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, storeNotFound("workflow execution", id)
	}
	cp := *exec
	return &cp, nil
}

func (m *MemoryStore) ListWorkflowExecutions(ctx context.Context, filter ExecutionFilter) ([]*WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*WorkflowExecution
	for _, exec := range m.executions {
		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		cp := *exec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) UpdateWorkflowExecution(ctx context.Context, id string, update WorkflowExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return storeNotFound("workflow execution", id)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.CurrentStep != nil {
		exec.CurrentStep = *update.CurrentStep
	}
	if update.Output != nil {
		exec.Output = update.Output
	}
	if update.Error != nil {
		exec.Error = *update.Error
	}
	if update.StartedAt != nil {
		exec.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		exec.CompletedAt = update.CompletedAt
	}
	exec.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Step executions ---

func (m *MemoryStore) CreateStepExecutions(ctx context.Context, execs []*StepExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, se := range execs {
		if _, ok := m.stepExecutions[se.ID]; ok {
			return schema.NewErrorf(schema.ErrCodeConflict, "step execution %q already exists", se.ID)
		}
	}
	for _, se := range execs {
		stampTimes(&se.CreatedAt, &se.UpdatedAt)
		se.Input = schema.NormalizeDocument(se.Input)
		cp := *se
		m.stepExecutions[se.ID] = &cp
	}
	return nil
}

func (m *MemoryStore) GetStepExecution(ctx context.Context, id string) (*StepExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	se, ok := m.stepExecutions[id]
	if !ok {
		return nil, storeNotFound("step execution", id)
	}
	cp := *se
	return &cp, nil
}

func (m *MemoryStore) GetStepExecutionByStep(ctx context.Context, executionID, workflowStepID string) (*StepExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, se := range m.stepExecutions {
		if se.WorkflowExecutionID == executionID && se.WorkflowStepID == workflowStepID {
			cp := *se
			return &cp, nil
		}
	}
	return nil, storeNotFound("step execution", executionID+"/"+workflowStepID)
}

func (m *MemoryStore) ListStepExecutions(ctx context.Context, executionID string) ([]*StepExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*StepExecution
	for _, se := range m.stepExecutions {
		if se.WorkflowExecutionID != executionID {
			continue
		}
		cp := *se
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (m *MemoryStore) UpdateStepExecution(ctx context.Context, id string, update StepExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	se, ok := m.stepExecutions[id]
	if !ok {
		return storeNotFound("step execution", id)
	}
	if update.Status != nil {
		se.Status = *update.Status
	}
	if update.Input != nil {
		se.Input = update.Input
	}
	if update.Output != nil {
		se.Output = update.Output
	}
	if update.Error != nil {
		se.Error = *update.Error
	}
	if update.StackTrace != nil {
		se.StackTrace = *update.StackTrace
	}
	if update.Logs != nil {
		se.Logs = update.Logs
	}
	if update.StartedAt != nil {
		se.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		se.CompletedAt = update.CompletedAt
	}
	se.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Agents ---

func (m *MemoryStore) CreateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "agent %q already exists", agent.ID)
	}
	stampTimes(&agent.CreatedAt, &agent.UpdatedAt)
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[id]
	if !ok {
		return nil, storeNotFound("agent", id)
	}
	cp := *agent
	return &cp, nil
}

func (m *MemoryStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Agent
	for _, agent := range m.agents {
		cp := *agent
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateAgent(ctx context.Context, id string, update AgentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return storeNotFound("agent", id)
	}
	if update.Name != nil {
		agent.Name = *update.Name
	}
	if update.Description != nil {
		agent.Description = *update.Description
	}
	if update.IsActive != nil {
		agent.IsActive = *update.IsActive
	}
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteAgent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return storeNotFound("agent", id)
	}
	delete(m.agents, id)
	return nil
}

// --- Agent executions ---

func (m *MemoryStore) CreateAgentExecution(ctx context.Context, exec *AgentExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agentExecs[exec.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "agent execution %q already exists", exec.ID)
	}
	stampTimes(&exec.CreatedAt, &exec.UpdatedAt)
	exec.Input = schema.NormalizeDocument(exec.Input)
	cp := *exec
	m.agentExecs[exec.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAgentExecution(ctx context.Context, id string) (*AgentExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.agentExecs[id]
	if !ok {
		return nil, storeNotFound("agent execution", id)
	}
	cp := *exec
	return &cp, nil
}

func (m *MemoryStore) ListAgentExecutions(ctx context.Context, agentID string) ([]*AgentExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*AgentExecution
	for _, exec := range m.agentExecs {
		if exec.AgentID != agentID {
			continue
		}
		cp := *exec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateAgentExecution(ctx context.Context, id string, update AgentExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.agentExecs[id]
	if !ok {
		return storeNotFound("agent execution", id)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.Output != nil {
		exec.Output = update.Output
	}
	if update.Error != nil {
		exec.Error = *update.Error
	}
	if update.StartedAt != nil {
		exec.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		exec.CompletedAt = update.CompletedAt
	}
	exec.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Scheduled runs ---

func (m *MemoryStore) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scheduledRuns[run.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled run %q already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	cp := *run
	m.scheduledRuns[run.ID] = &cp
	return nil
}

func (m *MemoryStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.scheduledRuns[id]
	if !ok {
		return nil, storeNotFound("scheduled run", id)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ScheduledRun
	for _, run := range m.scheduledRuns {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Enabled != nil && run.Enabled != *filter.Enabled {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, 0), nil
}

func (m *MemoryStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.scheduledRuns[id]
	if !ok {
		return storeNotFound("scheduled run", id)
	}
	if update.CronExpression != nil {
		run.CronExpression = *update.CronExpression
	}
	if update.Input != nil {
		run.Input = update.Input
	}
	if update.Enabled != nil {
		run.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		run.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		run.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != nil {
		run.LastRunStatus = *update.LastRunStatus
	}
	return nil
}

func (m *MemoryStore) DeleteScheduledRun(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scheduledRuns[id]; !ok {
		return storeNotFound("scheduled run", id)
	}
	delete(m.scheduledRuns, id)
	return nil
}

// --- Secrets ---

func (m *MemoryStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.secrets[key] = cp
	return nil
}

func (m *MemoryStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.secrets[key]
	if !ok {
		return nil, storeNotFound("secret", key)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (m *MemoryStore) DeleteSecret(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[key]; !ok {
		return storeNotFound("secret", key)
	}
	delete(m.secrets, key)
	return nil
}

func (m *MemoryStore) ListSecrets(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.secrets))
	for k := range m.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// --- Helpers ---

func stampTimes(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
