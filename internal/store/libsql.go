package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/agentplate/agentplate/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

var _ Store = (*LibSQLStore)(nil)

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path may be a URL the driver understands ("file:", "libsql://",
// "http(s)://") or a bare filesystem path, which is treated as a local file.
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", normalizeDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// normalizeDSN maps bare filesystem paths onto the file scheme. The driver
// rejects anything without a scheme it knows.
func normalizeDSN(dbPath string) string {
	for _, scheme := range []string{"file:", "libsql://", "https://", "http://"} {
		if strings.HasPrefix(dbPath, scheme) {
			return dbPath
		}
	}
	return "file:" + dbPath
}

// DB returns the underlying *sql.DB for advanced usage (e.g. the database
// tool gateway, which runs operations against user tables).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, nullStr(wf.Description), nullStr(wf.CreatedBy),
		timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	wf := &Workflow{}
	var description, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.Name, &description, &createdBy, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.Description = description.String
	wf.CreatedBy = createdBy.String
	return wf, nil
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	var where []string
	var args []any

	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	query := `SELECT id, name, description, created_by, created_at, updated_at FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf := &Workflow{}
		var description, createdBy sql.NullString
		if err := rows.Scan(&wf.ID, &wf.Name, &description, &createdBy, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		wf.Description = description.String
		wf.CreatedBy = createdBy.String
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Workflow steps ---

const workflowStepColumns = `id, workflow_id, tool_id, step_order, input_mapping, output_mapping, validation_rules, dependencies, conditional_expression, created_at, updated_at`

func (s *LibSQLStore) CreateWorkflowStep(ctx context.Context, step *WorkflowStep) error {
	deps, err := marshalList(step.Dependencies)
	if err != nil {
		return fmt.Errorf("marshal dependencies: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (`+workflowStepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.WorkflowID, nullStr(step.ToolID), step.StepOrder,
		nullDoc(step.InputMapping), nullDoc(step.OutputMapping), nullDoc(step.ValidationRules),
		deps, nullStr(step.ConditionalExpression),
		timeOrNow(step.CreatedAt), timeOrNow(step.UpdatedAt),
	)
	return err
}

func scanWorkflowStep(row rowScanner) (*WorkflowStep, error) {
	step := &WorkflowStep{}
	var toolID, inputMapping, outputMapping, validationRules, deps, condExpr sql.NullString
	err := row.Scan(&step.ID, &step.WorkflowID, &toolID, &step.StepOrder,
		&inputMapping, &outputMapping, &validationRules, &deps, &condExpr,
		&step.CreatedAt, &step.UpdatedAt)
	if err != nil {
		return nil, err
	}
	step.ToolID = toolID.String
	step.InputMapping = docOrNil(inputMapping)
	step.OutputMapping = docOrNil(outputMapping)
	step.ValidationRules = docOrNil(validationRules)
	step.Dependencies = listOrNil(deps)
	step.ConditionalExpression = condExpr.String
	return step, nil
}

func (s *LibSQLStore) GetWorkflowStep(ctx context.Context, id string) (*WorkflowStep, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowStepColumns+` FROM workflow_steps WHERE id = ?`, id)
	step, err := scanWorkflowStep(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow step", id)
	}
	return step, err
}

func (s *LibSQLStore) ListWorkflowSteps(ctx context.Context, workflowID string) ([]*WorkflowStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workflowStepColumns+` FROM workflow_steps WHERE workflow_id = ? ORDER BY step_order ASC`,
		workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*WorkflowStep
	for rows.Next() {
		step, err := scanWorkflowStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *LibSQLStore) UpdateWorkflowStep(ctx context.Context, id string, update WorkflowStepUpdate) error {
	var sets []string
	var args []any

	if update.ToolID != nil {
		sets = append(sets, "tool_id = ?")
		args = append(args, nullStr(*update.ToolID))
	}
	if update.StepOrder != nil {
		sets = append(sets, "step_order = ?")
		args = append(args, *update.StepOrder)
	}
	if update.InputMapping != nil {
		sets = append(sets, "input_mapping = ?")
		args = append(args, nullDoc(update.InputMapping))
	}
	if update.OutputMapping != nil {
		sets = append(sets, "output_mapping = ?")
		args = append(args, nullDoc(update.OutputMapping))
	}
	if update.ValidationRules != nil {
		sets = append(sets, "validation_rules = ?")
		args = append(args, nullDoc(update.ValidationRules))
	}
	if update.Dependencies != nil {
		deps, err := marshalList(update.Dependencies)
		if err != nil {
			return fmt.Errorf("marshal dependencies: %w", err)
		}
		sets = append(sets, "dependencies = ?")
		args = append(args, deps)
	}
	if update.ConditionalExpression != nil {
		sets = append(sets, "conditional_expression = ?")
		args = append(args, nullStr(*update.ConditionalExpression))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_steps SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow step", id)
}

func (s *LibSQLStore) DeleteWorkflowStep(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_steps WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow step", id)
}

// --- Tools ---

func (s *LibSQLStore) CreateTool(ctx context.Context, tool *Tool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tools (id, name, type, configuration, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tool.ID, tool.Name, string(tool.Type), nullDoc(tool.Configuration),
		nullStr(tool.CreatedBy), timeOrNow(tool.CreatedAt), timeOrNow(tool.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetTool(ctx context.Context, id string) (*Tool, error) {
	tool := &Tool{}
	var toolType string
	var configuration, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, configuration, created_by, created_at, updated_at FROM tools WHERE id = ?`, id,
	).Scan(&tool.ID, &tool.Name, &toolType, &configuration, &createdBy, &tool.CreatedAt, &tool.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("tool", id)
	}
	if err != nil {
		return nil, err
	}
	tool.Type = schema.ToolType(toolType)
	tool.Configuration = schema.NormalizeDocument(configuration.String)
	tool.CreatedBy = createdBy.String
	return tool, nil
}

func (s *LibSQLStore) ListTools(ctx context.Context, filter ToolFilter) ([]*Tool, error) {
	var where []string
	var args []any

	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	query := `SELECT id, name, type, configuration, created_by, created_at, updated_at FROM tools`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		tool := &Tool{}
		var toolType string
		var configuration, createdBy sql.NullString
		if err := rows.Scan(&tool.ID, &tool.Name, &toolType, &configuration, &createdBy, &tool.CreatedAt, &tool.UpdatedAt); err != nil {
			return nil, err
		}
		tool.Type = schema.ToolType(toolType)
		tool.Configuration = schema.NormalizeDocument(configuration.String)
		tool.CreatedBy = createdBy.String
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func (s *LibSQLStore) UpdateTool(ctx context.Context, id string, update ToolUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, string(*update.Type))
	}
	if update.Configuration != nil {
		sets = append(sets, "configuration = ?")
		args = append(args, nullDoc(update.Configuration))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE tools SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tool", id)
}

func (s *LibSQLStore) DeleteTool(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tool", id)
}

// --- Workflow executions ---

const workflowExecutionColumns = `id, workflow_id, status, current_step, input, output, error, started_at, completed_at, created_at, updated_at`

func (s *LibSQLStore) CreateWorkflowExecution(ctx context.Context, exec *WorkflowExecution) error {
	input, err := marshalDocOrDefault(exec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (`+workflowExecutionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.WorkflowID, string(exec.Status), exec.CurrentStep,
		input, nullDoc(exec.Output), nullStr(exec.Error),
		nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
		timeOrNow(exec.CreatedAt), timeOrNow(exec.UpdatedAt),
	)
	return err
}

func scanWorkflowExecution(row rowScanner) (*WorkflowExecution, error) {
	exec := &WorkflowExecution{}
	var status string
	var input, output, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&exec.ID, &exec.WorkflowID, &status, &exec.CurrentStep,
		&input, &output, &errMsg, &startedAt, &completedAt, &exec.CreatedAt, &exec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	exec.Input = schema.NormalizeDocument(input.String)
	exec.Output = docOrNil(output)
	exec.Error = errMsg.String
	if startedAt.Valid {
		exec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

func (s *LibSQLStore) GetWorkflowExecution(ctx context.Context, id string) (*WorkflowExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowExecutionColumns+` FROM workflow_executions WHERE id = ?`, id)
	exec, err := scanWorkflowExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow execution", id)
	}
	return exec, err
}

func (s *LibSQLStore) ListWorkflowExecutions(ctx context.Context, filter ExecutionFilter) ([]*WorkflowExecution, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + workflowExecutionColumns + ` FROM workflow_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*WorkflowExecution
	for rows.Next() {
		exec, err := scanWorkflowExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (s *LibSQLStore) UpdateWorkflowExecution(ctx context.Context, id string, update WorkflowExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *update.CurrentStep)
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, nullDoc(update.Output))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow execution", id)
}

// --- Step executions ---

const stepExecutionColumns = `id, workflow_execution_id, workflow_step_id, step_order, status, input, output, error, stack_trace, logs, started_at, completed_at, created_at, updated_at`

func (s *LibSQLStore) CreateStepExecutions(ctx context.Context, execs []*StepExecution) error {
	if len(execs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO step_executions (`+stepExecutionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, se := range execs {
		logs, err := marshalList(se.Logs)
		if err != nil {
			return fmt.Errorf("marshal logs: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			se.ID, se.WorkflowExecutionID, se.WorkflowStepID, se.StepOrder, string(se.Status),
			nullDoc(se.Input), nullDoc(se.Output), nullStr(se.Error), nullStr(se.StackTrace), logs,
			nullTime(se.StartedAt), nullTime(se.CompletedAt),
			timeOrNow(se.CreatedAt), timeOrNow(se.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert step execution %s: %w", se.ID, err)
		}
	}
	return tx.Commit()
}

func scanStepExecution(row rowScanner) (*StepExecution, error) {
	se := &StepExecution{}
	var status string
	var input, output, errMsg, stackTrace, logs sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&se.ID, &se.WorkflowExecutionID, &se.WorkflowStepID, &se.StepOrder, &status,
		&input, &output, &errMsg, &stackTrace, &logs, &startedAt, &completedAt, &se.CreatedAt, &se.UpdatedAt)
	if err != nil {
		return nil, err
	}
	se.Status = schema.ExecutionStatus(status)
	se.Input = schema.NormalizeDocument(input.String)
	se.Output = docOrNil(output)
	se.Error = errMsg.String
	se.StackTrace = stackTrace.String
	se.Logs = listOrNil(logs)
	if startedAt.Valid {
		se.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		se.CompletedAt = &completedAt.Time
	}
	return se, nil
}

func (s *LibSQLStore) GetStepExecution(ctx context.Context, id string) (*StepExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stepExecutionColumns+` FROM step_executions WHERE id = ?`, id)
	se, err := scanStepExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("step execution", id)
	}
	return se, err
}

func (s *LibSQLStore) GetStepExecutionByStep(ctx context.Context, executionID, workflowStepID string) (*StepExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stepExecutionColumns+` FROM step_executions
		 WHERE workflow_execution_id = ? AND workflow_step_id = ?`,
		executionID, workflowStepID)
	se, err := scanStepExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("step execution", executionID+"/"+workflowStepID)
	}
	return se, err
}

func (s *LibSQLStore) ListStepExecutions(ctx context.Context, executionID string) ([]*StepExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepExecutionColumns+` FROM step_executions
		 WHERE workflow_execution_id = ? ORDER BY step_order ASC`,
		executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*StepExecution
	for rows.Next() {
		se, err := scanStepExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, se)
	}
	return execs, rows.Err()
}

func (s *LibSQLStore) UpdateStepExecution(ctx context.Context, id string, update StepExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Input != nil {
		sets = append(sets, "input = ?")
		args = append(args, nullDoc(update.Input))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, nullDoc(update.Output))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.StackTrace != nil {
		sets = append(sets, "stack_trace = ?")
		args = append(args, *update.StackTrace)
	}
	if update.Logs != nil {
		logs, err := marshalList(update.Logs)
		if err != nil {
			return fmt.Errorf("marshal logs: %w", err)
		}
		sets = append(sets, "logs = ?")
		args = append(args, logs)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE step_executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "step execution", id)
}

// --- Agents ---

func (s *LibSQLStore) CreateAgent(ctx context.Context, agent *Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, is_active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, nullStr(agent.Description), boolInt(agent.IsActive),
		nullStr(agent.CreatedBy), timeOrNow(agent.CreatedAt), timeOrNow(agent.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	agent := &Agent{}
	var description, createdBy sql.NullString
	var isActive int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_active, created_by, created_at, updated_at FROM agents WHERE id = ?`, id,
	).Scan(&agent.ID, &agent.Name, &description, &isActive, &createdBy, &agent.CreatedAt, &agent.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent", id)
	}
	if err != nil {
		return nil, err
	}
	agent.Description = description.String
	agent.IsActive = isActive != 0
	agent.CreatedBy = createdBy.String
	return agent, nil
}

func (s *LibSQLStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, is_active, created_by, created_at, updated_at FROM agents ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent := &Agent{}
		var description, createdBy sql.NullString
		var isActive int
		if err := rows.Scan(&agent.ID, &agent.Name, &description, &isActive, &createdBy, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
			return nil, err
		}
		agent.Description = description.String
		agent.IsActive = isActive != 0
		agent.CreatedBy = createdBy.String
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *LibSQLStore) UpdateAgent(ctx context.Context, id string, update AgentUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*update.IsActive))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE agents SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

func (s *LibSQLStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

// --- Agent executions ---

const agentExecutionColumns = `id, agent_id, status, input, output, error, started_at, completed_at, created_at, updated_at`

func (s *LibSQLStore) CreateAgentExecution(ctx context.Context, exec *AgentExecution) error {
	input, err := marshalDocOrDefault(exec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_executions (`+agentExecutionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.AgentID, string(exec.Status), input, nullDoc(exec.Output), nullStr(exec.Error),
		nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
		timeOrNow(exec.CreatedAt), timeOrNow(exec.UpdatedAt),
	)
	return err
}

func scanAgentExecution(row rowScanner) (*AgentExecution, error) {
	exec := &AgentExecution{}
	var status string
	var input, output, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&exec.ID, &exec.AgentID, &status, &input, &output, &errMsg,
		&startedAt, &completedAt, &exec.CreatedAt, &exec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	exec.Input = schema.NormalizeDocument(input.String)
	exec.Output = docOrNil(output)
	exec.Error = errMsg.String
	if startedAt.Valid {
		exec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

func (s *LibSQLStore) GetAgentExecution(ctx context.Context, id string) (*AgentExecution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentExecutionColumns+` FROM agent_executions WHERE id = ?`, id)
	exec, err := scanAgentExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent execution", id)
	}
	return exec, err
}

func (s *LibSQLStore) ListAgentExecutions(ctx context.Context, agentID string) ([]*AgentExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentExecutionColumns+` FROM agent_executions WHERE agent_id = ? ORDER BY created_at DESC`,
		agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*AgentExecution
	for rows.Next() {
		exec, err := scanAgentExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (s *LibSQLStore) UpdateAgentExecution(ctx context.Context, id string, update AgentExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, nullDoc(update.Output))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE agent_executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent execution", id)
}

// --- Scheduled runs ---

const scheduledRunColumns = `id, workflow_id, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at`

func (s *LibSQLStore) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_runs (`+scheduledRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.CronExpression, nullDoc(run.Input), boolInt(run.Enabled),
		nullTime(run.LastRunAt), nullTime(run.NextRunAt), nullStr(run.LastRunStatus),
		timeOrNow(run.CreatedAt),
	)
	return err
}

func scanScheduledRun(row rowScanner) (*ScheduledRun, error) {
	run := &ScheduledRun{}
	var input, lastStatus sql.NullString
	var enabled int
	var lastRunAt, nextRunAt sql.NullTime
	err := row.Scan(&run.ID, &run.WorkflowID, &run.CronExpression, &input, &enabled,
		&lastRunAt, &nextRunAt, &lastStatus, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Input = docOrNil(input)
	run.Enabled = enabled != 0
	run.LastRunStatus = lastStatus.String
	if lastRunAt.Valid {
		run.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		run.NextRunAt = &nextRunAt.Time
	}
	return run, nil
}

func (s *LibSQLStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduledRunColumns+` FROM scheduled_runs WHERE id = ?`, id)
	run, err := scanScheduledRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled run", id)
	}
	return run, err
}

func (s *LibSQLStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}

	query := `SELECT ` + scheduledRunColumns + ` FROM scheduled_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScheduledRun
	for rows.Next() {
		run, err := scanScheduledRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	var sets []string
	var args []any

	if update.CronExpression != nil {
		sets = append(sets, "cron_expression = ?")
		args = append(args, *update.CronExpression)
	}
	if update.Input != nil {
		sets = append(sets, "input = ?")
		args = append(args, nullDoc(update.Input))
	}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != nil {
		sets = append(sets, "last_run_status = ?")
		args = append(args, *update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func (s *LibSQLStore) DeleteScheduledRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", key)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Helpers ---

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullDoc marshals a document to TEXT, NULL when empty.
func nullDoc(doc map[string]any) any {
	if len(doc) == 0 {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return string(data)
}

// marshalDocOrDefault marshals a document to TEXT, "{}" when empty.
func marshalDocOrDefault(doc map[string]any) (string, error) {
	if len(doc) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// docOrNil returns the normalized document, or nil for NULL columns.
func docOrNil(ns sql.NullString) map[string]any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return schema.NormalizeDocument(ns.String)
}

// marshalList marshals a string list to TEXT, NULL when empty.
func marshalList(list []string) (any, error) {
	if len(list) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// listOrNil decodes a TEXT JSON array column, nil for NULL or malformed.
func listOrNil(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(ns.String), &list); err != nil {
		return nil
	}
	return list
}
