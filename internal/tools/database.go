package tools

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agentplate/agentplate/pkg/schema"
)

// DBExecutor is the query surface database tools run against. Satisfied
// by *sql.DB.
type DBExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// databaseGateway executes database-type tools against application tables.
type databaseGateway struct {
	db DBExecutor
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (g *databaseGateway) run(ctx context.Context, cfg schema.DatabaseConfig, input map[string]any) (map[string]any, error) {
	if g.db == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no database backend configured")
	}
	if cfg.Table == "" || cfg.Operation == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "database tool requires table and operation")
	}
	if !identPattern.MatchString(cfg.Table) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid table name: %q", cfg.Table)
	}

	switch strings.ToLower(cfg.Operation) {
	case "select":
		return g.selectRows(ctx, cfg, input)
	case "insert":
		return g.insertRow(ctx, cfg, input)
	case "update":
		return g.updateRows(ctx, cfg, input)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported database operation: %q", cfg.Operation)
	}
}

func (g *databaseGateway) selectRows(ctx context.Context, cfg schema.DatabaseConfig, input map[string]any) (map[string]any, error) {
	projection := "*"
	if cfg.Query != "" {
		cols := strings.Split(cfg.Query, ",")
		for i, c := range cols {
			c = strings.TrimSpace(c)
			if !identPattern.MatchString(c) {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid column in query: %q", c)
			}
			cols[i] = c
		}
		projection = strings.Join(cols, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", projection, cfg.Table)
	where, args, err := matchClause(input)
	if err != nil {
		return nil, err
	}
	query += where

	return g.collect(ctx, query, args)
}

func (g *databaseGateway) insertRow(ctx context.Context, cfg schema.DatabaseConfig, input map[string]any) (map[string]any, error) {
	row := input
	if data, ok := input["data"].(map[string]any); ok {
		row = data
	}
	if len(row) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "insert requires a non-empty row")
	}

	cols, args, err := sortedColumns(row)
	if err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		cfg.Table, strings.Join(cols, ", "), placeholders)

	return g.collect(ctx, query, args)
}

func (g *databaseGateway) updateRows(ctx context.Context, cfg schema.DatabaseConfig, input map[string]any) (map[string]any, error) {
	data, ok := input["data"].(map[string]any)
	if !ok || len(data) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "update requires input.data")
	}
	match, ok := input["match"].(map[string]any)
	if !ok || len(match) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "update requires input.match")
	}

	setCols, setArgs, err := sortedColumns(data)
	if err != nil {
		return nil, err
	}
	sets := make([]string, len(setCols))
	for i, c := range setCols {
		sets[i] = c + " = ?"
	}

	where, whereArgs, err := matchClause(map[string]any{"match": match})
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", cfg.Table, strings.Join(sets, ", "), where)
	return g.collect(ctx, query, append(setArgs, whereArgs...))
}

// matchClause builds a WHERE clause from input.match equality filters.
func matchClause(input map[string]any) (string, []any, error) {
	match, ok := input["match"].(map[string]any)
	if !ok || len(match) == 0 {
		return "", nil, nil
	}
	cols, args, err := sortedColumns(match)
	if err != nil {
		return "", nil, err
	}
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = c + " = ?"
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func sortedColumns(doc map[string]any) ([]string, []any, error) {
	cols := make([]string, 0, len(doc))
	for c := range doc {
		if !identPattern.MatchString(c) {
			return nil, nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid column name: %q", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = doc[c]
	}
	return cols, args, nil
}

// collect runs a query and returns its rows as documents.
func (g *databaseGateway) collect(ctx context.Context, query string, args []any) (map[string]any, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "database query failed: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "read columns: %s", err.Error()).WithCause(err)
	}

	result := []any{}
	for rows.Next() {
		values := make([]any, len(cols))
		scan := make([]any, len(cols))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "scan row: %s", err.Error()).WithCause(err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "iterate rows: %s", err.Error()).WithCause(err)
	}

	return map[string]any{"rows": result, "count": len(result)}, nil
}
