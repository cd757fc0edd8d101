// Package executor runs validated statements against the read pool with a
// statement timeout and eager row materialization.
package executor

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
	"github.com/mhr-212/talk-to-your-data/internal/sqlguard"
)

// Result holds a fully materialized query response. Rows are read eagerly so
// the connection returns to the pool before the response is serialized.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Engine executes guard-approved statements. It only accepts
// sqlguard.Statement, so a raw string cannot reach the database by accident.
type Engine struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger

	sessionOnce sync.Once
}

func NewEngine(db *sql.DB, timeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		db:      db,
		timeout: timeout,
		logger:  logger.With("component", "executor"),
	}
}

// hardenSession probes the read-only session setting once. The read pool
// already opens every connection with query_only in its DSN; this is a
// best-effort capability check so a pool configured without it gets a WARN
// in the log rather than silent write exposure. The guard layer remains the
// authoritative write barrier either way.
func (e *Engine) hardenSession(ctx context.Context) {
	e.sessionOnce.Do(func() {
		if _, err := e.db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			e.logger.Warn("read-only session setting unavailable, continuing without it", "error", err)
		}
	})
}

// Execute runs stmt with the configured timeout and returns all rows.
// BLOB values are converted to strings so results serialize cleanly to JSON.
func (e *Engine) Execute(ctx context.Context, stmt sqlguard.Statement) (*Result, error) {
	e.hardenSession(ctx)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, string(stmt))
	if err != nil {
		return nil, domain.ErrExecution("query failed: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, domain.ErrExecution("read columns: %v", err)
	}

	result := &Result{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, domain.ErrExecution("scan row: %v", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrExecution("iterate rows: %v", err)
	}

	return result, nil
}
