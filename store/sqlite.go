package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowforge/enginecore/engine"
)

// SQLite is a single-file engine.Store backed by modernc.org/sqlite:
// zero-setup persistence for development, single-process deployments, and
// local testing against a real SQL backend instead of Memory.
//
// Schema: one table, executions, holding the full JSON-serialized record
// plus status, parent_execution_id, wake_at_unix_ms and idempotency
// columns used by the engine's list, cascading-cancel, wait-sweep and
// idempotent-create queries. status, parent_execution_id and
// (flow_id, idempotency_key) are indexed; wake_at_unix_ms is not.
type SQLite struct {
	db       *sql.DB
	budget   engine.Budget
	external engine.ExternalStore
	mu       sync.Mutex
}

// NewSQLite opens (creating if absent) a SQLite database at path and
// migrates its schema. Pass ":memory:" for an ephemeral in-process
// database useful in tests that want real SQL semantics without a file.
func NewSQLite(path string, budget engine.Budget, external engine.ExternalStore) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers through one connection

	s := &SQLite{db: db, budget: budget, external: external}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	flow_id TEXT NOT NULL,
	parent_execution_id TEXT,
	idempotency_key TEXT,
	status TEXT NOT NULL,
	wake_at_unix_ms INTEGER,
	updated_at_unix_nano INTEGER NOT NULL,
	body TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_parent ON executions(parent_execution_id);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
CREATE INDEX IF NOT EXISTS idx_executions_idempotency ON executions(flow_id, idempotency_key);
`)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Create(ctx context.Context, exec *engine.Execution) (*engine.Execution, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.IdempotencyKey != "" {
		row := s.db.QueryRowContext(ctx, `SELECT body FROM executions WHERE flow_id = ? AND idempotency_key = ? LIMIT 1`, exec.FlowID, exec.IdempotencyKey)
		var body string
		switch err := row.Scan(&body); err {
		case nil:
			existing, err := unmarshalExecution([]byte(body), s.budget, s.external)
			if err != nil {
				return nil, false, err
			}
			if !existing.IdempotencyExpiresAt.IsZero() && existing.IdempotencyExpiresAt.After(time.Now().UTC()) {
				return existing, false, nil
			}
		case sql.ErrNoRows:
			// fall through to insert
		default:
			return nil, false, err
		}
	}

	body, err := marshalExecution(exec)
	if err != nil {
		return nil, false, err
	}
	wakeAt := int64(0)
	if exec.Wait != nil && !exec.Wait.WakeAt.IsZero() {
		wakeAt = exec.Wait.WakeAt.UnixMilli()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO executions (id, flow_id, parent_execution_id, idempotency_key, status, wake_at_unix_ms, updated_at_unix_nano, body) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.FlowID, exec.ParentExecutionID, nullableString(exec.IdempotencyKey), string(exec.Status), wakeAt, exec.UpdatedAt.UnixNano(), string(body))
	if err != nil {
		return nil, false, fmt.Errorf("store: insert execution: %w", err)
	}
	return exec, true, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*engine.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM executions WHERE id = ?`, id)
	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	return unmarshalExecution([]byte(body), s.budget, s.external)
}

func (s *SQLite) Save(ctx context.Context, exec *engine.Execution, expectedUpdatedAtUnixNano int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := marshalExecution(exec)
	if err != nil {
		return err
	}
	wakeAt := int64(0)
	if exec.Wait != nil && !exec.Wait.WakeAt.IsZero() {
		wakeAt = exec.Wait.WakeAt.UnixMilli()
	}
	result, err := s.db.ExecContext(ctx, `UPDATE executions SET status = ?, wake_at_unix_ms = ?, updated_at_unix_nano = ?, body = ? WHERE id = ? AND updated_at_unix_nano = ?`,
		string(exec.Status), wakeAt, exec.UpdatedAt.UnixNano(), string(body), exec.ID, expectedUpdatedAtUnixNano)
	if err != nil {
		return fmt.Errorf("store: update execution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, exec.ID); getErr == engine.ErrNotFound {
			return engine.ErrNotFound
		}
		return engine.ErrConflict
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete execution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) ListByStatus(ctx context.Context, status engine.Status, limit int) ([]*engine.Execution, error) {
	query := `SELECT body FROM executions WHERE status = ? ORDER BY updated_at_unix_nano ASC`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows, s.budget, s.external)
}

func (s *SQLite) ListChildren(ctx context.Context, parentID string) ([]*engine.Execution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM executions WHERE parent_execution_id = ?`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows, s.budget, s.external)
}

func (s *SQLite) ListWaiting(ctx context.Context, beforeUnixNano int64) ([]*engine.Execution, error) {
	beforeMs := beforeUnixNano / int64(time.Millisecond)
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM executions WHERE status = ? AND wake_at_unix_ms > 0 AND wake_at_unix_ms <= ?`, string(engine.StatusWaiting), beforeMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows, s.budget, s.external)
}

func scanExecutions(rows *sql.Rows, budget engine.Budget, external engine.ExternalStore) ([]*engine.Execution, error) {
	var out []*engine.Execution
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		exec, err := unmarshalExecution([]byte(body), budget, external)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
