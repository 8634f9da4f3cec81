package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/flowforge/enginecore/engine"
)

// MySQL is a MySQL/MariaDB-backed engine.Store. Intended for multi-process
// deployments where several engine.Engine instances Tick different
// executions concurrently against one durable backend; Save's WHERE
// updated_at clause is the optimistic-concurrency check a production store
// needs.
type MySQL struct {
	db       *sql.DB
	budget   engine.Budget
	external engine.ExternalStore
}

// NewMySQL opens a MySQL store using dsn (a github.com/go-sql-driver/mysql
// data source name) and migrates its schema.
func NewMySQL(dsn string, budget engine.Budget, external engine.ExternalStore) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}
	m := &MySQL{db: db, budget: budget, external: external}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *MySQL) migrate() error {
	_, err := m.db.Exec(`
CREATE TABLE IF NOT EXISTS executions (
	id VARCHAR(128) PRIMARY KEY,
	flow_id VARCHAR(256) NOT NULL,
	parent_execution_id VARCHAR(128),
	idempotency_key VARCHAR(256),
	status VARCHAR(32) NOT NULL,
	wake_at_unix_ms BIGINT NOT NULL DEFAULT 0,
	updated_at_unix_nano BIGINT NOT NULL,
	body LONGTEXT NOT NULL,
	INDEX idx_parent (parent_execution_id),
	INDEX idx_status_wake (status, wake_at_unix_ms),
	INDEX idx_idempotency (flow_id, idempotency_key)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`)
	return err
}

func (m *MySQL) Close() error { return m.db.Close() }

func (m *MySQL) Create(ctx context.Context, exec *engine.Execution) (*engine.Execution, bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if exec.IdempotencyKey != "" {
		row := tx.QueryRowContext(ctx, `SELECT body FROM executions WHERE flow_id = ? AND idempotency_key = ? LIMIT 1 FOR UPDATE`, exec.FlowID, exec.IdempotencyKey)
		var body string
		switch err := row.Scan(&body); err {
		case nil:
			existing, err := unmarshalExecution([]byte(body), m.budget, m.external)
			if err != nil {
				return nil, false, err
			}
			if !existing.IdempotencyExpiresAt.IsZero() && existing.IdempotencyExpiresAt.After(time.Now().UTC()) {
				return existing, false, tx.Commit()
			}
		case sql.ErrNoRows:
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
	_, err = tx.ExecContext(ctx, `INSERT INTO executions (id, flow_id, parent_execution_id, idempotency_key, status, wake_at_unix_ms, updated_at_unix_nano, body) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.FlowID, exec.ParentExecutionID, nullableString(exec.IdempotencyKey), string(exec.Status), wakeAt, exec.UpdatedAt.UnixNano(), string(body))
	if err != nil {
		return nil, false, fmt.Errorf("store: insert execution: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return exec, true, nil
}

func (m *MySQL) Get(ctx context.Context, id string) (*engine.Execution, error) {
	row := m.db.QueryRowContext(ctx, `SELECT body FROM executions WHERE id = ?`, id)
	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrNotFound
		}
		return nil, err
	}
	return unmarshalExecution([]byte(body), m.budget, m.external)
}

func (m *MySQL) Save(ctx context.Context, exec *engine.Execution, expectedUpdatedAtUnixNano int64) error {
	body, err := marshalExecution(exec)
	if err != nil {
		return err
	}
	wakeAt := int64(0)
	if exec.Wait != nil && !exec.Wait.WakeAt.IsZero() {
		wakeAt = exec.Wait.WakeAt.UnixMilli()
	}
	result, err := m.db.ExecContext(ctx, `UPDATE executions SET status = ?, wake_at_unix_ms = ?, updated_at_unix_nano = ?, body = ? WHERE id = ? AND updated_at_unix_nano = ?`,
		string(exec.Status), wakeAt, exec.UpdatedAt.UnixNano(), string(body), exec.ID, expectedUpdatedAtUnixNano)
	if err != nil {
		return fmt.Errorf("store: update execution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := m.Get(ctx, exec.ID); getErr == engine.ErrNotFound {
			return engine.ErrNotFound
		}
		return engine.ErrConflict
	}
	return nil
}

func (m *MySQL) Delete(ctx context.Context, id string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete execution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MySQL) ListByStatus(ctx context.Context, status engine.Status, limit int) ([]*engine.Execution, error) {
	query := `SELECT body FROM executions WHERE status = ? ORDER BY updated_at_unix_nano ASC`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows, m.budget, m.external)
}

func (m *MySQL) ListChildren(ctx context.Context, parentID string) ([]*engine.Execution, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT body FROM executions WHERE parent_execution_id = ?`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows, m.budget, m.external)
}

func (m *MySQL) ListWaiting(ctx context.Context, beforeUnixNano int64) ([]*engine.Execution, error) {
	beforeMs := beforeUnixNano / int64(time.Millisecond)
	rows, err := m.db.QueryContext(ctx, `SELECT body FROM executions WHERE status = ? AND wake_at_unix_ms > 0 AND wake_at_unix_ms <= ?`, string(engine.StatusWaiting), beforeMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows, m.budget, m.external)
}
