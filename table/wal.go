package table

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowforge/enginecore/engine"
)

// WAL is the append-only log a pipe write falls back to on failure (spec
// §4.7): "a WAL append on failure is best-effort; double-failures are
// lost." Backed by modernc.org/sqlite for the same zero-setup reasons as
// store.SQLite.
type WAL struct {
	db *sql.DB
}

// NewWAL opens (creating if absent) a SQLite-backed WAL at path.
func NewWAL(path string) (*WAL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("table: open wal: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS pipe_wal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	table_id TEXT NOT NULL,
	row_json TEXT NOT NULL,
	created_at_unix_ms INTEGER NOT NULL,
	acked INTEGER NOT NULL DEFAULT 0
)`); err != nil {
		db.Close()
		return nil, err
	}
	return &WAL{db: db}, nil
}

func (w *WAL) Close() error { return w.db.Close() }

// Append records a failed row write for later replay.
func (w *WAL) Append(ctx context.Context, tableID string, row map[string]engine.Value) error {
	plain := make(map[string]interface{}, len(row))
	for k, v := range row {
		plain[k] = v.ToAny()
	}
	body, err := json.Marshal(plain)
	if err != nil {
		return err
	}
	_, err = w.db.ExecContext(ctx, `INSERT INTO pipe_wal (table_id, row_json, created_at_unix_ms) VALUES (?, ?, ?)`,
		tableID, string(body), time.Now().UTC().UnixMilli())
	return err
}

// WALEntry is one pending (unacked) WAL record.
type WALEntry struct {
	ID      int64
	TableID string
	Row     map[string]interface{}
}

// ReadPending returns up to limit unacked entries, oldest first.
func (w *WAL) ReadPending(ctx context.Context, limit int) ([]WALEntry, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT id, table_id, row_json FROM pipe_wal WHERE acked = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WALEntry
	for rows.Next() {
		var e WALEntry
		var body string
		if err := rows.Scan(&e.ID, &e.TableID, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &e.Row); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ack marks entry id as delivered.
func (w *WAL) Ack(ctx context.Context, id int64) error {
	_, err := w.db.ExecContext(ctx, `UPDATE pipe_wal SET acked = 1 WHERE id = ?`, id)
	return err
}

// Compact deletes every acked entry.
func (w *WAL) Compact(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `DELETE FROM pipe_wal WHERE acked = 1`)
	return err
}
