// Package table provides engine.TableWriter implementations and a
// write-ahead log for pipe writes that fail against their primary target
// an in-memory writer for tests, a PostgreSQL-backed writer
// for production (grounded on the pack's oasis/kubernaut examples, which
// carry github.com/jackc/pgx/v5 as a direct dependency), and a SQLite WAL.
package table

import (
	"context"
	"sync"

	"github.com/flowforge/enginecore/engine"
)

// Memory is an in-memory engine.TableWriter, recording every row by table
// id for test assertions.
type Memory struct {
	mu   sync.Mutex
	rows map[string][]map[string]engine.Value
}

func NewMemory() *Memory {
	return &Memory{rows: map[string][]map[string]engine.Value{}}
}

func (m *Memory) WriteRow(_ context.Context, tableID string, row map[string]engine.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]engine.Value, len(row))
	for k, v := range row {
		cp[k] = v
	}
	m.rows[tableID] = append(m.rows[tableID], cp)
	return nil
}

// Rows returns a copy of the rows written to tableID, in write order.
func (m *Memory) Rows(tableID string) []map[string]engine.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]engine.Value, len(m.rows[tableID]))
	for i, row := range m.rows[tableID] {
		cp := make(map[string]engine.Value, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
