// Package store provides Store implementations for engine.Execution: an
// in-memory store for tests and single-process use, and durable
// SQLite/MySQL backends for production, all behind the same engine.Store
// contract.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/enginecore/engine"
)

// Memory is an in-memory engine.Store, the reference implementation used
// by tests. Thread-safe; data is lost on process exit.
type Memory struct {
	mu    sync.RWMutex
	execs map[string]*engine.Execution
	// idempotency maps (flowID, key) -> execution id, for Create dedup.
	idempotency map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		execs:       map[string]*engine.Execution{},
		idempotency: map[string]string{},
	}
}

func idempotencyMapKey(flowID, key string) string { return flowID + "\x00" + key }

func (m *Memory) Create(_ context.Context, exec *engine.Execution) (*engine.Execution, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exec.IdempotencyKey != "" {
		mapKey := idempotencyMapKey(exec.FlowID, exec.IdempotencyKey)
		if existingID, ok := m.idempotency[mapKey]; ok {
			if existing, ok := m.execs[existingID]; ok && !existing.IdempotencyExpiresAt.IsZero() && existing.IdempotencyExpiresAt.After(time.Now().UTC()) {
				return existing, false, nil
			}
		}
		m.idempotency[mapKey] = exec.ID
	}

	cp := cloneExecution(exec)
	m.execs[cp.ID] = cp
	return cloneExecution(cp), true, nil
}

func (m *Memory) Get(_ context.Context, id string) (*engine.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.execs[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return cloneExecution(exec), nil
}

func (m *Memory) Save(_ context.Context, exec *engine.Execution, expectedUpdatedAtUnixNano int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.execs[exec.ID]
	if !ok {
		return engine.ErrNotFound
	}
	if current.UpdatedAt.UnixNano() != expectedUpdatedAtUnixNano {
		return engine.ErrConflict
	}
	m.execs[exec.ID] = cloneExecution(exec)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.execs[id]; !ok {
		return false, nil
	}
	delete(m.execs, id)
	return true, nil
}

func (m *Memory) ListByStatus(_ context.Context, status engine.Status, limit int) ([]*engine.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.Execution
	for _, e := range m.execs {
		if e.Status == status {
			out = append(out, cloneExecution(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListChildren(_ context.Context, parentID string) ([]*engine.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.Execution
	for _, e := range m.execs {
		if e.ParentExecutionID == parentID {
			out = append(out, cloneExecution(e))
		}
	}
	return out, nil
}

func (m *Memory) ListWaiting(_ context.Context, beforeUnixNano int64) ([]*engine.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.Execution
	for _, e := range m.execs {
		if e.Status == engine.StatusWaiting && e.Wait != nil && !e.Wait.WakeAt.IsZero() && e.Wait.WakeAt.UnixNano() <= beforeUnixNano {
			out = append(out, cloneExecution(e))
		}
	}
	return out, nil
}

// cloneExecution returns a shallow-field copy of exec, deep enough that
// mutating the caller's copy (or the stored copy) never corrupts the other
// — Context and slices are the only reference fields of note.
func cloneExecution(exec *engine.Execution) *engine.Execution {
	cp := *exec
	if exec.Context != nil {
		cp.Context = exec.Context.Clone()
	}
	if exec.History != nil {
		cp.History = append([]engine.HistoryEntry(nil), exec.History...)
	}
	if exec.Retries != nil {
		retries := make(map[string]int, len(exec.Retries))
		for k, v := range exec.Retries {
			retries[k] = v
		}
		cp.Retries = retries
	}
	if exec.Wait != nil {
		w := *exec.Wait
		cp.Wait = &w
	}
	if exec.Failure != nil {
		f := *exec.Failure
		cp.Failure = &f
	}
	return &cp
}
