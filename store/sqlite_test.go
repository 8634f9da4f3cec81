package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/enginecore/engine"
	"github.com/flowforge/enginecore/store"
)

func newTestSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.NewSQLite(":memory:", engine.DefaultBudget(), nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCreateGetRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	exec := newExec("e1", "flow")
	exec.Context = engine.NewContext(engine.DefaultBudget(), nil)
	_ = exec.Context.Set("greeting", engine.StringValue("hi"), engine.SetOptions{})

	stored, created, err := s.Create(ctx, exec)
	if err != nil || !created {
		t.Fatalf("Create: stored=%v created=%v err=%v", stored, created, err)
	}

	got, err := s.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, ok := got.Context.Get("greeting"); !ok || v.Str != "hi" {
		t.Errorf("round-tripped context missing greeting: %v, %v", v, ok)
	}
}

func TestSQLiteGetMissingReturnsNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.Get(context.Background(), "missing")
	if !engine.IsCode(err, engine.CodeExecutionNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteCreateDedupsByIdempotencyKey(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	e1 := newExec("e1", "flow")
	e1.IdempotencyKey = "key-1"
	e1.IdempotencyExpiresAt = time.Now().UTC().Add(time.Hour)
	if _, _, err := s.Create(ctx, e1); err != nil {
		t.Fatalf("first create: %v", err)
	}

	e2 := newExec("e2", "flow")
	e2.IdempotencyKey = "key-1"
	e2.IdempotencyExpiresAt = time.Now().UTC().Add(time.Hour)
	stored, created, err := s.Create(ctx, e2)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || stored.ID != "e1" {
		t.Fatalf("expected dedup against e1, got stored=%v created=%v", stored.ID, created)
	}
}

func TestSQLiteSaveOptimisticConcurrency(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	exec := newExec("e1", "flow")
	stored, _, err := s.Create(ctx, exec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	staleUpdatedAt := stored.UpdatedAt.UnixNano()

	stored.Status = engine.StatusRunning
	stored.UpdatedAt = time.Now().UTC().Add(time.Second)
	if err := s.Save(ctx, stored, staleUpdatedAt); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	stored.Status = engine.StatusCompleted
	if err := s.Save(ctx, stored, staleUpdatedAt); !engine.IsCode(err, engine.CodeInvalidTransition) {
		t.Fatalf("expected ErrConflict on stale Save, got %v", err)
	}
}

func TestSQLiteDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, _, err := s.Create(ctx, newExec("e1", "flow")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := s.Delete(ctx, "e1")
	if err != nil || !ok {
		t.Fatalf("Delete existing = %v, %v, want true, nil", ok, err)
	}
	if _, err := s.Get(ctx, "e1"); !engine.IsCode(err, engine.CodeExecutionNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrNotFound", err)
	}

	ok, err = s.Delete(ctx, "e1")
	if err != nil || ok {
		t.Fatalf("Delete missing = %v, %v, want false, nil", ok, err)
	}
}

func TestSQLiteListByStatus(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	running := newExec("r1", "flow")
	running.Status = engine.StatusRunning
	completed := newExec("c1", "flow")
	completed.Status = engine.StatusCompleted

	for _, e := range []*engine.Execution{running, completed} {
		if _, _, err := s.Create(ctx, e); err != nil {
			t.Fatalf("Create(%s): %v", e.ID, err)
		}
	}

	got, err := s.ListByStatus(ctx, engine.StatusRunning, 0)
	if err != nil || len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("ListByStatus(running) = %v, err=%v", got, err)
	}

	got, err = s.ListByStatus(ctx, engine.StatusRunning, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListByStatus with limit=1 = %v, err=%v", got, err)
	}
}

func TestSQLiteListChildrenAndWaiting(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	parent := newExec("p1", "flow")
	child := newExec("c1", "flow")
	child.ParentExecutionID = "p1"
	waiting := newExec("w1", "flow")
	waiting.Status = engine.StatusWaiting
	waiting.Wait = &engine.WaitState{WakeAt: time.Now().UTC().Add(-time.Minute)}

	for _, e := range []*engine.Execution{parent, child, waiting} {
		if _, _, err := s.Create(ctx, e); err != nil {
			t.Fatalf("Create(%s): %v", e.ID, err)
		}
	}

	children, err := s.ListChildren(ctx, "p1")
	if err != nil || len(children) != 1 || children[0].ID != "c1" {
		t.Fatalf("ListChildren = %v, err=%v", children, err)
	}

	due, err := s.ListWaiting(ctx, time.Now().UTC().UnixNano())
	if err != nil || len(due) != 1 || due[0].ID != "w1" {
		t.Fatalf("ListWaiting = %v, err=%v", due, err)
	}
}
