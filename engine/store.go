package engine

import "context"

// Store provides persistence for Execution records, keyed by execution id,
// with one current snapshot per execution plus an append-only history.
//
// Implementations must provide optimistic concurrency: Save fails with
// ErrConflict if the stored record's UpdatedAt has moved past the value the
// caller last loaded, so two concurrent Ticks against the same execution
// never both win.
type Store interface {
	// Create persists a brand-new execution. If an execution with the same
	// FlowID+IdempotencyKey already exists and its IdempotencyExpiresAt has
	// not passed, Create returns the existing execution and created=false
	// instead of creating a duplicate (idempotent Create).
	Create(ctx context.Context, exec *Execution) (stored *Execution, created bool, err error)

	// Get loads an execution by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Execution, error)

	// Save persists exec, enforcing optimistic concurrency against
	// expectedUpdatedAtUnixNano (the UpdatedAt the caller last observed, as
	// nanoseconds since epoch). Returns ErrConflict on mismatch.
	Save(ctx context.Context, exec *Execution, expectedUpdatedAtUnixNano int64) error

	// Delete removes an execution permanently (retention/GC), reporting
	// whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// ListByStatus returns up to limit executions currently in status,
	// ordered oldest-updated first. limit <= 0 means unbounded.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Execution, error)

	// ListChildren returns executions whose ParentExecutionID equals
	// parentID, for cascading cancellation.
	ListChildren(ctx context.Context, parentID string) ([]*Execution, error)

	// ListWaiting returns executions in StatusWaiting with a non-zero
	// Wait.WakeAt at or before before (nanoseconds since epoch), for
	// timeout sweeps.
	ListWaiting(ctx context.Context, before int64) ([]*Execution, error)
}

// ErrNotFound is returned by Store.Get for an unknown execution id.
var ErrNotFound = NewError(CodeExecutionNotFound, "execution not found")

// ErrConflict is returned by Store.Save when the caller's view of an
// execution is stale (another Tick committed first).
var ErrConflict = NewError(CodeInvalidTransition, "execution was concurrently modified")
