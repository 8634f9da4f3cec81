package engine

import "context"

// TableWriter appends a row of named column values to an external table
// referenced by tableID. It is the collaborator a Pipe fires into (spec
// §4.7). Writes are fire-and-forget from the execution's perspective: a
// TableWriter failure never fails the step that produced the data, it only
// increments the pipe_failures_total metric and is reported through the
// EventBus — see Engine.firePipes.
type TableWriter interface {
	WriteRow(ctx context.Context, tableID string, row map[string]Value) error
}

// noopTableWriter discards every row; used when an Engine is built without
// a TableWriter and a Flow declares no pipes (or the caller accepts pipes
// silently going nowhere, e.g. in unit tests exercising routing logic only).
type noopTableWriter struct{}

// NewNoopTableWriter returns a TableWriter that discards every row.
func NewNoopTableWriter() TableWriter { return noopTableWriter{} }

func (noopTableWriter) WriteRow(context.Context, string, map[string]Value) error { return nil }
