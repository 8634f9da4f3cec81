package table

import (
	"context"

	"github.com/flowforge/enginecore/engine"
)

// Guarded wraps a TableWriter so a failed WriteRow falls back to appending
// the row to a WAL for later replay: a WAL append on failure is best-effort,
// and a double-failure (inner write AND WAL append both fail) is lost.
// Guarded still propagates the original inner error to the caller after
// attempting the WAL fallback, since Engine.firePipes already treats pipe
// failures as fire-and-forget and records them on the event bus either way.
type Guarded struct {
	inner engine.TableWriter
	wal   *WAL
}

func NewGuarded(inner engine.TableWriter, wal *WAL) *Guarded {
	return &Guarded{inner: inner, wal: wal}
}

func (g *Guarded) WriteRow(ctx context.Context, tableID string, row map[string]engine.Value) error {
	if err := g.inner.WriteRow(ctx, tableID, row); err != nil {
		_ = g.wal.Append(ctx, tableID, row) // best-effort; double-failure is lost
		return err
	}
	return nil
}
