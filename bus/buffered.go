package bus

import (
	"context"
	"sync"

	"github.com/flowforge/enginecore/engine"
)

// Buffered stores every event in memory, keyed by execution id. Intended
// for tests and short-lived admin/debug tooling — it never evicts, so is
// not a production backend.
type Buffered struct {
	mu     sync.RWMutex
	events map[string][]engine.Event
}

func NewBuffered() *Buffered {
	return &Buffered{events: map[string][]engine.Event{}}
}

func (b *Buffered) Publish(event engine.Event) {
	event = stampIfZero(event)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
}

func (b *Buffered) PublishBatch(_ context.Context, events []engine.Event) error {
	for _, e := range events {
		b.Publish(e)
	}
	return nil
}

func (b *Buffered) Flush(context.Context) error { return nil }

// History returns a copy of the events recorded for executionID.
func (b *Buffered) History(executionID string) []engine.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]engine.Event, len(b.events[executionID]))
	copy(out, b.events[executionID])
	return out
}

// Clear drops the recorded history for executionID.
func (b *Buffered) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, executionID)
}
