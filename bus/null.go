package bus

import (
	"context"

	"github.com/flowforge/enginecore/engine"
)

// Null discards every event. engine.NewNullEventBus already provides this
// behavior for the engine package's own default; Null exists here so the
// bus package's backend set is self-contained for callers that want to
// reference bus.Null explicitly (e.g. a config-driven backend selector).
type Null struct{}

func NewNull() *Null { return &Null{} }

func (Null) Publish(engine.Event)                                  {}
func (Null) PublishBatch(context.Context, []engine.Event) error { return nil }
func (Null) Flush(context.Context) error                          { return nil }
