package engine

import (
	"context"
	"sync"
	"time"
)

// StepResult is what a Handler returns from Execute: an outcome plus the
// data that flows into history/output/wait bookkeeping (spec glossary:
// success(output?) / failure(code, message, details?) / wait(wakeAt?,
// waitReason?, resumeToken?), with optional nextStepOverride).
type StepResult struct {
	Outcome Outcome
	Output  Value

	// FailureCode / FailureMessage / FailureDetails are meaningful when
	// Outcome == OutcomeFailure.
	FailureCode    Code
	FailureMessage string
	FailureDetails Value

	// WaitReason / WakeAtUnixMs / ResumeToken are meaningful when
	// Outcome == OutcomeWait. WakeAtUnixMs of 0 means no timed wake: the
	// wait ends at the next Tick or at a Resume, whichever comes first.
	WaitReason   string
	WakeAtUnixMs int64
	ResumeToken  string

	// NextStepOverride, when non-nil, takes precedence over the step's
	// declared transition for this outcome.
	NextStepOverride *string
}

// ContextView is the read-only subset of Context a Handler may use: lookups
// only, no Set/Delete. *Context satisfies this.
type ContextView interface {
	Get(key string) (Value, bool)
	Has(key string) bool
	GetAll(keys []string) map[string]Value
	Snapshot() Value
}

// ExecutionView is a read-only snapshot of an Execution's bookkeeping
// fields, handed to a Handler so it can make decisions (e.g. "is this my
// first attempt?") without holding a reference to the mutable Execution the
// engine is applying this Tick's result to.
type ExecutionView struct {
	ID                string
	FlowID            string
	FlowVersion       string
	TenantID          string
	ParentExecutionID string
	Status            Status
	CurrentStep       string
	StepCount         int
	Attempt           int // this step's attempts so far, including the current one
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// snapshot builds the ExecutionView a Handler sees for the step about to run.
func (e *Execution) snapshot(stepID string) ExecutionView {
	return ExecutionView{
		ID:                e.ID,
		FlowID:            e.FlowID,
		FlowVersion:       e.FlowVersion,
		TenantID:          e.TenantID,
		ParentExecutionID: e.ParentExecutionID,
		Status:            e.Status,
		CurrentStep:       e.CurrentStep,
		StepCount:         e.StepCount,
		Attempt:           e.Retries[stepID] + 1,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

// Params is the input handed to a Handler.Execute call.
type Params struct {
	ExecutionID string
	FlowID      string
	StepID      string
	Config      Value
	Input       Value

	// Context is a read-only view onto the execution's data context, for
	// handlers that need to read keys beyond what their InputSelector
	// already resolved.
	Context ContextView
	// Execution is a read-only snapshot of the execution this step belongs
	// to, taken immediately before the handler runs.
	Execution ExecutionView
	// Tokens is the resume-token manager, non-nil whenever the Engine was
	// built with one. A handler that returns an OutcomeWait result without
	// a WakeAtUnixMs should mint its own token via Tokens.Issue and return
	// it as StepResult.ResumeToken when it needs control over the token's
	// expiry; otherwise the engine mints one automatically.
	Tokens ResumeTokenManager
}

// Handler is the pluggable unit of work a Step invokes,
// identified by a Type string and invoked with Params/Context.
type Handler interface {
	// Type returns the handler's registration type, matching Step.Type.
	Type() string
	// Execute runs the handler against the given params. ctx carries
	// cancellation for long-running handlers; handlers should respect
	// ctx.Done() where practical.
	Execute(ctx context.Context, params Params) (StepResult, error)
}

// ConfigValidator is an optional Handler capability for checking a
// Step.Config. Neither FlowRegistry.Register nor ValidateFlow calls it; a
// caller that wants the check invokes ValidateConfig itself.
type ConfigValidator interface {
	ValidateConfig(config Value) error
}

// Stateful is an optional Handler capability flagging that the handler
// holds state that must not be shared across concurrent executions. The
// in-memory registry does not act on it: HandlerRegistry.Get returns the
// one registered instance whether or not the handler is Stateful.
type Stateful interface {
	Stateful() bool
}

// Descriptor is registration metadata about a Handler, independent of any
// particular instance.
type Descriptor struct {
	Type        string
	Description string
}

// HandlerRegistry resolves Step.Type to a Handler instance.
type HandlerRegistry interface {
	Register(h Handler) error
	Get(handlerType string) (Handler, bool)
	Descriptors() []Descriptor
}

// memoryHandlerRegistry is the in-process HandlerRegistry implementation.
// Many executions Tick concurrently against the same Engine, so Register
// (typically called once at startup but not guaranteed to be) and Get (on
// every Tick) must be safe for concurrent use.
type memoryHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	descs    map[string]Descriptor
}

// NewHandlerRegistry returns an empty in-memory HandlerRegistry.
func NewHandlerRegistry() HandlerRegistry {
	return &memoryHandlerRegistry{
		handlers: map[string]Handler{},
		descs:    map[string]Descriptor{},
	}
}

func (r *memoryHandlerRegistry) Register(h Handler) error {
	t := h.Type()
	if t == "" {
		return NewError(CodeFlowInvalid, "handler type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
	r.descs[t] = Descriptor{Type: t}
	return nil
}

func (r *memoryHandlerRegistry) Get(handlerType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[handlerType]
	return h, ok
}

func (r *memoryHandlerRegistry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	return out
}
