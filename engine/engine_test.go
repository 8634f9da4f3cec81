package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowforge/enginecore/engine"
	"github.com/flowforge/enginecore/token"
)

// memStore is a minimal engine.Store for engine-package tests, kept local so
// these tests do not depend on the store package's implementation.
type memStore struct {
	execs map[string]*engine.Execution
	// versions holds each execution's UpdatedAt as of its last Create/Save.
	// Get hands out the live pointer, so Save checks against this rather than
	// against the record the caller may already have mutated.
	versions map[string]int64
}

func newMemStore() *memStore {
	return &memStore{execs: map[string]*engine.Execution{}, versions: map[string]int64{}}
}

func (s *memStore) Create(_ context.Context, exec *engine.Execution) (*engine.Execution, bool, error) {
	if exec.IdempotencyKey != "" {
		for _, e := range s.execs {
			if e.FlowID == exec.FlowID && e.IdempotencyKey == exec.IdempotencyKey {
				return e, false, nil
			}
		}
	}
	s.execs[exec.ID] = exec
	s.versions[exec.ID] = exec.UpdatedAt.UnixNano()
	return exec, true, nil
}

func (s *memStore) Get(_ context.Context, id string) (*engine.Execution, error) {
	e, ok := s.execs[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return e, nil
}

func (s *memStore) Save(_ context.Context, exec *engine.Execution, expected int64) error {
	if _, ok := s.execs[exec.ID]; !ok {
		return engine.ErrNotFound
	}
	if s.versions[exec.ID] != expected {
		return engine.ErrConflict
	}
	s.execs[exec.ID] = exec
	s.versions[exec.ID] = exec.UpdatedAt.UnixNano()
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := s.execs[id]; !ok {
		return false, nil
	}
	delete(s.execs, id)
	return true, nil
}

func (s *memStore) ListByStatus(_ context.Context, status engine.Status, limit int) ([]*engine.Execution, error) {
	var out []*engine.Execution
	for _, e := range s.execs {
		if e.Status == status {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListChildren(_ context.Context, parentID string) ([]*engine.Execution, error) {
	var out []*engine.Execution
	for _, e := range s.execs {
		if e.ParentExecutionID == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListWaiting(_ context.Context, before int64) ([]*engine.Execution, error) {
	var out []*engine.Execution
	for _, e := range s.execs {
		if e.Status == engine.StatusWaiting && e.Wait != nil && !e.Wait.WakeAt.IsZero() && e.Wait.WakeAt.UnixNano() <= before {
			out = append(out, e)
		}
	}
	return out, nil
}

// fnHandler adapts a plain function into an engine.Handler for tests.
type fnHandler struct {
	typ string
	fn  func(ctx context.Context, params engine.Params) (engine.StepResult, error)
}

func (h fnHandler) Type() string { return h.typ }
func (h fnHandler) Execute(ctx context.Context, params engine.Params) (engine.StepResult, error) {
	return h.fn(ctx, params)
}

func alwaysSucceeds(output engine.Value) engine.Handler {
	return fnHandler{typ: "succeed", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		return engine.StepResult{Outcome: engine.OutcomeSuccess, Output: output}, nil
	}}
}

func newTestEngine(t *testing.T, flow *engine.Flow, handlers ...engine.Handler) (*engine.Engine, *memStore) {
	t.Helper()
	flows := engine.NewFlowRegistry()
	if err := flows.Register(flow); err != nil {
		t.Fatalf("register flow: %v", err)
	}
	registry := engine.NewHandlerRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}
	st := newMemStore()
	eng, err := engine.New(flows, registry, st, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, st
}

func newTestEngineWithTokens(t *testing.T, tokens engine.ResumeTokenManager, flow *engine.Flow, handlers ...engine.Handler) (*engine.Engine, *memStore) {
	t.Helper()
	flows := engine.NewFlowRegistry()
	if err := flows.Register(flow); err != nil {
		t.Fatalf("register flow: %v", err)
	}
	registry := engine.NewHandlerRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}
	st := newMemStore()
	eng, err := engine.New(flows, registry, st, nil, tokens, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, st
}

func newTestEngineWithBus(t *testing.T, eventBus engine.EventBus, flow *engine.Flow, handlers ...engine.Handler) (*engine.Engine, *memStore) {
	t.Helper()
	flows := engine.NewFlowRegistry()
	if err := flows.Register(flow); err != nil {
		t.Fatalf("register flow: %v", err)
	}
	registry := engine.NewHandlerRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}
	st := newMemStore()
	eng, err := engine.New(flows, registry, st, eventBus, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, st
}

// recordingBus captures every published Event's Meta for assertions, without
// pulling in the bus package's dispatch machinery.
type recordingBus struct {
	mu     sync.Mutex
	events []engine.Event
}

func (r *recordingBus) Publish(event engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBus) PublishBatch(_ context.Context, events []engine.Event) error {
	for _, e := range events {
		r.Publish(e)
	}
	return nil
}

func (r *recordingBus) Flush(context.Context) error { return nil }

func (r *recordingBus) byType(eventType engine.EventType) []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestEngineRunCompletesLinearFlow(t *testing.T) {
	flow := &engine.Flow{
		ID: "linear", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "succeed", OutputKey: "a_out", Transitions: engine.Transitions{OnSuccess: "b"}},
			"b": {ID: "b", Type: "succeed", OutputKey: "b_out"},
		},
	}
	eng, _ := newTestEngine(t, flow, alwaysSucceeds(engine.StringValue("done")))

	ctx := context.Background()
	created, err := eng.Create(ctx, "linear", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.Created {
		t.Fatal("expected a fresh execution to be created")
	}

	result, err := eng.Run(ctx, created.Execution.ID, engine.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Done || result.Status != engine.StatusCompleted {
		t.Fatalf("Run result = %+v, want Done/Completed", result)
	}

	final, err := eng.Get(ctx, created.Execution.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, ok := final.Context.Get("b_out"); !ok || v.Str != "done" {
		t.Errorf("expected b_out projected into context, got %v, %v", v, ok)
	}
}

func TestEngineApplyFailureNoRetryFails(t *testing.T) {
	fail := fnHandler{typ: "fail", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		return engine.StepResult{Outcome: engine.OutcomeFailure, FailureCode: engine.CodeStepFailed, FailureMessage: "boom"}, nil
	}}
	flow := &engine.Flow{
		ID: "failing", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{"a": {ID: "a", Type: "fail"}},
	}
	eng, _ := newTestEngine(t, flow, fail)

	ctx := context.Background()
	created, err := eng.Create(ctx, "failing", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	result, err := eng.Run(ctx, created.Execution.ID, engine.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Done || result.Status != engine.StatusFailed {
		t.Fatalf("Run result = %+v, want Done/Failed", result)
	}
	if result.Error == nil || result.Error.Message != "boom" {
		t.Errorf("unexpected failure detail: %+v", result.Error)
	}
}

func TestEngineRetriesThenSucceeds(t *testing.T) {
	var attempts int32
	flaky := fnHandler{typ: "flaky", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return engine.StepResult{Outcome: engine.OutcomeFailure, FailureCode: engine.CodeStepFailed, FailureMessage: "transient"}, nil
		}
		return engine.StepResult{Outcome: engine.OutcomeSuccess, Output: engine.StringValue("ok")}, nil
	}}
	flow := &engine.Flow{
		ID: "retrying", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "flaky", Retry: &engine.RetryPolicy{MaxAttempts: 5, BackoffMs: 0}},
		},
	}
	eng, _ := newTestEngine(t, flow, flaky)

	ctx := context.Background()
	created, err := eng.Create(ctx, "retrying", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	result, err := eng.Run(ctx, created.Execution.ID, engine.RunOptions{SimulateTime: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Done || result.Status != engine.StatusCompleted {
		t.Fatalf("Run result = %+v, want Done/Completed after retries", result)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

// TestEngineRetryBackoffUsesRealBackoffFormula drives real (non-zero)
// backoff through Engine.Tick and checks the emitted step.retry events
// carry the exact exponential-with-multiplier values the backoff formula
// computes, rather than the BackoffMs: 0 shortcut the other retry tests use.
// Between retries it fast-forwards the stored WakeAt into the past instead
// of sleeping, since Tick consults wall-clock time directly regardless of
// any test-time simulation flag.
func TestEngineRetryBackoffUsesRealBackoffFormula(t *testing.T) {
	var attempts int32
	flaky := fnHandler{typ: "flaky", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return engine.StepResult{Outcome: engine.OutcomeFailure, FailureCode: engine.CodeStepFailed, FailureMessage: "transient"}, nil
		}
		return engine.StepResult{Outcome: engine.OutcomeSuccess, Output: engine.StringValue("ok")}, nil
	}}
	flow := &engine.Flow{
		ID: "retry-backoff", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "flaky", Retry: &engine.RetryPolicy{MaxAttempts: 5, BackoffMs: 100}},
		},
	}
	recorder := &recordingBus{}
	eng, st := newTestEngineWithBus(t, recorder, flow, flaky)

	ctx := context.Background()
	created, err := eng.Create(ctx, "retry-backoff", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	execID := created.Execution.ID

	for i := 0; i < 3; i++ {
		if _, err := eng.Tick(ctx, execID); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
		exec, getErr := st.Get(ctx, execID)
		if getErr != nil {
			t.Fatalf("Get after Tick %d: %v", i, getErr)
		}
		if exec.Wait != nil {
			exec.Wait.WakeAt = time.Now().Add(-time.Second) // fast-forward past backoff
		}
	}

	retries := recorder.byType("step.retry")
	if len(retries) != 2 {
		t.Fatalf("expected 2 step.retry events, got %d: %+v", len(retries), retries)
	}
	wantBackoffMs := []int64{100, 200} // BackoffMs 100, default multiplier 2: 100*2^0, 100*2^1
	for i, want := range wantBackoffMs {
		got, ok := retries[i].Meta["backoffMs"].(int64)
		if !ok {
			t.Fatalf("retry event %d: backoffMs meta = %v, want int64", i, retries[i].Meta["backoffMs"])
		}
		if got != want {
			t.Errorf("retry event %d: backoffMs = %d, want %d", i, got, want)
		}
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestEngineRetryExhaustionFails(t *testing.T) {
	alwaysFails := fnHandler{typ: "always_fails", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		return engine.StepResult{Outcome: engine.OutcomeFailure, FailureCode: engine.CodeStepFailed, FailureMessage: "still broken"}, nil
	}}
	flow := &engine.Flow{
		ID: "exhaust", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "always_fails", Retry: &engine.RetryPolicy{MaxAttempts: 2, BackoffMs: 0}},
		},
	}
	eng, _ := newTestEngine(t, flow, alwaysFails)

	ctx := context.Background()
	created, err := eng.Create(ctx, "exhaust", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	result, err := eng.Run(ctx, created.Execution.ID, engine.RunOptions{SimulateTime: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Done || result.Status != engine.StatusFailed {
		t.Fatalf("Run result = %+v, want Done/Failed once retries exhaust", result)
	}
}

func TestEngineWaitAndResume(t *testing.T) {
	waiter := fnHandler{typ: "waiter", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		return engine.StepResult{Outcome: engine.OutcomeWait, WaitReason: "external approval"}, nil
	}}
	flow := &engine.Flow{
		ID: "waits", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "waiter", Transitions: engine.Transitions{OnResume: "b"}},
			"b": {ID: "b", Type: "succeed", OutputKey: "out"},
		},
	}
	eng, st := newTestEngine(t, flow, waiter, alwaysSucceeds(engine.StringValue("resumed")))

	ctx := context.Background()
	created, err := eng.Create(ctx, "waits", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tick, err := eng.Tick(ctx, created.Execution.ID)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if tick.Status != engine.StatusWaiting {
		t.Fatalf("after first tick, status = %v, want waiting", tick.Status)
	}

	exec, _ := st.Get(ctx, created.Execution.ID)
	if exec.CurrentStep != "b" {
		t.Fatalf("waiting execution should have advanced CurrentStep to onResume target, got %q", exec.CurrentStep)
	}

	result, err := eng.Run(ctx, created.Execution.ID, engine.RunOptions{SimulateTime: true})
	if err != nil {
		t.Fatalf("Run after wait: %v", err)
	}
	if !result.Done || result.Status != engine.StatusCompleted {
		t.Fatalf("Run result after resume = %+v, want Done/Completed", result)
	}
}

func TestEngineWaitIssuesTokenAndResumeConsumesIt(t *testing.T) {
	waiter := fnHandler{typ: "waiter", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		if params.Tokens == nil {
			t.Fatal("handler should see a non-nil Tokens manager")
		}
		return engine.StepResult{Outcome: engine.OutcomeWait, WaitReason: "external approval"}, nil
	}}
	flow := &engine.Flow{
		ID: "token-wait", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "waiter", Transitions: engine.Transitions{OnResume: "b"}},
			"b": {ID: "b", Type: "succeed", OutputKey: "out"},
		},
	}
	tokens := token.NewMemory()
	eng, st := newTestEngineWithTokens(t, tokens, flow, waiter, alwaysSucceeds(engine.StringValue("resumed")))

	ctx := context.Background()
	created, err := eng.Create(ctx, "token-wait", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tick, err := eng.Tick(ctx, created.Execution.ID)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if tick.Status != engine.StatusWaiting {
		t.Fatalf("after first tick, status = %v, want waiting", tick.Status)
	}

	exec, _ := st.Get(ctx, created.Execution.ID)
	if exec.Wait == nil || exec.Wait.Token == "" {
		t.Fatalf("engine should have auto-issued a resume token for an untimed wait, got %+v", exec.Wait)
	}
	tok := exec.Wait.Token

	result, err := eng.Resume(ctx, tok)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !result.Done || result.Status != engine.StatusCompleted {
		t.Fatalf("Resume result = %+v, want Done/Completed", result)
	}

	if _, err := eng.Resume(ctx, tok); !engine.IsCode(err, engine.CodeInvalidResumeToken) {
		t.Fatalf("re-consuming the same token should fail with CodeInvalidResumeToken, got %v", err)
	}
}

func TestEngineCreateIsIdempotent(t *testing.T) {
	flow := &engine.Flow{
		ID: "idem", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{"a": {ID: "a", Type: "succeed"}},
	}
	eng, _ := newTestEngine(t, flow, alwaysSucceeds(engine.Null))

	ctx := context.Background()
	first, err := eng.Create(ctx, "idem", nil, engine.CreateOptions{IdempotencyKey: "req-1"})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := eng.Create(ctx, "idem", nil, engine.CreateOptions{IdempotencyKey: "req-1"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if !first.Created {
		t.Fatal("first create should report Created=true")
	}
	if second.Created || !second.IdempotencyHit {
		t.Fatalf("second create with same key should dedup, got %+v", second)
	}
	if first.Execution.ID != second.Execution.ID {
		t.Errorf("idempotent create returned a different execution id: %s vs %s", first.Execution.ID, second.Execution.ID)
	}
}

func TestEngineMaxStepsExceeded(t *testing.T) {
	flow := &engine.Flow{
		ID: "loopy", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "succeed", Transitions: engine.Transitions{OnSuccess: "a"}},
		},
	}
	flows := engine.NewFlowRegistry()
	if err := flows.Register(flow); err != nil {
		t.Fatalf("register flow: %v", err)
	}
	registry := engine.NewHandlerRegistry()
	_ = registry.Register(alwaysSucceeds(engine.Null))
	st := newMemStore()
	eng, err := engine.New(flows, registry, st, nil, nil, nil, engine.WithMaxSteps(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	created, err := eng.Create(ctx, "loopy", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	result, err := eng.Run(ctx, created.Execution.ID, engine.RunOptions{MaxIterations: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Done || result.Status != engine.StatusFailed || result.Error == nil || result.Error.Code != engine.CodeMaxSteps {
		t.Fatalf("expected MAX_STEPS failure, got %+v", result)
	}
}

func TestEngineCancelCascadesToChildren(t *testing.T) {
	waiter := fnHandler{typ: "waiter", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		return engine.StepResult{Outcome: engine.OutcomeWait}, nil
	}}
	flow := &engine.Flow{
		ID: "cancellable", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{"a": {ID: "a", Type: "waiter"}},
	}
	eng, st := newTestEngine(t, flow, waiter)

	ctx := context.Background()
	parent, err := eng.Create(ctx, "cancellable", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := eng.Create(ctx, "cancellable", nil, engine.CreateOptions{ParentExecutionID: parent.Execution.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	if _, err := eng.Tick(ctx, parent.Execution.ID); err != nil {
		t.Fatalf("tick parent: %v", err)
	}
	if _, err := eng.Tick(ctx, child.Execution.ID); err != nil {
		t.Fatalf("tick child: %v", err)
	}

	result, err := eng.Cancel(ctx, parent.Execution.ID, engine.CancelOptions{Reason: "test"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !result.Cancelled || result.ChildrenCancelled != 1 {
		t.Fatalf("Cancel result = %+v, want Cancelled with 1 child", result)
	}

	childExec, err := st.Get(ctx, child.Execution.ID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if childExec.Status != engine.StatusCancelled {
		t.Errorf("child status = %v, want cancelled", childExec.Status)
	}
	if childExec.Cancel.Source != engine.CancelSourceParent {
		t.Errorf("child cancel source = %v, want parent", childExec.Cancel.Source)
	}
}

func TestEngineCancelBeforeFirstTick(t *testing.T) {
	noop := fnHandler{typ: "noop", fn: func(ctx context.Context, params engine.Params) (engine.StepResult, error) {
		return engine.StepResult{Outcome: engine.OutcomeSuccess}, nil
	}}
	flow := &engine.Flow{
		ID: "cancel-pending", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{"a": {ID: "a", Type: "noop"}},
	}
	eng, st := newTestEngine(t, flow, noop)

	ctx := context.Background()
	created, err := eng.Create(ctx, "cancel-pending", nil, engine.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	exec, err := st.Get(ctx, created.Execution.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if exec.Status != engine.StatusPending {
		t.Fatalf("precondition: execution status = %v, want pending", exec.Status)
	}

	result, err := eng.Cancel(ctx, created.Execution.ID, engine.CancelOptions{Reason: "never started"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !result.Cancelled {
		t.Fatalf("Cancel result = %+v, want Cancelled for a never-ticked execution", result)
	}

	exec, err = st.Get(ctx, created.Execution.ID)
	if err != nil {
		t.Fatalf("Get after cancel: %v", err)
	}
	if exec.Status != engine.StatusCancelled {
		t.Errorf("status = %v, want cancelled", exec.Status)
	}
}

func TestEngineTickOnUnknownExecutionReturnsNotFound(t *testing.T) {
	flow := &engine.Flow{
		ID: "f", Version: "1", InitialStepID: "a",
		Steps: map[string]engine.Step{"a": {ID: "a", Type: "succeed"}},
	}
	eng, _ := newTestEngine(t, flow, alwaysSucceeds(engine.Null))

	result, err := eng.Tick(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Tick should report not-found via result, not error: %v", err)
	}
	if !result.Done || result.Error == nil || result.Error.Code != engine.CodeExecutionNotFound {
		t.Fatalf("unexpected result for unknown execution: %+v", result)
	}
}

func TestEngineCreateUnknownFlowErrors(t *testing.T) {
	flows := engine.NewFlowRegistry()
	registry := engine.NewHandlerRegistry()
	st := newMemStore()
	eng, err := engine.New(flows, registry, st, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = eng.Create(context.Background(), "nope", nil, engine.CreateOptions{})
	if !engine.IsCode(err, engine.CodeFlowNotFound) {
		t.Fatalf("expected CodeFlowNotFound, got %v", err)
	}
}
