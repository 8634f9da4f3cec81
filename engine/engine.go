package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine is the stateless driver: Create builds new Executions, Tick
// advances one by exactly one handler invocation, Run repeatedly Ticks to
// completion, and Cancel tears an execution (and its children) down. All
// durable state lives in Store; Engine itself holds only its read-mostly
// collaborators, so many Engine values (or many processes, each with their
// own) may safely drive different executions concurrently.
type Engine struct {
	flows    FlowRegistry
	handlers HandlerRegistry
	store    Store
	bus      EventBus
	tokens   ResumeTokenManager
	tables   TableWriter
	metrics  *Metrics
	cfg      Config

	maxCascadeFanout int
}

// New builds an Engine from its required collaborators plus functional
// Options. bus, tokens, and tables may be nil, in which case events are
// discarded, resume tokens are unsupported (Cancel still works; waits
// driven purely by wakeAt still work), and pipes are discarded.
func New(flows FlowRegistry, handlers HandlerRegistry, store Store, bus EventBus, tokens ResumeTokenManager, tables TableWriter, opts ...Option) (*Engine, error) {
	if flows == nil || handlers == nil || store == nil {
		return nil, NewError(CodeFlowInvalid, "flows, handlers and store are required")
	}
	cfg, err := applyOptions(DefaultConfig(), opts)
	if err != nil {
		return nil, err
	}
	if bus == nil {
		bus = NewNullEventBus()
	}
	if tables == nil {
		tables = NewNoopTableWriter()
	}
	return &Engine{
		flows:            flows,
		handlers:         handlers,
		store:            store,
		bus:              bus,
		tokens:           tokens,
		tables:           tables,
		cfg:              cfg,
		maxCascadeFanout: 16,
	}, nil
}

// WithMetrics attaches a Metrics collector, returning the Engine for
// chaining at construction time.
func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// CreateOptions configures Engine.Create.
type CreateOptions struct {
	ExecutionID         string
	TenantID            string
	ParentExecutionID   string
	IdempotencyKey      string
	IdempotencyWindowMs int64
	Timeouts            *TimeoutConfig
	Metadata            map[string]string
}

// CreateResult is Engine.Create's return value.
type CreateResult struct {
	Execution      *Execution
	Created        bool
	IdempotencyHit bool
}

const maxIdempotencyWindowMs = int64(7 * 24 * time.Hour / time.Millisecond)
const defaultIdempotencyWindowMs = int64(24 * time.Hour / time.Millisecond)

// Create builds and persists a new Execution for flowID, or returns an
// existing one under idempotency-key deduplication.
func (e *Engine) Create(ctx context.Context, flowID string, initialContext map[string]Value, opts CreateOptions) (CreateResult, error) {
	if opts.IdempotencyKey != "" {
		window := opts.IdempotencyWindowMs
		if window <= 0 || window > maxIdempotencyWindowMs {
			if window <= 0 {
				window = defaultIdempotencyWindowMs
			} else {
				window = maxIdempotencyWindowMs
			}
		}
		// No separate lookup is made here: Store.Create itself performs the
		// authoritative dedup check atomically with insertion (see store.go).
	}

	flow, ok := e.flows.Get(flowID, "")
	if !ok {
		flow, ok = e.flows.Latest(flowID)
	}
	if !ok {
		return CreateResult{}, NewError(CodeFlowNotFound, fmt.Sprintf("flow %q not found", flowID))
	}

	id := opts.ExecutionID
	if id == "" {
		id = uuid.NewString()
	}

	timeouts := DefaultTimeoutConfig()
	if opts.Timeouts != nil {
		timeouts = *opts.Timeouts
	}

	now := time.Now().UTC()
	exec := &Execution{
		ID:                id,
		FlowID:            flow.ID,
		FlowVersion:       flow.Version,
		TenantID:          opts.TenantID,
		ParentExecutionID: opts.ParentExecutionID,
		Metadata:          opts.Metadata,
		IdempotencyKey:    opts.IdempotencyKey,
		Status:            StatusPending,
		CurrentStep:       flow.InitialStepID,
		Context:           FromValues(e.cfg.ContextBudget, e.cfg.ExternalStore, initialContext),
		StepCount:         0,
		Retries:           map[string]int{},
		Timeouts:          timeouts,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if opts.IdempotencyKey != "" {
		window := opts.IdempotencyWindowMs
		if window <= 0 {
			window = defaultIdempotencyWindowMs
		}
		if window > maxIdempotencyWindowMs {
			window = maxIdempotencyWindowMs
		}
		exec.IdempotencyExpiresAt = now.Add(time.Duration(window) * time.Millisecond)
	}

	stored, created, err := e.store.Create(ctx, exec)
	if err != nil {
		return CreateResult{}, err
	}
	if !created {
		e.bus.Publish(Event{Type: "idempotency.hit", ExecutionID: stored.ID, FlowID: flowID})
		return CreateResult{Execution: stored, Created: false, IdempotencyHit: true}, nil
	}

	e.bus.Publish(Event{Type: EventExecutionCreated, ExecutionID: stored.ID, FlowID: flowID})
	return CreateResult{Execution: stored, Created: true, IdempotencyHit: false}, nil
}

// TickResult is Engine.Tick's return value.
type TickResult struct {
	Done    bool
	Status  Status
	StepID  string
	Outcome *Outcome
	WakeAt  time.Time
	Error   *Failure
}

// Tick loads executionID, advances it by exactly one handler invocation
// (or one housekeeping decision — waking, failing on max-steps, etc.), and
// persists the result.
func (e *Engine) Tick(ctx context.Context, executionID string) (TickResult, error) {
	exec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return TickResult{Done: true, Status: StatusFailed, Error: &Failure{Code: CodeExecutionNotFound, Message: "execution not found"}}, nil
	}

	if exec.Status.terminal() {
		return TickResult{Done: true, Status: exec.Status}, nil
	}

	if exec.Status == StatusCancelling {
		return TickResult{Done: false, Status: StatusCancelling}, nil
	}

	now := time.Now().UTC()

	if exec.Status == StatusWaiting {
		if exec.Wait != nil && !exec.Wait.WakeAt.IsZero() && exec.Wait.WakeAt.After(now) {
			return TickResult{Done: false, Status: StatusWaiting, WakeAt: exec.Wait.WakeAt}, nil
		}
		exec.Wait = nil
		prevUpdated := exec.UpdatedAt.UnixNano()
		if err := exec.transition(StatusRunning); err != nil {
			return TickResult{}, err
		}
		if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
			return TickResult{}, err
		}
		e.bus.Publish(Event{Type: EventExecutionResumed, ExecutionID: exec.ID, FlowID: exec.FlowID})
	}

	if e.cfg.MaxSteps > 0 && exec.StepCount >= e.cfg.MaxSteps {
		return e.failExecution(ctx, exec, &Failure{Code: CodeMaxSteps, Message: "execution exceeded max step count", Timestamp: now})
	}

	flow, ok := e.flows.Get(exec.FlowID, exec.FlowVersion)
	if !ok {
		return e.failExecution(ctx, exec, &Failure{Code: CodeFlowNotFound, Message: "flow version no longer registered", Timestamp: now})
	}
	step, ok := flow.Step(exec.CurrentStep)
	if !ok {
		return e.failExecution(ctx, exec, &Failure{Code: CodeStepNotFound, Message: "current step not found in flow", StepID: exec.CurrentStep, Timestamp: now})
	}
	handler, ok := e.handlers.Get(step.Type)
	if !ok {
		return e.failExecution(ctx, exec, &Failure{Code: CodeHandlerNotFound, Message: "no handler registered for step type " + step.Type, StepID: step.ID, Timestamp: now})
	}

	input, err := Resolve(step.Input, exec.Context.Snapshot())
	if err != nil {
		return e.failExecution(ctx, exec, &Failure{Code: CodeInputError, Message: err.Error(), StepID: step.ID, Timestamp: now})
	}

	if exec.Status == StatusPending {
		prevUpdated := exec.UpdatedAt.UnixNano()
		if err := exec.transition(StatusRunning); err != nil {
			return TickResult{}, err
		}
		if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
			return TickResult{}, err
		}
		e.bus.Publish(Event{Type: EventExecutionStarted, ExecutionID: exec.ID, FlowID: exec.FlowID})
	}

	e.bus.Publish(Event{Type: "step.started", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID})

	timeout := e.cfg.DefaultStepTimeout
	if step.TimeoutMs > 0 {
		timeout = time.Duration(step.TimeoutMs) * time.Millisecond
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	result, handlerErr := e.invokeHandler(stepCtx, handler, Params{
		ExecutionID: exec.ID,
		FlowID:      exec.FlowID,
		StepID:      step.ID,
		Config:      step.Config,
		Input:       input,
		Context:     exec.Context,
		Execution:   exec.snapshot(step.ID),
		Tokens:      e.tokens,
	})
	cancel()

	started := now
	ended := time.Now().UTC()
	if e.metrics != nil {
		e.metrics.RecordStepLatency(exec.FlowID, step.ID, ended.Sub(started), outcomeLabel(result.Outcome))
	}

	if handlerErr != nil {
		if stepCtx.Err() == context.DeadlineExceeded {
			e.bus.Publish(Event{Type: "step.timeout", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID})
		}
		result = StepResult{
			Outcome:        OutcomeFailure,
			FailureCode:    CodeHandlerError,
			FailureMessage: handlerErr.Error(),
		}
	}

	e.bus.Publish(Event{Type: "step.completed", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID,
		Meta: map[string]interface{}{"duration_ms": ended.Sub(started).Milliseconds()}})

	var histErr *Failure
	if result.Outcome == OutcomeFailure {
		histErr = &Failure{Code: result.FailureCode, Message: result.FailureMessage, StepID: step.ID, Details: result.FailureDetails, Timestamp: ended}
	}
	exec.recordHistory(HistoryEntry{StepID: step.ID, Attempt: exec.Retries[step.ID] + 1, Outcome: result.Outcome, Error: histErr, StartedAt: started, EndedAt: ended})
	exec.StepCount++

	return e.applyResult(ctx, exec, flow, step, result)
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeWait:
		return "wait"
	default:
		return "unknown"
	}
}

// invokeHandler isolates a handler panic into an error, mirroring the
// engine's "any exception becomes a HANDLER_ERROR failure" rule (spec
// §4.5 Tick).
func (e *Engine) invokeHandler(ctx context.Context, h Handler, params Params) (result StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Execute(ctx, params)
}

func (e *Engine) failExecution(ctx context.Context, exec *Execution, failure *Failure) (TickResult, error) {
	prevUpdated := exec.UpdatedAt.UnixNano()
	if err := exec.transition(StatusFailed); err != nil {
		return TickResult{}, err
	}
	exec.Failure = failure
	if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
		return TickResult{}, err
	}
	e.bus.Publish(Event{Type: EventExecutionFailed, ExecutionID: exec.ID, FlowID: exec.FlowID})
	return TickResult{Done: true, Status: StatusFailed, Error: failure}, nil
}

// applyResult applies a handler's outcome to the execution: output projection, pipe
// firing, and outcome-based branching.
func (e *Engine) applyResult(ctx context.Context, exec *Execution, flow *Flow, step Step, result StepResult) (TickResult, error) {
	prevUpdated := exec.UpdatedAt.UnixNano()

	// 1. Output projection.
	if !result.Output.IsNull() && step.OutputKey != "" && (result.Outcome == OutcomeSuccess || result.Outcome == OutcomeWait) {
		segs := splitPath(step.OutputKey)
		value := result.Output
		if len(segs) > 1 {
			current, _ := exec.Context.Get(segs[0])
			value = setPathSegs(current, segs[1:], result.Output)
		}
		if err := exec.Context.Set(segs[0], value, SetOptions{}); err != nil {
			return e.failExecution(ctx, exec, &Failure{Code: CodeContextSizeLimit, Message: err.Error(), StepID: step.ID, Timestamp: time.Now().UTC()})
		}
	}
	exec.Output = result.Output

	// 2. Pipes (fire-and-forget).
	e.firePipes(ctx, exec, flow, step, result)

	// 3. Branch on outcome.
	switch result.Outcome {
	case OutcomeSuccess:
		return e.applySuccess(ctx, exec, flow, step, result, prevUpdated)
	case OutcomeFailure:
		return e.applyFailure(ctx, exec, flow, step, result, prevUpdated)
	default: // OutcomeWait
		return e.applyWait(ctx, exec, flow, step, result, prevUpdated)
	}
}

func (e *Engine) firePipes(ctx context.Context, exec *Execution, flow *Flow, step Step, result StepResult) {
	for _, pipe := range flow.PipesFor(step.ID) {
		if !pipe.Enabled || !pipe.matches(result.Outcome) {
			continue
		}
		row := map[string]Value{}
		for k, v := range pipe.StaticValues {
			row[k] = v
		}
		for _, m := range pipe.Mappings {
			if v, ok := result.Output.GetPath(m.SourcePath); ok {
				row[m.ColumnID] = v
			}
		}
		if err := e.tables.WriteRow(ctx, pipe.TableID, row); err != nil {
			if e.metrics != nil {
				e.metrics.IncrementPipeFailures(exec.FlowID, pipe.ID)
			}
			e.bus.Publish(Event{Type: "pipe.failed", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID,
				Meta: map[string]interface{}{"pipeId": pipe.ID, "error": err.Error()}})
			continue
		}
		e.bus.Publish(Event{Type: "pipe.inserted", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID,
			Meta: map[string]interface{}{"pipeId": pipe.ID, "tableId": pipe.TableID}})
	}
}

func (e *Engine) applySuccess(ctx context.Context, exec *Execution, flow *Flow, step Step, result StepResult, prevUpdated int64) (TickResult, error) {
	delete(exec.Retries, step.ID)

	next := step.Transitions.OnSuccess
	if result.NextStepOverride != nil {
		next = *result.NextStepOverride
	}
	outcome := OutcomeSuccess

	if next == "" {
		if err := exec.transition(StatusCompleted); err != nil {
			return TickResult{}, err
		}
		if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
			return TickResult{}, err
		}
		e.bus.Publish(Event{Type: EventExecutionCompleted, ExecutionID: exec.ID, FlowID: exec.FlowID})
		return TickResult{Done: true, Status: StatusCompleted, StepID: step.ID, Outcome: &outcome}, nil
	}

	if _, ok := flow.Step(next); !ok {
		return e.failExecution(ctx, exec, &Failure{Code: CodeInvalidTransition, Message: "onSuccess target " + next + " does not resolve", StepID: step.ID})
	}
	exec.CurrentStep = next
	exec.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
		return TickResult{}, err
	}
	e.bus.Publish(Event{Type: "transition", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID,
		Meta: map[string]interface{}{"fromStepId": step.ID, "toStepId": next, "outcome": "success"}})
	return TickResult{Done: false, Status: exec.Status, StepID: step.ID, Outcome: &outcome}, nil
}

func (e *Engine) applyFailure(ctx context.Context, exec *Execution, flow *Flow, step Step, result StepResult, prevUpdated int64) (TickResult, error) {
	outcome := OutcomeFailure
	failure := &Failure{Code: result.FailureCode, Message: result.FailureMessage, StepID: step.ID, Details: result.FailureDetails, Timestamp: time.Now().UTC()}
	if failure.Code == "" {
		failure.Code = CodeStepFailed
	}

	attemptsSoFar := exec.Retries[step.ID]
	if step.Retry != nil && step.Retry.MaxAttempts > 0 && step.Retry.allows(failure.Code) && attemptsSoFar < step.Retry.MaxAttempts {
		exec.Retries[step.ID] = attemptsSoFar + 1
		backoff := computeBackoff(step.Retry, attemptsSoFar)
		if e.metrics != nil {
			e.metrics.IncrementRetries(exec.FlowID, step.ID)
		}
		e.bus.Publish(Event{Type: "step.retry", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID,
			Meta: map[string]interface{}{"attempt": attemptsSoFar + 1, "maxAttempts": step.Retry.MaxAttempts, "backoffMs": backoff, "error": failure.Message}})

		now := time.Now().UTC()
		if backoff > 0 {
			wakeAt := now.Add(time.Duration(backoff) * time.Millisecond)
			exec.Wait = &WaitState{
				WakeAt:    wakeAt,
				Reason:    fmt.Sprintf("Retry %d/%d after %dms", attemptsSoFar+1, step.Retry.MaxAttempts, backoff),
				StartedAt: now,
			}
			if err := exec.transition(StatusWaiting); err != nil {
				return TickResult{}, err
			}
			if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
				return TickResult{}, err
			}
			return TickResult{Done: false, Status: StatusWaiting, StepID: step.ID, Outcome: &outcome, WakeAt: wakeAt}, nil
		}
		exec.UpdatedAt = now
		if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
			return TickResult{}, err
		}
		return TickResult{Done: false, Status: StatusRunning, StepID: step.ID, Outcome: &outcome}, nil
	}

	delete(exec.Retries, step.ID)
	next := step.Transitions.OnFailure
	if result.NextStepOverride != nil {
		next = *result.NextStepOverride
	}

	if next == "" {
		if err := exec.transition(StatusFailed); err != nil {
			return TickResult{}, err
		}
		exec.Failure = failure
		if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
			return TickResult{}, err
		}
		e.bus.Publish(Event{Type: EventExecutionFailed, ExecutionID: exec.ID, FlowID: exec.FlowID})
		return TickResult{Done: true, Status: StatusFailed, StepID: step.ID, Outcome: &outcome, Error: failure}, nil
	}

	if _, ok := flow.Step(next); !ok {
		return e.failExecution(ctx, exec, &Failure{Code: CodeInvalidTransition, Message: "onFailure target " + next + " does not resolve", StepID: step.ID})
	}
	exec.CurrentStep = next
	exec.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
		return TickResult{}, err
	}
	e.bus.Publish(Event{Type: "transition", ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID,
		Meta: map[string]interface{}{"fromStepId": step.ID, "toStepId": next, "outcome": "failure"}})
	return TickResult{Done: false, Status: exec.Status, StepID: step.ID, Outcome: &outcome}, nil
}

func (e *Engine) applyWait(ctx context.Context, exec *Execution, flow *Flow, step Step, result StepResult, prevUpdated int64) (TickResult, error) {
	outcome := OutcomeWait
	now := time.Now().UTC()

	var wakeAt time.Time
	if result.WakeAtUnixMs > 0 {
		wakeAt = time.UnixMilli(result.WakeAtUnixMs).UTC()
	}

	token := result.ResumeToken
	if token == "" && e.tokens != nil {
		deadline := int64(0)
		if !wakeAt.IsZero() {
			deadline = wakeAt.UnixNano()
		}
		issued, err := e.tokens.Issue(ctx, exec.ID, deadline)
		if err != nil {
			return e.failExecution(ctx, exec, &Failure{Code: CodeInvalidResumeToken, Message: "issuing resume token: " + err.Error(), StepID: step.ID, Timestamp: now})
		}
		token = issued
	}

	exec.Wait = &WaitState{
		Token:     token,
		WakeAt:    wakeAt,
		Reason:    result.WaitReason,
		StartedAt: now,
	}

	next := step.Transitions.OnResume
	if next == "" {
		next = step.Transitions.OnSuccess
	}
	if next != "" {
		exec.CurrentStep = next
	}

	if err := exec.transition(StatusWaiting); err != nil {
		return TickResult{}, err
	}
	if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
		return TickResult{}, err
	}
	e.bus.Publish(Event{Type: EventExecutionWaiting, ExecutionID: exec.ID, FlowID: exec.FlowID, StepID: step.ID})
	return TickResult{Done: false, Status: StatusWaiting, StepID: step.ID, Outcome: &outcome, WakeAt: wakeAt}, nil
}

// Resume consumes token to resolve the waiting execution it is bound to,
// then drives that execution forward one Tick regardless of any pending
// timed wakeAt. Returns CodeInvalidResumeToken if no ResumeTokenManager was
// configured, or whatever error the token manager reports (unknown/expired
// token); returns CodeExecutionNotWait if the token's execution is no
// longer waiting.
func (e *Engine) Resume(ctx context.Context, token string) (TickResult, error) {
	if e.tokens == nil {
		return TickResult{}, NewError(CodeInvalidResumeToken, "engine has no resume-token manager configured")
	}
	executionID, err := e.tokens.Consume(ctx, token)
	if err != nil {
		return TickResult{}, err
	}

	exec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return TickResult{}, err
	}
	if exec.Status != StatusWaiting {
		return TickResult{}, NewError(CodeExecutionNotWait, "execution "+executionID+" is not waiting")
	}

	prevUpdated := exec.UpdatedAt.UnixNano()
	exec.Wait = nil
	exec.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
		return TickResult{}, err
	}
	return e.Tick(ctx, executionID)
}

// RunOptions configures Engine.Run.
type RunOptions struct {
	// SimulateTime, when true, collapses any wakeAt-bounded wait to "due
	// immediately" so tests can drive a full flow without sleeping.
	SimulateTime bool
	MaxIterations int // 0 uses the Engine's configured default
}

// Run repeatedly Ticks executionID until it is done, sleeping across timed
// waits unless SimulateTime is set.
func (e *Engine) Run(ctx context.Context, executionID string, opts RunOptions) (TickResult, error) {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = e.cfg.MaxIterations
	}

	var last TickResult
	for i := 0; i < maxIter; i++ {
		result, err := e.Tick(ctx, executionID)
		if err != nil {
			return result, err
		}
		last = result
		if result.Done {
			return result, nil
		}
		if result.Status == StatusWaiting && !result.WakeAt.IsZero() {
			if opts.SimulateTime {
				exec, err := e.store.Get(ctx, executionID)
				if err != nil {
					return last, err
				}
				if exec.Wait != nil {
					prevUpdated := exec.UpdatedAt.UnixNano()
					exec.Wait.WakeAt = time.Time{}
					if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
						return last, err
					}
				}
				continue
			}
			wait := time.Until(result.WakeAt)
			if wait > 0 {
				select {
				case <-ctx.Done():
					return last, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
	}
	return last, NewError(CodeMaxIterations, "Run exceeded max iterations without completing")
}

// CancelOptions configures Engine.Cancel.
type CancelOptions struct {
	Source CancelSource
	Reason string
}

// CancelResult is Engine.Cancel's return value.
type CancelResult struct {
	ExecutionID       string
	PreviousStatus    Status
	Cancelled         bool
	// TokensInvalidated is 1 when the token manager's Revoke call for this
	// execution succeeded and 0 otherwise (no manager configured, or Revoke
	// failed); it is not a count of individual tokens.
	TokensInvalidated int
	ChildrenCancelled int
	CancelledAt       time.Time
}

// Cancel transitions executionID through cancelling to cancelled, revoking
// resume tokens and cascading to every child execution.
func (e *Engine) Cancel(ctx context.Context, executionID string, opts CancelOptions) (CancelResult, error) {
	exec, err := e.store.Get(ctx, executionID)
	if err != nil {
		return CancelResult{ExecutionID: executionID, Cancelled: false}, nil
	}

	prevStatus := exec.Status
	if prevStatus != StatusPending && prevStatus != StatusRunning && prevStatus != StatusWaiting {
		return CancelResult{ExecutionID: executionID, PreviousStatus: prevStatus, Cancelled: false}, nil
	}

	prevUpdated := exec.UpdatedAt.UnixNano()
	if err := exec.transition(StatusCancelling); err != nil {
		return CancelResult{}, err
	}
	if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
		return CancelResult{}, err
	}

	tokensInvalidated := 0
	if e.tokens != nil {
		if err := e.tokens.Revoke(ctx, executionID); err == nil {
			tokensInvalidated = 1
		}
	}

	childrenCancelled, err := e.cancelChildren(ctx, executionID, opts.Reason)
	if err != nil {
		return CancelResult{}, err
	}

	now := time.Now().UTC()
	prevUpdated = exec.UpdatedAt.UnixNano()
	if err := exec.transition(StatusCancelled); err != nil {
		return CancelResult{}, err
	}
	source := opts.Source
	if source == "" {
		source = CancelSourceUser
	}
	exec.Cancel = CancelState{Source: source, Reason: opts.Reason, CancelledAt: now}
	if err := e.store.Save(ctx, exec, prevUpdated); err != nil {
		return CancelResult{}, err
	}

	if e.metrics != nil {
		e.metrics.IncrementCancellations(exec.FlowID, string(source))
	}
	e.bus.Publish(Event{Type: EventExecutionCancelled, ExecutionID: exec.ID, FlowID: exec.FlowID})
	e.bus.Publish(Event{Type: EventExecutionFailed, ExecutionID: exec.ID, FlowID: exec.FlowID,
		Meta: map[string]interface{}{"code": string(CodeCancelled)}})

	return CancelResult{
		ExecutionID:       executionID,
		PreviousStatus:    prevStatus,
		Cancelled:         true,
		TokensInvalidated: tokensInvalidated,
		ChildrenCancelled: childrenCancelled,
		CancelledAt:       now,
	}, nil
}

// cancelChildren recursively cancels every child of parentID, bounded by
// maxCascadeFanout concurrent cancellations via errgroup — grounded on the
// teacher's pattern of bounding concurrent node execution (graph/options.go
// WithMaxConcurrent), applied here to cascading cancel fan-out instead.
func (e *Engine) cancelChildren(ctx context.Context, parentID, reason string) (int, error) {
	children, err := e.store.ListChildren(ctx, parentID)
	if err != nil {
		return 0, err
	}
	if len(children) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(e.maxCascadeFanout)

	counts := make([]int, len(children))
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			result, err := e.Cancel(ctx, child.ID, CancelOptions{Source: CancelSourceParent, Reason: reason})
			if err != nil {
				return err
			}
			if result.Cancelled {
				counts[i] = 1 + result.ChildrenCancelled
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	return total, nil
}

// Get loads an execution by id without mutating it.
func (e *Engine) Get(ctx context.Context, executionID string) (*Execution, error) {
	return e.store.Get(ctx, executionID)
}
