package engine

import "time"

// Transitions names the step-id (or terminal, via empty string) to move to
// for each outcome a handler can produce.
type Transitions struct {
	OnSuccess string
	OnFailure string
	OnResume  string
}

// RetryPolicy configures automatic retry of a failing step.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffMs         int64
	BackoffMultiplier float64 // defaults to 2 when zero
	MaxBackoffMs      int64   // defaults to 60000 when zero
	RetryOn           []Code  // empty means "retry any code"
}

func (rp *RetryPolicy) multiplier() float64 {
	if rp == nil || rp.BackoffMultiplier == 0 {
		return 2
	}
	return rp.BackoffMultiplier
}

func (rp *RetryPolicy) maxBackoff() int64 {
	if rp == nil || rp.MaxBackoffMs == 0 {
		return 60000
	}
	return rp.MaxBackoffMs
}

// allows reports whether code is eligible for retry under this policy: an
// empty RetryOn whitelist allows every code, otherwise code must appear in it.
func (rp *RetryPolicy) allows(code Code) bool {
	if rp == nil {
		return false
	}
	if len(rp.RetryOn) == 0 {
		return true
	}
	for _, c := range rp.RetryOn {
		if c == code {
			return true
		}
	}
	return false
}

// Validate checks RetryPolicy for internal consistency.
func (rp *RetryPolicy) Validate() error {
	if rp == nil {
		return nil
	}
	if rp.MaxAttempts < 0 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxBackoffMs > 0 && rp.BackoffMs > 0 && rp.MaxBackoffMs < rp.BackoffMs {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff implements the retry backoff formula:
//
//	backoffMs = min(base * multiplier^attempt, maxBackoffMs)
//
// attempt is the zero-based count of attempts already made before this
// retry (attempt 0 ⇒ first retry). Deliberately has no jitter term: the
// emitted backoffMs equals the formula exactly, so retry timing stays
// deterministic and reproducible given an execution's history, with
// thundering-herd avoidance left to a production deployment's
// scheduler/worker-loop layer instead.
func computeBackoff(rp *RetryPolicy, attempt int) int64 {
	if rp == nil {
		return 0
	}
	backoff := float64(rp.BackoffMs)
	mult := rp.multiplier()
	for i := 0; i < attempt; i++ {
		backoff *= mult
	}
	max := float64(rp.maxBackoff())
	if backoff > max {
		backoff = max
	}
	return int64(backoff)
}

// Pipe is a best-effort side-channel projection of a step's output into an
// external table.
type Pipe struct {
	ID           string
	StepID       string
	On           PipeOn // default PipeOnSuccess
	TableID      string
	Mappings     []PipeMapping
	StaticValues map[string]Value
	Enabled      bool
}

// PipeOn selects which step outcomes trigger a pipe.
type PipeOn int

const (
	PipeOnSuccess PipeOn = iota
	PipeOnFailure
	PipeOnAny
)

// PipeMapping copies a value from a step's output into a named table column.
type PipeMapping struct {
	SourcePath string
	ColumnID   string
}

// matches reports whether this pipe should run for the given outcome.
func (p Pipe) matches(outcome Outcome) bool {
	switch p.On {
	case PipeOnAny:
		return true
	case PipeOnFailure:
		return outcome == OutcomeFailure
	default: // PipeOnSuccess
		return outcome == OutcomeSuccess
	}
}

// Step is one node of a Flow's graph: a handler invocation plus routing.
type Step struct {
	ID          string
	Type        string
	Config      Value
	Input       InputSelector
	OutputKey   string // dot path; empty means "do not project output"
	Transitions Transitions
	Retry       *RetryPolicy
	TimeoutMs   int64 // 0 ⇒ Engine's DefaultStepTimeout
}

// Flow is the immutable definition of a workflow graph, keyed by (ID,
// Version).
type Flow struct {
	ID            string
	Version       string
	InitialStepID string
	Steps         map[string]Step
	Pipes         []Pipe
}

// Step looks up a step by id, reporting whether it exists.
func (f *Flow) Step(id string) (Step, bool) {
	s, ok := f.Steps[id]
	return s, ok
}

// PipesFor returns the pipes declared against the given step id.
func (f *Flow) PipesFor(stepID string) []Pipe {
	var out []Pipe
	for _, p := range f.Pipes {
		if p.StepID == stepID {
			out = append(out, p)
		}
	}
	return out
}

// TimeoutConfig bounds an execution's overall and per-wait lifetime.
type TimeoutConfig struct {
	ExecutionTimeoutMs int64
	WaitTimeoutMs      int64
}

// DefaultTimeoutConfig returns the default execution/wait timeouts
// (24h execution, 7d wait).
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ExecutionTimeoutMs: int64(24 * time.Hour / time.Millisecond),
		WaitTimeoutMs:      int64(7 * 24 * time.Hour / time.Millisecond),
	}
}
