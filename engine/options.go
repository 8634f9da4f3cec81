package engine

import "time"

// Option is a functional option for configuring an Engine: chainable,
// self-documenting, and mixable with the Config struct for callers that
// prefer to build one up directly.
type Option func(*Config) error

// Config collects the tunables an Engine is built with. Its zero value is
// not ready to use — call DefaultConfig() and layer Options on top, or pass
// New() no options at all to get the defaults.
type Config struct {
	MaxSteps           int
	MaxIterations      int
	DefaultStepTimeout time.Duration
	Timeouts           TimeoutConfig
	ContextBudget      Budget
	ExternalStore      ExternalStore
}

// DefaultConfig returns the engine's out-of-the-box tunables: 1000 max
// steps per execution, a 64-Tick default budget for Engine.Run, a 30s
// default per-step timeout, and the default context budget /
// execution-wide timeouts.
func DefaultConfig() Config {
	return Config{
		MaxSteps:           1000,
		MaxIterations:      64,
		DefaultStepTimeout: 30 * time.Second,
		Timeouts:           DefaultTimeoutConfig(),
		ContextBudget:      DefaultBudget(),
	}
}

// WithMaxSteps caps the number of step executions a single Execution may
// accumulate before Tick fails it with CodeMaxSteps. Set to 0 to disable
// the limit (not recommended: unbounded history growth).
func WithMaxSteps(n int) Option {
	return func(c *Config) error {
		c.MaxSteps = n
		return nil
	}
}

// WithMaxIterations sets the default RunOptions.MaxIterations Engine.Run
// uses when a caller doesn't override it: the number of Ticks Run will drive
// an execution through before giving up with CodeMaxIterations. It bounds
// Run's own loop only — a caller driving Engine.Tick directly is not subject
// to it; MaxSteps (via WithMaxSteps) is the guard Tick itself enforces
// against an execution that never terminates.
func WithMaxIterations(n int) Option {
	return func(c *Config) error {
		c.MaxIterations = n
		return nil
	}
}

// WithDefaultStepTimeout sets the per-step execution timeout used when a
// Step does not declare its own TimeoutMs.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.DefaultStepTimeout = d
		return nil
	}
}

// WithTimeouts overrides the execution-wide and wait timeouts.
func WithTimeouts(t TimeoutConfig) Option {
	return func(c *Config) error {
		c.Timeouts = t
		return nil
	}
}

// WithContextBudget overrides the bounded-context size/shape limits applied
// to every Execution's Context.
func WithContextBudget(b Budget) Option {
	return func(c *Config) error {
		c.ContextBudget = b
		return nil
	}
}

// WithExternalStore wires an ExternalStore used to tier oversized context
// values out of the inline execution record.
func WithExternalStore(s ExternalStore) Option {
	return func(c *Config) error {
		c.ExternalStore = s
		return nil
	}
}

func applyOptions(cfg Config, opts []Option) (Config, error) {
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
