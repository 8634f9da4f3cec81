// Package config loads the engine process's TOML configuration, grounded
// on the pack's Raven example (internal/config/load.go), which uses
// github.com/BurntSushi/toml for exactly this kind of typed config-file
// decoding.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/flowforge/enginecore/engine"
)

// FileName is the default config file name a deployment looks for.
const FileName = "enginecore.toml"

// Config is the process-level configuration for running an engine.Engine:
// tunables that are operational concerns rather than flow/handler
// authoring concerns (those live in registered Flow definitions instead).
type Config struct {
	Engine   EngineSection   `toml:"engine"`
	Store    StoreSection    `toml:"store"`
	Bus      BusSection      `toml:"bus"`
	Metrics  MetricsSection  `toml:"metrics"`
}

type EngineSection struct {
	MaxSteps            int   `toml:"max_steps"`
	MaxIterations       int   `toml:"max_iterations"`
	DefaultStepTimeoutMs int64 `toml:"default_step_timeout_ms"`
	ExecutionTimeoutMs  int64 `toml:"execution_timeout_ms"`
	WaitTimeoutMs       int64 `toml:"wait_timeout_ms"`
}

type StoreSection struct {
	Backend string `toml:"backend"` // "memory" | "sqlite" | "mysql"
	DSN     string `toml:"dsn"`
}

type BusSection struct {
	Backend    string `toml:"backend"` // "null" | "sync" | "async"
	QueueDepth int    `toml:"queue_depth"`
}

type MetricsSection struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the configuration matching engine.DefaultConfig.
func Default() Config {
	d := engine.DefaultConfig()
	return Config{
		Engine: EngineSection{
			MaxSteps:             d.MaxSteps,
			MaxIterations:        d.MaxIterations,
			DefaultStepTimeoutMs: d.DefaultStepTimeout.Milliseconds(),
			ExecutionTimeoutMs:   d.Timeouts.ExecutionTimeoutMs,
			WaitTimeoutMs:        d.Timeouts.WaitTimeoutMs,
		},
		Store:   StoreSection{Backend: "memory"},
		Bus:     BusSection{Backend: "sync"},
		Metrics: MetricsSection{Enabled: false},
	}
}

// LoadFile parses the TOML file at path, layering it over Default().
func LoadFile(path string) (Config, toml.MetaData, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, md, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return cfg, md, nil
}

// EngineOptions converts the Engine section into engine.Option values.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithMaxSteps(c.Engine.MaxSteps),
		engine.WithMaxIterations(c.Engine.MaxIterations),
		engine.WithDefaultStepTimeout(time.Duration(c.Engine.DefaultStepTimeoutMs) * time.Millisecond),
		engine.WithTimeouts(engine.TimeoutConfig{
			ExecutionTimeoutMs: c.Engine.ExecutionTimeoutMs,
			WaitTimeoutMs:      c.Engine.WaitTimeoutMs,
		}),
	}
}
