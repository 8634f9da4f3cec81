package engine_test

import (
	"testing"

	"github.com/flowforge/enginecore/engine"
)

func TestRetryPolicyValidate(t *testing.T) {
	rp := &engine.RetryPolicy{MaxAttempts: 3, BackoffMs: 100, BackoffMultiplier: 2, MaxBackoffMs: 1000}
	if err := rp.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestRetryPolicyValidateRejectsInvertedBackoff(t *testing.T) {
	rp := &engine.RetryPolicy{MaxAttempts: 1, BackoffMs: 2000, MaxBackoffMs: 100}
	if err := rp.Validate(); err == nil {
		t.Fatal("expected error when maxBackoffMs < backoffMs")
	}
}

func TestRetryPolicyValidateRejectsNegativeMaxAttempts(t *testing.T) {
	rp := &engine.RetryPolicy{MaxAttempts: -1}
	if err := rp.Validate(); err == nil {
		t.Fatal("expected error for negative MaxAttempts")
	}
}

func TestNilRetryPolicyValidatesClean(t *testing.T) {
	var rp *engine.RetryPolicy
	if err := rp.Validate(); err != nil {
		t.Fatalf("nil RetryPolicy should validate cleanly: %v", err)
	}
}

func TestFlowStepAndPipesFor(t *testing.T) {
	f := &engine.Flow{
		ID:            "f1",
		Version:       "v1",
		InitialStepID: "a",
		Steps: map[string]engine.Step{
			"a": {ID: "a", Type: "noop"},
		},
		Pipes: []engine.Pipe{
			{ID: "p1", StepID: "a", TableID: "t1"},
			{ID: "p2", StepID: "b", TableID: "t2"},
		},
	}
	if _, ok := f.Step("a"); !ok {
		t.Fatal("Step(a) should resolve")
	}
	if _, ok := f.Step("missing"); ok {
		t.Fatal("Step(missing) should not resolve")
	}
	pipes := f.PipesFor("a")
	if len(pipes) != 1 || pipes[0].ID != "p1" {
		t.Fatalf("PipesFor(a) = %v", pipes)
	}
}

func TestDefaultTimeoutConfig(t *testing.T) {
	tc := engine.DefaultTimeoutConfig()
	if tc.ExecutionTimeoutMs <= 0 || tc.WaitTimeoutMs <= tc.ExecutionTimeoutMs {
		t.Fatalf("unexpected default timeouts: %+v", tc)
	}
}
