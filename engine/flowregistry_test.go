package engine_test

import (
	"testing"

	"github.com/flowforge/enginecore/engine"
)

func TestFlowRegistryRegisterAndGet(t *testing.T) {
	r := engine.NewFlowRegistry()
	f := validFlow()
	if err := r.Register(f); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := r.Get("order", "1")
	if !ok || got.ID != "order" {
		t.Fatalf("Get = %v, %v", got, ok)
	}
}

func TestFlowRegistryRejectsInvalidFlow(t *testing.T) {
	r := engine.NewFlowRegistry()
	if err := r.Register(&engine.Flow{}); !engine.IsCode(err, engine.CodeFlowInvalid) {
		t.Fatalf("expected CodeFlowInvalid, got %v", err)
	}
}

func TestFlowRegistryLatestPicksLexicographicMax(t *testing.T) {
	r := engine.NewFlowRegistry()
	f1 := validFlow()
	f1.Version = "2"
	f2 := validFlow()
	f2.Version = "10"
	_ = r.Register(f1)
	_ = r.Register(f2)

	latest, ok := r.Latest("order")
	if !ok {
		t.Fatal("Latest should find a flow")
	}
	// lexicographic comparison: "2" > "10" as strings
	if latest.Version != "2" {
		t.Errorf("Latest().Version = %q, want %q (lexicographic max)", latest.Version, "2")
	}
}

func TestFlowRegistryRejectsDuplicateVersion(t *testing.T) {
	r := engine.NewFlowRegistry()
	f := validFlow()
	if err := r.Register(f); err != nil {
		t.Fatalf("Register: %v", err)
	}

	f2 := validFlow()
	f2.InitialStepID = "end" // change something observable
	f2.Steps = map[string]engine.Step{"end": {ID: "end", Type: "noop"}}
	err := r.Register(f2)
	if !engine.IsCode(err, engine.CodeFlowInvalid) {
		t.Fatalf("re-registering the same (ID, Version) should fail with CodeFlowInvalid, got %v", err)
	}

	got, _ := r.Get("order", "1")
	if got.InitialStepID == "end" {
		t.Errorf("rejected re-registration must not replace the live flow")
	}
	if len(r.Versions("order")) != 1 {
		t.Errorf("rejected re-registration must not duplicate the version in Versions(): %v", r.Versions("order"))
	}
}

func TestFlowRegistryHasAndFlowIDs(t *testing.T) {
	r := engine.NewFlowRegistry()
	if r.Has("order") {
		t.Fatal("Has should be false before registration")
	}
	_ = r.Register(validFlow())
	if !r.Has("order") {
		t.Fatal("Has should be true after registration")
	}
	if ids := r.FlowIDs(); len(ids) != 1 || ids[0] != "order" {
		t.Errorf("FlowIDs() = %v", ids)
	}
}
