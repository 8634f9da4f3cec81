package engine_test

import (
	"strings"
	"testing"

	"github.com/flowforge/enginecore/engine"
)

func TestContextSetAndGet(t *testing.T) {
	c := engine.NewContext(engine.DefaultBudget(), nil)
	if err := c.Set("name", engine.StringValue("alice"), engine.SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := c.Get("name")
	if !ok || v.Str != "alice" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	if !c.Has("name") {
		t.Fatalf("Has(name) = false")
	}
}

func TestContextRejectsOversizedValue(t *testing.T) {
	budget := engine.DefaultBudget()
	budget.MaxValueSize = 10
	c := engine.NewContext(budget, nil)
	big := engine.StringValue(strings.Repeat("x", 100))
	err := c.Set("big", big, engine.SetOptions{})
	if err == nil {
		t.Fatal("expected error for oversized value")
	}
	if !engine.IsCode(err, engine.CodeContextValueTooBig) {
		t.Errorf("expected CodeContextValueTooBig, got %v", err)
	}
}

func TestContextRejectsKeyLimit(t *testing.T) {
	budget := engine.DefaultBudget()
	budget.MaxKeys = 2
	c := engine.NewContext(budget, nil)
	if err := c.Set("a", engine.NumberValue(1), engine.SetOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("b", engine.NumberValue(2), engine.SetOptions{}); err != nil {
		t.Fatal(err)
	}
	err := c.Set("c", engine.NumberValue(3), engine.SetOptions{})
	if !engine.IsCode(err, engine.CodeContextKeyLimit) {
		t.Errorf("expected CodeContextKeyLimit, got %v", err)
	}
	// overwriting an existing key must not count against the limit
	if err := c.Set("a", engine.NumberValue(99), engine.SetOptions{}); err != nil {
		t.Errorf("overwrite of existing key should not hit key limit: %v", err)
	}
}

func TestContextRejectsNestingDepth(t *testing.T) {
	budget := engine.DefaultBudget()
	budget.MaxDepth = 2
	c := engine.NewContext(budget, nil)
	deep := engine.ObjectValue(map[string]engine.Value{
		"a": engine.ObjectValue(map[string]engine.Value{
			"b": engine.StringValue("too deep"),
		}),
	})
	err := c.Set("deep", deep, engine.SetOptions{})
	if !engine.IsCode(err, engine.CodeContextNesting) {
		t.Errorf("expected CodeContextNesting, got %v", err)
	}
}

func TestContextExternalTiering(t *testing.T) {
	ext := engine.NewMemoryExternalStore()
	budget := engine.DefaultBudget()
	budget.InlineThreshold = 4
	c := engine.NewContext(budget, ext)

	big := engine.StringValue("this value is bigger than the inline threshold")
	if err := c.Set("payload", big, engine.SetOptions{Tier: engine.TierExternal}); err != nil {
		t.Fatalf("Set with external tier: %v", err)
	}

	got, ok := c.Get("payload")
	if !ok {
		t.Fatal("Get did not find tiered value")
	}
	if got.Str != big.Str {
		t.Errorf("Get did not dereference external tier: got %v", got)
	}
}

func TestContextCloneIsIndependent(t *testing.T) {
	c := engine.NewContext(engine.DefaultBudget(), nil)
	_ = c.Set("a", engine.NumberValue(1), engine.SetOptions{})
	clone := c.Clone()
	_ = clone.Set("a", engine.NumberValue(2), engine.SetOptions{})

	orig, _ := c.Get("a")
	if orig.Num != 1 {
		t.Errorf("mutating clone affected original: %v", orig)
	}
}

func TestContextDeleteAdjustsSize(t *testing.T) {
	c := engine.NewContext(engine.DefaultBudget(), nil)
	_ = c.Set("a", engine.StringValue("hello"), engine.SetOptions{})
	before := c.TotalSize()
	c.Delete("a")
	if c.TotalSize() >= before {
		t.Errorf("Delete did not shrink total size: before=%d after=%d", before, c.TotalSize())
	}
	if c.Has("a") {
		t.Errorf("Has(a) should be false after Delete")
	}
}
