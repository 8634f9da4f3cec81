package engine

import (
	"fmt"
	"sync"
	"time"
)

// Default context budget limits.
const (
	DefaultMaxTotalSize     = 10 * 1024 * 1024 // 10 MiB
	DefaultMaxValueSize     = 1 * 1024 * 1024  // 1 MiB
	DefaultMaxKeys          = 500
	DefaultMaxDepth         = 15
	DefaultInlineThreshold  = 64 * 1024 // 64 KiB
	externalRefPrefixFormat = "storage://%s"
)

// Tier selects where Context.Set should place a value.
type Tier int

const (
	// TierInline stores the value directly in the bounded context map.
	TierInline Tier = iota
	// TierExternal moves the value out to the configured ExternalStore when
	// it exceeds InlineThreshold (or always, with Force), leaving only an
	// opaque reference marker in the context. Without an ExternalStore the
	// value stays inline.
	TierExternal
)

// SetOptions configures a single Context.Set call.
type SetOptions struct {
	Tier  Tier
	Force bool // if true with Tier=TierExternal, bypass the inline threshold check
}

// ExternalStore is the collaborator context values may be offloaded to when
// they exceed the inline threshold. It is optional; when nil, Context never
// tiers values externally regardless of size (oversized values will trip the
// ordinary CONTEXT_VALUE_TOO_LARGE limit instead).
type ExternalStore interface {
	Put(value Value) (ref string, err error)
	Get(ref string) (Value, error)
}

// Budget collects the size/shape limits enforced by Context.Set.
type Budget struct {
	MaxTotalSize    int
	MaxValueSize    int
	MaxKeys         int
	MaxDepth        int
	InlineThreshold int
}

// DefaultBudget returns the engine's default context limits.
func DefaultBudget() Budget {
	return Budget{
		MaxTotalSize:    DefaultMaxTotalSize,
		MaxValueSize:    DefaultMaxValueSize,
		MaxKeys:         DefaultMaxKeys,
		MaxDepth:        DefaultMaxDepth,
		InlineThreshold: DefaultInlineThreshold,
	}
}

// The refField* constants name the reserved keys of an opaque external-tier marker
// object, i.e. { _ref, size, type, createdAt }.
const (
	refFieldRef       = "_ref"
	refFieldSize      = "size"
	refFieldType      = "type"
	refFieldCreatedAt = "createdAt"
)

// Context is the bounded per-execution key/value map carrying inter-step
// data. It is not safe for concurrent use by multiple
// goroutines without external synchronization — within a Tick there is
// exactly one writer, matching the engine's single-threaded-per-Tick model.
type Context struct {
	budget   Budget
	external ExternalStore
	values   map[string]Value
	sizes    map[string]int // cached canonical byte size per key, for O(1) total recompute
	total    int
}

// NewContext builds an empty Context with the given budget and optional
// external storage collaborator.
func NewContext(budget Budget, external ExternalStore) *Context {
	return &Context{
		budget:   budget,
		external: external,
		values:   map[string]Value{},
		sizes:    map[string]int{},
	}
}

// FromValues seeds a Context from an already-built object Value (e.g. the
// initial context passed to Create). Size/key limits are not re-validated
// here; callers constructing from trusted sources (the engine itself) are
// expected to have respected them already.
func FromValues(budget Budget, external ExternalStore, seed map[string]Value) *Context {
	c := NewContext(budget, external)
	for k, v := range seed {
		c.values[k] = v
		sz := v.ByteSize()
		c.sizes[k] = sz
		c.total += sz
	}
	return c
}

// Snapshot returns the context's current contents as a plain object Value,
// with external references left un-dereferenced (as they are stored).
func (c *Context) Snapshot() Value {
	out := make(map[string]Value, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return ObjectValue(out)
}

// Values returns the raw stored values (external-tier markers left
// un-dereferenced), for serialization by a Store implementation.
func (c *Context) Values() map[string]Value {
	out := make(map[string]Value, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Budget returns the budget this context was constructed with, so a Store
// can reconstruct an equivalent Context after loading raw values back.
func (c *Context) Budget() Budget { return c.budget }

// Clone produces an independent copy of the context sharing the same
// budget and external store collaborator.
func (c *Context) Clone() *Context {
	cp := NewContext(c.budget, c.external)
	for k, v := range c.values {
		cp.values[k] = v
		cp.sizes[k] = c.sizes[k]
	}
	cp.total = c.total
	return cp
}

// Has reports whether key is present (without dereferencing external tiers).
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Get returns the value at key, transparently dereferencing external-tier
// markers via the configured ExternalStore. Missing keys return Null, false.
func (c *Context) Get(key string) (Value, bool) {
	v, ok := c.values[key]
	if !ok {
		return Null, false
	}
	if ref, isRef := externalRef(v); isRef {
		if c.external == nil {
			return Null, false
		}
		resolved, err := c.external.Get(ref)
		if err != nil {
			return Null, false
		}
		return resolved, true
	}
	return v, true
}

// GetAll returns a snapshot of the requested keys (dereferencing external
// tiers), skipping any that are absent.
func (c *Context) GetAll(keys []string) map[string]Value {
	out := make(map[string]Value, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// Delete removes key from the context, adjusting the tracked total size.
func (c *Context) Delete(key string) {
	if sz, ok := c.sizes[key]; ok {
		c.total -= sz
		delete(c.sizes, key)
	}
	delete(c.values, key)
}

// Set stores value at key, enforcing the size/key-count/nesting-depth
// configured budget. On any violation the context is left unmodified
// and a *Error with the matching code is returned.
func (c *Context) Set(key string, value Value, opts SetOptions) error {
	depth := value.Depth()
	if depth > c.budget.MaxDepth {
		return NewError(CodeContextNesting, fmt.Sprintf("value at %q exceeds max nesting depth %d (got %d)", key, c.budget.MaxDepth, depth))
	}
	size := value.ByteSize()
	if size > c.budget.MaxValueSize {
		return NewError(CodeContextValueTooBig, fmt.Sprintf("value at %q is %d bytes, exceeds max %d", key, size, c.budget.MaxValueSize))
	}

	_, exists := c.values[key]
	if !exists && len(c.values) >= c.budget.MaxKeys {
		return NewError(CodeContextKeyLimit, fmt.Sprintf("context already holds %d keys (max %d)", len(c.values), c.budget.MaxKeys))
	}

	oldSize := c.sizes[key]
	projected := c.total - oldSize + size
	if projected > c.budget.MaxTotalSize {
		return NewError(CodeContextSizeLimit, fmt.Sprintf("setting %q would grow context to %d bytes (max %d)", key, projected, c.budget.MaxTotalSize))
	}

	stored := value
	storedSize := size
	wantsExternal := opts.Tier == TierExternal && (opts.Force || size > c.budget.InlineThreshold)
	if wantsExternal && c.external != nil {
		ref, err := c.external.Put(value)
		if err != nil {
			return Wrap(CodeContextSizeLimit, "external store write failed", err)
		}
		marker := refMarker(ref, size)
		stored = marker
		storedSize = marker.ByteSize()
		projected = c.total - oldSize + storedSize
		if projected > c.budget.MaxTotalSize {
			return NewError(CodeContextSizeLimit, fmt.Sprintf("setting %q would grow context to %d bytes (max %d)", key, projected, c.budget.MaxTotalSize))
		}
	}

	c.values[key] = stored
	c.sizes[key] = storedSize
	c.total = projected
	return nil
}

// TotalSize returns the current measured size of all stored (not
// dereferenced) values, for diagnostics and invariant testing.
func (c *Context) TotalSize() int { return c.total }

// KeyCount returns the number of keys currently stored.
func (c *Context) KeyCount() int { return len(c.values) }

func refMarker(ref string, size int) Value {
	return ObjectValue(map[string]Value{
		refFieldRef:       StringValue(ref),
		refFieldSize:      NumberValue(float64(size)),
		refFieldCreatedAt: StringValue(time.Now().UTC().Format(time.RFC3339Nano)),
	})
}

func externalRef(v Value) (string, bool) {
	if v.Kind != KindObject {
		return "", false
	}
	refVal, ok := v.Obj[refFieldRef]
	if !ok || refVal.Kind != KindString {
		return "", false
	}
	return refVal.Str, true
}

// memoryExternalStore is a simple in-process ExternalStore, useful for tests
// and single-process deployments where the inline threshold alone is enough
// structure but callers still want to exercise the tiering path.
type memoryExternalStore struct {
	mu     sync.Mutex
	seq    int
	values map[string]Value
}

// NewMemoryExternalStore returns an ExternalStore backed by an in-process map.
func NewMemoryExternalStore() ExternalStore {
	return &memoryExternalStore{values: map[string]Value{}}
}

func (m *memoryExternalStore) Put(value Value) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := fmt.Sprintf(externalRefPrefixFormat, fmt.Sprintf("mem-%d", m.seq))
	m.values[ref] = value
	return ref, nil
}

func (m *memoryExternalStore) Get(ref string) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[ref]
	if !ok {
		return Null, fmt.Errorf("engine: external ref %q not found", ref)
	}
	return v, nil
}
