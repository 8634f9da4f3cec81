package store

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flowforge/enginecore/engine"
)

// Breaker wraps an engine.Store with a circuit breaker so a flapping
// durable backend fails fast instead of letting every in-flight Tick pile
// up waiting on timeouts. Grounded on github.com/sony/gobreaker (a direct
// dependency of the pack's kubernaut example, adopted here as the Store's
// resilience layer since neither this module's teacher nor the rest of the
// pack ships its own breaker).
type Breaker struct {
	inner engine.Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps inner with a circuit breaker named name, tripping after
// 5 consecutive failures and resetting after 30s in the open state.
func NewBreaker(name string, inner engine.Store) *Breaker {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Create(ctx context.Context, exec *engine.Execution) (*engine.Execution, bool, error) {
	type result struct {
		exec    *engine.Execution
		created bool
	}
	r, err := b.cb.Execute(func() (interface{}, error) {
		stored, created, err := b.inner.Create(ctx, exec)
		if err != nil {
			return nil, err
		}
		return result{exec: stored, created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := r.(result)
	return res.exec, res.created, nil
}

func (b *Breaker) Get(ctx context.Context, id string) (*engine.Execution, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return r.(*engine.Execution), nil
}

func (b *Breaker) Save(ctx context.Context, exec *engine.Execution, expectedUpdatedAtUnixNano int64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Save(ctx, exec, expectedUpdatedAtUnixNano)
	})
	return err
}

func (b *Breaker) Delete(ctx context.Context, id string) (bool, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Delete(ctx, id)
	})
	if err != nil {
		return false, err
	}
	return r.(bool), nil
}

func (b *Breaker) ListByStatus(ctx context.Context, status engine.Status, limit int) ([]*engine.Execution, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ListByStatus(ctx, status, limit)
	})
	if err != nil {
		return nil, err
	}
	return r.([]*engine.Execution), nil
}

func (b *Breaker) ListChildren(ctx context.Context, parentID string) ([]*engine.Execution, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ListChildren(ctx, parentID)
	})
	if err != nil {
		return nil, err
	}
	return r.([]*engine.Execution), nil
}

func (b *Breaker) ListWaiting(ctx context.Context, before int64) ([]*engine.Execution, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ListWaiting(ctx, before)
	})
	if err != nil {
		return nil, err
	}
	return r.([]*engine.Execution), nil
}
