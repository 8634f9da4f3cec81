// Package bus provides EventBus implementations for engine.Event dispatch:
// a Sync bus for deterministic tests, an Async bus for production
// backpressure isolation, plus Log, Buffered, Null and OTel backends any
// of them can fan out to.
package bus

import (
	"context"
	"sync"

	"github.com/flowforge/enginecore/engine"
)

// Backend is the pluggable sink a Sync or Async bus dispatches events to.
// It is the same shape as engine.EventBus, factored out so Sync/Async can
// wrap any number of them.
type Backend = engine.EventBus

// Sync dispatches every event inline, in the calling goroutine — the mode
// tests want, where deterministic ordering matters more than isolating
// slow subscribers. A panicking backend is recovered so one misbehaving
// listener never takes down the Tick that published it.
type Sync struct {
	mu       sync.RWMutex
	backends []Backend
}

// NewSync returns a Sync bus fanning out to the given backends.
func NewSync(backends ...Backend) *Sync {
	return &Sync{backends: backends}
}

// Subscribe adds another backend to the fan-out set.
func (s *Sync) Subscribe(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backends = append(s.backends, b)
}

func (s *Sync) Publish(event engine.Event) {
	event = stampIfZero(event)
	s.mu.RLock()
	backends := append([]Backend(nil), s.backends...)
	s.mu.RUnlock()
	for _, b := range backends {
		dispatchSafely(func() { b.Publish(event) })
	}
}

func (s *Sync) PublishBatch(ctx context.Context, events []engine.Event) error {
	for i, e := range events {
		events[i] = stampIfZero(e)
	}
	s.mu.RLock()
	backends := append([]Backend(nil), s.backends...)
	s.mu.RUnlock()
	for _, b := range backends {
		dispatchSafely(func() { _ = b.PublishBatch(ctx, events) })
	}
	return nil
}

func (s *Sync) Flush(ctx context.Context) error {
	s.mu.RLock()
	backends := append([]Backend(nil), s.backends...)
	s.mu.RUnlock()
	for _, b := range backends {
		_ = b.Flush(ctx)
	}
	return nil
}

func dispatchSafely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// stampIfZero fills in event's dispatch timestamp if the publisher left it
// unset, so every event leaving the bus carries one.
func stampIfZero(event engine.Event) engine.Event {
	if event.TimestampUnixMs == 0 {
		event.TimestampUnixMs = engine.Now()
	}
	return event
}

// Async dispatches events on a bounded worker goroutine so Publish never
// blocks the Tick that called it ("dispatching... schedules
// listeners for later invocation"). Events that arrive after the queue is
// saturated are dropped rather than applying backpressure to the driver —
// an EventBus must never stall execution.
type Async struct {
	mu       sync.RWMutex
	backends []Backend
	queue    chan engine.Event
	done     chan struct{}
}

// NewAsync starts an Async bus with the given backends and queue depth.
func NewAsync(queueDepth int, backends ...Backend) *Async {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	a := &Async{
		backends: backends,
		queue:    make(chan engine.Event, queueDepth),
		done:     make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	for event := range a.queue {
		a.mu.RLock()
		backends := append([]Backend(nil), a.backends...)
		a.mu.RUnlock()
		for _, b := range backends {
			dispatchSafely(func() { b.Publish(event) })
		}
	}
	close(a.done)
}

func (a *Async) Subscribe(b Backend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backends = append(a.backends, b)
}

func (a *Async) Publish(event engine.Event) {
	event = stampIfZero(event)
	select {
	case a.queue <- event:
	default:
		// queue saturated: drop rather than block the driver.
	}
}

func (a *Async) PublishBatch(ctx context.Context, events []engine.Event) error {
	for _, e := range events {
		a.Publish(e)
	}
	return nil
}

// Flush closes the queue and waits for the worker to drain it, or for ctx
// to expire.
func (a *Async) Flush(ctx context.Context) error {
	close(a.queue)
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
