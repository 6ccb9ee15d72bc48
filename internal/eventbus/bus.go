// Package eventbus provides a small typed publish/subscribe primitive.
//
// Each Topic fans one event kind out to its subscribers in registration
// order. A subscriber that panics is isolated: the panic is reported to the
// topic's panic hook and remaining subscribers still run.
package eventbus

import "sync"

// Topic fans events of type T out to registered subscribers.
// Publish must only be called from a single goroutine at a time (the
// client's receive loop); Subscribe is safe from any goroutine.
type Topic[T any] struct {
	mu      sync.RWMutex
	subs    []func(T)
	onPanic func(recovered any)
}

// NewTopic creates a topic. onPanic receives the recovered value whenever a
// subscriber panics; nil means panics are silently discarded.
func NewTopic[T any](onPanic func(recovered any)) *Topic[T] {
	return &Topic[T]{onPanic: onPanic}
}

// Subscribe registers fn. Subscribers are invoked in registration order and
// are never removed.
func (t *Topic[T]) Subscribe(fn func(T)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

// Publish delivers ev to every subscriber, synchronously, in registration
// order. Each invocation is isolated from the others.
func (t *Topic[T]) Publish(ev T) {
	t.mu.RLock()
	subs := make([]func(T), len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	for _, fn := range subs {
		t.invoke(fn, ev)
	}
}

func (t *Topic[T]) invoke(fn func(T), ev T) {
	defer func() {
		if r := recover(); r != nil && t.onPanic != nil {
			t.onPanic(r)
		}
	}()
	fn(ev)
}

// Len returns the number of registered subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
