// Package observe provides snapshot values that UI consumers can read and subscribe to.
package observe

import "sync"

// Value holds the latest snapshot of T and notifies subscribers on every change.
// Snapshots handed out must be treated as read-only by callers.
type Value[T any] struct {
	// notifyMu serializes apply and notify so subscribers see changes in order.
	notifyMu sync.Mutex

	mu     sync.RWMutex
	v      T
	nextID int
	subs   map[int]func(T)
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		v:    initial,
		subs: make(map[int]func(T)),
	}
}

// Get returns the current snapshot.
func (o *Value[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.v
}

// Set replaces the snapshot and notifies subscribers.
func (o *Value[T]) Set(v T) {
	o.Update(func(T) T { return v })
}

// Update applies fn to the current snapshot atomically and notifies subscribers
// with the result. Updates are delivered to subscribers in the order they were
// applied. Neither fn nor a subscriber may update the same Value.
func (o *Value[T]) Update(fn func(T) T) T {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	o.v = fn(o.v)
	next := o.v
	subs := make([]func(T), 0, len(o.subs))
	for _, s := range o.subs {
		subs = append(subs, s)
	}
	o.mu.Unlock()

	for _, s := range subs {
		s(next)
	}
	return next
}

// Subscribe registers fn for change notifications and returns a function that
// removes the subscription. fn is not called with the current value.
func (o *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}
