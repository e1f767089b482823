// Package task provides cancellable handles for background operations.
package task

import (
	"context"
	"sync"
)

// Handle controls a single background operation started with Go.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Go runs fn in a new goroutine with a context derived from parent.
// The returned Handle cancels that context and waits for fn to return.
func Go(parent context.Context, fn func(ctx context.Context) error) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer cancel()
		err := fn(ctx)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
	}()
	return h
}

// Cancel requests cancellation. Safe to call on a nil Handle and more than once.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancel()
}

// Done is closed once the operation has returned.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.done
}

// Wait blocks until the operation returns or ctx ends, and returns the
// operation's error.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the operation's error once it has finished, nil before that.
func (h *Handle) Err() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
