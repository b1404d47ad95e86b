package types

// ============================================================================
// Completion Handle
// Purpose: Single-assignment result cell for one submitted command
// ============================================================================

import (
	"context"
	"sync"
)

// Future is the completion handle of one submitted command. The partition
// worker completes it exactly once, with either a value or an error; zero or
// one consumer awaits it. Dropping the consumer side never blocks the
// producer, and completing an already-completed future is a no-op.
type Future struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

// NewFuture creates an unresolved completion handle.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete resolves the future with a success value. First resolution wins.
func (f *Future) Complete(v any) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// Fail resolves the future with an error. First resolution wins.
func (f *Future) Fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is cancelled. Timeouts are
// the caller's responsibility; the partition completes the future regardless
// of whether anyone is still waiting.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved reports whether the future has completed, without blocking.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
