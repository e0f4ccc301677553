package pool

import (
	"sync"
	"sync/atomic"
)

// Token is a shared cancellation flag. Cancellation is cooperative: setting
// the flag never interrupts running code, it only becomes visible to task
// bodies polling IsCancelled (or selecting on Done) and to the pool, which
// refuses to start still-queued tasks whose token fired.
//
// A Token may be shared across many tasks for group cancellation, or created
// per task. Cancellation is monotonic: once cancelled, a token never resets.
type Token struct {
	cancelled atomic.Bool

	mu        sync.Mutex
	done      chan struct{}
	watchers  map[uint64]func()
	nextWatch uint64
}

// NewToken creates an independent token in the not-cancelled state.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Derive creates a child token that is cancelled when either the parent or
// the child itself is cancelled. The relation is one-way: cancelling the
// child leaves the parent untouched.
func Derive(parent *Token) *Token {
	child := NewToken()
	if parent != nil {
		remove := parent.watch(child.Cancel)
		// Drop the parent registration once the child fires by any path, so
		// a long-lived parent does not accumulate dead children.
		child.watch(remove)
	}
	return child
}

// Derive is the method form of the package-level Derive.
func (t *Token) Derive() *Token { return Derive(t) }

// Cancel moves the token to the cancelled state. It is idempotent and safe
// to call from any goroutine; all holders observe the transition.
func (t *Token) Cancel() {
	if !t.cancelled.CompareAndSwap(false, true) {
		return
	}

	t.mu.Lock()
	close(t.done)
	watchers := t.watchers
	t.watchers = nil
	t.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// IsCancelled reports whether cancellation has been requested. It never
// blocks; readers pay a single atomic load.
func (t *Token) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel closed on cancellation, for task bodies that prefer
// select-based checkpoints over polling.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// watch registers fn to run on cancellation and returns a removal func. If
// the token is already cancelled, fn runs inline and removal is a no-op.
// watch is what ties per-task contexts to their token without leaking
// registrations on long-lived shared tokens.
func (t *Token) watch(fn func()) func() {
	t.mu.Lock()
	if t.cancelled.Load() {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	if t.watchers == nil {
		t.watchers = make(map[uint64]func())
	}
	id := t.nextWatch
	t.nextWatch++
	t.watchers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.watchers, id)
		t.mu.Unlock()
	}
}
