package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome is the terminal result of a task as delivered to continuations:
// exactly one of Value (State Completed), Err (State Failed), or a cancelled
// marker (State Cancelled, Err set to ErrTaskCancelled).
type Outcome[R any] struct {
	Value R
	Err   error
	State TaskState
}

// resultState is the shared one-shot result channel behind a Future/promise
// pair. One producer (the worker, or the cancellation path) completes it
// exactly once; any number of consumers block on done or register callbacks.
// The mutex guards the single transition and the callback list; phase is
// additionally kept in an atomic so polling never takes the lock.
type resultState[R any] struct {
	mu        sync.Mutex
	phase     atomic.Int32
	value     R
	err       error
	done      chan struct{}
	callbacks []func(Outcome[R])
}

func newResultState[R any](p *Pool) *resultState[R] {
	st := statePoolFor[R](p).Get().(*resultState[R])
	st.done = make(chan struct{})
	st.phase.Store(int32(StateQueued))
	st.callbacks = nil
	return st
}

// complete performs the one-time transition out of the pending state, wakes
// every blocked Get and runs registered callbacks. A second call is a broken
// invariant and panics with ErrPromiseCompleted.
func (s *resultState[R]) complete(out Outcome[R]) {
	s.mu.Lock()
	if TaskState(s.phase.Load()).Terminal() {
		s.mu.Unlock()
		panic(ErrPromiseCompleted)
	}
	s.value = out.Value
	s.err = out.Err
	s.phase.Store(int32(out.State))
	callbacks := s.callbacks
	s.callbacks = nil
	close(s.done)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(out)
	}
}

func (s *resultState[R]) markRunning() {
	s.phase.CompareAndSwap(int32(StateQueued), int32(StateRunning))
}

func (s *resultState[R]) outcome() Outcome[R] {
	return Outcome[R]{Value: s.value, Err: s.err, State: TaskState(s.phase.Load())}
}

// subscribe registers cb to run once the state is terminal. If it already
// is, cb runs inline on the calling goroutine, so a continuation attached
// after completion observes the same outcome as one attached before.
func (s *resultState[R]) subscribe(cb func(Outcome[R])) {
	s.mu.Lock()
	if TaskState(s.phase.Load()).Terminal() {
		out := s.outcome()
		s.mu.Unlock()
		cb(out)
		return
	}
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}

// promise is the write side of a result channel. Exactly one of its three
// methods runs, exactly once, per task.
type promise[R any] struct {
	s *resultState[R]
}

func (p promise[R]) completeValue(v R) {
	p.s.complete(Outcome[R]{Value: v, State: StateCompleted})
}

func (p promise[R]) fail(err error) {
	p.s.complete(Outcome[R]{Err: err, State: StateFailed})
}

func (p promise[R]) cancel() {
	p.s.complete(Outcome[R]{Err: ErrTaskCancelled, State: StateCancelled})
}

// Future is the read side of a task's result channel. Futures may be shared
// freely: every consumer observes the identical terminal outcome.
type Future[R any] struct {
	s     *resultState[R]
	token *Token
}

// Get blocks until the task reaches a terminal state, then returns the value,
// the task's own error verbatim, or ErrTaskCancelled.
func (f *Future[R]) Get() (R, error) {
	<-f.s.done
	out := f.s.outcome()
	return out.Value, out.Err
}

// GetContext is Get bounded by a context; it returns ctx.Err() if the
// context ends first. The task itself keeps running either way.
func (f *Future[R]) GetContext(ctx context.Context) (R, error) {
	select {
	case <-f.s.done:
		out := f.s.outcome()
		return out.Value, out.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// GetTimeout is Get bounded by a deadline; it returns ErrTimeout if the task
// is still pending when the deadline elapses. Timeout is distinct from task
// failure and the call may simply be retried.
func (f *Future[R]) GetTimeout(timeout time.Duration) (R, error) {
	select {
	case <-f.s.done:
		out := f.s.outcome()
		return out.Value, out.Err
	case <-time.After(timeout):
		var zero R
		return zero, ErrTimeout
	}
}

// State polls the task's current state without blocking.
func (f *Future[R]) State() TaskState {
	return TaskState(f.s.phase.Load())
}

// Done returns a channel closed once the task reaches a terminal state.
func (f *Future[R]) Done() <-chan struct{} {
	return f.s.done
}

// Cancel requests cooperative cancellation of the task behind this future by
// firing its token. A still-queued task will never run; a running task stops
// at its next checkpoint. Cancelling a token shared by several tasks cancels
// the whole group.
func (f *Future[R]) Cancel() {
	f.token.Cancel()
}

// OnComplete registers cb to run once the future is terminal. The callback
// runs on whichever goroutine completes the channel (or inline when already
// terminal), so it must be short and must not block; use Then to run heavier
// continuations on a worker.
func (f *Future[R]) OnComplete(cb func(Outcome[R])) {
	f.s.subscribe(cb)
}
