package pool

import (
	"context"
)

// TaskFunc is a unit of work. The context it receives is cancelled when the
// task's token or the pool's root token fires, so bodies can use either
// explicit token checkpoints or ordinary ctx.Done() selects.
type TaskFunc[R any] func(ctx context.Context) (R, error)

// TaskState tracks a task through its lifecycle. Completed, Failed and
// Cancelled are terminal; no task ever leaves a terminal state.
type TaskState int32

const (
	StateQueued TaskState = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

// Terminal reports whether s is one of the three final states.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

func (s TaskState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// taskControlBlock is the pool-internal record for one submitted task. The
// typed closure and its typed result channel are captured inside the invoke
// and cancel thunks, so one untyped queue and worker loop serve futures of
// every result type. The task's state lives in its result channel, which the
// thunks transition; the block itself carries only scheduling metadata.
//
// A block lives in the queue until a worker removes it; exactly one of
// invoke (worker path) or cancel (pre-run cancellation, shutdown drain)
// runs, after which the block is recycled through the allocator.
type taskControlBlock struct {
	id       uint64
	seq      uint64
	priority int
	token    *Token

	// invoke runs the task body and publishes Completed/Failed/Cancelled.
	invoke func(ctx context.Context)
	// cancel publishes a Cancelled outcome without running the body.
	cancel func()
}

// cancelled reports whether this task's token or the pool root requested
// cancellation.
func (t *taskControlBlock) cancelled(root *Token) bool {
	return t.token.IsCancelled() || root.IsCancelled()
}

// byPriority orders queue entries for priority scheduling: lower priority
// value first, FIFO among equals via the submission sequence.
func byPriority(a, b *taskControlBlock) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}
