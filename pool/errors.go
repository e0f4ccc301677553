package pool

import "errors"

var (
	// ErrPoolShutdown is returned by Submit once shutdown has begun, and by
	// Shutdown itself when called a second time.
	ErrPoolShutdown = errors.New("pool is shut down")

	// ErrQueueFull is returned by Submit when the queue has a capacity bound,
	// the bound is reached, and blocking submissions are disabled.
	ErrQueueFull = errors.New("task queue is full")

	// ErrTaskCancelled is the outcome surfaced by Future.Get for tasks that
	// were cancelled before or during execution. Task bodies may also return
	// it from their own cancellation checkpoints.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrTimeout is returned by Future.GetTimeout, WaitIdle and Shutdown when
	// the deadline elapses. It is distinct from task failure and retryable.
	ErrTimeout = errors.New("operation timed out")

	// ErrNilTask is returned by Submit when the task closure is nil.
	ErrNilTask = errors.New("task must not be nil")

	// ErrPromiseCompleted is the panic value raised on a second completion of
	// the same result channel. Double completion is an internal logic defect,
	// never an expected runtime condition, so it fails hard.
	ErrPromiseCompleted = errors.New("result channel completed twice")
)
