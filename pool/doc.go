// Package pool provides a task-oriented worker pool: submit closures with
// heterogeneous result types, get back typed futures, and cancel work
// cooperatively through tokens.
//
// The primary type is Pool, a fixed set of workers draining a shared task
// queue. Unlike batch-oriented pools, submission is open-ended: each call to
// Submit enqueues one task and returns immediately with a Future for its
// result. The pool supports priority scheduling, cooperative cancellation,
// panic recovery, retry with exponential backoff, rate limiting, pluggable
// allocation and continuation chaining via functional options.
//
// # Basic Usage
//
//	p := pool.New(pool.WithWorkerCount(4))
//	defer p.Close()
//
//	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
//	    return compute(), nil
//	})
//	if err != nil {
//	    // pool shut down or queue full; the task never ran
//	}
//	value, err := fut.Get()
//
// # Futures
//
// A Future is a one-shot, multi-reader handle: Get blocks until the task is
// terminal and every reader observes the same outcome. GetContext and
// GetTimeout bound the wait, Done exposes a select-friendly channel, and
// OnComplete registers callbacks that fire exactly once.
//
// # Cancellation
//
// Cancellation is cooperative. Every task has a Token, either private
// (Future.Cancel) or shared across a group (WithToken). Tasks observe
// cancellation through their context or by polling the token:
//
//	group := pool.NewToken()
//	fut, _ := pool.Submit(p, func(ctx context.Context) ([]byte, error) {
//	    for i := range chunks {
//	        if err := ctx.Err(); err != nil {
//	            return nil, pool.ErrTaskCancelled
//	        }
//	        process(chunks[i])
//	    }
//	    return out, nil
//	}, pool.WithToken(group))
//	group.Cancel() // resolves the task as cancelled at its next checkpoint
//
// A task cancelled before a worker picks it up never runs at all. Tokens
// form trees via Derive: cancelling a parent cancels every descendant.
//
// # Continuations
//
// Then chains work without blocking a worker on an upstream result:
//
//	fetched := pool.Submit(...)
//	parsed := pool.Then(p, fetched, func(ctx context.Context, out pool.Outcome[[]byte]) (Doc, error) {
//	    if out.Err != nil {
//	        return Doc{}, out.Err
//	    }
//	    return parse(out.Value)
//	})
//
// # Configuration Options
//
//   - WithWorkerCount(n): number of workers (default: GOMAXPROCS)
//   - WithQueueCapacity(n): bound the queue; WithBlockOnFull() to wait instead of failing
//   - WithPriorityScheduling(): order the queue by per-task priority
//   - WithAllocator(p): allocation strategy for internal records (heap, sync.Pool, slab)
//   - WithRetryPolicy(maxAttempts, initialDelay): retry failing tasks with exponential backoff
//   - WithRateLimit(tasksPerSecond, burst): cap task starts
//   - WithCPUAffinity(): pin workers to cores where the platform allows
//   - WithLogger(l): structured logging of lifecycle events
//   - WithShutdownPolicy(p): policy used by Close
//
// # Error Handling
//
// Task errors are contained: a failing or panicking task resolves its own
// future (panics become errors carrying the stack trace) and the worker
// moves on. Submission errors are sentinels (ErrPoolShutdown, ErrQueueFull,
// ErrNilTask) and guarantee the task will never run. Cancelled tasks
// resolve with ErrTaskCancelled.
//
// The package is designed for Go 1.18+ (generics).
package pool
