package pool

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/benny-edlund/task-pool/alloc"
	"github.com/benny-edlund/task-pool/internal/queue"
)

// ShutdownPolicy selects what happens to outstanding work when the pool
// shuts down. Running tasks are never interrupted forcibly under any policy;
// Abrupt merely signals their tokens.
type ShutdownPolicy int

const (
	// Graceful lets every queued task run to completion before workers exit.
	Graceful ShutdownPolicy = iota
	// Drain resolves every still-queued task as cancelled without running
	// it; tasks already running finish normally.
	Drain
	// Abrupt drains the queue and additionally cancels the pool's root
	// token so running tasks observe cancellation at their next checkpoint.
	Abrupt
)

func (s ShutdownPolicy) String() string {
	switch s {
	case Graceful:
		return "graceful"
	case Drain:
		return "drain"
	case Abrupt:
		return "abrupt"
	default:
		return "unknown"
	}
}

// Pool owns the task queue, the worker group, the root cancellation token
// and the allocator. Workers start immediately on New and run until
// Shutdown; the pool must not be used after Shutdown returns.
type Pool struct {
	conf *config
	log  *zap.Logger

	queue *queue.Blocking[*taskControlBlock]
	root  *Token

	// ctx is the parent of every task context; it ends on abrupt shutdown
	// or after all workers have joined.
	ctx       context.Context
	cancelCtx context.CancelFunc

	tcbs       alloc.Typed[taskControlBlock]
	statePools sync.Map // reflect.Type -> alloc.Pool

	mu           sync.Mutex // guards workers across Resize/Shutdown
	workers      *workerGroup
	shuttingDown atomic.Bool

	// pending counts tasks between successful enqueue and terminal
	// resolution; WaitIdle blocks on it reaching zero.
	idleMu   sync.Mutex
	idleCond *sync.Cond
	pending  int

	nextID  atomic.Uint64
	nextSeq atomic.Uint64

	running        atomic.Int64
	submitted      atomic.Uint64
	completedCount atomic.Uint64
	failedCount    atomic.Uint64
	cancelledCount atomic.Uint64
}

// New constructs a pool and starts its workers. The default configuration
// runs runtime.GOMAXPROCS(0) workers over an unbounded FIFO queue with plain
// heap allocation and no logging.
//
// Example:
//
//	p := pool.New(pool.WithWorkerCount(4), pool.WithQueueCapacity(128))
//	defer p.Close()
//
//	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
//	    return compute(), nil
//	})
func New(opts ...Option) *Pool {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var less func(a, b *taskControlBlock) bool
	if cfg.priority {
		less = byPriority
	}

	p := &Pool{
		conf:  cfg,
		log:   cfg.logger,
		queue: queue.New(cfg.queueCapacity, cfg.blockOnFull, less),
		root:  NewToken(),
		tcbs:  alloc.NewTyped[taskControlBlock](cfg.allocator),
	}
	p.ctx, p.cancelCtx = context.WithCancel(context.Background())
	p.idleCond = sync.NewCond(&p.idleMu)

	p.mu.Lock()
	p.workers = p.startWorkers(cfg.workerCount)
	p.mu.Unlock()

	p.log.Info("task pool started",
		zap.Int("workers", cfg.workerCount),
		zap.Int("queue_capacity", cfg.queueCapacity),
		zap.Bool("priority", cfg.priority),
	)
	return p
}

// Submit hands fn to the pool and returns a Future for its result. It fails
// with ErrPoolShutdown once shutdown has begun and with ErrQueueFull when a
// bounded queue is at capacity (unless the pool blocks on full). On failure
// no Future is returned and fn will never run.
//
// Submission never blocks beyond the enqueue itself. Priority and group
// cancellation are chosen per call:
//
//	fut, err := pool.Submit(p, fetch, pool.WithPriority(1), pool.WithToken(group))
func Submit[R any](p *Pool, fn TaskFunc[R], opts ...SubmitOption) (*Future[R], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if p.shuttingDown.Load() {
		return nil, ErrPoolShutdown
	}

	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}
	token := so.token
	if token == nil {
		token = NewToken()
	}

	st := newResultState[R](p)
	if err := scheduleTask(p, st, token, so.priority, fn); err != nil {
		return nil, err
	}
	return &Future[R]{s: st, token: token}, nil
}

// Submit is the untyped convenience form for tasks without a result value.
func (p *Pool) Submit(fn func(ctx context.Context) error, opts ...SubmitOption) (*Future[struct{}], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	return Submit(p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
}

// scheduleTask builds the control block binding fn to its result channel and
// enqueues it. Exactly one of the block's invoke or cancel thunks eventually
// runs, resolving st exactly once.
func scheduleTask[R any](p *Pool, st *resultState[R], token *Token, priority int, fn TaskFunc[R]) error {
	prom := promise[R]{s: st}

	tcb := p.tcbs.Get()
	tcb.id = p.nextID.Add(1)
	tcb.seq = p.nextSeq.Add(1)
	tcb.priority = priority
	tcb.token = token

	tcb.invoke = func(ctx context.Context) {
		st.markRunning()
		value, err := runTask(p, ctx, fn, token)
		switch {
		case err == nil:
			prom.completeValue(value)
			p.finishTask(tcb, StateCompleted)
		case isCancellation(err, token, p.root):
			prom.cancel()
			p.finishTask(tcb, StateCancelled)
		default:
			p.log.Debug("task failed", zap.Uint64("task", tcb.id), zap.Error(err))
			prom.fail(err)
			p.finishTask(tcb, StateFailed)
		}
	}
	tcb.cancel = func() {
		prom.cancel()
		p.finishTask(tcb, StateCancelled)
	}

	return p.enqueue(tcb)
}

// isCancellation decides whether a task error is a cooperative-cancellation
// outcome rather than a failure: either the body returned ErrTaskCancelled
// from a checkpoint, or its context ended because a token fired.
func isCancellation(err error, token, root *Token) bool {
	if errors.Is(err, ErrTaskCancelled) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return token.IsCancelled() || root.IsCancelled()
	}
	return false
}

func (p *Pool) enqueue(tcb *taskControlBlock) error {
	p.taskAdded()
	if err := p.queue.Push(tcb); err != nil {
		p.taskRemoved()
		p.tcbs.Put(tcb)
		switch {
		case errors.Is(err, queue.ErrClosed):
			return ErrPoolShutdown
		case errors.Is(err, queue.ErrFull):
			return ErrQueueFull
		default:
			return err
		}
	}
	p.submitted.Add(1)
	return nil
}

// finishTask records the terminal outcome and recycles the control block.
// The block must not be touched after this returns.
func (p *Pool) finishTask(tcb *taskControlBlock, state TaskState) {
	switch state {
	case StateCompleted:
		p.completedCount.Add(1)
	case StateFailed:
		p.failedCount.Add(1)
	case StateCancelled:
		p.cancelledCount.Add(1)
	}
	p.taskRemoved()
	p.tcbs.Put(tcb)
}

func (p *Pool) taskAdded() {
	p.idleMu.Lock()
	p.pending++
	p.idleMu.Unlock()
}

func (p *Pool) taskRemoved() {
	p.idleMu.Lock()
	p.pending--
	if p.pending == 0 {
		p.idleCond.Broadcast()
	}
	p.idleMu.Unlock()
}

// WaitIdle blocks until the queue is empty and no task is running, or the
// timeout elapses (ErrTimeout). timeout <= 0 waits indefinitely. Calling
// WaitIdle on a paused pool with queued work would never return; resume
// first.
func (p *Pool) WaitIdle(timeout time.Duration) error {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()

	expired := false
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			p.idleMu.Lock()
			expired = true
			p.idleCond.Broadcast()
			p.idleMu.Unlock()
		})
		defer timer.Stop()
	}

	for p.pending > 0 {
		if expired {
			return ErrTimeout
		}
		p.idleCond.Wait()
	}
	return nil
}

// Shutdown stops the pool under the given policy and waits up to timeout for
// workers to join (timeout <= 0 waits indefinitely). After Shutdown begins,
// Submit always fails; a second Shutdown returns ErrPoolShutdown. On
// ErrTimeout the workers keep finishing in the background and every drained
// task has already been resolved as cancelled; nothing is left pending
// forever.
func (p *Pool) Shutdown(policy ShutdownPolicy, timeout time.Duration) error {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return ErrPoolShutdown
	}
	p.log.Info("task pool shutting down", zap.Stringer("policy", policy))

	// A paused pool must still run or resolve its backlog.
	p.queue.SetPaused(false)

	switch policy {
	case Drain:
		p.resolveDrained()
	case Abrupt:
		p.root.Cancel()
		p.cancelCtx()
		p.resolveDrained()
	}
	p.queue.Close()

	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	if err := waitUntil(workers.done, timeout); err != nil {
		return err
	}
	p.cancelCtx()
	return workers.err
}

// Close shuts the pool down under the policy set by WithShutdownPolicy,
// waiting indefinitely. It satisfies io.Closer for defer-friendly cleanup.
func (p *Pool) Close() error {
	err := p.Shutdown(p.conf.shutdownPolicy, 0)
	if errors.Is(err, ErrPoolShutdown) {
		return nil
	}
	return err
}

func (p *Pool) resolveDrained() {
	drained := p.queue.Drain()
	for _, tcb := range drained {
		tcb.cancel()
	}
	if len(drained) > 0 {
		p.log.Info("drained queued tasks", zap.Int("count", len(drained)))
	}
}

// Pause stops workers from starting new tasks; running tasks finish and
// submissions keep queueing. Pausing does not affect Shutdown, which always
// resumes dispatch first.
func (p *Pool) Pause() {
	p.queue.SetPaused(true)
	p.log.Debug("task pool paused")
}

// Resume re-enables dispatch after Pause.
func (p *Pool) Resume() {
	p.queue.SetPaused(false)
	p.log.Debug("task pool resumed")
}

// IsPaused reports whether dispatch is currently paused.
func (p *Pool) IsPaused() bool {
	return p.queue.Paused()
}

// Resize replaces the worker group with one of n workers. The current
// workers finish their in-flight tasks and exit; queued tasks survive the
// swap untouched. Resize blocks until the old group has joined.
func (p *Pool) Resize(n int) error {
	if n <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown.Load() {
		return ErrPoolShutdown
	}
	if p.workers.size == n {
		return nil
	}

	old := p.workers
	old.stopped.Store(true)
	p.queue.Kick()
	<-old.done

	p.workers = p.startWorkers(n)
	p.log.Info("task pool resized", zap.Int("workers", n))
	return nil
}

// CancelAll fires the pool's root cancellation token. Every queued task and
// every subsequently submitted task resolves as cancelled, and running tasks
// observe cancellation at their next checkpoint. It is typically followed by
// Shutdown.
func (p *Pool) CancelAll() {
	p.root.Cancel()
	p.queue.Kick()
}

// Root exposes the pool's root token so long-running task bodies can use
// pool-lifetime checkpoints in addition to their own token.
func (p *Pool) Root() *Token {
	return p.root
}

// Stats is a point-in-time snapshot of pool activity. Counters are summed
// from atomics and may be mutually inconsistent by a task or two under load.
type Stats struct {
	Workers   int
	Queued    int
	Running   int64
	Submitted uint64
	Completed uint64
	Failed    uint64
	Cancelled uint64
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers := p.workers.size
	p.mu.Unlock()

	return Stats{
		Workers:   workers,
		Queued:    p.queue.Len(),
		Running:   p.running.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completedCount.Load(),
		Failed:    p.failedCount.Load(),
		Cancelled: p.cancelledCount.Load(),
	}
}

// statePoolFor returns the allocator-backed pool for result channel state of
// type R, creating it on first use. States are allocated through the
// provider but reclaimed by the garbage collector: futures are shared
// handles with no final owner to return them.
func statePoolFor[R any](p *Pool) alloc.Pool {
	key := reflect.TypeOf((*resultState[R])(nil))
	if existing, ok := p.statePools.Load(key); ok {
		return existing.(alloc.Pool)
	}
	created := p.conf.allocator.NewPool(func() any { return new(resultState[R]) })
	actual, _ := p.statePools.LoadOrStore(key, created)
	return actual.(alloc.Pool)
}

// waitUntil blocks until done closes or the timeout elapses. timeout <= 0
// waits indefinitely.
func waitUntil(done <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}
