package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benny-edlund/task-pool/internal/cpu"
	"github.com/benny-edlund/task-pool/internal/queue"
)

// workerGroup is one generation of workers. Resize retires a generation by
// setting stopped and kicking the queue; Shutdown waits on done of whichever
// generation is current.
type workerGroup struct {
	size    int
	stopped atomic.Bool
	done    chan struct{}
	err     error // combined worker errors, valid once done is closed
}

func (p *Pool) startWorkers(n int) *workerGroup {
	wg := &workerGroup{size: n, done: make(chan struct{})}

	var g errgroup.Group
	var errMu sync.Mutex
	var errs error

	for id := range n {
		g.Go(func() error {
			err := p.runWorker(id, wg)
			if err != nil {
				p.log.Error("worker exited with error", zap.Int("worker", id), zap.Error(err))
				errMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("worker %d: %w", id, err))
				errMu.Unlock()
			}
			return err
		})
	}

	go func() {
		_ = g.Wait()
		wg.err = errs
		close(wg.done)
	}()
	return wg
}

// runWorker is the dispatch loop: pop a control block, resolve it as
// cancelled if its token already fired, otherwise run it. The loop ends when
// the queue closes (shutdown) or the generation is retired (Resize).
func (p *Pool) runWorker(id int, wg *workerGroup) error {
	if p.conf.pinWorkers {
		defer cpu.Pin(id)()
	}

	for {
		tcb, err := p.queue.Pop(0, wg.stopped.Load)
		switch {
		case errors.Is(err, queue.ErrClosed), errors.Is(err, queue.ErrInterrupted):
			return nil
		case err != nil:
			return err
		}

		if tcb.cancelled(p.root) {
			tcb.cancel()
			continue
		}

		if p.conf.limiter != nil {
			if err := p.conf.limiter.Wait(p.ctx); err != nil {
				// The pool context only ends on abrupt shutdown; the task
				// must still resolve.
				tcb.cancel()
				continue
			}
		}

		p.runControlBlock(tcb)
	}
}

// runControlBlock executes one task with a context that ends when either the
// task's own token or the pool's root token fires. The control block must
// not be touched after invoke returns; invoke recycles it.
func (p *Pool) runControlBlock(tcb *taskControlBlock) {
	p.running.Add(1)
	defer p.running.Add(-1)

	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	unwatchTask := tcb.token.watch(cancel)
	defer unwatchTask()
	unwatchRoot := p.root.watch(cancel)
	defer unwatchRoot()

	tcb.invoke(ctx)
}

// runTask runs the task body with panic containment and, when a retry policy
// is configured, exponential backoff between attempts. Cancellation is never
// retried.
func runTask[R any](p *Pool, ctx context.Context, fn TaskFunc[R], token *Token) (R, error) {
	if p.conf.maxAttempts <= 1 {
		return invokeWithRecovery(p, ctx, fn)
	}

	operation := func() (R, error) {
		if token.IsCancelled() || p.root.IsCancelled() {
			var zero R
			return zero, backoff.Permanent(ErrTaskCancelled)
		}
		value, err := invokeWithRecovery(p, ctx, fn)
		if err != nil && errors.Is(err, ErrTaskCancelled) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.conf.retryInitial
	expo.MaxInterval = p.conf.retryMax

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(p.conf.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.log.Debug("retrying task", zap.Error(err), zap.Duration("backoff", next))
		}),
	)
}

// invokeWithRecovery contains panics from the task body, converting them
// into an error carrying the stack trace so one misbehaving task cannot
// take a worker down.
func invokeWithRecovery[R any](p *Pool, ctx context.Context, fn TaskFunc[R]) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			p.log.Warn("task panicked", zap.Any("panic", r))
			err = fmt.Errorf("task panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()
	return fn(ctx)
}
