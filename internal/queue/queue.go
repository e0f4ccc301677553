// Package queue implements the blocking task queue shared by all workers of
// a pool. A single mutex/condition-variable pair guards either a FIFO ring
// buffer or, when an ordering function is supplied, a binary heap. Push, Pop
// and Drain are linearizable: every pushed item is delivered exactly once, to
// exactly one caller of Pop or Drain.
package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	equeue "github.com/eapache/queue"
)

var (
	// ErrClosed is returned by Push after Close, and by Pop once the queue
	// is both closed and empty.
	ErrClosed = errors.New("queue is closed")

	// ErrFull is returned by Push when a capacity bound is set, the queue is
	// at capacity, and blocking pushes are disabled.
	ErrFull = errors.New("queue is full")

	// ErrTimeout is returned by Pop when the wait deadline elapses before an
	// item becomes available.
	ErrTimeout = errors.New("queue pop timed out")

	// ErrInterrupted is returned by Pop when the caller's giveUp predicate
	// reports true while waiting.
	ErrInterrupted = errors.New("queue pop interrupted")
)

// Blocking is a thread-safe queue of T. With a nil ordering function it is
// plain FIFO; with one it delivers the least item first (the caller's
// function is responsible for any FIFO tie-break among equal items).
type Blocking[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	fifo *equeue.Queue
	heap *itemHeap[T]

	capacity    int
	blockOnFull bool
	closed      bool
	paused      bool
}

// New creates a queue. capacity <= 0 means unbounded. When bounded,
// blockOnFull selects between blocking pushes and ErrFull. A non-nil less
// switches the queue into priority order.
func New[T any](capacity int, blockOnFull bool, less func(a, b T) bool) *Blocking[T] {
	q := &Blocking[T]{
		capacity:    capacity,
		blockOnFull: blockOnFull,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	if less != nil {
		q.heap = &itemHeap[T]{less: less}
	} else {
		q.fifo = equeue.New()
	}
	return q
}

// Push appends item, or inserts it by priority in ordered mode. It fails with
// ErrClosed once the queue is shutting down, and with ErrFull when a capacity
// bound is reached and blocking pushes are disabled.
func (q *Blocking[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return ErrClosed
		}
		if q.capacity <= 0 || q.sizeLocked() < q.capacity {
			break
		}
		if !q.blockOnFull {
			return ErrFull
		}
		q.notFull.Wait()
	}

	if q.heap != nil {
		heap.Push(q.heap, item)
	} else {
		q.fifo.Add(item)
	}
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the next item, blocking until one is available.
// timeout <= 0 waits indefinitely. A non-nil giveUp predicate is re-checked
// on every wakeup so callers can abandon the wait (see Kick).
//
// A closed queue keeps delivering until empty, then reports ErrClosed; this
// is what lets graceful shutdown run out the backlog.
func (q *Blocking[T]) Pop(timeout time.Duration, giveUp func() bool) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	expired := false
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			q.mu.Lock()
			expired = true
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()
	}

	for {
		if giveUp != nil && giveUp() {
			return zero, ErrInterrupted
		}
		if !q.paused && q.sizeLocked() > 0 {
			item := q.removeLocked()
			q.notFull.Signal()
			return item, nil
		}
		if q.closed && q.sizeLocked() == 0 {
			return zero, ErrClosed
		}
		if expired {
			return zero, ErrTimeout
		}
		q.notEmpty.Wait()
	}
}

// Drain atomically removes and returns every queued item, ignoring pause
// state. Used at shutdown to resolve still-queued work instead of running it.
func (q *Blocking[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.sizeLocked()
	if n == 0 {
		return nil
	}
	items := make([]T, 0, n)
	for q.sizeLocked() > 0 {
		items = append(items, q.removeLocked())
	}
	q.notFull.Broadcast()
	return items
}

// Close puts the queue into shutting-down state: subsequent pushes are
// rejected, waiting poppers are woken, queued items remain deliverable.
// Close is idempotent.
func (q *Blocking[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// SetPaused gates delivery: while paused, Pop behaves as if the queue were
// empty, but Push and Drain operate normally.
func (q *Blocking[T]) SetPaused(paused bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = paused
	if !paused {
		q.notEmpty.Broadcast()
	}
}

// Paused reports whether delivery is currently gated.
func (q *Blocking[T]) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Kick wakes every waiting popper so giveUp predicates are re-evaluated.
func (q *Blocking[T]) Kick() {
	q.mu.Lock()
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Blocking[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

// Closed reports whether Close has been called.
func (q *Blocking[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Blocking[T]) sizeLocked() int {
	if q.heap != nil {
		return q.heap.Len()
	}
	return q.fifo.Length()
}

func (q *Blocking[T]) removeLocked() T {
	if q.heap != nil {
		return heap.Pop(q.heap).(T)
	}
	return q.fifo.Remove().(T)
}

// itemHeap adapts a slice to heap.Interface the way container/heap expects.
type itemHeap[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (h *itemHeap[T]) Len() int           { return len(h.items) }
func (h *itemHeap[T]) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *itemHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *itemHeap[T]) Push(x any) {
	item, ok := x.(T)
	if !ok {
		panic("itemHeap.Push: invalid type assertion")
	}
	h.items = append(h.items, item)
}

func (h *itemHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero
	h.items = old[:n-1]
	return item
}
