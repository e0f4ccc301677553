// Package alloc provides pluggable allocation strategies for the task pool's
// internal bookkeeping (task control blocks, result channel state).
//
// A Provider is injected at pool construction time and decides how internal
// records are obtained and recycled. Three strategies ship with the package:
//
//   - Heap: plain allocations, recycling is a no-op (the garbage collector
//     owns every object). The default.
//   - Synced: sync.Pool backed, trades a little CPU for reduced GC pressure
//     under sustained submission rates.
//   - Slab: a fixed-size free list, bounding the number of live recycled
//     records regardless of load.
//
// All providers and the pools they create are safe for concurrent use from
// multiple worker goroutines.
package alloc

import "sync"

// Pool hands out and takes back untyped records. Get never returns nil;
// Put accepts records previously returned by Get on the same Pool.
type Pool interface {
	Get() any
	Put(any)
}

// Provider creates object pools for a single record type. The newFn callback
// allocates a fresh record and is used whenever the pool has nothing to reuse.
type Provider interface {
	NewPool(newFn func() any) Pool
}

// Heap returns a Provider whose pools always allocate fresh records and
// discard returned ones. This is the zero-overhead default.
func Heap() Provider { return heapProvider{} }

type heapProvider struct{}

func (heapProvider) NewPool(newFn func() any) Pool { return heapPool{newFn: newFn} }

type heapPool struct{ newFn func() any }

func (p heapPool) Get() any { return p.newFn() }
func (heapPool) Put(any)    {}

// Synced returns a Provider backed by sync.Pool. Records returned with Put
// may be reused by later Get calls on any goroutine.
func Synced() Provider { return syncedProvider{} }

type syncedProvider struct{}

func (syncedProvider) NewPool(newFn func() any) Pool {
	return &syncedPool{pool: sync.Pool{New: newFn}}
}

type syncedPool struct{ pool sync.Pool }

func (p *syncedPool) Get() any  { return p.pool.Get() }
func (p *syncedPool) Put(x any) { p.pool.Put(x) }

// Slab returns a Provider whose pools keep at most capacity recycled records
// on a free list. Get falls back to fresh allocation when the list is empty;
// Put drops the record when the list is full. Capacity must be positive.
func Slab(capacity int) Provider {
	if capacity <= 0 {
		capacity = 64
	}
	return slabProvider{capacity: capacity}
}

type slabProvider struct{ capacity int }

func (s slabProvider) NewPool(newFn func() any) Pool {
	return &slabPool{free: make(chan any, s.capacity), newFn: newFn}
}

// slabPool uses a buffered channel as its free list so Get and Put stay
// non-blocking under contention.
type slabPool struct {
	free  chan any
	newFn func() any
}

func (p *slabPool) Get() any {
	select {
	case x := <-p.free:
		return x
	default:
		return p.newFn()
	}
}

func (p *slabPool) Put(x any) {
	select {
	case p.free <- x:
	default:
	}
}

// Typed is a typed view over an untyped Pool. Put zeroes the record before
// handing it back so stale task state never leaks into a reused record.
type Typed[T any] struct {
	pool Pool
}

// NewTyped builds a Typed pool for *T records from the given provider.
func NewTyped[T any](p Provider) Typed[T] {
	return Typed[T]{pool: p.NewPool(func() any { return new(T) })}
}

// Get returns a zeroed-or-fresh *T.
func (t Typed[T]) Get() *T {
	return t.pool.Get().(*T)
}

// Put recycles x. x must not be used after Put returns.
func (t Typed[T]) Put(x *T) {
	if x == nil {
		return
	}
	var zero T
	*x = zero
	t.pool.Put(x)
}
