package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type job struct {
	priority int
	seq      uint64
}

func byPriority(a, b job) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func TestFIFOOrder(t *testing.T) {
	q := New[int](0, false, nil)

	for i := range 10 {
		if err := q.Push(i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	for i := range 10 {
		got, err := q.Pop(time.Second, nil)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if got != i {
			t.Errorf("expected %d, got %d", i, got)
		}
	}
}

func TestPriorityOrder(t *testing.T) {
	t.Run("least priority value first", func(t *testing.T) {
		q := New(0, false, byPriority)

		q.Push(job{priority: 3, seq: 0})
		q.Push(job{priority: 1, seq: 1})
		q.Push(job{priority: 2, seq: 2})

		want := []int{1, 2, 3}
		for _, p := range want {
			got, err := q.Pop(time.Second, nil)
			if err != nil {
				t.Fatalf("pop: %v", err)
			}
			if got.priority != p {
				t.Errorf("expected priority %d, got %d", p, got.priority)
			}
		}
	})

	t.Run("equal priorities keep submission order", func(t *testing.T) {
		q := New(0, false, byPriority)

		for seq := range uint64(20) {
			q.Push(job{priority: 5, seq: seq})
		}

		for seq := range uint64(20) {
			got, err := q.Pop(time.Second, nil)
			if err != nil {
				t.Fatalf("pop: %v", err)
			}
			if got.seq != seq {
				t.Errorf("expected seq %d, got %d", seq, got.seq)
			}
		}
	})
}

func TestPopBlocking(t *testing.T) {
	t.Run("times out distinctly", func(t *testing.T) {
		q := New[int](0, false, nil)

		start := time.Now()
		_, err := q.Pop(50*time.Millisecond, nil)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
		if time.Since(start) < 50*time.Millisecond {
			t.Errorf("pop returned before the deadline")
		}
	})

	t.Run("wakes on push", func(t *testing.T) {
		q := New[int](0, false, nil)

		go func() {
			time.Sleep(20 * time.Millisecond)
			q.Push(99)
		}()

		got, err := q.Pop(time.Second, nil)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if got != 99 {
			t.Errorf("expected 99, got %d", got)
		}
	})

	t.Run("interrupted by giveUp", func(t *testing.T) {
		q := New[int](0, false, nil)
		var stop atomic.Bool

		done := make(chan error, 1)
		go func() {
			_, err := q.Pop(0, stop.Load)
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		stop.Store(true)
		q.Kick()

		select {
		case err := <-done:
			if !errors.Is(err, ErrInterrupted) {
				t.Fatalf("expected ErrInterrupted, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("pop never returned after kick")
		}
	})
}

func TestCapacity(t *testing.T) {
	t.Run("rejects when full", func(t *testing.T) {
		q := New[int](2, false, nil)

		q.Push(1)
		q.Push(2)
		if err := q.Push(3); !errors.Is(err, ErrFull) {
			t.Fatalf("expected ErrFull, got %v", err)
		}
	})

	t.Run("blocking push waits for space", func(t *testing.T) {
		q := New[int](1, true, nil)
		q.Push(1)

		pushed := make(chan error, 1)
		go func() { pushed <- q.Push(2) }()

		select {
		case <-pushed:
			t.Fatal("push should have blocked on a full queue")
		case <-time.After(20 * time.Millisecond):
		}

		if _, err := q.Pop(time.Second, nil); err != nil {
			t.Fatalf("pop: %v", err)
		}
		if err := <-pushed; err != nil {
			t.Fatalf("blocked push: %v", err)
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("push after close is rejected", func(t *testing.T) {
		q := New[int](0, false, nil)
		if q.Closed() {
			t.Fatal("fresh queue should not report closed")
		}
		q.Close()
		q.Close() // idempotent
		if !q.Closed() {
			t.Fatal("queue should report closed")
		}
		if err := q.Push(1); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	})

	t.Run("close delivers backlog then reports closed", func(t *testing.T) {
		q := New[int](0, false, nil)
		q.Push(1)
		q.Push(2)
		q.Close()

		for want := 1; want <= 2; want++ {
			got, err := q.Pop(time.Second, nil)
			if err != nil {
				t.Fatalf("pop: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}
		if _, err := q.Pop(time.Second, nil); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	})

	t.Run("close wakes blocked poppers", func(t *testing.T) {
		q := New[int](0, false, nil)

		done := make(chan error, 1)
		go func() {
			_, err := q.Pop(0, nil)
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		q.Close()

		select {
		case err := <-done:
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("expected ErrClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("pop never returned after close")
		}
	})
}

func TestDrain(t *testing.T) {
	q := New[int](0, false, nil)
	for i := range 5 {
		q.Push(i)
	}

	items := q.Drain()
	if len(items) != 5 {
		t.Fatalf("expected 5 drained items, got %d", len(items))
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty after drain, has %d", q.Len())
	}
	if got := q.Drain(); got != nil {
		t.Errorf("second drain should return nil, got %v", got)
	}
}

func TestPause(t *testing.T) {
	q := New[int](0, false, nil)
	q.Push(1)
	q.SetPaused(true)

	if _, err := q.Pop(30*time.Millisecond, nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("paused queue should look empty, got %v", err)
	}

	q.SetPaused(false)
	got, err := q.Pop(time.Second, nil)
	if err != nil || got != 1 {
		t.Fatalf("expected item after resume, got %d, %v", got, err)
	}
}

func TestConcurrentExactlyOnce(t *testing.T) {
	const (
		producers = 4
		consumers = 4
		perProd   = 500
	)

	q := New[int](0, false, nil)
	var seen sync.Map
	var popped atomic.Int64

	var consumerWg sync.WaitGroup
	for range consumers {
		consumerWg.Add(1)
		go func() {
			defer consumerWg.Done()
			for {
				item, err := q.Pop(0, nil)
				if errors.Is(err, ErrClosed) {
					return
				}
				if err != nil {
					t.Errorf("pop: %v", err)
					return
				}
				if _, dup := seen.LoadOrStore(item, true); dup {
					t.Errorf("item %d delivered twice", item)
					return
				}
				popped.Add(1)
			}
		}()
	}

	var producerWg sync.WaitGroup
	for p := range producers {
		producerWg.Add(1)
		go func() {
			defer producerWg.Done()
			for i := range perProd {
				if err := q.Push(p*perProd + i); err != nil {
					t.Errorf("push: %v", err)
					return
				}
			}
		}()
	}

	producerWg.Wait()
	q.Close()
	consumerWg.Wait()

	if got := popped.Load(); got != producers*perProd {
		t.Errorf("expected %d deliveries, got %d", producers*perProd, got)
	}
}
