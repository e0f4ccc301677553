package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benny-edlund/task-pool/pool"
)

func TestFuture_GetBlocksUntilResolved(t *testing.T) {
	p := pool.New(pool.WithWorkerCount(2))
	defer p.Close()

	release := make(chan struct{})
	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if fut.State().Terminal() {
		t.Fatal("future should not be terminal before the task runs")
	}

	close(release)
	value, err := fut.Get()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if value != 42 {
		t.Errorf("expected 42, got %d", value)
	}
	if fut.State() != pool.StateCompleted {
		t.Errorf("expected completed state, got %v", fut.State())
	}
}

func TestFuture_EveryReaderSeesTheSameOutcome(t *testing.T) {
	p := pool.New(pool.WithWorkerCount(2))
	defer p.Close()

	fut, err := pool.Submit(p, func(ctx context.Context) (string, error) {
		return "shared", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := fut.Get()
			if err != nil {
				t.Errorf("reader got error: %v", err)
			}
			if value != "shared" {
				t.Errorf("reader got %q, expected %q", value, "shared")
			}
		}()
	}
	wg.Wait()
}

func TestFuture_GetTimeout(t *testing.T) {
	p := pool.New(pool.WithWorkerCount(1))
	defer p.Close()

	release := make(chan struct{})
	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
		<-release
		return 7, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = fut.GetTimeout(20 * time.Millisecond)
	if !errors.Is(err, pool.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// A timed-out Get is retryable; the task is unaffected.
	close(release)
	value, err := fut.GetTimeout(time.Second)
	if err != nil {
		t.Fatalf("expected no error on retry, got %v", err)
	}
	if value != 7 {
		t.Errorf("expected 7, got %d", value)
	}
}

func TestFuture_GetContext(t *testing.T) {
	p := pool.New(pool.WithWorkerCount(1))
	defer p.Close()

	release := make(chan struct{})
	defer close(release)
	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = fut.GetContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestFuture_OnComplete(t *testing.T) {
	t.Run("registered before resolution", func(t *testing.T) {
		p := pool.New(pool.WithWorkerCount(1))
		defer p.Close()

		release := make(chan struct{})
		fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
			<-release
			return 3, nil
		})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}

		got := make(chan pool.Outcome[int], 1)
		fut.OnComplete(func(out pool.Outcome[int]) { got <- out })

		close(release)
		select {
		case out := <-got:
			if out.Value != 3 || out.Err != nil || out.State != pool.StateCompleted {
				t.Errorf("unexpected outcome: %+v", out)
			}
		case <-time.After(time.Second):
			t.Fatal("callback never fired")
		}
	})

	t.Run("registered after resolution", func(t *testing.T) {
		p := pool.New(pool.WithWorkerCount(1))
		defer p.Close()

		fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
			return 3, nil
		})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		<-fut.Done()

		var fired atomic.Bool
		fut.OnComplete(func(out pool.Outcome[int]) {
			if out.Value != 3 {
				t.Errorf("expected 3, got %d", out.Value)
			}
			fired.Store(true)
		})
		if !fired.Load() {
			t.Error("callback on a terminal future should run inline")
		}
	})
}

func TestFuture_CancelBeforeRunSkipsTheBody(t *testing.T) {
	p := pool.New(pool.WithWorkerCount(1))
	defer p.Close()
	p.Pause()

	var ran atomic.Bool
	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	fut.Cancel()
	fut.Cancel() // idempotent
	p.Resume()

	_, err = fut.Get()
	if !errors.Is(err, pool.ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled, got %v", err)
	}
	if fut.State() != pool.StateCancelled {
		t.Errorf("expected cancelled state, got %v", fut.State())
	}
	if ran.Load() {
		t.Error("task body must never run after a pre-run cancel")
	}
}

func TestFuture_CancelRunningTaskStopsAtCheckpoint(t *testing.T) {
	p := pool.New(pool.WithWorkerCount(1))
	defer p.Close()

	started := make(chan struct{})
	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
		close(started)
		for {
			select {
			case <-ctx.Done():
				return 0, pool.ErrTaskCancelled
			case <-time.After(time.Millisecond):
			}
		}
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	<-started
	fut.Cancel()

	_, err = fut.GetTimeout(time.Second)
	if !errors.Is(err, pool.ErrTaskCancelled) {
		t.Fatalf("expected ErrTaskCancelled, got %v", err)
	}
}
