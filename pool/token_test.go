package pool_test

import (
	"testing"
	"time"

	"github.com/benny-edlund/task-pool/pool"
)

func TestToken_CancelIsIdempotent(t *testing.T) {
	token := pool.NewToken()
	if token.IsCancelled() {
		t.Fatal("fresh token should not be cancelled")
	}

	token.Cancel()
	token.Cancel()
	token.Cancel()

	if !token.IsCancelled() {
		t.Error("token should be cancelled after Cancel")
	}

	select {
	case <-token.Done():
	default:
		t.Error("Done channel should be closed after Cancel")
	}
}

func TestToken_DoneBlocksUntilCancel(t *testing.T) {
	token := pool.NewToken()

	select {
	case <-token.Done():
		t.Fatal("Done channel closed before Cancel")
	case <-time.After(20 * time.Millisecond):
	}

	go token.Cancel()

	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel never closed after Cancel")
	}
}

func TestToken_DerivePropagatesToChildren(t *testing.T) {
	parent := pool.NewToken()
	child := pool.Derive(parent)
	grandchild := child.Derive()

	parent.Cancel()

	if !child.IsCancelled() {
		t.Error("child should be cancelled when parent is")
	}
	if !grandchild.IsCancelled() {
		t.Error("grandchild should be cancelled when parent is")
	}

	select {
	case <-grandchild.Done():
	default:
		t.Error("grandchild Done channel should be closed")
	}
}

func TestToken_ChildCancelLeavesParentAlone(t *testing.T) {
	parent := pool.NewToken()
	child := parent.Derive()

	child.Cancel()

	if !child.IsCancelled() {
		t.Error("child should be cancelled")
	}
	if parent.IsCancelled() {
		t.Error("cancelling a child must not cancel the parent")
	}
}

func TestToken_DeriveFromCancelledParent(t *testing.T) {
	parent := pool.NewToken()
	parent.Cancel()

	child := parent.Derive()
	if !child.IsCancelled() {
		t.Error("child derived from a cancelled parent should start cancelled")
	}
}

func TestToken_ConcurrentCancel(t *testing.T) {
	token := pool.NewToken()
	start := make(chan struct{})
	done := make(chan struct{})

	for range 8 {
		go func() {
			<-start
			token.Cancel()
			done <- struct{}{}
		}()
	}

	close(start)
	for range 8 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("concurrent Cancel deadlocked")
		}
	}
	if !token.IsCancelled() {
		t.Error("token should be cancelled")
	}
}
