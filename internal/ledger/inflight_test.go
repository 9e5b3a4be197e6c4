package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyGate_SerializesPerKey(t *testing.T) {
	g := newKeyGate()

	var active, overlapped int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.acquire(context.Background(), "asset-1"); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if atomic.AddInt32(&active, 1) > 1 {
				atomic.StoreInt32(&overlapped, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			g.release("asset-1")
		}()
	}
	wg.Wait()

	if overlapped != 0 {
		t.Fatal("two holders observed inside the same key's critical section")
	}
	g.mu.Lock()
	if len(g.locks) != 0 {
		t.Errorf("locks not cleaned up: %d remaining", len(g.locks))
	}
	g.mu.Unlock()
}

func TestKeyGate_IndependentKeys(t *testing.T) {
	g := newKeyGate()

	if err := g.acquire(context.Background(), "a"); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer g.release("a")

	done := make(chan struct{})
	go func() {
		if err := g.acquire(context.Background(), "b"); err == nil {
			g.release("b")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on an independent key blocked")
	}
}

func TestKeyGate_ContextCanceled(t *testing.T) {
	g := newKeyGate()

	if err := g.acquire(context.Background(), "a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.acquire(ctx, "a"); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	g.release("a")
	g.mu.Lock()
	n := len(g.locks)
	g.mu.Unlock()
	if n != 0 {
		t.Errorf("canceled waiter leaked a lock entry: %d remaining", n)
	}
}
