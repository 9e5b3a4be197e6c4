package ledger

import (
	"context"
	"strconv"
	"sync"
)

// keyGate serializes work per key: at most one holder per key at a time.
// The registry mutex is only held to look up or drop entries, never while
// waiting, so a slow wallet or transport call on one key cannot block
// acquisition on other keys. Waiting is context-aware.
type keyGate struct {
	mu    sync.Mutex
	locks map[string]*gateLock
}

type gateLock struct {
	sem  chan struct{} // capacity 1; a buffered slot is the held state
	refs int           // holder + waiters; entry is dropped at zero
}

func newKeyGate() *keyGate {
	return &keyGate{locks: make(map[string]*gateLock)}
}

// acquire blocks until the key is free or ctx is done. On success the caller
// must release(key) exactly once.
func (g *keyGate) acquire(ctx context.Context, key string) error {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &gateLock{sem: make(chan struct{}, 1)}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, key)
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

// release frees the key for the next waiter.
func (g *keyGate) release(key string) {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		g.mu.Unlock()
		return
	}
	<-l.sem // never blocks: the caller holds the slot
	l.refs--
	if l.refs == 0 {
		delete(g.locks, key)
	}
	g.mu.Unlock()
}

func assetKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
