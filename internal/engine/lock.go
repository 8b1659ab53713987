package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLock serializes operations per key. Waiters on the same key run in
// arrival order; distinct keys never block each other. Entries are
// refcounted so the map does not grow with every chat that ever existed.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*lockEntry)}
}

// Acquire blocks until the key's lock is held or ctx is done. The returned
// release func must be called exactly once.
func (k *keyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.release(key, e, false)
		return nil, err
	}
	return func() { k.release(key, e, true) }, nil
}

func (k *keyedLock) release(key string, e *lockEntry, held bool) {
	if held {
		e.sem.Release(1)
	}
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
