package bot

import (
	"sync"
	"time"

	"webot/internal/extract"
)

const defaultSnapshotTTL = 10 * time.Minute

// snapshotCache keeps the last fetched snapshot per chat so quick
// follow-up commands do not hit the portal again.
type snapshotCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[int64]cacheEntry
}

type cacheEntry struct {
	snap    *extract.Snapshot
	expires time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &snapshotCache{ttl: ttl, m: make(map[int64]cacheEntry)}
}

func (c *snapshotCache) Get(chatID int64) (*extract.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[chatID]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.m, chatID)
		return nil, false
	}
	return e.snap, true
}

func (c *snapshotCache) Set(chatID int64, snap *extract.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[chatID] = cacheEntry{snap: snap, expires: time.Now().Add(c.ttl)}
}

func (c *snapshotCache) Delete(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, chatID)
}
