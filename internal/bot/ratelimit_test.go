package bot

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	rl := NewRateLimiter(3, 50*time.Millisecond)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow(1); !ok {
			t.Fatalf("request %d denied inside limit", i+1)
		}
	}
	ok, retry := rl.Allow(1)
	if ok {
		t.Fatal("fourth request allowed")
	}
	if retry <= 0 {
		t.Fatalf("retry hint %v", retry)
	}

	// Other chats have their own window.
	if ok, _ := rl.Allow(2); !ok {
		t.Fatal("independent chat denied")
	}

	time.Sleep(60 * time.Millisecond)
	if ok, _ := rl.Allow(1); !ok {
		t.Fatal("request denied after window reset")
	}
}

func TestRateLimiterSweepDropsStaleWindows(t *testing.T) {
	rl := NewRateLimiter(3, 10*time.Millisecond)
	defer rl.Stop()

	rl.Allow(1)
	rl.Allow(2)
	rl.sweep(time.Now().Add(time.Hour))

	rl.mu.Lock()
	n := len(rl.chats)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d windows left after sweep", n)
	}
}

func TestSnapshotCacheExpiry(t *testing.T) {
	c := newSnapshotCache(20 * time.Millisecond)

	if _, ok := c.Get(1); ok {
		t.Fatal("hit on empty cache")
	}
	c.Set(1, nil)
	if _, ok := c.Get(1); !ok {
		t.Fatal("miss right after set")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(1); ok {
		t.Fatal("hit after ttl")
	}

	c.Set(2, nil)
	c.Delete(2)
	if _, ok := c.Get(2); ok {
		t.Fatal("hit after delete")
	}
}
