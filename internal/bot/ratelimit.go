package bot

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-chat request limiter. The window
// resets wholesale once it elapses, it is not a sliding window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	chats  map[int64]*rateWindow

	stop chan struct{}
	once sync.Once
}

type rateWindow struct {
	count   int
	startAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		limit:  limit,
		window: window,
		chats:  make(map[int64]*rateWindow),
		stop:   make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow reports whether the chat may issue another request now. When the
// request is denied it also returns how long until the window resets.
func (rl *RateLimiter) Allow(chatID int64) (bool, time.Duration) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.chats[chatID]
	if !ok || now.Sub(w.startAt) >= rl.window {
		rl.chats[chatID] = &rateWindow{count: 1, startAt: now}
		return true, 0
	}
	if w.count >= rl.limit {
		return false, w.startAt.Add(rl.window).Sub(now)
	}
	w.count++
	return true, 0
}

func (rl *RateLimiter) sweepLoop() {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-t.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, w := range rl.chats {
		if now.Sub(w.startAt) >= rl.window {
			delete(rl.chats, id)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}
