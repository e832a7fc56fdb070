package main

import (
	"sync"
	"time"
)

const limiterShardCount = 16

type limiterShard struct {
	mu      sync.Mutex
	windows map[int64][]time.Time
}

// Limiter bounds request frequency per user with a sliding window of
// timestamps. Windows are created lazily and pruned on every check. Shards
// keep distinct users from contending on one lock.
type Limiter struct {
	window time.Duration
	max    int
	shards [limiterShardCount]*limiterShard
}

func NewLimiter(max int, window time.Duration) *Limiter {
	l := &Limiter{window: window, max: max}
	for i := range l.shards {
		l.shards[i] = &limiterShard{windows: make(map[int64][]time.Time)}
	}
	return l
}

// Allow reports whether the user may issue a request at instant now. An
// allowed request consumes one slot of the window; a rejected request does
// not, so sustained abuse cannot extend the window indefinitely.
func (l *Limiter) Allow(userID int64, now time.Time) bool {
	sh := l.shards[uint64(userID)%limiterShardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := sh.windows[userID][:0]
	for _, t := range sh.windows[userID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		sh.windows[userID] = kept
		return false
	}
	sh.windows[userID] = append(kept, now)
	return true
}

// Pending returns how many timestamps are currently held for the user.
func (l *Limiter) Pending(userID int64, now time.Time) int {
	sh := l.shards[uint64(userID)%limiterShardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-l.window)
	n := 0
	for _, t := range sh.windows[userID] {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
