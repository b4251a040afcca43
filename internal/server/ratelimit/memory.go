package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	dead        bool
}

// MemoryLimiter is a fixed-window counter per user held in process memory.
// Each user has its own lock; users never contend with each other.
type MemoryLimiter struct {
	opts    Options
	now     func() time.Time
	buckets sync.Map // int64 -> *bucket
}

// NewMemoryLimiter builds a limiter; now defaults to time.Now.
func NewMemoryLimiter(opts Options, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{opts: opts, now: now}
}

// Allow resets the window once more than Window has elapsed since it
// started, then admits the message if fewer than Max were sent in it.
// Rejected attempts are not counted.
func (l *MemoryLimiter) Allow(_ context.Context, userID int64) (bool, error) {
	for {
		v, _ := l.buckets.LoadOrStore(userID, &bucket{windowStart: l.now()})
		b := v.(*bucket)

		b.mu.Lock()
		if b.dead {
			// pruned between load and lock
			b.mu.Unlock()
			continue
		}

		now := l.now()
		if now.Sub(b.windowStart) > l.opts.Window {
			b.count = 0
			b.windowStart = now
		}

		allowed := b.count < l.opts.Max
		if allowed {
			b.count++
		}
		b.mu.Unlock()
		return allowed, nil
	}
}

// Prune drops counters whose window ended, so idle users do not
// accumulate. It returns the number removed.
func (l *MemoryLimiter) Prune() int {
	removed := 0
	now := l.now()
	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		if now.Sub(b.windowStart) > l.opts.Window {
			b.dead = true
			l.buckets.Delete(k)
			removed++
		}
		b.mu.Unlock()
		return true
	})
	return removed
}

// RunPruner calls Prune every interval until ctx is done.
func (l *MemoryLimiter) RunPruner(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Prune()
		}
	}
}
