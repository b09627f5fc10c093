package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked senders.
	maxTrackedKeys = 4096

	// senderWindow is the fixed window for counting a sender's messages.
	senderWindow = 60 * time.Second

	// senderMaxHits is the max messages per sender within a window that reach the responder.
	senderMaxHits = 30
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// SenderRateLimiter bounds how many messages from one sender are handed to an agent per
// window. Messages over the limit are still logged, they just never trigger a turn.
// Safe for concurrent use.
type SenderRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewSenderRateLimiter creates a bounded per-sender limiter with the default window.
func NewSenderRateLimiter() *SenderRateLimiter {
	return &SenderRateLimiter{
		entries: make(map[string]*rateLimitEntry),
		max:     senderMaxHits,
		window:  senderWindow,
		now:     time.Now,
	}
}

// Allow returns true if the key is within rate limits.
// Automatically prunes stale entries and enforces a hard cap on tracked keys.
func (r *SenderRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= r.window {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.max
}
