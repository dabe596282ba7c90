package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a token bucket: refill rate 18 tokens/s, bucket size 18
// (spec §4.3's conservative margin under the broker's documented 20/s
// limit). Acquire blocks up to a per-call timeout; on exhaustion it
// returns an error rather than panicking — rate-limit exhaustion is a
// normal, recoverable condition for a caller to retry or back off on.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	onWait     func(time.Duration)
}

// NewRateLimiter creates a limiter starting at full capacity. onWait, if
// non-nil, is called with the time spent blocked once a call to Acquire
// succeeds after waiting.
func NewRateLimiter(refillRate, capacity float64, onWait func(time.Duration)) *RateLimiter {
	return &RateLimiter{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
		onWait:     onWait,
	}
}

// Acquire blocks until a token is available or timeout elapses.
func (r *RateLimiter) Acquire(ctx context.Context, timeout time.Duration) error {
	start := r.now()
	deadline := start.Add(timeout)

	for {
		if r.tryAcquire() {
			if waited := r.now().Sub(start); waited > 0 && r.onWait != nil {
				r.onWait(waited)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}

		if r.now().After(deadline) {
			return fmt.Errorf("broker: rate limiter acquire timed out after %s", timeout)
		}
	}
}

func (r *RateLimiter) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens = min(r.capacity, r.tokens+elapsed*r.refillRate)
	r.lastRefill = now

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}
