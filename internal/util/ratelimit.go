package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls to fit a per-minute request quota, like the Alpha
// Vantage free tier's 5 requests per minute. It is a single-token bucket:
// bursting past the quota is never allowed, and a blocked caller sleeps for
// the exact time until the next token rather than polling.
type RateLimiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	tokens  float64 // at most 1
	lastRef time.Time
}

// NewRateLimiter creates a RateLimiter allowing perMinute calls per minute.
// The first call proceeds immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RateLimiter{
		rate:    float64(perMinute) / 60.0,
		tokens:  1,
		lastRef: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.tokens += now.Sub(rl.lastRef).Seconds() * rl.rate
		if rl.tokens > 1 {
			rl.tokens = 1
		}
		rl.lastRef = now

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Sleep until the bucket refills, then re-check under the lock
		// in case another waiter took the token first.
		wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
