package util

import (
	"context"
	"sync"
	"time"
)

var (
	// DefaultRate is the default minimum time between background fetches
	DefaultRate = 200 * time.Millisecond
	// DefaultBurst is the default burst size
	DefaultBurst = 2
)

// RateLimiter is a token bucket limiter. The preload scheduler uses it to keep
// background byte-content fetches from starving the fetch of the active file.
type RateLimiter struct {
	mu        sync.Mutex
	last      time.Time
	rate      time.Duration
	tokens    int
	maxTokens int
}

// NewRateLimiter creates a limiter with the given minimum time between
// requests and burst size.
func NewRateLimiter(rate time.Duration, burst int) *RateLimiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		last:      time.Now(),
		rate:      rate,
		tokens:    burst,
		maxTokens: burst,
	}
}

// Wait blocks until a token is available or the context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()

		// Refill tokens based on time passed
		newTokens := int(now.Sub(r.last) / r.rate)
		if newTokens > 0 {
			r.tokens += newTokens
			if r.tokens > r.maxTokens {
				r.tokens = r.maxTokens
			}
			r.last = now
		}

		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		wait := r.rate - now.Sub(r.last)
		r.mu.Unlock()
		if wait <= 0 {
			wait = r.rate
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow reports whether a token is immediately available and consumes it if so
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	newTokens := int(now.Sub(r.last) / r.rate)
	if newTokens > 0 {
		r.tokens += newTokens
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.last = now
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}
