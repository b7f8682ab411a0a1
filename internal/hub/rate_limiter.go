package hub

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled continuously at burst tokens per interval.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	capacity := float64(burst)
	return &rateLimiter{
		tokens:    capacity,
		capacity:  capacity,
		rate:      capacity / interval.Seconds(),
		lastCheck: time.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

func (rl *rateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastCheck).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.lastCheck = now
	rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.rate)
}
