package notifier

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps notification throughput with a token bucket. Dispatch
// bursts after a large run drain the bucket and the overflow is dropped
// rather than queued; dropped alerts stay pending and go out on a later pass.
type RateLimiter struct {
	limiter *rate.Limiter
	dropped atomic.Int64
	enabled bool
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 10)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool          // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	limit := rate.Limit(float64(config.MaxPerWindow) / config.Window.Seconds())
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, config.MaxPerWindow),
		enabled: config.Enabled,
	}
}

// Allow reports whether a notification may go out now. A rejected
// notification counts toward Dropped.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}
	if !r.limiter.Allow() {
		r.dropped.Add(1)
		return false
	}
	return true
}

// Dropped returns the number of notifications dropped due to rate limiting.
func (r *RateLimiter) Dropped() int64 {
	return r.dropped.Load()
}
