package notifier

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by all destinations.
type RateLimiter struct {
	limiter *rate.Limiter
	config  RateLimitConfig
	dropped atomic.Int64
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	PerMinute int  // Sustained notifications per minute (default: 60)
	Burst     int  // Notifications allowed at once (default: 10)
	Enabled   bool // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: 60,
		Burst:     10,
		Enabled:   true,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = 60
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(config.PerMinute)/60), config.Burst),
		config:  config,
	}
}

// Allow takes a token if one is available. The returned release func gives the token
// back, for sends that failed after Allow succeeded.
func (r *RateLimiter) Allow() (release func(), ok bool) {
	if !r.config.Enabled {
		return func() {}, true
	}

	res := r.limiter.Reserve()
	if !res.OK() || res.Delay() > 0 {
		res.Cancel()
		r.dropped.Add(1)
		return nil, false
	}
	return res.Cancel, true
}

// Dropped returns the number of notifications dropped due to rate limiting.
func (r *RateLimiter) Dropped() int64 {
	return r.dropped.Load()
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	return RateLimitStats{
		Dropped:   r.dropped.Load(),
		Available: r.limiter.Tokens(),
		PerMinute: r.config.PerMinute,
		Burst:     r.config.Burst,
		Enabled:   r.config.Enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped   int64   // Total notifications dropped
	Available float64 // Tokens currently available
	PerMinute int     // Sustained rate
	Burst     int     // Bucket size
	Enabled   bool    // Whether rate limiting is enabled
}
