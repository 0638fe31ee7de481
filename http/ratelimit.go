package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// RPS is the steady request rate per host.
	RPS float64
	// Burst is the number of requests allowed at once.
	Burst int
	// MaxBackoff caps a server-requested pause.
	MaxBackoff time.Duration
}

// DefaultRateLimiterConfig keeps the Data API well under its per-second quota.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RPS:        1.0,
		Burst:      5,
		MaxBackoff: 60 * time.Second,
	}
}

// RateLimiter is a per-host token bucket that also honors pauses requested
// by the server through Retry-After.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	paused   map[string]time.Time
	config   RateLimiterConfig
}

// NewRateLimiter creates a rate limiter. Zero fields take the defaults.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		paused:   make(map[string]time.Time),
		config:   cfg,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	until := rl.paused[host]
	limiter, ok := rl.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)
		rl.limiters[host] = limiter
	}
	rl.mu.Unlock()

	if d := time.Until(until); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return limiter.Wait(ctx)
}

// Pause holds back requests to host for d, capped at MaxBackoff. It returns
// the applied pause.
func (rl *RateLimiter) Pause(host string, d time.Duration) time.Duration {
	if rl == nil || d <= 0 {
		return 0
	}
	d = min(d, rl.config.MaxBackoff)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(rl.paused[host]) {
		rl.paused[host] = until
	}
	return d
}

// Paused reports whether requests to host are currently held back.
func (rl *RateLimiter) Paused(host string) bool {
	if rl == nil {
		return false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return time.Now().Before(rl.paused[host])
}

// RetryAfter parses a Retry-After header, either delay seconds or an HTTP date.
func RetryAfter(header http.Header, now time.Time) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
