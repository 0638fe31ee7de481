package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config configures a guarded client.
type Config struct {
	// Timeout bounds a whole request.
	Timeout time.Duration
	// APIKey is added as the "key" query parameter when the request has none.
	APIKey string
	// UserAgent is set on requests without one.
	UserAgent string

	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
}

// DefaultConfig returns the settings used for the YouTube Data API.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		UserAgent:      "ytrecord/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// Transport is a RoundTripper that rate limits requests per host, pauses on
// Retry-After and fails fast while a host's circuit is open.
type Transport struct {
	Base      http.RoundTripper
	APIKey    string
	UserAgent string
	Limiter   *RateLimiter
	Breaker   *CircuitBreaker
	Logger    *slog.Logger
}

// NewClient returns an *http.Client whose transport is a guarded Transport
// over http.DefaultTransport.
func NewClient(cfg Config, logger *slog.Logger) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &Transport{
			Base:      http.DefaultTransport,
			APIKey:    cfg.APIKey,
			UserAgent: cfg.UserAgent,
			Limiter:   NewRateLimiter(cfg.RateLimiter),
			Breaker:   NewCircuitBreaker(cfg.CircuitBreaker),
			Logger:    logger.With("component", "api-transport"),
		},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if err := t.Breaker.Allow(host); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	if err := t.Limiter.Wait(req.Context(), host); err != nil {
		t.Breaker.Release(host)
		return nil, err
	}

	req = t.prepare(req)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		// A caller cancellation says nothing about the host; timeouts do.
		if cancelledByCaller(req.Context()) {
			t.Breaker.Release(host)
		} else {
			t.Breaker.RecordFailure(host)
		}
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		if wait := t.Limiter.Pause(host, RetryAfter(resp.Header, time.Now())); wait > 0 {
			t.logger().Warn("server asked to slow down", "host", host, "status", resp.StatusCode, "pause", wait)
		}
		t.Breaker.RecordFailure(host)
	case resp.StatusCode >= 500:
		t.Breaker.RecordFailure(host)
	default:
		t.Breaker.RecordSuccess(host)
	}
	return resp, nil
}

// prepare returns a copy of req carrying the API key and user agent.
func (t *Transport) prepare(req *http.Request) *http.Request {
	needKey := t.APIKey != "" && req.URL.Query().Get("key") == ""
	needUA := t.UserAgent != "" && req.Header.Get("User-Agent") == ""
	if !needKey && !needUA {
		return req
	}

	out := req.Clone(req.Context())
	if needKey {
		q := out.URL.Query()
		q.Set("key", t.APIKey)
		out.URL.RawQuery = q.Encode()
	}
	if needUA {
		out.Header.Set("User-Agent", t.UserAgent)
	}
	return out
}

// cancelledByCaller reports a cancellation before the context's deadline.
// http.Client.Timeout may surface as context.Canceled once the deadline passed.
func cancelledByCaller(ctx context.Context) bool {
	if !errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	deadline, ok := ctx.Deadline()
	return !ok || time.Now().Before(deadline)
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
