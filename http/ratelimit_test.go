package http

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"missing", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"zero", "0", 0},
		{"negative", "-5", 0},
		{"http date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{"date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			if got := RetryAfter(h, now); got != tt.want {
				t.Errorf("RetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRateLimiter_PauseIsCapped(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxBackoff: 2 * time.Second})

	if got := rl.Pause("h", time.Hour); got != 2*time.Second {
		t.Errorf("Pause() = %v, want capped 2s", got)
	}
	if !rl.Paused("h") {
		t.Error("Paused() = false after Pause")
	}
	if rl.Paused("other") {
		t.Error("pause leaked to another host")
	}
	if got := rl.Pause("h", 0); got != 0 {
		t.Errorf("Pause(0) = %v", got)
	}
}

func TestRateLimiter_WaitHonorsPause(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 1000, Burst: 10})
	rl.Pause("h", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx, "h"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() during pause = %v, want deadline exceeded", err)
	}

	if err := rl.Wait(context.Background(), "free"); err != nil {
		t.Errorf("Wait() on unpaused host = %v", err)
	}
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 0.001, Burst: 3})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx, "h"); err != nil {
			t.Fatalf("Wait() #%d = %v", i+1, err)
		}
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(short, "h"); err == nil {
		t.Error("Wait() beyond burst returned immediately")
	}
}
