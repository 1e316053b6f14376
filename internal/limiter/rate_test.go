package limiter

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRateLimiter(2, time.Millisecond)
	r.now = func() time.Time { return now }

	if !r.Allow() || !r.Allow() {
		t.Fatal("first two requests should be allowed")
	}
	if r.Allow() {
		t.Fatal("third request in the same second should be refused")
	}

	now = now.Add(1100 * time.Millisecond)
	if !r.Allow() {
		t.Fatal("request after the window should be allowed")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	r := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !r.Allow() {
			t.Fatalf("disabled limiter refused request %d", i)
		}
	}
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow() {
		t.Fatal("nil limiter should allow")
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	r := NewRateLimiter(1, 5*time.Millisecond)
	now := time.Now()
	r.now = func() time.Time { return now }
	r.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); err == nil {
		t.Fatal("expected context error while window stays full")
	}
}
