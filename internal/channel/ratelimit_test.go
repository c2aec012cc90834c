package channel

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_ImmediateBurst(t *testing.T) {
	rl := NewRateLimiter(5, 60.0)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("burst token %d failed: %v", i, err)
		}
	}
}

func TestRateLimiter_AllowRefills(t *testing.T) {
	rl := NewRateLimiter(2, 60.0) // one token per second
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	rl.lastTime = now

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("expected burst of 2")
	}
	if rl.Allow() {
		t.Fatal("expected bucket to be empty")
	}

	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("expected a token after 1.5s")
	}
	if rl.Allow() {
		t.Fatal("expected only one refilled token")
	}

	now = now.Add(time.Hour)
	if !rl.Allow() || !rl.Allow() || rl.Allow() {
		t.Fatal("expected refill to cap at the burst size")
	}
}

func TestRateLimiter_WaitsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 600.0) // 1 burst, 10/sec refill

	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected some wait time, got %v", elapsed)
	}
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("expected context cancelled error")
	}
}

func TestClientLimiters_SeparateBuckets(t *testing.T) {
	cl := newClientLimiters(6) // burst 1
	if !cl.allow("a") || cl.allow("a") {
		t.Fatal("expected client a to get exactly one request")
	}
	if !cl.allow("b") {
		t.Fatal("expected client b to have its own bucket")
	}
}

func TestClientLimiters_SweepsIdleBuckets(t *testing.T) {
	cl := newClientLimiters(60)
	cl.allow("old")
	cl.buckets["old"].lastSeen = time.Now().Add(-time.Hour)
	cl.lastSweep = time.Now().Add(-time.Hour)

	cl.allow("new")
	if _, ok := cl.buckets["old"]; ok {
		t.Fatal("expected idle bucket to be swept")
	}
	if len(cl.buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(cl.buckets))
	}
}
