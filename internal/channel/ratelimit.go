package channel

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket. The API channel uses Allow to reject
// excess requests; Telegram uses Wait to pace outgoing messages.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
	now      func() time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     ratePerMinute / 60.0,
		lastTime: time.Now(),
		now:      time.Now,
	}
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	rl.lastTime = now
}

// Allow takes a token if one is available and reports whether it did.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1.0 {
			rl.tokens -= 1.0
			rl.mu.Unlock()
			return nil
		}
		waitSec := (1.0 - rl.tokens) / rl.rate
		rl.mu.Unlock()

		timer := time.NewTimer(time.Duration(waitSec * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// clientLimiters keeps one bucket per client key. Buckets idle for longer
// than idleTTL are dropped on the next lookup sweep.
type clientLimiters struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	burst     int
	perMinute float64
	idleTTL   time.Duration
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

func newClientLimiters(ratePerMinute int) *clientLimiters {
	burst := ratePerMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &clientLimiters{
		buckets:   make(map[string]*clientBucket),
		burst:     burst,
		perMinute: float64(ratePerMinute),
		idleTTL:   10 * time.Minute,
		lastSweep: time.Now(),
	}
}

func (c *clientLimiters) allow(key string) bool {
	c.mu.Lock()
	now := time.Now()
	if now.Sub(c.lastSweep) > c.idleTTL {
		for k, b := range c.buckets {
			if now.Sub(b.lastSeen) > c.idleTTL {
				delete(c.buckets, k)
			}
		}
		c.lastSweep = now
	}
	b, ok := c.buckets[key]
	if !ok {
		b = &clientBucket{limiter: NewRateLimiter(c.burst, c.perMinute)}
		c.buckets[key] = b
	}
	b.lastSeen = now
	c.mu.Unlock()

	return b.limiter.Allow()
}
