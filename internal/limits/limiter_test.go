package limits

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*RateLimiter, func()) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	limiter := NewRateLimiter(client)
	fixed := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }
	cleanup := func() {
		client.Close()
		server.Close()
	}
	return limiter, cleanup
}

func TestRateLimiterAllowEnforcesParallel(t *testing.T) {
	limiter, cleanup := newTestLimiter(t)
	defer cleanup()

	ctx := context.Background()
	cfg := LimitConfig{ParallelRequests: 1}
	key := "org:ngo"

	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := limiter.Allow(ctx, key, cfg); err != ErrLimitExceeded {
		t.Fatalf("expected parallel limit error, got %v", err)
	}
	limiter.Release(ctx, key, cfg)
	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("request after release should pass: %v", err)
	}
}

func TestRateLimiterAllowEnforcesRPM(t *testing.T) {
	limiter, cleanup := newTestLimiter(t)
	defer cleanup()

	ctx := context.Background()
	cfg := LimitConfig{RequestsPerMinute: 2}
	key := "org:advocacy"

	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("second request should pass: %v", err)
	}
	if err := limiter.Allow(ctx, key, cfg); err != ErrLimitExceeded {
		t.Fatalf("expected rpm limit error, got %v", err)
	}
	if err := limiter.Allow(ctx, "org:ngo", cfg); err != nil {
		t.Fatalf("other organizations keep their own window: %v", err)
	}
}

func TestAcquireReleases(t *testing.T) {
	limiter, cleanup := newTestLimiter(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := LimitConfig{ParallelRequests: 1}

	release, err := limiter.Acquire(ctx, "org:ngo", cfg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := limiter.Acquire(ctx, "org:ngo", cfg); err != ErrLimitExceeded {
		t.Fatalf("expected parallel limit error, got %v", err)
	}
	cancel()
	release()
	if _, err := limiter.Acquire(context.Background(), "org:ngo", cfg); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestImageAllowanceRollsBackOnFailure(t *testing.T) {
	limiter, cleanup := newTestLimiter(t)
	defer cleanup()

	ctx := context.Background()
	cfg := LimitConfig{ImagesPerMinute: 10}
	key := "org:ngo"

	if err := limiter.ImageAllowance(ctx, key, 6, cfg); err != nil {
		t.Fatalf("first allowance should pass: %v", err)
	}
	if err := limiter.ImageAllowance(ctx, key, 6, cfg); err != ErrLimitExceeded {
		t.Fatalf("expected image limit error, got %v", err)
	}

	// Ensure the rollback removed the rejected increment.
	used, err := limiter.client.Get(ctx, limiter.minuteKey("ipm:"+key, time.Minute)).Int()
	if err != nil {
		t.Fatalf("get redis value: %v", err)
	}
	if used != 6 {
		t.Fatalf("expected usage to stay at 6 after rollback, got %d", used)
	}
}

func TestNilClientAllows(t *testing.T) {
	limiter := NewRateLimiter(nil)
	cfg := LimitConfig{RequestsPerMinute: 1, ParallelRequests: 1, ImagesPerMinute: 1}
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(context.Background(), "org:ngo", cfg); err != nil {
			t.Fatalf("nil client should allow: %v", err)
		}
		if err := limiter.ImageAllowance(context.Background(), "org:ngo", 5, cfg); err != nil {
			t.Fatalf("nil client should allow images: %v", err)
		}
	}
}

func TestPolicyFor(t *testing.T) {
	p := Policy{
		Default:   LimitConfig{RequestsPerMinute: 60, ParallelRequests: 4},
		Overrides: map[string]LimitConfig{"youth_education": {RequestsPerMinute: 10}},
	}
	if got := p.For("ngo"); got != p.Default {
		t.Fatalf("expected default limits, got %+v", got)
	}
	got := p.For("youth_education")
	if got.RequestsPerMinute != 10 || got.ParallelRequests != 4 {
		t.Fatalf("override should merge with defaults, got %+v", got)
	}
}
