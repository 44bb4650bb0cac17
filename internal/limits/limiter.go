package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitConfig holds the limits for one organization type. Zero disables a
// limit.
type LimitConfig struct {
	RequestsPerMinute int
	ImagesPerMinute   int
	ParallelRequests  int
}

// Policy resolves limits per organization type.
type Policy struct {
	Default   LimitConfig
	Overrides map[string]LimitConfig
}

// For returns the limits for orgType. Zero fields in an override inherit the
// default.
func (p Policy) For(orgType string) LimitConfig {
	cfg := p.Default
	o, ok := p.Overrides[orgType]
	if !ok {
		return cfg
	}
	if o.RequestsPerMinute != 0 {
		cfg.RequestsPerMinute = o.RequestsPerMinute
	}
	if o.ImagesPerMinute != 0 {
		cfg.ImagesPerMinute = o.ImagesPerMinute
	}
	if o.ParallelRequests != 0 {
		cfg.ParallelRequests = o.ParallelRequests
	}
	return cfg
}

type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRateLimiter returns a limiter backed by client. A nil client allows
// everything.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

func (l *RateLimiter) Allow(ctx context.Context, key string, cfg LimitConfig) error {
	if l == nil || l.client == nil {
		return nil
	}
	if cfg.RequestsPerMinute > 0 {
		if err := l.countCheck(ctx, fmt.Sprintf("rpm:%s", key), time.Minute, cfg.RequestsPerMinute); err != nil {
			return err
		}
	}
	if cfg.ParallelRequests > 0 {
		if err := l.semaphoreAcquire(ctx, fmt.Sprintf("sem:%s", key), cfg.ParallelRequests); err != nil {
			return err
		}
	}
	return nil
}

func (l *RateLimiter) Release(ctx context.Context, key string, cfg LimitConfig) {
	if l == nil || l.client == nil {
		return
	}
	if cfg.ParallelRequests > 0 {
		l.semaphoreRelease(ctx, fmt.Sprintf("sem:%s", key))
	}
}

// Acquire applies Allow and returns the matching release func.
func (l *RateLimiter) Acquire(ctx context.Context, key string, cfg LimitConfig) (func(), error) {
	if err := l.Allow(ctx, key, cfg); err != nil {
		return func() {}, err
	}
	return func() {
		// the request context may already be cancelled
		l.Release(context.WithoutCancel(ctx), key, cfg)
	}, nil
}

func (l *RateLimiter) minuteKey(prefix string, ttl time.Duration) string {
	window := l.now().UTC().Unix() / int64(ttl.Seconds())
	return fmt.Sprintf("%s:%d", prefix, window)
}

func (l *RateLimiter) countCheck(ctx context.Context, key string, ttl time.Duration, limit int) error {
	redisKey := l.minuteKey(key, ttl)

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, redisKey, ttl)
	}
	if int(cnt) > limit {
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) semaphoreAcquire(ctx context.Context, key string, max int) error {
	ttl := 5 * time.Minute
	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, key, ttl)
	}
	if int(cnt) > max {
		l.client.Decr(ctx, key)
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) semaphoreRelease(ctx context.Context, key string) {
	l.client.Decr(ctx, key)
}

// ImageAllowance reserves n images from the per-minute budget. A rejected
// reservation is rolled back.
func (l *RateLimiter) ImageAllowance(ctx context.Context, key string, n int, cfg LimitConfig) error {
	if l == nil || l.client == nil || cfg.ImagesPerMinute <= 0 {
		return nil
	}
	redisKey := l.minuteKey(fmt.Sprintf("ipm:%s", key), time.Minute)

	used, err := l.client.IncrBy(ctx, redisKey, int64(n)).Result()
	if err != nil {
		return err
	}
	if used == int64(n) {
		l.client.Expire(ctx, redisKey, time.Minute)
	}
	if int(used) > cfg.ImagesPerMinute {
		l.client.IncrBy(ctx, redisKey, -int64(n))
		return ErrLimitExceeded
	}
	return nil
}
