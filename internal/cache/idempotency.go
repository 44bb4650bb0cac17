package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// IdempotencyCache stores serialized responses keyed by request identity.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotencyCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *IdempotencyCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotencyCache{client: client, ttl: ttl, logger: logger}
}

// Key derives a cache key from the caller supplied Idempotency-Key and the
// request scope, so the same client key cannot replay another org's result.
// An empty client key yields "".
func Key(clientKey string, scope ...string) string {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		return ""
	}
	h, _ := blake2b.New256(nil)
	for _, s := range scope {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write([]byte(clientKey))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil || key == "" {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.prefixed(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("idempotency cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte) {
	if c == nil || c.client == nil || key == "" || len(value) == 0 {
		return
	}
	if err := c.client.Set(ctx, c.prefixed(key), value, c.ttl).Err(); err != nil {
		c.logger.Warn("idempotency cache write failed", zap.Error(err))
	}
}

func (c *IdempotencyCache) prefixed(key string) string {
	return "idem:" + key
}
