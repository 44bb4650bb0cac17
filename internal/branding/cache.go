package branding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache holds recently used profiles. Misses and backend errors look the same
// to callers; the store stays authoritative.
type Cache interface {
	Get(ctx context.Context, orgType string) (Profile, bool)
	Set(ctx context.Context, p Profile)
	Invalidate(ctx context.Context, orgType string)
}

// RedisCache stores profiles as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, orgType string) (Profile, bool) {
	data, err := c.client.Get(ctx, cacheKey(orgType)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("branding cache read failed", zap.String("org_type", orgType), zap.Error(err))
		}
		return Profile{}, false
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, false
	}
	return p, true
}

func (c *RedisCache) Set(ctx context.Context, p Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(p.OrgType), data, c.ttl).Err(); err != nil {
		c.logger.Warn("branding cache write failed", zap.String("org_type", p.OrgType), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, orgType string) {
	if err := c.client.Del(ctx, cacheKey(orgType)).Err(); err != nil {
		c.logger.Warn("branding cache invalidate failed", zap.String("org_type", orgType), zap.Error(err))
	}
}

func cacheKey(orgType string) string {
	return "branding:" + orgType
}

type memoryEntry struct {
	profile Profile
	expires time.Time
}

// MemoryCache is an in-process TTL cache for deployments without Redis.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, orgType string) (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[orgType]
	if !ok {
		return Profile{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, orgType)
		return Profile{}, false
	}
	return e.profile, true
}

func (c *MemoryCache) Set(_ context.Context, p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.OrgType] = memoryEntry{profile: p, expires: c.now().Add(c.ttl)}
}

func (c *MemoryCache) Invalidate(_ context.Context, orgType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orgType)
}

// CachedStore reads through cache and invalidates it on writes.
type CachedStore struct {
	store Store
	cache Cache
}

func NewCachedStore(store Store, cache Cache) *CachedStore {
	return &CachedStore{store: store, cache: cache}
}

func (s *CachedStore) Get(ctx context.Context, orgType string) (Profile, error) {
	if p, ok := s.cache.Get(ctx, orgType); ok {
		return p, nil
	}
	p, err := s.store.Get(ctx, orgType)
	if err != nil {
		return Profile{}, err
	}
	s.cache.Set(ctx, p)
	return p, nil
}

func (s *CachedStore) Upsert(ctx context.Context, p Profile) error {
	if err := s.store.Upsert(ctx, p); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, p.OrgType)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, orgType string) error {
	err := s.store.Delete(ctx, orgType)
	s.cache.Invalidate(ctx, orgType)
	return err
}

// Invalidate drops orgType from the cache without touching the store.
func (s *CachedStore) Invalidate(ctx context.Context, orgType string) {
	s.cache.Invalidate(ctx, orgType)
}
