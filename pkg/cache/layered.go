package cache

import (
	"context"
	"time"
)

// LayeredCache pairs a small in-process cache with Redis. Reads prefer the
// local copy; writes go through to Redis first so other instances observe
// them.
type LayeredCache struct {
	l1    *MemoryCache
	l2    *RedisCache
	l1TTL time.Duration
}

// NewLayeredCache wraps an existing Redis cache with a local front.
func NewLayeredCache(rc *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		L1TTL:         15 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:    rc,
		l1TTL: cfg.L1TTL,
	}
}

func (c *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, value, c.capToL1(expiration))
	return nil
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw string
	if err := c.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, raw, c.l1TTL)
	return decodeBody([]byte(raw), dest)
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	return c.l2.Delete(ctx, keys...)
}

func (c *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	_, _ = c.l1.DeleteByPattern(ctx, pattern)
	return c.l2.DeleteByPattern(ctx, pattern)
}

// CountByPattern reports the Redis view; the local layer only ever holds a
// subset of it.
func (c *LayeredCache) CountByPattern(ctx context.Context, pattern string) (int64, error) {
	return c.l2.CountByPattern(ctx, pattern)
}

func (c *LayeredCache) MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	if err := c.l2.MSet(ctx, values, expiration); err != nil {
		return err
	}
	_ = c.l1.MSet(ctx, values, c.capToL1(expiration))
	return nil
}

func (c *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	return c.l2.MGet(ctx, keys...)
}

func (c *LayeredCache) Ping(ctx context.Context) error {
	return c.l2.Ping(ctx)
}

// Close releases both layers.
func (c *LayeredCache) Close() error {
	_ = c.l1.Close()
	return c.l2.Close()
}

// capToL1 keeps local copies no longer than the configured L1 window.
func (c *LayeredCache) capToL1(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < c.l1TTL {
		return expiration
	}
	return c.l1TTL
}
