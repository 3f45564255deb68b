package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// defaultMemoryTTL bounds entries stored without an explicit expiration so
// the map cannot hold stale data forever.
const defaultMemoryTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	body      []byte
	expiresAt time.Time
	usedAt    time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is a process-local Service with LRU eviction. Values are held
// in the same encoded form the Redis backend stores, so the two backends are
// interchangeable behind the interface.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	limit   int

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache builds an in-memory cache and starts its expiry sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		limit:   cfg.MaxSize,
		done:    make(chan struct{}),
	}
	go c.sweep(cfg.CleanupInterval)
	return c
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	body, err := encodeBody(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.limit {
		c.evictOldest()
	}
	now := time.Now()
	c.entries[key] = &memoryEntry{body: body, expiresAt: now.Add(expiration), usedAt: now}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return ErrCacheMiss
	}
	now := time.Now()
	if e.expired(now) {
		delete(c.entries, key)
		return ErrCacheMiss
	}
	e.usedAt = now
	return decodeBody(e.body, dest)
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// DeleteByPattern removes keys matching a glob. Supported forms are "*",
// "prefix*" and exact keys, which covers the namespaces the gateway issues.
func (c *MemoryCache) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for key := range c.entries {
		if globMatch(pattern, key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (c *MemoryCache) CountByPattern(_ context.Context, pattern string) (int64, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for key, e := range c.entries {
		if !e.expired(now) && globMatch(pattern, key) {
			n++
		}
	}
	return n, nil
}

func (c *MemoryCache) MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	for key, value := range values {
		if err := c.Set(ctx, key, value, expiration); err != nil {
			return err
		}
	}
	return nil
}

func (c *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	now := time.Now()
	out := make(map[string]string, len(keys))

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if e, ok := c.entries[key]; ok && !e.expired(now) {
			out[key] = string(e.body)
		}
	}
	return out, nil
}

// Ping always succeeds; the process owns the storage.
func (c *MemoryCache) Ping(_ context.Context) error {
	return nil
}

// Close stops the expiry sweeper.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// evictOldest drops the least recently used entry. Callers hold the lock.
func (c *MemoryCache) evictOldest() {
	var victim string
	var oldest time.Time
	for key, e := range c.entries {
		if victim == "" || e.usedAt.Before(oldest) {
			victim, oldest = key, e.usedAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

func (c *MemoryCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.dropExpired()
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) dropExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}

func globMatch(pattern, key string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(key, pattern[:len(pattern)-1])
	default:
		return pattern == key
	}
}
