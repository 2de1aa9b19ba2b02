package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pinhaljunior/aventureiros/core"
)

var nowFunc = time.Now // mockable

type entry struct {
	val       []byte
	expiresAt time.Time // zero: never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
}

var _ core.Cache = (*memoryCache)(nil)

// NewMemoryCache is used when no redis address is configured. Entries are not shared between processes.
func NewMemoryCache() core.Cache {
	return &memoryCache{entries: make(map[string]entry)}
}

func (c *memoryCache) get(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(nowFunc()) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

func (c *memoryCache) set(key string, val []byte, ttl time.Duration) {
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expiresAt = nowFunc().Add(ttl)
	}
	c.entries[key] = e
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		return nil, core.ErrCacheMiss
	}
	return append([]byte(nil), e.val...), nil
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, val, ttl)
	return nil
}

func (c *memoryCache) SetNX(_ context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.get(key); ok {
		return false, nil
	}
	c.set(key, val, ttl)
	return true, nil
}

func (c *memoryCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		c.set(key, []byte("1"), ttl)
		return 1, nil
	}
	n, err := strconv.ParseInt(string(e.val), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.val = []byte(strconv.FormatInt(n, 10))
	c.entries[key] = e
	return n, nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}
