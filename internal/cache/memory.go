package cache

import (
	"bytes"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the process-local layer. Values are copied on the way in
// and out so a caller mutating a returned embedding never alters the cache.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory cache; ttl 0 on Set means defaultTTL
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(defaultTTL, cleanupInterval)}
}

func memKey(t Type, key string) string {
	return string(t) + ":" + key
}

func (c *MemoryCache) Get(t Type, key string) ([]byte, bool) {
	v, ok := c.items.Get(memKey(t, key))
	if !ok {
		return nil, false
	}
	return bytes.Clone(v.([]byte)), true
}

func (c *MemoryCache) Set(t Type, key string, value []byte, ttl time.Duration) error {
	c.items.Set(memKey(t, key), bytes.Clone(value), ttl)
	return nil
}

func (c *MemoryCache) Delete(t Type, key string) error {
	c.items.Delete(memKey(t, key))
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Purge drops expired items and returns how many there were. Items()
// hides expired entries, so they are counted before the sweep.
func (c *MemoryCache) Purge() (int, error) {
	expired := c.items.ItemCount() - len(c.items.Items())
	c.items.DeleteExpired()
	return expired, nil
}

func (c *MemoryCache) Close() error {
	c.items.Flush()
	return nil
}
