package cache

import (
	"log/slog"
	"time"
)

// LayeredCache implements a multi-layer cache (memory + disk)
type LayeredCache struct {
	memory    *MemoryCache
	disk      *DiskCache
	memoryTTL time.Duration
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(memoryTTL, cleanupInterval time.Duration, diskDir string, logger *slog.Logger) *LayeredCache {
	if memoryTTL <= 0 {
		memoryTTL = 30 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &LayeredCache{
		memory:    NewMemoryCache(memoryTTL, cleanupInterval),
		disk:      NewDiskCache(diskDir, DefaultDiskTTL, logger),
		memoryTTL: memoryTTL,
	}
}

// Get retrieves a value from the cache (checks memory first, then disk)
func (c *LayeredCache) Get(t Type, key string) ([]byte, bool) {
	// Check memory cache first
	if val, found := c.memory.Get(t, key); found {
		return val, true
	}

	// Check disk cache
	entry, found := c.disk.GetEntry(t, key)
	if !found {
		return nil, false
	}
	val, err := entry.bytes()
	if err != nil {
		return nil, false
	}

	// Promote to memory without outliving the disk entry
	c.memory.Set(t, key, val, c.memoryLifetime(time.Until(entry.ExpiresAt)))
	return val, true
}

// Set stores a value in both caches
func (c *LayeredCache) Set(t Type, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultDiskTTL
	}

	// Store in memory
	if err := c.memory.Set(t, key, value, c.memoryLifetime(ttl)); err != nil {
		return err
	}

	// Store in disk
	return c.disk.Set(t, key, value, ttl)
}

// Delete removes a value from both caches
func (c *LayeredCache) Delete(t Type, key string) error {
	c.memory.Delete(t, key)
	return c.disk.Delete(t, key)
}

// Clear removes all values from both caches
func (c *LayeredCache) Clear() error {
	c.memory.Clear()
	return c.disk.Clear()
}

// Purge drops expired entries from both layers
func (c *LayeredCache) Purge() (int, error) {
	n, _ := c.memory.Purge()
	m, err := c.disk.Purge()
	return n + m, err
}

// Close flushes the memory layer
func (c *LayeredCache) Close() error {
	return c.memory.Close()
}

func (c *LayeredCache) memoryLifetime(ttl time.Duration) time.Duration {
	if ttl > c.memoryTTL {
		return c.memoryTTL
	}
	if ttl <= 0 {
		// go-cache treats 0 as "default"; keep the entry effectively dead
		return time.Nanosecond
	}
	return ttl
}
