package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

// Type tags an entry with the kind of computation it caches
type Type string

const (
	TypeEmbedding   Type = "embedding"
	TypeLLM         Type = "llm"
	TypeFetch       Type = "fetch"
	TypeTranslation Type = "translation"
	TypeExpansion   Type = "expansion"
)

// Cache defines the interface for caching.
// Implementations are safe for concurrent use and never return an entry
// past its expiry.
type Cache interface {
	Get(t Type, key string) ([]byte, bool)
	Set(t Type, key string, value []byte, ttl time.Duration) error
	Delete(t Type, key string) error
	// Clear removes every entry
	Clear() error
	// Purge removes expired entries and reports how many were dropped
	Purge() (int, error)
	Close() error
}

// Key derives a cache key from its parts
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "v1-" + hex.EncodeToString(hash[:])
}

// New builds the layered memory + disk cache described by cfg.
// A disabled cache is a Noop.
func New(cfg model.CacheConfig, logger *slog.Logger) Cache {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.CleanupInterval, cfg.Dir, logger)
}

// Remember returns the cached value for (t, key) or computes, stores and
// returns it. Undecodable entries count as misses; store errors are ignored.
func Remember[T any](c Cache, t Type, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}

	if data, ok := c.Get(t, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			metrics.CacheRequests.WithLabelValues(string(t), "hit").Inc()
			return v, nil
		}
	}
	metrics.CacheRequests.WithLabelValues(string(t), "miss").Inc()

	v, err := fn()
	if err != nil {
		return v, err
	}

	if data, err := json.Marshal(v); err == nil {
		_ = c.Set(t, key, data, ttl)
	}
	return v, nil
}

// Noop is a cache that stores nothing
type Noop struct{}

func (Noop) Get(Type, string) ([]byte, bool)               { return nil, false }
func (Noop) Set(Type, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(Type, string) error                     { return nil }
func (Noop) Clear() error                                  { return nil }
func (Noop) Purge() (int, error)                           { return 0, nil }
func (Noop) Close() error                                  { return nil }
