package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// DefaultDiskTTL applies when Set is called with a non-positive TTL
const DefaultDiskTTL = 24 * time.Hour

var safeKey = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// DiskCache implements persistent disk-based caching.
// Entries live at {dir}/{type}/{key}.json and are replaced atomically.
type DiskCache struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewDiskCache creates a new disk cache
func NewDiskCache(dir string, ttl time.Duration, logger *slog.Logger) *DiskCache {
	if ttl <= 0 {
		ttl = DefaultDiskTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiskCache{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
	}
}

// Entry is the on-disk representation of one cached value
type Entry struct {
	Value     json.RawMessage `json:"value"`
	Encoding  string          `json:"encoding,omitempty"` // "text" when Value is a JSON string wrapping non-JSON bytes
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	CacheType Type            `json:"cache_type"`
}

func (e Entry) bytes() ([]byte, error) {
	if e.Encoding != "text" {
		return e.Value, nil
	}
	var s string
	if err := json.Unmarshal(e.Value, &s); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Get retrieves a value from the disk cache
func (c *DiskCache) Get(t Type, key string) ([]byte, bool) {
	entry, ok := c.GetEntry(t, key)
	if !ok {
		return nil, false
	}
	data, err := entry.bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// GetEntry returns the live entry for (t, key). Expired or corrupt
// files are removed and reported as misses.
func (c *DiskCache) GetEntry(t Type, key string) (*Entry, bool) {
	path := c.path(t, key)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("cache read failed", "path", path, "error", err)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("dropping corrupt cache entry", "path", path, "error", err)
		_ = os.Remove(path)
		return nil, false
	}

	// Check expiration
	if !time.Now().Before(entry.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false
	}

	return &entry, true
}

// Set stores a value in the disk cache
func (c *DiskCache) Set(t Type, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := time.Now().UTC()
	entry := Entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		CacheType: t,
	}
	if !json.Valid(value) {
		wrapped, err := json.Marshal(string(value))
		if err != nil {
			return fmt.Errorf("wrap value: %w", err)
		}
		entry.Value = wrapped
		entry.Encoding = "text"
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Join(c.dir, string(t))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path(t, key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}

	return nil
}

// Delete removes a value from the disk cache
func (c *DiskCache) Delete(t Type, key string) error {
	err := os.Remove(c.path(t, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes all cached files
func (c *DiskCache) Clear() error {
	return os.RemoveAll(c.dir)
}

// Purge walks the cache directory and removes expired or unreadable entries
func (c *DiskCache) Purge() (int, error) {
	now := time.Now()
	removed := 0

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var entry Entry
		if json.Unmarshal(data, &entry) == nil && now.Before(entry.ExpiresAt) {
			return nil
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("purge %s: %w", c.dir, err)
	}
	return removed, nil
}

// Close is a no-op; every write is already durable
func (c *DiskCache) Close() error {
	return nil
}

// path generates the file path for a cache key
func (c *DiskCache) path(t Type, key string) string {
	if !safeKey.MatchString(key) {
		key = Key(key)
	}
	return filepath.Join(c.dir, string(t), key+".json")
}
