package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// DefaultTTL is how long an enrichment result stays valid
const DefaultTTL = 7 * 24 * time.Hour

const fileExt = ".json"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidKey reports whether key is safe to use as a file name inside the
// cache directory: no separators, no parent references, bounded length.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key) && !strings.Contains(key, "..")
}

// FileCache stores one JSON file per key under dir.
//
// Concurrency: there is no locking between writers. Set writes through a
// temporary file and a rename, so readers never see a torn entry, but two
// writers racing on the same key resolve as last-writer-wins.
type FileCache struct {
	dir     string
	ttl     time.Duration
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// FileOption configures a FileCache
type FileOption func(*FileCache)

// WithMetrics records hits and misses
func WithMetrics(m *monitoring.Metrics) FileOption {
	return func(c *FileCache) { c.metrics = m }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) FileOption {
	return func(c *FileCache) { c.now = now }
}

// NewFileCache creates the cache directory if needed. A non-positive ttl
// falls back to DefaultTTL.
func NewFileCache(dir string, ttl time.Duration, logger *monitoring.Logger, opts ...FileOption) (*FileCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &FileCache{dir: dir, ttl: ttl, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = monitoring.NewLogger("info")
	}
	return c, nil
}

// Dir returns the cache directory
func (c *FileCache) Dir() string { return c.dir }

// TTL returns the entry lifetime
func (c *FileCache) TTL() time.Duration { return c.ttl }

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+fileExt)
}

// Get returns the cached value for key. Invalid keys, missing entries,
// corrupt entries and expired entries are all misses; the last two are
// removed from disk by the read that finds them.
func (c *FileCache) Get(key string) (json.RawMessage, bool) {
	if !ValidKey(key) {
		c.logger.Warn("Rejected cache key", "operation", "get", "key", key)
		c.metrics.RecordCache("file", "invalid")
		return nil, false
	}

	p := c.path(key)
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Cache read failed", "key", monitoring.ShortKey(key), "error", err)
		}
		c.logger.CacheLogger("get", key, false)
		c.metrics.RecordCache("file", "miss")
		return nil, false
	}

	var entry types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.CachedAt.IsZero() {
		c.logger.Warn("Dropping corrupt cache entry", "key", monitoring.ShortKey(key))
		c.remove(p)
		c.metrics.RecordCache("file", "miss")
		return nil, false
	}

	if c.now().Sub(entry.CachedAt) > c.ttl {
		c.remove(p)
		c.logger.CacheLogger("expire", key, false)
		c.metrics.RecordCache("file", "expired")
		return nil, false
	}

	c.logger.CacheLogger("get", key, true)
	c.metrics.RecordCache("file", "hit")
	return entry.Skill, true
}

// Set stores value under key. Invalid keys and write failures are logged
// and otherwise ignored.
func (c *FileCache) Set(key string, value any) {
	if !ValidKey(key) {
		c.logger.Warn("Rejected cache key", "operation", "set", "key", key)
		c.metrics.RecordCache("file", "invalid")
		return
	}

	skill, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache value not serializable", "key", monitoring.ShortKey(key), "error", err)
		return
	}
	data, err := json.Marshal(types.CacheEntry{CachedAt: c.now().UTC(), Skill: skill})
	if err != nil {
		c.logger.Warn("Cache entry not serializable", "key", monitoring.ShortKey(key), "error", err)
		return
	}

	tmp, err := os.CreateTemp(c.dir, "."+key+".*.tmp")
	if err != nil {
		c.logger.Warn("Cache write failed", "key", monitoring.ShortKey(key), "error", err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		c.logger.Warn("Cache write failed", "key", monitoring.ShortKey(key), "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("Cache write failed", "key", monitoring.ShortKey(key), "error", err)
		return
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("Cache write failed", "key", monitoring.ShortKey(key), "error", err)
		return
	}
	c.logger.CacheLogger("set", key, false)
}

// Delete removes a single entry
func (c *FileCache) Delete(key string) {
	if !ValidKey(key) {
		c.logger.Warn("Rejected cache key", "operation", "delete", "key", key)
		return
	}
	c.remove(c.path(key))
}

// Clear removes every entry and returns how many were deleted
func (c *FileCache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats reports entry counts without deleting anything
func (c *FileCache) Stats() (map[string]interface{}, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	total, expired := 0, 0
	var bytes int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		total++
		if info, err := e.Info(); err == nil {
			bytes += info.Size()
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		var entry types.CacheEntry
		if json.Unmarshal(data, &entry) != nil || c.now().Sub(entry.CachedAt) > c.ttl {
			expired++
		}
	}

	return map[string]interface{}{
		"total_items":   total,
		"expired_items": expired,
		"active_items":  total - expired,
		"size_bytes":    bytes,
		"ttl_seconds":   c.ttl.Seconds(),
	}, nil
}

func (c *FileCache) remove(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("Cache delete failed", "path", p, "error", err)
	}
}
