// Package cache provides two-tier memoization for expensive operations,
// keyed by content fingerprint: a process-lifetime memory map over a SQLite
// disk store that survives restarts. The cache is read-through only and never
// authoritative; clearing it only changes recomputation cost.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxDiskEntries bounds the disk tier; oldest entries are evicted first.
const DefaultMaxDiskEntries = 10000

// Fingerprint derives a deterministic cache key from the inputs of an
// operation. Identical inputs always collide on the same entry regardless of
// calling context.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Options configures a Cache.
type Options struct {
	// MaxDiskEntries caps the disk tier. Zero means DefaultMaxDiskEntries.
	MaxDiskEntries int
	// HitsTotal, if set, counts lookups with labels tier ("memory"/"disk")
	// and result ("hit"/"miss").
	HitsTotal *prometheus.CounterVec
	Logger    *slog.Logger
}

// Cache is a two-tier content-fingerprint cache. The memory tier supports
// concurrent reads with serialized writes; the disk tier writes are
// transactional, so a crash mid-write cannot corrupt a valid entry.
type Cache struct {
	mu     sync.RWMutex
	memory map[string][]byte

	disk   *diskStore // nil when running memory-only
	hits   *prometheus.CounterVec
	logger *slog.Logger
}

// New creates a Cache backed by a SQLite store under dir. An empty dir yields
// a memory-only cache (used by tests and ephemeral runs).
func New(dir string, opts Options) (*Cache, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		memory: make(map[string][]byte),
		hits:   opts.HitsTotal,
		logger: logger,
	}

	if dir != "" {
		maxEntries := opts.MaxDiskEntries
		if maxEntries <= 0 {
			maxEntries = DefaultMaxDiskEntries
		}
		disk, err := openDiskStore(dir, maxEntries)
		if err != nil {
			return nil, err
		}
		c.disk = disk
	}
	return c, nil
}

// Get returns the cached value for key. A disk hit repopulates the memory
// tier so subsequent lookups stay in-process.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	value, ok := c.memory[key]
	c.mu.RUnlock()
	if ok {
		c.count("memory", "hit")
		return value, true
	}
	c.count("memory", "miss")

	if c.disk == nil {
		return nil, false
	}

	value, ok, err := c.disk.get(key)
	if err != nil {
		c.logger.Warn("disk cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		c.count("disk", "miss")
		return nil, false
	}
	c.count("disk", "hit")

	c.mu.Lock()
	c.memory[key] = value
	c.mu.Unlock()
	return value, true
}

// Set stores value under key in both tiers. Disk failures are logged and
// reported but never invalidate the memory write: the cache stays best-effort.
func (c *Cache) Set(key string, value []byte) error {
	c.mu.Lock()
	c.memory[key] = value
	c.mu.Unlock()

	if c.disk == nil {
		return nil
	}
	if err := c.disk.set(key, value); err != nil {
		c.logger.Warn("disk cache write failed", "key", key, "error", err)
		return err
	}
	return nil
}

// ClearMemory drops the memory tier only.
func (c *Cache) ClearMemory() {
	c.mu.Lock()
	c.memory = make(map[string][]byte)
	c.mu.Unlock()
}

// ClearAll drops both tiers.
func (c *Cache) ClearAll() error {
	c.ClearMemory()
	if c.disk == nil {
		return nil
	}
	return c.disk.clear()
}

// Close releases the disk store.
func (c *Cache) Close() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.close()
}

func (c *Cache) count(tier, result string) {
	if c.hits != nil {
		c.hits.WithLabelValues(tier, result).Inc()
	}
}
