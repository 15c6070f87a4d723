// Package cache provides the keyed, time-expiring, size-bounded store of
// prior gateway responses. All state is in-memory and scoped to one running
// instance; a Cache is created per named target.
package cache

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jbandu/bag-sub001/pkg/logging"
)

// Config holds cache configuration
type Config struct {
	// Name of the target this cache belongs to
	Name string `json:"name"`
	// MaxEntries bounds the cache size; the least-recently-used entry is
	// evicted when an insert would exceed it
	MaxEntries int `json:"max_entries"`
	// DefaultTTL applies to entries stored without an explicit TTL
	DefaultTTL time.Duration `json:"default_ttl"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		MaxEntries: 1000,
		DefaultTTL: 5 * time.Minute,
	}
}

// entry is a single cached response. Entries live in the recency list; the
// front of the list is most recently used.
type entry struct {
	key        string
	value      interface{}
	createdAt  time.Time
	expiresAt  time.Time
	hits       uint64
	lastAccess time.Time
}

// Stats is a snapshot of the cache's counters
type Stats struct {
	Size        int       `json:"size"`
	Capacity    int       `json:"capacity"`
	Hits        uint64    `json:"hits"`
	Misses      uint64    `json:"misses"`
	HitRate     float64   `json:"hit_rate"`
	Evictions   uint64    `json:"evictions"`
	Expirations uint64    `json:"expirations"`
	TopKeys     []KeyHits `json:"top_keys,omitempty"`
}

// KeyHits pairs a cache key with its hit count for the stats surface
type KeyHits struct {
	Key  string `json:"key"`
	Hits uint64 `json:"hits"`
}

// Cache is an LRU cache with per-entry TTL
type Cache struct {
	config *Config

	mutex       sync.Mutex
	entries     map[string]*list.Element
	recency     *list.List // front = most recently used
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	logger *logging.Logger
}

// New creates a new cache
func New(config *Config) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultConfig().MaxEntries
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}

	return &Cache{
		config:  config,
		entries: make(map[string]*list.Element),
		recency: list.New(),
		logger:  logging.GetLogger(),
	}
}

// Get returns the cached value for key if present and not expired. An expired
// entry is evicted on the spot and counts as a miss. A hit refreshes the
// entry's recency position and hit counter.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	now := time.Now()
	if now.After(e.expiresAt) {
		c.removeElement(elem)
		c.expirations++
		c.misses++
		return nil, false
	}

	e.hits++
	e.lastAccess = now
	c.recency.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Set stores value under key with expiry now + ttl (or the configured default
// when ttl is zero). Inserting a new key beyond capacity evicts the single
// least-recently-used entry first.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		e.lastAccess = now
		c.recency.MoveToFront(elem)
		return
	}

	if c.recency.Len() >= c.config.MaxEntries {
		c.evictOldest()
	}

	e := &entry{
		key:        key,
		value:      value,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}
	c.entries[key] = c.recency.PushFront(e)
}

// Delete removes key from the cache, reporting whether it was present
func (c *Cache) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// InvalidatePattern removes every entry whose key contains pattern as a
// substring and returns the number removed.
func (c *Cache) InvalidatePattern(pattern string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, elem := range c.entries {
		if strings.Contains(key, pattern) {
			c.removeElement(elem)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug("Cache entries invalidated",
			"target", c.config.Name,
			"pattern", pattern,
			"removed", removed,
		)
	}
	return removed
}

// GetOrFetch returns the cached value for key, invoking producer on a miss
// and storing its result. This is the canonical population path so fetch
// logic is not duplicated across callers. Concurrent misses for the same key
// may each invoke producer; duplicate fetches are bounded upstream by the
// per-target rate limiter.
func (c *Cache) GetOrFetch(key string, producer func() (interface{}, error), ttl time.Duration) (interface{}, bool, error) {
	if value, ok := c.Get(key); ok {
		return value, true, nil
	}

	value, err := producer()
	if err != nil {
		return nil, false, err
	}

	c.Set(key, value, ttl)
	return value, false, nil
}

// Sweep proactively removes all expired entries and returns the number removed
func (c *Cache) Sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	removed := 0
	for _, elem := range c.entries {
		e := elem.Value.(*entry)
		if now.After(e.expiresAt) {
			c.removeElement(elem)
			c.expirations++
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.recency.Len()
}

// Stats returns a snapshot of the cache's counters with the top N most-hit keys
func (c *Cache) Stats(topN int) Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	stats := Stats{
		Size:        c.recency.Len(),
		Capacity:    c.config.MaxEntries,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}

	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}

	if topN > 0 && len(c.entries) > 0 {
		keys := make([]KeyHits, 0, len(c.entries))
		for key, elem := range c.entries {
			keys = append(keys, KeyHits{Key: key, Hits: elem.Value.(*entry).hits})
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Hits != keys[j].Hits {
				return keys[i].Hits > keys[j].Hits
			}
			return keys[i].Key < keys[j].Key
		})
		if len(keys) > topN {
			keys = keys[:topN]
		}
		stats.TopKeys = keys
	}

	return stats
}

// evictOldest drops the least-recently-used entry. Callers must hold c.mutex.
func (c *Cache) evictOldest() {
	oldest := c.recency.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry)
	c.removeElement(oldest)
	c.evictions++

	c.logger.Debug("Cache entry evicted",
		"target", c.config.Name,
		"key", e.key,
	)
}

// removeElement unlinks an entry from both indexes. Callers must hold c.mutex.
func (c *Cache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	c.recency.Remove(elem)
	delete(c.entries, e.key)
}
