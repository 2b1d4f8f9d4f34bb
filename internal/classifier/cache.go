package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	verdict    Verdict
	insertedAt time.Time
}

// Cache stores classification results keyed by a digest of the normalized
// text, so inputs differing only in case or surrounding whitespace share one
// entry. Entries expire by TTL and are evicted oldest-insertion-first when
// the capacity is exceeded. Purely an optimization: it may be dropped at any
// time without correctness loss.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int

	now func() time.Time
}

func NewCache(ttl time.Duration, capacity int) *Cache {
	return &Cache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

func cacheKey(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Get(text string) (*Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(text)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	verdict := entry.verdict
	return &verdict, true
}

func (c *Cache) Put(text string, verdict Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(text)] = cacheEntry{verdict: verdict, insertedAt: c.now()}
	c.evictLocked()
}

// Evict removes expired entries, then trims to capacity in ascending
// insertion-time order.
func (c *Cache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.insertedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
	for len(c.entries) > c.capacity {
		oldestKey := ""
		var oldest time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.insertedAt.Before(oldest) {
				oldestKey = key
				oldest = entry.insertedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}
