// Package resultcache memoizes full query responses per (user, question).
package resultcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry is one cached query response. It is owned exclusively by the cache;
// the response payload is read-only but the cache metadata (hit count,
// recency) is mutated on every hit.
type Entry struct {
	SQL         string
	Columns     []string
	Rows        []map[string]any
	Explanation string
	CreatedAt   time.Time
	HitCount    int
}

// Stats describes the cache state for the stats endpoint.
type Stats struct {
	Entries    int           `json:"total_entries"`
	MaxEntries int           `json:"max_entries"`
	TotalHits  int           `json:"total_hits"`
	TTL        time.Duration `json:"ttl"`
}

type cacheItem struct {
	key   string
	entry *Entry
}

// Cache is a capacity-bounded LRU cache with lazy TTL expiry. A single mutex
// serializes all access; this path is off the generation hot loop, so the
// contention is acceptable in exchange for simple LRU bookkeeping.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	entries    map[string]*list.Element // key -> element holding *cacheItem
	order      *list.List               // front = most recently used

	clock func() time.Time
}

// New creates a result cache with the given capacity and TTL.
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		clock:      time.Now,
	}
}

// Key derives the cache key: a SHA-256 over user id and the raw question
// text. No normalization is applied, so textually different phrasings of the
// same question are distinct entries (documented limitation).
func Key(userID, question string) string {
	sum := sha256.Sum256([]byte(userID + ":" + question))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for (userID, question), or nil on miss.
// An expired entry is deleted and treated as a miss. A hit increments the
// entry's hit counter and marks it most-recently-used.
func (c *Cache) Get(userID, question string) *Entry {
	key := Key(userID, question)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil
	}
	item := el.Value.(*cacheItem)

	if c.clock().Sub(item.entry.CreatedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil
	}

	item.entry.HitCount++
	c.order.MoveToFront(el)
	return item.entry
}

// Put stores an entry for (userID, question). At capacity, the single
// least-recently-used key is evicted first. Replacing an existing key resets
// its payload and recency.
func (c *Cache) Put(userID, question string, entry *Entry) {
	if c.maxEntries <= 0 {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.clock()
	}
	key := Key(userID, question)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheItem).entry = entry
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheItem).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheItem{key: key, entry: entry})
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// SweepExpired removes entries older than the TTL and reports how many were
// dropped. Expiry is otherwise lazy; this exists for the periodic
// maintenance job so abandoned entries do not pin memory until read.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		item := el.Value.(*cacheItem)
		if now.Sub(item.entry.CreatedAt) > c.ttl {
			c.order.Remove(el)
			delete(c.entries, item.key)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats returns entry count, capacity, cumulative hits, and the TTL.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := 0
	for _, el := range c.entries {
		hits += el.Value.(*cacheItem).entry.HitCount
	}
	return Stats{
		Entries:    len(c.entries),
		MaxEntries: c.maxEntries,
		TotalHits:  hits,
		TTL:        c.ttl,
	}
}
