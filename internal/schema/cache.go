package schema

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a time-bounded cache of the introspected schema. It cannot detect
// table-set changes on its own — callers must Invalidate it after anything
// that creates or drops a table (e.g. a CSV upload).
type Cache struct {
	ttl time.Duration

	mu        sync.Mutex
	cached    Map
	fetchedAt time.Time

	group singleflight.Group

	// clock is overridable in tests.
	clock func() time.Time
}

// NewCache creates a schema cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, clock: time.Now}
}

// Get returns the cached schema when it is younger than the TTL, otherwise
// performs a fresh introspection and re-stores it with a new timestamp.
// Concurrent misses are collapsed into a single introspection.
func (c *Cache) Get(ctx context.Context, db *sql.DB) (Map, error) {
	c.mu.Lock()
	if c.cached != nil && c.clock().Sub(c.fetchedAt) < c.ttl {
		m := c.cached
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("schema", func() (interface{}, error) {
		m, err := Introspect(ctx, db)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached = m
		c.fetchedAt = c.clock()
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Map), nil
}

// Invalidate discards the cached schema so the next Get re-introspects.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
