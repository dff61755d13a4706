package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"stockdesk/internal/provider"
)

// entry stores cached search hits for a single query with expiry.
type entry struct {
	expiresAt time.Time
	hits      []provider.Candidate
}

// Searcher caches search results per query for a TTL. When the underlying
// searcher fails, an expired entry for the same query is served instead.
type Searcher struct {
	S        provider.Searcher
	TTL      time.Duration
	MaxItems int

	mu    sync.RWMutex
	items map[string]entry // key: normalized query + limit
}

func key(query string, limit int) string {
	return strings.ToLower(strings.TrimSpace(query)) + "|" + strconv.Itoa(limit)
}

// Search returns hits for query using the cache when valid.
func (c *Searcher) Search(ctx context.Context, query string, limit int) ([]provider.Candidate, error) {
	if c.TTL <= 0 {
		return c.S.Search(ctx, query, limit)
	}

	k := key(query, limit)
	now := time.Now()

	c.mu.RLock()
	e, ok := c.items[k]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.hits, nil
	}

	hits, err := c.S.Search(ctx, query, limit)
	if err != nil {
		// an old answer beats none
		if ok {
			return e.hits, nil
		}
		return nil, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[k] = entry{expiresAt: now.Add(c.TTL), hits: hits}
	c.evictLocked(now)
	c.mu.Unlock()

	return hits, nil
}

// evictLocked caps the cache size: expired entries first, then arbitrary.
func (c *Searcher) evictLocked(now time.Time) {
	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
		}
		if len(c.items) <= c.MaxItems {
			return
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			return
		}
		delete(c.items, k)
	}
}

// Len reports the number of cached queries.
func (c *Searcher) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
