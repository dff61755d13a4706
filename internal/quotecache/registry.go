package quotecache

import (
	"sort"
	"sync"
)

// DefaultScope is the scope of the built-in curated set.
const DefaultScope = "default"

// Registry holds one Cache per scope id.
type Registry struct {
	f   Fetcher
	opt Options

	mu     sync.RWMutex
	caches map[string]*Cache
}

func NewRegistry(f Fetcher, opt Options) *Registry {
	return &Registry{f: f, opt: opt, caches: make(map[string]*Cache)}
}

// Register creates the cache for scope, or returns the existing one.
// The symbol set of an existing scope is not changed.
func (r *Registry) Register(scope string, symbols []string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[scope]; ok {
		return c
	}
	c := New(scope, symbols, r.f, r.opt)
	r.caches[scope] = c
	return c
}

// Get returns the cache for scope.
func (r *Registry) Get(scope string) (*Cache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[scope]
	return c, ok
}

// Scopes lists registered scope ids.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.caches))
	for s := range r.caches {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close stops every cache.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.caches {
		c.Close()
	}
}
