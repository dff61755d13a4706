// Package quotecache keeps the curated quote table fresh enough for browsing
// while the upstream is slow or down.
//
// A Cache holds one immutable table behind an atomic pointer. Reads never
// wait on the network once a table exists: a stale read returns the old
// table and starts at most one background refresh. A successful refresh
// swaps in a whole new table; a failed one leaves the old table in place
// and starts a retry backoff. Before the first success, reads get
// deterministic placeholder quotes.
package quotecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"stockdesk/internal/provider"
)

const (
	DefaultTTL            = 60 * time.Second
	DefaultRefreshTimeout = 8 * time.Second
	DefaultRetryBackoff   = 10 * time.Second
	DefaultMaxBatch       = 50
)

// ErrEmptyRefresh is returned when the upstream answered without a single
// usable price.
var ErrEmptyRefresh = errors.New("refresh returned no prices")

// Fetcher is the live quote source.
type Fetcher interface {
	FetchOne(ctx context.Context, symbol string) (provider.Quote, error)
	FetchMany(ctx context.Context, symbols []string) (map[string]provider.Quote, error)
}

// State describes how a snapshot relates to its TTL.
type State string

const (
	StateFresh   State = "fresh"
	StateStale   State = "stale"
	StateDefault State = "default"
)

// Snapshot is what a read returns.
type Snapshot struct {
	Quotes []provider.Quote
	AsOf   time.Time
	Age    time.Duration
	State  State
}

// Options configure a Cache. Zero values select the defaults above.
type Options struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
	RetryBackoff   time.Duration
	MaxBatch       int
	Now            func() time.Time
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = DefaultRefreshTimeout
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	} else if o.RetryBackoff == 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = DefaultMaxBatch
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// table is never mutated after it is stored.
type table struct {
	quotes      map[string]provider.Quote
	refreshedAt time.Time
}

// Cache serves one curated symbol set.
type Cache struct {
	scope   string
	symbols []string
	f       Fetcher
	opt     Options
	log     *slog.Logger

	cur        atomic.Pointer[table]
	refreshing atomic.Bool
	retryAt    atomic.Int64 // unix nanos; no attempt starts before this
	sf         singleflight.Group

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an empty cache for symbols under scope.
func New(scope string, symbols []string, f Fetcher, opt Options) *Cache {
	opt = opt.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	return &Cache{
		scope:   scope,
		symbols: provider.Symbols(symbols, 0),
		f:       f,
		opt:     opt,
		log:     opt.Logger.With("component", "quotecache", "scope", scope),
		base:    base,
		cancel:  cancel,
	}
}

// Scope returns the scope id.
func (c *Cache) Scope() string { return c.scope }

// MaxBatch is the largest ad-hoc list Live fetches.
func (c *Cache) MaxBatch() int { return c.opt.MaxBatch }

// Symbols returns the curated set in display order.
func (c *Cache) Symbols() []string { return append([]string(nil), c.symbols...) }

// Get returns the curated table. It never fails: when nothing has ever
// been fetched successfully it returns placeholder quotes.
func (c *Cache) Get(ctx context.Context) Snapshot {
	now := c.opt.Now()
	t := c.cur.Load()
	if t == nil {
		if !c.mayAttempt(now) {
			return c.defaults(now)
		}
		// concurrent cold readers share one fetch
		var err error
		t, err = c.refreshShared(context.WithoutCancel(ctx))
		if err != nil {
			c.log.Warn("cold fetch failed, serving defaults", "err", err)
			return c.defaults(now)
		}
		now = c.opt.Now()
	}

	age := now.Sub(t.refreshedAt)
	if age < c.opt.TTL {
		return c.snapshot(t, age, StateFresh)
	}
	c.refreshAsync(now)
	return c.snapshot(t, age, StateStale)
}

// Refresh runs a refresh now and waits for it. It joins a refresh that is
// already running instead of starting a second one.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.refreshShared(ctx)
	return err
}

// Live fetches an ad-hoc symbol list without touching the shared table.
// Symbols the upstream did not return get placeholder quotes; if the fetch
// fails outright the result is empty and the error is returned for
// logging. Lists with more than MaxBatch distinct symbols are refused
// rather than cut short.
func (c *Cache) Live(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	clean := provider.Symbols(symbols, 0)
	if len(clean) > c.opt.MaxBatch {
		return []provider.Quote{}, &provider.Error{Provider: "quotecache", Op: "live", Message: fmt.Sprintf("%d symbols exceeds the batch limit of %d", len(clean), c.opt.MaxBatch)}
	}
	if len(clean) == 0 {
		return []provider.Quote{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opt.RefreshTimeout)
	defer cancel()

	live, err := c.f.FetchMany(ctx, clean)
	if err != nil {
		return []provider.Quote{}, err
	}
	now := c.opt.Now()
	out := make([]provider.Quote, 0, len(clean))
	for _, s := range clean {
		if q, ok := live[s]; ok && q.HasPrice() {
			out = append(out, q)
			continue
		}
		out = append(out, Default(s, now))
	}
	return out, nil
}

// Price returns a live price for symbol, preferring a fresh table entry.
// Placeholder and stale values are never returned.
func (c *Cache) Price(ctx context.Context, symbol string) (float64, error) {
	sym, ok := provider.NormalizeSymbol(symbol)
	if !ok {
		return 0, &provider.Error{Provider: "quotecache", Op: "price", Message: "invalid symbol " + symbol}
	}
	if t := c.cur.Load(); t != nil && c.opt.Now().Sub(t.refreshedAt) < c.opt.TTL {
		if q, ok := t.quotes[sym]; ok && !q.Fallback && q.HasPrice() {
			return *q.Price, nil
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.opt.RefreshTimeout)
	defer cancel()
	q, err := c.f.FetchOne(ctx, sym)
	if err != nil {
		return 0, err
	}
	if !q.HasPrice() {
		return 0, &provider.Error{Provider: "quotecache", Op: "price", Message: "no price for " + sym, Err: provider.ErrNoData}
	}
	return *q.Price, nil
}

// Wait blocks until background refreshes have finished.
func (c *Cache) Wait() { c.wg.Wait() }

// Close cancels background refreshes and waits for them.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) mayAttempt(now time.Time) bool {
	return now.UnixNano() >= c.retryAt.Load()
}

// refreshAsync starts a background refresh unless one is running or the
// backoff window is still open. A missed claim is not an error.
func (c *Cache) refreshAsync(now time.Time) {
	if !c.mayAttempt(now) {
		return
	}
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.refreshing.Store(false)
		if _, err := c.refreshShared(c.base); err != nil {
			c.log.Warn("background refresh failed, keeping previous table", "err", err)
		}
	}()
}

func (c *Cache) refreshShared(ctx context.Context) (*table, error) {
	v, err, _ := c.sf.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*table), nil
}

func (c *Cache) refresh(ctx context.Context) (*table, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opt.RefreshTimeout)
	defer cancel()

	start := c.opt.Now()
	live, err := c.f.FetchMany(ctx, c.symbols)
	if err == nil && countPriced(live) == 0 {
		err = ErrEmptyRefresh
	}
	if err != nil {
		c.retryAt.Store(c.opt.Now().Add(c.opt.RetryBackoff).UnixNano())
		return nil, err
	}

	now := c.opt.Now()
	prev := c.cur.Load()
	next := &table{quotes: make(map[string]provider.Quote, len(c.symbols)), refreshedAt: now}
	missing := 0
	for _, s := range c.symbols {
		if q, ok := live[s]; ok && q.HasPrice() {
			next.quotes[s] = q
			continue
		}
		missing++
		if prev != nil {
			if old, ok := prev.quotes[s]; ok {
				if old.Source != provider.SourceDefault {
					old = old.AsFallback(provider.SourceStale)
				}
				next.quotes[s] = old
				continue
			}
		}
		next.quotes[s] = Default(s, now)
	}
	c.cur.Store(next)
	c.retryAt.Store(0)
	c.log.Debug("refreshed", "symbols", len(c.symbols), "backfilled", missing, "took", now.Sub(start))
	return next, nil
}

func (c *Cache) snapshot(t *table, age time.Duration, st State) Snapshot {
	out := make([]provider.Quote, 0, len(c.symbols))
	for _, s := range c.symbols {
		q := t.quotes[s]
		if st == StateStale && !q.Fallback {
			q = q.AsFallback(provider.SourceStale)
		}
		out = append(out, q)
	}
	return Snapshot{Quotes: out, AsOf: t.refreshedAt, Age: age, State: st}
}

func (c *Cache) defaults(now time.Time) Snapshot {
	out := make([]provider.Quote, 0, len(c.symbols))
	for _, s := range c.symbols {
		out = append(out, Default(s, now))
	}
	return Snapshot{Quotes: out, State: StateDefault}
}

func countPriced(m map[string]provider.Quote) int {
	n := 0
	for _, q := range m {
		if q.HasPrice() {
			n++
		}
	}
	return n
}
