// Package quote wraps the configured quote providers behind a single
// fetcher: symbols are cleaned and capped, several providers are queried in
// parallel and merged, and failures come back as one provider error. The
// fetcher never retries; that is the cache's call.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"stockdesk/internal/aggregate"
	"stockdesk/internal/provider"
)

// DefaultMaxBatch caps one bulk fetch.
const DefaultMaxBatch = 50

// Fetcher fetches live quotes from one or more providers.
type Fetcher struct {
	providers []provider.Provider
	maxBatch  int
	log       *slog.Logger
}

// NewFetcher returns a fetcher over providers. maxBatch <= 0 selects
// DefaultMaxBatch.
func NewFetcher(log *slog.Logger, maxBatch int, providers ...provider.Provider) *Fetcher {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{providers: providers, maxBatch: maxBatch, log: log.With("component", "fetcher")}
}

// MaxBatch reports the batch cap.
func (f *Fetcher) MaxBatch() int { return f.maxBatch }

// Providers lists provider names in priority order.
func (f *Fetcher) Providers() []string {
	out := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		out = append(out, p.Name())
	}
	return out
}

// FetchOne returns a live quote for symbol from the first provider that has
// one.
func (f *Fetcher) FetchOne(ctx context.Context, symbol string) (provider.Quote, error) {
	sym, ok := provider.NormalizeSymbol(symbol)
	if !ok {
		return provider.Quote{}, &provider.Error{Provider: "fetcher", Op: "quote", Message: fmt.Sprintf("invalid symbol %q", symbol)}
	}
	if len(f.providers) == 0 {
		return provider.Quote{}, &provider.Error{Provider: "fetcher", Op: "quote", Message: "no providers configured"}
	}

	var errs []error
	for _, p := range f.providers {
		qs, err := p.Fetch(ctx, []string{sym})
		if err != nil {
			errs = append(errs, provider.Fail(p.Name(), "quote", err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, q := range qs {
			if q.Symbol == sym && q.HasPrice() {
				return q, nil
			}
		}
		errs = append(errs, &provider.Error{Provider: p.Name(), Op: "quote", Message: "no quote for " + sym, Err: provider.ErrNoData})
	}
	return provider.Quote{}, joinErrors("quote", errs)
}

// FetchMany returns live quotes keyed by symbol. Symbols are upper-cased,
// validated and deduplicated, and only the first MaxBatch are requested.
// Partial results are not an error; the call fails only when every
// provider failed.
func (f *Fetcher) FetchMany(ctx context.Context, symbols []string) (map[string]provider.Quote, error) {
	clean := provider.Symbols(symbols, f.maxBatch)
	if len(clean) == 0 {
		return map[string]provider.Quote{}, nil
	}
	if len(f.providers) == 0 {
		return nil, &provider.Error{Provider: "fetcher", Op: "quotes", Message: "no providers configured"}
	}

	results := make([][]provider.Quote, len(f.providers))
	errs := make([]error, len(f.providers))

	// fan out; a failing provider must not cancel the others
	var g errgroup.Group
	for i, p := range f.providers {
		g.Go(func() error {
			qs, err := p.Fetch(ctx, clean)
			if err != nil {
				errs[i] = provider.Fail(p.Name(), "quotes", err)
				return nil
			}
			results[i] = qs
			return nil
		})
	}
	_ = g.Wait()

	var all []provider.Quote
	var failed []error
	for i := range f.providers {
		if errs[i] != nil {
			f.log.Warn("provider fetch failed", "provider", f.providers[i].Name(), "symbols", len(clean), "err", errs[i])
			failed = append(failed, errs[i])
			continue
		}
		all = append(all, results[i]...)
	}
	if len(failed) == len(f.providers) {
		return nil, joinErrors("quotes", failed)
	}

	merged := aggregate.NewestBySymbol(all)
	want := make(map[string]struct{}, len(clean))
	for _, s := range clean {
		want[s] = struct{}{}
	}
	for s := range merged {
		if _, ok := want[s]; !ok {
			delete(merged, s)
		}
	}
	return merged, nil
}

// joinErrors folds several provider failures into one provider error that
// still unwraps to each cause.
func joinErrors(op string, errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return &provider.Error{Provider: "fetcher", Op: op, Message: strings.Join(msgs, "; "), Err: errors.Join(errs...)}
}
