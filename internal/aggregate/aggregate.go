package aggregate

import (
	"sort"
	"time"

	"stockdesk/internal/provider"
)

// NewestBySymbol collapses quotes from several providers to one per symbol.
// A quote with a price beats one without; otherwise the newest ObservedAt
// wins and for equal timestamps later input wins. Zero timestamps are
// replaced with time.Now().UTC().
func NewestBySymbol(quotes []provider.Quote) map[string]provider.Quote {
	now := time.Now().UTC()
	latest := make(map[string]provider.Quote, len(quotes))

	for _, q := range quotes {
		if q.ObservedAt.IsZero() {
			q.ObservedAt = now
		}
		cur, ok := latest[q.Symbol]
		if !ok || better(q, cur) {
			latest[q.Symbol] = q
		}
	}
	return latest
}

func better(q, cur provider.Quote) bool {
	if q.HasPrice() != cur.HasPrice() {
		return q.HasPrice()
	}
	return !q.ObservedAt.Before(cur.ObservedAt)
}

// Ordered returns the quotes for symbols in the given order, skipping
// symbols absent from m.
func Ordered(m map[string]provider.Quote, symbols []string) []provider.Quote {
	out := make([]provider.Quote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := m[s]; ok {
			out = append(out, q)
		}
	}
	return out
}

// Sorted returns all quotes in m ordered by symbol.
func Sorted(m map[string]provider.Quote) []provider.Quote {
	out := make([]provider.Quote, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
