package quotecache

import (
	"hash/fnv"
	"time"

	"stockdesk/internal/provider"
)

// Default returns the placeholder quote served when nothing live or stale
// exists for symbol. Values derive from a hash of the symbol, so the same
// symbol always gets the same price and volume.
func Default(symbol string, now time.Time) provider.Quote {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	sum := h.Sum32()

	price := 50 + float64(sum%45000)/100
	volume := int64(1_000_000 + sum%9_000_000)
	prev := price
	change, pct := 0.0, 0.0
	q := provider.Quote{
		Symbol:        symbol,
		Name:          symbol,
		Currency:      provider.DefaultCurrency,
		Price:         &price,
		Change:        &change,
		ChangePercent: &pct,
		Volume:        &volume,
		PreviousClose: &prev,
		ObservedAt:    now.UTC(),
	}
	return q.AsFallback(provider.SourceDefault)
}

// Defaults builds the placeholder table for symbols.
func Defaults(symbols []string, now time.Time) map[string]provider.Quote {
	out := make(map[string]provider.Quote, len(symbols))
	for _, s := range symbols {
		out[s] = Default(s, now)
	}
	return out
}
