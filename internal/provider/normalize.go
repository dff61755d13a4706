package provider

import (
	"math"
	"strings"
	"time"
)

// MaxSymbolLen bounds a ticker symbol.
const MaxSymbolLen = 10

// DefaultCurrency is used when the upstream does not report one.
const DefaultCurrency = "USD"

// Raw is an upstream quote before normalization. Any field may be nil.
type Raw struct {
	Symbol           string
	ShortName        string
	LongName         string
	Currency         string
	MarketTime       time.Time
	Price            *float64
	Change           *float64
	ChangePercent    *float64
	Volume           *float64
	PreviousClose    *float64
	Open             *float64
	DayHigh          *float64
	DayLow           *float64
	AverageVolume    *float64
	MarketCap        *float64
	FiftyTwoWeekHigh *float64
	FiftyTwoWeekLow  *float64
	PERatio          *float64
	EPSTrailing      *float64
}

// NormalizeSymbol trims and upper-cases s. It reports false for anything
// that is not 1-10 characters of A-Z, 0-9, '.', '^', '=' or '-'.
func NormalizeSymbol(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || len(s) > MaxSymbolLen {
		return "", false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '^', r == '=', r == '-':
		default:
			return "", false
		}
	}
	return s, true
}

// Symbols normalizes, validates and deduplicates in, preserving order, and
// keeps at most limit entries (limit <= 0 means no cap).
func Symbols(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		sym, ok := NormalizeSymbol(s)
		if !ok {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// SplitCSV splits a comma-separated list, dropping blanks.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Normalize converts a raw upstream quote into a Quote tagged live. It
// reports false when the symbol is unusable. Non-finite values are dropped
// and negative prices become absent.
func Normalize(name string, r Raw, now time.Time) (Quote, bool) {
	sym, ok := NormalizeSymbol(r.Symbol)
	if !ok {
		return Quote{}, false
	}
	q := Quote{
		Symbol:           sym,
		ShortName:        strings.TrimSpace(r.ShortName),
		LongName:         strings.TrimSpace(r.LongName),
		Currency:         strings.ToUpper(strings.TrimSpace(r.Currency)),
		Price:            price(r.Price),
		Change:           finite(r.Change),
		ChangePercent:    finite(r.ChangePercent),
		Volume:           count(r.Volume),
		PreviousClose:    price(r.PreviousClose),
		Open:             price(r.Open),
		DayHigh:          price(r.DayHigh),
		DayLow:           price(r.DayLow),
		AverageVolume:    count(r.AverageVolume),
		MarketCap:        price(r.MarketCap),
		FiftyTwoWeekHigh: price(r.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  price(r.FiftyTwoWeekLow),
		PERatio:          finite(r.PERatio),
		EPSTrailing:      finite(r.EPSTrailing),
		Provider:         name,
		ObservedAt:       now.UTC(),
		Source:           SourceLive,
	}
	if q.Currency == "" {
		q.Currency = DefaultCurrency
	}
	q.Name = q.ShortName
	if q.Name == "" {
		q.Name = q.LongName
	}
	if q.Name == "" {
		q.Name = sym
	}
	if !r.MarketTime.IsZero() {
		mt := r.MarketTime.UTC()
		q.MarketTime = &mt
	}
	if q.Change == nil && q.Price != nil && q.PreviousClose != nil {
		q.Change = ptr(*q.Price - *q.PreviousClose)
	}
	if q.ChangePercent == nil && q.Change != nil && q.PreviousClose != nil && *q.PreviousClose > 0 {
		q.ChangePercent = ptr(*q.Change / *q.PreviousClose * 100)
	}
	if q.ChangePercent != nil {
		q.ChangePercent = ptr(Round2(*q.ChangePercent))
	}
	return q, true
}

// Round2 rounds v to two decimals.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return ptr(*v)
}

func price(v *float64) *float64 {
	f := finite(v)
	if f == nil || *f < 0 {
		return nil
	}
	return f
}

func count(v *float64) *int64 {
	f := price(v)
	if f == nil || *f > math.MaxInt64 {
		return nil
	}
	n := int64(*f)
	return &n
}

func ptr[T any](v T) *T { return &v }

// Float returns a pointer to v. Handy for building Raw values.
func Float(v float64) *float64 { return &v }
