package provider

import (
	"context"
	"time"
)

// Source tells callers where a quote value came from.
type Source string

const (
	SourceLive    Source = "live"
	SourceStale   Source = "stale"
	SourceDefault Source = "default"
)

// Quote is the normalized shape returned by all providers. Price fields are
// nil when the upstream omitted them or sent something unusable.
type Quote struct {
	Symbol           string     `json:"symbol"`
	Name             string     `json:"name"`
	ShortName        string     `json:"shortName,omitempty"`
	LongName         string     `json:"longName,omitempty"`
	Currency         string     `json:"currency"`
	MarketTime       *time.Time `json:"marketTime,omitempty"`
	Price            *float64   `json:"price"`
	Change           *float64   `json:"change"`
	ChangePercent    *float64   `json:"changePercent"`
	Volume           *int64     `json:"volume"`
	PreviousClose    *float64   `json:"previousClose"`
	Open             *float64   `json:"open,omitempty"`
	DayHigh          *float64   `json:"dayHigh,omitempty"`
	DayLow           *float64   `json:"dayLow,omitempty"`
	AverageVolume    *int64     `json:"averageVolume,omitempty"`
	MarketCap        *float64   `json:"marketCap,omitempty"`
	FiftyTwoWeekHigh *float64   `json:"fiftyTwoWeekHigh,omitempty"`
	FiftyTwoWeekLow  *float64   `json:"fiftyTwoWeekLow,omitempty"`
	PERatio          *float64   `json:"peRatio,omitempty"`
	EPSTrailing      *float64   `json:"epsTrailing,omitempty"`

	Provider   string    `json:"provider,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
	Source     Source    `json:"source"`
	Fallback   bool      `json:"fallback"`
}

// HasPrice reports whether the quote carries a usable last price.
func (q Quote) HasPrice() bool { return q.Price != nil }

// AsFallback returns a copy tagged with src and marked as degraded data.
func (q Quote) AsFallback(src Source) Quote {
	q.Source = src
	q.Fallback = true
	return q
}

// Candidate is one search hit.
type Candidate struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
}

// Point is one sample of a historical close series.
type Point struct {
	Time  time.Time
	Close float64
}

// Provider fetches live quotes for a batch of symbols. Symbols missing from
// the upstream response are simply absent from the result.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}

// Searcher looks up symbols by free text.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// SeriesSource returns closing prices between from and to at the given
// sampling interval ("1m", "5m", "15m", "1d", "1wk", "1mo").
type SeriesSource interface {
	Series(ctx context.Context, symbol, interval string, from, to time.Time) ([]Point, error)
}
