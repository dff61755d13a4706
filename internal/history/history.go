// Package history turns a display range into a sampling window and shapes
// the upstream close series for charts.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockdesk/internal/provider"
)

const day = 24 * time.Hour

// DefaultRange is used when the caller does not pick one.
const DefaultRange = "1M"

// Window is a resolved range: sample interval and time span.
type Window struct {
	Range    string
	Interval string
	From     time.Time
	To       time.Time
}

type rangeSpec struct {
	interval string
	span     time.Duration
}

var ranges = map[string]rangeSpec{
	"1D": {"1m", day},
	"1W": {"5m", 7 * day},
	"1M": {"15m", 30 * day},
	"6M": {"1d", 182 * day},
	"1Y": {"1d", 365 * day},
	"5Y": {"1wk", 5 * 365 * day},
}

var aliases = map[string]string{
	"1J": "1D", // French "jour"
}

// Resolve maps a range code to its window ending at now. Unknown codes and
// "ALL" select monthly samples over roughly thirty years.
func Resolve(r string, now time.Time) Window {
	code := strings.ToUpper(strings.TrimSpace(r))
	if code == "" {
		code = DefaultRange
	}
	if a, ok := aliases[code]; ok {
		code = a
	}
	now = now.UTC()
	if code == "YTD" {
		return Window{Range: code, Interval: "1d", From: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), To: now}
	}
	rs, ok := ranges[code]
	if !ok {
		return Window{Range: "ALL", Interval: "1mo", From: now.Add(-30 * 365 * day), To: now}
	}
	return Window{Range: code, Interval: rs.interval, From: now.Add(-rs.span), To: now}
}

// Series is the chart payload.
type Series struct {
	Labels []string  `json:"labels"`
	Prices []float64 `json:"prices"`
}

// Service serves close series.
type Service struct {
	Source provider.SeriesSource
	Now    func() time.Time
}

// Get returns the close series for symbol over range r. An upstream
// failure or an empty series is a provider error.
func (s *Service) Get(ctx context.Context, symbol, r string) (Series, Window, error) {
	sym, ok := provider.NormalizeSymbol(symbol)
	if !ok {
		return Series{}, Window{}, &provider.Error{Provider: "history", Op: "series", Message: fmt.Sprintf("invalid symbol %q", symbol)}
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	w := Resolve(r, now())

	points, err := s.Source.Series(ctx, sym, w.Interval, w.From, w.To)
	if err != nil {
		return Series{}, w, provider.Fail("history", "series", err)
	}
	if len(points) == 0 {
		return Series{}, w, &provider.Error{Provider: "history", Op: "series", Message: "no data for " + sym, Err: provider.ErrNoData}
	}

	out := Series{Labels: make([]string, 0, len(points)), Prices: make([]float64, 0, len(points))}
	for _, p := range points {
		out.Labels = append(out.Labels, p.Time.UTC().Format(time.RFC3339))
		out.Prices = append(out.Prices, p.Close)
	}
	return out, w, nil
}
