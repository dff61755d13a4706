package aggregate

import (
	"testing"
	"time"

	"stockdesk/internal/provider"
)

func px(v float64) *float64 { return &v }

func TestNewestBySymbol_NewestWinsAcrossProviders(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(1 * time.Minute)

	in := []provider.Quote{
		{Symbol: "AAPL", Price: px(190), Provider: "alphavantage", ObservedAt: t2},
		{Symbol: "AAPL", Price: px(189), Provider: "yahoo", ObservedAt: t1},
	}

	out := NewestBySymbol(in)
	if len(out) != 1 {
		t.Fatalf("want 1, got %d: %+v", len(out), out)
	}
	got := out["AAPL"]
	if got.Provider != "alphavantage" || *got.Price != 190 || !got.ObservedAt.Equal(t2) {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestNewestBySymbol_TieGoesToLaterInput(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []provider.Quote{
		{Symbol: "MSFT", Price: px(400), Provider: "yahoo", ObservedAt: ts},
		{Symbol: "MSFT", Price: px(401), Provider: "alpaca", ObservedAt: ts},
	}
	out := NewestBySymbol(in)
	if out["MSFT"].Provider != "alpaca" {
		t.Fatalf("later input should win ties: %+v", out["MSFT"])
	}
}

func TestNewestBySymbol_PricedBeatsNewerUnpriced(t *testing.T) {
	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []provider.Quote{
		{Symbol: "TSLA", Price: px(250), Provider: "yahoo", ObservedAt: t1},
		{Symbol: "TSLA", Provider: "alphavantage", ObservedAt: t1.Add(time.Hour)},
	}
	out := NewestBySymbol(in)
	if out["TSLA"].Provider != "yahoo" {
		t.Fatalf("quote with price should win: %+v", out["TSLA"])
	}
}

func TestNewestBySymbol_ZeroTimestampFilled(t *testing.T) {
	out := NewestBySymbol([]provider.Quote{{Symbol: "NVDA", Price: px(1)}})
	if out["NVDA"].ObservedAt.IsZero() {
		t.Fatalf("zero timestamp should be replaced")
	}
}

func TestOrderedAndSorted(t *testing.T) {
	m := map[string]provider.Quote{
		"NFLX": {Symbol: "NFLX"},
		"AAPL": {Symbol: "AAPL"},
		"META": {Symbol: "META"},
	}
	ord := Ordered(m, []string{"META", "GOOGL", "AAPL"})
	if len(ord) != 2 || ord[0].Symbol != "META" || ord[1].Symbol != "AAPL" {
		t.Fatalf("unexpected order: %+v", ord)
	}
	sorted := Sorted(m)
	if sorted[0].Symbol != "AAPL" || sorted[1].Symbol != "META" || sorted[2].Symbol != "NFLX" {
		t.Fatalf("unexpected sort: %+v", sorted)
	}
}
