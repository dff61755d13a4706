package quote_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"stockdesk/internal/logx"
	"stockdesk/internal/provider"
	"stockdesk/internal/quote"
)

type fakeProvider struct {
	name   string
	quotes []provider.Quote
	err    error

	mu  sync.Mutex
	got [][]string
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Fetch(_ context.Context, symbols []string) ([]provider.Quote, error) {
	f.mu.Lock()
	f.got = append(f.got, symbols)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}
	var out []provider.Quote
	for _, q := range f.quotes {
		if _, ok := want[q.Symbol]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func px(v float64) *float64 { return &v }

func TestFetchMany_CleansSymbolsAndCaps(t *testing.T) {
	t.Parallel()

	// Arrange
	p := &fakeProvider{name: "yahoo", quotes: []provider.Quote{
		{Symbol: "AAPL", Price: px(190)},
		{Symbol: "MSFT", Price: px(410)},
	}}
	f := quote.NewFetcher(logx.Discard(), 2, p)

	// Act
	got, err := f.FetchMany(t.Context(), []string{"aapl", "AAPL", "msft", "tsla"})

	// Assert: deduped, upper-cased, capped at two
	require.NoError(t, err)
	require.Equal(t, [][]string{{"AAPL", "MSFT"}}, p.got)
	require.Len(t, got, 2)
	require.InDelta(t, 410, *got["MSFT"].Price, 0)
}

func TestFetchMany_NoValidSymbolsSkipsProvider(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "yahoo"}
	f := quote.NewFetcher(logx.Discard(), 0, p)

	got, err := f.FetchMany(t.Context(), []string{"", "not valid"})
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, p.got)
	require.Equal(t, quote.DefaultMaxBatch, f.MaxBatch())
}

func TestFetchMany_MergesProvidersNewestWins(t *testing.T) {
	t.Parallel()

	// Arrange
	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	a := &fakeProvider{name: "yahoo", quotes: []provider.Quote{
		{Symbol: "AAPL", Price: px(190), ObservedAt: t1},
		{Symbol: "MSFT", Price: px(410), ObservedAt: t1},
	}}
	b := &fakeProvider{name: "alpaca", quotes: []provider.Quote{
		{Symbol: "AAPL", Price: px(191), ObservedAt: t1.Add(time.Second)},
	}}
	f := quote.NewFetcher(logx.Discard(), 50, a, b)

	// Act
	got, err := f.FetchMany(t.Context(), []string{"AAPL", "MSFT"})

	// Assert
	require.NoError(t, err)
	require.InDelta(t, 191, *got["AAPL"].Price, 0)
	require.InDelta(t, 410, *got["MSFT"].Price, 0)
	require.Equal(t, []string{"yahoo", "alpaca"}, f.Providers())
}

func TestFetchMany_PartialProviderFailure(t *testing.T) {
	t.Parallel()

	ok := &fakeProvider{name: "yahoo", quotes: []provider.Quote{{Symbol: "AAPL", Price: px(190)}}}
	bad := &fakeProvider{name: "alphavantage", err: errors.New("rate limited")}
	f := quote.NewFetcher(logx.Discard(), 50, bad, ok)

	got, err := f.FetchMany(t.Context(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFetchMany_AllFailIsOneProviderError(t *testing.T) {
	t.Parallel()

	// Arrange
	cause := errors.New("connection reset")
	f := quote.NewFetcher(logx.Discard(), 50,
		&fakeProvider{name: "yahoo", err: cause},
		&fakeProvider{name: "alpaca", err: errors.New("forbidden")},
	)

	// Act
	got, err := f.FetchMany(t.Context(), []string{"AAPL"})

	// Assert
	require.Nil(t, got)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "forbidden")
}

func TestFetchOne_FallsThroughProviders(t *testing.T) {
	t.Parallel()

	// Arrange: the first provider knows the symbol but has no price
	first := &fakeProvider{name: "alphavantage", quotes: []provider.Quote{{Symbol: "NVDA"}}}
	second := &fakeProvider{name: "yahoo", quotes: []provider.Quote{{Symbol: "NVDA", Price: px(130)}}}
	f := quote.NewFetcher(logx.Discard(), 50, first, second)

	// Act
	q, err := f.FetchOne(t.Context(), " nvda ")

	// Assert
	require.NoError(t, err)
	require.InDelta(t, 130, *q.Price, 0)
	require.Equal(t, [][]string{{"NVDA"}}, first.got)
}

func TestFetchOne_Errors(t *testing.T) {
	t.Parallel()

	f := quote.NewFetcher(logx.Discard(), 50, &fakeProvider{name: "yahoo"})

	_, err := f.FetchOne(t.Context(), "bad symbol!")
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)

	_, err = f.FetchOne(t.Context(), "ZZZZ")
	require.ErrorIs(t, err, provider.ErrNoData)

	_, err = quote.NewFetcher(nil, 0).FetchOne(t.Context(), "AAPL")
	require.Error(t, err)
}
