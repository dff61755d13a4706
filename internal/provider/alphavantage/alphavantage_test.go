package alphavantage

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"stockdesk/internal/httpx"
	"stockdesk/internal/provider"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p := New(Config{URL: srv.URL, APIKey: "demo"}, httpx.New(2*time.Second))
	p.now = func() time.Time { return time.Date(2025, 1, 2, 21, 0, 0, 0, time.UTC) }
	return p
}

func TestFetch_ParsesGlobalQuote(t *testing.T) {
	t.Parallel()

	// Arrange
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "GLOBAL_QUOTE", q.Get("function"))
		require.Equal(t, "demo", q.Get("apikey"))
		switch q.Get("symbol") {
		case "AAPL":
			_, _ = w.Write([]byte(`{"Global Quote":{"01. symbol":"AAPL","02. open":"188.00","03. high":"191.00",
				"04. low":"187.50","05. price":"190.1200","06. volume":"51234567","07. latest trading day":"2025-01-02",
				"08. previous close":"188.6200","09. change":"1.5000","10. change percent":"0.7954%"}}`))
		default:
			_, _ = w.Write([]byte(`{"Global Quote":{}}`))
		}
	})

	// Act
	quotes, err := p.Fetch(t.Context(), []string{"AAPL", "NOPE"})

	// Assert: unknown symbols are simply absent
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	q := quotes[0]
	require.Equal(t, "AAPL", q.Symbol)
	require.InDelta(t, 190.12, *q.Price, 1e-9)
	require.InDelta(t, 1.5, *q.Change, 1e-9)
	require.InDelta(t, 0.8, *q.ChangePercent, 1e-9)
	require.EqualValues(t, 51234567, *q.Volume)
	require.InDelta(t, 188.62, *q.PreviousClose, 1e-9)
	require.Equal(t, "USD", q.Currency)
	require.Equal(t, "alphavantage", q.Provider)
	require.NotNil(t, q.MarketTime)
}

func TestFetch_RateLimitNoteIsProviderError(t *testing.T) {
	t.Parallel()

	// Arrange: the free tier answers 200 with a Note when throttled
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	})

	// Act
	quotes, err := p.Fetch(t.Context(), []string{"AAPL", "MSFT"})

	// Assert
	require.Nil(t, quotes)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.RateLimited())
	require.Contains(t, pe.Error(), "call frequency")
}

func TestFetch_PartialFailureKeepsSuccesses(t *testing.T) {
	t.Parallel()

	// Arrange
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "MSFT" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"Global Quote":{"01. symbol":"AAPL","05. price":"190.00"}}`))
	})

	// Act
	quotes, err := p.Fetch(t.Context(), []string{"AAPL", "MSFT"})

	// Assert
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	require.Equal(t, "AAPL", quotes[0].Symbol)
}

func TestFetch_ConcurrencyIsBounded(t *testing.T) {
	t.Parallel()

	// Arrange
	var inFlight, peak atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte(`{"Global Quote":{"01. symbol":"` + r.URL.Query().Get("symbol") + `","05. price":"1"}}`))
	})
	p.cfg.MaxConcurrency = 2

	// Act
	quotes, err := p.Fetch(t.Context(), []string{"A", "B", "C", "D", "E", "F"})

	// Assert
	require.NoError(t, err)
	require.Len(t, quotes, 6)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNum(t *testing.T) {
	t.Parallel()

	require.Nil(t, num(""))
	require.Nil(t, num("n/a"))
	require.InDelta(t, 0.7954, *num(" 0.7954 "), 1e-12)
}
