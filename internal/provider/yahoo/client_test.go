package yahoo_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"stockdesk/internal/provider"
	yahoo "stockdesk/internal/provider/yahoo"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

const quoteBody = `{"quoteResponse":{"result":[
 {"symbol":"AAPL","shortName":"Apple Inc.","currency":"USD","regularMarketTime":1735830000,
  "regularMarketPrice":190.12,"regularMarketChange":1.5,"regularMarketChangePercent":0.7954,
  "regularMarketPreviousClose":188.62,"regularMarketVolume":51234567,
  "averageDailyVolume10Day":40000000,"trailingPE":29.4},
 {"symbol":"MSFT","longName":"Microsoft Corporation","regularMarketPrice":null}
],"error":null}}`

func TestGetQuotes(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "/v7/finance/quote", req.URL.Path)
			require.Equal(t, "AAPL,MSFT", req.URL.Query().Get("symbols"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return jsonResponse(http.StatusOK, quoteBody), nil
		}).
		Times(1)

	// Arrange: setup a new client
	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	raws, err := client.GetQuotes(t.Context(), []string{"AAPL", "MSFT"})

	// Assert
	require.NoError(t, err)
	require.Len(t, raws, 2)
	require.Equal(t, "AAPL", raws[0].Symbol)
	require.InDelta(t, 190.12, *raws[0].Price, 1e-9)
	require.InDelta(t, 40000000, *raws[0].AverageVolume, 0)
	require.Equal(t, time.Unix(1735830000, 0), raws[0].MarketTime)
	require.Nil(t, raws[1].Price)
	require.Equal(t, "Microsoft Corporation", raws[1].LongName)
}

func TestProvider_Fetch_Normalizes(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(http.StatusOK, quoteBody), nil).
		Times(1)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	p := yahoo.New(client)
	p.Now = func() time.Time { return now }

	// Act
	quotes, err := p.Fetch(t.Context(), []string{"AAPL", "MSFT"})

	// Assert
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, "yahoo", p.Name())
	require.Equal(t, "Apple Inc.", quotes[0].Name)
	require.InDelta(t, 0.8, *quotes[0].ChangePercent, 1e-9)
	require.Equal(t, now, quotes[0].ObservedAt)
	require.Equal(t, provider.SourceLive, quotes[0].Source)
	require.False(t, quotes[1].HasPrice())
	require.Equal(t, "USD", quotes[1].Currency)
}

func TestGetQuotes_ErrUnexpectedStatusCode(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(http.StatusTooManyRequests, ""), nil).
		Times(1)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	raws, err := client.GetQuotes(t.Context(), []string{"AAPL"})

	// Assert: rate limiting surfaces as one provider error
	require.Error(t, err)
	require.Nil(t, raws)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.RateLimited())
}

func TestGetQuotes_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	cause := errors.New("connection refused")
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(nil, cause).
		Times(1)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	raws, err := client.GetQuotes(t.Context(), []string{"AAPL"})

	// Assert
	require.ErrorIs(t, err, cause)
	require.Nil(t, raws)
}

func TestGetQuotes_ErrDecodingResponse(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(http.StatusOK, "{not json"), nil).
		Times(1)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	_, err = client.GetQuotes(t.Context(), []string{"AAPL"})

	// Assert
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "quote", pe.Op)
}

func TestGetQuotes_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: the mock must never be called
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: an invalid per-call base url
	raws, err := client.GetQuotes(t.Context(), []string{"AAPL"}, yahoo.WithBaseURL(string([]rune{0x7f})))

	// Assert
	require.Error(t, err)
	require.Nil(t, raws)
}

func TestWithBaseURLAndHeader(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	base := "http://localhost:8080"
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), base), "unexpected url %s", req.URL.String())
			require.Equal(t, "stockdesk-test", req.Header.Get("User-Agent"))
			require.Equal(t, "abc", req.URL.Query().Get("crumb"))
			return jsonResponse(http.StatusOK, `{"quotes":[]}`), nil
		}).
		Times(1)

	client, err := yahoo.NewClient(
		yahoo.WithHTTPClient(httpClient),
		yahoo.WithBaseURL(base),
		yahoo.WithHeader(http.Header{"User-Agent": []string{"stockdesk-test"}}),
		yahoo.WithQuery(map[string][]string{"crumb": {"abc"}}),
	)
	require.NoError(t, err)

	// Act
	got, err := client.Search(t.Context(), "apple", 10)

	// Assert
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/v1/finance/search", req.URL.Path)
			require.Equal(t, "app", req.URL.Query().Get("q"))
			require.Equal(t, "2", req.URL.Query().Get("quotesCount"))
			return jsonResponse(http.StatusOK, `{"quotes":[
				{"symbol":"AAPL","shortname":"Apple Inc.","exchange":"NMS","quoteType":"EQUITY"},
				{"symbol":"APP","longname":"AppLovin Corporation","exchange":"NMS","quoteType":"EQUITY","currency":"USD"},
				{"symbol":"APPN","shortname":"Appian","exchange":"NMS","quoteType":"EQUITY"}
			]}`), nil
		}).
		Times(1)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	got, err := yahoo.New(client).Search(t.Context(), "  app ", 2)

	// Assert: capped to the limit, long name used when short is missing
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, provider.Candidate{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NMS", Type: "EQUITY"}, got[0])
	require.Equal(t, "AppLovin Corporation", got[1].Name)
	require.Equal(t, "USD", got[1].Currency)
}

func TestSearch_EmptyQuerySkipsRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	got, err := client.Search(t.Context(), "   ", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestChart_DropsNullCloses(t *testing.T) {
	t.Parallel()

	// Arrange
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(7 * 24 * time.Hour)
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "/v8/finance/chart/AAPL", req.URL.Path)
			require.Equal(t, "5m", q.Get("interval"))
			require.Equal(t, "true", q.Get("includePrePost"))
			require.Equal(t, "1735689600", q.Get("period1"))
			require.Equal(t, "1736294400", q.Get("period2"))
			return jsonResponse(http.StatusOK, `{"chart":{"result":[{
				"meta":{"currency":"USD","symbol":"AAPL"},
				"timestamp":[1735689600,1735689900,1735690200],
				"indicators":{"quote":[{"close":[190.1,null,190.4]}]}
			}],"error":null}}`), nil
		}).
		Times(1)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	points, err := yahoo.New(client).Series(t.Context(), "AAPL", "5m", from, to)

	// Assert
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, time.Unix(1735689600, 0).UTC(), points[0].Time)
	require.InDelta(t, 190.4, points[1].Close, 1e-9)
}

func TestChart_UnknownSymbol(t *testing.T) {
	t.Parallel()

	// Arrange: yahoo answers 404 with an error envelope
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`), nil).
		Times(1)

	client, err := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	points, err := client.Chart(t.Context(), "ZZZZ", "1d", time.Now().Add(-time.Hour), time.Now())

	// Assert
	require.Error(t, err)
	require.Nil(t, points)
	require.Contains(t, err.Error(), "delisted")
}
