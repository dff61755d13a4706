package yahoo

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"stockdesk/internal/provider"
)

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency        string `json:"currency"`
				Symbol          string `json:"symbol"`
				DataGranularity string `json:"dataGranularity"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"` // null for missing samples
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

// Chart retrieves closing prices between from and to, including pre and
// post market samples. Null closes are dropped.
func (c *Client) Chart(ctx context.Context, symbol, interval string, from, to time.Time, opts ...ClientOption) ([]provider.Point, error) {
	params := url.Values{
		"period1":        {strconv.FormatInt(from.Unix(), 10)},
		"period2":        {strconv.FormatInt(to.Unix(), 10)},
		"interval":       {interval},
		"includePrePost": {"true"},
	}
	var body chartResponse
	path := "/v8/finance/chart/" + url.PathEscape(symbol)
	if err := c.with(opts).get(ctx, "chart", path, params, &body); err != nil {
		return nil, err
	}
	if err := body.Chart.Error.err("chart"); err != nil {
		return nil, err
	}
	if len(body.Chart.Result) == 0 {
		return nil, &provider.Error{Provider: name, Op: "chart", Message: fmt.Sprintf("no result for %s", symbol), Err: provider.ErrNoData}
	}

	result := body.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return []provider.Point{}, nil
	}
	closes := result.Indicators.Quote[0].Close
	n := min(len(closes), len(result.Timestamp))

	out := make([]provider.Point, 0, n)
	for i := 0; i < n; i++ {
		v := closes[i]
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		out = append(out, provider.Point{Time: time.Unix(result.Timestamp[i], 0).UTC(), Close: *v})
	}
	return out, nil
}
