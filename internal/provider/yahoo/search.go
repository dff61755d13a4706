package yahoo

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"stockdesk/internal/provider"
)

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
		Currency  string `json:"currency"`
	} `json:"quotes"`
}

// Search looks up instruments matching query, returning at most limit hits.
func (c *Client) Search(ctx context.Context, query string, limit int, opts ...ClientOption) ([]provider.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []provider.Candidate{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{
		"q":           {query},
		"quotesCount": {strconv.Itoa(limit)},
		"newsCount":   {"0"},
	}
	var body searchResponse
	if err := c.with(opts).get(ctx, "search", "/v1/finance/search", params, &body); err != nil {
		return nil, err
	}

	out := make([]provider.Candidate, 0, len(body.Quotes))
	for _, q := range body.Quotes {
		if q.Symbol == "" {
			continue
		}
		n := q.ShortName
		if n == "" {
			n = q.LongName
		}
		out = append(out, provider.Candidate{
			Symbol:   q.Symbol,
			Name:     n,
			Exchange: q.Exchange,
			Type:     q.QuoteType,
			Currency: q.Currency,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
