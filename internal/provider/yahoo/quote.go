package yahoo

import (
	"context"
	"net/url"
	"strings"
	"time"

	"stockdesk/internal/provider"
)

type quoteResult struct {
	Symbol                     string   `json:"symbol"`
	ShortName                  string   `json:"shortName"`
	LongName                   string   `json:"longName"`
	Currency                   string   `json:"currency"`
	RegularMarketTime          int64    `json:"regularMarketTime"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChange        *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketOpen          *float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh       *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        *float64 `json:"regularMarketDayLow"`
	RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        *float64 `json:"regularMarketVolume"`
	AverageDailyVolume3Month   *float64 `json:"averageDailyVolume3Month"`
	AverageDailyVolume10Day    *float64 `json:"averageDailyVolume10Day"`
	MarketCap                  *float64 `json:"marketCap"`
	FiftyTwoWeekHigh           *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow            *float64 `json:"fiftyTwoWeekLow"`
	TrailingPE                 *float64 `json:"trailingPE"`
	EpsTrailingTwelveMonths    *float64 `json:"epsTrailingTwelveMonths"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

// GetQuotes retrieves quotes for symbols in one call.
func (c *Client) GetQuotes(ctx context.Context, symbols []string, opts ...ClientOption) ([]provider.Raw, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	var body quoteResponse
	params := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if err := c.with(opts).get(ctx, "quote", "/v7/finance/quote", params, &body); err != nil {
		return nil, err
	}
	if err := body.QuoteResponse.Error.err("quote"); err != nil {
		return nil, err
	}

	out := make([]provider.Raw, 0, len(body.QuoteResponse.Result))
	for _, r := range body.QuoteResponse.Result {
		raw := provider.Raw{
			Symbol:           r.Symbol,
			ShortName:        r.ShortName,
			LongName:         r.LongName,
			Currency:         r.Currency,
			Price:            r.RegularMarketPrice,
			Change:           r.RegularMarketChange,
			ChangePercent:    r.RegularMarketChangePercent,
			Volume:           r.RegularMarketVolume,
			PreviousClose:    r.RegularMarketPreviousClose,
			Open:             r.RegularMarketOpen,
			DayHigh:          r.RegularMarketDayHigh,
			DayLow:           r.RegularMarketDayLow,
			AverageVolume:    r.AverageDailyVolume3Month,
			MarketCap:        r.MarketCap,
			FiftyTwoWeekHigh: r.FiftyTwoWeekHigh,
			FiftyTwoWeekLow:  r.FiftyTwoWeekLow,
			PERatio:          r.TrailingPE,
			EPSTrailing:      r.EpsTrailingTwelveMonths,
		}
		if raw.AverageVolume == nil {
			raw.AverageVolume = r.AverageDailyVolume10Day
		}
		if r.RegularMarketTime > 0 {
			raw.MarketTime = time.Unix(r.RegularMarketTime, 0)
		}
		out = append(out, raw)
	}
	return out, nil
}
