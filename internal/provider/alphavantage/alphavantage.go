package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stockdesk/internal/provider"
)

// Doer is satisfied by *httpx.Client and *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	Name     string
	URL      string
	APIKey   string
	Currency string
	// MaxConcurrency limits parallel GLOBAL_QUOTE calls. The API has no
	// batch endpoint on the free tier. Defaults to 4 when <= 0.
	MaxConcurrency int
}

type Provider struct {
	cfg    Config
	client Doer
	now    func() time.Time
}

func New(cfg Config, hc Doer) *Provider {
	if cfg.Name == "" {
		cfg.Name = "alphavantage"
	}
	if cfg.URL == "" {
		cfg.URL = "https://www.alphavantage.co/query"
	}
	if cfg.Currency == "" {
		cfg.Currency = provider.DefaultCurrency
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Provider{cfg: cfg, client: hc, now: time.Now}
}

func (p *Provider) Name() string { return p.cfg.Name }

// globalQuote mirrors the numbered-key payload of GLOBAL_QUOTE. Every value
// is a string.
type globalQuote struct {
	Symbol        string `json:"01. symbol"`
	Open          string `json:"02. open"`
	High          string `json:"03. high"`
	Low           string `json:"04. low"`
	Price         string `json:"05. price"`
	Volume        string `json:"06. volume"`
	LatestDay     string `json:"07. latest trading day"`
	PreviousClose string `json:"08. previous close"`
	Change        string `json:"09. change"`
	ChangePercent string `json:"10. change percent"`
}

type apiResponse struct {
	GlobalQuote  *globalQuote `json:"Global Quote"`
	Note         string       `json:"Note"`
	Information  string       `json:"Information"`
	ErrorMessage string       `json:"Error Message"`
}

// Fetch issues one GLOBAL_QUOTE per symbol. Symbols the API does not know
// are left out; the call fails only when every lookup failed.
func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		out      = make([]provider.Quote, 0, len(symbols))
		firstErr error
		failed   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for _, s := range symbols {
		g.Go(func() error {
			q, ok, err := p.fetchOne(gctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			if ok {
				out = append(out, q)
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(symbols) {
		return nil, firstErr
	}
	return out, nil
}

func (p *Provider) fetchOne(ctx context.Context, symbol string) (provider.Quote, bool, error) {
	q := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {p.cfg.APIKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return provider.Quote{}, false, provider.Fail(p.cfg.Name, "global quote", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return provider.Quote{}, false, provider.Fail(p.cfg.Name, "global quote", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2<<10))
		return provider.Quote{}, false, provider.StatusError(p.cfg.Name, "global quote", resp.StatusCode)
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return provider.Quote{}, false, &provider.Error{Provider: p.cfg.Name, Op: "global quote", Message: "decoding response", Err: err}
	}
	// throttling is reported in-band with a 200
	if msg := firstNonEmpty(api.Note, api.Information); msg != "" {
		return provider.Quote{}, false, &provider.Error{Provider: p.cfg.Name, Op: "global quote", Status: http.StatusTooManyRequests, Message: msg}
	}
	if api.ErrorMessage != "" {
		return provider.Quote{}, false, &provider.Error{Provider: p.cfg.Name, Op: "global quote", Message: api.ErrorMessage}
	}
	if api.GlobalQuote == nil || api.GlobalQuote.Symbol == "" {
		return provider.Quote{}, false, nil
	}

	gq := api.GlobalQuote
	raw := provider.Raw{
		Symbol:        gq.Symbol,
		Currency:      p.cfg.Currency,
		Price:         num(gq.Price),
		Change:        num(gq.Change),
		ChangePercent: num(strings.TrimSuffix(gq.ChangePercent, "%")),
		Volume:        num(gq.Volume),
		PreviousClose: num(gq.PreviousClose),
		Open:          num(gq.Open),
		DayHigh:       num(gq.High),
		DayLow:        num(gq.Low),
	}
	if d, err := time.Parse(time.DateOnly, gq.LatestDay); err == nil {
		raw.MarketTime = d
	}
	quote, ok := provider.Normalize(p.cfg.Name, raw, p.now())
	if !ok {
		return provider.Quote{}, false, fmt.Errorf("%s: unusable symbol %q", p.cfg.Name, gq.Symbol)
	}
	return quote, true, nil
}

func num(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
