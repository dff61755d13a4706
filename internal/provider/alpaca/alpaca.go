// Package alpaca serves quotes from Alpaca market data snapshots.
package alpaca

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockdesk/internal/provider"
)

// SnapshotClient is the subset of *marketdata.Client used here.
type SnapshotClient interface {
	GetSnapshots(symbols []string, req marketdata.GetSnapshotRequest) (map[string]*marketdata.Snapshot, error)
}

type Config struct {
	Name      string
	APIKey    string
	APISecret string
	DataURL   string
	// Feed is "iex" or "sip". Empty lets the API pick.
	Feed string
}

type Provider struct {
	cfg    Config
	client SnapshotClient
	now    func() time.Time
}

// New builds a provider backed by the official market data client.
func New(cfg Config) *Provider {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return NewWithClient(cfg, marketdata.NewClient(opts))
}

// NewWithClient builds a provider around an existing snapshot client.
func NewWithClient(cfg Config, c SnapshotClient) *Provider {
	if cfg.Name == "" {
		cfg.Name = "alpaca"
	}
	return &Provider{cfg: cfg, client: c, now: time.Now}
}

func (p *Provider) Name() string { return p.cfg.Name }

type snapshotResult struct {
	snaps map[string]*marketdata.Snapshot
	err   error
}

// Fetch returns one quote per symbol that has a snapshot. The SDK call does
// not take a context, so cancellation only stops the wait.
func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, provider.Fail(p.cfg.Name, "snapshots", err)
	}

	ch := make(chan snapshotResult, 1)
	go func() {
		snaps, err := p.client.GetSnapshots(symbols, marketdata.GetSnapshotRequest{Feed: marketdata.Feed(p.cfg.Feed)})
		ch <- snapshotResult{snaps: snaps, err: err}
	}()

	var res snapshotResult
	select {
	case <-ctx.Done():
		return nil, provider.Fail(p.cfg.Name, "snapshots", ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		return nil, provider.Fail(p.cfg.Name, "snapshots", res.err)
	}

	now := p.now()
	out := make([]provider.Quote, 0, len(res.snaps))
	for _, sym := range symbols {
		snap := res.snaps[sym]
		if snap == nil {
			continue
		}
		if q, ok := provider.Normalize(p.cfg.Name, toRaw(sym, snap), now); ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func toRaw(sym string, s *marketdata.Snapshot) provider.Raw {
	raw := provider.Raw{Symbol: sym, Currency: provider.DefaultCurrency}
	if s.LatestTrade != nil {
		raw.Price = provider.Float(s.LatestTrade.Price)
		raw.MarketTime = s.LatestTrade.Timestamp
	}
	if s.DailyBar != nil {
		raw.Open = provider.Float(s.DailyBar.Open)
		raw.DayHigh = provider.Float(s.DailyBar.High)
		raw.DayLow = provider.Float(s.DailyBar.Low)
		raw.Volume = provider.Float(float64(s.DailyBar.Volume))
		if raw.Price == nil {
			raw.Price = provider.Float(s.DailyBar.Close)
		}
	}
	if s.PrevDailyBar != nil {
		raw.PreviousClose = provider.Float(s.PrevDailyBar.Close)
	}
	return raw
}
