package yahoo

import (
	"context"
	"time"

	"stockdesk/internal/provider"
)

// Provider adapts Client to the provider interfaces.
type Provider struct {
	Client *Client
	// Now is used to stamp observations; defaults to time.Now.
	Now func() time.Time
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.Searcher     = (*Provider)(nil)
	_ provider.SeriesSource = (*Provider)(nil)
)

// New wraps c.
func New(c *Client) *Provider { return &Provider{Client: c, Now: time.Now} }

func (p *Provider) Name() string { return name }

func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	raws, err := p.Client.GetQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	now := p.now()
	out := make([]provider.Quote, 0, len(raws))
	for _, r := range raws {
		if q, ok := provider.Normalize(name, r, now); ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (p *Provider) Search(ctx context.Context, query string, limit int) ([]provider.Candidate, error) {
	return p.Client.Search(ctx, query, limit)
}

func (p *Provider) Series(ctx context.Context, symbol, interval string, from, to time.Time) ([]provider.Point, error) {
	return p.Client.Chart(ctx, symbol, interval, from, to)
}

func (p *Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
