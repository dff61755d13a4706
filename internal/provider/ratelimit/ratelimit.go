package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"stockdesk/internal/provider"
)

// Provider wraps a provider and gates every Fetch on a token bucket.
// Concurrent calls wait for a token, or return early if the context is
// canceled.
type Provider struct {
	P provider.Provider
	L *rate.Limiter
}

func (p *Provider) Name() string { return p.P.Name() }

func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if p.L != nil {
		if err := p.L.Wait(ctx); err != nil {
			return nil, provider.Fail(p.P.Name(), "rate limit", err)
		}
	}
	return p.P.Fetch(ctx, symbols)
}

// PerMinute allows rpm calls per minute with the given burst.
func PerMinute(p provider.Provider, rpm, burst int) *Provider {
	if burst <= 0 {
		burst = 1
	}
	return &Provider{P: p, L: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
}

// MinInterval enforces at least interval between calls.
func MinInterval(p provider.Provider, interval time.Duration) *Provider {
	return &Provider{P: p, L: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wrap applies the configured policy: a token bucket if rpm is set,
// otherwise a minimum interval, otherwise nothing.
func Wrap(p provider.Provider, rpm, burst int, interval time.Duration) provider.Provider {
	switch {
	case rpm > 0:
		return PerMinute(p, rpm, burst)
	case interval > 0:
		return MinInterval(p, interval)
	default:
		return p
	}
}
