// Package app builds the quote providers and the ledger from config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"stockdesk/internal/config"
	"stockdesk/internal/httpx"
	"stockdesk/internal/ledger"
	"stockdesk/internal/ledger/sqlite"
	"stockdesk/internal/ledger/unbelievaboat"
	"stockdesk/internal/provider"
	"stockdesk/internal/provider/alpaca"
	"stockdesk/internal/provider/alphavantage"
	"stockdesk/internal/provider/cache"
	"stockdesk/internal/provider/ratelimit"
	"stockdesk/internal/provider/yahoo"
)

// Sources is the set of quote sources named in config.
type Sources struct {
	// Providers in fallback order.
	Providers []provider.Provider
	// Search and Series come from Yahoo; nil when Yahoo is not enabled.
	Search provider.Searcher
	Series provider.SeriesSource
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// BuildSources constructs every enabled provider.
func BuildSources(cfg config.Config, log *slog.Logger) (Sources, error) {
	timeout := seconds(cfg.Server.RequestTimeoutSec)
	var out Sources
	for _, name := range cfg.Quotes.Providers {
		switch name {
		case "yahoo":
			hc := httpx.New(timeout)
			hc.Limiter = httpx.PerMinute(cfg.Yahoo.MaxRequestsPerMinute, cfg.Yahoo.Burst)
			opts := []yahoo.ClientOption{yahoo.WithHTTPClient(hc)}
			if cfg.Yahoo.BaseURL != "" {
				opts = append(opts, yahoo.WithBaseURL(cfg.Yahoo.BaseURL))
			}
			client, err := yahoo.NewClient(opts...)
			if err != nil {
				return Sources{}, fmt.Errorf("yahoo: %w", err)
			}
			y := yahoo.New(client)
			out.Providers = append(out.Providers, y)
			out.Series = y
			out.Search = y
			if cfg.Yahoo.SearchCacheTTLSec > 0 {
				out.Search = &cache.Searcher{S: y, TTL: seconds(cfg.Yahoo.SearchCacheTTLSec), MaxItems: cfg.Yahoo.SearchCacheMaxItems}
			}
		case "alphavantage":
			hc := httpx.New(timeout)
			// one token per GLOBAL_QUOTE request
			hc.Limiter = httpx.PerMinute(cfg.AlphaVantage.MaxRequestsPerMinute, cfg.AlphaVantage.Burst)
			av := alphavantage.New(alphavantage.Config{
				URL:            cfg.AlphaVantage.Endpoint,
				APIKey:         cfg.AlphaVantage.APIKey,
				MaxConcurrency: cfg.AlphaVantage.MaxConcurrency,
			}, hc)
			var p provider.Provider = av
			if hc.Limiter == nil {
				p = ratelimit.Wrap(av, 0, 0, seconds(cfg.AlphaVantage.MinRequestIntervalSec))
			}
			out.Providers = append(out.Providers, p)
		case "alpaca":
			ap := alpaca.New(alpaca.Config{
				APIKey:    cfg.Alpaca.APIKey,
				APISecret: cfg.Alpaca.APISecret,
				DataURL:   cfg.Alpaca.DataURL,
				Feed:      cfg.Alpaca.Feed,
			})
			out.Providers = append(out.Providers, ratelimit.Wrap(ap, cfg.Alpaca.MaxRequestsPerMinute, cfg.Alpaca.Burst, 0))
		default:
			return Sources{}, fmt.Errorf("unknown quote provider %q", name)
		}
		log.Info("quote provider enabled", "provider", name)
	}
	if len(out.Providers) == 0 {
		return Sources{}, fmt.Errorf("no quote providers configured")
	}
	return out, nil
}

// Ledger is a ledger.Ledger that may hold resources.
type Ledger interface {
	ledger.Ledger
	Close() error
}

type nopCloser struct{ ledger.Ledger }

func (nopCloser) Close() error { return nil }

// OpenLedger opens the configured ledger backend.
func OpenLedger(ctx context.Context, cfg config.Config) (Ledger, error) {
	switch cfg.Ledger.Backend {
	case "unbelievaboat":
		opts := []unbelievaboat.ClientOption{
			unbelievaboat.WithHTTPClient(httpx.New(seconds(cfg.Server.RequestTimeoutSec))),
		}
		if cfg.Ledger.BaseURL != "" {
			if _, err := url.Parse(cfg.Ledger.BaseURL); err != nil {
				return nil, fmt.Errorf("ledger base url: %w", err)
			}
			opts = append(opts, unbelievaboat.WithBaseURL(cfg.Ledger.BaseURL))
		}
		c, err := unbelievaboat.NewClient(cfg.Ledger.Token, opts...)
		if err != nil {
			return nil, err
		}
		return nopCloser{c}, nil
	case "sqlite":
		return sqlite.Open(ctx, cfg.Ledger.SQLitePath, cfg.Ledger.SeedBank)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}
