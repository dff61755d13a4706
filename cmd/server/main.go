package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockdesk/internal/app"
	"stockdesk/internal/config"
	"stockdesk/internal/history"
	"stockdesk/internal/logx"
	"stockdesk/internal/quote"
	"stockdesk/internal/quotecache"
	"stockdesk/internal/server"
	"stockdesk/internal/settlement"
)

func main() {
	// Config
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	log := logx.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Error("config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := app.BuildSources(cfg, log)
	if err != nil {
		log.Error("quote providers", "error", err)
		os.Exit(1)
	}
	fetcher := quote.NewFetcher(log, cfg.Quotes.MaxBatch, src.Providers...)

	registry := quotecache.NewRegistry(fetcher, quotecache.Options{
		TTL:            time.Duration(cfg.Quotes.CacheTTLSec) * time.Second,
		RefreshTimeout: time.Duration(cfg.Quotes.RefreshTimeoutSec) * time.Second,
		RetryBackoff:   time.Duration(cfg.Quotes.RetryBackoffSec) * time.Second,
		MaxBatch:       cfg.Quotes.MaxBatch,
		Logger:         log,
	})
	defer registry.Close()
	curated := registry.Register(quotecache.DefaultScope, cfg.Quotes.Curated)
	// warm the table; a failure here leaves placeholders in place
	go curated.Get(ctx)

	led, err := app.OpenLedger(ctx, cfg)
	if err != nil {
		log.Error("ledger", "backend", cfg.Ledger.Backend, "error", err)
		os.Exit(1)
	}
	defer led.Close()

	engine, err := settlement.New(led, curated, settlement.Options{
		Policy:         settlement.PricePolicy(cfg.Trade.PricePolicy),
		Tolerance:      cfg.Trade.PriceTolerancePct / 100,
		DebitTimeout:   time.Duration(cfg.Ledger.DebitTimeoutSec) * time.Second,
		IdempotencyTTL: time.Duration(cfg.Trade.IdempotencyTTLSec) * time.Second,
		Logger:         log,
	})
	if err != nil {
		log.Error("settlement", "error", err)
		os.Exit(1)
	}

	deps := server.Deps{
		Quotes:         registry,
		Single:         fetcher,
		Search:         src.Search,
		Ledger:         led,
		Settler:        engine,
		DefaultGuild:   cfg.Ledger.GuildID,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		Logger:         log,
	}
	if src.Series != nil {
		deps.History = &history.Service{Source: src.Series}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.New(deps).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr, "providers", fetcher.Providers(), "ledger", cfg.Ledger.Backend, "price_policy", engine.Policy())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "error", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("server stopped")
}
