// Command quote queries the configured quote providers from a shell.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stockdesk/internal/aggregate"
	"stockdesk/internal/app"
	"stockdesk/internal/config"
	"stockdesk/internal/history"
	"stockdesk/internal/logx"
	"stockdesk/internal/provider"
)

func main() {
	var symbolsCSV string
	var providersCSV string
	var rangeCode string
	var searchQuery string
	var timeout int
	var configPath string

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "AAPL,MSFT"), "comma-separated ticker symbols")
	flag.StringVar(&providersCSV, "providers", "", "override QUOTE_PROVIDERS (e.g., yahoo,alphavantage)")
	flag.StringVar(&rangeCode, "history", "", "print the close series of the first symbol for this range (1D, 1W, 1M, ...)")
	flag.StringVar(&searchQuery, "search", "", "search symbols instead of fetching quotes")
	flag.IntVar(&timeout, "timeout", 15, "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json or config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	log := logx.New("warn", "text")
	if err != nil {
		fatal("config: %v", err)
	}
	if providersCSV != "" {
		cfg.Quotes.Providers = provider.SplitCSV(strings.ToLower(providersCSV))
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	src, err := app.BuildSources(cfg, log)
	if err != nil {
		fatal("providers: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	switch {
	case searchQuery != "":
		if src.Search == nil {
			fatal("search needs the yahoo provider")
		}
		res, err := src.Search.Search(ctx, searchQuery, 10)
		if err != nil {
			fatal("search: %v", err)
		}
		printJSON(struct {
			Results []provider.Candidate `json:"results"`
		}{res})
		return
	case rangeCode != "":
		if src.Series == nil {
			fatal("history needs the yahoo provider")
		}
		symbols := provider.Symbols(provider.SplitCSV(symbolsCSV), 1)
		if len(symbols) == 0 {
			fatal("no symbols provided")
		}
		svc := &history.Service{Source: src.Series}
		series, w, err := svc.Get(ctx, symbols[0], rangeCode)
		if err != nil {
			fatal("history: %v", err)
		}
		fmt.Fprintf(os.Stderr, "%s %s: %d points at %s\n", symbols[0], w.Range, len(series.Prices), w.Interval)
		printJSON(series)
		return
	}

	symbols := provider.Symbols(provider.SplitCSV(symbolsCSV), 0)
	if len(symbols) == 0 {
		fatal("no symbols provided")
	}

	var all []provider.Quote
	for _, p := range src.Providers {
		qs, err := p.Fetch(ctx, symbols)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s error: %v\n", p.Name(), err)
			continue
		}
		fmt.Fprintf(os.Stderr, "%s: %d quotes\n", p.Name(), len(qs))
		all = append(all, qs...)
	}
	if len(all) == 0 {
		fatal("no quotes received")
	}

	merged := aggregate.NewestBySymbol(all)
	printJSON(struct {
		Quotes []provider.Quote `json:"quotes"`
	}{aggregate.Ordered(merged, symbols)})
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
