package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"stockdesk/internal/apperr"
)

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
}

type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type Quotes struct {
	// Providers lists the enabled quote sources in fallback order.
	Providers         []string `json:"providers" yaml:"providers"`
	Curated           []string `json:"curated" yaml:"curated"`
	CacheTTLSec       int      `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	RefreshTimeoutSec int      `json:"refresh_timeout_sec" yaml:"refresh_timeout_sec"`
	RetryBackoffSec   int      `json:"retry_backoff_sec" yaml:"retry_backoff_sec"`
	MaxBatch          int      `json:"max_batch" yaml:"max_batch"`
}

type Yahoo struct {
	BaseURL              string `json:"base_url" yaml:"base_url"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                int    `json:"burst" yaml:"burst"`
	SearchCacheTTLSec    int    `json:"search_cache_ttl_sec" yaml:"search_cache_ttl_sec"`
	SearchCacheMaxItems  int    `json:"search_cache_max_items" yaml:"search_cache_max_items"`
}

type AlphaVantage struct {
	APIKey                string `json:"api_key" yaml:"api_key"`
	Endpoint              string `json:"endpoint" yaml:"endpoint"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	Burst                 int    `json:"burst" yaml:"burst"`
	MaxConcurrency        int    `json:"max_concurrency" yaml:"max_concurrency"`
}

type Alpaca struct {
	APIKey               string `json:"api_key" yaml:"api_key"`
	APISecret            string `json:"api_secret" yaml:"api_secret"`
	DataURL              string `json:"data_url" yaml:"data_url"`
	Feed                 string `json:"feed" yaml:"feed"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                int    `json:"burst" yaml:"burst"`
}

type Ledger struct {
	// Backend is "unbelievaboat" or "sqlite".
	Backend         string `json:"backend" yaml:"backend"`
	Token           string `json:"token" yaml:"token"`
	BaseURL         string `json:"base_url" yaml:"base_url"`
	GuildID         string `json:"guild_id" yaml:"guild_id"`
	SQLitePath      string `json:"sqlite_path" yaml:"sqlite_path"`
	SeedBank        int64  `json:"seed_bank" yaml:"seed_bank"`
	DebitTimeoutSec int    `json:"debit_timeout_sec" yaml:"debit_timeout_sec"`
}

type Trade struct {
	// PricePolicy is "confirmed" or "verify".
	PricePolicy       string  `json:"price_policy" yaml:"price_policy"`
	PriceTolerancePct float64 `json:"price_tolerance_pct" yaml:"price_tolerance_pct"`
	IdempotencyTTLSec int     `json:"idempotency_ttl_sec" yaml:"idempotency_ttl_sec"`
}

type Config struct {
	Server       Server       `json:"server" yaml:"server"`
	Log          Log          `json:"log" yaml:"log"`
	Quotes       Quotes       `json:"quotes" yaml:"quotes"`
	Yahoo        Yahoo        `json:"yahoo" yaml:"yahoo"`
	AlphaVantage AlphaVantage `json:"alphavantage" yaml:"alphavantage"`
	Alpaca       Alpaca       `json:"alpaca" yaml:"alpaca"`
	Ledger       Ledger       `json:"ledger" yaml:"ledger"`
	Trade        Trade        `json:"trade" yaml:"trade"`
}

var (
	knownProviders = []string{"yahoo", "alphavantage", "alpaca"}
	knownBackends  = []string{"unbelievaboat", "sqlite"}
	knownPolicies  = []string{"confirmed", "verify"}
)

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Log:    Log{Level: "info", Format: "json"},
		Quotes: Quotes{
			Providers:         []string{"yahoo"},
			Curated:           []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA", "META", "NVDA", "NFLX"},
			CacheTTLSec:       60,
			RefreshTimeoutSec: 8,
			RetryBackoffSec:   10,
			MaxBatch:          50,
		},
		Yahoo: Yahoo{
			MaxRequestsPerMinute: 120,
			Burst:                10,
			SearchCacheTTLSec:    300,
			SearchCacheMaxItems:  2000,
		},
		AlphaVantage: AlphaVantage{
			Endpoint:             "https://www.alphavantage.co/query",
			MaxRequestsPerMinute: 5,
			Burst:                1,
			MaxConcurrency:       2,
		},
		Alpaca: Alpaca{
			Feed:                 "iex",
			MaxRequestsPerMinute: 200,
			Burst:                5,
		},
		Ledger: Ledger{
			Backend:         "unbelievaboat",
			SQLitePath:      "stockdesk.db",
			SeedBank:        10000,
			DebitTimeoutSec: 10,
		},
		Trade: Trade{
			PricePolicy:       "confirmed",
			PriceTolerancePct: 2,
			IdempotencyTTLSec: 24 * 60 * 60,
		},
	}
}

// Load reads config from path, as YAML when the extension says so and as
// JSON otherwise. If path is empty, config.json or config.yaml in the
// working directory is used when present. Environment variables override
// select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	if v := os.Getenv("QUOTE_PROVIDERS"); v != "" {
		cfg.Quotes.Providers = lowerAll(splitCSV(v))
	}
	if v := os.Getenv("CURATED_SYMBOLS"); v != "" {
		cfg.Quotes.Curated = splitCSV(v)
	}
	envInt("QUOTE_CACHE_TTL_SEC", &cfg.Quotes.CacheTTLSec, 1)
	envInt("QUOTE_REFRESH_TIMEOUT_SEC", &cfg.Quotes.RefreshTimeoutSec, 1)

	if v := os.Getenv("YAHOO_QUOTE_URL"); v != "" {
		cfg.Yahoo.BaseURL = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("UNBELIEVABOAT_TOKEN"); v != "" {
		cfg.Ledger.Token = v
	}
	if v := os.Getenv("GUILD_ID"); v != "" {
		cfg.Ledger.GuildID = v
	}
	if v := os.Getenv("LEDGER_SQLITE_PATH"); v != "" {
		cfg.Ledger.SQLitePath = v
	}
	envInt("LEDGER_DEBIT_TIMEOUT_SEC", &cfg.Ledger.DebitTimeoutSec, 1)

	if v := os.Getenv("TRADE_PRICE_POLICY"); v != "" {
		cfg.Trade.PricePolicy = strings.ToLower(v)
	}
	if v := os.Getenv("TRADE_PRICE_TOLERANCE_PCT"); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil && x > 0 {
			cfg.Trade.PriceTolerancePct = x
		}
	}
	envInt("TRADE_IDEMPOTENCY_TTL_SEC", &cfg.Trade.IdempotencyTTLSec, 1)
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	missing := func(format string, args ...any) {
		errs = append(errs, apperr.Newf(apperr.ConfigMissing, format, args...))
	}

	if len(c.Quotes.Providers) == 0 {
		missing("no quote providers configured")
	}
	for _, p := range c.Quotes.Providers {
		switch p {
		case "alphavantage":
			if c.AlphaVantage.APIKey == "" {
				missing("alphavantage enabled without ALPHA_VANTAGE_API_KEY")
			}
		case "alpaca":
			if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
				missing("alpaca enabled without APCA_API_KEY_ID and APCA_API_SECRET_KEY")
			}
		default:
			if !slices.Contains(knownProviders, p) {
				missing("unknown quote provider %q", p)
			}
		}
	}
	if len(c.Quotes.Curated) == 0 {
		missing("curated symbol set is empty")
	}

	switch c.Ledger.Backend {
	case "unbelievaboat":
		if c.Ledger.Token == "" {
			missing("Missing UNBELIEVABOAT_TOKEN")
		}
	case "sqlite":
		if c.Ledger.SQLitePath == "" {
			missing("sqlite ledger without LEDGER_SQLITE_PATH")
		}
	default:
		missing("unknown ledger backend %q (want one of %s)", c.Ledger.Backend, strings.Join(knownBackends, ", "))
	}

	if !slices.Contains(knownPolicies, c.Trade.PricePolicy) {
		missing("unknown trade price policy %q", c.Trade.PricePolicy)
	}
	return errors.Join(errs...)
}

func envInt(name string, dst *int, floor int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if x, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && x >= floor {
		*dst = x
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i, s := range in {
		in[i] = strings.ToLower(s)
	}
	return in
}
