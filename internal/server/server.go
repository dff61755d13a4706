// Package server exposes quotes, history, search, balances and trade
// settlement over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"stockdesk/internal/history"
	"stockdesk/internal/ledger"
	"stockdesk/internal/logx"
	"stockdesk/internal/provider"
	"stockdesk/internal/quotecache"
	"stockdesk/internal/settlement"
)

// SingleQuote fetches one live quote.
type SingleQuote interface {
	FetchOne(ctx context.Context, symbol string) (provider.Quote, error)
}

// History returns chart series.
type History interface {
	Get(ctx context.Context, symbol, r string) (history.Series, history.Window, error)
}

// Settler settles buy orders.
type Settler interface {
	Settle(ctx context.Context, o settlement.Order) (settlement.Result, error)
}

// Deps are the collaborators behind the handlers. A nil Ledger or Settler
// makes the matching endpoints answer with a configuration error.
type Deps struct {
	Quotes  *quotecache.Registry
	Single  SingleQuote
	History History
	Search  provider.Searcher
	Ledger  ledger.Ledger
	Settler Settler

	// DefaultGuild is used when a request names no guild.
	DefaultGuild   string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	d   Deps
	log *slog.Logger
}

func New(d Deps) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 15 * time.Second
	}
	log := d.Logger
	if log == nil {
		log = logx.Discard()
	}
	return &Server{d: d, log: log.With("component", "server")}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /quotes", s.handleQuotes)
	mux.HandleFunc("GET /quote", s.handleQuote)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("POST /trade/buy", s.handleBuy)

	return logRequests(s.log, withJSONHeaders(withGzip(recoverPanic(s.log, limitBody(mux)))))
}

func (s *Server) timeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.d.RequestTimeout)
}
