package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"stockdesk/internal/apperr"
	"stockdesk/internal/provider"
	"stockdesk/internal/quotecache"
)

type quotesResponse struct {
	Stocks []provider.Quote `json:"stocks"`
	AsOf   *time.Time       `json:"asOf,omitempty"`
	State  quotecache.State `json:"state,omitempty"`
	Scope  string           `json:"scope,omitempty"`
}

type searchResponse struct {
	Results []provider.Candidate `json:"results"`
}

func (s *Server) cache(r *http.Request) (*quotecache.Cache, bool) {
	if s.d.Quotes == nil {
		return nil, false
	}
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = quotecache.DefaultScope
	}
	if c, ok := s.d.Quotes.Get(scope); ok {
		return c, true
	}
	return s.d.Quotes.Get(quotecache.DefaultScope)
}

// handleQuotes serves the curated snapshot, or an ad-hoc list when
// symbols is given. Neither form fails.
func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	c, ok := s.cache(r)
	if !ok {
		writeError(w, apperr.New(apperr.ConfigMissing, "quote cache is not configured"))
		return
	}

	if raw := r.URL.Query().Get("symbols"); strings.TrimSpace(raw) != "" {
		parts := provider.SplitCSV(raw)
		if limit := c.MaxBatch(); len(parts) > limit {
			badRequest(w, fmt.Sprintf("too many symbols (max %d)", limit))
			return
		}
		ctx, cancel := s.timeout(r)
		defer cancel()
		stocks, err := c.Live(ctx, parts)
		if err != nil {
			s.log.Warn("ad-hoc quotes failed", "symbols", len(parts), "error", err)
		}
		if stocks == nil {
			stocks = []provider.Quote{}
		}
		writeJSON(w, http.StatusOK, quotesResponse{Stocks: stocks})
		return
	}

	snap := c.Get(r.Context())
	out := quotesResponse{Stocks: snap.Quotes, State: snap.State, Scope: c.Scope()}
	if !snap.AsOf.IsZero() {
		asOf := snap.AsOf
		out.AsOf = &asOf
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if raw == "" {
		badRequest(w, "Missing symbol parameter")
		return
	}
	symbol, ok := provider.NormalizeSymbol(raw)
	if !ok {
		badRequest(w, fmt.Sprintf("Invalid symbol %q", raw))
		return
	}
	if s.d.Single == nil {
		writeError(w, apperr.New(apperr.ConfigMissing, "quote provider is not configured"))
		return
	}
	ctx, cancel := s.timeout(r)
	defer cancel()
	q, err := s.d.Single.FetchOne(ctx, symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		badRequest(w, "Missing symbol parameter")
		return
	}
	if s.d.History == nil {
		writeError(w, apperr.New(apperr.ConfigMissing, "history source is not configured"))
		return
	}
	ctx, cancel := s.timeout(r)
	defer cancel()
	series, _, err := s.d.History.Get(ctx, symbol, r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// handleSearch never fails; an upstream error reads as no results.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	out := searchResponse{Results: []provider.Candidate{}}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" || s.d.Search == nil {
		writeJSON(w, http.StatusOK, out)
		return
	}
	ctx, cancel := s.timeout(r)
	defer cancel()
	res, err := s.d.Search.Search(ctx, query, 10)
	if err != nil {
		s.log.Warn("search failed", "query", query, "error", err)
	} else if len(res) > 0 {
		out.Results = res
	}
	writeJSON(w, http.StatusOK, out)
}
