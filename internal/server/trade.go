package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"stockdesk/internal/apperr"
	"stockdesk/internal/ledger"
	"stockdesk/internal/settlement"
)

type buyRequest struct {
	UserID         string      `json:"userId"`
	GuildID        string      `json:"guildId"`
	Symbol         string      `json:"symbol"`
	Quantity       json.Number `json:"quantity"`
	UnitPrice      json.Number `json:"unitPrice"`
	Reason         string      `json:"reason"`
	IdempotencyKey string      `json:"idempotencyKey"`
}

type buyResponse struct {
	OK bool `json:"ok"`
	settlement.Result
}

type balanceResponse struct {
	Balance ledger.Balance `json:"balance"`
}

func (s *Server) guild(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.d.DefaultGuild
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	if s.d.Settler == nil {
		writeError(w, apperr.New(apperr.ConfigMissing, "Missing UNBELIEVABOAT_TOKEN"))
		return
	}

	var body buyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Wrap(apperr.InvalidOrder, "invalid JSON body", err))
		return
	}
	o := settlement.Order{
		UserID:         body.UserID,
		GuildID:        s.guild(body.GuildID),
		Symbol:         body.Symbol,
		Reason:         body.Reason,
		IdempotencyKey: body.IdempotencyKey,
	}
	if o.IdempotencyKey == "" {
		o.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if strings.TrimSpace(o.UserID) == "" {
		writeError(w, apperr.New(apperr.InvalidOrder, "Missing userId"))
		return
	}
	if o.GuildID == "" {
		writeError(w, apperr.New(apperr.InvalidOrder, "Missing guildId (and no default GUILD_ID configured)"))
		return
	}

	qty, ok := wholeNumber(body.Quantity)
	if !ok {
		writeError(w, apperr.New(apperr.InvalidOrder, "Invalid quantity (must be a positive integer)"))
		return
	}
	o.Quantity = qty
	price, err := decimal.NewFromString(body.UnitPrice.String())
	if err != nil {
		writeError(w, apperr.New(apperr.InvalidOrder, "Invalid unitPrice"))
		return
	}
	o.UnitPrice = price

	ctx, cancel := s.timeout(r)
	defer cancel()
	res, err := s.d.Settler.Settle(ctx, o)
	if err != nil {
		if k := apperr.KindOf(err); k != apperr.InvalidOrder && k != apperr.InsufficientFunds {
			s.log.Warn("trade failed", "kind", k, "user", o.UserID, "guild", o.GuildID, "symbol", o.Symbol, "error", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buyResponse{OK: true, Result: res})
}

// wholeNumber accepts 3 and 3.0 but not 3.5, 0 or negatives.
func wholeNumber(n json.Number) (int64, bool) {
	d, err := decimal.NewFromString(n.String())
	if err != nil || !d.IsInteger() || !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(ledger.MaxAmount)) {
		return 0, false
	}
	return d.IntPart(), true
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if s.d.Ledger == nil {
		writeError(w, apperr.New(apperr.ConfigMissing, "Missing UNBELIEVABOAT_TOKEN"))
		return
	}
	scope := ledger.Scope{
		UserID:  strings.TrimSpace(r.URL.Query().Get("userId")),
		GuildID: s.guild(r.URL.Query().Get("guildId")),
	}
	if scope.UserID == "" {
		badRequest(w, "Missing userId")
		return
	}
	if scope.GuildID == "" {
		badRequest(w, "Missing guildId (and no default GUILD_ID configured)")
		return
	}

	ctx, cancel := s.timeout(r)
	defer cancel()
	b, err := s.d.Ledger.Balance(ctx, scope)
	if err != nil {
		s.log.Warn("balance read failed", "scope", scope.String(), "error", err)
		writeError(w, apperr.Wrap(apperr.LedgerUnavailable, "Failed to fetch balance", err))
		return
	}
	if b.Degraded {
		s.log.Warn("balance cash unreadable", "scope", scope.String())
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: b})
}
