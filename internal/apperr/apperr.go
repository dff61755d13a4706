// Package apperr defines the error kinds surfaced to gateway callers and
// their HTTP status mapping.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the caller.
type Kind string

const (
	BadRequest        Kind = "bad_request"
	InvalidOrder      Kind = "invalid_order"
	InsufficientFunds Kind = "insufficient_funds"
	PriceDrift        Kind = "price_drift"
	LedgerUnavailable Kind = "ledger_unavailable"
	SettlementFailed  Kind = "settlement_failed"
	ProviderError     Kind = "provider_error"
	ConfigMissing     Kind = "config_missing"
	Canceled          Kind = "canceled"
	Internal          Kind = "internal"
)

// Funds explains an insufficient-funds rejection.
type Funds struct {
	Bank      int64 `json:"bank"`
	TotalCost int64 `json:"totalCost"`
	Shortfall int64 `json:"shortfall"`
}

// Error is a classified error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Funds   *Funds
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may safely retry the same request.
func (e *Error) Retryable() bool {
	return e.Kind == LedgerUnavailable || e.Kind == ProviderError
}

// New returns an Error of kind k.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// Wrap returns an Error of kind k carrying err as its cause.
func Wrap(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Message: msg, Err: err}
}

// Newf is New with formatting.
func Newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// NotEnough builds the insufficient-funds error for a bank balance and cost.
func NotEnough(bank, total int64) *Error {
	short := total - bank
	return &Error{
		Kind:    InsufficientFunds,
		Message: fmt.Sprintf("not enough money in bank: you need %d more", short),
		Funds:   &Funds{Bank: bank, TotalCost: total, Shortfall: short},
	}
}

// KindOf extracts the kind from err. Context errors map to Canceled and
// anything unclassified to Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return Internal
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool { return KindOf(err) == k }

// Status maps a kind to the HTTP status returned by the gateway.
func Status(k Kind) int {
	switch k {
	case BadRequest, InvalidOrder, InsufficientFunds, PriceDrift:
		return http.StatusBadRequest
	case LedgerUnavailable, SettlementFailed, ProviderError:
		return http.StatusBadGateway
	case Canceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
