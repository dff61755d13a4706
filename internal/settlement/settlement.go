// Package settlement turns a buy order into exactly one debit on the
// external ledger.
//
// Orders for the same user in the same guild are serialized: the balance
// read, the funds check and the debit run under one lease, so two
// concurrent orders can never both pass the check against the same bank
// balance. Nothing is retried once the debit is on the wire.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockdesk/internal/apperr"
	"stockdesk/internal/ledger"
	"stockdesk/internal/provider"
)

// PricePolicy decides whose unit price a trade uses.
type PricePolicy string

const (
	// PolicyConfirmed trusts the price the caller confirmed on screen.
	PolicyConfirmed PricePolicy = "confirmed"
	// PolicyVerify checks the confirmed price against a live quote.
	PolicyVerify PricePolicy = "verify"
)

const (
	DefaultDebitTimeout   = 10 * time.Second
	DefaultTolerance      = 0.02
	DefaultIdempotencyTTL = 24 * time.Hour
)

var maxTotal = decimal.NewFromInt(ledger.MaxAmount)

// PriceSource supplies live prices under PolicyVerify.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Order is a buy request.
type Order struct {
	UserID         string
	GuildID        string
	Symbol         string
	Quantity       int64
	UnitPrice      decimal.Decimal
	Reason         string
	IdempotencyKey string
}

// Result describes a settled trade.
type Result struct {
	SettlementID string    `json:"settlementId"`
	Symbol       string    `json:"symbol"`
	Quantity     int64     `json:"quantity"`
	UnitPrice    int64     `json:"unitPrice"`
	TotalCost    int64     `json:"totalCost"`
	Reason       string    `json:"reason"`
	SettledAt    time.Time `json:"settledAt"`
	Replayed     bool      `json:"replayed"`
	// ProjectedBalance is the pre-trade balance minus the total. The ledger
	// stays authoritative.
	ProjectedBalance ledger.Balance `json:"projectedBalance"`
}

type Options struct {
	Policy PricePolicy
	// Tolerance is the accepted relative drift under PolicyVerify, 0.02
	// for two percent.
	Tolerance      float64
	DebitTimeout   time.Duration
	IdempotencyTTL time.Duration
	Now            func() time.Time
	NewID          func() string
	Logger         *slog.Logger
}

// Engine settles orders against a ledger.
type Engine struct {
	ledger ledger.Ledger
	prices PriceSource
	opt    Options
	log    *slog.Logger

	leases *leases
	seen   *admissions
}

// New returns an engine. prices may be nil unless the policy is verify.
func New(l ledger.Ledger, prices PriceSource, opt Options) (*Engine, error) {
	if l == nil {
		return nil, errors.New("settlement: nil ledger")
	}
	switch opt.Policy {
	case "":
		opt.Policy = PolicyConfirmed
	case PolicyConfirmed, PolicyVerify:
	default:
		return nil, fmt.Errorf("settlement: unknown price policy %q", opt.Policy)
	}
	if opt.Policy == PolicyVerify && prices == nil {
		return nil, errors.New("settlement: verify policy needs a price source")
	}
	if opt.Tolerance <= 0 {
		opt.Tolerance = DefaultTolerance
	}
	if opt.DebitTimeout <= 0 {
		opt.DebitTimeout = DefaultDebitTimeout
	}
	if opt.IdempotencyTTL <= 0 {
		opt.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.NewID == nil {
		opt.NewID = uuid.NewString
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		ledger: l,
		prices: prices,
		opt:    opt,
		log:    log.With("component", "settlement"),
		leases: newLeases(),
		seen:   newAdmissions(opt.IdempotencyTTL, opt.Now),
	}, nil
}

// Policy reports the active price policy.
func (e *Engine) Policy() PricePolicy { return e.opt.Policy }

type priced struct {
	scope    ledger.Scope
	symbol   string
	quantity int64
	unit     int64
	total    int64
	reason   string
}

// Settle validates o, checks funds and debits the total once.
func (e *Engine) Settle(ctx context.Context, o Order) (Result, error) {
	p, err := e.price(o)
	if err != nil {
		return Result{}, err
	}

	release, err := e.leases.acquire(ctx, p.scope)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Canceled, "request canceled while waiting for a previous trade", err)
	}
	defer release()

	idem := strings.TrimSpace(o.IdempotencyKey)
	key := admissionKey{scope: p.scope, key: idem}
	if idem != "" {
		switch adm, prev := e.seen.admit(key, fingerprint(p)); adm {
		case replay:
			prev.Replayed = true
			return prev, nil
		case conflict:
			return Result{}, apperr.New(apperr.InvalidOrder, "idempotency key reused with a different order")
		case unknown:
			return Result{}, apperr.New(apperr.SettlementFailed, "a previous attempt with this idempotency key has an unknown outcome")
		case inFlight:
			return Result{}, apperr.New(apperr.SettlementFailed, "a trade with this idempotency key is already in flight")
		}
	}

	res, debitSent, err := e.settle(ctx, p)
	if idem != "" {
		switch {
		case err == nil:
			e.seen.complete(key, res)
		case debitSent:
			e.seen.poison(key)
		default:
			e.seen.release(key)
		}
	}
	return res, err
}

// settle runs under the user's lease. debitSent reports whether the ledger
// may have applied the debit even though an error came back.
func (e *Engine) settle(ctx context.Context, p priced) (_ Result, debitSent bool, _ error) {
	if e.opt.Policy == PolicyVerify {
		if err := e.verify(ctx, p); err != nil {
			return Result{}, false, err
		}
	}

	bal, err := e.ledger.Balance(ctx, p.scope)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, false, apperr.Wrap(apperr.Canceled, "request canceled while reading balance", ctx.Err())
		}
		return Result{}, false, apperr.Wrap(apperr.LedgerUnavailable, "could not read balance", err)
	}
	if bal.Bank < p.total {
		return Result{}, false, apperr.NotEnough(bal.Bank, p.total)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, false, apperr.Wrap(apperr.Canceled, "request canceled before debit", err)
	}

	// the debit must not be cut short once it is on the wire
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opt.DebitTimeout)
	defer cancel()
	if _, err := e.ledger.Debit(dctx, p.scope, p.total, p.reason); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			// the bank moved between read and debit
			return Result{}, false, apperr.Wrap(apperr.InsufficientFunds, "not enough money in bank", err)
		}
		definite := ledger.Definite(err)
		e.log.Error("debit failed",
			"scope", p.scope.String(), "symbol", p.symbol, "total", p.total,
			"definite", definite, "error", err)
		return Result{}, !definite, apperr.Wrap(apperr.SettlementFailed, "debit failed", err)
	}

	res := Result{
		SettlementID:     e.opt.NewID(),
		Symbol:           p.symbol,
		Quantity:         p.quantity,
		UnitPrice:        p.unit,
		TotalCost:        p.total,
		Reason:           p.reason,
		SettledAt:        e.opt.Now(),
		ProjectedBalance: bal.Project(-p.total),
	}
	e.log.Info("trade settled",
		"settlement_id", res.SettlementID, "scope", p.scope.String(),
		"symbol", p.symbol, "quantity", p.quantity, "unit_price", p.unit, "total", p.total)
	return res, false, nil
}

// price validates o and computes the integer unit price and total.
func (e *Engine) price(o Order) (priced, error) {
	scope := ledger.Scope{GuildID: strings.TrimSpace(o.GuildID), UserID: strings.TrimSpace(o.UserID)}
	if scope.UserID == "" {
		return priced{}, apperr.New(apperr.InvalidOrder, "Missing userId")
	}
	if scope.GuildID == "" {
		return priced{}, apperr.New(apperr.InvalidOrder, "Missing guildId")
	}
	if strings.TrimSpace(o.Symbol) == "" {
		return priced{}, apperr.New(apperr.InvalidOrder, "Missing symbol")
	}
	sym, ok := provider.NormalizeSymbol(o.Symbol)
	if !ok {
		return priced{}, apperr.Newf(apperr.InvalidOrder, "Invalid symbol %q", o.Symbol)
	}
	if o.Quantity <= 0 {
		return priced{}, apperr.New(apperr.InvalidOrder, "Invalid quantity (must be a positive integer)")
	}
	unit := o.UnitPrice.Round(0)
	if unit.LessThan(decimal.NewFromInt(1)) || unit.GreaterThan(maxTotal) {
		return priced{}, apperr.New(apperr.InvalidOrder, "Invalid unitPrice")
	}
	total := unit.Mul(decimal.NewFromInt(o.Quantity))
	if total.GreaterThan(maxTotal) {
		return priced{}, apperr.Newf(apperr.InvalidOrder, "total cost exceeds %d", ledger.MaxAmount)
	}

	reason := strings.TrimSpace(o.Reason)
	if reason == "" {
		reason = fmt.Sprintf("purchase of %d shares of %s", o.Quantity, sym)
	}
	return priced{
		scope:    scope,
		symbol:   sym,
		quantity: o.Quantity,
		unit:     unit.IntPart(),
		total:    total.IntPart(),
		reason:   reason,
	}, nil
}

// verify compares the rounded unit price to a live quote.
func (e *Engine) verify(ctx context.Context, p priced) error {
	live, err := e.prices.Price(ctx, p.symbol)
	if err != nil {
		return apperr.Wrap(apperr.ProviderError, "live price unavailable for "+p.symbol, err)
	}
	if live <= 0 {
		return apperr.Newf(apperr.ProviderError, "live price unavailable for %s", p.symbol)
	}
	l := decimal.NewFromFloat(live)
	drift := decimal.NewFromInt(p.unit).Sub(l).Abs().Div(l)
	if drift.GreaterThan(decimal.NewFromFloat(e.opt.Tolerance)) {
		return apperr.Newf(apperr.PriceDrift, "price moved: confirmed %d, live %s", p.unit, l.StringFixed(2))
	}
	return nil
}

func fingerprint(p priced) string {
	return fmt.Sprintf("%s|%d|%d", p.symbol, p.quantity, p.unit)
}
