// Package ledger defines the balance ledger the settlement engine debits.
// The ledger is the system of record; its balances are never second-guessed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxAmount is the largest amount a ledger call may carry. UnbelievaBoat is
// a JSON API, so amounts must stay exact as IEEE doubles.
const MaxAmount int64 = 1<<53 - 1

var (
	// ErrInsufficientFunds is a ledger-side refusal of a conditional debit.
	// Nothing was debited.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRejected means the ledger definitely refused the call (bad
	// request, unknown user, auth). Nothing was debited.
	ErrRejected = errors.New("rejected by ledger")
)

// Definite reports whether err proves the debit did not land. Transport
// failures and server errors are indeterminate.
func Definite(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrRejected)
}

// Scope keys funds and trades: one user inside one guild.
type Scope struct {
	GuildID string
	UserID  string
}

func (s Scope) String() string { return s.GuildID + "/" + s.UserID }

// Validate checks both ids are present.
func (s Scope) Validate() error {
	switch {
	case strings.TrimSpace(s.UserID) == "":
		return fmt.Errorf("missing userId")
	case strings.TrimSpace(s.GuildID) == "":
		return fmt.Errorf("missing guildId")
	}
	return nil
}

// Balance is the ledger's view of a user's funds.
type Balance struct {
	Bank       int64     `json:"bank"`
	Cash       int64     `json:"cash"`
	Total      int64     `json:"total"`
	ObservedAt time.Time `json:"observedAt"`
	// Projected marks a locally computed balance that the ledger has not
	// confirmed.
	Projected bool `json:"projected"`
	// Degraded marks a balance where cash could not be read; Cash is zero
	// and Total covers bank only.
	Degraded bool `json:"degraded,omitempty"`
}

// Project returns the balance expected after adding delta to bank.
func (b Balance) Project(delta int64) Balance {
	b.Bank += delta
	b.Total += delta
	b.Projected = true
	return b
}

// Ledger reads and debits balances.
//
//go:generate mockgen -package=ledger -destination=mock_ledger.go -source=ledger.go Ledger
type Ledger interface {
	Balance(ctx context.Context, scope Scope) (Balance, error)
	// Debit removes amount from the bank balance in one call and returns
	// the resulting balance when the ledger reports it.
	Debit(ctx context.Context, scope Scope, amount int64, reason string) (Balance, error)
}
