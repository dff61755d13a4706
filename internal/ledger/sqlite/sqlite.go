// Package sqlite is a local ledger.Ledger for development and tests. Debits
// are conditional so the bank balance can never go negative.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"stockdesk/internal/ledger"
)

var _ ledger.Ledger = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS balances (
	guild_id   TEXT    NOT NULL,
	user_id    TEXT    NOT NULL,
	cash       INTEGER NOT NULL DEFAULT 0,
	bank       INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (guild_id, user_id)
);
CREATE TABLE IF NOT EXISTS entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id   TEXT    NOT NULL,
	user_id    TEXT    NOT NULL,
	delta      INTEGER NOT NULL,
	reason     TEXT    NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Store keeps balances in a SQLite file.
type Store struct {
	db *sql.DB
	// seed is the bank balance given to a user on first sight.
	seed int64
	now  func() time.Time
}

// Entry is one journal row.
type Entry struct {
	Delta     int64
	Reason    string
	CreatedAt time.Time
}

// Open opens (or creates) the database at path. Users unknown to the store
// start with seed in the bank.
func Open(ctx context.Context, path string, seed int64) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA synchronous = NORMAL;", "PRAGMA busy_timeout = 5000;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, seed: seed, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensure(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, scope ledger.Scope) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO balances (guild_id, user_id, cash, bank, updated_at) VALUES (?, ?, 0, ?, ?)`,
		scope.GuildID, scope.UserID, s.seed, s.now().UnixMilli())
	return err
}

// Balance returns the stored balance, seeding the row on first read.
func (s *Store) Balance(ctx context.Context, scope ledger.Scope) (ledger.Balance, error) {
	if err := scope.Validate(); err != nil {
		return ledger.Balance{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	if err := s.ensure(ctx, s.db, scope); err != nil {
		return ledger.Balance{}, fmt.Errorf("seeding balance: %w", err)
	}
	return s.read(ctx, s.db, scope)
}

func (s *Store) read(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, scope ledger.Scope) (ledger.Balance, error) {
	var b ledger.Balance
	err := q.QueryRowContext(ctx,
		`SELECT cash, bank FROM balances WHERE guild_id = ? AND user_id = ?`,
		scope.GuildID, scope.UserID).Scan(&b.Cash, &b.Bank)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("reading balance: %w", err)
	}
	b.Total = b.Cash + b.Bank
	b.ObservedAt = s.now()
	return b, nil
}

// Debit removes amount from bank only if the bank covers it.
func (s *Store) Debit(ctx context.Context, scope ledger.Scope, amount int64, reason string) (ledger.Balance, error) {
	if err := scope.Validate(); err != nil {
		return ledger.Balance{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	if amount <= 0 || amount > ledger.MaxAmount {
		return ledger.Balance{}, fmt.Errorf("%w: amount %d out of range", ledger.ErrRejected, amount)
	}
	return s.apply(ctx, scope, -amount, reason)
}

// Credit adds amount to bank.
func (s *Store) Credit(ctx context.Context, scope ledger.Scope, amount int64, reason string) (ledger.Balance, error) {
	if err := scope.Validate(); err != nil {
		return ledger.Balance{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	if amount <= 0 || amount > ledger.MaxAmount {
		return ledger.Balance{}, fmt.Errorf("%w: amount %d out of range", ledger.ErrRejected, amount)
	}
	return s.apply(ctx, scope, amount, reason)
}

func (s *Store) apply(ctx context.Context, scope ledger.Scope, delta int64, reason string) (ledger.Balance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.ensure(ctx, tx, scope); err != nil {
		return ledger.Balance{}, fmt.Errorf("seeding balance: %w", err)
	}
	now := s.now().UnixMilli()
	res, err := tx.ExecContext(ctx,
		`UPDATE balances SET bank = bank + ?, updated_at = ? WHERE guild_id = ? AND user_id = ? AND bank + ? >= 0`,
		delta, now, scope.GuildID, scope.UserID, delta)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("updating balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("updating balance: %w", err)
	}
	if n == 0 {
		return ledger.Balance{}, ledger.ErrInsufficientFunds
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (guild_id, user_id, delta, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		scope.GuildID, scope.UserID, delta, reason, now); err != nil {
		return ledger.Balance{}, fmt.Errorf("journaling: %w", err)
	}
	b, err := s.read(ctx, tx, scope)
	if err != nil {
		return ledger.Balance{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Balance{}, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// Entries returns the journal for scope, oldest first.
func (s *Store) Entries(ctx context.Context, scope ledger.Scope) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT delta, reason, created_at FROM entries WHERE guild_id = ? AND user_id = ? ORDER BY id`,
		scope.GuildID, scope.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.Delta, &e.Reason, &ms); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
