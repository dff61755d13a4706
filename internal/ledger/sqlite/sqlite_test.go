package sqlite_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"stockdesk/internal/ledger"
	"stockdesk/internal/ledger/sqlite"
)

var scope = ledger.Scope{GuildID: "g1", UserID: "u1"}

func open(t *testing.T, seed int64) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(t.Context(), filepath.Join(t.TempDir(), "ledger.db"), seed)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SeedsOnFirstRead(t *testing.T) {
	t.Parallel()

	s := open(t, 1000)

	b, err := s.Balance(t.Context(), scope)
	require.NoError(t, err)
	require.Equal(t, int64(1000), b.Bank)
	require.Equal(t, int64(1000), b.Total)
}

func TestStore_Debit(t *testing.T) {
	t.Parallel()

	// Arrange
	s := open(t, 1000)

	// Act
	b, err := s.Debit(t.Context(), scope, 450, "purchase of 3 shares of AAPL")

	// Assert
	require.NoError(t, err)
	require.Equal(t, int64(550), b.Bank)
	got, err := s.Balance(t.Context(), scope)
	require.NoError(t, err)
	require.Equal(t, int64(550), got.Bank)

	entries, err := s.Entries(t.Context(), scope)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(-450), entries[0].Delta)
	require.Equal(t, "purchase of 3 shares of AAPL", entries[0].Reason)
}

func TestStore_Debit_RefusesOverdraft(t *testing.T) {
	t.Parallel()

	s := open(t, 100)

	_, err := s.Debit(t.Context(), scope, 101, "x")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	b, err := s.Balance(t.Context(), scope)
	require.NoError(t, err)
	require.Equal(t, int64(100), b.Bank)
	entries, err := s.Entries(t.Context(), scope)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStore_Credit(t *testing.T) {
	t.Parallel()

	s := open(t, 0)

	b, err := s.Credit(t.Context(), scope, 250, "grant")
	require.NoError(t, err)
	require.Equal(t, int64(250), b.Bank)

	_, err = s.Credit(t.Context(), scope, -1, "bad")
	require.ErrorIs(t, err, ledger.ErrRejected)
}

func TestStore_ScopesAreIndependent(t *testing.T) {
	t.Parallel()

	s := open(t, 100)
	other := ledger.Scope{GuildID: "g2", UserID: "u1"}

	_, err := s.Debit(t.Context(), scope, 100, "x")
	require.NoError(t, err)

	b, err := s.Balance(t.Context(), other)
	require.NoError(t, err)
	require.Equal(t, int64(100), b.Bank)
}

func TestStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	t.Parallel()

	// Arrange
	s := open(t, 1000)
	const workers = 10

	// Act: ten debits of 150 against 1000; at most six fit
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Debit(t.Context(), scope, 150, "x"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Assert
	require.Equal(t, 6, ok)
	b, err := s.Balance(t.Context(), scope)
	require.NoError(t, err)
	require.Equal(t, int64(100), b.Bank)
}
