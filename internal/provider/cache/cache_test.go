package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"stockdesk/internal/provider"
)

type stubSearcher struct {
	calls int
	err   error
}

func (s *stubSearcher) Search(_ context.Context, query string, limit int) ([]provider.Candidate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []provider.Candidate{{Symbol: query + strconv.Itoa(s.calls)}}, nil
}

func TestSearcher_HitWithinTTL(t *testing.T) {
	t.Parallel()

	// Arrange
	stub := &stubSearcher{}
	c := &Searcher{S: stub, TTL: time.Minute}

	// Act: same query modulo case and spaces
	first, err := c.Search(t.Context(), "Apple", 10)
	require.NoError(t, err)
	second, err := c.Search(t.Context(), " apple ", 10)
	require.NoError(t, err)

	// Assert
	require.Equal(t, first, second)
	require.Equal(t, 1, stub.calls)

	// a different limit is a different key
	_, err = c.Search(t.Context(), "apple", 5)
	require.NoError(t, err)
	require.Equal(t, 2, stub.calls)
}

func TestSearcher_ExpiredServedOnError(t *testing.T) {
	t.Parallel()

	// Arrange
	stub := &stubSearcher{}
	c := &Searcher{S: stub, TTL: time.Nanosecond}
	first, err := c.Search(t.Context(), "msft", 10)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// Act
	stub.err = errors.New("upstream down")
	got, err := c.Search(t.Context(), "msft", 10)

	// Assert
	require.NoError(t, err)
	require.Equal(t, first, got)

	// nothing cached for this one
	_, err = c.Search(t.Context(), "tsla", 10)
	require.Error(t, err)
}

func TestSearcher_MaxItems(t *testing.T) {
	t.Parallel()

	c := &Searcher{S: &stubSearcher{}, TTL: time.Hour, MaxItems: 2}
	for _, q := range []string{"a", "b", "c", "d"} {
		_, err := c.Search(t.Context(), q, 10)
		require.NoError(t, err)
	}
	require.Equal(t, 2, c.Len())
}

func TestSearcher_NoTTLPassesThrough(t *testing.T) {
	t.Parallel()

	stub := &stubSearcher{}
	c := &Searcher{S: stub}
	_, _ = c.Search(t.Context(), "x", 1)
	_, _ = c.Search(t.Context(), "x", 1)
	require.Equal(t, 2, stub.calls)
	require.Equal(t, 0, c.Len())
}
