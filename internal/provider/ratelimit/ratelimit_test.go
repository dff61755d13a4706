package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"stockdesk/internal/provider"
)

type countingProvider struct{ calls int }

func (c *countingProvider) Name() string { return "counting" }
func (c *countingProvider) Fetch(_ context.Context, symbols []string) ([]provider.Quote, error) {
	c.calls++
	out := make([]provider.Quote, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, provider.Quote{Symbol: s})
	}
	return out, nil
}

func TestWrap_SelectsPolicy(t *testing.T) {
	t.Parallel()

	base := &countingProvider{}
	require.Same(t, provider.Provider(base), Wrap(base, 0, 0, 0))

	rpm, ok := Wrap(base, 60, 3, time.Second).(*Provider)
	require.True(t, ok)
	require.Equal(t, 3, rpm.L.Burst())
	require.InDelta(t, 1.0, float64(rpm.L.Limit()), 1e-9)

	mi, ok := Wrap(base, 0, 0, 2*time.Second).(*Provider)
	require.True(t, ok)
	require.Equal(t, 1, mi.L.Burst())
	require.InDelta(t, 0.5, float64(mi.L.Limit()), 1e-9)
	require.Equal(t, "counting", mi.Name())
}

func TestProvider_BurstThenBlocks(t *testing.T) {
	t.Parallel()

	// Arrange: one call per hour, burst of one
	base := &countingProvider{}
	p := MinInterval(base, time.Hour)

	// Act: the first call is free
	qs, err := p.Fetch(t.Context(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, qs, 1)

	// Act: the second one would wait and the deadline is short
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Fetch(ctx, []string{"AAPL"})

	// Assert
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 1, base.calls)
}
