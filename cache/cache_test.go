package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// counter returns batches priced at the call count.
func counter(calls *atomic.Int32) ComputeFunc {
	return func(context.Context) (Prices, error) {
		n := calls.Add(1)
		return Prices{"bank": core.NewFlatOraclePrice(fixed.FromInt(int64(n)), 0)}, nil
	}
}

func priceOf(t *testing.T, p Prices) int64 {
	t.Helper()
	require.Contains(t, p, "bank")
	return int64(p["bank"].PriceRealtime.Price.Float64())
}

func newCache(t *testing.T, clk clock.Clock, size int) *PriceCache {
	c, err := New(size, WithClock(clk))
	require.NoError(t, err)
	return c
}

func TestPriceCache_GetOrCompute(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		advance  time.Duration
		served   int64
		computes int32
	}{
		{name: "fresh", advance: 10 * time.Second, served: 1, computes: 1},
		{name: "stale served while refreshing", advance: 20 * time.Second, served: 1, computes: 2},
		{name: "expired", advance: 26 * time.Second, served: 2, computes: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewMock()
			c := newCache(t, clk, 0)
			var calls atomic.Int32

			p, err := c.GetOrCompute(ctx, "k", counter(&calls))
			require.NoError(t, err)
			assert.Equal(t, int64(1), priceOf(t, p))

			clk.Add(tt.advance)
			p, err = c.GetOrCompute(ctx, "k", counter(&calls))
			require.NoError(t, err)
			assert.Equal(t, tt.served, priceOf(t, p))

			c.Wait()
			assert.Equal(t, tt.computes, calls.Load())
		})
	}
}

func TestPriceCache_StaleRefreshedOnce(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := newCache(t, clk, 0)

	var calls atomic.Int32
	_, err := c.GetOrCompute(ctx, "k", counter(&calls))
	require.NoError(t, err)

	release := make(chan struct{})
	blocked := func(ctx context.Context) (Prices, error) {
		<-release
		return counter(&calls)(ctx)
	}

	clk.Add(12 * time.Second)
	for i := 0; i < 3; i++ {
		p, err := c.GetOrCompute(ctx, "k", blocked)
		require.NoError(t, err)
		assert.Equal(t, int64(1), priceOf(t, p))
	}
	close(release)
	c.Wait()
	assert.Equal(t, int32(2), calls.Load())

	// the refreshed entry is fresh again
	p, err := c.GetOrCompute(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(2), priceOf(t, p))
}

func TestPriceCache_GetFresh(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := newCache(t, clk, 0)
	var calls atomic.Int32

	_, err := c.GetFresh(ctx, "k", counter(&calls))
	require.NoError(t, err)

	clk.Add(5 * time.Second)
	p, err := c.GetFresh(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(1), priceOf(t, p))

	clk.Add(6 * time.Second)
	p, err = c.GetFresh(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(2), priceOf(t, p))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPriceCache_ComputeError(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, clock.NewMock(), 0)
	boom := errors.New("boom")

	_, err := c.GetOrCompute(ctx, "k", func(context.Context) (Prices, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestPriceCache_FailedRefreshKeepsEntry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := newCache(t, clk, 0)
	var calls atomic.Int32

	_, err := c.GetOrCompute(ctx, "k", counter(&calls))
	require.NoError(t, err)

	clk.Add(12 * time.Second)
	p, err := c.GetOrCompute(ctx, "k", func(context.Context) (Prices, error) { return nil, errors.New("down") })
	require.NoError(t, err)
	assert.Equal(t, int64(1), priceOf(t, p))
	c.Wait()

	p, err = c.GetOrCompute(ctx, "k", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(1), priceOf(t, p))
}

func TestPriceCache_Bounded(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, clock.NewMock(), 2)
	var calls atomic.Int32

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.GetOrCompute(ctx, k, counter(&calls))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	// "a" was evicted
	_, err := c.GetOrCompute(ctx, "a", counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}
