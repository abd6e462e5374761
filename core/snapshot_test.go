package core

import (
	"context"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	prices map[string]*OraclePrice
	err    error
}

func (s *staticResolver) Resolve(_ context.Context, banks []*Bank) (map[string]*OraclePrice, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]*OraclePrice, len(banks))
	for _, b := range banks {
		if p, ok := s.prices[b.Key()]; ok {
			out[b.Key()] = p
		}
	}
	return out, nil
}

func TestLoadSnapshot(t *testing.T) {
	clk := clock.NewMock()
	clk.Add(time.Duration(SECONDS_PER_YEAR) * time.Second)

	f := newLendingFixture(100)
	banks := []*Bank{f.usdc, f.sol}

	snapshot, err := LoadSnapshot(context.Background(), clk, &staticResolver{prices: f.prices}, banks)
	require.NoError(t, err)
	assert.Equal(t, int64(SECONDS_PER_YEAR), snapshot.Timestamp)

	list := snapshot.BankList()
	require.Len(t, list, 2)
	assert.Less(t, list[0].Key(), list[1].Key())

	r, err := snapshot.NewRiskEngine(f.account)
	require.NoError(t, err)
	value, err := r.ComputeAccountValue()
	require.NoError(t, err)
	assertNear(t, "800", value, "0.000001")

	accrued, err := snapshot.WithAccruedInterest(NopLog())
	require.NoError(t, err)
	assert.True(t, accrued.Banks[f.usdc.Key()].LiabilityShareValue.GreaterThan(ONE))
	assert.True(t, f.usdc.LiabilityShareValue.Equal(ONE), "bank mutated")

	// debt grew with a year of interest
	r, err = accrued.NewRiskEngine(f.account)
	require.NoError(t, err)
	grown, err := r.ComputeAccountValue()
	require.NoError(t, err)
	assert.True(t, grown.LessThan(value))

	assert.Empty(t, snapshot.EmodePairs())
}

func TestLoadSnapshot_ResolverError(t *testing.T) {
	boom := errors.New("boom")
	_, err := LoadSnapshot(context.Background(), clock.NewMock(), &staticResolver{err: boom}, nil)
	assert.ErrorIs(t, err, boom)
}
