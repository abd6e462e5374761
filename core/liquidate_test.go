package core

import (
	"testing"

	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLiquidationPriceForBank(t *testing.T) {
	f := newLendingFixture(100)
	r := f.engine(t)

	t.Run("collateral", func(t *testing.T) {
		price, err := r.ComputeLiquidationPriceForBank(f.sol.Address)
		require.NoError(t, err)
		require.NotNil(t, price)
		assertNear(t, "26.666666", *price, "0.00001")
	})

	t.Run("liability", func(t *testing.T) {
		price, err := r.ComputeLiquidationPriceForBank(f.usdc.Address)
		require.NoError(t, err)
		require.NotNil(t, price)
		assertNear(t, "3.75", *price, "0.000001")
	})

	t.Run("confidence widens the band", func(t *testing.T) {
		g := newLendingFixture(100)
		g.prices[g.sol.Key()] = withConfidence("100", "2")
		price, err := g.engine(t).ComputeLiquidationPriceForBank(g.sol.Address)
		require.NoError(t, err)
		require.NotNil(t, price)
		assertNear(t, "28.666666", *price, "0.00001")
	})

	t.Run("hypothetical amount", func(t *testing.T) {
		price, err := r.ComputeLiquidationPriceForBankAmount(f.sol.Address, true, fixed.FromInt(20))
		require.NoError(t, err)
		require.NotNil(t, price)
		assertNear(t, "13.333333", *price, "0.00001")
	})

	t.Run("no position", func(t *testing.T) {
		price, err := r.ComputeLiquidationPriceForBank(testKey(99))
		require.NoError(t, err)
		assert.Nil(t, price)
	})

	t.Run("no debt", func(t *testing.T) {
		account := &Account{Balances: []*Balance{assetBalance(f.sol, 10_000_000_000)}}
		r, err := NewRiskEngine(account, f.banks, f.prices)
		require.NoError(t, err)

		price, err := r.ComputeLiquidationPriceForBank(f.sol.Address)
		require.NoError(t, err)
		assert.Nil(t, price)
	})

	t.Run("zero amount", func(t *testing.T) {
		price, err := r.ComputeLiquidationPriceForBankAmount(f.usdc.Address, false, fixed.Zero)
		require.NoError(t, err)
		assert.Nil(t, price)
	})

	t.Run("negative price", func(t *testing.T) {
		// a second debt already exceeds the remaining collateral
		g := newLendingFixture(100)
		other := newTestBank(8, 6, collateralConfig("0.75", "1", "1.25", "1"))
		other.TotalAssetShares = fixed.FromInt(10_000_000_000)
		g.banks[other.Key()] = other
		g.prices[other.Key()] = flat(1)
		g.account.Balances = append(g.account.Balances, liabilityBalance(other, 1_000_000_000))

		price, err := g.engine(t).ComputeLiquidationPriceForBank(g.usdc.Address)
		require.NoError(t, err)
		assert.Nil(t, price)
	})
}

func TestComputeMaxLiquidatableAssetAmount(t *testing.T) {
	f := newLendingFixture(20)
	r := f.engine(t)

	amount, err := r.ComputeMaxLiquidatableAssetAmount(f.sol.Address, f.usdc.Address)
	require.NoError(t, err)
	assertNear(t, "9.5", amount, "0.000001")

	t.Run("healthy account", func(t *testing.T) {
		g := newLendingFixture(100)
		amount, err := g.engine(t).ComputeMaxLiquidatableAssetAmount(g.sol.Address, g.usdc.Address)
		require.NoError(t, err)
		assert.True(t, amount.IsZero(), "got %s", amount)
	})
}

func TestQuoteLiquidation(t *testing.T) {
	f := newLendingFixture(20)
	r := f.engine(t)

	quote, err := r.QuoteLiquidation(f.sol.Address, f.usdc.Address, ONE)
	require.NoError(t, err)

	assertNear(t, "19.5", quote.LiquidatorLiabilityAmount, "0.000001")
	assertNear(t, "19", quote.LiquidateeLiabilityAmount, "0.000001")
	assertNear(t, "0.5", quote.InsuranceFundFee, "0.000001")
	assertNear(t, "-50", quote.LiquidateePreHealth, "0.000001")
	assert.Equal(t, f.sol.Address, quote.AssetBank)

	tests := []struct {
		name   string
		engine *RiskEngine
		asset  []byte
		amount fixed.I80F48
		err    error
	}{
		{name: "same bank", engine: r, asset: []byte{2}, amount: ONE, err: ErrIllegalLiquidation},
		{name: "non-positive amount", engine: r, asset: []byte{1}, amount: fixed.Zero, err: ErrIllegalLiquidation},
		{name: "above balance", engine: r, asset: []byte{1}, amount: fixed.FromInt(11), err: ErrIllegalLiquidation},
		{name: "healthy", engine: newLendingFixture(100).engine(t), asset: []byte{1}, amount: ONE, err: ErrAccountNotUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.engine.QuoteLiquidation(testKey(tt.asset[0]), f.usdc.Address, tt.amount)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSimulateLiquidation(t *testing.T) {
	f := newLendingFixture(20)
	r := f.engine(t)

	quote, err := r.QuoteLiquidation(f.sol.Address, f.usdc.Address, ONE)
	require.NoError(t, err)

	after, health, err := r.SimulateLiquidation(quote)
	require.NoError(t, err)
	assertNear(t, "-46", health, "0.0001")

	sol := after.Account.GetBalance(f.sol.Address)
	assertNear(t, "9000000000", sol.AssetShares, "0.000001")
	usdc := after.Account.GetBalance(f.usdc.Address)
	assertNear(t, "181000000", usdc.LiabilityShares, "0.01")
	assertNear(t, "481000000", after.banks[f.usdc.Key()].TotalLiabilityShares, "0.01")

	assertNear(t, "10000000000", f.account.GetBalance(f.sol.Address).AssetShares, "0.000001")
	assertNear(t, "500000000", f.usdc.TotalLiabilityShares, "0.000001")

	tests := []struct {
		name   string
		mutate func(q *LiquidationQuote)
		err    error
	}{
		{name: "no improvement", mutate: func(q *LiquidationQuote) { q.LiquidateePreHealth = fixed.Zero }, err: ErrIllegalLiquidation},
		{name: "unknown bank", mutate: func(q *LiquidationQuote) { q.AssetBank = testKey(9) }, err: ErrBankNotFound},
		{name: "same bank", mutate: func(q *LiquidationQuote) { q.AssetBank = q.LiabilityBank }, err: ErrIllegalLiquidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := *quote
			tt.mutate(&q)
			_, _, err := r.SimulateLiquidation(&q)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLiquidationConditions(t *testing.T) {
	f := newLendingFixture(20)
	r := f.engine(t)

	t.Run("pre", func(t *testing.T) {
		health, err := r.CheckPreLiquidationConditionAndGetAccountHealth(f.usdc.Address)
		require.NoError(t, err)
		assertNear(t, "-50", health, "0.000001")

		_, err = r.CheckPreLiquidationConditionAndGetAccountHealth(f.sol.Address)
		assert.ErrorIs(t, err, ErrIllegalLiquidation)

		_, err = r.CheckPreLiquidationConditionAndGetAccountHealth(testKey(99))
		assert.ErrorIs(t, err, ErrBalanceNotFound)

		_, err = newLendingFixture(100).engine(t).CheckPreLiquidationConditionAndGetAccountHealth(f.usdc.Address)
		assert.ErrorIs(t, err, ErrAccountNotUnhealthy)
	})

	t.Run("post", func(t *testing.T) {
		// one SOL seized, 19 USDC of debt forgiven
		account := &Account{Balances: []*Balance{
			assetBalance(f.sol, 9_000_000_000),
			liabilityBalance(f.usdc, 181_000_000),
		}}
		after, err := NewRiskEngine(account, f.banks, f.prices)
		require.NoError(t, err)

		health, err := after.CheckPostLiquidationConditionAndGetAccountHealth(f.usdc.Address, fixed.FromInt(-50))
		require.NoError(t, err)
		assertNear(t, "-46", health, "0.0001")

		_, err = after.CheckPostLiquidationConditionAndGetAccountHealth(f.usdc.Address, fixed.FromInt(-40))
		assert.ErrorIs(t, err, ErrIllegalLiquidation)
	})

	t.Run("post healthy", func(t *testing.T) {
		g := newLendingFixture(100)
		_, err := g.engine(t).CheckPostLiquidationConditionAndGetAccountHealth(g.usdc.Address, fixed.FromInt(-50))
		assert.ErrorIs(t, err, ErrIllegalLiquidation)
	})
}
