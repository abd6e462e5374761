package core

import (
	"testing"

	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	solTag EmodeTag = 1
	lstTag EmodeTag = 2
)

type emodeFixture struct {
	sol, jito, msol, usdc *Bank
	banks                 map[string]*Bank
	prices                map[string]*OraclePrice
}

func newEmodeFixture() *emodeFixture {
	sol := newTestBank(1, 9, collateralConfig("0.5", "0.75", "1.5", "1.25"))
	sol.Emode = EmodeSettings{
		EmodeTag: solTag,
		Entries: []EmodeEntry{
			{CollateralBankEmodeTag: lstTag, AssetWeightInit: dec("0.9"), AssetWeightMaint: dec("0.95")},
			{},
		},
	}
	sol.TotalAssetShares = fixed.FromInt(1_000_000_000_000)

	jito := newTestBank(5, 9, collateralConfig("0.5", "0.75", "1.5", "1.25"))
	jito.Emode.EmodeTag = lstTag

	msol := newTestBank(6, 9, collateralConfig("0.5", "0.75", "1.5", "1.25"))
	msol.Emode.EmodeTag = lstTag

	usdc := newTestBank(2, 6, collateralConfig("0.75", "1", "1.25", "1"))

	return &emodeFixture{
		sol:   sol,
		jito:  jito,
		msol:  msol,
		usdc:  usdc,
		banks: bankMap(sol, jito, msol, usdc),
		prices: priceMap(
			priceEntry{sol, flat(100)},
			priceEntry{jito, flat(110)},
			priceEntry{msol, flat(120)},
			priceEntry{usdc, flat(1)},
		),
	}
}

func (f *emodeFixture) list() []*Bank {
	return []*Bank{f.sol, f.jito, f.msol, f.usdc}
}

func (f *emodeFixture) keys() []solana.PublicKey {
	return []solana.PublicKey{f.sol.Address, f.jito.Address, f.msol.Address, f.usdc.Address}
}

func TestGetEmodePairs(t *testing.T) {
	f := newEmodeFixture()

	pairs := GetEmodePairs(f.list())
	require.Len(t, pairs, 1)

	pair := pairs[0]
	assert.Equal(t, f.sol.Address, pair.LiabilityBank)
	assert.Equal(t, solTag, pair.LiabilityBankTag)
	assert.Equal(t, lstTag, pair.CollateralBankTag)
	assert.Equal(t, []solana.PublicKey{f.jito.Address, f.msol.Address}, pair.CollateralBanks)
	assert.True(t, pair.AssetWeightInit.Equal(dec("0.9")))
}

func TestComputeActiveEmodePairs(t *testing.T) {
	f := newEmodeFixture()
	pairs := GetEmodePairs(f.list())

	tests := []struct {
		name        string
		liabilities []solana.PublicKey
		collateral  []solana.PublicKey
		active      int
	}{
		{name: "matching", liabilities: []solana.PublicKey{f.sol.Address}, collateral: []solana.PublicKey{f.jito.Address}, active: 1},
		{name: "no liabilities", collateral: []solana.PublicKey{f.jito.Address}},
		{name: "untagged liability", liabilities: []solana.PublicKey{f.sol.Address, f.usdc.Address}, collateral: []solana.PublicKey{f.jito.Address}},
		{name: "unrelated collateral", liabilities: []solana.PublicKey{f.sol.Address}, collateral: []solana.PublicKey{f.usdc.Address}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active := ComputeActiveEmodePairs(pairs, tt.liabilities, tt.collateral)
			assert.Len(t, active, tt.active)
		})
	}
}

func TestComputeEmodeImpacts(t *testing.T) {
	f := newEmodeFixture()
	pairs := GetEmodePairs(f.list())

	t.Run("emode off", func(t *testing.T) {
		impacts := ComputeEmodeImpacts(pairs, nil, []solana.PublicKey{f.jito.Address}, f.keys())

		sol := impacts[f.sol.Key()]
		require.NotNil(t, sol.BorrowImpact)
		assert.Equal(t, EmodeImpactActivate, sol.BorrowImpact.Status)
		require.NotNil(t, sol.BorrowImpact.ActivePair)
		assert.True(t, sol.BorrowImpact.ActivePair.AssetWeightInit.Equal(dec("0.9")))
		assert.Nil(t, sol.SupplyImpact)

		jito := impacts[f.jito.Key()]
		assert.Nil(t, jito.BorrowImpact)
		require.NotNil(t, jito.WithdrawAllImpact)
		assert.Equal(t, EmodeImpactInactive, jito.WithdrawAllImpact.Status)

		msol := impacts[f.msol.Key()]
		assert.Equal(t, EmodeImpactInactive, msol.BorrowImpact.Status)
		require.NotNil(t, msol.SupplyImpact)
		assert.Equal(t, EmodeImpactInactive, msol.SupplyImpact.Status)

		assert.Equal(t, EmodeImpactInactive, impacts[f.usdc.Key()].BorrowImpact.Status)
	})

	t.Run("emode on", func(t *testing.T) {
		impacts := ComputeEmodeImpacts(pairs, []solana.PublicKey{f.sol.Address}, []solana.PublicKey{f.jito.Address}, f.keys())

		sol := impacts[f.sol.Key()]
		assert.Equal(t, EmodeImpactExtend, sol.BorrowImpact.Status)
		require.NotNil(t, sol.RepayAllImpact)
		assert.Equal(t, EmodeImpactRemove, sol.RepayAllImpact.Status)
		assert.Nil(t, sol.RepayAllImpact.ActivePair)

		assert.Equal(t, EmodeImpactRemove, impacts[f.jito.Key()].WithdrawAllImpact.Status)

		msol := impacts[f.msol.Key()]
		assert.Equal(t, EmodeImpactRemove, msol.BorrowImpact.Status)
		assert.Equal(t, EmodeImpactExtend, msol.SupplyImpact.Status)

		assert.Equal(t, EmodeImpactRemove, impacts[f.usdc.Key()].BorrowImpact.Status)
	})
}

func TestComputeEmodeImpacts_BorrowStatus(t *testing.T) {
	f := newEmodeFixture()
	bonk := testKey(7)
	lst := []solana.PublicKey{f.jito.Address, f.msol.Address}
	pairs := append(GetEmodePairs(f.list()),
		EmodePair{CollateralBanks: lst, CollateralBankTag: lstTag, LiabilityBank: bonk, LiabilityBankTag: 3, AssetWeightInit: dec("0.8"), AssetWeightMaint: dec("0.85")},
		EmodePair{CollateralBanks: lst, CollateralBankTag: lstTag, LiabilityBank: f.usdc.Address, LiabilityBankTag: EmodeTagUnset, AssetWeightInit: dec("0.95"), AssetWeightMaint: dec("0.97")},
	)
	all := append(f.keys(), bonk)

	tests := []struct {
		name        string
		liabilities []solana.PublicKey
		bank        solana.PublicKey
		status      EmodeImpactStatus
	}{
		{name: "new tag lowers weight", liabilities: []solana.PublicKey{f.sol.Address}, bank: bonk, status: EmodeImpactReduce},
		{name: "unset tag while on", liabilities: []solana.PublicKey{f.sol.Address}, bank: f.usdc.Address, status: EmodeImpactRemove},
		{name: "unset tag while off", bank: f.usdc.Address, status: EmodeImpactInactive},
		{name: "tagged while off", bank: bonk, status: EmodeImpactActivate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			impacts := ComputeEmodeImpacts(pairs, tt.liabilities, []solana.PublicKey{f.jito.Address}, all)
			impact := impacts[tt.bank.String()]
			require.NotNil(t, impact.BorrowImpact)
			assert.Equal(t, tt.status, impact.BorrowImpact.Status)
		})
	}

	t.Run("supply only for idle collateral banks", func(t *testing.T) {
		impacts := ComputeEmodeImpacts(pairs, []solana.PublicKey{f.sol.Address}, []solana.PublicKey{f.jito.Address}, all)
		assert.Nil(t, impacts[f.jito.Key()].SupplyImpact)
		assert.Nil(t, impacts[f.sol.Key()].SupplyImpact)
		assert.Nil(t, impacts[bonk.String()].SupplyImpact)
		require.NotNil(t, impacts[f.msol.Key()].SupplyImpact)
		assert.Nil(t, impacts[f.msol.Key()].WithdrawAllImpact)
		assert.Nil(t, impacts[f.msol.Key()].RepayAllImpact)
	})
}

func TestReconcileEmode(t *testing.T) {
	first := newTestBank(10, 9, collateralConfig("0.5", "0.75", "1.5", "1.25"))
	first.Emode = EmodeSettings{EmodeTag: 1, Entries: []EmodeEntry{
		{CollateralBankEmodeTag: 3, Flags: EmodeAppliesToIsolated, AssetWeightInit: dec("0.7"), AssetWeightMaint: dec("0.8")},
		{CollateralBankEmodeTag: 2, Flags: EmodeAppliesToIsolated, AssetWeightInit: dec("0.8"), AssetWeightMaint: dec("0.9")},
	}}
	second := newTestBank(11, 9, collateralConfig("0.5", "0.75", "1.5", "1.25"))
	second.Emode = EmodeSettings{EmodeTag: 4, Entries: []EmodeEntry{
		{CollateralBankEmodeTag: 2, AssetWeightInit: dec("0.85"), AssetWeightMaint: dec("0.88")},
	}}
	untagged := newTestBank(12, 6, collateralConfig("0.5", "0.75", "1.5", "1.25"))

	t.Run("single bank sorted by tag", func(t *testing.T) {
		config := ReconcileEmode([]*Bank{first})
		require.Len(t, config.Entries, 2)
		assert.Equal(t, EmodeTag(2), config.Entries[0].CollateralBankEmodeTag)
		assert.Equal(t, EmodeTag(3), config.Entries[1].CollateralBankEmodeTag)
	})

	t.Run("intersection", func(t *testing.T) {
		config := ReconcileEmode([]*Bank{first, second})
		require.Len(t, config.Entries, 1)

		entry := config.Entries[0]
		assert.Equal(t, EmodeTag(2), entry.CollateralBankEmodeTag)
		assert.True(t, entry.AssetWeightInit.Equal(dec("0.8")))
		assert.True(t, entry.AssetWeightMaint.Equal(dec("0.88")))
		assert.False(t, entry.AppliesToIsolated())
	})

	t.Run("untagged liability disables", func(t *testing.T) {
		assert.True(t, ReconcileEmode([]*Bank{first, untagged}).IsEmpty())
		assert.True(t, ReconcileEmode(nil).IsEmpty())
	})
}

func TestEmodeConfig_ApplyEmode(t *testing.T) {
	config := EmodeConfig{Entries: []EmodeEntry{
		{CollateralBankEmodeTag: lstTag, AssetWeightInit: dec("0.9"), AssetWeightMaint: dec("0.95")},
	}}

	f := newEmodeFixture()
	lifted := config.ApplyEmode(f.jito)
	assert.True(t, lifted.AssetWeightInit.Equal(dec("0.9")))
	assert.True(t, f.jito.AssetWeightInit.Equal(dec("0.5")))

	assert.Same(t, f.usdc, config.ApplyEmode(f.usdc))

	isolatedConfig := collateralConfig("0", "0", "1.5", "1.25")
	isolatedConfig.RiskTier = Isolated
	isolated := newTestBank(7, 9, isolatedConfig)
	isolated.Emode.EmodeTag = lstTag
	assert.Same(t, isolated, config.ApplyEmode(isolated))

	config.Entries[0].Flags = EmodeAppliesToIsolated
	weight, err := config.ApplyEmode(isolated).GetAssetWeight(Initial, flat(1), false)
	require.NoError(t, err)
	assert.True(t, weight.Equal(dec("0.9")))
}

func TestAdjustBankWeightsWithEmodePairs(t *testing.T) {
	f := newEmodeFixture()
	pairs := GetEmodePairs(f.list())

	adjusted := AdjustBankWeightsWithEmodePairs(f.banks, pairs)

	assert.True(t, adjusted[f.jito.Key()].AssetWeightInit.Equal(dec("0.9")))
	assert.True(t, adjusted[f.msol.Key()].AssetWeightMaint.Equal(dec("0.95")))
	assert.Same(t, f.sol, adjusted[f.sol.Key()])
	assert.True(t, f.banks[f.jito.Key()].AssetWeightInit.Equal(dec("0.5")), "input mutated")
}

func TestEmodeSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entries []EmodeEntry
		err     error
	}{
		{name: "valid", entries: []EmodeEntry{{CollateralBankEmodeTag: 2, AssetWeightInit: dec("0.8"), AssetWeightMaint: dec("0.9")}}},
		{
			name: "duplicate tag",
			entries: []EmodeEntry{
				{CollateralBankEmodeTag: 2, AssetWeightInit: dec("0.8"), AssetWeightMaint: dec("0.9")},
				{CollateralBankEmodeTag: 2, AssetWeightInit: dec("0.7"), AssetWeightMaint: dec("0.9")},
			},
			err: ErrEmodeInvalid,
		},
		{name: "init above maint", entries: []EmodeEntry{{CollateralBankEmodeTag: 2, AssetWeightInit: dec("0.9"), AssetWeightMaint: dec("0.8")}}, err: ErrEmodeInvalid},
		{name: "maint above one", entries: []EmodeEntry{{CollateralBankEmodeTag: 2, AssetWeightInit: dec("0.9"), AssetWeightMaint: dec("1.1")}}, err: ErrEmodeInvalid},
		{name: "too many", entries: make([]EmodeEntry, EMODE_ENTRIES+1), err: ErrEmodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := EmodeSettings{EmodeTag: 1, Entries: tt.entries}
			assert.Equal(t, tt.err, settings.Validate())
		})
	}
}

func TestRiskEngine_Emode(t *testing.T) {
	f := newEmodeFixture()
	account := &Account{Balances: []*Balance{
		assetBalance(f.jito, 10_000_000_000),
		liabilityBalance(f.sol, 5_000_000_000),
	}}

	t.Run("enabled", func(t *testing.T) {
		r, err := NewRiskEngine(account, f.banks, f.prices)
		require.NoError(t, err)
		require.Len(t, r.EmodeConfig.Entries, 1)

		freeCollateral, err := r.ComputeFreeCollateral(false)
		require.NoError(t, err)
		assertNear(t, "240", freeCollateral, "0.000001")
		assert.True(t, f.jito.AssetWeightInit.Equal(dec("0.5")), "bank mutated")
	})

	t.Run("disabled", func(t *testing.T) {
		r, err := NewRiskEngine(account, f.banks, f.prices, WithEmode(false))
		require.NoError(t, err)
		assert.True(t, r.EmodeConfig.IsEmpty())

		freeCollateral, err := r.ComputeFreeCollateral(false)
		require.NoError(t, err)
		assertNear(t, "-200", freeCollateral, "0.000001")
	})
}

func TestRiskEngine_MaxBorrowWithEmodeOverride(t *testing.T) {
	f := newEmodeFixture()
	account := &Account{Balances: []*Balance{assetBalance(f.jito, 10_000_000_000)}}

	r, err := NewRiskEngine(account, f.banks, f.prices)
	require.NoError(t, err)

	plain, err := r.ComputeMaxBorrowForBank(f.sol.Address)
	require.NoError(t, err)
	assertNear(t, "3.666666", plain, "0.00001")

	lifted, err := r.ComputeMaxBorrowForBank(f.sol.Address, WithEmodeWeightsOverride(dec("0.9"), dec("0.95"), lstTag))
	require.NoError(t, err)
	assertNear(t, "6.6", lifted, "0.00001")
}

func TestEmodeImpactStatus_String(t *testing.T) {
	assert.Equal(t, "ActivateEmode", EmodeImpactActivate.String())
	assert.Equal(t, "RemoveEmode", EmodeImpactRemove.String())
}
