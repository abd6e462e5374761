package core

import (
	"testing"

	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/stretchr/testify/assert"
)

func testKey(b byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func dec(s string) fixed.I80F48 {
	return fixed.MustFromString(s)
}

func assertNear(t *testing.T, expected string, actual fixed.I80F48, tolerance string) {
	t.Helper()
	diff := actual.Sub(dec(expected)).Abs()
	assert.True(t, diff.LessThanOrEqual(dec(tolerance)), "expected %s, got %s", expected, actual)
}

func defaultInterestRateConfig() InterestRateConfig {
	return InterestRateConfig{
		OptimalUtilizationRate: dec("0.85"),
		PlateauInterestRate:    dec("0.1"),
		MaxInterestRate:        fixed.FromInt(3),
	}
}

func collateralConfig(assetInit, assetMaint, liabInit, liabMaint string) BankConfig {
	return BankConfig{
		AssetWeightInit:      dec(assetInit),
		AssetWeightMaint:     dec(assetMaint),
		LiabilityWeightInit:  dec(liabInit),
		LiabilityWeightMaint: dec(liabMaint),
		InterestRateConfig:   defaultInterestRateConfig(),
		OperationalState:     BankOperationalStateOperational,
		RiskTier:             Collateral,
		OracleSetup:          PythPushOracle,
		OracleMaxAge:         60,
	}
}

func newTestBank(addr byte, decimals uint8, config BankConfig) *Bank {
	return &Bank{
		Address:             testKey(addr),
		Mint:                testKey(addr + 100),
		MintDecimals:        decimals,
		AssetShareValue:     ONE,
		LiabilityShareValue: ONE,
		BankConfig:          config,
	}
}

func assetBalance(bank *Bank, shares int64) *Balance {
	return &Balance{BankAddress: bank.Address, Active: true, AssetShares: fixed.FromInt(shares)}
}

func liabilityBalance(bank *Bank, shares int64) *Balance {
	return &Balance{BankAddress: bank.Address, Active: true, LiabilityShares: fixed.FromInt(shares)}
}

func bankMap(banks ...*Bank) map[string]*Bank {
	m := make(map[string]*Bank, len(banks))
	for _, b := range banks {
		m[b.Key()] = b
	}
	return m
}

type priceEntry struct {
	bank  *Bank
	price *OraclePrice
}

func priceMap(entries ...priceEntry) map[string]*OraclePrice {
	m := make(map[string]*OraclePrice, len(entries))
	for _, e := range entries {
		m[e.bank.Key()] = e.price
	}
	return m
}

func flat(price int64) *OraclePrice {
	return NewFlatOraclePrice(fixed.FromInt(price), 1_700_000_000)
}

func withConfidence(price, conf string) *OraclePrice {
	p := NewPriceWithConfidence(dec(price), dec(conf))
	return &OraclePrice{PriceRealtime: p, PriceWeighted: p, Timestamp: 1_700_000_000}
}

// lendingFixture: 10 SOL deposited at $100 against 200 USDC borrowed at $1.
type lendingFixture struct {
	sol, usdc *Bank
	account   *Account
	banks     map[string]*Bank
	prices    map[string]*OraclePrice
}

func newLendingFixture(solPrice int64) *lendingFixture {
	sol := newTestBank(1, 9, collateralConfig("0.5", "0.75", "1.5", "1.25"))
	sol.TotalAssetShares = fixed.FromInt(1_000_000_000_000)

	usdc := newTestBank(2, 6, collateralConfig("0.75", "1", "1.25", "1"))
	usdc.TotalAssetShares = fixed.FromInt(1_000_000_000)
	usdc.TotalLiabilityShares = fixed.FromInt(500_000_000)

	account := &Account{
		Address:   testKey(50),
		Authority: testKey(51),
		Balances: []*Balance{
			assetBalance(sol, 10_000_000_000),
			liabilityBalance(usdc, 200_000_000),
		},
	}

	return &lendingFixture{
		sol:     sol,
		usdc:    usdc,
		account: account,
		banks:   bankMap(sol, usdc),
		prices:  priceMap(priceEntry{sol, flat(solPrice)}, priceEntry{usdc, flat(1)}),
	}
}

func (f *lendingFixture) engine(t *testing.T, opts ...RiskEngineOption) *RiskEngine {
	t.Helper()
	r, err := NewRiskEngine(f.account, f.banks, f.prices, opts...)
	if err != nil {
		t.Fatalf("new risk engine: %v", err)
	}
	return r
}
