package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/pkg/errors"
)

// LiquidationQuote splits a liquidation of AssetAmount collateral into what the
// liquidator pays and what the liquidatee's debt is reduced by. Amounts are in
// tokens.
type LiquidationQuote struct {
	AssetBank     solana.PublicKey `json:"assetBank"`
	LiabilityBank solana.PublicKey `json:"liabilityBank"`

	AssetAmount               fixed.I80F48 `json:"assetAmount"`
	LiquidatorLiabilityAmount fixed.I80F48 `json:"liquidatorLiabilityAmount"`
	LiquidateeLiabilityAmount fixed.I80F48 `json:"liquidateeLiabilityAmount"`
	InsuranceFundFee          fixed.I80F48 `json:"insuranceFundFee"`
	LiquidateePreHealth       fixed.I80F48 `json:"liquidateePreHealth"`
}

// ComputeLiquidationPriceForBank returns the price of bank at which the account
// becomes liquidatable, all other prices held. It returns nil when there is no
// such price.
func (r *RiskEngine) ComputeLiquidationPriceForBank(address solana.PublicKey) (*fixed.I80F48, error) {
	balance := r.Account.GetBalance(address)
	if balance == nil {
		return nil, nil
	}
	bank, _, err := r.bankAndPrice(address)
	if err != nil {
		return nil, err
	}
	assetsUi, liabilitiesUi, err := balance.ComputeQuantityUi(bank)
	if err != nil {
		return nil, err
	}

	isLending := balance.LiabilityShares.IsZero()
	amount := liabilitiesUi
	if isLending {
		amount = assetsUi
	}
	return r.computeLiquidationPrice(address, isLending, amount)
}

// ComputeLiquidationPriceForBankAmount is ComputeLiquidationPriceForBank for a
// hypothetical position of amount tokens on the given side.
func (r *RiskEngine) ComputeLiquidationPriceForBankAmount(address solana.PublicKey, isLending bool, amount fixed.I80F48) (*fixed.I80F48, error) {
	if r.Account.GetBalance(address) == nil {
		return nil, nil
	}
	return r.computeLiquidationPrice(address, isLending, amount)
}

func (r *RiskEngine) computeLiquidationPrice(address solana.PublicKey, isLending bool, amount fixed.I80F48) (*fixed.I80F48, error) {
	bank, price, err := r.bankAndPrice(address)
	if err != nil {
		return nil, err
	}
	assets, liabilities, err := r.GetAccountHealthComponents(Maintenance, address)
	if err != nil {
		return nil, err
	}

	var liquidationPrice fixed.I80F48
	if isLending {
		if liabilities.IsZero() {
			return nil, nil
		}
		assetWeight, err := bank.GetAssetWeight(Maintenance, price, false)
		if err != nil {
			return nil, err
		}
		denominator := amount.Mul(assetWeight)
		if denominator.IsZero() {
			return nil, nil
		}
		base, err := liabilities.Sub(assets).Div(denominator)
		if err != nil {
			return nil, err
		}
		priceConfidence := bank.GetPrice(price, Original, false).Sub(bank.GetPrice(price, Low, false))
		liquidationPrice = base.Add(priceConfidence)
	} else {
		denominator := amount.Mul(bank.GetLiabilityWeight(Maintenance))
		if denominator.IsZero() {
			return nil, nil
		}
		base, err := assets.Sub(liabilities).Div(denominator)
		if err != nil {
			return nil, err
		}
		priceConfidence := bank.GetPrice(price, High, false).Sub(bank.GetPrice(price, Original, false))
		liquidationPrice = base.Sub(priceConfidence)
	}

	if liquidationPrice.IsNegative() || liquidationPrice.Equal(fixed.MaxValue) || liquidationPrice.Equal(fixed.MinValue) {
		return nil, nil
	}
	return &liquidationPrice, nil
}

// ComputeMaxLiquidatableAssetAmount returns the most collateral, in tokens, a
// liquidator can seize to bring maintenance health back to zero. It is bounded by
// the collateral balance and by the discounted liability.
func (r *RiskEngine) ComputeMaxLiquidatableAssetAmount(assetBankAddress, liabilityBankAddress solana.PublicKey) (fixed.I80F48, error) {
	assetBank, assetPrice, err := r.bankAndPrice(assetBankAddress)
	if err != nil {
		return fixed.Zero, err
	}
	liabilityBank, liabilityPrice, err := r.bankAndPrice(liabilityBankAddress)
	if err != nil {
		return fixed.Zero, err
	}

	currentHealth, err := r.GetAccountHealth(Maintenance)
	if err != nil {
		return fixed.Zero, err
	}

	priceAssetLower := assetBank.GetPrice(assetPrice, Low, false)
	assetMaintWeight := assetBank.BankConfig.AssetWeightMaint
	priceLiabHighest := liabilityBank.GetPrice(liabilityPrice, High, false)
	liabMaintWeight := liabilityBank.BankConfig.LiabilityWeightMaint

	assetsAmountUi, _, err := r.balanceOrEmpty(assetBankAddress).ComputeQuantityUi(assetBank)
	if err != nil {
		return fixed.Zero, err
	}
	_, liabilitiesAmountUi, err := r.balanceOrEmpty(liabilityBankAddress).ComputeQuantityUi(liabilityBank)
	if err != nil {
		return fixed.Zero, err
	}

	assetsUsdValue := assetsAmountUi.Mul(priceAssetLower)
	liabUsdValue := liabilitiesAmountUi.Mul(LIQUIDATION_DISCOUNT).Mul(priceLiabHighest)
	maxLiquidatableUsdValue := fixed.Min(assetsUsdValue, liabUsdValue)

	// a zero weight spread leaves health unbounded by this constraint
	spread := assetMaintWeight.Sub(liabMaintWeight.Mul(LIQUIDATION_DISCOUNT))
	if !spread.IsZero() {
		underwaterMaintUsdValue, err := currentHealth.Div(spread)
		if err != nil {
			return fixed.Zero, err
		}
		maxLiquidatableUsdValue = fixed.Min(maxLiquidatableUsdValue, underwaterMaintUsdValue)
	}

	r.log.Debug().
		Stringer("health", currentHealth).
		Stringer("assetWeight", assetMaintWeight).
		Stringer("liabilityWeight", liabMaintWeight).
		Stringer("maxUsd", maxLiquidatableUsdValue).
		Msg("max liquidatable")

	maxLiquidatableUsdValue = fixed.Max(maxLiquidatableUsdValue, fixed.Zero)
	amount, err := maxLiquidatableUsdValue.Div(priceAssetLower)
	if err != nil {
		return fixed.Zero, errors.Wrapf(err, "bank %s asset price", assetBankAddress)
	}
	return amount, nil
}

// QuoteLiquidation prices the seizure of assetAmount tokens at unbiased realtime
// prices, net of the liquidator and insurance fees.
func (r *RiskEngine) QuoteLiquidation(assetBankAddress, liabilityBankAddress solana.PublicKey, assetAmount fixed.I80F48) (*LiquidationQuote, error) {
	if assetBankAddress == liabilityBankAddress {
		return nil, ErrIllegalLiquidation
	}
	if !assetAmount.IsPositive() {
		return nil, errors.Wrap(ErrIllegalLiquidation, "non-positive asset amount")
	}

	preHealth, err := r.CheckPreLiquidationConditionAndGetAccountHealth(liabilityBankAddress)
	if err != nil {
		return nil, err
	}

	assetBank, assetPrice, err := r.bankAndPrice(assetBankAddress)
	if err != nil {
		return nil, err
	}
	liabilityBank, liabilityPrice, err := r.bankAndPrice(liabilityBankAddress)
	if err != nil {
		return nil, err
	}

	assetsUi, _, err := r.balanceOrEmpty(assetBankAddress).ComputeQuantityUi(assetBank)
	if err != nil {
		return nil, err
	}
	if assetAmount.GreaterThan(assetsUi) {
		return nil, errors.Wrap(ErrIllegalLiquidation, "asset amount exceeds balance")
	}

	assetUsd := assetAmount.Mul(assetBank.GetPrice(assetPrice, Original, false))
	liabilityPriceOriginal := liabilityBank.GetPrice(liabilityPrice, Original, false)

	liquidatorUsd := assetUsd.Mul(ONE.Sub(LIQUIDATION_LIQUIDATOR_FEE))
	liquidateeUsd := assetUsd.Mul(ONE.Sub(LIQUIDATION_LIQUIDATOR_FEE).Sub(LIQUIDATION_INSURANCE_FEE))

	liquidatorLiabilityAmount, err := liquidatorUsd.Div(liabilityPriceOriginal)
	if err != nil {
		return nil, errors.Wrapf(err, "bank %s liability price", liabilityBankAddress)
	}
	liquidateeLiabilityAmount, err := liquidateeUsd.Div(liabilityPriceOriginal)
	if err != nil {
		return nil, err
	}

	return &LiquidationQuote{
		AssetBank:                 assetBankAddress,
		LiabilityBank:             liabilityBankAddress,
		AssetAmount:               assetAmount,
		LiquidatorLiabilityAmount: liquidatorLiabilityAmount,
		LiquidateeLiabilityAmount: liquidateeLiabilityAmount,
		InsuranceFundFee:          liquidatorLiabilityAmount.Sub(liquidateeLiabilityAmount),
		LiquidateePreHealth:       preHealth,
	}, nil
}

// SimulateLiquidation applies quote to a copy of the liquidatee. The seized
// collateral leaves the asset bank and the debt shrinks by the liquidatee's
// share, both past deposit and borrow limits. The result must pass the
// post-liquidation checks; its maintenance health is returned with it.
func (r *RiskEngine) SimulateLiquidation(quote *LiquidationQuote) (*RiskEngine, fixed.I80F48, error) {
	if quote == nil || quote.AssetBank == quote.LiabilityBank {
		return nil, fixed.Zero, ErrIllegalLiquidation
	}

	account := r.Account.Clone()
	banks := make(map[string]*Bank, len(r.banks))
	for k, b := range r.banks {
		banks[k] = b
	}

	apply := func(address solana.PublicKey, change func(*BankAccountWrapper) error) error {
		key := address.String()
		original, ok := r.banks[key]
		if !ok {
			return errors.Wrapf(ErrBankNotFound, "bank %s", key)
		}
		balance := account.GetBalance(address)
		if balance == nil {
			return errors.Wrapf(ErrBalanceNotFound, "bank %s", key)
		}
		bank := original.Clone()
		if err := change(NewBankAccountWrapper(balance, bank, WithClock(r.clk))); err != nil {
			return errors.Wrapf(err, "bank %s", key)
		}
		banks[key] = bank
		return nil
	}

	if err := apply(quote.AssetBank, func(ba *BankAccountWrapper) error {
		return ba.DecreaseBalanceInLiquidation(r.log, ba.Bank.QuantityNative(quote.AssetAmount))
	}); err != nil {
		return nil, fixed.Zero, err
	}
	if err := apply(quote.LiabilityBank, func(ba *BankAccountWrapper) error {
		return ba.IncreaseBalanceInLiquidation(r.log, ba.Bank.QuantityNative(quote.LiquidateeLiabilityAmount))
	}); err != nil {
		return nil, fixed.Zero, err
	}

	engine, err := NewRiskEngineNoFlashloanCheck(account, banks, r.prices,
		WithLogger(r.log), WithEmode(r.emode), WithEngineClock(r.clk))
	if err != nil {
		return nil, fixed.Zero, err
	}
	health, err := engine.CheckPostLiquidationConditionAndGetAccountHealth(quote.LiabilityBank, quote.LiquidateePreHealth)
	if err != nil {
		return nil, fixed.Zero, err
	}
	return engine, health, nil
}
