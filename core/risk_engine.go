package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RiskEngine evaluates one account against a bank and price snapshot. Inputs are
// never mutated.
type RiskEngine struct {
	log   Log
	clk   clock.Clock
	emode bool

	Account               *Account
	BankAccountsWithPrice []*BankAccountWithPriceFeed
	EmodeConfig           EmodeConfig

	banks  map[string]*Bank
	prices map[string]*OraclePrice
}

type RiskEngineOption func(r *RiskEngine)

func WithLogger(log Log) RiskEngineOption {
	return func(r *RiskEngine) {
		r.log = log
	}
}

// WithEmode toggles e-mode weight reconciliation. It is on by default.
func WithEmode(enabled bool) RiskEngineOption {
	return func(r *RiskEngine) {
		r.emode = enabled
	}
}

func WithEngineClock(clk clock.Clock) RiskEngineOption {
	return func(r *RiskEngine) {
		r.clk = clk
	}
}

type AccountSummary struct {
	Balance         fixed.I80F48 `json:"balance"`
	LendingAmount   fixed.I80F48 `json:"lendingAmount"`
	BorrowingAmount fixed.I80F48 `json:"borrowingAmount"`

	BalanceUnbiased         fixed.I80F48 `json:"balanceUnbiased"`
	LendingAmountUnbiased   fixed.I80F48 `json:"lendingAmountUnbiased"`
	BorrowingAmountUnbiased fixed.I80F48 `json:"borrowingAmountUnbiased"`

	LendingAmountWithBiasAndWeighted   fixed.I80F48 `json:"lendingAmountWithBiasAndWeighted"`
	BorrowingAmountWithBiasAndWeighted fixed.I80F48 `json:"borrowingAmountWithBiasAndWeighted"`

	HealthFactor         fixed.I80F48    `json:"healthFactor"`
	SignedFreeCollateral fixed.I80F48    `json:"signedFreeCollateral"`
	Apy                  decimal.Decimal `json:"apy"`
}

// NewRiskEngine rejects accounts in a flashloan. banks and prices are keyed by
// base58 bank address.
func NewRiskEngine(account *Account, banks map[string]*Bank, prices map[string]*OraclePrice, opts ...RiskEngineOption) (*RiskEngine, error) {
	if account.GetFlag(InFlashloanFlag) {
		return nil, ErrAccountInFlashloan
	}
	return NewRiskEngineNoFlashloanCheck(account, banks, prices, opts...)
}

func NewRiskEngineNoFlashloanCheck(account *Account, banks map[string]*Bank, prices map[string]*OraclePrice, opts ...RiskEngineOption) (*RiskEngine, error) {
	r := &RiskEngine{
		log:     NopLog(),
		clk:     clock.New(),
		emode:   true,
		Account: account,
		banks:   banks,
		prices:  prices,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RiskEngine) load() error {
	r.BankAccountsWithPrice = r.BankAccountsWithPrice[:0]
	r.EmodeConfig = EmodeConfig{}

	var liabilityBanks []*Bank
	for _, balance := range r.Account.ActiveBalances() {
		key := balance.Key()
		bank, ok := r.banks[key]
		if !ok {
			return errors.Wrapf(ErrBankNotFound, "bank %s", key)
		}
		price, ok := r.prices[key]
		if !ok {
			if balance.IsEmpty(BalanceSideAssets) && balance.IsEmpty(BalanceSideLiabilities) {
				continue
			}
			return errors.Wrapf(ErrMissingPrice, "bank %s", key)
		}

		r.BankAccountsWithPrice = append(r.BankAccountsWithPrice, &BankAccountWithPriceFeed{
			Bank:      bank,
			Balance:   balance,
			PriceFeed: price,
		})
		if !balance.IsEmpty(BalanceSideLiabilities) {
			liabilityBanks = append(liabilityBanks, bank)
		}
	}

	if !r.emode {
		return nil
	}
	r.EmodeConfig = ReconcileEmode(liabilityBanks)
	if r.EmodeConfig.IsEmpty() {
		return nil
	}
	for _, ba := range r.BankAccountsWithPrice {
		if !ba.Balance.IsEmpty(BalanceSideAssets) {
			ba.Bank = r.EmodeConfig.ApplyEmode(ba.Bank)
		}
	}
	r.log.Debug().Int("entries", len(r.EmodeConfig.Entries)).Stringer("account", r.Account.Address).Msg("emode active")
	return nil
}

// bankAndPrice prefers the bank as loaded with e-mode weights.
func (r *RiskEngine) bankAndPrice(address solana.PublicKey) (*Bank, *OraclePrice, error) {
	for _, ba := range r.BankAccountsWithPrice {
		if ba.Bank.Address == address {
			return ba.Bank, ba.PriceFeed, nil
		}
	}
	key := address.String()
	bank, ok := r.banks[key]
	if !ok {
		return nil, nil, errors.Wrapf(ErrBankNotFound, "bank %s", key)
	}
	price, ok := r.prices[key]
	if !ok {
		return nil, nil, errors.Wrapf(ErrMissingPrice, "bank %s", key)
	}
	return bank, price, nil
}

// balanceOrEmpty returns the active balance of bank, or an empty one.
func (r *RiskEngine) balanceOrEmpty(address solana.PublicKey) *Balance {
	if b := r.Account.GetBalance(address); b != nil {
		return b
	}
	return &Balance{BankAddress: address}
}

// withBanks returns a shallow copy whose banks went through adjust.
func (r *RiskEngine) withBanks(adjust func(*Bank) *Bank) *RiskEngine {
	c := *r
	c.banks = make(map[string]*Bank, len(r.banks))
	for k, b := range r.banks {
		c.banks[k] = adjust(b)
	}
	c.BankAccountsWithPrice = make([]*BankAccountWithPriceFeed, len(r.BankAccountsWithPrice))
	for i, ba := range r.BankAccountsWithPrice {
		c.BankAccountsWithPrice[i] = &BankAccountWithPriceFeed{
			Bank:      adjust(ba.Bank),
			Balance:   ba.Balance,
			PriceFeed: ba.PriceFeed,
		}
	}
	return &c
}

func isExcluded(address solana.PublicKey, excluded []solana.PublicKey) bool {
	for _, e := range excluded {
		if e == address {
			return true
		}
	}
	return false
}

// GetAccountHealthComponents sums biased, weighted asset and liability values,
// skipping excluded banks.
func (r *RiskEngine) GetAccountHealthComponents(requirementType RequirementType, excluded ...solana.PublicKey) (fixed.I80F48, fixed.I80F48, error) {
	totalAssets := fixed.Zero
	totalLiabilities := fixed.Zero
	for _, a := range r.BankAccountsWithPrice {
		if isExcluded(a.Bank.Address, excluded) {
			continue
		}
		assets, liabilities, err := a.CalcWeightedAssetsAndLiabsValues(requirementType)
		if err != nil {
			return fixed.Zero, fixed.Zero, errors.Wrapf(err, "bank %s", a.Bank.Address)
		}
		if totalAssets, err = totalAssets.CheckedAdd(assets); err != nil {
			return fixed.Zero, fixed.Zero, err
		}
		if totalLiabilities, err = totalLiabilities.CheckedAdd(liabilities); err != nil {
			return fixed.Zero, fixed.Zero, err
		}
	}
	return totalAssets, totalLiabilities, nil
}

// GetAccountHealthComponentsWithoutBias values positions at the unbiased price.
func (r *RiskEngine) GetAccountHealthComponentsWithoutBias(requirementType RequirementType, excluded ...solana.PublicKey) (fixed.I80F48, fixed.I80F48, error) {
	totalAssets := fixed.Zero
	totalLiabilities := fixed.Zero
	for _, a := range r.BankAccountsWithPrice {
		if isExcluded(a.Bank.Address, excluded) {
			continue
		}
		assets, liabilities, err := a.CalcAssetsAndLiabsValues(requirementType)
		if err != nil {
			return fixed.Zero, fixed.Zero, errors.Wrapf(err, "bank %s", a.Bank.Address)
		}
		if totalAssets, err = totalAssets.CheckedAdd(assets); err != nil {
			return fixed.Zero, fixed.Zero, err
		}
		if totalLiabilities, err = totalLiabilities.CheckedAdd(liabilities); err != nil {
			return fixed.Zero, fixed.Zero, err
		}
	}
	return totalAssets, totalLiabilities, nil
}

func (r *RiskEngine) GetAccountHealth(requirementType RequirementType) (fixed.I80F48, error) {
	totalAssets, totalLiabilities, err := r.GetAccountHealthComponents(requirementType)
	if err != nil {
		return fixed.Zero, err
	}
	return totalAssets.Sub(totalLiabilities), nil
}

// ComputeHealthFactor is (assets - liabilities) / assets on maintenance values.
func (r *RiskEngine) ComputeHealthFactor() (fixed.I80F48, error) {
	assets, liabilities, err := r.GetAccountHealthComponents(Maintenance)
	if err != nil {
		return fixed.Zero, err
	}
	return GetAccountHealth(assets, liabilities)
}

// IsLiquidatable reports debt with maintenance health at or below zero.
func (r *RiskEngine) IsLiquidatable() (bool, error) {
	assets, liabilities, err := r.GetAccountHealthComponents(Maintenance)
	if err != nil {
		return false, err
	}
	return liabilities.IsPositive() && assets.Sub(liabilities).LessThanOrEqual(fixed.Zero), nil
}

func (r *RiskEngine) ComputeFreeCollateral(clamped bool) (fixed.I80F48, error) {
	assets, liabilities, err := r.GetAccountHealthComponents(Initial)
	if err != nil {
		return fixed.Zero, err
	}
	signed := assets.Sub(liabilities)
	if clamped {
		return fixed.Max(fixed.Zero, signed), nil
	}
	return signed, nil
}

// ComputeAccountValue is the unbiased equity value.
func (r *RiskEngine) ComputeAccountValue() (fixed.I80F48, error) {
	assets, liabilities, err := r.GetAccountHealthComponentsWithoutBias(Equity)
	if err != nil {
		return fixed.Zero, err
	}
	return assets.Sub(liabilities), nil
}

// ComputeNetApy weights each position's rate by its share of account value.
func (r *RiskEngine) ComputeNetApy() (decimal.Decimal, error) {
	totalUsdValue, err := r.ComputeAccountValue()
	if err != nil {
		return decimal.Zero, err
	}
	if totalUsdValue.IsZero() {
		totalUsdValue = ONE
	}

	apr := fixed.Zero
	for _, a := range r.BankAccountsWithPrice {
		lendingRate, borrowingRate, err := a.Bank.ComputeInterestRates()
		if err != nil {
			return decimal.Zero, err
		}
		assets, liabilities, err := a.CalcAssetsAndLiabsValues(Equity)
		if err != nil {
			return decimal.Zero, err
		}
		borrowCost, err := borrowingRate.Mul(liabilities).Div(totalUsdValue)
		if err != nil {
			return decimal.Zero, err
		}
		lendingYield, err := lendingRate.Mul(assets).Div(totalUsdValue)
		if err != nil {
			return decimal.Zero, err
		}
		apr = apr.Sub(borrowCost).Add(lendingYield)
	}
	return AprToApy(apr.Decimal()), nil
}

func (r *RiskEngine) ComputeAccountSummary() (*AccountSummary, error) {
	equityAssets, equityLiabilities, err := r.GetAccountHealthComponents(Equity)
	if err != nil {
		return nil, err
	}
	unbiasedAssets, unbiasedLiabilities, err := r.GetAccountHealthComponentsWithoutBias(Equity)
	if err != nil {
		return nil, err
	}
	maintAssets, maintLiabilities, err := r.GetAccountHealthComponents(Maintenance)
	if err != nil {
		return nil, err
	}
	healthFactor, err := GetAccountHealth(maintAssets, maintLiabilities)
	if err != nil {
		return nil, err
	}
	freeCollateral, err := r.ComputeFreeCollateral(false)
	if err != nil {
		return nil, err
	}
	apy, err := r.ComputeNetApy()
	if err != nil {
		return nil, err
	}

	return &AccountSummary{
		Balance:                            equityAssets.Sub(equityLiabilities),
		LendingAmount:                      equityAssets,
		BorrowingAmount:                    equityLiabilities,
		BalanceUnbiased:                    unbiasedAssets.Sub(unbiasedLiabilities),
		LendingAmountUnbiased:              unbiasedAssets,
		BorrowingAmountUnbiased:            unbiasedLiabilities,
		LendingAmountWithBiasAndWeighted:   maintAssets,
		BorrowingAmountWithBiasAndWeighted: maintLiabilities,
		HealthFactor:                       healthFactor,
		SignedFreeCollateral:               freeCollateral,
		Apy:                                apy,
	}, nil
}

type computeOptions struct {
	volatilityFactor fixed.I80F48
	emodeWeights     *emodeWeightsOverride
}

type emodeWeightsOverride struct {
	assetWeightInit  fixed.I80F48
	assetWeightMaint fixed.I80F48
	collateralTag    EmodeTag
}

type ComputeOption func(o *computeOptions)

// WithVolatilityFactor scales free collateral, e.g. 0.975 to leave slippage room.
func WithVolatilityFactor(factor fixed.I80F48) ComputeOption {
	return func(o *computeOptions) {
		o.volatilityFactor = factor
	}
}

// WithEmodeWeightsOverride lifts every bank tagged collateralTag to the given weights.
func WithEmodeWeightsOverride(assetWeightInit, assetWeightMaint fixed.I80F48, collateralTag EmodeTag) ComputeOption {
	return func(o *computeOptions) {
		o.emodeWeights = &emodeWeightsOverride{
			assetWeightInit:  assetWeightInit,
			assetWeightMaint: assetWeightMaint,
			collateralTag:    collateralTag,
		}
	}
}

func newComputeOptions(opts []ComputeOption) computeOptions {
	o := computeOptions{volatilityFactor: ONE}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ComputeMaxBorrowForBank returns the most tokens of bank the account can borrow,
// counting its own deposit in that bank first. Isolated-tier conflicts fall back
// to the withdrawable amount.
func (r *RiskEngine) ComputeMaxBorrowForBank(address solana.PublicKey, opts ...ComputeOption) (fixed.I80F48, error) {
	o := newComputeOptions(opts)
	engine := r
	if w := o.emodeWeights; w != nil {
		engine = r.withBanks(func(b *Bank) *Bank {
			if b.Emode.EmodeTag == w.collateralTag {
				return b.WithEmodeWeights(w.assetWeightInit, w.assetWeightMaint)
			}
			return b
		})
	}

	bank, price, err := engine.bankAndPrice(address)
	if err != nil {
		return fixed.Zero, err
	}

	if bank.BankConfig.RiskTier == Isolated {
		_, liabilities, err := engine.GetAccountHealthComponents(Equity, address)
		if err != nil {
			return fixed.Zero, err
		}
		if !liabilities.IsZero() {
			engine.log.Debug().Stringer("bank", address).Msg("borrowing isolated asset with active debt")
			return engine.computeMaxWithdrawForBank(address, o)
		}
	}
	for _, ba := range engine.BankAccountsWithPrice {
		if ba.Balance.LiabilityShares.IsPositive() && ba.Bank.BankConfig.RiskTier == Isolated && ba.Bank.Address != address {
			engine.log.Debug().Stringer("bank", address).Msg("borrowing new asset with existing isolated debt")
			return engine.computeMaxWithdrawForBank(address, o)
		}
	}

	freeCollateral, err := engine.ComputeFreeCollateral(true)
	if err != nil {
		return fixed.Zero, err
	}
	freeCollateral = freeCollateral.Mul(o.volatilityFactor)

	balance := engine.balanceOrEmpty(address)
	assetValue, err := bank.ComputeAssetUsdValue(price, balance.AssetShares, Initial, Low)
	if err != nil {
		return fixed.Zero, err
	}
	untiedCollateralForBank := fixed.Min(assetValue, freeCollateral)

	priceLowestBias := bank.GetPrice(price, Low, true)
	priceHighestBias := bank.GetPrice(price, High, true)
	assetWeight, err := bank.GetAssetWeight(Initial, price, false)
	if err != nil {
		return fixed.Zero, err
	}
	liabWeight := bank.GetLiabilityWeight(Initial)

	borrowable, err := freeCollateral.Sub(untiedCollateralForBank).Div(priceHighestBias.Mul(liabWeight))
	if err != nil {
		return fixed.Zero, errors.Wrapf(err, "bank %s liability price", address)
	}

	if assetWeight.IsZero() {
		assetsUi, _, err := balance.ComputeQuantityUi(bank)
		if err != nil {
			return fixed.Zero, err
		}
		return assetsUi.Add(borrowable), nil
	}

	withdrawable, err := untiedCollateralForBank.Div(priceLowestBias.Mul(assetWeight))
	if err != nil {
		return fixed.Zero, errors.Wrapf(err, "bank %s asset price", address)
	}
	return withdrawable.Add(borrowable), nil
}

// ComputeMaxWithdrawForBank returns the most tokens of bank the account can
// withdraw without borrowing.
func (r *RiskEngine) ComputeMaxWithdrawForBank(address solana.PublicKey, opts ...ComputeOption) (fixed.I80F48, error) {
	return r.computeMaxWithdrawForBank(address, newComputeOptions(opts))
}

func (r *RiskEngine) computeMaxWithdrawForBank(address solana.PublicKey, o computeOptions) (fixed.I80F48, error) {
	bank, price, err := r.bankAndPrice(address)
	if err != nil {
		return fixed.Zero, err
	}

	initAssetWeight, err := bank.GetAssetWeight(Initial, price, false)
	if err != nil {
		return fixed.Zero, err
	}
	maintAssetWeight, err := bank.GetAssetWeight(Maintenance, price, false)
	if err != nil {
		return fixed.Zero, err
	}
	balance := r.balanceOrEmpty(address)

	freeCollateral, err := r.ComputeFreeCollateral(true)
	if err != nil {
		return fixed.Zero, err
	}
	initCollateralForBank, err := bank.ComputeAssetUsdValue(price, balance.AssetShares, Initial, Low)
	if err != nil {
		return fixed.Zero, err
	}
	entireBalance, _, err := balance.ComputeQuantityUi(bank)
	if err != nil {
		return fixed.Zero, err
	}
	_, liabilitiesInit, err := r.GetAccountHealthComponents(Initial)
	if err != nil {
		return fixed.Zero, err
	}

	// isolated or zero-weight collateral does not back anything
	if bank.BankConfig.RiskTier == Isolated || (initAssetWeight.IsZero() && maintAssetWeight.IsZero()) {
		if freeCollateral.IsZero() && !liabilitiesInit.IsZero() {
			return fixed.Zero, nil
		}
		return entireBalance, nil
	}

	// retiring collateral
	if initAssetWeight.IsZero() {
		if liabilitiesInit.IsZero() {
			return entireBalance, nil
		}
		if freeCollateral.IsZero() {
			return fixed.Zero, nil
		}
		maintAssets, maintLiabilities, err := r.GetAccountHealthComponents(Maintenance)
		if err != nil {
			return fixed.Zero, err
		}
		maintWeightedPrice := bank.GetPrice(price, Low, true).Mul(maintAssetWeight)
		return maintAssets.Sub(maintLiabilities).Div(maintWeightedPrice)
	}

	if liabilitiesInit.IsZero() || initCollateralForBank.LessThanOrEqual(freeCollateral) {
		return entireBalance, nil
	}

	initUntiedCollateralForBank := freeCollateral.Mul(o.volatilityFactor)
	initWeightedPrice := bank.GetPrice(price, Low, true).Mul(initAssetWeight)
	return initUntiedCollateralForBank.Div(initWeightedPrice)
}

// CheckAccountHealth fails when weighted assets fall short of liabilities or the
// risk tiers are mixed.
func (r *RiskEngine) CheckAccountHealth(requirementType RequirementType) error {
	totalAssets, totalLiabilities, err := r.GetAccountHealthComponents(requirementType)
	if err != nil {
		return err
	}
	if !totalAssets.GreaterThanOrEqual(totalLiabilities) {
		r.log.Debug().
			Stringer("requirement", requirementType).
			Stringer("assets", totalAssets).
			Stringer("liabilities", totalLiabilities).
			Msg("account health check failed")
		return ErrRiskEngineInitRejected
	}
	return r.CheckAccountRiskTiers()
}

func (r *RiskEngine) CheckAccountInitHealth() error {
	if r.Account.GetFlag(InFlashloanFlag) {
		return nil
	}
	return r.CheckAccountHealth(Initial)
}

func (r *RiskEngine) findBankAccount(address solana.PublicKey) *BankAccountWithPriceFeed {
	for _, a := range r.BankAccountsWithPrice {
		if a.Balance.BankAddress == address {
			return a
		}
	}
	return nil
}

// CheckPreLiquidationConditionAndGetAccountHealth requires a pure liability in
// bank and a maintenance health at or below zero.
func (r *RiskEngine) CheckPreLiquidationConditionAndGetAccountHealth(address solana.PublicKey) (fixed.I80F48, error) {
	if r.Account.GetFlag(InFlashloanFlag) {
		return fixed.Zero, ErrAccountInFlashloan
	}

	liabilityBankBalance := r.findBankAccount(address)
	if liabilityBankBalance == nil {
		return fixed.Zero, ErrBalanceNotFound
	}
	if liabilityBankBalance.IsEmpty(BalanceSideLiabilities) {
		return fixed.Zero, ErrIllegalLiquidation
	}
	if !liabilityBankBalance.IsEmpty(BalanceSideAssets) {
		return fixed.Zero, ErrIllegalLiquidation
	}

	accountHealth, err := r.GetAccountHealth(Maintenance)
	if err != nil {
		return fixed.Zero, err
	}
	if !accountHealth.LessThanOrEqual(fixed.Zero) {
		return fixed.Zero, ErrAccountNotUnhealthy
	}
	return accountHealth, nil
}

// CheckPostLiquidationConditionAndGetAccountHealth requires the liability to
// remain, health to stay at or below zero, and health to improve.
func (r *RiskEngine) CheckPostLiquidationConditionAndGetAccountHealth(address solana.PublicKey, preLiquidationHealth fixed.I80F48) (fixed.I80F48, error) {
	if r.Account.GetFlag(InFlashloanFlag) {
		return fixed.Zero, ErrAccountInFlashloan
	}

	liabilityBankBalance := r.findBankAccount(address)
	if liabilityBankBalance == nil {
		return fixed.Zero, ErrBalanceNotFound
	}
	if liabilityBankBalance.IsEmpty(BalanceSideLiabilities) {
		return fixed.Zero, ErrIllegalLiquidation
	}
	if !liabilityBankBalance.IsEmpty(BalanceSideAssets) {
		return fixed.Zero, ErrIllegalLiquidation
	}

	accountHealth, err := r.GetAccountHealth(Maintenance)
	if err != nil {
		return fixed.Zero, err
	}
	if !accountHealth.LessThanOrEqual(fixed.Zero) {
		return fixed.Zero, ErrIllegalLiquidation
	}
	if accountHealth.LessThanOrEqual(preLiquidationHealth) {
		return fixed.Zero, ErrIllegalLiquidation
	}
	return accountHealth, nil
}

func (r *RiskEngine) CheckAccountBankrupt() error {
	if r.Account.GetFlag(InFlashloanFlag) {
		return ErrAccountInFlashloan
	}

	totalAssets, totalLiabilities, err := r.GetAccountHealthComponents(Equity)
	if err != nil {
		return err
	}
	r.log.Debug().Stringer("assets", totalAssets).Stringer("liabilities", totalLiabilities).Msg("bankruptcy check")

	if !totalAssets.LessThan(totalLiabilities) {
		return ErrAccountNotBankrupt
	}
	if !totalAssets.LessThan(BANKRUPT_THRESHOLD) {
		return ErrAccountNotBankrupt
	}
	if !totalLiabilities.GreaterThan(ZERO_AMOUNT_THRESHOLD) {
		return ErrAccountNotBankrupt
	}
	return nil
}

// CheckAccountRiskTiers allows an isolated liability only as the sole liability.
func (r *RiskEngine) CheckAccountRiskTiers() error {
	var balancesWithLiabilities []*BankAccountWithPriceFeed
	for _, a := range r.BankAccountsWithPrice {
		if !a.Balance.IsEmpty(BalanceSideLiabilities) {
			balancesWithLiabilities = append(balancesWithLiabilities, a)
		}
	}

	isInIsolatedRiskTier := false
	for _, a := range balancesWithLiabilities {
		if a.Bank.BankConfig.RiskTier == Isolated {
			isInIsolatedRiskTier = true
		}
	}
	if isInIsolatedRiskTier && len(balancesWithLiabilities) != 1 {
		return ErrIsolatedAccountIllegalState
	}
	return nil
}

// SimulateAction applies action with a native amount to copies of the account and
// bank and returns an engine over the result. amount is ignored for the
// RepayAll and WithdrawAll actions.
func (r *RiskEngine) SimulateAction(action ActionType, address solana.PublicKey, amount fixed.I80F48) (*RiskEngine, error) {
	key := address.String()
	original, ok := r.banks[key]
	if !ok {
		return nil, errors.Wrapf(ErrBankNotFound, "bank %s", key)
	}
	bank := original.Clone()
	account := r.Account.Clone()

	balance := account.GetBalance(address)
	if balance == nil {
		balance = NewBalance(r.clk, bank)
		account.Balances = append(account.Balances, balance)
	}

	wrapper := NewBankAccountWrapper(balance, bank, WithClock(r.clk))
	var err error
	switch action {
	case ActionSupply:
		err = wrapper.Deposit(r.log, amount)
	case ActionBorrow:
		err = wrapper.Borrow(r.log, amount)
	case ActionRepay:
		err = wrapper.Repay(r.log, amount)
	case ActionWithdraw:
		err = wrapper.Withdraw(r.log, amount)
	case ActionRepayAll:
		_, err = wrapper.RepayAll(r.log)
	case ActionWithdrawAll:
		_, err = wrapper.WithdrawAll(r.log)
	default:
		err = errors.Wrapf(ErrUnknownAction, "%d", action)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "simulate %s on bank %s", action, key)
	}

	banks := make(map[string]*Bank, len(r.banks))
	for k, b := range r.banks {
		banks[k] = b
	}
	banks[key] = bank

	return NewRiskEngineNoFlashloanCheck(account, banks, r.prices,
		WithLogger(r.log), WithEmode(r.emode), WithEngineClock(r.clk))
}
