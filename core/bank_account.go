package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/facebookgo/clock"
)

// BankAccountWrapper pairs a balance with its bank for share accounting.
type BankAccountWrapper struct {
	clk clock.Clock

	Balance *Balance `json:"balance"`
	Bank    *Bank    `json:"bank"`
}

type OptionFunc func(ba *BankAccountWrapper)

func WithClock(clk clock.Clock) OptionFunc {
	return func(ba *BankAccountWrapper) {
		ba.clk = clk
	}
}

func NewBankAccountWrapper(balance *Balance, bank *Bank, opts ...OptionFunc) *BankAccountWrapper {
	ba := &BankAccountWrapper{
		Balance: balance,
		Bank:    bank,
		clk:     clock.New(),
	}
	for _, opt := range opts {
		opt(ba)
	}
	return ba
}

func (ba *BankAccountWrapper) Deposit(log Log, amount fixed.I80F48) error {
	return ba.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeDepositOnly)
}

func (ba *BankAccountWrapper) Repay(log Log, amount fixed.I80F48) error {
	return ba.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeRepayOnly)
}

func (ba *BankAccountWrapper) Withdraw(log Log, amount fixed.I80F48) error {
	return ba.DecreaseBalanceInternal(log, amount, BalanceDecreaseTypeWithdrawOnly)
}

func (ba *BankAccountWrapper) Borrow(log Log, amount fixed.I80F48) error {
	return ba.DecreaseBalanceInternal(log, amount, BalanceDecreaseTypeBorrowOnly)
}

// ------------ Hybrid operations for seamless repay + deposit / withdraw + borrow

func (ba *BankAccountWrapper) IncreaseBalance(log Log, amount fixed.I80F48) error {
	return ba.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeAny)
}

func (ba *BankAccountWrapper) DecreaseBalance(log Log, amount fixed.I80F48) error {
	return ba.DecreaseBalanceInternal(log, amount, BalanceDecreaseTypeAny)
}

func (ba *BankAccountWrapper) IncreaseBalanceInLiquidation(log Log, amount fixed.I80F48) error {
	return ba.IncreaseBalanceInternal(log, amount, BalanceIncreaseTypeBypassDepositLimit)
}

func (ba *BankAccountWrapper) DecreaseBalanceInLiquidation(log Log, amount fixed.I80F48) error {
	return ba.DecreaseBalanceInternal(log, amount, BalanceDecreaseTypeBypassBorrowLimit)
}

// WithdrawAll closes the asset side and returns the withdrawn native amount.
func (ba *BankAccountWrapper) WithdrawAll(log Log) (fixed.I80F48, error) {
	balance := ba.Balance
	bank := ba.Bank

	if err := bank.AssertOperationalMode(false); err != nil {
		return fixed.Zero, err
	}

	totalAssetShares := balance.AssetShares
	currentLiabilityAmount := bank.GetLiabilityQuantity(balance.LiabilityShares)
	if !currentLiabilityAmount.LessThan(EMPTY_BALANCE_THRESHOLD) {
		return fixed.Zero, ErrIllegalBalanceState
	}

	currentAssetAmount := bank.GetAssetQuantity(totalAssetShares)
	log.Debug().Stringer("bank", bank.Address).Stringer("amount", currentAssetAmount).Msg("withdrawing all")

	if !currentAssetAmount.GreaterThan(ZERO_AMOUNT_THRESHOLD) {
		return fixed.Zero, ErrBalanceNotFound
	}

	balance.EmptyDeactivated(ba.clk)

	if err := bank.ChangeAssetShares(totalAssetShares.Neg(), false); err != nil {
		return fixed.Zero, err
	}
	if err := bank.CheckUtilizationRatio(); err != nil {
		return fixed.Zero, err
	}

	return currentAssetAmount, nil
}

// RepayAll closes the liability side and returns the repaid native amount.
func (ba *BankAccountWrapper) RepayAll(log Log) (fixed.I80F48, error) {
	balance := ba.Balance
	bank := ba.Bank

	if err := bank.AssertOperationalMode(false); err != nil {
		return fixed.Zero, err
	}

	totalLiabilityShares := balance.LiabilityShares
	currentLiabilityAmount := bank.GetLiabilityQuantity(totalLiabilityShares)
	if !currentLiabilityAmount.GreaterThan(ZERO_AMOUNT_THRESHOLD) {
		return fixed.Zero, ErrBalanceNotFound
	}

	currentAssetAmount := bank.GetAssetQuantity(balance.AssetShares)
	if !currentAssetAmount.LessThan(EMPTY_BALANCE_THRESHOLD) {
		return fixed.Zero, ErrIllegalBalanceState
	}

	log.Debug().Stringer("bank", bank.Address).Stringer("amount", currentLiabilityAmount).Msg("repaying all")

	balance.EmptyDeactivated(ba.clk)

	if err := bank.ChangeLiabilityShares(totalLiabilityShares.Neg(), false); err != nil {
		return fixed.Zero, err
	}

	return currentLiabilityAmount, nil
}

func (ba *BankAccountWrapper) IncreaseBalanceInternal(log Log, balanceDelta fixed.I80F48, operationType BalanceIncreaseType) error {
	log.Debug().Stringer("bank", ba.Bank.Address).Stringer("delta", balanceDelta).Stringer("type", operationType).Msg("balance increase")

	balance := ba.Balance
	bank := ba.Bank

	currentLiabilityAmount := bank.GetLiabilityQuantity(balance.LiabilityShares)
	liabilityAmountDecrease := fixed.Min(currentLiabilityAmount, balanceDelta)
	assetAmountIncrease := fixed.Max(balanceDelta.Sub(currentLiabilityAmount), fixed.Zero)

	switch operationType {
	case BalanceIncreaseTypeRepayOnly:
		if !assetAmountIncrease.IsZero() {
			return ErrOperationRepayOnly
		}
	case BalanceIncreaseTypeDepositOnly:
		if !liabilityAmountDecrease.IsZero() {
			return ErrOperationDepositOnly
		}
	}

	if err := bank.AssertOperationalMode(assetAmountIncrease.GreaterThan(ZERO_AMOUNT_THRESHOLD)); err != nil {
		return err
	}

	assetSharesIncrease, err := bank.GetAssetShares(assetAmountIncrease)
	if err != nil {
		return err
	}
	if err := balance.ChangeAssetShares(assetSharesIncrease); err != nil {
		return err
	}
	if err := bank.ChangeAssetShares(assetSharesIncrease, operationType == BalanceIncreaseTypeBypassDepositLimit); err != nil {
		return err
	}

	liabilitySharesDecrease, err := bank.GetLiabilityShares(liabilityAmountDecrease)
	if err != nil {
		return err
	}
	if err := balance.ChangeLiabilityShares(liabilitySharesDecrease.Neg()); err != nil {
		return err
	}
	if err := bank.ChangeLiabilityShares(liabilitySharesDecrease.Neg(), true); err != nil {
		return err
	}

	balance.Active = true
	balance.LastUpdate = ba.clk.Now().Unix()

	return bank.CheckUtilizationRatio()
}

func (ba *BankAccountWrapper) DecreaseBalanceInternal(log Log, balanceDelta fixed.I80F48, operationType BalanceDecreaseType) error {
	log.Debug().Stringer("bank", ba.Bank.Address).Stringer("delta", balanceDelta).Stringer("type", operationType).Msg("balance decrease")

	balance := ba.Balance
	bank := ba.Bank

	currentAssetAmount := bank.GetAssetQuantity(balance.AssetShares)
	assetAmountDecrease := fixed.Min(currentAssetAmount, balanceDelta)
	liabilityAmountIncrease := fixed.Max(balanceDelta.Sub(currentAssetAmount), fixed.Zero)

	switch operationType {
	case BalanceDecreaseTypeWithdrawOnly:
		if !liabilityAmountIncrease.IsZero() {
			return ErrOperationWithdrawOnly
		}
	case BalanceDecreaseTypeBorrowOnly:
		if !assetAmountDecrease.IsZero() {
			return ErrOperationBorrowOnly
		}
	}

	if err := bank.AssertOperationalMode(liabilityAmountIncrease.GreaterThan(ZERO_AMOUNT_THRESHOLD)); err != nil {
		return err
	}

	assetSharesDecrease, err := bank.GetAssetShares(assetAmountDecrease)
	if err != nil {
		return err
	}
	if err := balance.ChangeAssetShares(assetSharesDecrease.Neg()); err != nil {
		return err
	}
	if err := bank.ChangeAssetShares(assetSharesDecrease.Neg(), false); err != nil {
		return err
	}

	liabilitySharesIncrease, err := bank.GetLiabilityShares(liabilityAmountIncrease)
	if err != nil {
		return err
	}
	if err := balance.ChangeLiabilityShares(liabilitySharesIncrease); err != nil {
		return err
	}
	if err := bank.ChangeLiabilityShares(liabilitySharesIncrease, operationType == BalanceDecreaseTypeBypassBorrowLimit); err != nil {
		return err
	}

	balance.Active = true
	balance.LastUpdate = ba.clk.Now().Unix()

	return bank.CheckUtilizationRatio()
}

type BankAccountWithPriceFeed struct {
	Bank      *Bank
	Balance   *Balance
	PriceFeed *OraclePrice
}

// CalcWeightedAssetsAndLiabsValues values the non-empty side with the requirement's weights and biased prices.
func (ba *BankAccountWithPriceFeed) CalcWeightedAssetsAndLiabsValues(requirementType RequirementType) (fixed.I80F48, fixed.I80F48, error) {
	side, err := ba.Balance.GetSide()
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}

	switch side {
	case BalanceSideAssets:
		assets, err := ba.CalcWeightedAssets(requirementType)
		if err != nil {
			return fixed.Zero, fixed.Zero, err
		}
		return assets, fixed.Zero, nil
	case BalanceSideLiabilities:
		liabs, err := ba.CalcWeightedLiabs(requirementType)
		if err != nil {
			return fixed.Zero, fixed.Zero, err
		}
		return fixed.Zero, liabs, nil
	}
	return fixed.Zero, fixed.Zero, nil
}

func (ba *BankAccountWithPriceFeed) CalcWeightedLiabs(requirementType RequirementType) (fixed.I80F48, error) {
	return ba.Bank.ComputeLiabilityUsdValue(ba.PriceFeed, ba.Balance.LiabilityShares, requirementType, High)
}

func (ba *BankAccountWithPriceFeed) CalcWeightedAssets(requirementType RequirementType) (fixed.I80F48, error) {
	return ba.Bank.ComputeAssetUsdValue(ba.PriceFeed, ba.Balance.AssetShares, requirementType, Low)
}

// CalcAssetsAndLiabsValues is the unbiased counterpart of CalcWeightedAssetsAndLiabsValues.
func (ba *BankAccountWithPriceFeed) CalcAssetsAndLiabsValues(requirementType RequirementType) (fixed.I80F48, fixed.I80F48, error) {
	return ba.Balance.ComputeUsdValue(ba.Bank, ba.PriceFeed, requirementType)
}

func (ba *BankAccountWithPriceFeed) IsEmpty(side BalanceSide) bool {
	return ba.Balance.IsEmpty(side)
}
