package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/facebookgo/clock"
)

type Balance struct {
	BankAddress  solana.PublicKey `json:"bankAddress"`
	Active       bool             `json:"active"`
	BankAssetTag AssetTag         `json:"bankAssetTag"`

	AssetShares          fixed.I80F48 `json:"assetShares"`
	LiabilityShares      fixed.I80F48 `json:"liabilityShares"`
	EmissionsOutstanding fixed.I80F48 `json:"emissionsOutstanding"`
	LastUpdate           int64        `json:"lastUpdate,string"`
}

func NewBalance(clk clock.Clock, bank *Bank) *Balance {
	return &Balance{
		BankAddress:  bank.Address,
		Active:       true,
		BankAssetTag: bank.BankConfig.AssetTag,
		LastUpdate:   clk.Now().Unix(),
	}
}

func (b *Balance) Clone() *Balance {
	c := *b
	return &c
}

// Key is the base58 bank address.
func (b *Balance) Key() string {
	return b.BankAddress.String()
}

func (b *Balance) IsEmpty(side BalanceSide) bool {
	switch side {
	case BalanceSideAssets:
		return b.AssetShares.LessThan(EMPTY_BALANCE_THRESHOLD)
	case BalanceSideLiabilities:
		return b.LiabilityShares.LessThan(EMPTY_BALANCE_THRESHOLD)
	default:
		return true
	}
}

func (b *Balance) ChangeAssetShares(delta fixed.I80F48) error {
	assetShares := b.AssetShares.Add(delta)
	if assetShares.IsNegative() {
		return ErrBankAssetCapacityExceeded
	}
	b.AssetShares = assetShares
	return nil
}

func (b *Balance) ChangeLiabilityShares(delta fixed.I80F48) error {
	liabilityShares := b.LiabilityShares.Add(delta)
	if liabilityShares.IsNegative() {
		return ErrBankLiabilityCapacityExceeded
	}
	b.LiabilityShares = liabilityShares
	return nil
}

func (b *Balance) GetSide() (BalanceSide, error) {
	assetShares := b.AssetShares
	liabilityShares := b.LiabilityShares

	if assetShares.GreaterThan(ZERO_AMOUNT_THRESHOLD) && liabilityShares.GreaterThan(ZERO_AMOUNT_THRESHOLD) {
		return BalanceSideEmpty, ErrIllegalBalanceState
	}

	if assetShares.GreaterThanOrEqual(EMPTY_BALANCE_THRESHOLD) {
		return BalanceSideAssets, nil
	}

	if liabilityShares.GreaterThanOrEqual(EMPTY_BALANCE_THRESHOLD) {
		return BalanceSideLiabilities, nil
	}

	return BalanceSideEmpty, nil
}

func (b *Balance) EmptyDeactivated(clk clock.Clock) {
	b.Active = false
	b.AssetShares = fixed.Zero
	b.LiabilityShares = fixed.Zero
	b.EmissionsOutstanding = fixed.Zero
	b.LastUpdate = clk.Now().Unix()
}

// ComputeUsdValue values both sides at the unbiased price.
func (b *Balance) ComputeUsdValue(bank *Bank, oraclePrice *OraclePrice, requirementType RequirementType) (fixed.I80F48, fixed.I80F48, error) {
	assetsValue, err := bank.ComputeAssetUsdValue(oraclePrice, b.AssetShares, requirementType, Original)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	liabilitiesValue, err := bank.ComputeLiabilityUsdValue(oraclePrice, b.LiabilityShares, requirementType, Original)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	return assetsValue, liabilitiesValue, nil
}

// GetUsdValueWithPriceBias values assets at the lowest and liabilities at the highest price.
func (b *Balance) GetUsdValueWithPriceBias(bank *Bank, oraclePrice *OraclePrice, requirementType RequirementType) (fixed.I80F48, fixed.I80F48, error) {
	assetsValue, err := bank.ComputeAssetUsdValue(oraclePrice, b.AssetShares, requirementType, Low)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	liabilitiesValue, err := bank.ComputeLiabilityUsdValue(oraclePrice, b.LiabilityShares, requirementType, High)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	return assetsValue, liabilitiesValue, nil
}

func (b *Balance) ComputeQuantity(bank *Bank) (fixed.I80F48, fixed.I80F48) {
	assetsQuantity := bank.GetAssetQuantity(b.AssetShares)
	liabilitiesQuantity := bank.GetLiabilityQuantity(b.LiabilityShares)
	return assetsQuantity, liabilitiesQuantity
}

func (b *Balance) ComputeQuantityUi(bank *Bank) (fixed.I80F48, fixed.I80F48, error) {
	assetsQuantity, liabilitiesQuantity := b.ComputeQuantity(bank)
	assetsUi, err := bank.QuantityUi(assetsQuantity)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	liabilitiesUi, err := bank.QuantityUi(liabilitiesQuantity)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	return assetsUi, liabilitiesUi, nil
}

type BalanceIncreaseType uint8

const (
	BalanceIncreaseTypeAny BalanceIncreaseType = 1 << iota
	BalanceIncreaseTypeRepayOnly
	BalanceIncreaseTypeDepositOnly
	BalanceIncreaseTypeBypassDepositLimit
)

func (b BalanceIncreaseType) String() string {
	switch b {
	case BalanceIncreaseTypeAny:
		return "Any"
	case BalanceIncreaseTypeRepayOnly:
		return "RepayOnly"
	case BalanceIncreaseTypeDepositOnly:
		return "DepositOnly"
	case BalanceIncreaseTypeBypassDepositLimit:
		return "BypassDepositLimit"
	default:
		return "Unknown"
	}
}

type BalanceDecreaseType uint8

const (
	BalanceDecreaseTypeAny BalanceDecreaseType = 1 << iota
	BalanceDecreaseTypeWithdrawOnly
	BalanceDecreaseTypeBorrowOnly
	BalanceDecreaseTypeBypassBorrowLimit
)

func (b BalanceDecreaseType) String() string {
	switch b {
	case BalanceDecreaseTypeAny:
		return "Any"
	case BalanceDecreaseTypeWithdrawOnly:
		return "WithdrawOnly"
	case BalanceDecreaseTypeBorrowOnly:
		return "BorrowOnly"
	case BalanceDecreaseTypeBypassBorrowLimit:
		return "BypassBorrowLimit"
	default:
		return "Unknown"
	}
}
