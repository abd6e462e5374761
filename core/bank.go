package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type (
	Bank struct {
		Address      solana.PublicKey `json:"address"`
		Group        solana.PublicKey `json:"group"`
		Mint         solana.PublicKey `json:"mint"`
		MintDecimals uint8            `json:"mintDecimals"`

		AssetShareValue     fixed.I80F48 `json:"assetShareValue"`
		LiabilityShareValue fixed.I80F48 `json:"liabilityShareValue"`

		TotalLiabilityShares fixed.I80F48 `json:"totalLiabilityShares"`
		TotalAssetShares     fixed.I80F48 `json:"totalAssetShares"`

		CollectedInsuranceFeesOutstanding fixed.I80F48 `json:"collectedInsuranceFeesOutstanding"`
		CollectedGroupFeesOutstanding     fixed.I80F48 `json:"collectedGroupFeesOutstanding"`

		Flags BankFlags `json:"flags"`

		BankConfig `json:"config"`

		Emode EmodeSettings `json:"emode"`

		LastUpdate int64 `json:"lastUpdate,string"`

		// set when e-mode weights replaced the configured asset weights
		emodeApplied bool
	}

	BankConfig struct {
		AssetWeightInit  fixed.I80F48 `json:"assetWeightInit"`
		AssetWeightMaint fixed.I80F48 `json:"assetWeightMaint"`

		LiabilityWeightInit  fixed.I80F48 `json:"liabilityWeightInit"`
		LiabilityWeightMaint fixed.I80F48 `json:"liabilityWeightMaint"`

		// native units
		DepositLimit fixed.I80F48 `json:"depositLimit"`
		BorrowLimit  fixed.I80F48 `json:"borrowLimit"`

		InterestRateConfig `json:"interestRateConfig"`

		OperationalState BankOperationalState `json:"operationalState"`

		RiskTier RiskTier `json:"riskTier"`
		AssetTag AssetTag `json:"assetTag"`

		// usd, zero disables the soft limit
		TotalAssetValueInitLimit fixed.I80F48 `json:"totalAssetValueInitLimit"`

		OracleSetup  OracleSetup        `json:"oracleSetup"`
		OracleKeys   []solana.PublicKey `json:"oracleKeys"`
		OracleMaxAge int64              `json:"oracleMaxAge"`
	}
)

type BankOperationalState uint8

const (
	BankOperationalStatePaused BankOperationalState = iota
	BankOperationalStateOperational
	BankOperationalStateReduceOnly
	BankOperationalStateKilledByBankruptcy
)

func (bos BankOperationalState) String() string {
	switch bos {
	case BankOperationalStatePaused:
		return "Paused"
	case BankOperationalStateOperational:
		return "Operational"
	case BankOperationalStateReduceOnly:
		return "Reduce Only"
	case BankOperationalStateKilledByBankruptcy:
		return "Killed By Bankruptcy"
	default:
		return "Unknown"
	}
}

type RiskTier uint8

const (
	Collateral RiskTier = iota
	Isolated
)

func (rt RiskTier) String() string {
	switch rt {
	case Collateral:
		return "Collateral"
	case Isolated:
		return "Isolated"
	default:
		return "Unknown"
	}
}

type AssetTag uint8

const (
	AssetTagDefault AssetTag = iota
	AssetTagSol
	AssetTagStaked
)

func (at AssetTag) String() string {
	switch at {
	case AssetTagDefault:
		return "Default"
	case AssetTagSol:
		return "Sol"
	case AssetTagStaked:
		return "Staked"
	default:
		return "Unknown"
	}
}

type BankFlags uint8

const (
	BankFlagsBorrowActive                    BankFlags = 1 << 0
	BankFlagsLendingActive                   BankFlags = 1 << 1
	BankFlagsPermissionlessBadDebtSettlement BankFlags = 1 << 2
	BankFlagsFreezeSettings                  BankFlags = 1 << 3

	BankFlagsEmissionsActive BankFlags = BankFlagsBorrowActive | BankFlagsLendingActive
)

func (bf BankFlags) String() string {
	switch bf {
	case BankFlagsBorrowActive:
		return "Borrow Active"
	case BankFlagsLendingActive:
		return "Lending Active"
	case BankFlagsPermissionlessBadDebtSettlement:
		return "Permissionless Bad Debt Settlement"
	case BankFlagsFreezeSettings:
		return "Freeze Settings"
	case BankFlagsEmissionsActive:
		return "Emissions Active"
	default:
		return "Unknown"
	}
}

type BalanceSide uint8

const (
	BalanceSideAssets BalanceSide = iota
	BalanceSideLiabilities
	BalanceSideEmpty
)

func (bs BalanceSide) String() string {
	switch bs {
	case BalanceSideAssets:
		return "Assets"
	case BalanceSideLiabilities:
		return "Liabilities"
	case BalanceSideEmpty:
		return "Empty"
	default:
		return "Unknown"
	}
}

func (bc *BankConfig) GetWeights(requirementType RequirementType) (fixed.I80F48, fixed.I80F48) {
	switch requirementType {
	case Initial:
		return bc.AssetWeightInit, bc.LiabilityWeightInit
	case Maintenance:
		return bc.AssetWeightMaint, bc.LiabilityWeightMaint
	case Equity:
		return ONE, ONE
	default:
		return fixed.Zero, fixed.Zero
	}
}

func (bc *BankConfig) GetWeight(requirementType RequirementType, balanceSide BalanceSide) fixed.I80F48 {
	assetWeight, liabilityWeight := bc.GetWeights(requirementType)
	switch balanceSide {
	case BalanceSideAssets:
		return assetWeight
	case BalanceSideLiabilities:
		return liabilityWeight
	default:
		return fixed.Zero
	}
}

func (bc *BankConfig) Validate() error {
	assetInitW := bc.AssetWeightInit
	assetMaintW := bc.AssetWeightMaint

	if !(assetInitW.GreaterThanOrEqual(fixed.Zero) && assetInitW.LessThanOrEqual(ONE)) {
		return errors.Wrap(ErrInvalidConfig, "asset init weight out of [0, 1]")
	}
	if !assetMaintW.GreaterThanOrEqual(assetInitW) {
		return errors.Wrap(ErrInvalidConfig, "asset maint weight below init weight")
	}

	liabInitW := bc.LiabilityWeightInit
	liabMaintW := bc.LiabilityWeightMaint
	if liabInitW.LessThan(ONE) {
		return errors.Wrap(ErrInvalidConfig, "liability init weight below 1")
	}
	if liabMaintW.GreaterThan(liabInitW) || liabMaintW.LessThan(ONE) {
		return errors.Wrap(ErrInvalidConfig, "liability maint weight out of [1, init]")
	}

	if err := bc.InterestRateConfig.Validate(); err != nil {
		return err
	}

	if bc.RiskTier == Isolated && (!assetInitW.IsZero() || !assetMaintW.IsZero()) {
		return errors.Wrap(ErrInvalidConfig, "isolated bank with non-zero asset weights")
	}

	if !bc.OracleSetup.IsValid() {
		return ErrUnknownOracleSetup
	}
	if len(bc.OracleKeys) > MAX_ORACLE_KEYS {
		return errors.Wrapf(ErrInvalidConfig, "%d oracle keys", len(bc.OracleKeys))
	}
	if bc.OracleMaxAge < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative oracle max age")
	}

	return nil
}

func (bc *BankConfig) IsDepositLimitActive() bool {
	return bc.DepositLimit.IsPositive()
}

func (bc *BankConfig) IsBorrowLimitActive() bool {
	return bc.BorrowLimit.IsPositive()
}

func (bc *BankConfig) UsdInitLimitActive() bool {
	return bc.TotalAssetValueInitLimit.IsPositive()
}

func (bc BankConfig) clone() BankConfig {
	keys := make([]solana.PublicKey, len(bc.OracleKeys))
	copy(keys, bc.OracleKeys)
	bc.OracleKeys = keys
	return bc
}

// NewBank returns a bank with unit share values.
func NewBank(clk clock.Clock, address, mint solana.PublicKey, mintDecimals uint8, bankConfig BankConfig) *Bank {
	return &Bank{
		Address:             address,
		Mint:                mint,
		MintDecimals:        mintDecimals,
		AssetShareValue:     ONE,
		LiabilityShareValue: ONE,
		BankConfig:          bankConfig,
		LastUpdate:          clk.Now().Unix(),
	}
}

func (b *Bank) Clone() *Bank {
	c := *b
	c.BankConfig = b.BankConfig.clone()
	c.Emode = b.Emode.clone()
	return &c
}

func (b *Bank) GetFlag(flag BankFlags) bool {
	return b.Flags&flag == flag
}

// Key is the base58 bank address used to index bank and price maps.
func (b *Bank) Key() string {
	return b.Address.String()
}

func (b *Bank) GetAssetQuantity(assetShares fixed.I80F48) fixed.I80F48 {
	return assetShares.Mul(b.AssetShareValue)
}

func (b *Bank) GetLiabilityQuantity(liabilityShares fixed.I80F48) fixed.I80F48 {
	return liabilityShares.Mul(b.LiabilityShareValue)
}

func (b *Bank) GetAssetShares(amount fixed.I80F48) (fixed.I80F48, error) {
	return amount.Div(b.AssetShareValue)
}

func (b *Bank) GetLiabilityShares(amount fixed.I80F48) (fixed.I80F48, error) {
	return amount.Div(b.LiabilityShareValue)
}

func (b *Bank) GetTotalAssetQuantity() fixed.I80F48 {
	return b.GetAssetQuantity(b.TotalAssetShares)
}

func (b *Bank) GetTotalLiabilityQuantity() fixed.I80F48 {
	return b.GetLiabilityQuantity(b.TotalLiabilityShares)
}

// QuantityUi converts native units to whole tokens.
func (b *Bank) QuantityUi(quantity fixed.I80F48) (fixed.I80F48, error) {
	return quantity.Div(fixed.Pow10(int32(b.MintDecimals)))
}

// QuantityNative converts whole tokens to native units.
func (b *Bank) QuantityNative(quantityUi fixed.I80F48) fixed.I80F48 {
	return quantityUi.Mul(fixed.Pow10(int32(b.MintDecimals)))
}

func (b *Bank) ComputeUtilizationRate() fixed.I80F48 {
	return ComputeUtilizationRate(b.GetTotalAssetQuantity(), b.GetTotalLiabilityQuantity())
}

// ComputeInterestRates returns the current lending and borrowing APR.
func (b *Bank) ComputeInterestRates() (fixed.I80F48, fixed.I80F48, error) {
	lendingRate, borrowingRate, _, _, err := b.BankConfig.InterestRateConfig.CalcInterestRate(b.ComputeUtilizationRate())
	if err != nil {
		return fixed.Zero, fixed.Zero, errors.Wrapf(err, "bank %s", b.Address)
	}
	return lendingRate, borrowingRate, nil
}

// ComputeRemainingCapacity is the room left under the deposit and borrow limits,
// minus twice the interest accrued since the last update.
func (b *Bank) ComputeRemainingCapacity(clk clock.Clock) (depositCapacity fixed.I80F48, borrowCapacity fixed.I80F48, err error) {
	totalDeposits := b.GetTotalAssetQuantity()
	remainingCapacity := fixed.Max(fixed.Zero, b.BankConfig.DepositLimit.Sub(totalDeposits))

	totalBorrows := b.GetTotalLiabilityQuantity()
	remainingBorrowCapacity := fixed.Max(fixed.Zero, b.BankConfig.BorrowLimit.Sub(totalBorrows))

	durationSinceLastAccrual := clk.Now().Unix() - b.LastUpdate
	if durationSinceLastAccrual < 0 {
		durationSinceLastAccrual = 0
	}

	lendingRate, borrowingRate, err := b.ComputeInterestRates()
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}

	outstandingLendingInterest, err := CalcInterestPaymentForPeriod(lendingRate, uint64(durationSinceLastAccrual), totalDeposits)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	outstandingBorrowInterest, err := CalcInterestPaymentForPeriod(borrowingRate, uint64(durationSinceLastAccrual), totalBorrows)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}

	two := fixed.FromInt(2)
	depositCapacity = remainingCapacity.Sub(outstandingLendingInterest.Mul(two))
	borrowCapacity = remainingBorrowCapacity.Sub(outstandingBorrowInterest.Mul(two))
	return depositCapacity, borrowCapacity, nil
}

// WithAccruedInterest returns a copy with share values and fees accrued up to currentTimestamp.
func (b *Bank) WithAccruedInterest(log Log, currentTimestamp int64) (*Bank, error) {
	c := b.Clone()
	timeDelta := currentTimestamp - c.LastUpdate
	if timeDelta <= 0 {
		return c, nil
	}
	c.LastUpdate = currentTimestamp

	totalAssets := c.GetTotalAssetQuantity()
	totalLiabilities := c.GetTotalLiabilityQuantity()
	if totalAssets.IsZero() || totalLiabilities.IsZero() {
		return c, nil
	}

	accruedAssetShareValue, accruedLiabilityShareValue, groupFeePaymentForPeriod, insuranceFeePaymentForPeriod, err :=
		CalcInterestRateAccrualStateChanges(log, uint64(timeDelta), totalAssets, totalLiabilities, c.BankConfig.InterestRateConfig, c.AssetShareValue, c.LiabilityShareValue)
	if err != nil {
		return nil, errors.Wrapf(err, "accrue bank %s", c.Address)
	}

	c.AssetShareValue = accruedAssetShareValue
	c.LiabilityShareValue = accruedLiabilityShareValue
	c.CollectedGroupFeesOutstanding = c.CollectedGroupFeesOutstanding.Add(groupFeePaymentForPeriod)
	c.CollectedInsuranceFeesOutstanding = c.CollectedInsuranceFeesOutstanding.Add(insuranceFeePaymentForPeriod)
	return c, nil
}

func (b *Bank) AssertOperationalMode(isAssetOrLiabilityAmountIncreasing bool) error {
	switch b.BankConfig.OperationalState {
	case BankOperationalStatePaused:
		return ErrBankPaused
	case BankOperationalStateOperational:
		return nil
	case BankOperationalStateReduceOnly:
		if isAssetOrLiabilityAmountIncreasing {
			return ErrBankReduceOnly
		}
		return nil
	case BankOperationalStateKilledByBankruptcy:
		return ErrBankKilled
	}
	return nil
}

// WithEmodeWeights returns a copy whose asset weights are raised to the e-mode weights.
func (b *Bank) WithEmodeWeights(assetWeightInit, assetWeightMaint fixed.I80F48) *Bank {
	c := b.Clone()
	c.BankConfig.AssetWeightInit = fixed.Max(b.BankConfig.AssetWeightInit, assetWeightInit)
	c.BankConfig.AssetWeightMaint = fixed.Max(b.BankConfig.AssetWeightMaint, assetWeightMaint)
	c.emodeApplied = true
	return c
}

func (b *Bank) GetPrice(oraclePrice *OraclePrice, priceBias PriceBias, weightedPrice bool) fixed.I80F48 {
	return oraclePrice.GetPrice(priceBias, weightedPrice)
}

// GetAssetWeight applies the initial soft limit and the isolated tier rule.
func (b *Bank) GetAssetWeight(requirementType RequirementType, oraclePrice *OraclePrice, ignoreSoftLimits bool) (fixed.I80F48, error) {
	if requirementType == Equity {
		return ONE, nil
	}
	if b.BankConfig.RiskTier == Isolated && !b.emodeApplied {
		return fixed.Zero, nil
	}

	switch requirementType {
	case Initial:
		assetWeightInit := b.BankConfig.AssetWeightInit
		if ignoreSoftLimits || !b.BankConfig.UsdInitLimitActive() {
			return assetWeightInit, nil
		}
		totalBankCollateralValue, err := b.ComputeAssetUsdValue(oraclePrice, b.TotalAssetShares, Equity, Low)
		if err != nil {
			return fixed.Zero, err
		}
		if totalBankCollateralValue.GreaterThan(b.BankConfig.TotalAssetValueInitLimit) {
			discount, err := b.BankConfig.TotalAssetValueInitLimit.Div(totalBankCollateralValue)
			if err != nil {
				return fixed.Zero, err
			}
			return discount.Mul(assetWeightInit), nil
		}
		return assetWeightInit, nil
	case Maintenance:
		return b.BankConfig.AssetWeightMaint, nil
	}
	return fixed.Zero, nil
}

func (b *Bank) GetLiabilityWeight(requirementType RequirementType) fixed.I80F48 {
	return b.BankConfig.GetWeight(requirementType, BalanceSideLiabilities)
}

func (b *Bank) ComputeAssetUsdValue(oraclePrice *OraclePrice, assetShares fixed.I80F48, requirementType RequirementType, priceBias PriceBias) (fixed.I80F48, error) {
	assetQuantity := b.GetAssetQuantity(assetShares)
	assetWeight, err := b.GetAssetWeight(requirementType, oraclePrice, false)
	if err != nil {
		return fixed.Zero, err
	}
	return b.ComputeUsdValue(oraclePrice, assetQuantity, priceBias, requirementType.IsWeightedPrice(), assetWeight)
}

func (b *Bank) ComputeLiabilityUsdValue(oraclePrice *OraclePrice, liabilityShares fixed.I80F48, requirementType RequirementType, priceBias PriceBias) (fixed.I80F48, error) {
	liabilityQuantity := b.GetLiabilityQuantity(liabilityShares)
	liabilityWeight := b.GetLiabilityWeight(requirementType)
	return b.ComputeUsdValue(oraclePrice, liabilityQuantity, priceBias, requirementType.IsWeightedPrice(), liabilityWeight)
}

// ComputeUsdValue is quantity / 10^decimals * price * weight.
func (b *Bank) ComputeUsdValue(oraclePrice *OraclePrice, quantity fixed.I80F48, priceBias PriceBias, weightedPrice bool, weight fixed.I80F48) (fixed.I80F48, error) {
	if quantity.IsZero() {
		return fixed.Zero, nil
	}
	quantityUi, err := b.QuantityUi(quantity)
	if err != nil {
		return fixed.Zero, err
	}
	price := b.GetPrice(oraclePrice, priceBias, weightedPrice)
	return CalcValue(quantityUi, price, &weight)
}

// ComputeTvl is the unweighted, unbiased deposits minus borrows in usd.
func (b *Bank) ComputeTvl(oraclePrice *OraclePrice) (fixed.I80F48, error) {
	assets, err := b.ComputeAssetUsdValue(oraclePrice, b.TotalAssetShares, Equity, Original)
	if err != nil {
		return fixed.Zero, err
	}
	liabilities, err := b.ComputeLiabilityUsdValue(oraclePrice, b.TotalLiabilityShares, Equity, Original)
	if err != nil {
		return fixed.Zero, err
	}
	return assets.CheckedSub(liabilities)
}

func (b *Bank) ChangeAssetShares(shares fixed.I80F48, bypassDepositLimit bool) error {
	b.TotalAssetShares = b.TotalAssetShares.Add(shares)

	if shares.IsPositive() && b.BankConfig.IsDepositLimitActive() && !bypassDepositLimit {
		if b.GetTotalAssetQuantity().GreaterThan(b.BankConfig.DepositLimit) {
			return ErrBankAssetCapacityExceeded
		}
	}
	return nil
}

func (b *Bank) ChangeLiabilityShares(shares fixed.I80F48, bypassBorrowLimit bool) error {
	b.TotalLiabilityShares = b.TotalLiabilityShares.Add(shares)

	if !bypassBorrowLimit && shares.IsPositive() && b.BankConfig.IsBorrowLimitActive() {
		if b.GetTotalLiabilityQuantity().GreaterThanOrEqual(b.BankConfig.BorrowLimit) {
			return ErrBankLiabilityCapacityExceeded
		}
	}
	return nil
}

func (b *Bank) CheckUtilizationRatio() error {
	if b.GetTotalAssetQuantity().LessThan(b.GetTotalLiabilityQuantity()) {
		return ErrIllegalUtilizationRatio
	}
	return nil
}

// CalcValue is amount * weight * price.
func CalcValue(amount fixed.I80F48, price fixed.I80F48, weight *fixed.I80F48) (fixed.I80F48, error) {
	if amount.IsZero() {
		return fixed.Zero, nil
	}

	weightedAmount := amount
	if weight != nil {
		var err error
		weightedAmount, err = amount.CheckedMul(*weight)
		if err != nil {
			return fixed.Zero, err
		}
	}
	return weightedAmount.CheckedMul(price)
}
