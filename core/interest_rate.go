package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/shopspring/decimal"
)

type InterestRateCurveType uint8

const (
	CurveTypeLegacy InterestRateCurveType = iota
	CurveTypeMultipoint
)

func (t InterestRateCurveType) String() string {
	switch t {
	case CurveTypeLegacy:
		return "Legacy"
	case CurveTypeMultipoint:
		return "Multipoint"
	default:
		return "Unknown"
	}
}

type (
	// RatePoint is a u32 encoded knot of the multipoint curve. Util 0 marks padding.
	RatePoint struct {
		Util uint32 `json:"util"`
		Rate uint32 `json:"rate"`
	}

	InterestRateConfig struct {
		OptimalUtilizationRate fixed.I80F48 `json:"optimalUtilizationRate"`
		PlateauInterestRate    fixed.I80F48 `json:"plateauInterestRate"`
		MaxInterestRate        fixed.I80F48 `json:"maxInterestRate"`

		InsuranceFeeFixedApr   fixed.I80F48 `json:"insuranceFeeFixedApr"`
		InsuranceIrFee         fixed.I80F48 `json:"insuranceIrFee"`
		ProtocolFixedFeeApr    fixed.I80F48 `json:"protocolFixedFeeApr"`
		ProtocolIrFee          fixed.I80F48 `json:"protocolIrFee"`
		ProtocolOriginationFee fixed.I80F48 `json:"protocolOriginationFee"`

		CurveType       InterestRateCurveType   `json:"curveType"`
		ZeroUtilRate    uint32                  `json:"zeroUtilRate"`
		HundredUtilRate uint32                  `json:"hundredUtilRate"`
		Points          [CURVE_POINTS]RatePoint `json:"points"`
	}
)

// CalcInterestRate returns the lending, borrowing, group fee and insurance fee APRs
// for a utilization ratio. The ratio is clamped to [0, 1].
func (i *InterestRateConfig) CalcInterestRate(utilizationRatio fixed.I80F48) (fixed.I80F48, fixed.I80F48, fixed.I80F48, fixed.I80F48, error) {
	ur := clampUnit(utilizationRatio)

	rateFee := i.ProtocolIrFee.Add(i.InsuranceIrFee)
	totalFixedFeeApr := i.ProtocolFixedFeeApr.Add(i.InsuranceFeeFixedApr)

	baseRate, err := i.InterestRateCurve(ur)
	if err != nil {
		return fixed.Zero, fixed.Zero, fixed.Zero, fixed.Zero, err
	}

	borrowingRate := baseRate
	// borrowing * ur * (1 - ir fees) - fixed fees, floored at zero
	lendingRate := fixed.Max(baseRate.Mul(ur).Mul(ONE.Sub(rateFee)).Sub(totalFixedFeeApr), fixed.Zero)

	groupFeesApr := i.CalcFeeRate(baseRate, i.ProtocolIrFee, i.ProtocolFixedFeeApr)
	insuranceFeesApr := i.CalcFeeRate(baseRate, i.InsuranceIrFee, i.InsuranceFeeFixedApr)

	if borrowingRate.IsNegative() ||
		groupFeesApr.IsNegative() ||
		insuranceFeesApr.IsNegative() {
		return fixed.Zero, fixed.Zero, fixed.Zero, fixed.Zero, ErrNegativeInterestRate
	}

	return lendingRate, borrowingRate, groupFeesApr, insuranceFeesApr, nil
}

// InterestRateCurve is the base (borrowing) rate at a utilization ratio.
func (i *InterestRateConfig) InterestRateCurve(utilizationRatio fixed.I80F48) (fixed.I80F48, error) {
	if i.CurveType == CurveTypeMultipoint {
		return i.multipointCurve(utilizationRatio)
	}

	optimalUr := i.OptimalUtilizationRate
	plateauIr := i.PlateauInterestRate
	maxIr := i.MaxInterestRate

	if utilizationRatio.LessThanOrEqual(optimalUr) {
		// ur / optimal_ur * plateau_ir
		return utilizationRatio.Mul(plateauIr).Div(optimalUr)
	}

	// (ur - optimal_ur) / (1 - optimal_ur) * (max_ir - plateau_ir) + plateau_ir
	oneMinusOptimalUr := ONE.Sub(optimalUr)
	maxIrMinusPlateau := maxIr.Sub(plateauIr)
	utilizationRatioMinusOptimalUr := utilizationRatio.Sub(optimalUr)

	ratio, err := utilizationRatioMinusOptimalUr.Div(oneMinusOptimalUr)
	if err != nil {
		return fixed.Zero, err
	}
	return ratio.Mul(maxIrMinusPlateau).Add(plateauIr), nil
}

// multipointCurve interpolates over (0, zero rate), the non-padding points and (1, hundred rate).
func (i *InterestRateConfig) multipointCurve(utilizationRatio fixed.I80F48) (fixed.I80F48, error) {
	ur := clampUnit(utilizationRatio)

	prevUtil := fixed.Zero
	prevRate := RateFromU32(i.ZeroUtilRate)

	for _, point := range i.Points {
		if point.Util == 0 {
			continue
		}
		pointUtil := UtilFromU32(point.Util)
		pointRate := RateFromU32(point.Rate)

		if ur.LessThanOrEqual(pointUtil) {
			return rateBetweenPoints(prevUtil, prevRate, pointUtil, pointRate, ur)
		}
		prevUtil, prevRate = pointUtil, pointRate
	}

	return rateBetweenPoints(prevUtil, prevRate, ONE, RateFromU32(i.HundredUtilRate), ur)
}

func rateBetweenPoints(startX, startY, endX, endY, targetX fixed.I80F48) (fixed.I80F48, error) {
	switch {
	case endX.LessThanOrEqual(startX):
		return startY, nil
	case targetX.LessThan(startX):
		return startY, nil
	case targetX.GreaterThan(endX):
		return endY, nil
	case endY.LessThan(startY):
		return startY, nil
	}

	proportion, err := targetX.Sub(startX).Div(endX.Sub(startX))
	if err != nil {
		return fixed.Zero, err
	}
	return startY.Add(endY.Sub(startY).Mul(proportion)), nil
}

func (i *InterestRateConfig) CalcFeeRate(baseRate, irFee, fixedFeeApr fixed.I80F48) fixed.I80F48 {
	return baseRate.Mul(irFee).Add(fixedFeeApr)
}

func (i *InterestRateConfig) Validate() error {
	fees := []fixed.I80F48{
		i.InsuranceFeeFixedApr,
		i.InsuranceIrFee,
		i.ProtocolFixedFeeApr,
		i.ProtocolIrFee,
		i.ProtocolOriginationFee,
	}
	for _, fee := range fees {
		if fee.IsNegative() {
			return ErrNegativeFee
		}
	}

	switch i.CurveType {
	case CurveTypeLegacy:
		return i.validateLegacy()
	case CurveTypeMultipoint:
		return i.validatePoints()
	default:
		return ErrInvalidConfig
	}
}

func (i *InterestRateConfig) validateLegacy() error {
	optimalUr := i.OptimalUtilizationRate
	plateauIr := i.PlateauInterestRate
	maxIr := i.MaxInterestRate

	if optimalUr.LessThanOrEqual(fixed.Zero) || optimalUr.GreaterThan(ONE) {
		return ErrOptimalUr
	}
	if plateauIr.LessThanOrEqual(fixed.Zero) {
		return ErrPlateauIr
	}
	if maxIr.LessThanOrEqual(fixed.Zero) {
		return ErrMaxIr
	}
	if plateauIr.GreaterThan(maxIr) {
		return ErrPlateauGreaterThanMax
	}
	return nil
}

// validatePoints requires ascending utils, non-decreasing rates and padding only at the end.
func (i *InterestRateConfig) validatePoints() error {
	prevUtil, prevRate := uint32(0), i.ZeroUtilRate
	padding := false
	for _, point := range i.Points {
		if point.Util == 0 {
			padding = true
			continue
		}
		if padding || point.Util <= prevUtil || point.Util == U32_MAX || point.Rate < prevRate {
			return ErrInvalidCurvePoints
		}
		prevUtil, prevRate = point.Util, point.Rate
	}
	if i.HundredUtilRate < prevRate {
		return ErrInvalidCurvePoints
	}
	return nil
}

// RateFromU32 decodes a rate where u32::MAX is 1000% APR.
func RateFromU32(rate uint32) fixed.I80F48 {
	r, _ := fixed.FromUint(uint64(rate) * 10).Div(u32Max)
	return r
}

// UtilFromU32 decodes a utilization where u32::MAX is 100%.
func UtilFromU32(util uint32) fixed.I80F48 {
	u, _ := fixed.FromUint(uint64(util)).Div(u32Max)
	return u
}

// ComputeUtilizationRate is borrows / deposits, or zero without deposits.
func ComputeUtilizationRate(totalDeposits, totalBorrows fixed.I80F48) fixed.I80F48 {
	if !totalDeposits.IsPositive() {
		return fixed.Zero
	}
	ur, _ := totalBorrows.Div(totalDeposits)
	return ur
}

func clampUnit(x fixed.I80F48) fixed.I80F48 {
	return fixed.Max(fixed.Zero, fixed.Min(ONE, x))
}

func CalcInterestRateAccrualStateChanges(log Log, timeDelta uint64, totalAssetsAmount, totalLiabilitiesAmount fixed.I80F48, interestRateConfig InterestRateConfig, assetShareValue, liabilityShareValue fixed.I80F48) (fixed.I80F48, fixed.I80F48, fixed.I80F48, fixed.I80F48, error) {
	utilizationRate := ComputeUtilizationRate(totalAssetsAmount, totalLiabilitiesAmount)

	lendingApr, borrowingApr, groupFeeApr, insuranceFeeApr, err := interestRateConfig.CalcInterestRate(utilizationRate)
	if err != nil {
		return fixed.Zero, fixed.Zero, fixed.Zero, fixed.Zero, err
	}

	log.Debug().
		Uint64("timeDelta", timeDelta).
		Stringer("utilizationRate", utilizationRate).
		Stringer("lendingApr", lendingApr).
		Stringer("borrowingApr", borrowingApr).
		Stringer("groupFeeApr", groupFeeApr).
		Stringer("insuranceFeeApr", insuranceFeeApr).
		Msg("accrue interest")

	accruedAssetShareValue, err := CalcAccruedInterestPaymentPerPeriod(lendingApr, timeDelta, assetShareValue)
	if err != nil {
		return fixed.Zero, fixed.Zero, fixed.Zero, fixed.Zero, err
	}
	accruedLiabilityShareValue, err := CalcAccruedInterestPaymentPerPeriod(borrowingApr, timeDelta, liabilityShareValue)
	if err != nil {
		return fixed.Zero, fixed.Zero, fixed.Zero, fixed.Zero, err
	}

	groupFeePaymentForPeriod, err := CalcInterestPaymentForPeriod(groupFeeApr, timeDelta, totalLiabilitiesAmount)
	if err != nil {
		return fixed.Zero, fixed.Zero, fixed.Zero, fixed.Zero, err
	}
	insuranceFeePaymentForPeriod, err := CalcInterestPaymentForPeriod(insuranceFeeApr, timeDelta, totalLiabilitiesAmount)
	if err != nil {
		return fixed.Zero, fixed.Zero, fixed.Zero, fixed.Zero, err
	}

	return accruedAssetShareValue, accruedLiabilityShareValue, groupFeePaymentForPeriod, insuranceFeePaymentForPeriod, nil
}

// CalcAccruedInterestPaymentPerPeriod returns value * (1 + apr * dt / year).
func CalcAccruedInterestPaymentPerPeriod(apr fixed.I80F48, timeDelta uint64, value fixed.I80F48) (fixed.I80F48, error) {
	irPerPeriod, err := apr.Mul(fixed.FromUint(timeDelta)).Div(fixed.FromInt(SECONDS_PER_YEAR))
	if err != nil {
		return fixed.Zero, err
	}
	return value.CheckedMul(ONE.Add(irPerPeriod))
}

// CalcInterestPaymentForPeriod returns value * apr * dt / year.
func CalcInterestPaymentForPeriod(apr fixed.I80F48, timeDelta uint64, value fixed.I80F48) (fixed.I80F48, error) {
	payment, err := value.CheckedMul(apr)
	if err != nil {
		return fixed.Zero, err
	}
	return payment.Mul(fixed.FromUint(timeDelta)).Div(fixed.FromInt(SECONDS_PER_YEAR))
}

const apyPrecision = 24

// AprToApy compounds hourly: (1 + apr / hours)^hours - 1, rounded to 8 places.
// Intermediate products are truncated so the exponentiation stays bounded.
func AprToApy(apr decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	hours := int64(HOURS_PER_YEAR)

	base := one.Add(apr.DivRound(decimal.NewFromInt(hours), apyPrecision))
	result := one
	for n := hours; n > 0; n >>= 1 {
		if n&1 == 1 {
			result = result.Mul(base).Truncate(apyPrecision)
		}
		base = base.Mul(base).Truncate(apyPrecision)
	}
	return result.Sub(one).Round(8)
}
