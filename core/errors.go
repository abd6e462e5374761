package core

import "github.com/pkg/errors"

var (
	ErrInvalidConfig         = errors.New("invalid bank config")
	ErrNegativeInterestRate  = errors.New("negative interest rate")
	ErrOptimalUr             = errors.New("optimal utilization rate must be in (0, 1]")
	ErrPlateauIr             = errors.New("plateau interest rate must be positive")
	ErrMaxIr                 = errors.New("max interest rate must be positive")
	ErrPlateauGreaterThanMax = errors.New("plateau interest rate is greater than max interest rate")
	ErrNegativeFee           = errors.New("interest fee must not be negative")
	ErrInvalidCurvePoints    = errors.New("invalid multipoint curve")
	ErrUnknownOracleSetup    = errors.New("unknown oracle setup")
	ErrOracleMaxAgeTooLong   = errors.New("oracle max age too long")

	ErrBankNotFound    = errors.New("bank not found")
	ErrMissingPrice    = errors.New("missing oracle price")
	ErrBalanceNotFound = errors.New("lending account balance not found")

	ErrIllegalBalanceState         = errors.New("illegal balance state")
	ErrAccountInFlashloan          = errors.New("account is in flashloan")
	ErrAccountDisabled             = errors.New("account is disabled")
	ErrRiskEngineInitRejected      = errors.New("risk engine rejected: account below requirement")
	ErrIllegalLiquidation          = errors.New("illegal liquidation")
	ErrAccountNotUnhealthy         = errors.New("account is not unhealthy")
	ErrAccountNotBankrupt          = errors.New("account is not bankrupt")
	ErrIsolatedAccountIllegalState = errors.New("isolated risk tier account holds more than one liability")

	ErrBankPaused     = errors.New("bank is paused")
	ErrBankReduceOnly = errors.New("bank is reduce only")
	ErrBankKilled     = errors.New("bank was killed by bankruptcy")

	ErrBankAssetCapacityExceeded     = errors.New("bank deposit capacity exceeded")
	ErrBankLiabilityCapacityExceeded = errors.New("bank borrow capacity exceeded")
	ErrIllegalUtilizationRatio       = errors.New("bank liabilities exceed assets")

	ErrOperationRepayOnly    = errors.New("operation is repay only")
	ErrOperationWithdrawOnly = errors.New("operation is withdraw only")
	ErrOperationDepositOnly  = errors.New("operation is deposit only")
	ErrOperationBorrowOnly   = errors.New("operation is borrow only")

	ErrEmodeInvalid  = errors.New("invalid emode settings")
	ErrUnknownAction = errors.New("unknown action")
)
