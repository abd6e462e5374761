package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
)

const (
	SECONDS_PER_YEAR = 31_536_000

	HOURS_PER_YEAR = 365.25 * 24

	// u32 scale of the multipoint curve encoding
	U32_MAX = 0xffffffff

	CURVE_POINTS    = 5
	MAX_ORACLE_KEYS = 5

	EMODE_ENTRIES = 10

	// seconds added on top of a bank's oracle max age before a price is stale
	ORACLE_CACHE_BUFFER = 10
)

var (
	ONE = fixed.One

	ZERO_AMOUNT_THRESHOLD = fixed.Zero
	// one native unit
	EMPTY_BALANCE_THRESHOLD = fixed.One
	BANKRUPT_THRESHOLD      = fixed.MustFromString("0.1")
	MAX_CONF_INTERVAL       = fixed.MustFromString("0.05")

	LIQUIDATION_DISCOUNT       = fixed.MustFromString("0.95")
	LIQUIDATION_LIQUIDATOR_FEE = fixed.MustFromString("0.025")
	LIQUIDATION_INSURANCE_FEE  = fixed.MustFromString("0.025")

	u32Max = fixed.FromUint(U32_MAX)
	ten    = fixed.FromInt(10)
)
