package oracle

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
)

const (
	PYTH_SPONSORED_SHARD_ID     uint16 = 0
	MARGINFI_SPONSORED_SHARD_ID uint16 = 3301

	pythLegacyMagic   = 0xa1b2c3d4
	pythStatusTrading = 1

	// fixed layout sizes
	pythLegacyMinLen      = 228
	switchboardV2MinLen   = 406
	switchboardPullMinLen = 2296
)

var (
	PYTH_PUSH_ORACLE_ID = solana.MustPublicKeyFromBase58("pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT")

	PYTH_PRICE_CONF_INTERVALS = fixed.MustFromString("2.12")
	SWB_PRICE_CONF_INTERVALS  = fixed.MustFromString("1.96")

	switchboardV2Discriminator = [8]byte{217, 230, 65, 101, 201, 162, 27, 125}

	// pull feed values are fixed point with 18 decimals
	switchboardPullExpo int32 = -18
)
