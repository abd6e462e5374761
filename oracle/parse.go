package oracle

import (
	"github.com/DomeLiquid/riskcore/core"
	"github.com/pkg/errors"
)

// DecodePriceInfo decodes an oracle account and reports malformed data as ErrInvalidOracleData.
func DecodePriceInfo(setup core.OracleSetup, data []byte) (*core.OraclePrice, error) {
	switch setup {
	case core.OracleSetupNone:
		return core.ZeroOraclePrice(0), nil
	case core.PythLegacy:
		return parsePythLegacy(data)
	case core.PythPushOracle, core.StakedWithPythPush:
		return parsePythPush(data)
	case core.SwitchboardV2:
		return parseSwitchboardV2(data)
	case core.SwitchboardPull:
		return parseSwitchboardPull(data)
	default:
		return nil, errors.Wrapf(core.ErrUnknownOracleSetup, "setup %d", setup)
	}
}

// ParsePriceInfo never fails on bad account data: it logs and returns a zero record.
// Only an unknown setup is an error.
func ParsePriceInfo(log core.Log, setup core.OracleSetup, data []byte) (*core.OraclePrice, error) {
	price, err := DecodePriceInfo(setup, data)
	if err == nil {
		return price, nil
	}
	if errors.Is(err, core.ErrUnknownOracleSetup) {
		return nil, err
	}

	if log == nil {
		log = core.NopLog()
	}
	log.Warn().Err(err).Str("setup", setup.String()).Int("len", len(data)).Msg("invalid oracle data, using zero price")
	return core.ZeroOraclePrice(0), nil
}
