package oracle

import (
	"bytes"
	"encoding/hex"
	"math/big"

	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/fixed"
	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"
)

type (
	// SwitchboardDecimal is mantissa / 10^scale.
	SwitchboardDecimal struct {
		Mantissa *big.Int
		Scale    uint32
	}

	// AggregatorRound is the latest confirmed round of a v2 aggregator.
	AggregatorRound struct {
		NumSuccess         uint32
		RoundOpenTimestamp int64
		Result             SwitchboardDecimal
		StdDeviation       SwitchboardDecimal
	}

	// PullFeed holds the fields of a pull feed account the resolver reads.
	PullFeed struct {
		FeedHash            [32]byte
		LastUpdateTimestamp int64
		Value               *big.Int
		StdDev              *big.Int
	}
)

func (d SwitchboardDecimal) ToFixed() (fixed.I80F48, error) {
	if d.Mantissa == nil {
		return fixed.Zero, nil
	}
	return fixed.FromScaled(d.Mantissa, -int32(d.Scale))
}

func readSwitchboardDecimal(dec *bin.Decoder) (SwitchboardDecimal, error) {
	mantissa, err := dec.ReadInt128(bin.LE)
	if err != nil {
		return SwitchboardDecimal{}, err
	}
	scale, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return SwitchboardDecimal{}, err
	}
	return SwitchboardDecimal{Mantissa: mantissa.BigInt(), Scale: scale}, nil
}

func DecodeAggregatorRound(data []byte) (*AggregatorRound, error) {
	if len(data) < switchboardV2MinLen {
		return nil, errors.Wrapf(ErrInvalidOracleData, "aggregator account is %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], switchboardV2Discriminator[:]) {
		return nil, errors.Wrap(ErrInvalidOracleData, "aggregator discriminator mismatch")
	}

	dec := bin.NewBorshDecoder(data)
	r := &AggregatorRound{}
	var err error
	wrap := func(err error, field string) error {
		return errors.Wrapf(ErrInvalidOracleData, "aggregator %s: %v", field, err)
	}

	if err = dec.SetPosition(341); err != nil {
		return nil, wrap(err, "round")
	}
	if r.NumSuccess, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, wrap(err, "num success")
	}
	if err = dec.SetPosition(358); err != nil {
		return nil, wrap(err, "round open timestamp")
	}
	if r.RoundOpenTimestamp, err = dec.ReadInt64(bin.LE); err != nil {
		return nil, wrap(err, "round open timestamp")
	}
	if r.Result, err = readSwitchboardDecimal(dec); err != nil {
		return nil, wrap(err, "result")
	}
	if err = dec.SetPosition(386); err != nil {
		return nil, wrap(err, "std deviation")
	}
	if r.StdDeviation, err = readSwitchboardDecimal(dec); err != nil {
		return nil, wrap(err, "std deviation")
	}
	return r, nil
}

// parseSwitchboardV2 serves the confirmed round as both realtime and weighted price.
func parseSwitchboardV2(data []byte) (*core.OraclePrice, error) {
	r, err := DecodeAggregatorRound(data)
	if err != nil {
		return nil, err
	}
	if r.NumSuccess == 0 {
		return nil, errors.Wrap(ErrInvalidOracleData, "aggregator round has no successful responses")
	}

	price, err := r.Result.ToFixed()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidOracleData, err.Error())
	}
	stdDev, err := r.StdDeviation.ToFixed()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidOracleData, err.Error())
	}
	return switchboardPrice(price, stdDev, r.RoundOpenTimestamp), nil
}

func switchboardPrice(price, stdDev fixed.I80F48, timestamp int64) *core.OraclePrice {
	conf := core.CapConfidenceInterval(price, stdDev.Mul(SWB_PRICE_CONF_INTERVALS))
	p := core.NewPriceWithConfidence(price, conf)
	return &core.OraclePrice{
		PriceRealtime: p,
		PriceWeighted: p,
		Timestamp:     timestamp,
	}
}

func DecodePullFeed(data []byte) (*PullFeed, error) {
	if len(data) < switchboardPullMinLen {
		return nil, errors.Wrapf(ErrInvalidOracleData, "pull feed account is %d bytes", len(data))
	}

	f := &PullFeed{}
	copy(f.FeedHash[:], data[2120:2152])

	dec := bin.NewBorshDecoder(data)
	wrap := func(err error, field string) error {
		return errors.Wrapf(ErrInvalidOracleData, "pull feed %s: %v", field, err)
	}

	if err := dec.SetPosition(2216); err != nil {
		return nil, wrap(err, "last update timestamp")
	}
	ts, err := dec.ReadInt64(bin.LE)
	if err != nil {
		return nil, wrap(err, "last update timestamp")
	}
	f.LastUpdateTimestamp = ts

	if err := dec.SetPosition(2264); err != nil {
		return nil, wrap(err, "value")
	}
	value, err := dec.ReadInt128(bin.LE)
	if err != nil {
		return nil, wrap(err, "value")
	}
	stdDev, err := dec.ReadInt128(bin.LE)
	if err != nil {
		return nil, wrap(err, "std dev")
	}
	f.Value = value.BigInt()
	f.StdDev = stdDev.BigInt()
	return f, nil
}

// FeedHashHex is the crossbar identifier of the feed.
func (f *PullFeed) FeedHashHex() string {
	return hex.EncodeToString(f.FeedHash[:])
}

// PullFeedHash decodes only the feed hash of a pull feed account.
func PullFeedHash(data []byte) (string, error) {
	f, err := DecodePullFeed(data)
	if err != nil {
		return "", err
	}
	return f.FeedHashHex(), nil
}

func parseSwitchboardPull(data []byte) (*core.OraclePrice, error) {
	f, err := DecodePullFeed(data)
	if err != nil {
		return nil, err
	}

	price, err := fixed.FromScaled(f.Value, switchboardPullExpo)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidOracleData, err.Error())
	}
	stdDev, err := fixed.FromScaled(f.StdDev, switchboardPullExpo)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidOracleData, err.Error())
	}
	return switchboardPrice(price, stdDev, f.LastUpdateTimestamp), nil
}
