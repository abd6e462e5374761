package oracle

import (
	"math/big"

	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"
)

type (
	PriceFeedMessage struct {
		FeedId          [32]byte
		Price           int64
		Conf            uint64
		Exponent        int32
		PublishTime     int64
		PrevPublishTime int64
		EmaPrice        int64
		EmaConf         uint64
	}

	// PriceUpdateV2 is a pyth receiver price account, without its discriminator.
	PriceUpdateV2 struct {
		WriteAuthority    solana.PublicKey
		VerificationLevel uint8
		NumSignatures     uint8
		PriceMessage      PriceFeedMessage
		PostedSlot        uint64
	}

	pythLegacyPrice struct {
		Exponent      int32
		EmaPrice      int64
		EmaConf       uint64
		Timestamp     int64
		PrevPrice     int64
		PrevConf      uint64
		AggPrice      int64
		AggConf       uint64
		AggStatus     uint32
		IsTradingLive bool
	}
)

func scaled(mantissa int64, expo int32) (fixed.I80F48, error) {
	return fixed.FromScaled(big.NewInt(mantissa), expo)
}

func scaledUnsigned(mantissa uint64, expo int32) (fixed.I80F48, error) {
	return fixed.FromScaled(new(big.Int).SetUint64(mantissa), expo)
}

func readAt(dec *bin.Decoder, pos uint, read func() error) error {
	if err := dec.SetPosition(pos); err != nil {
		return err
	}
	return read()
}

func decodePythLegacyAccount(data []byte) (*pythLegacyPrice, error) {
	if len(data) < pythLegacyMinLen {
		return nil, errors.Wrapf(ErrInvalidOracleData, "pyth legacy account is %d bytes", len(data))
	}

	dec := bin.NewBinDecoder(data)
	magic, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	if magic != pythLegacyMagic {
		return nil, errors.Wrapf(ErrInvalidOracleData, "pyth legacy magic %#x", magic)
	}

	p := &pythLegacyPrice{}
	steps := []struct {
		pos  uint
		read func() error
	}{
		{20, func() (err error) { p.Exponent, err = dec.ReadInt32(bin.LE); return }},
		{48, func() (err error) { p.EmaPrice, err = dec.ReadInt64(bin.LE); return }},
		{72, func() (err error) { p.EmaConf, err = dec.ReadUint64(bin.LE); return }},
		{96, func() (err error) { p.Timestamp, err = dec.ReadInt64(bin.LE); return }},
		{184, func() (err error) { p.PrevPrice, err = dec.ReadInt64(bin.LE); return }},
		{192, func() (err error) { p.PrevConf, err = dec.ReadUint64(bin.LE); return }},
		{208, func() (err error) { p.AggPrice, err = dec.ReadInt64(bin.LE); return }},
		{216, func() (err error) { p.AggConf, err = dec.ReadUint64(bin.LE); return }},
		{224, func() (err error) { p.AggStatus, err = dec.ReadUint32(bin.LE); return }},
	}
	for _, s := range steps {
		if err := readAt(dec, s.pos, s.read); err != nil {
			return nil, errors.Wrapf(ErrInvalidOracleData, "pyth legacy offset %d: %v", s.pos, err)
		}
	}
	p.IsTradingLive = p.AggStatus == pythStatusTrading
	return p, nil
}

// parsePythLegacy uses the aggregate price while trading and the previous one otherwise.
func parsePythLegacy(data []byte) (*core.OraclePrice, error) {
	p, err := decodePythLegacyAccount(data)
	if err != nil {
		return nil, err
	}

	rawPrice, rawConf := p.PrevPrice, p.PrevConf
	if p.IsTradingLive {
		rawPrice, rawConf = p.AggPrice, p.AggConf
	}

	realtime, err := pythPriceWithConfidence(rawPrice, rawConf, p.Exponent)
	if err != nil {
		return nil, err
	}
	weighted, err := pythPriceWithConfidence(p.EmaPrice, p.EmaConf, p.Exponent)
	if err != nil {
		return nil, err
	}

	return &core.OraclePrice{
		PriceRealtime: realtime,
		PriceWeighted: weighted,
		Timestamp:     p.Timestamp,
	}, nil
}

func pythPriceWithConfidence(price int64, conf uint64, expo int32) (core.PriceWithConfidence, error) {
	p, err := scaled(price, expo)
	if err != nil {
		return core.PriceWithConfidence{}, errors.Wrap(ErrInvalidOracleData, err.Error())
	}
	c, err := scaledUnsigned(conf, expo)
	if err != nil {
		return core.PriceWithConfidence{}, errors.Wrap(ErrInvalidOracleData, err.Error())
	}
	c = core.CapConfidenceInterval(p, c.Mul(PYTH_PRICE_CONF_INTERVALS))
	return core.NewPriceWithConfidence(p, c), nil
}

// DecodePriceUpdateV2 reads a receiver price account including its 8 byte discriminator.
func DecodePriceUpdateV2(data []byte) (*PriceUpdateV2, error) {
	if len(data) < 8 {
		return nil, errors.Wrapf(ErrInvalidOracleData, "price update is %d bytes", len(data))
	}

	dec := bin.NewBorshDecoder(data)
	if err := dec.SkipBytes(8); err != nil {
		return nil, err
	}

	u := &PriceUpdateV2{}
	wrap := func(err error, field string) error {
		return errors.Wrapf(ErrInvalidOracleData, "price update %s: %v", field, err)
	}

	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, wrap(err, "write authority")
	}
	copy(u.WriteAuthority[:], authority)

	if u.VerificationLevel, err = dec.ReadUint8(); err != nil {
		return nil, wrap(err, "verification level")
	}
	switch u.VerificationLevel {
	case 0:
		if u.NumSignatures, err = dec.ReadUint8(); err != nil {
			return nil, wrap(err, "num signatures")
		}
	case 1:
	default:
		return nil, errors.Wrapf(ErrInvalidOracleData, "verification level %d", u.VerificationLevel)
	}

	m := &u.PriceMessage
	feedId, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, wrap(err, "feed id")
	}
	copy(m.FeedId[:], feedId)

	if m.Price, err = dec.ReadInt64(bin.LE); err != nil {
		return nil, wrap(err, "price")
	}
	if m.Conf, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, wrap(err, "conf")
	}
	if m.Exponent, err = dec.ReadInt32(bin.LE); err != nil {
		return nil, wrap(err, "exponent")
	}
	if m.PublishTime, err = dec.ReadInt64(bin.LE); err != nil {
		return nil, wrap(err, "publish time")
	}
	if m.PrevPublishTime, err = dec.ReadInt64(bin.LE); err != nil {
		return nil, wrap(err, "prev publish time")
	}
	if m.EmaPrice, err = dec.ReadInt64(bin.LE); err != nil {
		return nil, wrap(err, "ema price")
	}
	if m.EmaConf, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, wrap(err, "ema conf")
	}
	if u.PostedSlot, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, wrap(err, "posted slot")
	}
	return u, nil
}

func parsePythPush(data []byte) (*core.OraclePrice, error) {
	u, err := DecodePriceUpdateV2(data)
	if err != nil {
		return nil, err
	}
	m := u.PriceMessage
	if m.PublishTime == 0 && m.Price == 0 {
		return nil, errors.Wrap(ErrInvalidOracleData, "empty price message")
	}

	realtime, err := pythPriceWithConfidence(m.Price, m.Conf, m.Exponent)
	if err != nil {
		return nil, err
	}
	weighted, err := pythPriceWithConfidence(m.EmaPrice, m.EmaConf, m.Exponent)
	if err != nil {
		return nil, err
	}

	return &core.OraclePrice{
		PriceRealtime: realtime,
		PriceWeighted: weighted,
		Timestamp:     m.PublishTime,
	}, nil
}
