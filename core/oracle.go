package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
)

// OracleSetup mirrors the on-chain enum order.
type OracleSetup uint8

const (
	OracleSetupNone OracleSetup = iota
	PythLegacy
	SwitchboardV2
	PythPushOracle
	SwitchboardPull
	StakedWithPythPush
)

func (os OracleSetup) String() string {
	switch os {
	case OracleSetupNone:
		return "None"
	case PythLegacy:
		return "PythLegacy"
	case SwitchboardV2:
		return "SwitchboardV2"
	case PythPushOracle:
		return "PythPushOracle"
	case SwitchboardPull:
		return "SwitchboardPull"
	case StakedWithPythPush:
		return "StakedWithPythPush"
	default:
		return "Unknown"
	}
}

func (os OracleSetup) IsValid() bool {
	return os <= StakedWithPythPush
}

// IsPythPush reports whether the oracle key is derived from a feed id.
func (os OracleSetup) IsPythPush() bool {
	return os == PythPushOracle || os == StakedWithPythPush
}

type OraclePriceType uint8

const (
	TimeWeighted OraclePriceType = iota
	RealTime
)

func (t OraclePriceType) String() string {
	switch t {
	case TimeWeighted:
		return "TimeWeighted"
	case RealTime:
		return "RealTime"
	default:
		return "Unknown"
	}
}

type PriceBias uint8

const (
	Low PriceBias = iota
	High
	Original
)

func (pb PriceBias) String() string {
	switch pb {
	case Low:
		return "Low"
	case High:
		return "High"
	case Original:
		return "Original"
	default:
		return "Unknown"
	}
}

type (
	PriceWithConfidence struct {
		Price        fixed.I80F48 `json:"price"`
		Confidence   fixed.I80F48 `json:"confidence"`
		LowestPrice  fixed.I80F48 `json:"lowestPrice"`
		HighestPrice fixed.I80F48 `json:"highestPrice"`
	}

	// OraclePrice is the resolved price of one bank.
	OraclePrice struct {
		PriceRealtime PriceWithConfidence `json:"priceRealtime"`
		PriceWeighted PriceWithConfidence `json:"priceWeighted"`
		Timestamp     int64               `json:"timestamp,string"`
	}
)

// NewPriceWithConfidence derives the biased edges. The lowest edge is clamped at zero.
func NewPriceWithConfidence(price, confidence fixed.I80F48) PriceWithConfidence {
	return PriceWithConfidence{
		Price:        price,
		Confidence:   confidence,
		LowestPrice:  fixed.Max(price.Sub(confidence), fixed.Zero),
		HighestPrice: price.Add(confidence),
	}
}

// FlatPrice has no confidence band.
func FlatPrice(price fixed.I80F48) PriceWithConfidence {
	return NewPriceWithConfidence(price, fixed.Zero)
}

// CapConfidenceInterval bounds conf by MAX_CONF_INTERVAL of the price.
func CapConfidenceInterval(price, conf fixed.I80F48) fixed.I80F48 {
	maxConf := price.Abs().Mul(MAX_CONF_INTERVAL)
	return fixed.Min(conf.Abs(), maxConf)
}

func ZeroOraclePrice(timestamp int64) *OraclePrice {
	return &OraclePrice{
		PriceRealtime: FlatPrice(fixed.Zero),
		PriceWeighted: FlatPrice(fixed.Zero),
		Timestamp:     timestamp,
	}
}

// NewFlatOraclePrice uses the same value for both price types with zero confidence.
func NewFlatOraclePrice(price fixed.I80F48, timestamp int64) *OraclePrice {
	p := FlatPrice(price)
	return &OraclePrice{
		PriceRealtime: p,
		PriceWeighted: p,
		Timestamp:     timestamp,
	}
}

func (p *OraclePrice) GetPriceWithConfidence(weighted bool) PriceWithConfidence {
	if weighted {
		return p.PriceWeighted
	}
	return p.PriceRealtime
}

func (p *OraclePrice) GetPrice(bias PriceBias, weighted bool) fixed.I80F48 {
	pc := p.GetPriceWithConfidence(weighted)
	switch bias {
	case Low:
		return pc.LowestPrice
	case High:
		return pc.HighestPrice
	default:
		return pc.Price
	}
}

func (p *OraclePrice) GetPriceOfType(priceType OraclePriceType, bias PriceBias) fixed.I80F48 {
	return p.GetPrice(bias, priceType == TimeWeighted)
}

// IsZero reports an explicit zero record.
func (p *OraclePrice) IsZero() bool {
	return p.PriceRealtime.Price.IsZero() && p.PriceWeighted.Price.IsZero()
}

// IsStale reports now - timestamp > maxAge + buffer, all in seconds.
func (p *OraclePrice) IsStale(now, maxAge, buffer int64) bool {
	return now-p.Timestamp > maxAge+buffer
}
