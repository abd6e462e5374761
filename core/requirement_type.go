package core

type RequirementType uint8

const (
	Initial RequirementType = iota
	Maintenance
	Equity
)

func (rt RequirementType) String() string {
	switch rt {
	case Initial:
		return "Initial"
	case Maintenance:
		return "Maintenance"
	case Equity:
		return "Equity"
	default:
		return "Unknown"
	}
}

// IsWeightedPrice is true only for the initial requirement.
func (rt RequirementType) IsWeightedPrice() bool {
	return rt == Initial
}

func (rt RequirementType) GetOraclePriceType() OraclePriceType {
	if rt.IsWeightedPrice() {
		return TimeWeighted
	}
	return RealTime
}
