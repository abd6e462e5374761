package pricesource

import (
	"sort"

	"github.com/DomeLiquid/riskcore/fixed"
)

// Median of values; an even count averages the middle pair. Empty input is not ok.
func Median(values []fixed.I80F48) (fixed.I80F48, bool) {
	if len(values) == 0 {
		return fixed.Zero, false
	}

	sorted := make([]fixed.I80F48, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	sum, err := sorted[mid-1].CheckedAdd(sorted[mid])
	if err != nil {
		// halve first when the sum does not fit
		a, _ := sorted[mid-1].Div(two)
		b, _ := sorted[mid].Div(two)
		return a.Add(b), true
	}
	m, _ := sum.Div(two)
	return m, true
}

var two = fixed.FromInt(2)
