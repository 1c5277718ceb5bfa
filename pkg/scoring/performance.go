package scoring

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ClassifyPerformance compares total giving against the potential estimated
// from predictedPotential. The Over, Under and Normal branches are mutually
// exclusive and checked in that order.
func (p Policy) ClassifyPerformance(totalGiving decimal.Decimal, predictedPotential int) Performance {
	estimated := decimal.NewFromInt(int64(predictedPotential)).Div(hundred).Mul(p.PotentialUnit)

	perf := Performance{EstimatedPotential: estimated}

	if !estimated.IsPositive() {
		if totalGiving.IsPositive() {
			perf.Kind = PerformanceOver
		} else {
			perf.Kind = PerformanceNormal
		}
		return perf
	}

	perf.RatioToPotential = totalGiving.Div(estimated).InexactFloat64()

	switch {
	case totalGiving.GreaterThan(estimated.Mul(p.OverMultiplier)):
		perf.Kind = PerformanceOver
	case totalGiving.LessThan(estimated.Mul(p.UnderMultiplier)):
		perf.Kind = PerformanceUnder
	default:
		perf.Kind = PerformanceNormal
	}
	return perf
}
