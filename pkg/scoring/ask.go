package scoring

import "github.com/shopspring/decimal"

const (
	rationaleMaintain = "maintain current level to avoid donor fatigue"
	rationaleUpgrade  = "safe to upgrade based on wealth indicators"
	rationaleStandard = "based on average gift, giving capacity, and recent engagement"
)

// RecommendAsk derives the next ask from the average gift and performance.
// The amount is rounded to whole units and never negative.
func (p Policy) RecommendAsk(averageGift decimal.Decimal, kind PerformanceKind) AskRecommendation {
	if averageGift.IsNegative() {
		averageGift = decimal.Zero
	}
	base := averageGift.Mul(p.AskBaseMultiplier)

	switch kind {
	case PerformanceOver:
		return AskRecommendation{Amount: averageGift.Round(0), Rationale: rationaleMaintain}
	case PerformanceUnder:
		return AskRecommendation{Amount: base.Mul(p.AskUpgradeMultiplier).Round(0), Rationale: rationaleUpgrade}
	default:
		return AskRecommendation{Amount: base.Round(0), Rationale: rationaleStandard}
	}
}
