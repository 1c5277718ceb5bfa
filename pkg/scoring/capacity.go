package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const noCapacityMessage = "No modeled capacity available."

// ModeledCapacity scales CapacityUnit by predictedPotential percent.
func (p Policy) ModeledCapacity(predictedPotential int) decimal.Decimal {
	return decimal.NewFromInt(int64(predictedPotential)).Div(hundred).Mul(p.CapacityUnit)
}

// DescribeCapacity buckets totalRaised as a percentage of modeledCapacity.
func DescribeCapacity(totalRaised, modeledCapacity decimal.Decimal) CapacityNarrative {
	if !modeledCapacity.IsPositive() {
		return CapacityNarrative{Message: noCapacityMessage, Severity: SeverityInfo}
	}

	pct := int(totalRaised.Div(modeledCapacity).Mul(hundred).Round(0).IntPart())

	switch {
	case pct <= 0:
		return CapacityNarrative{
			Message:  "Giving at 0% of capacity — no gifts this cycle.",
			Severity: SeverityCritical,
			Percent:  0,
		}
	case pct <= 70:
		return CapacityNarrative{
			Message:  fmt.Sprintf("Donor below capacity at %d%% — eligible for upgrade.", pct),
			Severity: SeverityWarning,
			Percent:  pct,
		}
	case pct <= 89:
		return CapacityNarrative{
			Message:  fmt.Sprintf("Donor nearing full capacity at %d%%.", pct),
			Severity: SeverityInfo,
			Percent:  pct,
		}
	case pct <= 99:
		return CapacityNarrative{
			Message:  fmt.Sprintf("Donor at high-capacity utilization at %d%%.", pct),
			Severity: SeveritySuccess,
			Percent:  pct,
		}
	default:
		return CapacityNarrative{
			Message:  "Donor giving at or above capacity at 100%.",
			Severity: SeveritySuccess,
			Percent:  100,
		}
	}
}
