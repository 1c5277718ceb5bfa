package scoring

import "github.com/shopspring/decimal"

// Policy holds the business constants the engine scores against.
type Policy struct {
	// Performance classifier
	PotentialUnit   decimal.Decimal // estimated potential at 100% predicted potential
	OverMultiplier  decimal.Decimal
	UnderMultiplier decimal.Decimal

	// Ask recommender
	AskBaseMultiplier    decimal.Decimal
	AskUpgradeMultiplier decimal.Decimal
	FallbackAverageGift  decimal.Decimal // used when no average can be derived

	// Capacity narrative
	CapacityUnit decimal.Decimal // modeled capacity at 100% predicted potential

	// Tag rules
	BigGiverThreshold decimal.Decimal
	// PersuadableEngagementThreshold is compared against the 0-100 engagement
	// score. The default of 8 is carried over unchanged until product confirms
	// the intended scale.
	PersuadableEngagementThreshold float64
	HighValueRegions               []string // case-sensitive location substrings
	PersuadableOverrides           []string // donor names, matched case-insensitively
	NewOrRisingMaxGifts            int
	LapsedAfterDays                int
	IdentityBucketModulus          uint32
}

// Defaults returns the default scoring policy.
func Defaults() Policy {
	return Policy{
		PotentialUnit:   decimal.NewFromInt(2000),
		OverMultiplier:  decimal.NewFromFloat(1.2),
		UnderMultiplier: decimal.NewFromFloat(0.6),

		AskBaseMultiplier:    decimal.NewFromFloat(1.1),
		AskUpgradeMultiplier: decimal.NewFromFloat(1.15),
		FallbackAverageGift:  decimal.NewFromInt(100),

		CapacityUnit: decimal.NewFromInt(24500),

		BigGiverThreshold:              decimal.NewFromInt(500),
		PersuadableEngagementThreshold: 8,
		HighValueRegions:               []string{"CA", "NY", "FL", "TX"},
		NewOrRisingMaxGifts:            3,
		LapsedAfterDays:                180,
		IdentityBucketModulus:          5,
	}
}
