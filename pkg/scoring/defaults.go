package scoring

import "slices"

// DefaultTagRules returns the standard tag rules configured from p.
func DefaultTagRules(p Policy) []TagRule {
	return []TagRule{
		&BigGiverRule{Threshold: p.BigGiverThreshold},
		&PrimePersuadableRule{
			Regions:             slices.Clone(p.HighValueRegions),
			EngagementThreshold: p.PersuadableEngagementThreshold,
			Overrides:           slices.Clone(p.PersuadableOverrides),
		},
		&NewOrRisingRule{MaxGifts: p.NewOrRisingMaxGifts},
		&LapsedAtRiskRule{AfterDays: p.LapsedAfterDays},
		&UnregisteredVoterRule{Modulus: p.IdentityBucketModulus},
	}
}
