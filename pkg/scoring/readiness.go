package scoring

// EstimateReadiness maps engagement and recency to a readiness window.
// Branches overlap, so the first match wins.
func EstimateReadiness(engagementScore float64, daysSinceLastGift int) ReadinessWindow {
	switch {
	case engagementScore > 80 && daysSinceLastGift < 60:
		return ReadinessWithin30
	case engagementScore > 60 && daysSinceLastGift < 120:
		return ReadinessWithin60
	case engagementScore > 40 && daysSinceLastGift < 180:
		return ReadinessWithin90
	default:
		return ReadinessLongTerm
	}
}
