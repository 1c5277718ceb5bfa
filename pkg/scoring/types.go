// Package scoring implements the donorscope scoring engine.
// It turns a donor record into performance, ask, capacity, readiness and segment signals.
package scoring

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/donorscope/donorscope/pkg/donor"
)

// PerformanceKind classifies lifetime giving against modeled potential.
type PerformanceKind string

const (
	PerformanceOver   PerformanceKind = "over"
	PerformanceUnder  PerformanceKind = "under"
	PerformanceNormal PerformanceKind = "normal"
)

// Performance is the output of the performance classifier.
type Performance struct {
	Kind               PerformanceKind `json:"kind"`
	RatioToPotential   float64         `json:"ratio_to_potential"` // 0 when the estimate is zero
	EstimatedPotential decimal.Decimal `json:"estimated_potential"`
}

// AskRecommendation is a suggested next-ask amount in whole currency units.
type AskRecommendation struct {
	Amount    decimal.Decimal `json:"amount"`
	Rationale string          `json:"rationale"`
}

// Severity is a semantic level for presentation layers to style.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeveritySuccess  Severity = "success"
	SeverityCritical Severity = "critical"
)

// CapacityNarrative describes how much of modeled capacity a donor is giving.
type CapacityNarrative struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Percent  int      `json:"percent"` // displayed percentage, capped at 100
}

// ReadinessWindow is a bucketed estimate of when a donor is likely to give again.
type ReadinessWindow string

const (
	ReadinessWithin30 ReadinessWindow = "within_30_days"
	ReadinessWithin60 ReadinessWindow = "within_60_days"
	ReadinessWithin90 ReadinessWindow = "within_90_days"
	ReadinessLongTerm ReadinessWindow = "long_term"
)

// Tag is a boolean segment label.
type Tag string

const (
	TagBigGiver          Tag = "big_giver"
	TagPrimePersuadable  Tag = "prime_persuadable"
	TagNewOrRising       Tag = "new_or_rising"
	TagLapsedAtRisk      Tag = "lapsed_at_risk"
	TagUnregisteredVoter Tag = "unregistered_voter_flag"
)

// AllTags lists every tag the default rules can assign.
var AllTags = []Tag{TagBigGiver, TagPrimePersuadable, TagNewOrRising, TagLapsedAtRisk, TagUnregisteredVoter}

// ParseTag returns the tag named s.
func ParseTag(s string) (Tag, bool) {
	for _, t := range AllTags {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// TagSet is a sorted, duplicate-free set of tags.
type TagSet []Tag

// NewTagSet builds a TagSet from tags in any order.
func NewTagSet(tags ...Tag) TagSet {
	out := slices.Clone(tags)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = TagSet{}
	}
	return out
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool {
	_, found := slices.BinarySearch(s, t)
	return found
}

// Strings returns the tags as plain strings.
func (s TagSet) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

// Profile is every signal computed for one donor at one reference date.
// Immutable once computed.
type Profile struct {
	DonorID           string            `json:"donor_id"`
	Name              string            `json:"name"`
	AsOf              donor.Date        `json:"as_of"`
	EffectiveTotal    decimal.Decimal   `json:"effective_total"`
	AverageGift       decimal.Decimal   `json:"average_gift"`
	ModeledCapacity   decimal.Decimal   `json:"modeled_capacity"`
	Performance       Performance       `json:"performance"`
	Ask               AskRecommendation `json:"ask"`
	Capacity          CapacityNarrative `json:"capacity"`
	Readiness         ReadinessWindow   `json:"readiness"`
	DaysSinceLastGift *int              `json:"days_since_last_gift"` // nil: never gave
	Tags              TagSet            `json:"tags"`
}

// Report aggregates the profiles of one scoring run.
type Report struct {
	AsOf     donor.Date    `json:"as_of"`
	Summary  ReportSummary `json:"summary"`
	Profiles []Profile     `json:"profiles"`
}

// ReportSummary counts profiles per signal value.
type ReportSummary struct {
	DonorCount        int                     `json:"donor_count"`
	ByPerformance     map[PerformanceKind]int `json:"by_performance"`
	ByReadiness       map[ReadinessWindow]int `json:"by_readiness"`
	BySeverity        map[Severity]int        `json:"by_severity"`
	ByTag             map[Tag]int             `json:"by_tag"`
	TotalGiving       decimal.Decimal         `json:"total_giving"`
	TotalSuggestedAsk decimal.Decimal         `json:"total_suggested_ask"`
}
