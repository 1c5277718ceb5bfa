package scoring

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spaolacci/murmur3"

	"github.com/donorscope/donorscope/pkg/donor"
)

// TagRule decides membership of a single tag.
type TagRule interface {
	// Tag returns the tag this rule assigns.
	Tag() Tag
	// Name returns the human-readable rule name.
	Name() string
	// Applies reports whether the donor qualifies.
	Applies(in TagInput) bool
}

// TagInput is the subset of a donor record the tag rules read.
type TagInput struct {
	Name              string
	Location          string
	Status            donor.Status
	EffectiveTotal    decimal.Decimal
	EngagementScore   float64
	GiftCount         int
	DaysSinceLastGift int
	HasGiftHistory    bool
}

// NewTagInput extracts the tag inputs from rec as of now.
func NewTagInput(rec donor.Record, now time.Time) TagInput {
	days, ok := rec.DaysSinceLastGift(now)
	return TagInput{
		Name:              rec.Name,
		Location:          rec.Location,
		Status:            rec.Status,
		EffectiveTotal:    rec.EffectiveTotal(),
		EngagementScore:   rec.EngagementScore,
		GiftCount:         rec.GiftCount,
		DaysSinceLastGift: days,
		HasGiftHistory:    ok,
	}
}

// AssignTags evaluates every rule independently.
func AssignTags(rules []TagRule, in TagInput) TagSet {
	var tags []Tag
	for _, r := range rules {
		if r.Applies(in) {
			tags = append(tags, r.Tag())
		}
	}
	return NewTagSet(tags...)
}

// BigGiverRule tags donors whose effective total exceeds Threshold.
type BigGiverRule struct {
	Threshold decimal.Decimal
}

func (r *BigGiverRule) Tag() Tag     { return TagBigGiver }
func (r *BigGiverRule) Name() string { return "Big giver" }

func (r *BigGiverRule) Applies(in TagInput) bool {
	return in.EffectiveTotal.GreaterThan(r.Threshold)
}

// PrimePersuadableRule tags donors in a high-value region, above the
// engagement threshold, or named in the override list.
type PrimePersuadableRule struct {
	Regions             []string
	EngagementThreshold float64
	Overrides           []string
}

func (r *PrimePersuadableRule) Tag() Tag     { return TagPrimePersuadable }
func (r *PrimePersuadableRule) Name() string { return "Prime persuadable" }

func (r *PrimePersuadableRule) Applies(in TagInput) bool {
	for _, region := range r.Regions {
		if region != "" && strings.Contains(in.Location, region) {
			return true
		}
	}
	if in.EngagementScore > r.EngagementThreshold {
		return true
	}
	name := strings.TrimSpace(in.Name)
	for _, o := range r.Overrides {
		if strings.EqualFold(strings.TrimSpace(o), name) {
			return true
		}
	}
	return false
}

// NewOrRisingRule tags new donors and donors with few gifts.
type NewOrRisingRule struct {
	MaxGifts int
}

func (r *NewOrRisingRule) Tag() Tag     { return TagNewOrRising }
func (r *NewOrRisingRule) Name() string { return "New or rising" }

func (r *NewOrRisingRule) Applies(in TagInput) bool {
	return in.Status == donor.StatusNew || in.GiftCount <= r.MaxGifts
}

// LapsedAtRiskRule tags donors whose last gift is older than AfterDays.
// Donors who never gave are not lapsed.
type LapsedAtRiskRule struct {
	AfterDays int
}

func (r *LapsedAtRiskRule) Tag() Tag     { return TagLapsedAtRisk }
func (r *LapsedAtRiskRule) Name() string { return "Lapsed at risk" }

func (r *LapsedAtRiskRule) Applies(in TagInput) bool {
	return in.HasGiftHistory && in.DaysSinceLastGift > r.AfterDays
}

// UnregisteredVoterRule is a placeholder classifier: a deterministic bucket of
// the donor's name.
type UnregisteredVoterRule struct {
	Modulus uint32
}

func (r *UnregisteredVoterRule) Tag() Tag     { return TagUnregisteredVoter }
func (r *UnregisteredVoterRule) Name() string { return "Unregistered voter" }

func (r *UnregisteredVoterRule) Applies(in TagInput) bool {
	if r.Modulus == 0 {
		return false
	}
	return IdentityHash(in.Name)%r.Modulus == 0
}

// IdentityHash is the murmur3 32-bit hash of a donor name.
func IdentityHash(name string) uint32 {
	return murmur3.Sum32([]byte(name))
}
