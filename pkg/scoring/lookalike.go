package scoring

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/donorscope/donorscope/pkg/donor"
)

// Similarity weights. They sum to 1 so similarity stays within [0,1].
const (
	weightGiving     = 0.35
	weightPotential  = 0.20
	weightEngagement = 0.20
	weightTags       = 0.25

	// givingSpan is the log-scale distance treated as fully dissimilar giving.
	givingSpan = 10.0
)

// Lookalike is a pool donor ranked by similarity to a target.
type Lookalike struct {
	DonorID    string  `json:"donor_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"` // 0.0-1.0
	SharedTags TagSet  `json:"shared_tags"`
}

// Lookalikes ranks pool donors by similarity to target and returns the top k.
// The target itself is excluded. Ties are broken by donor id. k <= 0 returns
// every candidate.
func (e *Engine) Lookalikes(target donor.Record, pool []donor.Record, now time.Time, k int) ([]Lookalike, error) {
	if err := target.Validate(now); err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", target.ID, err)
	}
	targetTags := e.AssignTags(target, now)

	var out []Lookalike
	for _, cand := range pool {
		if cand.ID == target.ID {
			continue
		}
		if err := cand.Validate(now); err != nil {
			return nil, fmt.Errorf("invalid candidate %q: %w", cand.ID, err)
		}
		candTags := e.AssignTags(cand, now)
		out = append(out, Lookalike{
			DonorID:    cand.ID,
			Name:       cand.Name,
			Similarity: similarity(target, cand, targetTags, candTags),
			SharedTags: intersect(targetTags, candTags),
		})
	}

	slices.SortFunc(out, func(a, b Lookalike) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.DonorID, b.DonorID)
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	if out == nil {
		out = []Lookalike{}
	}
	return out, nil
}

func similarity(a, b donor.Record, aTags, bTags TagSet) float64 {
	ga := math.Log1p(a.EffectiveTotal().InexactFloat64())
	gb := math.Log1p(b.EffectiveTotal().InexactFloat64())
	giving := 1 - math.Min(math.Abs(ga-gb)/givingSpan, 1)

	potential := 1 - math.Abs(float64(a.EffectivePotential()-b.EffectivePotential()))/100
	engagement := 1 - math.Abs(a.EngagementScore-b.EngagementScore)/100

	s := weightGiving*giving +
		weightPotential*potential +
		weightEngagement*engagement +
		weightTags*jaccard(aTags, bTags)

	return math.Round(s*10000) / 10000
}

func jaccard(a, b TagSet) float64 {
	union := len(NewTagSet(append(slices.Clone(a), b...)...))
	if union == 0 {
		return 1
	}
	return float64(len(intersect(a, b))) / float64(union)
}

func intersect(a, b TagSet) TagSet {
	var shared []Tag
	for _, t := range a {
		if b.Has(t) {
			shared = append(shared, t)
		}
	}
	return NewTagSet(shared...)
}
