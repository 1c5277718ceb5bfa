package donor

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

var (
	firstNames = []string{"Avery", "Jordan", "Morgan", "Riley", "Casey", "Quinn", "Harper", "Rowan", "Emerson", "Dakota", "Skyler", "Parker"}
	lastNames  = []string{"Alvarez", "Brooks", "Chen", "Diaz", "Ellison", "Fischer", "Garcia", "Haddad", "Ito", "Johnson", "Kowalski", "Nguyen"}
	locations  = []string{"Sacramento, CA", "Brooklyn, NY", "Austin, TX", "Miami, FL", "Columbus, OH", "Denver, CO", "Madison, WI", "Phoenix, AZ", "Raleigh, NC"}
	statuses   = []Status{StatusNew, StatusActive, StatusActive, StatusLapsed, StatusMajor, StatusProspect}
)

// Generator produces deterministic fixture records. The same seed always yields
// the same records for the same reference date.
type Generator struct {
	rng *rand.Rand
	seq int
}

// NewGenerator creates a Generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Records returns n fixture records whose gift dates are on or before now.
func (g *Generator) Records(n int, now time.Time) []Record {
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.next(DateOf(now)))
	}
	return out
}

func (g *Generator) next(today Date) Record {
	g.seq++
	rng := g.rng

	rec := Record{
		ID:              fmt.Sprintf("D-%05d", g.seq),
		Name:            firstNames[rng.IntN(len(firstNames))] + " " + lastNames[rng.IntN(len(lastNames))],
		EngagementScore: float64(rng.IntN(101)),
		Status:          statuses[rng.IntN(len(statuses))],
		Location:        locations[rng.IntN(len(locations))],
	}

	if rng.IntN(10) > 0 {
		p := rng.IntN(101)
		rec.PredictedPotential = &p
	}

	if rec.Status == StatusProspect {
		rec.TotalLifetimeGiving = decimal.Zero
		return rec
	}

	rec.GiftCount = 1 + rng.IntN(24)
	avgCents := int64(1000 + rng.IntN(250000))
	avg := decimal.New(avgCents, -2)
	rec.TotalLifetimeGiving = avg.Mul(decimal.NewFromInt(int64(rec.GiftCount))).Round(2)
	if rng.IntN(2) == 0 {
		rec.AverageGift = &avg
	}

	last := today.AddDays(-rng.IntN(720))
	rec.LastGiftDate = &last

	if rng.IntN(5) == 0 {
		raised := rec.TotalLifetimeGiving.Add(decimal.New(int64(rng.IntN(50000)), -2))
		rec.GivingOverview = &GivingOverview{TotalRaised: &raised}
	}

	return rec
}
