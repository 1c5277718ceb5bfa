package scoring

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/donorscope/donorscope/pkg/donor"
)

// Engine scores donor records against a policy and a set of tag rules.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	policy Policy
	rules  []TagRule
	limit  int
}

// NewEngine creates a scoring engine. DefaultTagRules(policy) is used when no
// rules are given.
func NewEngine(policy Policy, rules ...TagRule) *Engine {
	if len(rules) == 0 {
		rules = DefaultTagRules(policy)
	}
	return &Engine{
		policy: policy,
		rules:  rules,
		limit:  runtime.GOMAXPROCS(0),
	}
}

// WithConcurrency returns a copy of e that scores at most n records at once in ScoreAll.
func (e *Engine) WithConcurrency(n int) *Engine {
	cp := *e
	if n > 0 {
		cp.limit = n
	}
	return &cp
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// Score validates rec and computes its profile as of now.
func (e *Engine) Score(rec donor.Record, now time.Time) (*Profile, error) {
	if err := rec.Validate(now); err != nil {
		return nil, fmt.Errorf("invalid donor %q: %w", rec.ID, err)
	}

	total := rec.EffectiveTotal()
	potential := rec.EffectivePotential()
	avg := rec.EffectiveAverageGift(e.policy.FallbackAverageGift)
	capacity := e.policy.ModeledCapacity(potential)

	perf := e.policy.ClassifyPerformance(total, potential)

	p := &Profile{
		DonorID:         rec.ID,
		Name:            rec.Name,
		AsOf:            donor.DateOf(now),
		EffectiveTotal:  total,
		AverageGift:     avg,
		ModeledCapacity: capacity,
		Performance:     perf,
		Ask:             e.policy.RecommendAsk(avg, perf.Kind),
		Capacity:        DescribeCapacity(total, capacity),
		Readiness:       ReadinessLongTerm,
		Tags:            AssignTags(e.rules, NewTagInput(rec, now)),
	}

	if days, ok := rec.DaysSinceLastGift(now); ok {
		p.DaysSinceLastGift = &days
		p.Readiness = EstimateReadiness(rec.EngagementScore, days)
	}

	return p, nil
}

// ScoreAll scores recs in parallel. Output order matches input order. The first
// invalid record aborts the run.
func (e *Engine) ScoreAll(ctx context.Context, recs []donor.Record, now time.Time) ([]Profile, error) {
	out := make([]Profile, len(recs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := e.Score(recs[i], now)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			out[i] = *p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AssignTags returns the segments rec belongs to as of now.
func (e *Engine) AssignTags(rec donor.Record, now time.Time) TagSet {
	return AssignTags(e.rules, NewTagInput(rec, now))
}

// BuildReport summarizes profiles scored as of asOf.
func BuildReport(profiles []Profile, asOf donor.Date) *Report {
	r := &Report{
		AsOf:     asOf,
		Profiles: profiles,
		Summary: ReportSummary{
			DonorCount:        len(profiles),
			ByPerformance:     make(map[PerformanceKind]int),
			ByReadiness:       make(map[ReadinessWindow]int),
			BySeverity:        make(map[Severity]int),
			ByTag:             make(map[Tag]int),
			TotalGiving:       decimal.Zero,
			TotalSuggestedAsk: decimal.Zero,
		},
	}
	if r.Profiles == nil {
		r.Profiles = []Profile{}
	}

	s := &r.Summary
	for _, p := range profiles {
		s.ByPerformance[p.Performance.Kind]++
		s.ByReadiness[p.Readiness]++
		s.BySeverity[p.Capacity.Severity]++
		for _, t := range p.Tags {
			s.ByTag[t]++
		}
		s.TotalGiving = s.TotalGiving.Add(p.EffectiveTotal)
		s.TotalSuggestedAsk = s.TotalSuggestedAsk.Add(p.Ask.Amount)
	}
	return r
}
