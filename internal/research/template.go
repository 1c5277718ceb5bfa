package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

// TemplateSummarizer builds a deterministic summary from the donor's scoring
// profile. It makes no network calls.
type TemplateSummarizer struct {
	engine *scoring.Engine
	now    func() time.Time
}

// NewTemplateSummarizer returns a summarizer scoring with engine. now defaults
// to time.Now.
func NewTemplateSummarizer(engine *scoring.Engine, now func() time.Time) *TemplateSummarizer {
	if now == nil {
		now = time.Now
	}
	return &TemplateSummarizer{engine: engine, now: now}
}

func (t *TemplateSummarizer) GenerateSummary(ctx context.Context, rec donor.Record) (*Summary, error) {
	now := t.now()
	p, err := t.engine.Score(rec, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	var text strings.Builder
	text.WriteString(rec.Name)
	if rec.Location != "" {
		fmt.Fprintf(&text, " (%s)", rec.Location)
	}
	if rec.GiftCount > 0 {
		fmt.Fprintf(&text, " has given $%s across %d gifts", p.EffectiveTotal.StringFixed(2), rec.GiftCount)
	} else {
		text.WriteString(" has no recorded gifts")
	}
	fmt.Fprintf(&text, " and is giving %s modeled potential. ", performancePhrase(p.Performance.Kind))
	fmt.Fprintf(&text, "Suggested ask: $%s (%s).", p.Ask.Amount.StringFixed(0), p.Ask.Rationale)

	facts := []string{
		p.Capacity.Message,
		"Readiness: " + readinessPhrase(p.Readiness) + ".",
	}
	if len(p.Tags) > 0 {
		facts = append(facts, "Segments: "+strings.Join(p.Tags.Strings(), ", ")+".")
	}

	return &Summary{
		DonorID:     rec.ID,
		Text:        text.String(),
		KeyFacts:    facts,
		Sources:     []string{},
		Confidence:  1,
		Provider:    ProviderTemplate,
		GeneratedAt: now.UTC(),
	}, nil
}

func performancePhrase(kind scoring.PerformanceKind) string {
	switch kind {
	case scoring.PerformanceOver:
		return "above"
	case scoring.PerformanceUnder:
		return "below"
	default:
		return "in line with"
	}
}

func readinessPhrase(w scoring.ReadinessWindow) string {
	switch w {
	case scoring.ReadinessWithin30:
		return "ready to ask within 30 days"
	case scoring.ReadinessWithin60:
		return "ready to ask within 60 days"
	case scoring.ReadinessWithin90:
		return "ready to ask within 90 days"
	default:
		return "long-term cultivation"
	}
}
