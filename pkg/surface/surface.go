// Package surface defines output rendering for donorscope scoring reports.
// Implementations handle different output targets: terminal, Markdown briefing, JSON.
package surface

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/donorscope/donorscope/pkg/scoring"
)

// Renderer produces formatted output from a Report.
type Renderer interface {
	// Render writes the formatted report to the writer.
	Render(w io.Writer, report *scoring.Report) error
}

// ForFormat returns the renderer for an output format name.
func ForFormat(format string) (Renderer, error) {
	switch format {
	case "", "text":
		return &TerminalRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or markdown)", format)
	}
}

var (
	performanceOrder = []scoring.PerformanceKind{scoring.PerformanceOver, scoring.PerformanceNormal, scoring.PerformanceUnder}
	readinessOrder   = []scoring.ReadinessWindow{scoring.ReadinessWithin30, scoring.ReadinessWithin60, scoring.ReadinessWithin90, scoring.ReadinessLongTerm}
	severityOrder    = []scoring.Severity{scoring.SeverityCritical, scoring.SeverityWarning, scoring.SeverityInfo, scoring.SeveritySuccess}
	tagOrder         = []scoring.Tag{scoring.TagBigGiver, scoring.TagPrimePersuadable, scoring.TagNewOrRising, scoring.TagLapsedAtRisk, scoring.TagUnregisteredVoter}
)

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func wholeMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(0)
}
