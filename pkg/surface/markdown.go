package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/donorscope/donorscope/pkg/scoring"
)

// MarkdownRenderer produces a donor briefing document.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(w io.Writer, report *scoring.Report) error {
	_, err := io.WriteString(w, BuildBriefing(report))
	return err
}

// BuildBriefing renders the report as Markdown.
func BuildBriefing(report *scoring.Report) string {
	var sb strings.Builder
	s := report.Summary

	fmt.Fprintf(&sb, "## Donor briefing: %s\n\n", report.AsOf)

	sb.WriteString("### Summary\n\n")
	sb.WriteString("| Signal | Value | Donors |\n|--------|-------|--------|\n")
	for _, k := range performanceOrder {
		fmt.Fprintf(&sb, "| Performance | %s | %d |\n", k, s.ByPerformance[k])
	}
	for _, rw := range readinessOrder {
		fmt.Fprintf(&sb, "| Readiness | %s | %d |\n", rw, s.ByReadiness[rw])
	}
	for _, sev := range severityOrder {
		fmt.Fprintf(&sb, "| Capacity | %s | %d |\n", sev, s.BySeverity[sev])
	}
	for _, t := range tagOrder {
		fmt.Fprintf(&sb, "| Segment | %s | %d |\n", t, s.ByTag[t])
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "**%d donors**, total giving %s, suggested asks %s.\n\n",
		s.DonorCount, money(s.TotalGiving), wholeMoney(s.TotalSuggestedAsk))

	if len(report.Profiles) == 0 {
		return sb.String()
	}

	sb.WriteString("### Donors\n\n")
	for _, p := range report.Profiles {
		fmt.Fprintf(&sb, "- %s **%s** (%s): ask %s, %s\n",
			severityIcon(p.Capacity.Severity), p.Name, p.DonorID, wholeMoney(p.Ask.Amount), p.Readiness)
		fmt.Fprintf(&sb, "  - %s\n", p.Capacity.Message)
		fmt.Fprintf(&sb, "  - _%s_\n", p.Ask.Rationale)
		if len(p.Tags) > 0 {
			fmt.Fprintf(&sb, "  - Segments: %s\n", strings.Join(p.Tags.Strings(), ", "))
		}
	}

	return sb.String()
}

func severityIcon(sev scoring.Severity) string {
	switch sev {
	case scoring.SeverityCritical:
		return ":red_circle:"
	case scoring.SeverityWarning:
		return ":orange_circle:"
	case scoring.SeveritySuccess:
		return ":green_circle:"
	default:
		return ":blue_circle:"
	}
}
