package surface

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/donorscope/donorscope/pkg/scoring"
)

// TerminalRenderer renders a Report as colored terminal output.
type TerminalRenderer struct {
	// MaxDonors limits the per-donor listing. 0 lists every donor.
	MaxDonors int
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func severityColor(sev scoring.Severity) string {
	switch sev {
	case scoring.SeverityCritical:
		return colorRed
	case scoring.SeverityWarning:
		return colorYellow
	case scoring.SeveritySuccess:
		return colorGreen
	case scoring.SeverityInfo:
		return colorCyan
	default:
		return ""
	}
}

func performanceColor(kind scoring.PerformanceKind) string {
	switch kind {
	case scoring.PerformanceOver:
		return colorGreen
	case scoring.PerformanceUnder:
		return colorYellow
	default:
		return ""
	}
}

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

func (r *TerminalRenderer) Render(w io.Writer, report *scoring.Report) error {
	s := report.Summary

	fmt.Fprintf(w, "%s\n", bold(fmt.Sprintf("Donorscope: %d donors as of %s", s.DonorCount, report.AsOf)))
	fmt.Fprintf(w, "Total giving %s / suggested asks %s\n\n", money(s.TotalGiving), wholeMoney(s.TotalSuggestedAsk))

	if s.DonorCount == 0 {
		fmt.Fprintln(w, "No donors.")
		fmt.Fprintln(w)
		return nil
	}

	var parts []string
	for _, k := range performanceOrder {
		parts = append(parts, fmt.Sprintf("%s %d", colored(string(k), performanceColor(k)), s.ByPerformance[k]))
	}
	fmt.Fprintf(w, "Performance: %s\n", strings.Join(parts, " / "))

	parts = parts[:0]
	for _, rw := range readinessOrder {
		parts = append(parts, fmt.Sprintf("%s %d", rw, s.ByReadiness[rw]))
	}
	fmt.Fprintf(w, "Readiness:   %s\n", strings.Join(parts, " / "))

	parts = parts[:0]
	for _, sev := range severityOrder {
		parts = append(parts, fmt.Sprintf("%s %d", colored(string(sev), severityColor(sev)), s.BySeverity[sev]))
	}
	fmt.Fprintf(w, "Capacity:    %s\n", strings.Join(parts, " / "))

	parts = parts[:0]
	for _, t := range tagOrder {
		if n := s.ByTag[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", t, n))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "Segments:    %s\n", strings.Join(parts, " / "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Donors:")
	limit := len(report.Profiles)
	if r.MaxDonors > 0 && r.MaxDonors < limit {
		limit = r.MaxDonors
	}
	for _, p := range report.Profiles[:limit] {
		fmt.Fprintf(w, "  %s %s [%s] ask %s, %s\n",
			bold(p.DonorID), p.Name,
			colored(string(p.Performance.Kind), performanceColor(p.Performance.Kind)),
			wholeMoney(p.Ask.Amount), p.Readiness)
		fmt.Fprintf(w, "      %s\n", colored(p.Capacity.Message, severityColor(p.Capacity.Severity)))
		fmt.Fprintf(w, "      %s\n", dim(p.Ask.Rationale))
		if len(p.Tags) > 0 {
			fmt.Fprintf(w, "      %s\n", dim("tags: "+strings.Join(p.Tags.Strings(), ", ")))
		}
	}
	if limit < len(report.Profiles) {
		fmt.Fprintf(w, "  %s\n", dim(fmt.Sprintf("... and %d more", len(report.Profiles)-limit)))
	}
	fmt.Fprintln(w)

	return nil
}
