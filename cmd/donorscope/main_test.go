package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/donorscope/donorscope/internal/research"
	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

func TestScoreCmdFlags(t *testing.T) {
	cmd := newScoreCmd()
	f := cmd.Flags()

	outputFmt, _ := f.GetString("output")
	if outputFmt != "text" {
		t.Errorf("default output = %q, want text", outputFmt)
	}

	for _, flag := range []string{"input", "as-of", "config", "output", "save"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestGenerateCmdFlags(t *testing.T) {
	f := newGenerateCmd().Flags()

	count, _ := f.GetInt("count")
	if count != 100 {
		t.Errorf("default count = %d, want 100", count)
	}
	for _, flag := range []string{"seed", "count", "as-of", "output"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestLookalikeCmdFlags(t *testing.T) {
	f := newLookalikeCmd().Flags()

	k, _ := f.GetInt("k")
	if k != 5 {
		t.Errorf("default k = %d, want 5", k)
	}
	for _, flag := range []string{"input", "target", "k"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestResearchCmdFlags(t *testing.T) {
	f := newResearchCmd().Flags()
	for _, flag := range []string{"input", "id", "provider"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"a", "b", "c"}, "a"},
		{[]string{"", "b", "c"}, "b"},
		{[]string{"", "", "c"}, "c"},
		{[]string{"", "", ""}, ""},
	}

	for _, tt := range tests {
		got := firstNonEmpty(tt.args...)
		if got != tt.want {
			t.Errorf("firstNonEmpty(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParseAsOf(t *testing.T) {
	got, err := parseAsOf("2026-03-01")
	if err != nil {
		t.Fatalf("parseAsOf: %v", err)
	}
	if donor.DateOf(got).String() != "2026-03-01" {
		t.Errorf("parseAsOf = %v", got)
	}
	if _, err := parseAsOf("03/01/2026"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

// writeFixture generates a donor file in a temp dir and returns its path.
func writeFixture(t *testing.T, count int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "donors.json")
	err := runGenerate(generateOpts{seed: 7, count: count, asOf: "2026-03-01", output: path})
	if err != nil {
		t.Fatalf("runGenerate: %v", err)
	}
	return path
}

func TestGenerateDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if err := runGenerate(generateOpts{seed: 3, count: 5, asOf: "2026-03-01", out: &a}); err != nil {
		t.Fatal(err)
	}
	if err := runGenerate(generateOpts{seed: 3, count: 5, asOf: "2026-03-01", out: &b}); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Error("same seed produced different output")
	}

	recs, err := donor.DecodeRecords(&a)
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("got %d records, want 5", len(recs))
	}
}

func TestRunScoreJSON(t *testing.T) {
	path := writeFixture(t, 20)

	var out bytes.Buffer
	err := runScore(context.Background(), scoreOpts{
		inputPath: path,
		asOf:      "2026-03-01",
		outputFmt: "json",
		out:       &out,
	})
	if err != nil {
		t.Fatalf("runScore: %v", err)
	}

	var report scoring.Report
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Summary.DonorCount != 20 || len(report.Profiles) != 20 {
		t.Errorf("donor count = %d, profiles = %d", report.Summary.DonorCount, len(report.Profiles))
	}
	if report.AsOf.String() != "2026-03-01" {
		t.Errorf("as_of = %s", report.AsOf)
	}
}

func TestRunScoreUnknownFormat(t *testing.T) {
	err := runScore(context.Background(), scoreOpts{inputPath: "unused.json", outputFmt: "xml", out: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestRunLookalike(t *testing.T) {
	path := writeFixture(t, 12)

	var out bytes.Buffer
	err := runLookalike(lookalikeOpts{
		inputPath: path,
		targetID:  "D-00001",
		k:         3,
		asOf:      "2026-03-01",
		outputFmt: "json",
		out:       &out,
	})
	if err != nil {
		t.Fatalf("runLookalike: %v", err)
	}

	var matches []scoring.Lookalike
	if err := json.Unmarshal(out.Bytes(), &matches); err != nil {
		t.Fatalf("decoding lookalikes: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	for _, m := range matches {
		if m.DonorID == "D-00001" {
			t.Error("target returned as its own lookalike")
		}
	}

	err = runLookalike(lookalikeOpts{inputPath: path, targetID: "missing", asOf: "2026-03-01", out: &out})
	if err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestRunResearchTemplate(t *testing.T) {
	path := writeFixture(t, 3)

	var out bytes.Buffer
	err := runResearch(context.Background(), researchOpts{
		inputPath: path,
		donorID:   "D-00002",
		provider:  "template",
		outputFmt: "json",
		out:       &out,
	})
	if err != nil {
		t.Fatalf("runResearch: %v", err)
	}

	var s research.Summary
	if err := json.Unmarshal(out.Bytes(), &s); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if s.DonorID != "D-00002" || s.Provider != research.ProviderTemplate {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestRunResearchUnconfigured(t *testing.T) {
	t.Setenv("PERPLEXITY_API_KEY", "")
	t.Setenv("DONORSCOPE_RESEARCH_PROVIDER", "")
	path := writeFixture(t, 2)

	err := runResearch(context.Background(), researchOpts{
		inputPath: path,
		donorID:   "D-00001",
		provider:  "perplexity",
		out:       &bytes.Buffer{},
	})
	if err == nil || research.Outcome(err) != "not_configured" {
		t.Errorf("expected not configured error, got %v", err)
	}
}
