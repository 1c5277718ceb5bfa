package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/donorscope/donorscope/internal/research"
	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

func newResearchCmd() *cobra.Command {
	var (
		inputPath  string
		donorID    string
		provider   string
		configPath string
		outputFmt  string
	)

	cmd := &cobra.Command{
		Use:   "research",
		Short: "Generate a research summary for one donor",
		Long: `Generates a narrative research summary. The perplexity provider needs
PERPLEXITY_API_KEY; the template provider works offline from the scoring profile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd.Context(), researchOpts{
				inputPath:  inputPath,
				donorID:    donorID,
				provider:   provider,
				configPath: configPath,
				outputFmt:  outputFmt,
				out:        os.Stdout,
			})
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Path to a JSON donor file (required)")
	cmd.Flags().StringVar(&donorID, "id", "", "Donor id (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "Research provider: perplexity or template (default: from config)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.yaml")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

type researchOpts struct {
	inputPath  string
	donorID    string
	provider   string
	configPath string
	outputFmt  string
	out        io.Writer
}

func runResearch(ctx context.Context, opts researchOpts) error {
	logger := newLogger()

	cfg, err := loadConfig(opts.configPath, opts.inputPath, logger)
	if err != nil {
		return err
	}
	cfg.Research.Provider = firstNonEmpty(strings.ToLower(opts.provider), cfg.Research.Provider)
	// a one-shot command gains nothing from the summary cache
	cfg.Research.CacheSize = 0

	records, err := donor.LoadRecords(opts.inputPath)
	if err != nil {
		return err
	}
	rec, err := findRecord(records, opts.donorID)
	if err != nil {
		return err
	}

	engine := scoring.NewEngine(cfg.Scoring.Policy())
	summarizer, err := research.New(cfg.Research, engine, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Researching %s (%s) with %s...\n", rec.Name, rec.ID, cfg.Research.Provider)
	summary, err := summarizer.GenerateSummary(ctx, rec)
	if err != nil {
		logger.Debug().Str("outcome", research.Outcome(err)).Msg("research failed")
		return fmt.Errorf("research: %w", err)
	}

	switch opts.outputFmt {
	case "json":
		enc := json.NewEncoder(opts.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
	case "", "text":
		renderSummary(opts.out, rec, summary)
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", opts.outputFmt)
	}
	return nil
}

func renderSummary(w io.Writer, rec donor.Record, s *research.Summary) {
	fmt.Fprintf(w, "%s (%s)\n\n", rec.Name, rec.ID)
	fmt.Fprintf(w, "%s\n", s.Text)
	if len(s.KeyFacts) > 0 {
		fmt.Fprintf(w, "\nKey facts:\n")
		for _, f := range s.KeyFacts {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	if len(s.Sources) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for _, src := range s.Sources {
			fmt.Fprintf(w, "  - %s\n", src)
		}
	}
	fmt.Fprintf(w, "\nConfidence: %.0f%% (%s)\n", s.Confidence*100, s.Provider)
}
