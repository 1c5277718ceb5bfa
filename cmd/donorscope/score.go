package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/donorscope/donorscope/pkg/config"
	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
	"github.com/donorscope/donorscope/pkg/surface"
)

func newScoreCmd() *cobra.Command {
	var (
		inputPath  string
		asOf       string
		configPath string
		outputFmt  string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a donor file and print a report",
		Long:  `Loads donor records, scores each one, and renders the aggregate report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), scoreOpts{
				inputPath:  inputPath,
				asOf:       asOf,
				configPath: configPath,
				outputFmt:  outputFmt,
				save:       save,
				out:        os.Stdout,
			})
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Path to a JSON donor file (required)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.yaml (default: search for .donorscope/config.yaml)")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text, json or markdown")
	cmd.Flags().BoolVar(&save, "save", false, "Save the JSON report to the donorscope cache directory")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

type scoreOpts struct {
	inputPath  string
	asOf       string
	configPath string
	outputFmt  string
	save       bool
	out        io.Writer
}

func runScore(ctx context.Context, opts scoreOpts) error {
	logger := newLogger()

	renderer, err := surface.ForFormat(opts.outputFmt)
	if err != nil {
		return err
	}
	now, err := parseAsOf(opts.asOf)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath, opts.inputPath, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Step 1/3: Loading %s...\n", opts.inputPath)
	records, err := donor.LoadRecords(opts.inputPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "  %d donors\n", len(records))

	fmt.Fprintf(os.Stderr, "Step 2/3: Scoring as of %s...\n", donor.DateOf(now))
	engine := scoring.NewEngine(cfg.Scoring.Policy()).WithConcurrency(cfg.Scoring.Concurrency)
	start := time.Now()
	profiles, err := engine.ScoreAll(ctx, records, now)
	if err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	logger.Debug().Dur("elapsed", time.Since(start)).Int("donors", len(profiles)).Msg("scored")
	report := scoring.BuildReport(profiles, donor.DateOf(now))

	if opts.save {
		saveReport(opts.inputPath, report)
	}

	fmt.Fprintf(os.Stderr, "Step 3/3: Rendering...\n")
	if err := renderer.Render(opts.out, report); err != nil {
		return fmt.Errorf("rendering: %w", err)
	}
	return nil
}

// saveReport persists a report to the report cache directory. Failures are
// logged and do not fail the command.
func saveReport(inputPath string, report *scoring.Report) {
	logger := newLogger()
	dir := config.ReportDir(inputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn().Err(err).Msg("failed to create report dir")
		return
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Warn().Err(err).Msg("failed to marshal report")
		return
	}

	path := filepath.Join(dir, report.AsOf.String()+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn().Err(err).Msg("failed to save report")
		return
	}
	fmt.Fprintf(os.Stderr, "Report saved: %s\n", path)
}
