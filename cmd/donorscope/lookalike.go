package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/donorscope/donorscope/pkg/donor"
	"github.com/donorscope/donorscope/pkg/scoring"
)

func newLookalikeCmd() *cobra.Command {
	var (
		inputPath  string
		targetID   string
		k          int
		asOf       string
		configPath string
		outputFmt  string
	)

	cmd := &cobra.Command{
		Use:   "lookalike",
		Short: "Rank donors by similarity to a target donor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookalike(lookalikeOpts{
				inputPath:  inputPath,
				targetID:   targetID,
				k:          k,
				asOf:       asOf,
				configPath: configPath,
				outputFmt:  outputFmt,
				out:        os.Stdout,
			})
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Path to a JSON donor file (required)")
	cmd.Flags().StringVar(&targetID, "target", "", "Target donor id (required)")
	cmd.Flags().IntVar(&k, "k", 5, "Number of lookalikes to return")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Reference date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.yaml")
	cmd.Flags().StringVar(&outputFmt, "output", "text", "Output format: text or json")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

type lookalikeOpts struct {
	inputPath  string
	targetID   string
	k          int
	asOf       string
	configPath string
	outputFmt  string
	out        io.Writer
}

func runLookalike(opts lookalikeOpts) error {
	logger := newLogger()

	now, err := parseAsOf(opts.asOf)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath, opts.inputPath, logger)
	if err != nil {
		return err
	}
	records, err := donor.LoadRecords(opts.inputPath)
	if err != nil {
		return err
	}
	target, err := findRecord(records, opts.targetID)
	if err != nil {
		return err
	}

	engine := scoring.NewEngine(cfg.Scoring.Policy())
	matches, err := engine.Lookalikes(target, records, now, opts.k)
	if err != nil {
		return err
	}

	switch opts.outputFmt {
	case "json":
		enc := json.NewEncoder(opts.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(matches); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
	case "", "text":
		fmt.Fprintf(opts.out, "Lookalikes for %s (%s)\n\n", target.Name, target.ID)
		tw := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSIMILARITY\tSHARED TAGS")
		for _, m := range matches {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", m.DonorID, m.Name, m.Similarity, strings.Join(m.SharedTags.Strings(), ", "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", opts.outputFmt)
	}
	return nil
}
