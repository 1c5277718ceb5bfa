// Package main provides the donorscope CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/donorscope/donorscope/internal/platform"
	"github.com/donorscope/donorscope/pkg/config"
	"github.com/donorscope/donorscope/pkg/donor"
)

var (
	version = "dev"
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "donorscope",
		Short: "Donor scoring for fundraising teams",
		Long: `Donorscope scores donor records: giving performance against modeled
potential, suggested ask amounts, capacity narratives, gift readiness and
segment tags.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(
		newScoreCmd(),
		newGenerateCmd(),
		newLookalikeCmd(),
		newResearchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return platform.NewConsoleLogger(os.Stderr, verbose)
}

// loadConfig reads the config at path, or the nearest .donorscope/config.yaml
// above the input file when path is empty. Defaults apply when neither exists.
func loadConfig(path, inputPath string, logger zerolog.Logger) (*config.Config, error) {
	if path == "" {
		if abs, err := filepath.Abs(inputPath); err == nil {
			path = config.FindConfigFile(filepath.Dir(abs))
		}
	}
	if path != "" {
		logger.Debug().Str("path", path).Msg("loading config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseAsOf returns the reference instant for an --as-of flag value. Empty means now.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	d, err := donor.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of: %w", err)
	}
	return d.Time(), nil
}

// findRecord returns the record with the given id.
func findRecord(records []donor.Record, id string) (donor.Record, error) {
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return donor.Record{}, fmt.Errorf("donor %q not found in input", id)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
