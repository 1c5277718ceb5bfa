// Package config handles loading and managing donorscope configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/donorscope/donorscope/pkg/scoring"
)

// Config is the top-level configuration for donorscope.
type Config struct {
	Scoring  ScoringConfig  `yaml:"scoring"`
	Research ResearchConfig `yaml:"research"`
}

// ScoringConfig controls scoring policy. Amounts are in currency units.
type ScoringConfig struct {
	PotentialUnit        float64 `yaml:"potential_unit"`
	CapacityUnit         float64 `yaml:"capacity_unit"`
	OverMultiplier       float64 `yaml:"over_multiplier"`
	UnderMultiplier      float64 `yaml:"under_multiplier"`
	AskBaseMultiplier    float64 `yaml:"ask_base_multiplier"`
	AskUpgradeMultiplier float64 `yaml:"ask_upgrade_multiplier"`
	FallbackAverageGift  float64 `yaml:"fallback_average_gift"`
	BigGiverThreshold    float64 `yaml:"big_giver_threshold"`

	PersuadableEngagementThreshold float64  `yaml:"persuadable_engagement_threshold"`
	HighValueRegions               []string `yaml:"high_value_regions"`
	PersuadableOverrides           []string `yaml:"persuadable_overrides"`
	NewOrRisingMaxGifts            int      `yaml:"new_or_rising_max_gifts"`
	LapsedAfterDays                int      `yaml:"lapsed_after_days"`
	IdentityBucketModulus          uint32   `yaml:"identity_bucket_modulus"`

	Concurrency int `yaml:"concurrency"` // 0: GOMAXPROCS
}

// ResearchConfig controls the AI research provider.
type ResearchConfig struct {
	Provider   string `yaml:"provider"` // perplexity, template
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Timeout    int    `yaml:"timeout"` // seconds per attempt
	MaxRetries int    `yaml:"max_retries"`
	CacheSize  int    `yaml:"cache_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	p := scoring.Defaults()
	return &Config{
		Scoring: ScoringConfig{
			PotentialUnit:                  p.PotentialUnit.InexactFloat64(),
			CapacityUnit:                   p.CapacityUnit.InexactFloat64(),
			OverMultiplier:                 p.OverMultiplier.InexactFloat64(),
			UnderMultiplier:                p.UnderMultiplier.InexactFloat64(),
			AskBaseMultiplier:              p.AskBaseMultiplier.InexactFloat64(),
			AskUpgradeMultiplier:           p.AskUpgradeMultiplier.InexactFloat64(),
			FallbackAverageGift:            p.FallbackAverageGift.InexactFloat64(),
			BigGiverThreshold:              p.BigGiverThreshold.InexactFloat64(),
			PersuadableEngagementThreshold: p.PersuadableEngagementThreshold,
			HighValueRegions:               p.HighValueRegions,
			PersuadableOverrides:           []string{},
			NewOrRisingMaxGifts:            p.NewOrRisingMaxGifts,
			LapsedAfterDays:                p.LapsedAfterDays,
			IdentityBucketModulus:          p.IdentityBucketModulus,
		},
		Research: ResearchConfig{
			Provider:   "perplexity",
			BaseURL:    "https://api.perplexity.ai",
			Model:      "sonar",
			Timeout:    30,
			MaxRetries: 2,
			CacheSize:  256,
		},
	}
}

// Load reads a config file from the given path.
// If the file does not exist, it returns the default config.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		c.Research.APIKey = v
	}
	if v := os.Getenv("DONORSCOPE_RESEARCH_PROVIDER"); v != "" {
		c.Research.Provider = strings.ToLower(strings.TrimSpace(v))
	}
}

// Policy converts the scoring configuration to an engine policy.
func (s ScoringConfig) Policy() scoring.Policy {
	return scoring.Policy{
		PotentialUnit:                  decimal.NewFromFloat(s.PotentialUnit),
		CapacityUnit:                   decimal.NewFromFloat(s.CapacityUnit),
		OverMultiplier:                 decimal.NewFromFloat(s.OverMultiplier),
		UnderMultiplier:                decimal.NewFromFloat(s.UnderMultiplier),
		AskBaseMultiplier:              decimal.NewFromFloat(s.AskBaseMultiplier),
		AskUpgradeMultiplier:           decimal.NewFromFloat(s.AskUpgradeMultiplier),
		FallbackAverageGift:            decimal.NewFromFloat(s.FallbackAverageGift),
		BigGiverThreshold:              decimal.NewFromFloat(s.BigGiverThreshold),
		PersuadableEngagementThreshold: s.PersuadableEngagementThreshold,
		HighValueRegions:               s.HighValueRegions,
		PersuadableOverrides:           s.PersuadableOverrides,
		NewOrRisingMaxGifts:            s.NewOrRisingMaxGifts,
		LapsedAfterDays:                s.LapsedAfterDays,
		IdentityBucketModulus:          s.IdentityBucketModulus,
	}
}

// FindConfigFile looks for .donorscope/config.yaml in the given directory
// and its parents, returning the path if found, or "" if not.
func FindConfigFile(dir string) string {
	for {
		candidate := filepath.Join(dir, ".donorscope", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// CacheDir returns the cache directory for a given donor file.
// Uses ~/.cache/donorscope/<dataset-slug>/ to avoid writing next to the data.
func CacheDir(inputPath string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "donorscope", datasetSlug(inputPath))
}

// ReportDir returns the report storage directory for a donor file.
func ReportDir(inputPath string) string {
	return filepath.Join(CacheDir(inputPath), "reports")
}

// datasetSlug creates a filesystem-safe identifier from a donor file path
// using its parent directory and base name without extension.
func datasetSlug(inputPath string) string {
	abs, err := filepath.Abs(inputPath)
	if err != nil {
		abs = inputPath
	}
	dir := filepath.Base(filepath.Dir(abs))
	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	return dir + "_" + base
}
