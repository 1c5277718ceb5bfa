package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/donorscope/donorscope/pkg/scoring"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Scoring.PotentialUnit != 2000 {
		t.Errorf("expected default potential unit 2000, got %v", cfg.Scoring.PotentialUnit)
	}
	if cfg.Scoring.CapacityUnit != 24500 {
		t.Errorf("expected default capacity unit 24500, got %v", cfg.Scoring.CapacityUnit)
	}
	if len(cfg.Scoring.HighValueRegions) != 4 {
		t.Errorf("expected 4 default regions, got %d", len(cfg.Scoring.HighValueRegions))
	}
	if cfg.Research.Model != "sonar" {
		t.Errorf("expected default model 'sonar', got %q", cfg.Research.Model)
	}
	if cfg.Research.Provider != "perplexity" {
		t.Errorf("expected default provider 'perplexity', got %q", cfg.Research.Provider)
	}
}

func TestDefaultConfigMatchesDefaultPolicy(t *testing.T) {
	got := DefaultConfig().Scoring.Policy()
	want := scoring.Defaults()

	pairs := []struct {
		name      string
		got, want decimal.Decimal
	}{
		{"potential_unit", got.PotentialUnit, want.PotentialUnit},
		{"capacity_unit", got.CapacityUnit, want.CapacityUnit},
		{"over_multiplier", got.OverMultiplier, want.OverMultiplier},
		{"under_multiplier", got.UnderMultiplier, want.UnderMultiplier},
		{"ask_base_multiplier", got.AskBaseMultiplier, want.AskBaseMultiplier},
		{"ask_upgrade_multiplier", got.AskUpgradeMultiplier, want.AskUpgradeMultiplier},
		{"fallback_average_gift", got.FallbackAverageGift, want.FallbackAverageGift},
		{"big_giver_threshold", got.BigGiverThreshold, want.BigGiverThreshold},
	}
	for _, p := range pairs {
		if !p.got.Equal(p.want) {
			t.Errorf("%s = %s, want %s", p.name, p.got, p.want)
		}
	}
	if got.PersuadableEngagementThreshold != want.PersuadableEngagementThreshold {
		t.Errorf("engagement threshold = %v, want %v", got.PersuadableEngagementThreshold, want.PersuadableEngagementThreshold)
	}
	if got.LapsedAfterDays != want.LapsedAfterDays || got.NewOrRisingMaxGifts != want.NewOrRisingMaxGifts || got.IdentityBucketModulus != want.IdentityBucketModulus {
		t.Errorf("integer thresholds differ: %+v vs %+v", got, want)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		missing bool
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "non-existent file returns defaults",
			missing: true,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Scoring.LapsedAfterDays != 180 {
					t.Errorf("expected default lapsed days 180, got %d", cfg.Scoring.LapsedAfterDays)
				}
			},
		},
		{
			name: "valid YAML overrides defaults",
			yaml: `
scoring:
  potential_unit: 5000
  big_giver_threshold: 1000
  persuadable_engagement_threshold: 80
  high_value_regions:
    - WA
  persuadable_overrides:
    - Jane Doe
research:
  provider: template
  timeout: 5
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Scoring.PotentialUnit != 5000 {
					t.Errorf("expected potential unit 5000, got %v", cfg.Scoring.PotentialUnit)
				}
				if cfg.Scoring.CapacityUnit != 24500 {
					t.Errorf("expected untouched capacity unit 24500, got %v", cfg.Scoring.CapacityUnit)
				}
				if len(cfg.Scoring.HighValueRegions) != 1 || cfg.Scoring.HighValueRegions[0] != "WA" {
					t.Errorf("expected regions [WA], got %v", cfg.Scoring.HighValueRegions)
				}
				if cfg.Research.Provider != "template" {
					t.Errorf("expected provider template, got %q", cfg.Research.Provider)
				}
				if cfg.Research.Timeout != 5 {
					t.Errorf("expected timeout 5, got %d", cfg.Research.Timeout)
				}
				p := cfg.Scoring.Policy()
				if !p.BigGiverThreshold.Equal(decimal.NewFromInt(1000)) {
					t.Errorf("expected policy threshold 1000, got %s", p.BigGiverThreshold)
				}
				if len(p.PersuadableOverrides) != 1 {
					t.Errorf("expected 1 override, got %v", p.PersuadableOverrides)
				}
			},
		},
		{
			name:    "invalid YAML returns error",
			yaml:    "{{invalid yaml",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("PERPLEXITY_API_KEY", "")
			t.Setenv("DONORSCOPE_RESEARCH_PROVIDER", "")

			path := filepath.Join(t.TempDir(), "config.yaml")
			if !tc.missing {
				if err := os.WriteFile(path, []byte(tc.yaml), 0o644); err != nil {
					t.Fatalf("write test config: %v", err)
				}
			}

			cfg, err := Load(path)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PERPLEXITY_API_KEY", "pplx-test")
	t.Setenv("DONORSCOPE_RESEARCH_PROVIDER", " Template ")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("research:\n  api_key: from-file\n"), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Research.APIKey != "pplx-test" {
		t.Errorf("expected env api key to win, got %q", cfg.Research.APIKey)
	}
	if cfg.Research.Provider != "template" {
		t.Errorf("expected normalized provider 'template', got %q", cfg.Research.Provider)
	}
}

func TestReportDir(t *testing.T) {
	input := "/home/alice/exports/donors.json"
	dir := ReportDir(input)

	slug := "exports_donors"
	if !strings.HasSuffix(dir, filepath.Join(slug, "reports")) {
		t.Errorf("ReportDir should end with %q, got %q", filepath.Join(slug, "reports"), dir)
	}
	if !strings.Contains(CacheDir(input), filepath.Join(".cache", "donorscope")) {
		t.Errorf("CacheDir should live under .cache/donorscope, got %q", CacheDir(input))
	}
}

func TestDatasetSlug(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"json file", "/data/q3/donors.json", "q3_donors"},
		{"no extension", "/data/q3/donors", "q3_donors"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := datasetSlug(tc.path); got != tc.want {
				t.Errorf("datasetSlug(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Run("found in current directory", func(t *testing.T) {
		root := t.TempDir()
		configPath := writeConfig(t, root)

		if got := FindConfigFile(root); got != configPath {
			t.Errorf("FindConfigFile = %q, want %q", got, configPath)
		}
	})

	t.Run("found in parent directory", func(t *testing.T) {
		root := t.TempDir()
		configPath := writeConfig(t, root)

		sub := filepath.Join(root, "a", "b", "c")
		if err := os.MkdirAll(sub, 0o755); err != nil {
			t.Fatalf("create sub: %v", err)
		}
		if got := FindConfigFile(sub); got != configPath {
			t.Errorf("FindConfigFile = %q, want %q", got, configPath)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if got := FindConfigFile(t.TempDir()); got != "" {
			t.Errorf("FindConfigFile = %q, want empty", got)
		}
	})
}

func writeConfig(t *testing.T, root string) string {
	t.Helper()
	configDir := filepath.Join(root, ".donorscope")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}
