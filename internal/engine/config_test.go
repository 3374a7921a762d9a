package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Matching.FuzzyThreshold != 85 || cfg.Matching.ExactThreshold != 95 {
		t.Errorf("Unexpected default thresholds: %+v", cfg.Matching)
	}
	if cfg.Matching.AbsTolerance != 1.0 || cfg.Matching.PctTolerance != 0.001 {
		t.Errorf("Unexpected default tolerances: %+v", cfg.Matching)
	}
	if cfg.Cycles.MinLength != 3 || cfg.Cycles.MaxLength != 8 || cfg.Cycles.MaxCycles != 200 {
		t.Errorf("Unexpected default cycle bounds: %+v", cfg.Cycles)
	}
	if cfg.Tax.GSTRatePct != 18 || cfg.Tax.InterestRatePct != 18 || cfg.Tax.InterestDays != 30 {
		t.Errorf("Unexpected default tax config: %+v", cfg.Tax)
	}
}

func TestLoadConfig_YAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	data := []byte("matching:\n  absTolerance: 2.5\n  pctTolerance: 0.01\n  fuzzyThreshold: 80\n  exactThreshold: 97\n  workers: 8\ncycles:\n  minLength: 3\n  maxLength: 6\n  maxCycles: 50\n  patternLimit: 10\n  inflationThreshold: 1.3\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Matching.FuzzyThreshold != 80 || cfg.Matching.Workers != 8 {
		t.Errorf("YAML values not applied: %+v", cfg.Matching)
	}
	if cfg.Cycles.MaxLength != 6 || cfg.Cycles.InflationThreshold != 1.3 {
		t.Errorf("YAML values not applied: %+v", cfg.Cycles)
	}
	// Untouched sections keep their defaults.
	if cfg.Tax.GSTRatePct != 18 {
		t.Errorf("Expected default GST rate kept, got %v", cfg.Tax.GSTRatePct)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("FUZZY_MATCH_THRESHOLD", "75")
	t.Setenv("GST_RATE_PCT", "12")
	t.Setenv("MATCH_WORKERS", "2")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Matching.FuzzyThreshold != 75 {
		t.Errorf("Expected env threshold 75, got %v", cfg.Matching.FuzzyThreshold)
	}
	if cfg.Tax.GSTRatePct != 12 {
		t.Errorf("Expected env GST rate 12, got %v", cfg.Tax.GSTRatePct)
	}
	if cfg.Matching.Workers != 2 {
		t.Errorf("Expected env workers 2, got %v", cfg.Matching.Workers)
	}
}

func TestLoadConfig_InvalidValuesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	// Zero workers violates the minimum.
	data := []byte("matching:\n  absTolerance: 1\n  pctTolerance: 0.001\n  fuzzyThreshold: 85\n  exactThreshold: 95\n  workers: 0\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("Expected validation error for zero workers")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/engine.yaml"); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}
