// Package engine implements the four-level reconciliation pipeline:
// record matching, claim-chain validation, circular-trade detection and
// network risk propagation, plus the composite scorer and the orchestrator
// that runs them.
package engine

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MatchingConfig tunes the Level 1 greedy matcher.
type MatchingConfig struct {
	AbsTolerance   float64 `yaml:"absTolerance" validate:"gte=0"`
	PctTolerance   float64 `yaml:"pctTolerance" validate:"gte=0,lt=1"` // fraction, 0.001 = ±0.1%
	FuzzyThreshold float64 `yaml:"fuzzyThreshold" validate:"gte=0,lte=100"`
	ExactThreshold float64 `yaml:"exactThreshold" validate:"gte=0,lte=100"`
	Workers        int     `yaml:"workers" validate:"gte=1"`
}

// CycleConfig bounds Level 3 cycle enumeration.
type CycleConfig struct {
	MinLength          int     `yaml:"minLength" validate:"gte=2"`
	MaxLength          int     `yaml:"maxLength" validate:"gtefield=MinLength"`
	MaxCycles          int     `yaml:"maxCycles" validate:"gte=1"`
	PatternLimit       int     `yaml:"patternLimit" validate:"gte=1"`
	InflationThreshold float64 `yaml:"inflationThreshold" validate:"gt=0"`
}

// PageRankConfig tunes the Level 4 influence computation.
type PageRankConfig struct {
	DampingFactor float64 `yaml:"dampingFactor" validate:"gt=0,lt=1"`
	MaxIterations int     `yaml:"maxIterations" validate:"gte=1"`
	Tolerance     float64 `yaml:"tolerance" validate:"gt=0"`
}

// TaxConfig carries the statutory rates used for exposure estimates.
type TaxConfig struct {
	GSTRatePct      float64 `yaml:"gstRatePct" validate:"gt=0,lte=100"`
	InterestRatePct float64 `yaml:"interestRatePct" validate:"gt=0,lte=100"`
	InterestDays    int     `yaml:"interestDays" validate:"gte=1"`
}

// RiskConfig tunes Level 4 reporting thresholds.
type RiskConfig struct {
	HighRiskThreshold float64 `yaml:"highRiskThreshold" validate:"gte=0,lte=100"`
	TopN              int     `yaml:"topN" validate:"gte=1"`
	MemberSampleCap   int     `yaml:"memberSampleCap" validate:"gte=1"`
}

// Config is the full engine configuration, loaded from YAML with
// environment overrides for the commonly tuned knobs.
type Config struct {
	Matching MatchingConfig `yaml:"matching"`
	Cycles   CycleConfig    `yaml:"cycles"`
	PageRank PageRankConfig `yaml:"pagerank"`
	Tax      TaxConfig      `yaml:"tax"`
	Risk     RiskConfig     `yaml:"risk"`
}

// DefaultConfig returns the statutory and empirical defaults: ±1 absolute
// and ±0.1% relative value tolerance, fuzzy threshold 85, rings of 3-8
// entities capped at 200, 18% GST, interest at 18% p.a. over 30 days.
func DefaultConfig() Config {
	return Config{
		Matching: MatchingConfig{
			AbsTolerance:   1.0,
			PctTolerance:   0.001,
			FuzzyThreshold: 85,
			ExactThreshold: 95,
			Workers:        4,
		},
		Cycles: CycleConfig{
			MinLength:          3,
			MaxLength:          8,
			MaxCycles:          200,
			PatternLimit:       100,
			InflationThreshold: 1.2,
		},
		PageRank: PageRankConfig{
			DampingFactor: 0.85,
			MaxIterations: 100,
			Tolerance:     1e-6,
		},
		Tax: TaxConfig{
			GSTRatePct:      18,
			InterestRatePct: 18,
			InterestDays:    30,
		},
		Risk: RiskConfig{
			HighRiskThreshold: 60,
			TopN:              20,
			MemberSampleCap:   10,
		},
	}
}

// LoadConfig reads the YAML file when path is non-empty, applies
// environment overrides, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envFloat("MATCH_TOLERANCE_ABS", &cfg.Matching.AbsTolerance)
	envFloat("MATCH_TOLERANCE_PCT", &cfg.Matching.PctTolerance)
	envFloat("FUZZY_MATCH_THRESHOLD", &cfg.Matching.FuzzyThreshold)
	envInt("MATCH_WORKERS", &cfg.Matching.Workers)
	envInt("CYCLE_MAX_LENGTH", &cfg.Cycles.MaxLength)
	envInt("CYCLE_MAX_COUNT", &cfg.Cycles.MaxCycles)
	envFloat("PAGERANK_DAMPING", &cfg.PageRank.DampingFactor)
	envFloat("GST_RATE_PCT", &cfg.Tax.GSTRatePct)
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
