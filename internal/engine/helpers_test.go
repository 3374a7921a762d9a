package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/crosslens/gst-recon-engine/pkg/models"
)

func TestValuesMatch(t *testing.T) {
	tests := []struct {
		name   string
		v1, v2 float64
		want   bool
	}{
		{"Exact", 100, 100, true},
		{"Within Absolute Tolerance", 100, 100.9, true},
		{"At Absolute Tolerance", 100, 101, true},
		{"Beyond Absolute Tolerance", 100, 105, false},
		{"Within Relative Tolerance", 100000, 100050, true},
		{"Beyond Relative Tolerance", 100000, 100200, false},
		{"Both Zero", 0, 0, true},
		{"Zero Versus Small", 0, 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valuesMatch(tt.v1, tt.v2, 1.0, 0.001); got != tt.want {
				t.Errorf("valuesMatch(%v, %v) = %v, want %v", tt.v1, tt.v2, got, tt.want)
			}
		})
	}
}

func TestSeverityFromAmount(t *testing.T) {
	tests := []struct {
		amount float64
		want   models.Severity
	}{
		{500000, models.SeverityCritical},
		{499999.99, models.SeverityHigh},
		{100000, models.SeverityHigh},
		{99999.99, models.SeverityMedium},
		{10000, models.SeverityMedium},
		{9999.99, models.SeverityLow},
		{0, models.SeverityLow},
	}

	for _, tt := range tests {
		if got := severityFromAmount(tt.amount); got != tt.want {
			t.Errorf("severityFromAmount(%v) = %v, want %v", tt.amount, got, tt.want)
		}
	}
}

func TestCalculateInterest(t *testing.T) {
	// 100000 at 18% p.a. over 30 days = 100000 * 0.18 * 30/365
	got := calculateInterest(100000, 18, 30)
	if math.Abs(got-1479.45) > 1e-9 {
		t.Errorf("calculateInterest() = %v, want 1479.45", got)
	}
	if got := calculateInterest(0, 18, 30); got != 0 {
		t.Errorf("calculateInterest(0) = %v, want 0", got)
	}
}

func TestSimilarityRatio(t *testing.T) {
	if got := similarityRatio("ABC123", "ABC123"); got != 100 {
		t.Errorf("Expected 100 for equal strings, got %v", got)
	}
	if got := similarityRatio("", ""); got != 100 {
		t.Errorf("Expected 100 for two empty strings, got %v", got)
	}
	// One substitution over six characters.
	got := similarityRatio("ABC123", "ABC124")
	want := 100 * (1 - 1.0/6)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("similarityRatio() = %v, want %v", got, want)
	}
	if got := similarityRatio("AAAA", "ZZZZ"); got != 0 {
		t.Errorf("Expected 0 for disjoint strings, got %v", got)
	}
}

func TestRound2AndClamp(t *testing.T) {
	if got := round2(94.005); got != 94.01 {
		t.Errorf("round2(94.005) = %v, want 94.01", got)
	}
	if got := clamp(120, 0, 100); got != 100 {
		t.Errorf("clamp(120) = %v, want 100", got)
	}
	if got := clamp(-5, 0, 100); got != 0 {
		t.Errorf("clamp(-5) = %v, want 0", got)
	}
}

func TestIdentifiers(t *testing.T) {
	run := newRunID()
	if !strings.HasPrefix(run, "REC-") || len(run) != 12 {
		t.Errorf("Unexpected run id format: %q", run)
	}
	mm := newMismatchID(2)
	if !strings.HasPrefix(mm, "MM-L2-") || len(mm) != 14 {
		t.Errorf("Unexpected mismatch id format: %q", mm)
	}
	if newMismatchID(1) == newMismatchID(1) {
		t.Error("Expected unique mismatch ids")
	}
}
