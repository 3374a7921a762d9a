package engine

import (
	"fmt"
	"math"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// valuesMatch reports whether two monetary values agree within the absolute
// tolerance or the relative tolerance (pctTol is a fraction, 0.001 = 0.1%).
func valuesMatch(v1, v2, absTol, pctTol float64) bool {
	diff := math.Abs(v1 - v2)
	if diff <= absTol {
		return true
	}
	if v1 != 0 && diff/math.Abs(v1) <= pctTol {
		return true
	}
	if v2 != 0 && diff/math.Abs(v2) <= pctTol {
		return true
	}
	return false
}

// severityFromAmount buckets a monetary exposure into severity bands.
func severityFromAmount(amount float64) models.Severity {
	switch {
	case amount >= 500000:
		return models.SeverityCritical
	case amount >= 100000:
		return models.SeverityHigh
	case amount >= 10000:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// calculateInterest computes simple interest u/s 50 CGST Act:
// principal × (rate/100) × (days/365), rounded to paise.
func calculateInterest(principal, ratePct float64, days int) float64 {
	return round2(principal * (ratePct / 100) * (float64(days) / 365))
}

// similarityRatio returns a 0-100 similarity between two strings based on
// normalized Levenshtein distance. Equal strings score 100.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 100
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(dist)/float64(longest))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// newRunID returns a short run identifier, e.g. REC-1a2b3c4d.
func newRunID() string {
	return "REC-" + uuid.NewString()[:8]
}

// newMismatchID returns a level-tagged finding identifier, e.g. MM-L1-1a2b3c4d.
func newMismatchID(level int) string {
	return fmt.Sprintf("MM-L%d-%s", level, uuid.NewString()[:8])
}
