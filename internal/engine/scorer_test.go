package engine

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

func scoringMismatch(id string, mmType models.MismatchType, itcAtRisk, confidence float64) models.Mismatch {
	return models.Mismatch{
		MismatchID:      id,
		Type:            mmType,
		FinancialImpact: models.FinancialImpact{ITCAtRisk: itcAtRisk},
		RootCause:       models.RootCause{Confidence: confidence},
		SupplierGSTIN:   testVendor,
	}
}

func TestScore_CompositeWeights(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewScorer(st)

	// Exposure 6M -> impact 100; phantom at full confidence -> 95; unknown
	// vendor -> 50. Composite = 0.4*100 + 0.3*95 + 0.3*50.
	mm := scoringMismatch("MM-1", models.PhantomInvoice, 6000000, 100)
	got := s.Score(context.Background(), &mm)

	assert.Equal(t, 83.5, got)
	assert.Equal(t, 83.5, mm.CompositeRiskScore)
}

func TestScore_ImpactTiers(t *testing.T) {
	tests := []struct {
		exposure float64
		want     float64
	}{
		{6000000, 100},
		{5000000, 100},
		{1000000, 85},
		{500000, 70},
		{499999, 55},
		{100000, 55},
		{50000, 40},
		{10000, 25},
		{9999, 10},
		{0, 10},
	}
	st := store.NewMemoryStore()
	s := NewScorer(st)

	for _, tt := range tests {
		// Fixed probability and vendor terms isolate the impact tier:
		// composite = 0.4*tier + 0.3*40 + 0.3*50.
		mm := scoringMismatch("MM-1", models.PeriodMismatch, tt.exposure, 100)
		got := s.Score(context.Background(), &mm)
		want := round2(0.4*tt.want + 0.3*40 + 0.3*50)
		assert.Equalf(t, want, got, "exposure %v", tt.exposure)
	}
}

func TestScore_ConfidenceScalesProbability(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewScorer(st)

	full := scoringMismatch("MM-1", models.MissingInGSTR2B, 0, 100)
	half := scoringMismatch("MM-2", models.MissingInGSTR2B, 0, 50)

	assert.Greater(t, s.Score(context.Background(), &full), s.Score(context.Background(), &half))
	// 0.4*10 + 0.3*(90*0.5) + 0.3*50 = 32.5
	assert.Equal(t, 32.5, half.CompositeRiskScore)
}

func TestScore_VendorRiskSources(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewScorer(st)
	ctx := context.Background()

	// Unknown vendor falls back to neutral 50.
	mm := scoringMismatch("MM-1", models.ValueMismatch, 0, 100)
	mm.SupplierGSTIN = "unknown"
	base := s.Score(ctx, &mm)
	assert.Equal(t, round2(0.4*10+0.3*70+0.3*50), base)

	// A propagated Level 4 score takes precedence.
	st.SeedEntity(models.Entity{GSTIN: testVendor, Status: models.StatusActive, RiskScore: 80})
	scored := scoringMismatch("MM-2", models.ValueMismatch, 0, 100)
	assert.Equal(t, round2(0.4*10+0.3*70+0.3*80), s.Score(ctx, &scored))

	// Without a propagated score the registration status estimates it.
	st.SeedEntity(models.Entity{GSTIN: ringA, Status: models.StatusCancelled})
	cancelled := scoringMismatch("MM-3", models.ValueMismatch, 0, 100)
	cancelled.SupplierGSTIN = ringA
	assert.Equal(t, round2(0.4*10+0.3*70+0.3*90), s.Score(ctx, &cancelled))

	// No supplier at all is also neutral.
	anon := scoringMismatch("MM-4", models.ValueMismatch, 0, 100)
	anon.SupplierGSTIN = ""
	assert.Equal(t, base, s.Score(ctx, &anon))
}

func TestScoreBatch_RankingAndBounds(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewScorer(st)

	batch := []models.Mismatch{
		scoringMismatch("MM-A", models.PeriodMismatch, 100, 100),
		scoringMismatch("MM-B", models.PhantomInvoice, 6000000, 100),
		scoringMismatch("MM-C", models.ValueMismatch, 60000, 75),
	}
	out := s.ScoreBatch(context.Background(), batch)

	require.Len(t, out, 3)
	assert.True(t, sort.SliceIsSorted(out, func(i, j int) bool {
		return out[i].CompositeRiskScore > out[j].CompositeRiskScore
	}), "batch must be ranked descending")
	assert.Equal(t, "MM-B", out[0].MismatchID)
	for _, mm := range out {
		assert.GreaterOrEqual(t, mm.CompositeRiskScore, 0.0)
		assert.LessOrEqual(t, mm.CompositeRiskScore, 100.0)
	}
}

func TestScoreBatch_StableTieOrder(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewScorer(st)

	batch := []models.Mismatch{
		scoringMismatch("MM-B", models.ValueMismatch, 100, 100),
		scoringMismatch("MM-A", models.ValueMismatch, 100, 100),
	}
	out := s.ScoreBatch(context.Background(), batch)

	require.Len(t, out, 2)
	assert.Equal(t, out[0].CompositeRiskScore, out[1].CompositeRiskScore)
	assert.Equal(t, "MM-A", out[0].MismatchID, "ties must order by id")
}
