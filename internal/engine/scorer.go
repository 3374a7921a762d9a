package engine

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// probabilityMap estimates how likely each finding type is a genuine
// compliance failure rather than a filing artifact.
var probabilityMap = map[models.MismatchType]float64{
	models.ValueMismatch:   70,
	models.TaxRateMismatch: 80,
	models.MissingInGSTR2B: 90,
	models.MissingInGSTR1:  85,
	models.Duplicate:       75,
	models.ITCOverclaim:    85,
	models.PeriodMismatch:  40,
	models.PhantomInvoice:  95,
	models.CircularTrade:   80,
	models.IRNInvalid:      60,
	models.EWBMismatch:     50,
}

// impactTiers normalize total exposure (INR) to a 0-100 score: first
// matching threshold wins, scanned descending.
var impactTiers = []struct {
	threshold float64
	score     float64
}{
	{5000000, 100},
	{1000000, 85},
	{500000, 70},
	{100000, 55},
	{50000, 40},
	{10000, 25},
	{0, 10},
}

// Scorer computes the composite 0-100 risk score for findings:
// 0.4×financial impact + 0.3×type probability + 0.3×vendor risk.
type Scorer struct {
	store store.GraphStore
	log   *logrus.Entry
}

func NewScorer(st store.GraphStore) *Scorer {
	return &Scorer{store: st, log: logrus.WithField("component", "scorer")}
}

// Score computes and writes the composite score onto the finding.
func (s *Scorer) Score(ctx context.Context, m *models.Mismatch) float64 {
	return s.score(ctx, m, map[string]float64{})
}

func (s *Scorer) score(ctx context.Context, m *models.Mismatch, vendorCache map[string]float64) float64 {
	fiScore := 10.0
	exposure := m.FinancialImpact.TotalExposure()
	for _, tier := range impactTiers {
		if exposure >= tier.threshold {
			fiScore = tier.score
			break
		}
	}

	probScore, ok := probabilityMap[m.Type]
	if !ok {
		probScore = 50
	}
	if m.RootCause.Confidence > 0 {
		probScore *= m.RootCause.Confidence / 100
	}

	vendorRisk, cached := vendorCache[m.SupplierGSTIN]
	if !cached {
		vendorRisk = s.vendorRisk(ctx, m.SupplierGSTIN)
		vendorCache[m.SupplierGSTIN] = vendorRisk
	}

	composite := models.CompositeRiskScore{
		FinancialImpactScore: fiScore,
		ProbabilityScore:     probScore,
		VendorRiskScore:      vendorRisk,
	}
	m.CompositeRiskScore = clamp(composite.Composite(), 0, 100)
	return m.CompositeRiskScore
}

// vendorRisk reads the supplier's Level 4 score; a missing entity, unscored
// entity or store failure falls back to a status-derived estimate. Scoring
// never fails a run over vendor lookup.
func (s *Scorer) vendorRisk(ctx context.Context, gstin string) float64 {
	if gstin == "" {
		return 50
	}
	entity, err := s.store.FetchEntity(ctx, gstin)
	if err != nil {
		s.log.WithField("gstin", gstin).Warnf("vendor risk lookup failed: %v", err)
		return 50
	}
	if entity == nil {
		return 50
	}
	if entity.RiskScore > 0 {
		return entity.RiskScore
	}
	switch entity.Status {
	case models.StatusCancelled:
		return 90
	case models.StatusSuspended:
		return 70
	default:
		return 50
	}
}

// ScoreBatch scores every finding and returns them sorted descending by
// composite score, the canonical display ranking. Ties sort by id so the
// order is stable across runs.
func (s *Scorer) ScoreBatch(ctx context.Context, mismatches []models.Mismatch) []models.Mismatch {
	vendorCache := make(map[string]float64)
	for i := range mismatches {
		s.score(ctx, &mismatches[i], vendorCache)
	}
	sort.SliceStable(mismatches, func(i, j int) bool {
		if mismatches[i].CompositeRiskScore != mismatches[j].CompositeRiskScore {
			return mismatches[i].CompositeRiskScore > mismatches[j].CompositeRiskScore
		}
		return mismatches[i].MismatchID < mismatches[j].MismatchID
	})
	return mismatches
}
