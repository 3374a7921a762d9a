package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/graph"
	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// CycleDetector is Level 3: it enumerates simple cycles in the graph-wide
// transaction network and flags rings with abnormal value inflation.
// Detection merges two strategies: bounded in-process enumeration and
// direct 3/4-node pattern queries against the store; results are
// deduplicated by canonical rotation.
type CycleDetector struct {
	cfg   CycleConfig
	tax   TaxConfig
	store store.GraphStore
	log   *logrus.Entry
}

func NewCycleDetector(cfg CycleConfig, tax TaxConfig, st store.GraphStore) *CycleDetector {
	return &CycleDetector{cfg: cfg, tax: tax, store: st, log: logrus.WithField("component", "level3")}
}

// Detect runs circular-trade detection across the entire transaction graph.
func (d *CycleDetector) Detect(ctx context.Context) ([]models.Mismatch, error) {
	g, err := d.buildGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("level3: %w", err)
	}
	d.log.WithFields(logrus.Fields{
		"nodes": g.NodeCount(),
		"edges": g.EdgeCount(),
	}).Info("transaction graph built")

	result := graph.SimpleCycles(g, graph.CycleOptions{
		MinLength: d.cfg.MinLength,
		MaxLength: d.cfg.MaxLength,
		MaxCycles: d.cfg.MaxCycles,
	})
	if result.Truncated {
		// Hitting the cap is not an error; the cycle list is a lower bound.
		d.log.Warn("cycle enumeration truncated at cap; results are a lower bound")
	}
	d.log.WithField("cycles", len(result.Cycles)).Info("cycles found via graph enumeration")

	patternCycles, err := d.fetchPatternCycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("level3: %w", err)
	}
	d.log.WithField("cycles", len(patternCycles)).Info("cycles found via store patterns")

	merged := mergeCycles(result.Cycles, patternCycles)
	d.log.WithField("cycles", len(merged)).Info("unique cycles after dedupe")

	mismatches := make([]models.Mismatch, 0, len(merged))
	for _, cycle := range merged {
		mismatches = append(mismatches, d.analyzeCycle(cycle, g))
	}
	d.log.WithField("findings", len(mismatches)).Info("circular trade detection complete")
	return mismatches, nil
}

func (d *CycleDetector) buildGraph(ctx context.Context) (*graph.Graph, error) {
	edges, err := d.store.FetchAggregatedEdges(ctx)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	for _, e := range edges {
		g.AddEdge(e.SourceGSTIN, e.TargetGSTIN, e.TotalValue, e.TxnCount)
	}
	entities, err := d.store.FetchEntities(ctx)
	if err != nil {
		return nil, err
	}
	for _, ent := range entities {
		if n := g.Node(ent.GSTIN); n != nil {
			n.Status = string(ent.Status)
			n.Compliance = ent.ComplianceRating
		}
	}
	return g, nil
}

func (d *CycleDetector) fetchPatternCycles(ctx context.Context) ([][]string, error) {
	var cycles [][]string
	for _, length := range []int{3, 4} {
		found, err := d.store.FetchCyclePatterns(ctx, length, d.cfg.PatternLimit)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, found...)
	}
	return cycles, nil
}

// mergeCycles deduplicates cycles from both strategies by canonical rotation.
func mergeCycles(groups ...[][]string) [][]string {
	seen := make(map[string]bool)
	var merged [][]string
	for _, group := range groups {
		for _, cycle := range group {
			key := graph.CycleKey(cycle)
			if !seen[key] {
				seen[key] = true
				merged = append(merged, graph.Canonicalize(cycle))
			}
		}
	}
	return merged
}

type cycleEdge struct {
	from, to string
	value    float64
}

// analyzeCycle scores one ring for value inflation and participant risk.
func (d *CycleDetector) analyzeCycle(cycle []string, g *graph.Graph) models.Mismatch {
	edges := make([]cycleEdge, 0, len(cycle))
	totalValue := 0.0
	for i, src := range cycle {
		tgt := cycle[(i+1)%len(cycle)]
		value := 0.0
		if e := g.EdgeBetween(src, tgt); e != nil {
			value = e.Weight
		}
		edges = append(edges, cycleEdge{from: src, to: tgt, value: value})
		totalValue += value
	}

	// Genuine trade keeps values roughly level around the ring; fraud
	// inflates them.
	inflationRatio := 1.0
	minVal, maxVal := 0.0, 0.0
	first := true
	for _, e := range edges {
		if e.value <= 0 {
			continue
		}
		if first {
			minVal, maxVal = e.value, e.value
			first = false
			continue
		}
		if e.value < minVal {
			minVal = e.value
		}
		if e.value > maxVal {
			maxVal = e.value
		}
	}
	if !first {
		inflationRatio = maxVal / maxF(minVal, 1)
	}

	suspicious := inflationRatio > d.cfg.InflationThreshold || len(cycle) == 3

	lowComplianceCount := 0
	for _, id := range cycle {
		if n := g.Node(id); n != nil && n.Compliance < 40 {
			lowComplianceCount++
		}
	}

	avgEdgeValue := totalValue / maxF(float64(len(cycle)), 1)
	estimatedTax := avgEdgeValue * d.tax.GSTRatePct / 100

	var severity models.Severity
	switch {
	case inflationRatio > 2.0 || lowComplianceCount >= 2:
		severity = models.SeverityCritical
	case inflationRatio >= 1.5:
		severity = models.SeverityHigh
	case suspicious:
		severity = models.SeverityMedium
	default:
		severity = models.SeverityLow
	}

	hopStatus := models.HopValid
	if inflationRatio > d.cfg.InflationThreshold {
		hopStatus = models.HopWarning
	}
	hops := make([]models.ChainHop, 0, len(edges))
	evidence := make([]string, 0, len(edges))
	for i, e := range edges {
		hops = append(hops, models.ChainHop{
			HopNumber:    i + 1,
			SourceType:   "GSTIN",
			SourceID:     e.from,
			TargetType:   "GSTIN",
			TargetID:     e.to,
			Relationship: "TRANSACTS_WITH",
			Status:       hopStatus,
			Details:      fmt.Sprintf("Transaction value: %.2f", e.value),
		})
		evidence = append(evidence, fmt.Sprintf("%s -> %s: %.2f", e.from, e.to, e.value))
	}

	riskCat := models.RiskAuditTrigger
	if severity == models.SeverityCritical || severity == models.SeverityHigh {
		riskCat = models.RiskDemandNotice
	}
	priority := "HIGH"
	if severity == models.SeverityCritical {
		priority = "CRITICAL"
	}

	ring := strings.Join(cycle, " -> ")
	sample := cycle
	if len(sample) > 3 {
		sample = sample[:3]
	}

	return models.Mismatch{
		MismatchID: newMismatchID(3),
		Type:       models.CircularTrade,
		Severity:   severity,
		Status:     models.StatusOpen,
		DetectedAt: time.Now().UTC(),
		FinancialImpact: models.FinancialImpact{
			ITCAtRisk:         round2(estimatedTax),
			InterestLiability: round2(estimatedTax * d.tax.InterestRatePct / 100 / 12),
			// 100% penalty for fraudulent credit u/s 74.
			PenaltyExposure: round2(estimatedTax),
		},
		RiskCategory: riskCat,
		RootCause: models.RootCause{
			Classification: fmt.Sprintf("Circular trade detected: %s -> %s", ring, cycle[0]),
			Confidence:     minF(95, 50+inflationRatio*15+float64(lowComplianceCount)*10),
			EvidencePaths:  evidence,
			AlternativeExplanations: []string{
				"Legitimate supply chain with circular dependencies",
				"Group company transactions (related party)",
			},
		},
		AffectedChain: &models.AffectedChain{
			Hops:              hops,
			ChainCompleteness: 100,
		},
		ResolutionActions: []models.ResolutionAction{
			{ActionID: 1, Description: fmt.Sprintf("Investigate circular chain: %s...", strings.Join(sample, " -> ")),
				Priority: priority, DeadlineDays: 7, RegulatoryReference: "Section 67 CGST Act"},
			{ActionID: 2, Description: "Check if entities are related parties under Section 15",
				Priority: "HIGH", DeadlineDays: 15, RegulatoryReference: "Section 15(5) CGST Act"},
			{ActionID: 3, Description: "Verify genuineness of goods/services movement",
				Priority: "HIGH", DeadlineDays: 15, RegulatoryReference: "Section 16(2)(b) CGST Act"},
		},
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
