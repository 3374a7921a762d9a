package engine

import (
	"context"
	"testing"

	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

const (
	ringA = "06AAACD1234E1ZQ"
	ringB = "09AAACE5678F1ZR"
	ringC = "24AAACC1206D1ZM"
	ringD = "33AAACB2894G1ZP"
)

func newTestDetector(st *store.MemoryStore) *CycleDetector {
	cfg := DefaultConfig()
	return NewCycleDetector(cfg.Cycles, cfg.Tax, st)
}

func seedRing(st *store.MemoryStore, values ...float64) {
	nodes := []string{ringA, ringB, ringC, ringD}[:len(values)]
	for i, v := range values {
		st.SeedEdge(models.TransactionEdge{
			SourceGSTIN: nodes[i],
			TargetGSTIN: nodes[(i+1)%len(nodes)],
			TotalValue:  v,
			TxnCount:    1,
		})
	}
}

func TestDetect_InflatedRing(t *testing.T) {
	// 100 -> 120 -> 150 around a 3-ring: inflation ratio 1.5.
	st := store.NewMemoryStore()
	seedRing(st, 100, 120, 150)
	d := newTestDetector(st)

	found, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}

	// Graph enumeration and the pattern query both see the ring; dedupe
	// must leave exactly one finding.
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding for a single ring, got %d", len(found))
	}
	mm := found[0]
	if mm.Type != models.CircularTrade {
		t.Errorf("Expected CIRCULAR_TRADE, got %s", mm.Type)
	}
	if mm.Severity != models.SeverityHigh {
		t.Errorf("Expected HIGH severity for inflation 1.5, got %s", mm.Severity)
	}
	if mm.AffectedChain == nil || len(mm.AffectedChain.Hops) != 3 {
		t.Fatalf("Expected 3 hops, got %+v", mm.AffectedChain)
	}
	// Avg edge value 123.33 at 18% GST.
	if mm.FinancialImpact.ITCAtRisk != 22.2 {
		t.Errorf("Expected estimated tax 22.20, got %v", mm.FinancialImpact.ITCAtRisk)
	}
	if mm.FinancialImpact.PenaltyExposure != mm.FinancialImpact.ITCAtRisk {
		t.Errorf("Expected 100%% penalty, got %v", mm.FinancialImpact.PenaltyExposure)
	}
	if mm.RiskCategory != models.RiskDemandNotice {
		t.Errorf("Expected DEMAND_NOTICE, got %s", mm.RiskCategory)
	}
	if mm.RootCause.Confidence != 72.5 {
		t.Errorf("Expected confidence 72.5 (50 + 1.5*15), got %v", mm.RootCause.Confidence)
	}
	if len(mm.RootCause.EvidencePaths) != 3 {
		t.Errorf("Expected one evidence line per edge, got %d", len(mm.RootCause.EvidencePaths))
	}
}

func TestDetect_NoRing(t *testing.T) {
	st := store.NewMemoryStore()
	st.SeedEdge(models.TransactionEdge{SourceGSTIN: ringA, TargetGSTIN: ringB, TotalValue: 100, TxnCount: 1})
	st.SeedEdge(models.TransactionEdge{SourceGSTIN: ringB, TargetGSTIN: ringC, TotalValue: 100, TxnCount: 1})
	d := newTestDetector(st)

	found, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("Expected no findings without a ring, got %d", len(found))
	}
}

func TestDetect_FlatThreeRingIsMedium(t *testing.T) {
	// Level values, no inflation: still suspicious purely for being a
	// 3-entity ring, at reduced severity.
	st := store.NewMemoryStore()
	seedRing(st, 100, 100, 100)
	d := newTestDetector(st)

	found, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	if found[0].Severity != models.SeverityMedium {
		t.Errorf("Expected MEDIUM severity for a flat 3-ring, got %s", found[0].Severity)
	}
	if found[0].RiskCategory != models.RiskAuditTrigger {
		t.Errorf("Expected AUDIT_TRIGGER, got %s", found[0].RiskCategory)
	}
}

func TestDetect_HeavyInflationIsCritical(t *testing.T) {
	// 100 -> 100 -> 100 -> 250 around a 4-ring: inflation 2.5.
	st := store.NewMemoryStore()
	seedRing(st, 100, 100, 100, 250)
	d := newTestDetector(st)

	found, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	mm := found[0]
	if mm.Severity != models.SeverityCritical {
		t.Errorf("Expected CRITICAL severity for inflation 2.5, got %s", mm.Severity)
	}
	if len(mm.AffectedChain.Hops) != 4 {
		t.Errorf("Expected 4 hops, got %d", len(mm.AffectedChain.Hops))
	}
}

func TestDetect_LowComplianceParticipants(t *testing.T) {
	st := store.NewMemoryStore()
	seedRing(st, 100, 100, 100)
	st.SeedEntity(models.Entity{GSTIN: ringA, Status: models.StatusActive, ComplianceRating: 30})
	st.SeedEntity(models.Entity{GSTIN: ringB, Status: models.StatusActive, ComplianceRating: 25})
	st.SeedEntity(models.Entity{GSTIN: ringC, Status: models.StatusActive, ComplianceRating: 80})
	d := newTestDetector(st)

	found, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	// Two participants below compliance 40 escalate the ring.
	if found[0].Severity != models.SeverityCritical {
		t.Errorf("Expected CRITICAL for two low-compliance participants, got %s", found[0].Severity)
	}
}

func TestDetect_IgnoresShortRings(t *testing.T) {
	st := store.NewMemoryStore()
	seedRing(st, 100, 120, 150)
	st.SeedEdge(models.TransactionEdge{SourceGSTIN: ringD, TargetGSTIN: testVendor, TotalValue: 500, TxnCount: 1})
	st.SeedEdge(models.TransactionEdge{SourceGSTIN: testVendor, TargetGSTIN: ringD, TotalValue: 500, TxnCount: 1})
	d := newTestDetector(st)

	found, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	// The 2-ring is below the minimum ring length and must be ignored.
	if len(found) != 1 {
		t.Fatalf("Expected only the 3-ring reported, got %d findings", len(found))
	}
}
