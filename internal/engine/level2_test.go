package engine

import (
	"context"
	"testing"

	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

const testVendor = "07AABCS1429B1ZS"

func newTestValidator(st *store.MemoryStore) *ChainValidator {
	cfg := DefaultConfig()
	return NewChainValidator(cfg.Matching, cfg.Tax, st)
}

// validChain builds a fully intact ITC chain: purchase register entry,
// matching GSTR-1 invoice, filed GSTR-1, claimed via GSTR-3B, active
// supplier, active IRN.
func validChain() models.ChainContext {
	inv2b := models.Invoice{
		UID:            "2b-c1",
		InvoiceNumber:  "INV-100",
		InvoiceDate:    testDate,
		TaxableValue:   1000,
		IGST:           180,
		TotalValue:     1180,
		SupplierGSTIN:  testVendor,
		RecipientGSTIN: testBuyer,
		Source:         models.SourceGSTR2B,
	}
	inv1 := inv2b
	inv1.UID = "g1-c1"
	inv1.Source = models.SourceGSTR1

	return models.ChainContext{
		GSTR2BInvoice: inv2b,
		GSTR1Invoice:  &inv1,
		PurchaseEntry: &models.PurchaseRegisterEntry{
			EntryID: "PR-1", InvoiceUID: "2b-c1", TaxableValue: 1000, TaxAmount: 180,
		},
		GSTR1Return:    &models.ReturnFiling{ReturnType: "GSTR1", ReturnPeriod: testPeriod, FilingStatus: "filed"},
		GSTR3BReturn:   &models.ReturnFiling{ReturnType: "GSTR3B", ReturnPeriod: testPeriod, FilingStatus: "filed"},
		ITCClaim:       &models.ITCClaim{ClaimedAmount: 180, EligibleAmount: 180, Eligibility: "eligible"},
		SupplierStatus: models.StatusActive,
		IRN:            &models.IRNRecord{IRNHash: "irn-1", Status: "active"},
	}
}

func validateOne(t *testing.T, chain models.ChainContext) []models.Mismatch {
	t.Helper()
	st := store.NewMemoryStore()
	st.SeedChainContext(testBuyer, testPeriod, chain)
	v := newTestValidator(st)
	found, err := v.Validate(context.Background(), testBuyer, testPeriod)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	return found
}

func TestValidate_CompleteChain(t *testing.T) {
	found := validateOne(t, validChain())
	if len(found) != 0 {
		t.Fatalf("Expected no findings for an intact chain, got %+v", found)
	}
}

func TestValidate_CancelledSupplierIsPhantom(t *testing.T) {
	chain := validChain()
	chain.SupplierStatus = models.StatusCancelled

	found := validateOne(t, chain)
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	mm := found[0]
	if mm.Type != models.PhantomInvoice {
		t.Errorf("Expected PHANTOM_INVOICE, got %s", mm.Type)
	}
	// Always critical regardless of the (small) invoice amount.
	if mm.Severity != models.SeverityCritical {
		t.Errorf("Expected CRITICAL severity, got %s", mm.Severity)
	}
	if mm.RiskCategory != models.RiskDemandNotice {
		t.Errorf("Expected DEMAND_NOTICE, got %s", mm.RiskCategory)
	}
	if mm.AffectedChain == nil || mm.AffectedChain.BreakPoint == nil {
		t.Fatal("Expected a break point on the affected chain")
	}
	if *mm.AffectedChain.BreakPoint != 2 {
		t.Errorf("Expected break at hop 2 (supplier invoice), got %d", *mm.AffectedChain.BreakPoint)
	}
	if mm.AffectedChain.ChainCompleteness != 75 {
		t.Errorf("Expected completeness 75 (3 of 4 hops valid), got %v", mm.AffectedChain.ChainCompleteness)
	}
	if mm.FinancialImpact.ITCAtRisk != 180 {
		t.Errorf("Expected ITC at risk 180, got %v", mm.FinancialImpact.ITCAtRisk)
	}
}

func TestValidate_MissingGSTR1(t *testing.T) {
	chain := validChain()
	chain.GSTR1Invoice = nil
	chain.GSTR1Return = nil

	found := validateOne(t, chain)
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	mm := found[0]
	if mm.Type != models.MissingInGSTR1 {
		t.Errorf("Expected MISSING_IN_GSTR1, got %s", mm.Type)
	}
	if *mm.AffectedChain.BreakPoint != 2 {
		t.Errorf("Expected break at hop 2, got %d", *mm.AffectedChain.BreakPoint)
	}
	if mm.AffectedChain.ChainCompleteness != 50 {
		t.Errorf("Expected completeness 50 (hops 2 and 3 broken), got %v", mm.AffectedChain.ChainCompleteness)
	}
}

func TestValidate_Overclaim(t *testing.T) {
	chain := validChain()
	// 250 claimed against 180 eligible, beyond the 5% headroom.
	chain.ITCClaim = &models.ITCClaim{ClaimedAmount: 250, EligibleAmount: 180}

	found := validateOne(t, chain)
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	mm := found[0]
	if mm.Type != models.ITCOverclaim {
		t.Errorf("Expected ITC_OVERCLAIM, got %s", mm.Type)
	}
	if *mm.AffectedChain.BreakPoint != 4 {
		t.Errorf("Expected break at hop 4, got %d", *mm.AffectedChain.BreakPoint)
	}
	if mm.FinancialImpact.InterestLiability != calculateInterest(180, 18, 30) {
		t.Errorf("Unexpected interest %v", mm.FinancialImpact.InterestLiability)
	}
}

func TestValidate_OverclaimWithinHeadroom(t *testing.T) {
	chain := validChain()
	chain.ITCClaim = &models.ITCClaim{ClaimedAmount: 188, EligibleAmount: 180}

	found := validateOne(t, chain)
	if len(found) != 0 {
		t.Fatalf("Expected claim within 5%% headroom to pass, got %+v", found)
	}
}

func TestValidate_ValueMismatchWarning(t *testing.T) {
	chain := validChain()
	g1 := *chain.GSTR1Invoice
	g1.TaxableValue = 900
	chain.GSTR1Invoice = &g1

	found := validateOne(t, chain)
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	mm := found[0]
	if mm.Type != models.ValueMismatch {
		t.Errorf("Expected VALUE_MISMATCH, got %s", mm.Type)
	}
	if *mm.AffectedChain.BreakPoint != 2 {
		t.Errorf("Expected break at hop 2, got %d", *mm.AffectedChain.BreakPoint)
	}
}

func TestValidate_CancelledIRN(t *testing.T) {
	chain := validChain()
	chain.IRN = &models.IRNRecord{IRNHash: "irn-1", Status: "cancelled"}

	found := validateOne(t, chain)
	if len(found) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(found))
	}
	mm := found[0]
	if mm.Type != models.IRNInvalid {
		t.Errorf("Expected IRN_INVALID, got %s", mm.Type)
	}
	if *mm.AffectedChain.BreakPoint != 2 {
		t.Errorf("Expected IRN issue to degrade hop 2, got break %d", *mm.AffectedChain.BreakPoint)
	}
	if mm.AffectedChain.ChainCompleteness != 75 {
		t.Errorf("Expected completeness 75, got %v", mm.AffectedChain.ChainCompleteness)
	}
}

func TestValidate_BreakPointInvariant(t *testing.T) {
	// Every finding must carry a break point equal to the first non-valid
	// hop, and completeness strictly below 100.
	mutations := []struct {
		name   string
		mutate func(*models.ChainContext)
	}{
		{"Missing Purchase Entry", func(c *models.ChainContext) { c.PurchaseEntry = nil }},
		{"Missing GSTR1 Invoice", func(c *models.ChainContext) { c.GSTR1Invoice = nil }},
		{"Unfiled GSTR1", func(c *models.ChainContext) { c.GSTR1Return = nil }},
		{"Unclaimed GSTR3B", func(c *models.ChainContext) { c.GSTR3BReturn = nil }},
		{"Suspended Supplier", func(c *models.ChainContext) { c.SupplierStatus = models.StatusSuspended }},
		{"Invalid IRN", func(c *models.ChainContext) { c.IRN.Status = "invalid" }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			chain := validChain()
			tt.mutate(&chain)

			found := validateOne(t, chain)
			if len(found) != 1 {
				t.Fatalf("Expected exactly 1 finding, got %d", len(found))
			}
			ac := found[0].AffectedChain
			if ac == nil || ac.BreakPoint == nil {
				t.Fatal("Expected affected chain with break point")
			}
			firstNonValid := 0
			for _, h := range ac.Hops {
				if h.Status != models.HopValid {
					firstNonValid = h.HopNumber
					break
				}
			}
			if firstNonValid == 0 {
				t.Fatal("Finding emitted but every hop is valid")
			}
			if *ac.BreakPoint != firstNonValid {
				t.Errorf("Break point %d does not match first non-valid hop %d", *ac.BreakPoint, firstNonValid)
			}
			if ac.ChainCompleteness >= 100 {
				t.Errorf("Expected completeness below 100, got %v", ac.ChainCompleteness)
			}
		})
	}
}

func TestValidate_MultipleChains(t *testing.T) {
	st := store.NewMemoryStore()
	st.SeedChainContext(testBuyer, testPeriod, validChain())

	broken := validChain()
	broken.GSTR2BInvoice.UID = "2b-c2"
	broken.SupplierStatus = models.StatusCancelled
	st.SeedChainContext(testBuyer, testPeriod, broken)

	v := newTestValidator(st)
	found, err := v.Validate(context.Background(), testBuyer, testPeriod)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected only the broken chain to surface, got %d findings", len(found))
	}
}
