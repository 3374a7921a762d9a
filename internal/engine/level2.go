package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// ChainValidator is Level 2: for every ITC claim of a buyer it walks the
// fixed dependency chain
//
//	purchase register -> GSTR-2B invoice -> GSTR-1 invoice -> GSTR-1 return -> GSTR-3B claim
//
// plus side checks on supplier registration status and IRN validity.
// A chain with zero issues emits nothing.
type ChainValidator struct {
	cfg   MatchingConfig
	tax   TaxConfig
	store store.GraphStore
	log   *logrus.Entry
}

func NewChainValidator(cfg MatchingConfig, tax TaxConfig, st store.GraphStore) *ChainValidator {
	return &ChainValidator{cfg: cfg, tax: tax, store: st, log: logrus.WithField("component", "level2")}
}

// Validate checks every ITC chain for a buyer GSTIN and period. A failure
// fetching the chain rows aborts the level; a single bad chain does not.
func (v *ChainValidator) Validate(ctx context.Context, buyerGSTIN, period string) ([]models.Mismatch, error) {
	chains, err := v.store.FetchChainContexts(ctx, buyerGSTIN, period)
	if err != nil {
		return nil, fmt.Errorf("level2 %s/%s: %w", buyerGSTIN, period, err)
	}
	v.log.WithFields(logrus.Fields{
		"gstin":  buyerGSTIN,
		"period": period,
		"chains": len(chains),
	}).Info("validating ITC chains")

	var mismatches []models.Mismatch
	for _, chain := range chains {
		if mm := v.validateChain(chain, period); mm != nil {
			mismatches = append(mismatches, *mm)
		}
	}

	v.log.WithFields(logrus.Fields{
		"gstin":  buyerGSTIN,
		"broken": len(mismatches),
	}).Info("chain validation complete")
	return mismatches, nil
}

func (v *ChainValidator) validateChain(chain models.ChainContext, period string) *models.Mismatch {
	inv2b := chain.GSTR2BInvoice
	var hops []models.ChainHop
	var issues []string

	// Hop 1: purchase register entry backs the received invoice.
	hop1 := models.ChainHop{
		HopNumber:    1,
		SourceType:   "PurchaseRegisterEntry",
		SourceID:     "N/A",
		TargetType:   "Invoice (GSTR-2B)",
		TargetID:     inv2b.UID,
		Relationship: "CORRESPONDS_TO",
		Status:       models.HopValid,
		Details:      "Purchase register entry found",
	}
	if chain.PurchaseEntry == nil {
		hop1.Status = models.HopBroken
		hop1.Details = "No purchase register entry"
		issues = append(issues, "Missing purchase register entry")
	} else {
		hop1.SourceID = chain.PurchaseEntry.EntryID
	}
	hops = append(hops, hop1)

	// Hop 2: supplier filed a matching GSTR-1 invoice, values consistent.
	hop2 := models.ChainHop{
		HopNumber:    2,
		SourceType:   "Invoice (GSTR-2B)",
		SourceID:     inv2b.UID,
		TargetType:   "Invoice (GSTR-1)",
		TargetID:     "N/A",
		Relationship: "MATCHED_WITH",
		Status:       models.HopValid,
		Details:      "GSTR-1 invoice matched",
	}
	switch {
	case chain.GSTR1Invoice == nil:
		hop2.Status = models.HopBroken
		hop2.Details = "No matching GSTR-1 invoice found from supplier"
		issues = append(issues, hop2.Details)
	case !valuesMatch(inv2b.TaxableValue, chain.GSTR1Invoice.TaxableValue, v.cfg.AbsTolerance, v.cfg.PctTolerance):
		hop2.TargetID = chain.GSTR1Invoice.UID
		hop2.Status = models.HopWarning
		hop2.Details = fmt.Sprintf("Value mismatch: GSTR-2B=%.2f, GSTR-1=%.2f",
			inv2b.TaxableValue, chain.GSTR1Invoice.TaxableValue)
		issues = append(issues, hop2.Details)
	default:
		hop2.TargetID = chain.GSTR1Invoice.UID
	}
	hops = append(hops, hop2)

	// Hop 3: the GSTR-1 invoice was reported in a filed return.
	hop3 := models.ChainHop{
		HopNumber:    3,
		SourceType:   "Invoice (GSTR-1)",
		SourceID:     hop2.TargetID,
		TargetType:   "Return (GSTR-1)",
		Relationship: "REPORTED_IN",
		Status:       models.HopValid,
		Details:      "GSTR-1 return filed",
	}
	if chain.GSTR1Return == nil {
		hop3.Status = models.HopBroken
		hop3.Details = "GSTR-1 not filed by supplier"
		issues = append(issues, "Supplier has not filed GSTR-1 for this period")
	}
	hops = append(hops, hop3)

	// Hop 4: credit claimed via GSTR-3B, within the eligible amount.
	hop4 := models.ChainHop{
		HopNumber:    4,
		SourceType:   "Invoice (GSTR-2B)",
		SourceID:     inv2b.UID,
		TargetType:   "Return (GSTR-3B)",
		Relationship: "ITC_CLAIMED_VIA",
		Status:       models.HopValid,
		Details:      "ITC claimed in GSTR-3B",
	}
	switch {
	case chain.GSTR3BReturn == nil:
		hop4.Status = models.HopBroken
		hop4.Details = "ITC not claimed in GSTR-3B"
		issues = append(issues, hop4.Details)
	case chain.ITCClaim != nil && chain.ITCClaim.ClaimedAmount > chain.ITCClaim.EligibleAmount*1.05:
		// 5% headroom before a claim counts as an overclaim.
		hop4.Status = models.HopWarning
		hop4.Details = fmt.Sprintf("ITC overclaim: claimed=%.2f, eligible=%.2f",
			chain.ITCClaim.ClaimedAmount, chain.ITCClaim.EligibleAmount)
		issues = append(issues, hop4.Details)
	}
	hops = append(hops, hop4)

	// Side checks on supplier registration and IRN validity. Both concern
	// the supplier invoice, so they degrade hop 2 rather than living
	// outside the chain: break_point stays the first non-valid hop and a
	// finding always implies completeness below 100.
	supplierBad := chain.SupplierStatus == models.StatusCancelled || chain.SupplierStatus == models.StatusSuspended
	if supplierBad {
		detail := fmt.Sprintf("Supplier GSTIN status is %s", chain.SupplierStatus)
		issues = append(issues, detail)
		if hops[1].Status == models.HopValid {
			hops[1].Status = models.HopWarning
			hops[1].Details = detail
		}
	}
	irnBad := chain.IRN != nil && (chain.IRN.Status == "cancelled" || chain.IRN.Status == "invalid")
	if irnBad {
		detail := fmt.Sprintf("IRN status is %s", chain.IRN.Status)
		issues = append(issues, detail)
		if hops[1].Status == models.HopValid {
			hops[1].Status = models.HopWarning
			hops[1].Details = detail
		}
	}

	if len(issues) == 0 {
		return nil
	}

	// First non-valid hop.
	var breakPoint *int
	for i := range hops {
		if hops[i].Status != models.HopValid {
			n := hops[i].HopNumber
			breakPoint = &n
			break
		}
	}

	allIssues := strings.Join(issues, "; ")
	var mmType models.MismatchType
	var riskCat models.RiskCategory
	switch {
	case supplierBad:
		mmType = models.PhantomInvoice
		riskCat = models.RiskDemandNotice
	case strings.Contains(allIssues, "ITC overclaim"):
		mmType = models.ITCOverclaim
		riskCat = models.RiskITCReversal
	case strings.Contains(allIssues, "No matching GSTR-1"), strings.Contains(allIssues, "not filed GSTR-1"):
		mmType = models.MissingInGSTR1
		riskCat = models.RiskITCReversal
	case irnBad:
		mmType = models.IRNInvalid
		riskCat = models.RiskAuditTrigger
	default:
		mmType = models.ValueMismatch
		riskCat = models.RiskITCReversal
	}

	taxAmount := round2(inv2b.TaxTotal())
	severity := severityFromAmount(taxAmount)
	if mmType == models.PhantomInvoice {
		// A claim against a cancelled or suspended supplier is always
		// critical, whatever the amount.
		severity = models.SeverityCritical
	}

	validHops := 0
	evidence := make([]string, 0, len(hops))
	for _, h := range hops {
		if h.Status == models.HopValid {
			validHops++
		}
		evidence = append(evidence, fmt.Sprintf("Hop %d: %s -> %s [%s]", h.HopNumber, h.SourceType, h.TargetType, h.Status))
	}
	completeness := round1(float64(validHops) / float64(len(hops)) * 100)

	breakDetail := issues[0]
	breakHop := 0
	if breakPoint != nil {
		breakHop = *breakPoint
	}

	return &models.Mismatch{
		MismatchID: newMismatchID(2),
		Type:       mmType,
		Severity:   severity,
		Status:     models.StatusOpen,
		DetectedAt: time.Now().UTC(),
		FinancialImpact: models.FinancialImpact{
			ITCAtRisk:         taxAmount,
			InterestLiability: calculateInterest(taxAmount, v.tax.InterestRatePct, v.tax.InterestDays),
			PenaltyExposure:   round2(taxAmount * 0.1),
		},
		RiskCategory: riskCat,
		RootCause: models.RootCause{
			Classification: allIssues,
			Confidence:     80,
			EvidencePaths:  evidence,
		},
		AffectedChain: &models.AffectedChain{
			Hops:              hops,
			BreakPoint:        breakPoint,
			ChainCompleteness: completeness,
		},
		SupplierGSTIN: inv2b.SupplierGSTIN,
		BuyerGSTIN:    inv2b.RecipientGSTIN,
		InvoiceNumber: inv2b.InvoiceNumber,
		ReturnPeriod:  period,
		ResolutionActions: []models.ResolutionAction{
			{ActionID: 1, Description: "Verify ITC chain completeness with supplier", Priority: "HIGH",
				DeadlineDays: 15, RegulatoryReference: "Section 16(2) CGST Act"},
			{ActionID: 2, Description: fmt.Sprintf("Chain breaks at hop %d: %s", breakHop, breakDetail),
				Priority: "CRITICAL", DeadlineDays: 7},
		},
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
