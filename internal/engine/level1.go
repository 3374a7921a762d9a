package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/gstin"
	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// Match classifications.
const (
	MatchExact   = "exact_match"
	MatchPartial = "partial_match"
	MatchNone    = "unmatched"
)

// FieldDiff records one field that differed between a GSTR-1/GSTR-2B pair.
type FieldDiff struct {
	Field       string  `json:"field"`
	GSTR1Value  string  `json:"gstr1Value"`
	GSTR2BValue string  `json:"gstr2bValue"`
	Difference  float64 `json:"difference,omitempty"`
	FuzzyScore  float64 `json:"fuzzyScore,omitempty"`
}

// MatchResult is the outcome for one ledger record.
type MatchResult struct {
	Type     string
	Score    float64
	GSTR1    *models.Invoice
	GSTR2B   *models.Invoice
	Diffs    []FieldDiff
	Mismatch *models.Mismatch
}

// MatchOutput aggregates one Level 1 pass for an entity/period scope.
type MatchOutput struct {
	GSTIN   string
	Period  string
	Results []MatchResult
}

// Counts returns (exact, partial, unmatched) totals.
func (o *MatchOutput) Counts() (exact, partial, unmatched int) {
	for _, r := range o.Results {
		switch r.Type {
		case MatchExact:
			exact++
		case MatchPartial:
			partial++
		default:
			unmatched++
		}
	}
	return
}

// Mismatches returns the findings emitted by this pass.
func (o *MatchOutput) Mismatches() []models.Mismatch {
	var out []models.Mismatch
	for _, r := range o.Results {
		if r.Mismatch != nil {
			out = append(out, *r.Mismatch)
		}
	}
	return out
}

// Matcher is the Level 1 greedy invoice matcher. It pairs GSTR-1 records
// issued by an entity with GSTR-2B records received by it, scoring each
// candidate pair 0-100.
type Matcher struct {
	cfg   MatchingConfig
	tax   TaxConfig
	store store.GraphStore
	log   *logrus.Entry
}

func NewMatcher(cfg MatchingConfig, tax TaxConfig, st store.GraphStore) *Matcher {
	return &Matcher{cfg: cfg, tax: tax, store: st, log: logrus.WithField("component", "level1")}
}

// Match runs one entity/period scope. The matcher is greedy: each GSTR-1
// record takes the highest-scoring unconsumed GSTR-2B candidate; ties keep
// the candidate with the smallest uid because candidates are scanned in
// sorted-uid order and only a strictly greater score replaces the best.
func (m *Matcher) Match(ctx context.Context, entityGSTIN, period string) (*MatchOutput, error) {
	gstr1, err := m.store.FetchInvoices(ctx, entityGSTIN, period, models.SourceGSTR1)
	if err != nil {
		return nil, fmt.Errorf("level1 %s/%s: %w", entityGSTIN, period, err)
	}
	gstr2b, err := m.store.FetchInvoices(ctx, entityGSTIN, period, models.SourceGSTR2B)
	if err != nil {
		return nil, fmt.Errorf("level1 %s/%s: %w", entityGSTIN, period, err)
	}
	m.log.WithFields(logrus.Fields{
		"gstin":  entityGSTIN,
		"period": period,
		"gstr1":  len(gstr1),
		"gstr2b": len(gstr2b),
	}).Info("matching invoices")

	bySupplier := make(map[string][]*models.Invoice)
	for i := range gstr2b {
		inv := &gstr2b[i]
		bySupplier[inv.SupplierGSTIN] = append(bySupplier[inv.SupplierGSTIN], inv)
	}
	for _, candidates := range bySupplier {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].UID < candidates[j].UID })
	}

	out := &MatchOutput{GSTIN: entityGSTIN, Period: period}
	consumed := make(map[string]bool)

	for i := range gstr1 {
		inv1 := &gstr1[i]
		var best *models.Invoice
		bestScore := 0.0
		var bestDiffs []FieldDiff

		for _, cand := range bySupplier[inv1.SupplierGSTIN] {
			if consumed[cand.UID] {
				continue
			}
			score, diffs := m.scorePair(inv1, cand)
			if score > bestScore {
				bestScore = score
				best = cand
				bestDiffs = diffs
			}
		}

		switch {
		case best != nil && bestScore >= m.cfg.ExactThreshold:
			consumed[best.UID] = true
			out.Results = append(out.Results, MatchResult{Type: MatchExact, Score: bestScore, GSTR1: inv1, GSTR2B: best})
		case best != nil && bestScore >= m.cfg.FuzzyThreshold:
			consumed[best.UID] = true
			mm := m.classifyPartial(inv1, best, bestDiffs)
			out.Results = append(out.Results, MatchResult{Type: MatchPartial, Score: bestScore, GSTR1: inv1, GSTR2B: best, Diffs: bestDiffs, Mismatch: &mm})
		default:
			mm := m.missingMismatch(inv1, models.MissingInGSTR2B)
			out.Results = append(out.Results, MatchResult{Type: MatchNone, GSTR1: inv1, Mismatch: &mm})
		}
	}

	for i := range gstr2b {
		inv := &gstr2b[i]
		if !consumed[inv.UID] {
			mm := m.missingMismatch(inv, models.MissingInGSTR1)
			out.Results = append(out.Results, MatchResult{Type: MatchNone, GSTR2B: inv, Mismatch: &mm})
		}
	}

	exact, partial, unmatched := out.Counts()
	m.log.WithFields(logrus.Fields{
		"gstin":     entityGSTIN,
		"period":    period,
		"exact":     exact,
		"partial":   partial,
		"unmatched": unmatched,
	}).Info("matching complete")
	return out, nil
}

// MatchScope is one unit of parallel Level 1 work.
type MatchScope struct {
	GSTIN  string
	Period string
}

// MatchMany runs Match for distinct scopes across a bounded worker pool.
// Scoring is CPU-bound with no shared mutable state per scope, so scopes
// are embarrassingly parallel. The first error cancels the batch.
func (m *Matcher) MatchMany(ctx context.Context, scopes []MatchScope) ([]*MatchOutput, error) {
	workers := m.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outputs := make([]*MatchOutput, len(scopes))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, scope := range scopes {
		wg.Add(1)
		go func(i int, scope MatchScope) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			out, err := m.Match(ctx, scope.GSTIN, scope.Period)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			outputs[i] = out
		}(i, scope)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return outputs, nil
}

// PersistMatches writes MATCHED_WITH edges for exact and partial results.
func (m *Matcher) PersistMatches(ctx context.Context, out *MatchOutput) error {
	for _, r := range out.Results {
		if r.GSTR1 == nil || r.GSTR2B == nil {
			continue
		}
		if r.Type != MatchExact && r.Type != MatchPartial {
			continue
		}
		fields := make([]string, 0, len(r.Diffs))
		for _, d := range r.Diffs {
			fields = append(fields, d.Field)
		}
		if err := m.store.UpsertMatchEdge(ctx, r.GSTR1.UID, r.GSTR2B.UID, r.Score, fields, r.Type); err != nil {
			return err
		}
	}
	return nil
}

// scorePair computes the 0-100 pair score: invoice number 40, taxable
// value 30, date 20, tax components 10.
func (m *Matcher) scorePair(inv1, inv2 *models.Invoice) (float64, []FieldDiff) {
	score := 0.0
	var diffs []FieldDiff

	n1 := gstin.NormalizeInvoiceNumber(inv1.InvoiceNumber)
	n2 := gstin.NormalizeInvoiceNumber(inv2.InvoiceNumber)
	if n1 == n2 {
		score += 40
	} else {
		ratio := similarityRatio(n1, n2)
		diffs = append(diffs, FieldDiff{
			Field:       "invoice_number",
			GSTR1Value:  inv1.InvoiceNumber,
			GSTR2BValue: inv2.InvoiceNumber,
			FuzzyScore:  round2(ratio),
		})
		if ratio < m.cfg.FuzzyThreshold {
			// No point scoring the remaining fields against a different invoice.
			return round2(score), diffs
		}
		score += 40 * ratio / 100
	}

	if valuesMatch(inv1.TaxableValue, inv2.TaxableValue, m.cfg.AbsTolerance, m.cfg.PctTolerance) {
		score += 30
	} else {
		diffPct := absDiffPct(inv1.TaxableValue, inv2.TaxableValue)
		score += maxF(0, 30*(1-diffPct/100))
		diffs = append(diffs, FieldDiff{
			Field:       "taxable_value",
			GSTR1Value:  fmt.Sprintf("%.2f", inv1.TaxableValue),
			GSTR2BValue: fmt.Sprintf("%.2f", inv2.TaxableValue),
			Difference:  round2(inv1.TaxableValue - inv2.TaxableValue),
		})
	}

	d1, d2 := inv1.InvoiceDate, inv2.InvoiceDate
	if sameDay(d1, d2) {
		score += 20
	} else {
		diffs = append(diffs, FieldDiff{
			Field:       "invoice_date",
			GSTR1Value:  d1.Format("2006-01-02"),
			GSTR2BValue: d2.Format("2006-01-02"),
		})
		if d1.Year() == d2.Year() && d1.Month() == d2.Month() {
			score += 10
		}
	}

	taxFields := []struct {
		name   string
		t1, t2 float64
	}{
		{"cgst", inv1.CGST, inv2.CGST},
		{"sgst", inv1.SGST, inv2.SGST},
		{"igst", inv1.IGST, inv2.IGST},
	}
	for _, tf := range taxFields {
		if valuesMatch(tf.t1, tf.t2, m.cfg.AbsTolerance, m.cfg.PctTolerance) {
			score += 10.0 / float64(len(taxFields))
		} else {
			diffs = append(diffs, FieldDiff{
				Field:       tf.name,
				GSTR1Value:  fmt.Sprintf("%.2f", tf.t1),
				GSTR2BValue: fmt.Sprintf("%.2f", tf.t2),
				Difference:  round2(tf.t1 - tf.t2),
			})
		}
	}

	return round2(score), diffs
}

// classifyPartial turns a partial match into a typed finding based on
// which fields differed.
func (m *Matcher) classifyPartial(inv1, inv2 *models.Invoice, diffs []FieldDiff) models.Mismatch {
	fields := make(map[string]bool, len(diffs))
	for _, d := range diffs {
		fields[d.Field] = true
	}
	taxDiffered := fields["cgst"] || fields["sgst"] || fields["igst"]

	var mmType models.MismatchType
	var riskCat models.RiskCategory
	switch {
	case fields["taxable_value"] && taxDiffered:
		mmType = models.TaxRateMismatch
		riskCat = models.RiskITCReversal
	case fields["taxable_value"]:
		mmType = models.ValueMismatch
		riskCat = models.RiskITCReversal
	case fields["invoice_date"] && len(fields) == 1:
		mmType = models.PeriodMismatch
		riskCat = models.RiskInformational
	default:
		mmType = models.ValueMismatch
		riskCat = models.RiskITCReversal
	}

	taxDiff := round2(absF(inv1.TaxTotal() - inv2.TaxTotal()))
	sev := severityFromAmount(taxDiff)
	penalty := 0.0
	if sev == models.SeverityCritical || sev == models.SeverityHigh {
		penalty = round2(taxDiff * 0.1)
	}

	return models.Mismatch{
		MismatchID: newMismatchID(1),
		Type:       mmType,
		Severity:   sev,
		Status:     models.StatusOpen,
		DetectedAt: time.Now().UTC(),
		FinancialImpact: models.FinancialImpact{
			ITCAtRisk:         taxDiff,
			InterestLiability: round2(taxDiff * m.tax.InterestRatePct / 100 / 12),
			PenaltyExposure:   penalty,
		},
		RiskCategory: riskCat,
		RootCause: models.RootCause{
			Classification: fmt.Sprintf("%s between GSTR-1 and GSTR-2B", mmType),
			Confidence:     75,
			EvidencePaths: []string{
				fmt.Sprintf("GSTR-1 Invoice %s -> Match attempt -> GSTR-2B Invoice %s",
					inv1.InvoiceNumber, inv2.InvoiceNumber),
			},
		},
		SupplierGSTIN: inv1.SupplierGSTIN,
		BuyerGSTIN:    inv1.RecipientGSTIN,
		InvoiceNumber: inv1.InvoiceNumber,
		ReturnPeriod:  inv1.InvoiceDate.Format("012006"),
		GSTR1Value:    inv1.TaxableValue,
		GSTR2BValue:   inv2.TaxableValue,
		ResolutionActions: []models.ResolutionAction{
			{ActionID: 1, Description: "Verify invoice details with supplier", Priority: "HIGH",
				DeadlineDays: 15, RegulatoryReference: "Section 16(2)(aa) CGST Act"},
			{ActionID: 2, Description: "Check if amendment filed in subsequent period", Priority: "MEDIUM",
				DeadlineDays: 30},
		},
	}
}

// missingMismatch builds the finding for a record absent from the other ledger.
func (m *Matcher) missingMismatch(inv *models.Invoice, mmType models.MismatchType) models.Mismatch {
	taxAmount := round2(inv.TaxTotal())

	var riskCat models.RiskCategory
	var desc string
	var actions []models.ResolutionAction
	if mmType == models.MissingInGSTR2B {
		riskCat = models.RiskITCReversal
		desc = "Invoice reported in GSTR-1 but not reflected in GSTR-2B. ITC cannot be claimed."
		actions = []models.ResolutionAction{
			{ActionID: 1, Description: "Contact supplier to verify GSTR-1 filing", Priority: "HIGH",
				DeadlineDays: 10, RegulatoryReference: "Section 16(2)(aa) CGST Act"},
			{ActionID: 2, Description: "Check GSTR-2B of subsequent periods for late reflection", Priority: "MEDIUM",
				DeadlineDays: 30},
		}
	} else {
		riskCat = models.RiskAuditTrigger
		desc = "Invoice appearing in GSTR-2B without corresponding GSTR-1 entry. Potential phantom invoice."
		actions = []models.ResolutionAction{
			{ActionID: 1, Description: "Verify if invoice is genuine and supplier has filed GSTR-1", Priority: "CRITICAL",
				DeadlineDays: 7, RegulatoryReference: "Rule 36(4) CGST Rules"},
			{ActionID: 2, Description: "If phantom, reverse ITC and file DRC-03", Priority: "CRITICAL",
				DeadlineDays: 15, RegulatoryReference: "Section 74 CGST Act"},
		}
	}

	mm := models.Mismatch{
		MismatchID: newMismatchID(1),
		Type:       mmType,
		Severity:   severityFromAmount(taxAmount),
		Status:     models.StatusOpen,
		DetectedAt: time.Now().UTC(),
		FinancialImpact: models.FinancialImpact{
			ITCAtRisk:         taxAmount,
			InterestLiability: round2(taxAmount * m.tax.InterestRatePct / 100 / 12),
			PenaltyExposure:   round2(taxAmount * 0.25),
		},
		RiskCategory: riskCat,
		RootCause: models.RootCause{
			Classification: desc,
			Confidence:     85,
			EvidencePaths:  []string{fmt.Sprintf("Invoice %s - %s", inv.InvoiceNumber, mmType)},
		},
		SupplierGSTIN:     inv.SupplierGSTIN,
		BuyerGSTIN:        inv.RecipientGSTIN,
		InvoiceNumber:     inv.InvoiceNumber,
		ReturnPeriod:      inv.InvoiceDate.Format("012006"),
		ResolutionActions: actions,
	}
	if mmType == models.MissingInGSTR2B {
		mm.GSTR1Value = inv.TaxableValue
	} else {
		mm.GSTR2BValue = inv.TaxableValue
	}
	return mm
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func absDiffPct(v1, v2 float64) float64 {
	return absF(v1-v2) / maxF(v1, 1) * 100
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
