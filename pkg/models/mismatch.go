package models

import "time"

// MismatchType is the detected discrepancy category. Every category carries
// the same Mismatch shape; narrative and severity rules dispatch on the type.
type MismatchType string

const (
	ValueMismatch   MismatchType = "VALUE_MISMATCH"
	TaxRateMismatch MismatchType = "TAX_RATE_MISMATCH"
	MissingInGSTR2B MismatchType = "MISSING_IN_GSTR2B"
	MissingInGSTR1  MismatchType = "MISSING_IN_GSTR1"
	Duplicate       MismatchType = "DUPLICATE"
	ITCOverclaim    MismatchType = "ITC_OVERCLAIM"
	PeriodMismatch  MismatchType = "PERIOD_MISMATCH"
	PhantomInvoice  MismatchType = "PHANTOM_INVOICE"
	CircularTrade   MismatchType = "CIRCULAR_TRADE"
	IRNInvalid      MismatchType = "IRN_INVALID"
	EWBMismatch     MismatchType = "EWB_MISMATCH"
)

// Severity buckets a mismatch by estimated tax impact.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// RiskCategory is the downstream compliance consequence of a mismatch.
type RiskCategory string

const (
	RiskITCReversal   RiskCategory = "ITC_REVERSAL"
	RiskDemandNotice  RiskCategory = "DEMAND_NOTICE"
	RiskAuditTrigger  RiskCategory = "AUDIT_TRIGGER"
	RiskInformational RiskCategory = "INFORMATIONAL"
)

// MismatchStatus is the analyst workflow state. The engine always emits OPEN.
type MismatchStatus string

const (
	StatusOpen          MismatchStatus = "OPEN"
	StatusUnderReview   MismatchStatus = "UNDER_REVIEW"
	StatusResolved      MismatchStatus = "RESOLVED"
	StatusEscalated     MismatchStatus = "ESCALATED"
	StatusFalsePositive MismatchStatus = "FALSE_POSITIVE"
)

// FinancialImpact is the monetary exposure of a mismatch. All three
// components are non-negative.
type FinancialImpact struct {
	ITCAtRisk         float64 `json:"itcAtRisk"`
	InterestLiability float64 `json:"potentialInterestLiability"`
	PenaltyExposure   float64 `json:"penaltyExposure"`
}

// TotalExposure is the sum of the three impact components.
func (f FinancialImpact) TotalExposure() float64 {
	return f.ITCAtRisk + f.InterestLiability + f.PenaltyExposure
}

// RootCause is the explainable classification attached to every mismatch.
type RootCause struct {
	Classification          string   `json:"classification"`
	Confidence              float64  `json:"confidence"` // 0-100
	EvidencePaths           []string `json:"evidencePaths"`
	AlternativeExplanations []string `json:"alternativeExplanations,omitempty"`
}

// ChainHop is one traversed edge during chain validation.
type ChainHop struct {
	HopNumber    int    `json:"hopNumber"`
	SourceType   string `json:"sourceType"`
	SourceID     string `json:"sourceId"`
	TargetType   string `json:"targetType"`
	TargetID     string `json:"targetId"`
	Relationship string `json:"relationship"`
	Status       string `json:"status"` // valid | warning | broken
	Details      string `json:"details,omitempty"`
}

// Hop status values.
const (
	HopValid   = "valid"
	HopWarning = "warning"
	HopBroken  = "broken"
)

// AffectedChain is the validated hop sequence with break-point information.
// BreakPoint, when set, is the hop number of the first non-valid hop.
type AffectedChain struct {
	Hops              []ChainHop `json:"hops"`
	BreakPoint        *int       `json:"breakPoint,omitempty"`
	ChainCompleteness float64    `json:"chainCompleteness"` // 0-100
}

// ResolutionAction is a recommended remediation step.
type ResolutionAction struct {
	ActionID            int    `json:"actionId"`
	Description         string `json:"description"`
	Priority            string `json:"priority"`
	DeadlineDays        int    `json:"deadlineDays,omitempty"`
	RegulatoryReference string `json:"regulatoryReference,omitempty"`
}

// Mismatch is the unit of output from Levels 1-3. Created once by exactly
// one level; only the composite scorer writes to it afterwards.
type Mismatch struct {
	MismatchID string         `json:"mismatchId"`
	Type       MismatchType   `json:"mismatchType"`
	Severity   Severity       `json:"severity"`
	Status     MismatchStatus `json:"status"`
	DetectedAt time.Time      `json:"detectedAt"`

	FinancialImpact FinancialImpact `json:"financialImpact"`
	RiskCategory    RiskCategory    `json:"riskCategory"`

	RootCause     RootCause      `json:"rootCause"`
	AffectedChain *AffectedChain `json:"affectedChain,omitempty"`

	ResolutionActions []ResolutionAction `json:"resolutionActions,omitempty"`

	SupplierGSTIN string  `json:"supplierGstin,omitempty"`
	BuyerGSTIN    string  `json:"buyerGstin,omitempty"`
	InvoiceNumber string  `json:"invoiceNumber,omitempty"`
	ReturnPeriod  string  `json:"returnPeriod,omitempty"`
	GSTR1Value    float64 `json:"gstr1Value,omitempty"`
	GSTR2BValue   float64 `json:"gstr2bValue,omitempty"`

	// 0-100, written by the composite scorer. Zero until scored.
	CompositeRiskScore float64 `json:"compositeRiskScore"`
}

// CompositeRiskScore decomposes a mismatch's final ranking score.
// Composite = 0.4×financial + 0.3×probability + 0.3×vendor, each 0-100.
type CompositeRiskScore struct {
	FinancialImpactScore float64 `json:"financialImpactScore"`
	ProbabilityScore     float64 `json:"probabilityScore"`
	VendorRiskScore      float64 `json:"vendorRiskScore"`
}

// Composite returns the weighted 0-100 score, rounded to 2 decimals.
func (c CompositeRiskScore) Composite() float64 {
	v := 0.4*c.FinancialImpactScore + 0.3*c.ProbabilityScore + 0.3*c.VendorRiskScore
	return float64(int(v*100+0.5)) / 100
}
