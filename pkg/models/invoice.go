package models

import "time"

// LedgerSource identifies which filed ledger an invoice row came from.
type LedgerSource string

const (
	// SourceGSTR1 is the supplier-filed outward-supply return.
	SourceGSTR1 LedgerSource = "GSTR1"
	// SourceGSTR2B is the buyer-facing auto-drafted inward-supply statement.
	SourceGSTR2B LedgerSource = "GSTR2B"
)

// Invoice is one ledger record. The same real-world transaction appears
// once per source ledger; identity between the two rows is inferred by the
// Level 1 matcher, never assumed from the invoice number alone.
type Invoice struct {
	UID            string       `json:"uid"`
	InvoiceNumber  string       `json:"invoiceNumber"`
	InvoiceDate    time.Time    `json:"invoiceDate"`
	InvoiceType    string       `json:"invoiceType,omitempty"` // B2B/B2C/CDNR/EXP
	TaxableValue   float64      `json:"taxableValue"`
	CGST           float64      `json:"cgst"`
	SGST           float64      `json:"sgst"`
	IGST           float64      `json:"igst"`
	Cess           float64      `json:"cess"`
	TotalValue     float64      `json:"totalValue"`
	HSNCode        string       `json:"hsnCode,omitempty"`
	SupplierGSTIN  string       `json:"supplierGstin"`
	RecipientGSTIN string       `json:"recipientGstin"`
	Source         LedgerSource `json:"source"`
}

// TaxTotal returns the summed tax components of the invoice.
func (i Invoice) TaxTotal() float64 {
	return i.CGST + i.SGST + i.IGST
}

// EntityStatus is the registration state of a GSTIN.
type EntityStatus string

const (
	StatusActive    EntityStatus = "active"
	StatusSuspended EntityStatus = "suspended"
	StatusCancelled EntityStatus = "cancelled"
)

// Entity is a transacting GSTIN node. The risk/centrality fields are only
// populated after Level 4 has run; Levels 1-3 never write to an Entity.
type Entity struct {
	GSTIN            string       `json:"gstin"`
	LegalName        string       `json:"legalName,omitempty"`
	Status           EntityStatus `json:"status"`
	ComplianceRating float64      `json:"complianceRating"` // 0-100

	// Level 4 output
	RiskScore        float64 `json:"riskScore"`
	PageRank         float64 `json:"pagerank"`
	DegreeCentrality float64 `json:"degreeCentrality"`
	Betweenness      float64 `json:"betweenness"`
	ClusteringCoeff  float64 `json:"clusteringCoefficient"`
	CommunityID      int     `json:"communityId"`
}

// TransactionEdge is the aggregated supplier→buyer relationship, derived
// from all invoices between the two entities and recomputed on ingest.
type TransactionEdge struct {
	SourceGSTIN string    `json:"sourceGstin"`
	TargetGSTIN string    `json:"targetGstin"`
	TxnCount    int       `json:"txnCount"`
	TotalValue  float64   `json:"totalValue"`
	FirstDate   time.Time `json:"firstDate"`
	LastDate    time.Time `json:"lastDate"`
}

// EntityRiskMetrics is the batched Level 4 write-back payload for one node.
type EntityRiskMetrics struct {
	GSTIN            string  `json:"gstin"`
	RiskScore        float64 `json:"riskScore"`
	BaseRisk         float64 `json:"baseRisk"`
	MismatchRatio    float64 `json:"mismatchRatio"`
	PageRank         float64 `json:"pagerank"`
	DegreeCentrality float64 `json:"degreeCentrality"`
	Betweenness      float64 `json:"betweenness"`
	ClusteringCoeff  float64 `json:"clusteringCoefficient"`
	NeighborAvgRisk  float64 `json:"neighborAvgRisk"`
	CommunityID      int     `json:"communityId"`
}
