package models

import "time"

// ReturnFiling is a GST return node (GSTR-1/2B/3B) a record can be reported in.
type ReturnFiling struct {
	ReturnType   string     `json:"returnType"` // GSTR1/GSTR2B/GSTR3B
	ReturnPeriod string     `json:"returnPeriod"`
	FilingDate   *time.Time `json:"filingDate,omitempty"`
	FilingStatus string     `json:"filingStatus"` // filed/not_filed/late_filed
}

// PurchaseRegisterEntry is the buyer's own books entry for a received invoice.
type PurchaseRegisterEntry struct {
	EntryID      string  `json:"entryId"`
	InvoiceUID   string  `json:"invoiceUid"`
	TaxableValue float64 `json:"taxableValue"`
	TaxAmount    float64 `json:"taxAmount"`
}

// ITCClaim links a GSTR-2B invoice to the GSTR-3B summary return it was
// claimed against.
type ITCClaim struct {
	ClaimedAmount  float64 `json:"claimedAmount"`
	EligibleAmount float64 `json:"eligibleAmount"`
	Eligibility    string  `json:"eligibility,omitempty"` // eligible/ineligible/provisional/blocked
}

// IRNRecord is the e-invoice reference registered for an invoice.
type IRNRecord struct {
	IRNHash string `json:"irnHash"`
	Status  string `json:"status"` // active/cancelled/invalid
}

// ChainContext is one row of the Level 2 chain fetch: a GSTR-2B invoice and
// its up-to-7 related objects. Every related field is optional; absence is
// meaningful (a broken hop), not an error. Mirrors the OPTIONAL MATCH
// semantics of the store query.
type ChainContext struct {
	GSTR2BInvoice  Invoice                `json:"gstr2bInvoice"`
	GSTR1Invoice   *Invoice               `json:"gstr1Invoice,omitempty"`
	PurchaseEntry  *PurchaseRegisterEntry `json:"purchaseEntry,omitempty"`
	GSTR1Return    *ReturnFiling          `json:"gstr1Return,omitempty"`
	GSTR2BReturn   *ReturnFiling          `json:"gstr2bReturn,omitempty"`
	GSTR3BReturn   *ReturnFiling          `json:"gstr3bReturn,omitempty"`
	ITCClaim       *ITCClaim              `json:"itcClaim,omitempty"`
	SupplierStatus EntityStatus           `json:"supplierStatus,omitempty"`
	IRN            *IRNRecord             `json:"irn,omitempty"`
}
