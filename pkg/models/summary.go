package models

import "time"

// GraphStats summarizes the Level 4 transaction graph for reporting.
type GraphStats struct {
	Nodes          int     `json:"nodes"`
	Edges          int     `json:"edges"`
	Density        float64 `json:"density"`
	AvgClustering  float64 `json:"avgClustering"`
	NumCommunities int     `json:"numCommunities"`
}

// CommunityRisk is the aggregate risk profile of one detected community.
type CommunityRisk struct {
	CommunityID     int      `json:"communityId"`
	Size            int      `json:"size"`
	Members         []string `json:"members"` // capped sample for responses
	AvgRiskScore    float64  `json:"avgRiskScore"`
	MaxRiskScore    float64  `json:"maxRiskScore"`
	HighRiskMembers int      `json:"highRiskMembers"`
	RiskLevel       string   `json:"riskLevel"` // HIGH/MEDIUM/LOW
}

// HighRiskEntity is one entry of the Level 4 top-risk listing.
type HighRiskEntity struct {
	GSTIN     string            `json:"gstin"`
	RiskScore float64           `json:"riskScore"`
	Metrics   EntityRiskMetrics `json:"metrics"`
}

// RiskPropagationResult is the Level 4 output for one graph-wide pass.
type RiskPropagationResult struct {
	Scores         map[string]float64 `json:"scores"`
	Communities    []CommunityRisk    `json:"communities"`
	HighRiskGSTINs []HighRiskEntity   `json:"highRiskGstins"`
	GraphStats     GraphStats         `json:"graphStats"`
}

// ReconciliationSummary aggregates one orchestrator run. Immutable after
// construction.
type ReconciliationSummary struct {
	RunID        string    `json:"runId"`
	GSTIN        string    `json:"gstin"`
	ReturnPeriod string    `json:"returnPeriod"`
	RunTimestamp time.Time `json:"runTimestamp"`

	TotalInvoices  int `json:"totalInvoices"`
	Matched        int `json:"matched"`
	PartialMatched int `json:"partialMatched"`
	Unmatched      int `json:"unmatched"`

	MismatchesByType     map[string]int `json:"mismatchesByType"`
	MismatchesBySeverity map[string]int `json:"mismatchesBySeverity"`

	TotalITCClaimed float64 `json:"totalItcClaimed"`
	ITCAtRisk       float64 `json:"itcAtRisk"`
	ITCVerified     float64 `json:"itcVerified"`
	NetExposure     float64 `json:"netExposure"`

	Mismatches  []Mismatch             `json:"mismatches"`
	RiskResult  *RiskPropagationResult `json:"riskResult,omitempty"`
	ElapsedSecs float64                `json:"elapsedSecs"`
}
