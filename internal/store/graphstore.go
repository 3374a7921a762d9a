// Package store provides the entity-graph persistence boundary. The engine
// only sees the GraphStore interface; PostgresStore is the production
// implementation, MemoryStore backs tests and demo runs.
package store

import (
	"context"

	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// MatchStats counts Level 1 outcomes per supplier, used by Level 4 to
// derive the mismatch ratio.
type MatchStats struct {
	Unmatched int
	Partial   int
	Total     int
}

// GraphStore is the query boundary to the entity graph. Implementations
// must tolerate partially missing related objects: absence is meaningful
// (a broken chain hop), never an error.
type GraphStore interface {
	// FetchInvoices returns ledger records for a GSTIN and MMYYYY period.
	// GSTR-1 rows are those issued by the entity, GSTR-2B rows those
	// received by it.
	FetchInvoices(ctx context.Context, gstin, period string, source models.LedgerSource) ([]models.Invoice, error)

	// FetchAggregatedEdges returns all entity-to-entity transaction edges.
	FetchAggregatedEdges(ctx context.Context) ([]models.TransactionEdge, error)

	// FetchEntity returns a single entity, or nil when unknown.
	FetchEntity(ctx context.Context, gstin string) (*models.Entity, error)

	// FetchEntities returns all entities.
	FetchEntities(ctx context.Context) ([]models.Entity, error)

	// FetchChainContexts returns one row per candidate ITC claim for the
	// buyer GSTIN, each with its independently nullable related objects.
	FetchChainContexts(ctx context.Context, gstin, period string) ([]models.ChainContext, error)

	// FetchCyclePatterns runs the direct ring pattern query for cycles of
	// exactly the given length (3 or 4), constrained to ascending ids so
	// each ring is returned in exactly one rotation.
	FetchCyclePatterns(ctx context.Context, length, limit int) ([][]string, error)

	// FetchMatchStats returns per-supplier Level 1 outcome counts.
	FetchMatchStats(ctx context.Context) (map[string]MatchStats, error)

	// TotalITCClaimed sums GSTR-3B credit claims for a GSTIN and period.
	TotalITCClaimed(ctx context.Context, gstin, period string) (float64, error)

	// ListGSTINs returns all active entity ids.
	ListGSTINs(ctx context.Context) ([]string, error)

	// ListPeriods returns all known return periods, sorted.
	ListPeriods(ctx context.Context) ([]string, error)

	// UpsertMatchEdge persists a Level 1 match relationship for audit
	// traversal.
	UpsertMatchEdge(ctx context.Context, gstr1UID, gstr2bUID string, score float64, diffFields []string, matchType string) error

	// UpsertMismatch persists a finding. Findings are write-once; callers
	// clear prior findings for a scope before a re-run.
	UpsertMismatch(ctx context.Context, m models.Mismatch) error

	// ClearMismatches removes prior findings for a GSTIN/period scope.
	// Invoked by the adapter before a re-run, never by the engine.
	ClearMismatches(ctx context.Context, gstin, period string) error

	// UpsertEntityRiskMetrics writes Level 4 scores back, batched.
	UpsertEntityRiskMetrics(ctx context.Context, batch []models.EntityRiskMetrics) error
}
