package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// schemaSQL is compiled into the binary so schema init works inside the
// runtime image without shipping the .sql file.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the production GraphStore backed by pgx.
type PostgresStore struct {
	pool   *pgxpool.Pool
	policy RetryPolicy
}

var _ GraphStore = (*PostgresStore)(nil)

// Connect initializes the connection pool and verifies connectivity.
func Connect(connStr string, policy RetryPolicy) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	logrus.Info("connected to PostgreSQL entity graph store")
	return &PostgresStore{pool: pool, policy: policy}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded DDL.
func (s *PostgresStore) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	logrus.Info("entity graph schema initialized")
	return nil
}

// Pool exposes the underlying pool for adapters (health checks, ingest).
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) FetchInvoices(ctx context.Context, gstin, period string, source models.LedgerSource) ([]models.Invoice, error) {
	partyColumn := "supplier_gstin"
	if source == models.SourceGSTR2B {
		partyColumn = "recipient_gstin"
	}
	sql := fmt.Sprintf(`
		SELECT uid, invoice_number, invoice_date, invoice_type, taxable_value,
		       cgst, sgst, igst, cess, total_value, hsn_code,
		       supplier_gstin, recipient_gstin, source
		FROM invoices
		WHERE source = $1 AND %s = $2 AND to_char(invoice_date, 'MMYYYY') = $3
		ORDER BY uid`, partyColumn)

	var invoices []models.Invoice
	err := withRetry(ctx, s.policy, "FetchInvoices", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, sql, string(source), gstin, period)
		if err != nil {
			return err
		}
		defer rows.Close()
		invoices = invoices[:0]
		for rows.Next() {
			var inv models.Invoice
			if err := rows.Scan(&inv.UID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.InvoiceType,
				&inv.TaxableValue, &inv.CGST, &inv.SGST, &inv.IGST, &inv.Cess, &inv.TotalValue,
				&inv.HSNCode, &inv.SupplierGSTIN, &inv.RecipientGSTIN, &inv.Source); err != nil {
				return err
			}
			invoices = append(invoices, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s invoices for %s/%s: %w", source, gstin, period, err)
	}
	return invoices, nil
}

func (s *PostgresStore) FetchAggregatedEdges(ctx context.Context) ([]models.TransactionEdge, error) {
	var edges []models.TransactionEdge
	err := withRetry(ctx, s.policy, "FetchAggregatedEdges", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT source_gstin, target_gstin, txn_count, total_value,
			       COALESCE(first_date, '1970-01-01'), COALESCE(last_date, '1970-01-01')
			FROM transaction_edges
			ORDER BY source_gstin, target_gstin`)
		if err != nil {
			return err
		}
		defer rows.Close()
		edges = edges[:0]
		for rows.Next() {
			var e models.TransactionEdge
			if err := rows.Scan(&e.SourceGSTIN, &e.TargetGSTIN, &e.TxnCount, &e.TotalValue, &e.FirstDate, &e.LastDate); err != nil {
				return err
			}
			edges = append(edges, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch aggregated edges: %w", err)
	}
	return edges, nil
}

func (s *PostgresStore) FetchEntity(ctx context.Context, gstin string) (*models.Entity, error) {
	var entity *models.Entity
	err := withRetry(ctx, s.policy, "FetchEntity", func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT gstin, legal_name, status, compliance_rating,
			       COALESCE(risk_score, 0), COALESCE(pagerank, 0),
			       COALESCE(degree_centrality, 0), COALESCE(betweenness, 0),
			       COALESCE(clustering_coefficient, 0), COALESCE(community_id, 0)
			FROM entities WHERE gstin = $1`, gstin)
		var e models.Entity
		if err := row.Scan(&e.GSTIN, &e.LegalName, &e.Status, &e.ComplianceRating,
			&e.RiskScore, &e.PageRank, &e.DegreeCentrality, &e.Betweenness,
			&e.ClusteringCoeff, &e.CommunityID); err != nil {
			if err == pgx.ErrNoRows {
				entity = nil
				return nil
			}
			return err
		}
		entity = &e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch entity %s: %w", gstin, err)
	}
	return entity, nil
}

func (s *PostgresStore) FetchEntities(ctx context.Context) ([]models.Entity, error) {
	var entities []models.Entity
	err := withRetry(ctx, s.policy, "FetchEntities", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT gstin, legal_name, status, compliance_rating,
			       COALESCE(risk_score, 0), COALESCE(pagerank, 0),
			       COALESCE(degree_centrality, 0), COALESCE(betweenness, 0),
			       COALESCE(clustering_coefficient, 0), COALESCE(community_id, 0)
			FROM entities ORDER BY gstin`)
		if err != nil {
			return err
		}
		defer rows.Close()
		entities = entities[:0]
		for rows.Next() {
			var e models.Entity
			if err := rows.Scan(&e.GSTIN, &e.LegalName, &e.Status, &e.ComplianceRating,
				&e.RiskScore, &e.PageRank, &e.DegreeCentrality, &e.Betweenness,
				&e.ClusteringCoeff, &e.CommunityID); err != nil {
				return err
			}
			entities = append(entities, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch entities: %w", err)
	}
	return entities, nil
}

// FetchChainContexts mirrors the OPTIONAL MATCH chain query: one row per
// GSTR-2B invoice received by the buyer, every related object left-joined
// and independently nullable.
func (s *PostgresStore) FetchChainContexts(ctx context.Context, gstin, period string) ([]models.ChainContext, error) {
	const sql = `
		SELECT i2b.uid, i2b.invoice_number, i2b.invoice_date, i2b.taxable_value,
		       i2b.cgst, i2b.sgst, i2b.igst, i2b.cess, i2b.total_value,
		       i2b.supplier_gstin, i2b.recipient_gstin,
		       i1.uid, i1.taxable_value, i1.cgst, i1.sgst, i1.igst,
		       pr.entry_id, pr.taxable_value, pr.tax_amount,
		       r1.return_period, r1.filing_status,
		       r2b.return_period, r2b.filing_status,
		       r3b.return_period, r3b.filing_status,
		       c.claimed_amount, c.eligible_amount,
		       se.status,
		       irn.irn_hash, irn.status
		FROM invoices i2b
		LEFT JOIN purchase_register pr ON pr.invoice_uid = i2b.uid
		LEFT JOIN invoices i1 ON i1.source = 'GSTR1'
		       AND i1.supplier_gstin = i2b.supplier_gstin
		       AND i1.invoice_number = i2b.invoice_number
		LEFT JOIN invoice_returns ir1 ON ir1.invoice_uid = i1.uid
		LEFT JOIN returns r1 ON r1.id = ir1.return_id AND r1.return_type = 'GSTR1'
		LEFT JOIN invoice_returns ir2b ON ir2b.invoice_uid = i2b.uid
		LEFT JOIN returns r2b ON r2b.id = ir2b.return_id AND r2b.return_type = 'GSTR2B'
		LEFT JOIN itc_claims c ON c.invoice_uid = i2b.uid
		LEFT JOIN returns r3b ON r3b.id = c.return_id AND r3b.return_type = 'GSTR3B'
		LEFT JOIN entities se ON se.gstin = i2b.supplier_gstin
		LEFT JOIN irn_records irn ON irn.invoice_uid = COALESCE(i1.uid, i2b.uid)
		WHERE i2b.source = 'GSTR2B'
		  AND i2b.recipient_gstin = $1
		  AND to_char(i2b.invoice_date, 'MMYYYY') = $2
		ORDER BY i2b.uid`

	var contexts []models.ChainContext
	err := withRetry(ctx, s.policy, "FetchChainContexts", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, sql, gstin, period)
		if err != nil {
			return err
		}
		defer rows.Close()
		contexts = contexts[:0]
		for rows.Next() {
			var cc models.ChainContext
			var (
				i1UID                *string
				i1Taxable, i1CGST    *float64
				i1SGST, i1IGST       *float64
				prEntry              *string
				prTaxable, prTax     *float64
				r1Period, r1Status   *string
				r2bPeriod, r2bStatus *string
				r3bPeriod, r3bStatus *string
				claimed, eligible    *float64
				supplierStatus       *string
				irnHash, irnStatus   *string
			)
			cc.GSTR2BInvoice.Source = models.SourceGSTR2B
			if err := rows.Scan(
				&cc.GSTR2BInvoice.UID, &cc.GSTR2BInvoice.InvoiceNumber, &cc.GSTR2BInvoice.InvoiceDate,
				&cc.GSTR2BInvoice.TaxableValue, &cc.GSTR2BInvoice.CGST, &cc.GSTR2BInvoice.SGST,
				&cc.GSTR2BInvoice.IGST, &cc.GSTR2BInvoice.Cess, &cc.GSTR2BInvoice.TotalValue,
				&cc.GSTR2BInvoice.SupplierGSTIN, &cc.GSTR2BInvoice.RecipientGSTIN,
				&i1UID, &i1Taxable, &i1CGST, &i1SGST, &i1IGST,
				&prEntry, &prTaxable, &prTax,
				&r1Period, &r1Status,
				&r2bPeriod, &r2bStatus,
				&r3bPeriod, &r3bStatus,
				&claimed, &eligible,
				&supplierStatus,
				&irnHash, &irnStatus,
			); err != nil {
				return err
			}
			if i1UID != nil {
				cc.GSTR1Invoice = &models.Invoice{
					UID:           *i1UID,
					InvoiceNumber: cc.GSTR2BInvoice.InvoiceNumber,
					SupplierGSTIN: cc.GSTR2BInvoice.SupplierGSTIN,
					Source:        models.SourceGSTR1,
				}
				if i1Taxable != nil {
					cc.GSTR1Invoice.TaxableValue = *i1Taxable
				}
				if i1CGST != nil {
					cc.GSTR1Invoice.CGST = *i1CGST
				}
				if i1SGST != nil {
					cc.GSTR1Invoice.SGST = *i1SGST
				}
				if i1IGST != nil {
					cc.GSTR1Invoice.IGST = *i1IGST
				}
			}
			if prEntry != nil {
				cc.PurchaseEntry = &models.PurchaseRegisterEntry{EntryID: *prEntry, InvoiceUID: cc.GSTR2BInvoice.UID}
				if prTaxable != nil {
					cc.PurchaseEntry.TaxableValue = *prTaxable
				}
				if prTax != nil {
					cc.PurchaseEntry.TaxAmount = *prTax
				}
			}
			if r1Period != nil {
				cc.GSTR1Return = &models.ReturnFiling{ReturnType: "GSTR1", ReturnPeriod: *r1Period, FilingStatus: deref(r1Status)}
			}
			if r2bPeriod != nil {
				cc.GSTR2BReturn = &models.ReturnFiling{ReturnType: "GSTR2B", ReturnPeriod: *r2bPeriod, FilingStatus: deref(r2bStatus)}
			}
			if r3bPeriod != nil {
				cc.GSTR3BReturn = &models.ReturnFiling{ReturnType: "GSTR3B", ReturnPeriod: *r3bPeriod, FilingStatus: deref(r3bStatus)}
			}
			if claimed != nil || eligible != nil {
				cc.ITCClaim = &models.ITCClaim{}
				if claimed != nil {
					cc.ITCClaim.ClaimedAmount = *claimed
				}
				if eligible != nil {
					cc.ITCClaim.EligibleAmount = *eligible
				}
			}
			if supplierStatus != nil {
				cc.SupplierStatus = models.EntityStatus(*supplierStatus)
			}
			if irnHash != nil {
				cc.IRN = &models.IRNRecord{IRNHash: *irnHash, Status: deref(irnStatus)}
			}
			contexts = append(contexts, cc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch chain contexts for %s/%s: %w", gstin, period, err)
	}
	return contexts, nil
}

// FetchCyclePatterns issues the direct ring query for exactly-N-node
// cycles. The ascending-id constraint (a < b < c ...) returns each ring in
// exactly one rotation, so the detector's canonical dedupe sees no source
// duplicates.
func (s *PostgresStore) FetchCyclePatterns(ctx context.Context, length, limit int) ([][]string, error) {
	var sql string
	switch length {
	case 3:
		sql = `
			SELECT a.source_gstin, b.source_gstin, c.source_gstin
			FROM transaction_edges a
			JOIN transaction_edges b ON b.source_gstin = a.target_gstin
			JOIN transaction_edges c ON c.source_gstin = b.target_gstin
			                        AND c.target_gstin = a.source_gstin
			WHERE a.source_gstin < b.source_gstin
			  AND b.source_gstin < c.source_gstin
			LIMIT $1`
	case 4:
		sql = `
			SELECT a.source_gstin, b.source_gstin, c.source_gstin, d.source_gstin
			FROM transaction_edges a
			JOIN transaction_edges b ON b.source_gstin = a.target_gstin
			JOIN transaction_edges c ON c.source_gstin = b.target_gstin
			JOIN transaction_edges d ON d.source_gstin = c.target_gstin
			                        AND d.target_gstin = a.source_gstin
			WHERE a.source_gstin < b.source_gstin
			  AND b.source_gstin < c.source_gstin
			  AND c.source_gstin < d.source_gstin
			LIMIT $1`
	default:
		return nil, fmt.Errorf("unsupported cycle pattern length %d", length)
	}

	var cycles [][]string
	err := withRetry(ctx, s.policy, "FetchCyclePatterns", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, sql, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		cycles = cycles[:0]
		for rows.Next() {
			cycle := make([]string, length)
			targets := make([]any, length)
			for i := range cycle {
				targets[i] = &cycle[i]
			}
			if err := rows.Scan(targets...); err != nil {
				return err
			}
			cycles = append(cycles, cycle)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %d-node cycle patterns: %w", length, err)
	}
	return cycles, nil
}

func (s *PostgresStore) FetchMatchStats(ctx context.Context) (map[string]MatchStats, error) {
	stats := make(map[string]MatchStats)
	err := withRetry(ctx, s.policy, "FetchMatchStats", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT i.supplier_gstin,
			       COUNT(*) FILTER (WHERE m.gstr1_uid IS NULL),
			       COUNT(*) FILTER (WHERE m.match_score < 95),
			       COUNT(*)
			FROM invoices i
			LEFT JOIN invoice_matches m ON m.gstr1_uid = i.uid
			WHERE i.source = 'GSTR1'
			GROUP BY i.supplier_gstin`)
		if err != nil {
			return err
		}
		defer rows.Close()
		clear(stats)
		for rows.Next() {
			var gstin string
			var st MatchStats
			if err := rows.Scan(&gstin, &st.Unmatched, &st.Partial, &st.Total); err != nil {
				return err
			}
			stats[gstin] = st
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch match stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) TotalITCClaimed(ctx context.Context, gstin, period string) (float64, error) {
	var total float64
	err := withRetry(ctx, s.policy, "TotalITCClaimed", func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `
			SELECT COALESCE(SUM(c.claimed_amount), 0)
			FROM itc_claims c
			JOIN returns r ON r.id = c.return_id
			WHERE r.return_type = 'GSTR3B' AND r.gstin = $1 AND r.return_period = $2`,
			gstin, period).Scan(&total)
	})
	if err != nil {
		return 0, fmt.Errorf("total ITC claimed for %s/%s: %w", gstin, period, err)
	}
	return total, nil
}

func (s *PostgresStore) ListGSTINs(ctx context.Context) ([]string, error) {
	var gstins []string
	err := withRetry(ctx, s.policy, "ListGSTINs", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `SELECT gstin FROM entities WHERE status = 'active' ORDER BY gstin`)
		if err != nil {
			return err
		}
		defer rows.Close()
		gstins = gstins[:0]
		for rows.Next() {
			var g string
			if err := rows.Scan(&g); err != nil {
				return err
			}
			gstins = append(gstins, g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list gstins: %w", err)
	}
	return gstins, nil
}

func (s *PostgresStore) ListPeriods(ctx context.Context) ([]string, error) {
	var periods []string
	err := withRetry(ctx, s.policy, "ListPeriods", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `SELECT DISTINCT return_period FROM returns ORDER BY return_period`)
		if err != nil {
			return err
		}
		defer rows.Close()
		periods = periods[:0]
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			periods = append(periods, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

func (s *PostgresStore) UpsertMatchEdge(ctx context.Context, gstr1UID, gstr2bUID string, score float64, diffFields []string, matchType string) error {
	err := withRetry(ctx, s.policy, "UpsertMatchEdge", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO invoice_matches (gstr1_uid, gstr2b_uid, match_score, match_type, diff_fields)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (gstr1_uid, gstr2b_uid) DO UPDATE SET
				match_score = EXCLUDED.match_score,
				match_type = EXCLUDED.match_type,
				diff_fields = EXCLUDED.diff_fields,
				matched_at = NOW()`,
			gstr1UID, gstr2bUID, score, matchType, diffFields)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert match edge %s->%s: %w", gstr1UID, gstr2bUID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertMismatch(ctx context.Context, m models.Mismatch) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mismatch %s: %w", m.MismatchID, err)
	}
	err = withRetry(ctx, s.policy, "UpsertMismatch", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO mismatches (mismatch_id, mismatch_type, severity, status, risk_category,
				detected_at, supplier_gstin, buyer_gstin, invoice_number, return_period,
				itc_at_risk, interest_liability, penalty_exposure, composite_risk_score, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (mismatch_id) DO UPDATE SET
				composite_risk_score = EXCLUDED.composite_risk_score,
				payload = EXCLUDED.payload`,
			m.MismatchID, m.Type, m.Severity, m.Status, m.RiskCategory,
			m.DetectedAt, m.SupplierGSTIN, m.BuyerGSTIN, m.InvoiceNumber, m.ReturnPeriod,
			m.FinancialImpact.ITCAtRisk, m.FinancialImpact.InterestLiability,
			m.FinancialImpact.PenaltyExposure, m.CompositeRiskScore, payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert mismatch %s: %w", m.MismatchID, err)
	}
	return nil
}

func (s *PostgresStore) ClearMismatches(ctx context.Context, gstin, period string) error {
	err := withRetry(ctx, s.policy, "ClearMismatches", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx,
			`DELETE FROM mismatches WHERE buyer_gstin = $1 AND return_period = $2`, gstin, period)
		return err
	})
	if err != nil {
		return fmt.Errorf("clear mismatches for %s/%s: %w", gstin, period, err)
	}
	return nil
}

// UpsertEntityRiskMetrics writes the Level 4 scores back in one batched
// round trip per chunk. The upsert is idempotent so a re-run converges to
// the same stored state.
func (s *PostgresStore) UpsertEntityRiskMetrics(ctx context.Context, batch []models.EntityRiskMetrics) error {
	const chunkSize = 500
	const sql = `
		INSERT INTO entities (gstin, status, risk_score, base_risk, mismatch_ratio, pagerank,
			degree_centrality, betweenness, clustering_coefficient, neighbor_avg_risk,
			community_id, updated_at)
		VALUES ($1, 'active', $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (gstin) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			base_risk = EXCLUDED.base_risk,
			mismatch_ratio = EXCLUDED.mismatch_ratio,
			pagerank = EXCLUDED.pagerank,
			degree_centrality = EXCLUDED.degree_centrality,
			betweenness = EXCLUDED.betweenness,
			clustering_coefficient = EXCLUDED.clustering_coefficient,
			neighbor_avg_risk = EXCLUDED.neighbor_avg_risk,
			community_id = EXCLUDED.community_id,
			updated_at = NOW()`

	for start := 0; start < len(batch); start += chunkSize {
		end := start + chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]
		err := withRetry(ctx, s.policy, "UpsertEntityRiskMetrics", func(ctx context.Context) error {
			b := &pgx.Batch{}
			for _, m := range chunk {
				b.Queue(sql, m.GSTIN, m.RiskScore, m.BaseRisk, m.MismatchRatio, m.PageRank,
					m.DegreeCentrality, m.Betweenness, m.ClusteringCoeff, m.NeighborAvgRisk,
					m.CommunityID)
			}
			br := s.pool.SendBatch(ctx, b)
			defer br.Close()
			for range chunk {
				if _, err := br.Exec(); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("upsert entity risk metrics (%d rows): %w", len(chunk), err)
		}
	}
	logrus.WithField("entities", len(batch)).Info("stored risk metrics")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
