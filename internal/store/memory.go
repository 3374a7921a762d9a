package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// MatchEdge is a persisted Level 1 match as recorded by the memory store.
type MatchEdge struct {
	GSTR1UID   string
	GSTR2BUID  string
	Score      float64
	DiffFields []string
	MatchType  string
}

// MemoryStore is a GraphStore held entirely in process memory. Tests and
// demo runs seed it directly; writes are retained for assertions.
type MemoryStore struct {
	mu         sync.RWMutex
	invoices   []models.Invoice
	edges      []models.TransactionEdge
	entities   map[string]models.Entity
	chains     map[string][]models.ChainContext
	matchStats map[string]MatchStats
	itcClaimed map[string]float64
	periods    []string
	matches    []MatchEdge
	mismatches map[string]models.Mismatch
	metrics    map[string]models.EntityRiskMetrics
}

var _ GraphStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:   make(map[string]models.Entity),
		chains:     make(map[string][]models.ChainContext),
		matchStats: make(map[string]MatchStats),
		itcClaimed: make(map[string]float64),
		mismatches: make(map[string]models.Mismatch),
		metrics:    make(map[string]models.EntityRiskMetrics),
	}
}

func scopeKey(gstin, period string) string { return gstin + "|" + period }

func (s *MemoryStore) SeedInvoices(invoices ...models.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = append(s.invoices, invoices...)
}

func (s *MemoryStore) SeedEntity(e models.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.GSTIN] = e
}

func (s *MemoryStore) SeedEdge(e models.TransactionEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, e)
}

func (s *MemoryStore) SeedChainContext(gstin, period string, cc models.ChainContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey(gstin, period)
	s.chains[key] = append(s.chains[key], cc)
}

func (s *MemoryStore) SeedMatchStats(gstin string, st MatchStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchStats[gstin] = st
}

func (s *MemoryStore) SeedITCClaimed(gstin, period string, total float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.itcClaimed[scopeKey(gstin, period)] = total
}

func (s *MemoryStore) SeedPeriods(periods ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, periods...)
}

// Matches returns the match edges persisted so far.
func (s *MemoryStore) Matches() []MatchEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MatchEdge, len(s.matches))
	copy(out, s.matches)
	return out
}

// Mismatches returns persisted findings sorted by id.
func (s *MemoryStore) Mismatches() []models.Mismatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Mismatch, 0, len(s.mismatches))
	for _, m := range s.mismatches {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MismatchID < out[j].MismatchID })
	return out
}

// Metrics returns the last written risk metrics keyed by GSTIN.
func (s *MemoryStore) Metrics() map[string]models.EntityRiskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.EntityRiskMetrics, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) FetchInvoices(ctx context.Context, gstin, period string, source models.LedgerSource) ([]models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Invoice
	for _, inv := range s.invoices {
		if inv.Source != source {
			continue
		}
		party := inv.SupplierGSTIN
		if source == models.SourceGSTR2B {
			party = inv.RecipientGSTIN
		}
		if party != gstin || inv.InvoiceDate.Format("012006") != period {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *MemoryStore) FetchAggregatedEdges(ctx context.Context) ([]models.TransactionEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TransactionEdge, len(s.edges))
	copy(out, s.edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceGSTIN != out[j].SourceGSTIN {
			return out[i].SourceGSTIN < out[j].SourceGSTIN
		}
		return out[i].TargetGSTIN < out[j].TargetGSTIN
	})
	return out, nil
}

func (s *MemoryStore) FetchEntity(ctx context.Context, gstin string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[gstin]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) FetchEntities(ctx context.Context) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GSTIN < out[j].GSTIN })
	return out, nil
}

func (s *MemoryStore) FetchChainContexts(ctx context.Context, gstin, period string) ([]models.ChainContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.chains[scopeKey(gstin, period)]
	out := make([]models.ChainContext, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) FetchCyclePatterns(ctx context.Context, length, limit int) ([][]string, error) {
	if length != 3 && length != 4 {
		return nil, fmt.Errorf("unsupported cycle pattern length %d", length)
	}
	s.mu.RLock()
	adj := make(map[string]map[string]bool)
	nodes := make(map[string]bool)
	for _, e := range s.edges {
		if adj[e.SourceGSTIN] == nil {
			adj[e.SourceGSTIN] = make(map[string]bool)
		}
		adj[e.SourceGSTIN][e.TargetGSTIN] = true
		nodes[e.SourceGSTIN] = true
		nodes[e.TargetGSTIN] = true
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out [][]string
	for _, a := range ids {
		for _, b := range ids {
			if b <= a || !adj[a][b] {
				continue
			}
			for _, c := range ids {
				if c <= b || !adj[b][c] {
					continue
				}
				if length == 3 {
					if adj[c][a] {
						out = append(out, []string{a, b, c})
						if limit > 0 && len(out) >= limit {
							return out, nil
						}
					}
					continue
				}
				for _, d := range ids {
					if d <= c || !adj[c][d] || !adj[d][a] {
						continue
					}
					out = append(out, []string{a, b, c, d})
					if limit > 0 && len(out) >= limit {
						return out, nil
					}
				}
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) FetchMatchStats(ctx context.Context) (map[string]MatchStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]MatchStats, len(s.matchStats))
	for k, v := range s.matchStats {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) TotalITCClaimed(ctx context.Context, gstin, period string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itcClaimed[scopeKey(gstin, period)], nil
}

func (s *MemoryStore) ListGSTINs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for gstin, e := range s.entities {
		if e.Status == models.StatusActive {
			out = append(out, gstin)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ListPeriods(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.periods {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) UpsertMatchEdge(ctx context.Context, gstr1UID, gstr2bUID string, score float64, diffFields []string, matchType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	edge := MatchEdge{GSTR1UID: gstr1UID, GSTR2BUID: gstr2bUID, Score: score, DiffFields: diffFields, MatchType: matchType}
	for i, m := range s.matches {
		if m.GSTR1UID == gstr1UID && m.GSTR2BUID == gstr2bUID {
			s.matches[i] = edge
			return nil
		}
	}
	s.matches = append(s.matches, edge)
	return nil
}

func (s *MemoryStore) UpsertMismatch(ctx context.Context, m models.Mismatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mismatches[m.MismatchID] = m
	return nil
}

func (s *MemoryStore) ClearMismatches(ctx context.Context, gstin, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.mismatches {
		if m.BuyerGSTIN == gstin && m.ReturnPeriod == period {
			delete(s.mismatches, id)
		}
	}
	return nil
}

func (s *MemoryStore) UpsertEntityRiskMetrics(ctx context.Context, batch []models.EntityRiskMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range batch {
		s.metrics[m.GSTIN] = m
		e := s.entities[m.GSTIN]
		e.GSTIN = m.GSTIN
		e.RiskScore = m.RiskScore
		e.PageRank = m.PageRank
		e.DegreeCentrality = m.DegreeCentrality
		e.Betweenness = m.Betweenness
		e.ClusteringCoeff = m.ClusteringCoeff
		e.CommunityID = m.CommunityID
		if e.Status == "" {
			e.Status = models.StatusActive
		}
		s.entities[m.GSTIN] = e
	}
	return nil
}
