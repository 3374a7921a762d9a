package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/graph"
	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// RiskPropagator is Level 4: it diffuses compliance risk across the
// transaction network. Base risk derives from registration status and
// compliance rating; network terms come from PageRank influence, degree,
// betweenness and neighbor contagion. All metrics are computed over one
// read-only graph snapshot and written back in a single batched upsert.
type RiskPropagator struct {
	prCfg   PageRankConfig
	riskCfg RiskConfig
	store   store.GraphStore
	log     *logrus.Entry
}

func NewRiskPropagator(prCfg PageRankConfig, riskCfg RiskConfig, st store.GraphStore) *RiskPropagator {
	return &RiskPropagator{prCfg: prCfg, riskCfg: riskCfg, store: st, log: logrus.WithField("component", "level4")}
}

// Propagate runs the full graph-wide risk pass and writes scores back.
func (p *RiskPropagator) Propagate(ctx context.Context) (*models.RiskPropagationResult, error) {
	g, err := p.buildGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("level4: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"nodes": g.NodeCount(),
		"edges": g.EdgeCount(),
	}).Info("risk graph built")

	if g.NodeCount() == 0 {
		return &models.RiskPropagationResult{Scores: map[string]float64{}}, nil
	}

	pr := graph.PageRank(g, graph.PageRankOptions{
		DampingFactor: p.prCfg.DampingFactor,
		MaxIterations: p.prCfg.MaxIterations,
		Tolerance:     p.prCfg.Tolerance,
	})
	if !pr.Converged {
		p.log.WithField("iterations", pr.Iterations).Warn("pagerank did not converge")
	}
	degree := graph.DegreeCentrality(g)
	betweenness := graph.BetweennessCentrality(g)
	clustering := graph.ClusteringCoefficients(g)

	communities := graph.GreedyModularityCommunities(g)
	p.log.WithFields(logrus.Fields{
		"communities": len(communities.Communities),
		"method":      communities.Method,
	}).Info("communities detected")

	metrics := p.computeScores(g, pr.Scores, degree, betweenness, clustering, communities.NodeCommunity)

	scores := make(map[string]float64, len(metrics))
	batch := make([]models.EntityRiskMetrics, 0, len(metrics))
	for _, id := range g.NodeIDs() {
		m := metrics[id]
		scores[id] = m.RiskScore
		batch = append(batch, m)
	}
	if err := p.store.UpsertEntityRiskMetrics(ctx, batch); err != nil {
		return nil, fmt.Errorf("level4: %w", err)
	}

	result := &models.RiskPropagationResult{
		Scores:         scores,
		Communities:    p.scoreCommunities(communities, scores),
		HighRiskGSTINs: p.highRisk(metrics),
		GraphStats: models.GraphStats{
			Nodes:          g.NodeCount(),
			Edges:          g.EdgeCount(),
			Density:        g.Density(),
			AvgClustering:  graph.AverageClustering(clustering),
			NumCommunities: len(communities.Communities),
		},
	}
	p.log.WithField("highRisk", len(result.HighRiskGSTINs)).Info("risk propagation complete")
	return result, nil
}

// buildGraph loads the full transaction network. Every known entity gets a
// node even when isolated, so status-derived risk reaches entities without
// transactions.
func (p *RiskPropagator) buildGraph(ctx context.Context) (*graph.Graph, error) {
	edges, err := p.store.FetchAggregatedEdges(ctx)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	for _, e := range edges {
		weight := e.TotalValue
		if weight <= 0 {
			weight = 1
		}
		g.AddEdge(e.SourceGSTIN, e.TargetGSTIN, weight, e.TxnCount)
	}

	entities, err := p.store.FetchEntities(ctx)
	if err != nil {
		return nil, err
	}
	for _, ent := range entities {
		n := g.EnsureNode(ent.GSTIN)
		n.Status = string(ent.Status)
		n.Compliance = ent.ComplianceRating
		n.BaseRisk = baseRisk(ent.Status, ent.ComplianceRating)
	}
	// Entities only seen on edges keep the defaults.
	for _, id := range g.NodeIDs() {
		n := g.Node(id)
		if n.BaseRisk == 0 && n.Status == "active" {
			n.BaseRisk = baseRisk(models.StatusActive, n.Compliance)
		}
	}

	stats, err := p.store.FetchMatchStats(ctx)
	if err != nil {
		return nil, err
	}
	for id, st := range stats {
		if n := g.Node(id); n != nil {
			total := st.Total
			if total < 1 {
				total = 1
			}
			n.MismatchRatio = float64(st.Unmatched+st.Partial) / float64(total)
		}
	}
	return g, nil
}

// baseRisk derives status risk: cancelled 90, suspended 70, otherwise the
// compliance shortfall.
func baseRisk(status models.EntityStatus, compliance float64) float64 {
	switch status {
	case models.StatusCancelled:
		return 90
	case models.StatusSuspended:
		return 70
	default:
		if compliance == 0 {
			compliance = 50
		}
		return maxF(0, 100-compliance)
	}
}

func (p *RiskPropagator) computeScores(
	g *graph.Graph,
	pagerank, degree, betweenness, clustering map[string]float64,
	nodeCommunity map[string]int,
) map[string]models.EntityRiskMetrics {
	maxPR := 0.0
	for _, v := range pagerank {
		if v > maxPR {
			maxPR = v
		}
	}
	if maxPR == 0 {
		maxPR = 1
	}

	out := make(map[string]models.EntityRiskMetrics, g.NodeCount())
	for _, id := range g.NodeIDs() {
		n := g.Node(id)
		prNorm := pagerank[id] / maxPR * 100

		neighborRisk := 0.0
		neighbors := g.Neighbors(id)
		if len(neighbors) > 0 {
			sum := 0.0
			for nb := range neighbors {
				sum += g.Node(nb).BaseRisk
			}
			neighborRisk = sum / float64(len(neighbors))
		}

		composite := 0.30*n.BaseRisk +
			0.20*(n.MismatchRatio*100) +
			0.15*neighborRisk +
			0.15*minF(prNorm*2, 100) +
			0.10*(betweenness[id]*200) +
			0.10*(degree[id]*100)
		composite = clamp(composite, 0, 100)

		out[id] = models.EntityRiskMetrics{
			GSTIN:            id,
			RiskScore:        round2(composite),
			BaseRisk:         round2(n.BaseRisk),
			MismatchRatio:    n.MismatchRatio,
			PageRank:         pagerank[id],
			DegreeCentrality: degree[id],
			Betweenness:      betweenness[id],
			ClusteringCoeff:  clustering[id],
			NeighborAvgRisk:  round2(neighborRisk),
			CommunityID:      nodeCommunity[id],
		}
	}
	return out
}

func (p *RiskPropagator) scoreCommunities(result *graph.CommunityResult, scores map[string]float64) []models.CommunityRisk {
	out := make([]models.CommunityRisk, 0, len(result.Communities))
	for _, c := range result.Communities {
		if len(c.Nodes) == 0 {
			continue
		}
		sum, maxScore := 0.0, 0.0
		highCount := 0
		for _, id := range c.Nodes {
			s := scores[id]
			sum += s
			if s > maxScore {
				maxScore = s
			}
			if s >= p.riskCfg.HighRiskThreshold {
				highCount++
			}
		}
		avg := sum / float64(len(c.Nodes))

		level := "LOW"
		switch {
		case avg >= 60:
			level = "HIGH"
		case avg >= 40:
			level = "MEDIUM"
		}

		members := c.Nodes
		if len(members) > p.riskCfg.MemberSampleCap {
			members = members[:p.riskCfg.MemberSampleCap]
		}
		out = append(out, models.CommunityRisk{
			CommunityID:     c.ID,
			Size:            c.Size,
			Members:         members,
			AvgRiskScore:    round2(avg),
			MaxRiskScore:    round2(maxScore),
			HighRiskMembers: highCount,
			RiskLevel:       level,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgRiskScore > out[j].AvgRiskScore })
	return out
}

func (p *RiskPropagator) highRisk(metrics map[string]models.EntityRiskMetrics) []models.HighRiskEntity {
	var out []models.HighRiskEntity
	for _, m := range metrics {
		if m.RiskScore >= p.riskCfg.HighRiskThreshold {
			out = append(out, models.HighRiskEntity{GSTIN: m.GSTIN, RiskScore: m.RiskScore, Metrics: m})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].GSTIN < out[j].GSTIN
	})
	if len(out) > p.riskCfg.TopN {
		out = out[:p.riskCfg.TopN]
	}
	return out
}
