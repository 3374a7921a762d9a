package graph

import "math"

// PageRankOptions configures the random-walk influence computation.
type PageRankOptions struct {
	DampingFactor float64 // usually 0.85
	MaxIterations int
	Tolerance     float64 // convergence threshold on max per-node delta
}

// DefaultPageRankOptions returns the standard configuration.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// PageRankResult holds scores for all nodes plus convergence info.
type PageRankResult struct {
	Scores     map[string]float64
	Iterations int
	Converged  bool
}

// PageRank computes edge-weighted PageRank over the directed graph. Each
// node distributes its score to successors proportionally to edge weight;
// nodes without outgoing weight dangle and redistribute uniformly via the
// teleportation term. Scores are normalized to sum to 1.
func PageRank(g *Graph, opts PageRankOptions) *PageRankResult {
	ids := g.NodeIDs()
	n := len(ids)
	if n == 0 {
		return &PageRankResult{Scores: map[string]float64{}, Converged: true}
	}
	if opts.DampingFactor <= 0 || opts.DampingFactor >= 1 {
		opts.DampingFactor = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}

	scores := make(map[string]float64, n)
	next := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for _, id := range ids {
		scores[id] = initial
	}

	outWeight := make(map[string]float64, n)
	for _, id := range ids {
		outWeight[id] = g.OutWeight(id)
	}

	teleport := (1.0 - opts.DampingFactor) / float64(n)
	converged := false
	iterations := 0

	for iterations < opts.MaxIterations {
		iterations++

		// Dangling mass is spread uniformly so the walk stays stochastic.
		dangling := 0.0
		for _, id := range ids {
			if outWeight[id] == 0 {
				dangling += scores[id]
			}
		}
		danglingShare := opts.DampingFactor * dangling / float64(n)

		for _, id := range ids {
			sum := 0.0
			for _, e := range g.in[id] {
				if w := outWeight[e.From]; w > 0 {
					sum += scores[e.From] * e.Weight / w
				}
			}
			next[id] = teleport + danglingShare + opts.DampingFactor*sum
		}

		maxDiff := 0.0
		for _, id := range ids {
			if d := math.Abs(next[id] - scores[id]); d > maxDiff {
				maxDiff = d
			}
		}
		scores, next = next, scores

		if maxDiff < opts.Tolerance {
			converged = true
			break
		}
	}

	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	if sum > 0 {
		for id := range scores {
			scores[id] /= sum
		}
	}

	return &PageRankResult{Scores: scores, Iterations: iterations, Converged: converged}
}
