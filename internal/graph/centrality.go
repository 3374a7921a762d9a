package graph

// DegreeCentrality returns degree/(n-1) per node, counting in and out
// degree on the directed graph.
func DegreeCentrality(g *Graph) map[string]float64 {
	ids := g.NodeIDs()
	n := len(ids)
	result := make(map[string]float64, n)
	if n < 2 {
		for _, id := range ids {
			result[id] = 0
		}
		return result
	}
	norm := 1.0 / float64(n-1)
	for _, id := range ids {
		result[id] = float64(len(g.out[id])+len(g.in[id])) * norm
	}
	return result
}

// BetweennessCentrality computes node betweenness with Brandes' algorithm
// over hop-count shortest paths, normalized by (n-1)(n-2).
func BetweennessCentrality(g *Graph) map[string]float64 {
	ids := g.NodeIDs()
	betweenness := make(map[string]float64, len(ids))
	for _, id := range ids {
		betweenness[id] = 0
	}

	for _, source := range ids {
		stack := make([]string, 0, len(ids))
		predecessors := make(map[string][]string, len(ids))
		sigma := make(map[string]float64, len(ids))
		distance := make(map[string]int, len(ids))
		for _, id := range ids {
			sigma[id] = 0
			distance[id] = -1
		}
		sigma[source] = 1
		distance[source] = 0

		queue := []string{source}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)

			for _, e := range g.out[v] {
				w := e.To
				if distance[w] < 0 {
					queue = append(queue, w)
					distance[w] = distance[v] + 1
				}
				if distance[w] == distance[v]+1 {
					sigma[w] += sigma[v]
					predecessors[w] = append(predecessors[w], v)
				}
			}
		}

		delta := make(map[string]float64, len(ids))
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range predecessors[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1.0 + delta[w])
			}
			if w != source {
				betweenness[w] += delta[w]
			}
		}
	}

	if len(ids) > 2 {
		norm := 1.0 / float64((len(ids)-1)*(len(ids)-2))
		for id := range betweenness {
			betweenness[id] *= norm
		}
	}
	return betweenness
}

// ClusteringCoefficients computes the local clustering coefficient per node
// on the undirected projection: triangles through the node divided by
// possible neighbor pairs. Nodes with fewer than two neighbors score 0.
func ClusteringCoefficients(g *Graph) map[string]float64 {
	ids := g.NodeIDs()
	neighborSets := make(map[string]map[string]bool, len(ids))
	for _, id := range ids {
		neighborSets[id] = g.Neighbors(id)
	}

	coefficients := make(map[string]float64, len(ids))
	for _, u := range ids {
		neighbors := neighborSets[u]
		k := len(neighbors)
		if k < 2 {
			coefficients[u] = 0
			continue
		}
		slice := make([]string, 0, k)
		for v := range neighbors {
			slice = append(slice, v)
		}
		triangles := 0
		for i := 0; i < len(slice); i++ {
			for j := i + 1; j < len(slice); j++ {
				if neighborSets[slice[i]][slice[j]] {
					triangles++
				}
			}
		}
		coefficients[u] = float64(triangles) / float64(k*(k-1)/2)
	}
	return coefficients
}

// AverageClustering returns the mean local clustering coefficient.
func AverageClustering(coefficients map[string]float64) float64 {
	if len(coefficients) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range coefficients {
		sum += c
	}
	return sum / float64(len(coefficients))
}
