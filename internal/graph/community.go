package graph

import "sort"

// Community is one detected group of nodes.
type Community struct {
	ID    int
	Nodes []string
	Size  int
}

// CommunityResult holds a graph partition and its modularity.
type CommunityResult struct {
	Communities   []Community
	NodeCommunity map[string]int
	Modularity    float64
	Method        string // "greedy_modularity" or "connected_components"
}

// GreedyModularityCommunities partitions the undirected projection by
// greedy modularity maximization: start from singletons and repeatedly
// merge the connected community pair with the largest modularity gain,
// stopping when no merge improves modularity. Falls back to connected
// components when the graph has no edges.
func GreedyModularityCommunities(g *Graph) *CommunityResult {
	ids := g.NodeIDs()

	// Undirected edge set, deduplicated.
	type pair struct{ a, b string }
	edgeSet := make(map[pair]bool)
	for _, u := range ids {
		for v := range g.Neighbors(u) {
			if u < v {
				edgeSet[pair{u, v}] = true
			} else {
				edgeSet[pair{v, u}] = true
			}
		}
	}
	m := float64(len(edgeSet))
	if m == 0 {
		return ConnectedComponents(g)
	}

	// Community state: membership, total degree, internal edges, and
	// inter-community edge counts.
	comm := make(map[string]int, len(ids))
	degree := make(map[string]float64, len(ids))
	for i, id := range ids {
		comm[id] = i
		degree[id] = float64(len(g.Neighbors(id)))
	}
	commDegree := make(map[int]float64)
	internal := make(map[int]float64)
	between := make(map[[2]int]float64)
	for _, id := range ids {
		commDegree[comm[id]] += degree[id]
	}
	for e := range edgeSet {
		ca, cb := comm[e.a], comm[e.b]
		if ca == cb {
			internal[ca]++
		} else {
			k := commKey(ca, cb)
			between[k]++
		}
	}

	// Greedy agglomeration. ΔQ for merging a,b:
	//   e_ab/m − d_a·d_b / (2m²)
	for {
		bestGain := 0.0
		var bestKey [2]int
		found := false
		keys := make([][2]int, 0, len(between))
		for k := range between {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i][0] != keys[j][0] {
				return keys[i][0] < keys[j][0]
			}
			return keys[i][1] < keys[j][1]
		})
		for _, k := range keys {
			gain := between[k]/m - commDegree[k[0]]*commDegree[k[1]]/(2*m*m)
			if gain > bestGain {
				bestGain = gain
				bestKey = k
				found = true
			}
		}
		if !found {
			break
		}
		mergeCommunities(bestKey[0], bestKey[1], comm, commDegree, internal, between)
	}

	return buildResult(ids, comm, m, internal, commDegree, "greedy_modularity")
}

// ConnectedComponents partitions via BFS over the undirected projection.
// Used as the degenerate-case fallback for community detection.
func ConnectedComponents(g *Graph) *CommunityResult {
	ids := g.NodeIDs()
	visited := make(map[string]bool, len(ids))
	nodeCommunity := make(map[string]int, len(ids))
	var communities []Community
	communityID := 0

	for _, start := range ids {
		if visited[start] {
			continue
		}
		component := Community{ID: communityID}
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			component.Nodes = append(component.Nodes, id)
			nodeCommunity[id] = communityID
			for n := range g.Neighbors(id) {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		sort.Strings(component.Nodes)
		component.Size = len(component.Nodes)
		communities = append(communities, component)
		communityID++
	}

	return &CommunityResult{
		Communities:   communities,
		NodeCommunity: nodeCommunity,
		Method:        "connected_components",
	}
}

func commKey(a, b int) [2]int {
	if a < b {
		return [2]int{a, b}
	}
	return [2]int{b, a}
}

// mergeCommunities folds community b into a, updating degree, internal and
// between-edge bookkeeping.
func mergeCommunities(a, b int, comm map[string]int, commDegree, internal map[int]float64, between map[[2]int]float64) {
	for id, c := range comm {
		if c == b {
			comm[id] = a
		}
	}
	internal[a] += internal[b] + between[commKey(a, b)]
	delete(internal, b)
	commDegree[a] += commDegree[b]
	delete(commDegree, b)
	delete(between, commKey(a, b))

	// Redirect b's remaining between-edges to a.
	for k, w := range between {
		var other int
		switch {
		case k[0] == b:
			other = k[1]
		case k[1] == b:
			other = k[0]
		default:
			continue
		}
		delete(between, k)
		if other == a {
			internal[a] += w
			continue
		}
		between[commKey(a, other)] += w
	}
}

func buildResult(ids []string, comm map[string]int, m float64, internal, commDegree map[int]float64, method string) *CommunityResult {
	// Renumber communities densely in first-seen (sorted node) order.
	renumber := make(map[int]int)
	nodeCommunity := make(map[string]int, len(ids))
	var order []int
	for _, id := range ids {
		c := comm[id]
		if _, ok := renumber[c]; !ok {
			renumber[c] = len(renumber)
			order = append(order, c)
		}
		nodeCommunity[id] = renumber[c]
	}

	communities := make([]Community, len(order))
	for i := range communities {
		communities[i] = Community{ID: i}
	}
	for _, id := range ids {
		c := nodeCommunity[id]
		communities[c].Nodes = append(communities[c].Nodes, id)
	}
	for i := range communities {
		sort.Strings(communities[i].Nodes)
		communities[i].Size = len(communities[i].Nodes)
	}

	modularity := 0.0
	for _, c := range order {
		modularity += internal[c]/m - (commDegree[c]/(2*m))*(commDegree[c]/(2*m))
	}

	return &CommunityResult{
		Communities:   communities,
		NodeCommunity: nodeCommunity,
		Modularity:    modularity,
		Method:        method,
	}
}
