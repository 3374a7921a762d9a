package graph

import "testing"

// twoTriangles builds two triangles joined by one bridge edge.
func twoTriangles() *Graph {
	g := New()
	g.AddEdge("A", "B", 1, 1)
	g.AddEdge("B", "C", 1, 1)
	g.AddEdge("C", "A", 1, 1)
	g.AddEdge("D", "E", 1, 1)
	g.AddEdge("E", "F", 1, 1)
	g.AddEdge("F", "D", 1, 1)
	g.AddEdge("C", "D", 1, 1)
	return g
}

func TestGreedyModularityCommunities_TwoTriangles(t *testing.T) {
	result := GreedyModularityCommunities(twoTriangles())

	if result.Method != "greedy_modularity" {
		t.Errorf("Expected greedy_modularity method, got %s", result.Method)
	}
	if len(result.Communities) != 2 {
		t.Fatalf("Expected 2 communities, got %d", len(result.Communities))
	}

	nc := result.NodeCommunity
	if nc["A"] != nc["B"] || nc["B"] != nc["C"] {
		t.Errorf("Expected A,B,C in one community, got %v", nc)
	}
	if nc["D"] != nc["E"] || nc["E"] != nc["F"] {
		t.Errorf("Expected D,E,F in one community, got %v", nc)
	}
	if nc["A"] == nc["D"] {
		t.Errorf("Expected the bridge to separate the triangles, got %v", nc)
	}
	if result.Modularity <= 0 {
		t.Errorf("Expected positive modularity for a clustered graph, got %v", result.Modularity)
	}
}

func TestGreedyModularityCommunities_NoEdgesFallsBack(t *testing.T) {
	g := New()
	g.EnsureNode("A")
	g.EnsureNode("B")

	result := GreedyModularityCommunities(g)

	if result.Method != "connected_components" {
		t.Errorf("Expected connected_components fallback, got %s", result.Method)
	}
	if len(result.Communities) != 2 {
		t.Errorf("Expected each isolated node in its own community, got %d", len(result.Communities))
	}
}

func TestGreedyModularityCommunities_Deterministic(t *testing.T) {
	first := GreedyModularityCommunities(twoTriangles())
	second := GreedyModularityCommunities(twoTriangles())

	for id, c := range first.NodeCommunity {
		if second.NodeCommunity[id] != c {
			t.Fatalf("Expected identical partition across runs, node %s: %d vs %d",
				id, c, second.NodeCommunity[id])
		}
	}
}

func TestConnectedComponents(t *testing.T) {
	g := New()
	g.AddEdge("A", "B", 1, 1)
	g.AddEdge("C", "D", 1, 1)
	g.EnsureNode("E")

	result := ConnectedComponents(g)

	if len(result.Communities) != 3 {
		t.Fatalf("Expected 3 components, got %d", len(result.Communities))
	}
	if result.NodeCommunity["A"] != result.NodeCommunity["B"] {
		t.Error("Expected A and B in the same component")
	}
	if result.NodeCommunity["A"] == result.NodeCommunity["C"] {
		t.Error("Expected A and C in different components")
	}
}
