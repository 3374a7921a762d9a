// Package graph implements the directed weighted transaction graph shared
// by circular-trade detection and network risk propagation, plus the
// algorithms that run over it. The graph is cyclic by construction, so all
// traversals use explicit stacks/queues with visited sets and bounded work.
package graph

import "sort"

// Node is one entity in the transaction graph.
type Node struct {
	ID            string
	Status        string
	Compliance    float64
	BaseRisk      float64
	MismatchRatio float64
}

// Edge is an aggregated directed transaction relationship.
type Edge struct {
	From     string
	To       string
	Weight   float64 // summed transaction value
	TxnCount int
}

// Graph is an adjacency-list + reverse-adjacency-list arena keyed by
// entity id. Node iteration order is the sorted id order, so every
// algorithm over the graph is deterministic.
type Graph struct {
	nodes map[string]*Node
	out   map[string][]*Edge
	in    map[string][]*Edge
	ids   []string // sorted; rebuilt lazily
	dirty bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
	}
}

// EnsureNode adds a node with default attributes if absent and returns it.
func (g *Graph) EnsureNode(id string) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &Node{ID: id, Status: "active", Compliance: 50}
	g.nodes[id] = n
	g.dirty = true
	return n
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// AddEdge inserts a directed edge, creating endpoints as needed.
func (g *Graph) AddEdge(from, to string, weight float64, txnCount int) {
	g.EnsureNode(from)
	g.EnsureNode(to)
	e := &Edge{From: from, To: to, Weight: weight, TxnCount: txnCount}
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
}

// EdgeBetween returns the edge from→to, or nil if none exists.
func (g *Graph) EdgeBetween(from, to string) *Edge {
	for _, e := range g.out[from] {
		if e.To == to {
			return e
		}
	}
	return nil
}

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	if g.dirty || len(g.ids) != len(g.nodes) {
		g.ids = g.ids[:0]
		for id := range g.nodes {
			g.ids = append(g.ids, id)
		}
		sort.Strings(g.ids)
		g.dirty = false
	}
	return g.ids
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	c := 0
	for _, es := range g.out {
		c += len(es)
	}
	return c
}

// OutEdges returns the outgoing edges of a node.
func (g *Graph) OutEdges(id string) []*Edge { return g.out[id] }

// InEdges returns the incoming edges of a node.
func (g *Graph) InEdges(id string) []*Edge { return g.in[id] }

// OutWeight returns the total outgoing edge weight of a node.
func (g *Graph) OutWeight(id string) float64 {
	w := 0.0
	for _, e := range g.out[id] {
		w += e.Weight
	}
	return w
}

// Neighbors returns the undirected-projection neighbor set of a node,
// excluding the node itself.
func (g *Graph) Neighbors(id string) map[string]bool {
	set := make(map[string]bool)
	for _, e := range g.out[id] {
		set[e.To] = true
	}
	for _, e := range g.in[id] {
		set[e.From] = true
	}
	delete(set, id)
	return set
}

// Density returns the directed graph density |E| / (|V|·(|V|-1)).
func (g *Graph) Density() float64 {
	n := len(g.nodes)
	if n < 2 {
		return 0
	}
	return float64(g.EdgeCount()) / float64(n*(n-1))
}
