package graph

import "strings"

// CycleOptions bounds simple-cycle enumeration. The caps are correctness
// requirements, not tuning: dense graphs have exponentially many simple
// cycles and enumeration must terminate regardless of input shape.
type CycleOptions struct {
	MinLength int
	MaxLength int
	MaxCycles int // hard cap on cycles collected
	MaxSteps  int // hard cap on DFS steps across the whole enumeration
}

// DefaultCycleOptions mirrors the engine defaults: rings of 3-8 entities,
// at most 200 cycles.
func DefaultCycleOptions() CycleOptions {
	return CycleOptions{MinLength: 3, MaxLength: 8, MaxCycles: 200, MaxSteps: 2_000_000}
}

// CycleResult holds enumerated cycles. Truncated means a cap was hit and
// the cycle list is a lower bound, not exhaustive.
type CycleResult struct {
	Cycles    [][]string
	Truncated bool
}

// SimpleCycles enumerates simple directed cycles with explicit stack-based
// DFS. From each start node s (ascending id order) it explores only nodes
// with id > s, so every cycle is discovered exactly once, already rotated
// to begin at its smallest member.
func SimpleCycles(g *Graph, opts CycleOptions) *CycleResult {
	if opts.MaxCycles <= 0 {
		opts.MaxCycles = 200
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 2_000_000
	}
	if opts.MinLength < 1 {
		opts.MinLength = 1
	}

	type frame struct {
		node string
		next int
	}

	result := &CycleResult{}
	steps := 0

	for _, s := range g.NodeIDs() {
		if result.Truncated {
			break
		}
		stack := []frame{{node: s}}
		onPath := map[string]bool{s: true}
		path := []string{s}

		for len(stack) > 0 {
			steps++
			if steps > opts.MaxSteps || len(result.Cycles) >= opts.MaxCycles {
				result.Truncated = true
				break
			}

			top := &stack[len(stack)-1]
			edges := g.out[top.node]
			if top.next >= len(edges) {
				delete(onPath, top.node)
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			target := edges[top.next].To
			top.next++

			if target == s {
				if len(path) >= opts.MinLength && (opts.MaxLength == 0 || len(path) <= opts.MaxLength) {
					cycle := make([]string, len(path))
					copy(cycle, path)
					result.Cycles = append(result.Cycles, cycle)
				}
				continue
			}
			// Only descend into nodes greater than the start to avoid
			// re-reporting rotations, and never revisit the current path.
			if target < s || onPath[target] {
				continue
			}
			if opts.MaxLength > 0 && len(path) >= opts.MaxLength {
				continue
			}
			stack = append(stack, frame{node: target})
			onPath[target] = true
			path = append(path, target)
		}
	}

	return result
}

// Canonicalize rotates a cycle so its lexicographically smallest member
// comes first. Two rotations of the same ring canonicalize identically.
func Canonicalize(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	minIdx := 0
	for i, v := range cycle {
		if v < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[minIdx:]...)
	out = append(out, cycle[:minIdx]...)
	return out
}

// CycleKey returns a stable dedupe key for a canonicalized cycle.
func CycleKey(cycle []string) string {
	return strings.Join(Canonicalize(cycle), "|")
}
