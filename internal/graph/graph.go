// Package graph implements the dependency resolver: it turns candidate
// dependency hints into validated RoadmapDependency edges, detects cycles
// among precedence edges, and produces the topological sequence order the
// capacity scheduler processes items in.
//
// Cycles are a data-quality warning, not a failure. All edges are kept; the
// resolver only flags which edges are advisory so the scheduler can ignore
// them as hard precedence constraints.
package graph

import (
	"fmt"
	"sort"

	"github.com/planora/roadmap/internal/types"
)

// CandidateEdge is a scored dependency suggestion supplied by a collaborator
// (explicit links, heuristics, a human). The resolver treats candidates as
// advisory input, never as ground truth: edges referencing unknown items are
// dropped with a warning.
type CandidateEdge struct {
	FromItemID string
	ToItemID   string // empty for external prerequisites
	Type       types.DependencyType
	Confidence float64
	Rationale  string
	IsManual   bool
}

// Result is the resolver output for one session.
type Result struct {
	// Dependencies holds every validated edge, including cyclic ones.
	Dependencies []*types.RoadmapDependency

	// HasCycles is set when precedence edges form at least one cycle among
	// internal items. CycleItems lists the member item IDs, sorted.
	HasCycles  bool
	CycleItems []string

	// Order lists item IDs in sequence order: topological over non-cyclic
	// precedence edges, ties broken by priority descending then original
	// insertion order.
	Order []string

	// Warnings lists dropped candidates and other non-fatal findings.
	Warnings []string

	cyclic map[edgeKey]bool
}

type edgeKey struct {
	from string
	to   string
}

// IsAdvisory reports whether the precedence edge from → to sits inside a
// cycle. Advisory edges are persisted but never enforced by the scheduler or
// the override validator.
func (r *Result) IsAdvisory(from, to string) bool {
	return r.cyclic[edgeKey{from, to}]
}

// HardPredecessors returns, for each item, the IDs of items that must
// complete before it starts: sources of non-cyclic internal precedence edges
// pointing at it.
func (r *Result) HardPredecessors() map[string][]string {
	preds := make(map[string][]string)
	for _, d := range r.Dependencies {
		if !d.DependencyType.IsPrecedence() || !d.IsInternal() {
			continue
		}
		if r.IsAdvisory(d.FromItemID, d.ToItemID) {
			continue
		}
		preds[d.ToItemID] = append(preds[d.ToItemID], d.FromItemID)
	}
	return preds
}

// Resolve validates candidate edges against the item set, detects cycles,
// and computes the sequence order. It also assigns SequenceOrder onto the
// passed items. Items are expected in their original insertion order.
func Resolve(sessionID string, items []*types.RoadmapItem, candidates []CandidateEdge) (*Result, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID is required")
	}

	index := make(map[string]int, len(items)) // item ID -> insertion position
	for pos, it := range items {
		index[it.ID] = pos
	}

	res := &Result{cyclic: make(map[edgeKey]bool)}

	// Validate and dedupe candidates, preserving first-seen order.
	seen := make(map[string]bool)
	for _, c := range candidates {
		if _, ok := index[c.FromItemID]; !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("dropped edge from unknown item %s", c.FromItemID))
			continue
		}
		if c.ToItemID != "" {
			if _, ok := index[c.ToItemID]; !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("dropped edge to unknown item %s", c.ToItemID))
				continue
			}
		}
		dep := &types.RoadmapDependency{
			ID:             types.NewID(types.PrefixDependency),
			SessionID:      sessionID,
			FromItemID:     c.FromItemID,
			ToItemID:       c.ToItemID,
			DependencyType: c.Type,
			Confidence:     c.Confidence,
			Rationale:      c.Rationale,
			IsManual:       c.IsManual,
			IsValidated:    true,
		}
		dep.SetDefaults()
		if err := dep.Validate(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("dropped invalid edge %s -> %s: %v", c.FromItemID, c.ToItemID, err))
			continue
		}
		key := c.FromItemID + "|" + string(c.Type) + "|" + c.ToItemID
		if seen[key] {
			continue
		}
		seen[key] = true
		res.Dependencies = append(res.Dependencies, dep)
	}

	// Adjacency restricted to internal precedence edges. External
	// prerequisites never participate in cycle detection.
	adj := make(map[string][]string, len(items))
	for _, d := range res.Dependencies {
		if d.DependencyType.IsPrecedence() && d.IsInternal() {
			adj[d.FromItemID] = append(adj[d.FromItemID], d.ToItemID)
		}
	}

	markCycles(items, adj, res)
	res.Order = sequence(items, adj, index, res)

	for seq, id := range res.Order {
		items[index[id]].SequenceOrder = seq
	}
	return res, nil
}

// Analyze re-evaluates cycle membership over an already-persisted edge set,
// without re-deriving edges or sequence order. The manual override validator
// uses it to honor the same advisory semantics the resolver applied.
func Analyze(items []*types.RoadmapItem, deps []*types.RoadmapDependency) *Result {
	res := &Result{Dependencies: deps, cyclic: make(map[edgeKey]bool)}
	adj := make(map[string][]string, len(items))
	for _, d := range deps {
		if d.DependencyType.IsPrecedence() && d.IsInternal() {
			adj[d.FromItemID] = append(adj[d.FromItemID], d.ToItemID)
		}
	}
	markCycles(items, adj, res)
	return res
}

// markCycles finds strongly connected components over precedence edges with
// an iterative Tarjan DFS (index/lowlink with explicit recursion stack).
// Every edge whose endpoints share a multi-node component is flagged cyclic.
func markCycles(items []*types.RoadmapItem, adj map[string][]string, res *Result) {
	const unvisited = -1

	idx := make(map[string]int, len(items))
	low := make(map[string]int, len(items))
	onStack := make(map[string]bool, len(items))
	comp := make(map[string]int, len(items))
	for _, it := range items {
		idx[it.ID] = unvisited
	}

	var stack []string
	next := 0
	compCount := 0

	type frame struct {
		node string
		edge int
	}

	for _, root := range items {
		if idx[root.ID] != unvisited {
			continue
		}
		frames := []frame{{node: root.ID}}
		idx[root.ID] = next
		low[root.ID] = next
		next++
		stack = append(stack, root.ID)
		onStack[root.ID] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.edge < len(adj[f.node]) {
				child := adj[f.node][f.edge]
				f.edge++
				if idx[child] == unvisited {
					idx[child] = next
					low[child] = next
					next++
					stack = append(stack, child)
					onStack[child] = true
					frames = append(frames, frame{node: child})
				} else if onStack[child] {
					if idx[child] < low[f.node] {
						low[f.node] = idx[child]
					}
				}
				continue
			}

			// Node finished: pop component root if applicable.
			if low[f.node] == idx[f.node] {
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					comp[top] = compCount
					if top == f.node {
						break
					}
				}
				compCount++
			}
			done := f.node
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if low[done] < low[parent] {
					low[parent] = low[done]
				}
			}
		}
	}

	compSize := make(map[int]int)
	for _, c := range comp {
		compSize[c]++
	}

	members := make(map[string]bool)
	for _, d := range res.Dependencies {
		if !d.DependencyType.IsPrecedence() || !d.IsInternal() {
			continue
		}
		if comp[d.FromItemID] == comp[d.ToItemID] && compSize[comp[d.FromItemID]] > 1 {
			res.cyclic[edgeKey{d.FromItemID, d.ToItemID}] = true
			members[d.FromItemID] = true
			members[d.ToItemID] = true
		}
	}
	if len(members) > 0 {
		res.HasCycles = true
		for id := range members {
			res.CycleItems = append(res.CycleItems, id)
		}
		sort.Strings(res.CycleItems)
	}
}

// sequence runs Kahn's algorithm over the non-cyclic precedence edges.
// The ready set is drained highest priority first, then original insertion
// order, which makes the output deterministic for identical input.
func sequence(items []*types.RoadmapItem, adj map[string][]string, index map[string]int, res *Result) []string {
	indeg := make(map[string]int, len(items))
	for _, it := range items {
		indeg[it.ID] = 0
	}
	succ := make(map[string][]string, len(items))
	for from, tos := range adj {
		for _, to := range tos {
			if res.cyclic[edgeKey{from, to}] {
				continue // advisory: does not constrain order
			}
			succ[from] = append(succ[from], to)
			indeg[to]++
		}
	}

	var ready []string
	for _, it := range items {
		if indeg[it.ID] == 0 {
			ready = append(ready, it.ID)
		}
	}

	priority := func(id string) int { return items[index[id]].Priority }

	order := make([]string, 0, len(items))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			a, b := ready[i], ready[best]
			if priority(a) > priority(b) || (priority(a) == priority(b) && index[a] < index[b]) {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for _, to := range succ[id] {
			indeg[to]--
			if indeg[to] == 0 {
				ready = append(ready, to)
			}
		}
	}
	return order
}
