package callgraph

import (
	"sort"
)

// Analyze recomputes roots, leaves, depths and cycle membership from the
// edges alone and returns g. It may be run again at any time with the same
// result. Analyze mutates g, so it must finish before the graph is shared.
//
// Depth is the shortest hop count from any root. Nodes that no root reaches
// only exist inside call cycles; they keep depth 0 and are reported through
// CycleOnlyComponents.
func Analyze(g *Graph) *Graph {
	if g == nil {
		return nil
	}

	g.rootIDs = nil
	g.leafIDs = nil
	for _, id := range g.order {
		n := g.nodes[id]
		n.Depth = 0
		if n.IsRoot() {
			g.rootIDs = append(g.rootIDs, id)
		}
		if n.IsLeaf() {
			g.leafIDs = append(g.leafIDs, id)
		}
	}
	sort.Strings(g.rootIDs)
	sort.Strings(g.leafIDs)

	reached := g.assignDepths()
	g.cycleOnly = g.unreachedComponents(reached)
	g.cyclicIDs, g.cycleOf = g.cyclicNodes()
	g.analyzed = true
	return g
}

// assignDepths runs a multi-source BFS from every root.
func (g *Graph) assignDepths() map[string]bool {
	reached := make(map[string]bool, len(g.nodes))
	queue := make([]string, 0, len(g.rootIDs))
	for _, id := range g.rootIDs {
		reached[id] = true
		queue = append(queue, id)
	}

	g.maxDepth = 0
	for head := 0; head < len(queue); head++ {
		n := g.nodes[queue[head]]
		if n.Depth > g.maxDepth {
			g.maxDepth = n.Depth
		}
		for _, dep := range n.dependencyIDs {
			if reached[dep] {
				continue
			}
			reached[dep] = true
			g.nodes[dep].Depth = n.Depth + 1
			queue = append(queue, dep)
		}
	}
	return reached
}

// unreachedComponents groups nodes no root reaches into weakly connected
// components using union-find over the edges among them.
func (g *Graph) unreachedComponents(reached map[string]bool) [][]string {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, id := range g.order {
		if reached[id] {
			continue
		}
		find(id)
		for _, dep := range g.nodes[id].dependencyIDs {
			if !reached[dep] {
				union(id, dep)
			}
		}
	}

	groups := make(map[string][]string)
	for _, id := range g.order {
		if reached[id] {
			continue
		}
		r := find(id)
		groups[r] = append(groups[r], id)
	}

	components := make([][]string, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		components = append(components, members)
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})
	return components
}

// cyclicNodes returns every node in a strongly connected component of size
// greater than one, plus every self-recursive node, and the component index
// of each. Tarjan's algorithm runs
// with an explicit stack so deep call chains cannot overflow the goroutine
// stack.
func (g *Graph) cyclicNodes() ([]string, map[string]int) {
	var (
		next    int
		sccs    int
		cycleOf = make(map[string]int)
		index   = make(map[string]int, len(g.nodes))
		low     = make(map[string]int, len(g.nodes))
		onStack = make(map[string]bool)
		stack   []string
		cyclic  []string
	)

	type frame struct {
		id   string
		edge int
	}

	visit := func(id string) {
		index[id] = next
		low[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true
	}

	for _, start := range g.order {
		if _, seen := index[start]; seen {
			continue
		}
		visit(start)
		calls := []frame{{id: start}}

		for len(calls) > 0 {
			top := &calls[len(calls)-1]
			deps := g.nodes[top.id].dependencyIDs
			if top.edge < len(deps) {
				w := deps[top.edge]
				top.edge++
				if _, seen := index[w]; !seen {
					visit(w)
					calls = append(calls, frame{id: w})
				} else if onStack[w] && index[w] < low[top.id] {
					low[top.id] = index[w]
				}
				continue
			}

			v := top.id
			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].id
				if low[v] < low[parent] {
					low[parent] = low[v]
				}
			}
			if low[v] != index[v] {
				continue
			}

			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 || g.nodes[v].Calls(v) {
				for _, w := range component {
					cycleOf[w] = sccs
				}
				sccs++
				cyclic = append(cyclic, component...)
			}
		}
	}

	sort.Strings(cyclic)
	return cyclic, cycleOf
}
