package callgraph

import (
	"sort"
)

// MaxCallPaths caps how many root-to-target paths ContextFor enumerates.
// Dense graphs can have exponentially many; once the cap is hit the context
// is marked Truncated.
const MaxCallPaths = 256

// Related is a node reached from the target together with its hop distance.
type Related struct {
	ID       string `json:"id"`
	Distance int    `json:"distance"`
}

// DependencyContext is the bounded neighbourhood of one function.
type DependencyContext struct {
	Target   string `json:"target"`
	MaxDepth int    `json:"max_depth"`
	// Ancestors are callers up to MaxDepth hops away, sorted by distance then ID.
	Ancestors []Related `json:"ancestors"`
	// Descendants are callees up to MaxDepth hops away, sorted by distance then ID.
	Descendants []Related `json:"descendants"`
	// Paths run from a root to Target, both inclusive, with at most
	// MaxDepth edges each. Ordered by root ID, then lexicographically.
	Paths [][]string `json:"paths"`
	// Truncated is set when path enumeration stopped at MaxCallPaths.
	Truncated bool `json:"truncated,omitempty"`
}

// AncestorIDs returns the IDs of all ancestors.
func (c *DependencyContext) AncestorIDs() []string { return relatedIDs(c.Ancestors) }

// DescendantIDs returns the IDs of all descendants.
func (c *DependencyContext) DescendantIDs() []string { return relatedIDs(c.Descendants) }

// Contains reports whether id is an ancestor or descendant of the target.
func (c *DependencyContext) Contains(id string) bool {
	for _, r := range c.Ancestors {
		if r.ID == id {
			return true
		}
	}
	for _, r := range c.Descendants {
		if r.ID == id {
			return true
		}
	}
	return false
}

func relatedIDs(rs []Related) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

// ContextFor returns the callers, callees and root call paths of targetID
// within maxDepth hops. The target itself never appears among its own
// ancestors or descendants, even when it is part of a cycle.
//
// The graph must have been analyzed; roots are taken from the last Analyze.
func (g *Graph) ContextFor(targetID string, maxDepth int) (*DependencyContext, error) {
	if maxDepth < 0 {
		return nil, ErrInvalidDepth
	}
	if _, ok := g.Node(targetID); !ok {
		return nil, &NotFoundError{ID: targetID}
	}

	dc := &DependencyContext{
		Target:   targetID,
		MaxDepth: maxDepth,
	}
	dc.Descendants = g.walk(targetID, maxDepth, (*Node).Dependencies)
	dc.Ancestors = g.walk(targetID, maxDepth, (*Node).Dependents)
	dc.Paths, dc.Truncated = g.rootPaths(targetID, maxDepth)
	return dc, nil
}

// walk is a breadth-first traversal bounded by maxDepth hops. The visited set
// makes it terminate on cycles and gives each node its shortest distance.
func (g *Graph) walk(start string, maxDepth int, next func(*Node) []string) []Related {
	out := []Related{}
	if maxDepth == 0 {
		return out
	}
	dist := map[string]int{start: 0}
	queue := []string{start}
	for head := 0; head < len(queue); head++ {
		id := queue[head]
		d := dist[id]
		if d == maxDepth {
			continue
		}
		for _, nb := range next(g.nodes[id]) {
			if _, seen := dist[nb]; seen {
				continue
			}
			dist[nb] = d + 1
			queue = append(queue, nb)
			out = append(out, Related{ID: nb, Distance: d + 1})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// rootPaths enumerates simple paths from every root to target with at most
// maxDepth edges. A reverse BFS from the target first records how far each
// node is from it, so branches that cannot arrive within the remaining
// budget are never entered.
func (g *Graph) rootPaths(target string, maxDepth int) ([][]string, bool) {
	paths := [][]string{}
	if maxDepth == 0 {
		return paths, false
	}

	toTarget := map[string]int{target: 0}
	queue := []string{target}
	for head := 0; head < len(queue); head++ {
		id := queue[head]
		d := toTarget[id]
		if d == maxDepth {
			continue
		}
		for _, caller := range g.nodes[id].dependentIDs {
			if _, seen := toTarget[caller]; !seen {
				toTarget[caller] = d + 1
				queue = append(queue, caller)
			}
		}
	}

	for _, root := range g.rootIDs {
		if root == target {
			continue
		}
		if d, ok := toTarget[root]; !ok || d > maxDepth {
			continue
		}

		path := []string{root}
		onPath := map[string]bool{root: true}
		stack := []pathFrame{{id: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.id == target {
				if len(paths) == MaxCallPaths {
					return paths, true
				}
				p := make([]string, len(path))
				copy(p, path)
				paths = append(paths, p)
				stack, path = popFrame(stack, path, onPath)
				continue
			}

			hops := len(path) - 1
			deps := g.nodes[top.id].dependencyIDs
			advanced := false
			for top.edge < len(deps) {
				w := deps[top.edge]
				top.edge++
				rest, ok := toTarget[w]
				if !ok || onPath[w] || hops+1+rest > maxDepth {
					continue
				}
				onPath[w] = true
				path = append(path, w)
				stack = append(stack, pathFrame{id: w})
				advanced = true
				break
			}
			if !advanced {
				stack, path = popFrame(stack, path, onPath)
			}
		}
	}
	return paths, false
}

type pathFrame struct {
	id   string
	edge int // next dependency index to try
}

func popFrame(stack []pathFrame, path []string, onPath map[string]bool) ([]pathFrame, []string) {
	last := path[len(path)-1]
	delete(onPath, last)
	return stack[:len(stack)-1], path[:len(path)-1]
}
