// Package callgraph builds a directed function call graph from extracted
// function records and answers structural queries against it.
//
// A Graph is produced by Builder.Build, annotated once by Analyze and is
// read-only from then on. Any change to the underlying records means a full
// rebuild; graphs are never patched. A finished graph may be queried from
// many goroutines at once.
package callgraph

import (
	"sort"

	"github.com/efebarandurmaz/callsight/internal/ir"
)

// Node is one function in the call graph.
type Node struct {
	ID string
	// Depth is the shortest hop distance from the nearest root. Only
	// meaningful after Analyze; nodes not reachable from any root keep 0.
	Depth int

	dependencies map[string]struct{}
	dependents   map[string]struct{}

	// sorted views, fixed once edges are final
	dependencyIDs []string
	dependentIDs  []string
}

func newNode(id string) *Node {
	return &Node{
		ID:           id,
		dependencies: make(map[string]struct{}),
		dependents:   make(map[string]struct{}),
	}
}

// Dependencies returns the IDs this node calls, sorted. Do not modify.
func (n *Node) Dependencies() []string { return n.dependencyIDs }

// Dependents returns the IDs that call this node, sorted. Do not modify.
func (n *Node) Dependents() []string { return n.dependentIDs }

// Calls reports whether n has an edge to id.
func (n *Node) Calls(id string) bool {
	_, ok := n.dependencies[id]
	return ok
}

// CalledBy reports whether id has an edge to n.
func (n *Node) CalledBy(id string) bool {
	_, ok := n.dependents[id]
	return ok
}

// IsRoot reports whether nothing in the graph calls n.
func (n *Node) IsRoot() bool { return len(n.dependents) == 0 }

// IsLeaf reports whether n calls nothing in the graph.
func (n *Node) IsLeaf() bool { return len(n.dependencies) == 0 }

// Graph is a call graph over one fixed record set.
type Graph struct {
	nodes   map[string]*Node
	order   []string // node IDs in canonical record order
	records *ir.RecordStore

	rootIDs  []string
	leafIDs  []string
	maxDepth int

	cycleOnly [][]string
	cyclicIDs []string
	// cycleOf maps each cyclic node to the index of its strongly connected
	// component.
	cycleOf map[string]int

	edgeCount int
	build     BuildStats
	analyzed  bool
}

// BuildStats counts what happened to call sites during edge resolution.
// Unresolved and excluded calls are expected and never errors.
type BuildStats struct {
	CallSites       int `json:"call_sites"`
	ResolvedCalls   int `json:"resolved_calls"`
	UnresolvedCalls int `json:"unresolved_calls"`
	ExcludedCalls   int `json:"excluded_calls"`
	AmbiguousCalls  int `json:"ambiguous_calls"`
	SelfLoops       int `json:"self_loops"`
}

// Stats is a point-in-time summary of a built graph.
type Stats struct {
	TotalNodes          int `json:"total_nodes"`
	RootCount           int `json:"root_count"`
	LeafCount           int `json:"leaf_count"`
	MaxDepth            int `json:"max_depth"`
	EdgeCount           int `json:"edge_count"`
	IsolatedNodes       int `json:"isolated_nodes"`
	CycleOnlyComponents int `json:"cycle_only_components"`
	CycleOnlyNodes      int `json:"cycle_only_nodes"`
	CyclicNodes         int `json:"cyclic_nodes"`
	BuildStats
}

func newGraph(records *ir.RecordStore) *Graph {
	return &Graph{
		nodes:   make(map[string]*Node, records.Len()),
		records: records,
	}
}

// Empty returns a graph with no nodes.
func Empty() *Graph {
	g := newGraph(ir.NewRecordStore(nil))
	g.analyzed = true
	return g
}

func (g *Graph) addEdge(from, to string) bool {
	caller, callee := g.nodes[from], g.nodes[to]
	if caller == nil || callee == nil {
		return false
	}
	if _, exists := caller.dependencies[to]; exists {
		return false
	}
	caller.dependencies[to] = struct{}{}
	callee.dependents[from] = struct{}{}
	return true
}

// finalizeEdges freezes the sorted adjacency views and the edge count.
func (g *Graph) finalizeEdges() {
	g.edgeCount = 0
	for _, n := range g.nodes {
		n.dependencyIDs = sortedKeys(n.dependencies)
		n.dependentIDs = sortedKeys(n.dependents)
		g.edgeCount += len(n.dependencies)
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}

// Node returns the node for id.
func (g *Graph) Node(id string) (*Node, bool) {
	if g == nil {
		return nil, false
	}
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns every node ID in canonical record order.
func (g *Graph) NodeIDs() []string {
	if g == nil {
		return nil
	}
	return g.order
}

// Record returns the function record behind a node.
func (g *Graph) Record(id string) (*ir.FunctionRecord, bool) {
	if g == nil {
		return nil, false
	}
	return g.records.Get(id)
}

// Records returns the record store the graph was built from.
func (g *Graph) Records() *ir.RecordStore {
	if g == nil {
		return nil
	}
	return g.records
}

// FindByName returns the IDs of every function with the given bare name.
func (g *Graph) FindByName(name string) []string {
	if g == nil {
		return nil
	}
	var ids []string
	for _, r := range g.records.ByName(name) {
		if _, ok := g.nodes[r.ID]; ok {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RootIDs returns functions with no callers, sorted.
func (g *Graph) RootIDs() []string { return g.rootIDs }

// LeafIDs returns functions that call nothing in the graph, sorted.
func (g *Graph) LeafIDs() []string { return g.leafIDs }

// MaxDepth is the largest node depth after analysis.
func (g *Graph) MaxDepth() int { return g.maxDepth }

// CycleOnlyComponents returns groups of nodes that no root reaches. Each group
// is sorted and groups are ordered by their first ID.
func (g *Graph) CycleOnlyComponents() [][]string { return g.cycleOnly }

// CyclicIDs returns every node that sits on at least one directed cycle,
// including self-recursive functions, sorted.
func (g *Graph) CyclicIDs() []string { return g.cyclicIDs }

// EdgeCount returns the number of resolved call edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// Analyzed reports whether Analyze has run on this graph.
func (g *Graph) Analyzed() bool { return g != nil && g.analyzed }

// BuildStats returns the call-site counters collected while building.
func (g *Graph) BuildStats() BuildStats { return g.build }

// Stats returns a snapshot of the graph-wide statistics.
func (g *Graph) Stats() Stats {
	if g == nil {
		return Stats{}
	}
	s := Stats{
		TotalNodes:  len(g.nodes),
		RootCount:   len(g.rootIDs),
		LeafCount:   len(g.leafIDs),
		MaxDepth:    g.maxDepth,
		EdgeCount:   g.edgeCount,
		CyclicNodes: len(g.cyclicIDs),
		BuildStats:  g.build,
	}
	for _, n := range g.nodes {
		if n.IsRoot() && n.IsLeaf() {
			s.IsolatedNodes++
		}
	}
	s.CycleOnlyComponents = len(g.cycleOnly)
	for _, c := range g.cycleOnly {
		s.CycleOnlyNodes += len(c)
	}
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
