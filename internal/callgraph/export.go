package callgraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExportedNode is the serialized form of a node.
type ExportedNode struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Module       string   `json:"module"`
	FilePath     string   `json:"file_path"`
	Depth        int      `json:"depth"`
	Root         bool     `json:"root,omitempty"`
	Leaf         bool     `json:"leaf,omitempty"`
	Cyclic       bool     `json:"cyclic,omitempty"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

// ExportedGraph is the serialized form of a graph.
type ExportedGraph struct {
	Stats     Stats          `json:"stats"`
	RootIDs   []string       `json:"root_ids"`
	LeafIDs   []string       `json:"leaf_ids"`
	CycleOnly [][]string     `json:"cycle_only_components"`
	Nodes     []ExportedNode `json:"nodes"`
}

// Export flattens g into a serializable value, nodes in canonical order.
func Export(g *Graph) ExportedGraph {
	cyclic := make(map[string]bool, len(g.cyclicIDs))
	for _, id := range g.cyclicIDs {
		cyclic[id] = true
	}
	out := ExportedGraph{
		Stats:     g.Stats(),
		RootIDs:   nonNil(g.rootIDs),
		LeafIDs:   nonNil(g.leafIDs),
		CycleOnly: g.cycleOnly,
		Nodes:     make([]ExportedNode, 0, len(g.order)),
	}
	if out.CycleOnly == nil {
		out.CycleOnly = [][]string{}
	}
	for _, id := range g.order {
		n := g.nodes[id]
		en := ExportedNode{
			ID:           id,
			Depth:        n.Depth,
			Root:         n.IsRoot(),
			Leaf:         n.IsLeaf(),
			Cyclic:       cyclic[id],
			Dependencies: nonNil(n.dependencyIDs),
			Dependents:   nonNil(n.dependentIDs),
		}
		if r, ok := g.records.Get(id); ok {
			en.Name, en.Module, en.FilePath = r.Name, r.Module, r.FilePath
		}
		out.Nodes = append(out.Nodes, en)
	}
	return out
}

// ExportJSON serializes the graph to indented JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(Export(g), "", "  ")
}

// ExportDOT generates a Graphviz DOT representation of the graph, one
// cluster per module.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\" shape=box style=filled];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	cyclic := make(map[string]bool, len(g.cyclicIDs))
	for _, id := range g.cyclicIDs {
		cyclic[id] = true
	}

	modules, byModule := g.groupByModule()
	for i, mod := range modules {
		// Cluster IDs are positional: distinct modules can sanitize alike.
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&b, "    label=%q;\n", mod)
		b.WriteString("    style=dashed;\n")
		b.WriteString("    color=\"#58a6ff\";\n")
		for _, id := range byModule[mod] {
			n := g.nodes[id]
			fmt.Fprintf(&b, "    %q [label=%q fillcolor=\"%s\"];\n",
				id, g.label(id), nodeColor(n, cyclic[id]))
		}
		b.WriteString("  }\n\n")
	}

	for _, id := range g.order {
		for _, dep := range g.nodes[id].dependencyIDs {
			color := "#3fb950"
			if g.onCycle(id, dep) {
				color = "#f85149"
			}
			fmt.Fprintf(&b, "  %q -> %q [color=\"%s\"];\n", id, dep, color)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid flowchart of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	ids := g.mermaidIDs()
	modules, byModule := g.groupByModule()
	for i, mod := range modules {
		fmt.Fprintf(&b, "  subgraph mod_%d [%q]\n", i, mod)
		for _, id := range byModule[mod] {
			n := g.nodes[id]
			shape := "[\"%s\"]"
			switch {
			case n.IsRoot():
				shape = "([\"%s\"])"
			case n.IsLeaf():
				shape = "[[\"%s\"]]"
			}
			fmt.Fprintf(&b, "    %s"+shape+"\n", ids[id], g.label(id))
		}
		b.WriteString("  end\n")
	}

	for _, id := range g.order {
		for _, dep := range g.nodes[id].dependencyIDs {
			fmt.Fprintf(&b, "  %s --> %s\n", ids[id], ids[dep])
		}
	}
	return b.String()
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(g *Graph) string {
	s := g.Stats()
	var b strings.Builder
	b.WriteString("Call Graph Statistics\n")
	b.WriteString("=====================\n\n")
	fmt.Fprintf(&b, "Functions:   %d\n", s.TotalNodes)
	fmt.Fprintf(&b, "  Roots:     %d\n", s.RootCount)
	fmt.Fprintf(&b, "  Leaves:    %d\n", s.LeafCount)
	fmt.Fprintf(&b, "  Isolated:  %d\n", s.IsolatedNodes)
	fmt.Fprintf(&b, "Edges:       %d\n", s.EdgeCount)
	fmt.Fprintf(&b, "Max Depth:   %d\n", s.MaxDepth)
	fmt.Fprintf(&b, "\nCall sites:  %d\n", s.CallSites)
	fmt.Fprintf(&b, "  Resolved:  %d (%d ambiguous, %d self-calls)\n", s.ResolvedCalls, s.AmbiguousCalls, s.SelfLoops)
	fmt.Fprintf(&b, "  Excluded:  %d\n", s.ExcludedCalls)
	fmt.Fprintf(&b, "  Unresolved: %d\n", s.UnresolvedCalls)

	if s.CyclicNodes > 0 {
		fmt.Fprintf(&b, "\nFunctions on call cycles: %d\n", s.CyclicNodes)
	}
	if len(g.cycleOnly) > 0 {
		fmt.Fprintf(&b, "\nUnreachable cycle groups: %d\n", len(g.cycleOnly))
		for i, c := range g.cycleOnly {
			fmt.Fprintf(&b, "  %d: %s\n", i+1, strings.Join(c, ", "))
		}
	}
	return b.String()
}

func (g *Graph) groupByModule() ([]string, map[string][]string) {
	byModule := make(map[string][]string)
	for _, id := range g.order {
		mod := ""
		if r, ok := g.records.Get(id); ok {
			mod = r.Module
		}
		byModule[mod] = append(byModule[mod], id)
	}
	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	return modules, byModule
}

// mermaidIDs assigns each node a Mermaid-safe identifier, suffixing IDs that
// would otherwise collide after sanitizing.
func (g *Graph) mermaidIDs() map[string]string {
	ids := make(map[string]string, len(g.order))
	taken := make(map[string]bool, len(g.order))
	for _, id := range g.order {
		base := sanitizeID(id)
		mid := base
		for n := 2; taken[mid]; n++ {
			mid = fmt.Sprintf("%s_%d", base, n)
		}
		taken[mid] = true
		ids[id] = mid
	}
	return ids
}

// onCycle reports whether the edge from -> to lies on a call cycle, which
// holds exactly when both ends share a strongly connected component.
func (g *Graph) onCycle(from, to string) bool {
	a, ok := g.cycleOf[from]
	if !ok {
		return false
	}
	b, ok := g.cycleOf[to]
	return ok && a == b
}

func (g *Graph) label(id string) string {
	if r, ok := g.records.Get(id); ok && r.Name != "" {
		return r.Name
	}
	return id
}

func nodeColor(n *Node, cyclic bool) string {
	switch {
	case cyclic:
		return "#f85149"
	case n.IsRoot():
		return "#1f6feb"
	case n.IsLeaf():
		return "#8957e5"
	default:
		return "#238636"
	}
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
