package search

import (
	"sort"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
)

// ContextSummary condenses a dependency context for downstream consumers.
type ContextSummary struct {
	PrimaryFunction  string   `json:"primary_function"`
	AncestorCount    int      `json:"ancestor_count"`
	DescendantCount  int      `json:"descendant_count"`
	GraphDepth       int      `json:"graph_depth"`
	TotalFunctions   int      `json:"total_functions"`
	CallPathCount    int      `json:"call_paths_count"`
	RelevanceScore   float64  `json:"relevance_score"`
	FilesInvolved    []string `json:"files_involved"`
	ModulesInvolved  []string `json:"modules_involved"`
	HasErrorHandling bool     `json:"has_error_handling"`
	AsyncFunctions   int      `json:"async_functions"`
	PathsTruncated   bool     `json:"paths_truncated,omitempty"`
}

// Summarize builds the summary for a context over g. Files, modules and the
// error-handling and async figures cover the target plus every related node.
func Summarize(g *callgraph.Graph, dc *callgraph.DependencyContext, score float64) *ContextSummary {
	s := &ContextSummary{
		AncestorCount:   len(dc.Ancestors),
		DescendantCount: len(dc.Descendants),
		CallPathCount:   len(dc.Paths),
		RelevanceScore:  score,
		PathsTruncated:  dc.Truncated,
	}
	if n, ok := g.Node(dc.Target); ok {
		s.GraphDepth = n.Depth
	}

	ids := make([]string, 0, 1+len(dc.Ancestors)+len(dc.Descendants))
	ids = append(ids, dc.Target)
	ids = append(ids, dc.AncestorIDs()...)
	ids = append(ids, dc.DescendantIDs()...)
	s.TotalFunctions = len(ids)

	files := make(map[string]struct{})
	modules := make(map[string]struct{})
	for i, id := range ids {
		r, ok := g.Record(id)
		if !ok {
			continue
		}
		if i == 0 {
			s.PrimaryFunction = r.Name
		}
		if r.FilePath != "" {
			files[r.FilePath] = struct{}{}
		}
		if r.Module != "" {
			modules[r.Module] = struct{}{}
		}
		if r.HasErrorHandling {
			s.HasErrorHandling = true
		}
		if r.IsAsync {
			s.AsyncFunctions++
		}
	}
	s.FilesInvolved = setToSorted(files)
	s.ModulesInvolved = setToSorted(modules)
	return s
}

func setToSorted(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
