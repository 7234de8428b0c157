// Package search ranks functions for a free-text query by fusing an external
// similarity ranking with call graph structure.
package search

import (
	"context"
	"sort"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
)

// Candidate is one entry of a similarity ranking.
type Candidate struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Searcher produces candidates for a query, best first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Result is one ranked function.
type Result struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	BaseScore float64 `json:"base_score"`
	Depth     int     `json:"depth"`
	// Summary is nil when the function is not in the graph or the graph is
	// empty.
	Summary *ContextSummary              `json:"context_summary,omitempty"`
	Context *callgraph.DependencyContext `json:"context,omitempty"`
	// Absorbed lists lower-ranked candidates already covered by this
	// result's ancestors or descendants.
	Absorbed []string `json:"absorbed,omitempty"`

	order int
}

// Engine fuses candidates with graph context. It holds no per-query state.
type Engine struct {
	weights Weights
}

// NewEngine creates an engine with the given weights.
func NewEngine(w Weights) *Engine {
	return &Engine{weights: w}
}

// Weights returns the engine's weights.
func (e *Engine) Weights() Weights { return e.weights }

// Fuse ranks candidates against g.
//
// Candidates are visited in the order given, which is assumed to be
// descending similarity. Each one that is in the graph gets its dependency
// context and a fused score of base * depthWeight * relationshipBoost. A
// candidate that already sits in the context of an earlier selected result is
// attached to that result instead of being emitted again. Selection stops
// once limit results exist. The output is ordered by fused score descending,
// then depth ascending, then candidate order.
//
// With an empty graph the candidates come back unchanged, truncated to limit.
func (e *Engine) Fuse(candidates []Candidate, g *callgraph.Graph, maxDepth, limit int) ([]Result, error) {
	if maxDepth < 0 {
		return nil, callgraph.ErrInvalidDepth
	}
	results := []Result{}
	if limit <= 0 {
		return results, nil
	}

	if g.Len() == 0 {
		for i, c := range candidates {
			if len(results) == limit {
				break
			}
			results = append(results, Result{ID: c.ID, Score: c.Score, BaseScore: c.Score, order: i})
		}
		return results, nil
	}

	seen := make(map[string]bool, len(candidates))
	for i, c := range candidates {
		if len(results) == limit {
			break
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		if owner := absorbingResult(results, c.ID); owner != nil {
			owner.Absorbed = append(owner.Absorbed, c.ID)
			continue
		}

		node, ok := g.Node(c.ID)
		if !ok {
			results = append(results, Result{ID: c.ID, Score: c.Score, BaseScore: c.Score, order: i})
			continue
		}
		dc, err := g.ContextFor(c.ID, maxDepth)
		if err != nil {
			return nil, err
		}
		score := c.Score * e.weights.DepthWeight(node.Depth) * e.weights.RelationshipBoost(len(node.Dependents()))
		results = append(results, Result{
			ID:        c.ID,
			Score:     score,
			BaseScore: c.Score,
			Depth:     node.Depth,
			Summary:   Summarize(g, dc, score),
			Context:   dc,
			order:     i,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.order < b.order
	})
	return results, nil
}

func absorbingResult(results []Result, id string) *Result {
	for i := range results {
		if results[i].Context != nil && results[i].Context.Contains(id) {
			return &results[i]
		}
	}
	return nil
}

// StatisticalCandidates ranks every function in g by graph structure alone,
// using the same depth and dependent weighting as Fuse. All candidates carry
// base score 1 so that fusing them reproduces this order. Used when no
// similarity source is available.
func (e *Engine) StatisticalCandidates(g *callgraph.Graph) []Candidate {
	ids := g.NodeIDs()
	type scored struct {
		id    string
		score float64
		depth int
	}
	all := make([]scored, 0, len(ids))
	for _, id := range ids {
		n, _ := g.Node(id)
		all = append(all, scored{
			id:    id,
			score: e.weights.DepthWeight(n.Depth) * e.weights.RelationshipBoost(len(n.Dependents())),
			depth: n.Depth,
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].depth < all[j].depth
	})

	out := make([]Candidate, len(all))
	for i, s := range all {
		out[i] = Candidate{ID: s.id, Score: 1}
	}
	return out
}
