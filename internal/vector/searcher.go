package vector

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/callsight/internal/llm"
	"github.com/efebarandurmaz/callsight/internal/search"
)

// Searcher answers similarity queries by embedding the query and searching
// the vector store.
type Searcher struct {
	embedder llm.Embedder
	repo     Repository
}

// NewSearcher creates a Searcher.
func NewSearcher(embedder llm.Embedder, repo Repository) *Searcher {
	return &Searcher{embedder: embedder, repo: repo}
}

// Search returns up to limit candidates, best first. Points without a
// function ID in their payload are skipped.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]search.Candidate, error) {
	if limit <= 0 {
		return []search.Candidate{}, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	hits, err := s.repo.Search(ctx, vecs[0], limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	seen := make(map[string]bool, len(hits))
	out := make([]search.Candidate, 0, len(hits))
	for _, h := range hits {
		id, _ := h.Metadata[KeyFunctionID].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, search.Candidate{ID: id, Score: float64(h.Score)})
	}
	return out, nil
}

var _ search.Searcher = (*Searcher)(nil)
