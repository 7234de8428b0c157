// Package vector indexes functions in a vector store and serves similarity
// candidates to the fused search engine.
package vector

import "context"

// Document is one function's embedding together with its payload.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// EnsureCollection creates the collection for vectors of size dim if it
	// does not exist yet.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert inserts or updates documents.
	Upsert(ctx context.Context, docs []Document) error
	// Search finds the top-k most similar documents, best first.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	// Close releases resources.
	Close() error
}
