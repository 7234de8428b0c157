// Package llm provides embedding clients for the vector similarity index.
package llm

import (
	"context"

	"github.com/efebarandurmaz/callsight/internal/observability"
)

// Embedder turns texts into embedding vectors.
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
}

// InstrumentedEmbedder counts embedding calls by outcome.
type InstrumentedEmbedder struct {
	inner   Embedder
	metrics *observability.Metrics
}

// Instrument wraps e so every call is recorded on m.
func Instrument(e Embedder, m *observability.Metrics) Embedder {
	if e == nil || m == nil {
		return e
	}
	return &InstrumentedEmbedder{inner: e, metrics: m}
}

func (i *InstrumentedEmbedder) Name() string { return i.inner.Name() }

func (i *InstrumentedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := i.inner.Embed(ctx, texts)
	i.metrics.RecordEmbedding(err)
	return vecs, err
}
