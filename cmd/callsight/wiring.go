package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/config"
	"github.com/efebarandurmaz/callsight/internal/graph/neo4j"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/llm"
	"github.com/efebarandurmaz/callsight/internal/llm/openai"
	"github.com/efebarandurmaz/callsight/internal/observability"
	"github.com/efebarandurmaz/callsight/internal/search"
	"github.com/efebarandurmaz/callsight/internal/store"
	"github.com/efebarandurmaz/callsight/internal/vector"
	"github.com/efebarandurmaz/callsight/internal/vector/qdrant"
)

// app carries the configuration and the ambient services every command
// shares.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Options())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	slog.SetDefault(logger)
	return &app{cfg: cfg, logger: logger}, nil
}

// newStore returns a store using the configured builder options.
func (a *app) newStore() *store.Store {
	opts := append(a.cfg.Builder.Options(), callgraph.WithLogger(a.logger))
	return store.New(
		store.WithBuilder(callgraph.NewBuilder(opts...)),
		store.WithLogger(a.logger),
		store.WithMetrics(a.metrics),
	)
}

// recordLoader prefers an explicit path over the configured records file.
func (a *app) recordLoader(path string) (ir.Loader, error) {
	if path == "" {
		path = a.cfg.Records
	}
	if path == "" {
		return nil, fmt.Errorf("no record file: pass --records or set records in the config")
	}
	return ir.NewFileLoader(path), nil
}

// loadGraph builds and publishes the graph from the record file.
func (a *app) loadGraph(ctx context.Context, path string) (*store.Store, *store.Snapshot, error) {
	loader, err := a.recordLoader(path)
	if err != nil {
		return nil, nil, err
	}
	st := a.newStore()
	snap, err := st.Reload(ctx, loader)
	if err != nil {
		return nil, nil, err
	}
	return st, snap, nil
}

// newEmbedder returns nil when no embedding provider is configured.
func (a *app) newEmbedder() (llm.Embedder, error) {
	factory := llm.NewFactory()
	openai.Register(factory)

	e, err := factory.Create(a.cfg.Embedding.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	if e == nil {
		return nil, nil
	}
	return llm.Instrument(e, a.metrics), nil
}

// openGraphRepo returns nil when graph.uri is not set.
func (a *app) openGraphRepo(ctx context.Context) (*neo4j.Neo4jRepository, error) {
	gc := a.cfg.Graph
	if gc.URI == "" {
		return nil, nil
	}
	repo, err := neo4j.NewNeo4j(ctx, gc.URI, gc.Username, gc.Password, gc.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	return repo, nil
}

// openVectorRepo returns nil when vector.host is not set.
func (a *app) openVectorRepo(ctx context.Context) (*qdrant.QdrantRepository, error) {
	vc := a.cfg.Vector
	if vc.Host == "" {
		return nil, nil
	}
	repo, err := qdrant.NewQdrant(ctx, vc.Host, vc.Port, vc.Collection)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}
	return repo, nil
}

// vectorSearch holds the optional similarity backend.
type vectorSearch struct {
	repo     *qdrant.QdrantRepository
	embedder llm.Embedder
}

func (v *vectorSearch) Close() error {
	if v == nil || v.repo == nil {
		return nil
	}
	return v.repo.Close()
}

// openVectorSearch returns nil unless both a vector host and an embedding
// provider are configured.
func (a *app) openVectorSearch(ctx context.Context) (*vectorSearch, error) {
	embedder, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, nil
	}
	repo, err := a.openVectorRepo(ctx)
	if err != nil || repo == nil {
		return nil, err
	}
	return &vectorSearch{repo: repo, embedder: embedder}, nil
}

// newService answers searches from the vector index when one is available and
// falls back to keyword matching over the published records.
func (a *app) newService(st *store.Store, vs *vectorSearch) *search.Service {
	var searcher search.Searcher = search.NewLexicalSearcher(st)
	if vs != nil {
		searcher = vector.NewSearcher(vs.embedder, vs.repo)
	}
	return search.NewService(searcher, st, search.NewEngine(a.cfg.Search.Weights),
		search.WithLimits(a.cfg.Search.Limits),
		search.WithLogger(a.logger),
		search.WithMetrics(a.metrics),
	)
}
