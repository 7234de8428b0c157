// Package store holds the published call graph.
//
// Queries read the last complete snapshot. A rebuild constructs and analyzes
// a new graph off to the side and swaps it in with a single pointer store, so
// a partially built graph is never visible. A failed rebuild leaves the
// previous snapshot in place.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/observability"
)

// Snapshot is one published, analyzed graph.
type Snapshot struct {
	Graph         *callgraph.Graph `json:"-"`
	Source        string           `json:"source"`
	Version       uint64           `json:"version"`
	BuiltAt       time.Time        `json:"built_at"`
	BuildDuration time.Duration    `json:"build_duration"`
}

// PublishHook is called after a snapshot becomes current. Hooks run
// synchronously on the rebuilding goroutine and must not call Rebuild.
type PublishHook func(ctx context.Context, snap *Snapshot)

// Store publishes call graph snapshots.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu      sync.Mutex // serializes rebuilds
	flight  singleflight.Group
	builder *callgraph.Builder
	version uint64
	hooks   []PublishHook

	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithBuilder replaces the default graph builder.
func WithBuilder(b *callgraph.Builder) Option {
	return func(s *Store) { s.builder = b }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records build metrics and graph gauges.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a store whose current snapshot is the empty graph.
func New(opts ...Option) *Store {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = callgraph.NewBuilder(callgraph.WithLogger(s.logger))
	}
	s.current.Store(&Snapshot{Graph: callgraph.Empty()})
	return s
}

// OnPublish registers a hook run after every successful rebuild.
func (s *Store) OnPublish(hook PublishHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Current returns the active snapshot. It is never nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Graph returns the active graph.
func (s *Store) Graph() *callgraph.Graph {
	return s.Current().Graph
}

// Records returns the record set of the active graph.
func (s *Store) Records() *ir.RecordStore {
	return s.Graph().Records()
}

// Rebuild builds and analyzes a graph from records and publishes it. Only one
// rebuild runs at a time; queries keep reading the previous snapshot until
// the new one is stored.
func (s *Store) Rebuild(ctx context.Context, source string, records []ir.FunctionRecord) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	ctx, span := observability.StartBuildSpan(ctx, source, len(records))
	defer span.End()

	g, err := s.builder.Build(ctx, records)
	if err != nil {
		observability.RecordError(span, err)
		s.metrics.RecordBuild(time.Since(start), err)
		s.logger.ErrorContext(ctx, "graph rebuild failed, keeping previous snapshot",
			"source", source,
			"error", err,
		)
		return nil, fmt.Errorf("build graph from %s: %w", source, err)
	}

	_, aspan := observability.StartAnalyzeSpan(ctx, g.Len())
	callgraph.Analyze(g)
	aspan.End()

	stats := g.Stats()
	observability.RecordBuildResult(span, stats.TotalNodes, stats.EdgeCount, stats.UnresolvedCalls, stats.MaxDepth)

	s.version++
	snap := &Snapshot{
		Graph:         g,
		Source:        source,
		Version:       s.version,
		BuiltAt:       time.Now().UTC(),
		BuildDuration: time.Since(start),
	}
	s.current.Store(snap)

	s.metrics.RecordBuild(snap.BuildDuration, nil)
	s.metrics.SetGraph(stats.TotalNodes, stats.EdgeCount, stats.MaxDepth, stats.UnresolvedCalls)
	s.logger.InfoContext(ctx, "call graph published",
		"source", source,
		"version", snap.Version,
		"nodes", stats.TotalNodes,
		"edges", stats.EdgeCount,
		"max_depth", stats.MaxDepth,
		"duration", snap.BuildDuration,
	)

	for _, hook := range s.hooks {
		hook(ctx, snap)
	}
	return snap, nil
}

// Reload loads records from loader and rebuilds. Concurrent reloads of the
// same loader share one load and one rebuild. The shared work ignores the
// cancellation of whichever caller started it, since other callers wait on it.
func (s *Store) Reload(ctx context.Context, loader ir.Loader) (*Snapshot, error) {
	v, err, shared := s.flight.Do(loader.Name(), func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		records, err := loader.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load records from %s: %w", loader.Name(), err)
		}
		return s.Rebuild(ctx, loader.Name(), records)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugContext(ctx, "reload coalesced", "source", loader.Name())
	}
	return v.(*Snapshot), nil
}
