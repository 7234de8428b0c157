package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/observability"
)

var (
	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrNoGraph is returned by context queries before any graph is published.
	ErrNoGraph = errors.New("no call graph has been published")
)

// maxFetch caps how many candidates are requested from the searcher.
const maxFetch = 100

// GraphSource hands out the call graph queries should run against.
type GraphSource interface {
	Graph() *callgraph.Graph
}

// Limits bounds request parameters.
type Limits struct {
	DefaultLimit int `json:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `json:"max_limit" mapstructure:"max_limit"`
	DefaultDepth int `json:"default_depth" mapstructure:"default_depth"`
	MaxDepth     int `json:"max_depth" mapstructure:"max_depth"`
}

// DefaultLimits returns the request bounds used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		DefaultLimit: 5,
		MaxLimit:     20,
		DefaultDepth: 3,
		MaxDepth:     5,
	}
}

// Request is one search query. Zero Limit or MaxDepth select the defaults;
// larger values are capped.
type Request struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
	MaxDepth int    `json:"max_depth,omitempty"`
}

// Response is the ranked answer to a Request.
type Response struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit"`
	MaxDepth int      `json:"max_depth"`
	Results  []Result `json:"results"`
	// Candidates is how many candidates were fused.
	Candidates int `json:"candidates"`
	// Degraded is set when the similarity source failed and the ranking
	// comes from graph statistics only.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// Service answers search and context queries against the current graph.
type Service struct {
	searcher Searcher
	graphs   GraphSource
	engine   *Engine
	limits   Limits
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) ServiceOption {
	return func(s *Service) { s.limits = l }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records query metrics.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a searcher, a graph source and an engine. searcher may be
// nil, in which case every search is answered from graph statistics.
func NewService(searcher Searcher, graphs GraphSource, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		searcher: searcher,
		graphs:   graphs,
		engine:   engine,
		limits:   DefaultLimits(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the service's request bounds.
func (s *Service) Limits() Limits { return s.limits }

// Search runs the similarity search and fuses the result with graph context.
// A failing searcher degrades the answer instead of failing the request.
func (s *Service) Search(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordQuery("search", time.Since(start), err) }()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit, depth, err := s.bounds(req.Limit, req.MaxDepth)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSearchSpan(ctx, query, limit, depth)
	defer span.End()

	g := s.graphs.Graph()
	resp = &Response{Query: query, Limit: limit, MaxDepth: depth}

	candidates, serr := s.candidates(ctx, query, limit)
	if serr != nil {
		if ctx.Err() != nil {
			observability.RecordError(span, ctx.Err())
			return nil, ctx.Err()
		}
		s.logger.WarnContext(ctx, "similarity search failed, ranking by graph statistics", "error", serr)
		s.metrics.RecordDegradedSearch()
		candidates = s.engine.StatisticalCandidates(g)
		resp.Degraded = true
		resp.DegradedReason = serr.Error()
	}
	resp.Candidates = len(candidates)

	resp.Results, err = s.engine.Fuse(candidates, g, depth, limit)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("fuse candidates: %w", err)
	}
	observability.RecordSearchResult(span, resp.Candidates, len(resp.Results), resp.Degraded)
	s.logger.DebugContext(ctx, "search complete",
		"results", len(resp.Results),
		"candidates", resp.Candidates,
		"degraded", resp.Degraded,
	)
	return resp, nil
}

func (s *Service) candidates(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if s.searcher == nil {
		return nil, errors.New("no similarity searcher configured")
	}
	return s.searcher.Search(ctx, query, min(limit*2, maxFetch))
}

// Context returns the dependency context of one function. Unlike Search, a
// zero maxDepth is honoured as "target only".
func (s *Service) Context(ctx context.Context, id string, maxDepth int) (*callgraph.DependencyContext, error) {
	dc, _, err := s.resolve(ctx, id, maxDepth)
	return dc, err
}

// Describe is Context plus the summary of the returned context, both taken
// from the same graph snapshot.
func (s *Service) Describe(ctx context.Context, id string, maxDepth int) (*callgraph.DependencyContext, *ContextSummary, error) {
	dc, g, err := s.resolve(ctx, id, maxDepth)
	if err != nil {
		return nil, nil, err
	}
	return dc, Summarize(g, dc, 0), nil
}

func (s *Service) resolve(ctx context.Context, id string, maxDepth int) (dc *callgraph.DependencyContext, g *callgraph.Graph, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordQuery("context", time.Since(start), err) }()

	if s.limits.MaxDepth > 0 && maxDepth > s.limits.MaxDepth {
		maxDepth = s.limits.MaxDepth
	}
	_, span := observability.StartContextSpan(ctx, id, maxDepth)
	defer span.End()

	g = s.graphs.Graph()
	if g.Len() == 0 {
		observability.RecordError(span, ErrNoGraph)
		return nil, nil, ErrNoGraph
	}
	dc, err = g.ContextFor(id, maxDepth)
	if err != nil {
		observability.RecordError(span, err)
		return nil, nil, err
	}
	observability.RecordContextResult(span, len(dc.Ancestors), len(dc.Descendants), len(dc.Paths), dc.Truncated)
	return dc, g, nil
}

func (s *Service) bounds(limit, depth int) (int, int, error) {
	if depth < 0 {
		return 0, 0, callgraph.ErrInvalidDepth
	}
	if limit <= 0 {
		limit = s.limits.DefaultLimit
	}
	if s.limits.MaxLimit > 0 && limit > s.limits.MaxLimit {
		limit = s.limits.MaxLimit
	}
	if depth == 0 {
		depth = s.limits.DefaultDepth
	}
	if s.limits.MaxDepth > 0 && depth > s.limits.MaxDepth {
		depth = s.limits.MaxDepth
	}
	return limit, depth, nil
}
