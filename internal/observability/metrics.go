package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "callsight"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors for callsight. All methods are
// safe on a nil receiver so callers may run without metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	// BuildsTotal counts graph builds. Labels: outcome (success, error).
	BuildsTotal *prometheus.CounterVec
	// BuildDuration measures build+analyze time.
	BuildDuration prometheus.Histogram

	// GraphNodes, GraphEdges and GraphMaxDepth describe the published graph.
	GraphNodes    prometheus.Gauge
	GraphEdges    prometheus.Gauge
	GraphMaxDepth prometheus.Gauge
	// UnresolvedCalls is the unresolved call-site count of the published graph.
	UnresolvedCalls prometheus.Gauge

	// QueriesTotal counts queries. Labels: kind (context, search), outcome.
	QueriesTotal *prometheus.CounterVec
	// QueryDuration measures query latency. Labels: kind.
	QueryDuration *prometheus.HistogramVec

	// DegradedSearchesTotal counts searches that fell back to graph statistics.
	DegradedSearchesTotal prometheus.Counter

	// EmbeddingRequestsTotal counts embedding calls. Labels: outcome.
	EmbeddingRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		BuildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "builds_total",
			Help:      "Total call graph builds by outcome",
		}, []string{"outcome"}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "build_duration_seconds",
			Help:      "Call graph build and analysis duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		GraphNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Functions in the published call graph",
		}),
		GraphEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Call edges in the published call graph",
		}),
		GraphMaxDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "max_depth",
			Help:      "Maximum root distance in the published call graph",
		}),
		UnresolvedCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "graph",
			Name:      "unresolved_calls",
			Help:      "Call sites that matched no known function",
		}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total queries by kind and outcome",
		}, []string{"kind", "outcome"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query latency by kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		DegradedSearchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "degraded_searches_total",
			Help:      "Searches answered from graph statistics after the similarity source failed",
		}),
		EmbeddingRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding requests by outcome",
		}, []string{"outcome"}),
	}
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordBuild records one build attempt.
func (m *Metrics) RecordBuild(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(outcome(err)).Inc()
	m.BuildDuration.Observe(duration.Seconds())
}

// SetGraph publishes the size of the active graph.
func (m *Metrics) SetGraph(nodes, edges, maxDepth, unresolved int) {
	if m == nil {
		return
	}
	m.GraphNodes.Set(float64(nodes))
	m.GraphEdges.Set(float64(edges))
	m.GraphMaxDepth.Set(float64(maxDepth))
	m.UnresolvedCalls.Set(float64(unresolved))
}

// RecordQuery records one context or search query.
func (m *Metrics) RecordQuery(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(kind, outcome(err)).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordDegradedSearch counts a search that ran without similarity results.
func (m *Metrics) RecordDegradedSearch() {
	if m == nil {
		return
	}
	m.DegradedSearchesTotal.Inc()
}

// RecordEmbedding counts one embedding request.
func (m *Metrics) RecordEmbedding(err error) {
	if m == nil {
		return
	}
	m.EmbeddingRequestsTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide metrics, registered on a dedicated
// registry the first time it is called.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.NewRegistry())
	})
	return defaultMetrics
}
