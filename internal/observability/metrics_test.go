package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestMetrics_RecordBuild(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordBuild(150*time.Millisecond, nil)
	m.RecordBuild(10*time.Millisecond, errors.New("duplicate ids"))
	m.RecordBuild(20*time.Millisecond, nil)

	if got := testutil.ToFloat64(m.BuildsTotal.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Errorf("successful builds = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BuildsTotal.WithLabelValues(OutcomeError)); got != 1 {
		t.Errorf("failed builds = %v, want 1", got)
	}
}

func TestMetrics_SetGraph(t *testing.T) {
	m := newTestMetrics(t)
	m.SetGraph(120, 300, 7, 12)

	tests := []struct {
		name string
		g    prometheus.Gauge
		want float64
	}{
		{"nodes", m.GraphNodes, 120},
		{"edges", m.GraphEdges, 300},
		{"max_depth", m.GraphMaxDepth, 7},
		{"unresolved", m.UnresolvedCalls, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.g); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetrics_Queries(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordQuery("context", time.Millisecond, nil)
	m.RecordQuery("search", time.Millisecond, nil)
	m.RecordQuery("search", time.Millisecond, errors.New("bad request"))
	m.RecordDegradedSearch()
	m.RecordEmbedding(nil)

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("search", OutcomeSuccess)); got != 1 {
		t.Errorf("search successes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("search", OutcomeError)); got != 1 {
		t.Errorf("search errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DegradedSearchesTotal); got != 1 {
		t.Errorf("degraded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EmbeddingRequestsTotal.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Errorf("embeddings = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordBuild(time.Second, nil)
	m.SetGraph(1, 1, 1, 1)
	m.RecordQuery("search", time.Second, nil)
	m.RecordDegradedSearch()
	m.RecordEmbedding(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil metrics handler status = %d, want 404", rec.Code)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := newTestMetrics(t)
	m.SetGraph(3, 2, 1, 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "callsight_graph_nodes 3") {
		t.Errorf("metrics output missing graph gauge:\n%s", body)
	}
}

func TestDefault_Singleton(t *testing.T) {
	if Default() != Default() {
		t.Error("Default should return the same instance")
	}
}
