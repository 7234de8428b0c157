// Package metrics collects the run report printed by `callsight build`.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
)

// Stage status values.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// RunMetrics collects statistics for one build run.
type RunMetrics struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Duration   time.Duration  `json:"duration_ms,omitempty"`
	Source     SourceMetrics  `json:"source"`
	Graph      GraphMetrics   `json:"graph"`
	Stages     []StageMetrics `json:"stages"`
	Errors     []string       `json:"errors,omitempty"`
}

type SourceMetrics struct {
	Loader            string `json:"loader"`
	FunctionCount     int    `json:"function_count"`
	FileCount         int    `json:"file_count"`
	ModuleCount       int    `json:"module_count"`
	RepositoryCount   int    `json:"repository_count"`
	AsyncFunctions    int    `json:"async_functions"`
	WithErrorHandling int    `json:"with_error_handling"`
	TotalLines        int    `json:"total_lines"`
}

type GraphMetrics struct {
	Nodes               int `json:"nodes"`
	Edges               int `json:"edges"`
	Roots               int `json:"roots"`
	Leaves              int `json:"leaves"`
	MaxDepth            int `json:"max_depth"`
	CallSites           int `json:"call_sites"`
	ResolvedCalls       int `json:"resolved_calls"`
	UnresolvedCalls     int `json:"unresolved_calls"`
	ExcludedCalls       int `json:"excluded_calls"`
	AmbiguousCalls      int `json:"ambiguous_calls"`
	SelfLoops           int `json:"self_loops"`
	IsolatedNodes       int `json:"isolated_nodes"`
	CycleOnlyComponents int `json:"cycle_only_components"`
	CyclicNodes         int `json:"cyclic_nodes"`
}

type StageMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Items    int           `json:"items"`
	Status   string        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
}

// New starts tracking a run.
func New() *RunMetrics {
	return &RunMetrics{StartedAt: time.Now()}
}

// CollectSource computes source-side metrics from the loaded records.
func (m *RunMetrics) CollectSource(loader string, records *ir.RecordStore) {
	m.Source.Loader = loader
	sum := records.Summary()
	m.Source.FunctionCount = sum.TotalFunctions
	m.Source.ModuleCount = sum.UniqueModules
	m.Source.RepositoryCount = sum.UniqueRepositories
	m.Source.AsyncFunctions = sum.AsyncFunctions
	m.Source.WithErrorHandling = sum.FunctionsWithErrorHandling

	files := make(map[string]struct{})
	m.Source.TotalLines = 0
	for _, r := range records.All() {
		if r.FilePath != "" {
			files[r.FilePath] = struct{}{}
		}
		m.Source.TotalLines += r.LineCount()
	}
	m.Source.FileCount = len(files)
}

// CollectGraph copies the statistics of an analyzed graph.
func (m *RunMetrics) CollectGraph(stats callgraph.Stats) {
	m.Graph = GraphMetrics{
		Nodes:               stats.TotalNodes,
		Edges:               stats.EdgeCount,
		Roots:               stats.RootCount,
		Leaves:              stats.LeafCount,
		MaxDepth:            stats.MaxDepth,
		CallSites:           stats.CallSites,
		ResolvedCalls:       stats.ResolvedCalls,
		UnresolvedCalls:     stats.UnresolvedCalls,
		ExcludedCalls:       stats.ExcludedCalls,
		AmbiguousCalls:      stats.AmbiguousCalls,
		SelfLoops:           stats.SelfLoops,
		IsolatedNodes:       stats.IsolatedNodes,
		CycleOnlyComponents: stats.CycleOnlyComponents,
		CyclicNodes:         stats.CyclicNodes,
	}
}

// AddStage records one stage. A non-nil err marks it failed and is added to
// the run's errors.
func (m *RunMetrics) AddStage(name string, d time.Duration, items int, err error) {
	st := StageMetrics{Name: name, Duration: d, Items: items, Status: StatusOK}
	if err != nil {
		st.Status = StatusFailed
		st.Detail = err.Error()
		m.Errors = append(m.Errors, fmt.Sprintf("%s: %v", name, err))
	}
	m.Stages = append(m.Stages, st)
}

// SkipStage records a stage that did not run.
func (m *RunMetrics) SkipStage(name, reason string) {
	m.Stages = append(m.Stages, StageMetrics{Name: name, Status: StatusSkipped, Detail: reason})
}

// Failed reports whether any stage failed.
func (m *RunMetrics) Failed() bool {
	return len(m.Errors) > 0
}

// Finish marks the run as complete.
func (m *RunMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║         CALLSIGHT BUILD REPORT       ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ SOURCE (%s)\n", m.Source.Loader)
	fmt.Fprintf(w, "║   Functions:   %d\n", m.Source.FunctionCount)
	fmt.Fprintf(w, "║   Files:       %d\n", m.Source.FileCount)
	fmt.Fprintf(w, "║   Modules:     %d\n", m.Source.ModuleCount)
	fmt.Fprintf(w, "║   Async:       %d\n", m.Source.AsyncFunctions)
	fmt.Fprintf(w, "║   Error Hdlg:  %d\n", m.Source.WithErrorHandling)
	fmt.Fprintf(w, "║   Lines:       %d\n", m.Source.TotalLines)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ GRAPH\n")
	fmt.Fprintf(w, "║   Nodes:       %d\n", m.Graph.Nodes)
	fmt.Fprintf(w, "║   Edges:       %d\n", m.Graph.Edges)
	fmt.Fprintf(w, "║   Roots:       %d\n", m.Graph.Roots)
	fmt.Fprintf(w, "║   Leaves:      %d\n", m.Graph.Leaves)
	fmt.Fprintf(w, "║   Max Depth:   %d\n", m.Graph.MaxDepth)
	fmt.Fprintf(w, "║   Calls:       %d resolved / %d unresolved / %d excluded\n",
		m.Graph.ResolvedCalls, m.Graph.UnresolvedCalls, m.Graph.ExcludedCalls)
	fmt.Fprintf(w, "║   Cycles:      %d cyclic nodes, %d cycle-only components\n",
		m.Graph.CyclicNodes, m.Graph.CycleOnlyComponents)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ STAGES\n")
	for _, s := range m.Stages {
		status := s.Status
		if s.Detail != "" {
			status += ": " + s.Detail
		}
		fmt.Fprintf(w, "║   %-14s %8s  %6d  [%s]\n", s.Name, s.Duration.Round(time.Millisecond), s.Items, status)
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *RunMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
