package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/search"
	"github.com/efebarandurmaz/callsight/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// API serves queries against the published call graph.
type API struct {
	store   *store.Store
	service *search.Service
	loader  ir.Loader
	events  *EventHub
	logger  *slog.Logger
}

// NewAPI wires the query endpoints. loader is the record source used by
// POST /v1/rebuild; nil disables rebuilds over HTTP. Every snapshot st
// publishes afterwards is streamed on GET /v1/events.
func NewAPI(st *store.Store, service *search.Service, loader ir.Loader, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	events := NewEventHub(0)
	st.OnPublish(events.PublishHook())
	return &API{store: st, service: service, loader: loader, events: events, logger: logger}
}

// Events returns the hub behind GET /v1/events.
func (a *API) Events() *EventHub { return a.events }

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/stats", a.handleStats)
	mux.HandleFunc("GET /v1/functions", a.handleFindFunctions)
	mux.HandleFunc("GET /v1/functions/{id}", a.handleFunction)
	mux.HandleFunc("GET /v1/functions/{id}/context", a.handleContext)
	mux.HandleFunc("POST /v1/search", a.handleSearch)
	mux.HandleFunc("POST /v1/rebuild", a.handleRebuild)
	mux.Handle("GET /v1/events", a.events)
}

// StatsResponse describes the published snapshot.
type StatsResponse struct {
	Version  uint64          `json:"version"`
	Source   string          `json:"source"`
	BuiltAt  time.Time       `json:"built_at"`
	Duration string          `json:"build_duration"`
	Stats    callgraph.Stats `json:"stats"`
	Records  ir.StoreSummary `json:"records"`
	RootIDs  []string        `json:"root_ids"`
	Cycles   [][]string      `json:"cycle_only_components,omitempty"`
	Limits   search.Limits   `json:"limits"`
}

// FunctionResponse is one function with its graph position.
type FunctionResponse struct {
	Record       ir.FunctionRecord `json:"record"`
	Depth        int               `json:"depth"`
	Root         bool              `json:"root"`
	Leaf         bool              `json:"leaf"`
	Dependencies []string          `json:"dependencies"`
	Dependents   []string          `json:"dependents"`
}

// ContextResponse is a dependency context with its summary.
type ContextResponse struct {
	Context *callgraph.DependencyContext `json:"context"`
	Summary *search.ContextSummary       `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := a.store.Current()
	g := snap.Graph
	writeJSON(w, http.StatusOK, StatsResponse{
		Version:  snap.Version,
		Source:   snap.Source,
		BuiltAt:  snap.BuiltAt,
		Duration: snap.BuildDuration.String(),
		Stats:    g.Stats(),
		Records:  g.Records().Summary(),
		RootIDs:  nonNilIDs(g.RootIDs()),
		Limits:   a.service.Limits(),
		Cycles:   g.CycleOnlyComponents(),
	})
}

func (a *API) handleFindFunctions(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		a.writeError(w, r, http.StatusBadRequest, errors.New("name query parameter is required"))
		return
	}
	g := a.store.Graph()
	ids := g.FindByName(name)
	out := make([]FunctionResponse, 0, len(ids))
	for _, id := range ids {
		if fr, ok := functionResponse(g, id); ok {
			out = append(out, fr)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleFunction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fr, ok := functionResponse(a.store.Graph(), id)
	if !ok {
		a.writeError(w, r, http.StatusNotFound, &callgraph.NotFoundError{ID: id})
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

func (a *API) handleContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	depth := a.service.Limits().DefaultDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, r, http.StatusBadRequest, errors.New("depth must be an integer"))
			return
		}
		depth = d
	}

	dc, summary, err := a.service.Describe(r.Context(), id, depth)
	if err != nil {
		a.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Context: dc, Summary: summary})
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, errors.New("invalid search request: "+err.Error()))
		return
	}
	resp, err := a.service.Search(r.Context(), req)
	if err != nil {
		a.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RebuildResponse reports the snapshot a rebuild published.
type RebuildResponse struct {
	Version  uint64          `json:"version"`
	Source   string          `json:"source"`
	Duration string          `json:"build_duration"`
	Stats    callgraph.Stats `json:"stats"`
}

func (a *API) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if a.loader == nil {
		a.writeError(w, r, http.StatusNotImplemented, errors.New("no record source configured for rebuilds"))
		return
	}
	snap, err := a.store.Reload(r.Context(), a.loader)
	if err != nil {
		status := http.StatusInternalServerError
		if callgraph.IsBuildInput(err) {
			status = http.StatusUnprocessableEntity
		}
		a.writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{
		Version:  snap.Version,
		Source:   snap.Source,
		Duration: snap.BuildDuration.String(),
		Stats:    snap.Graph.Stats(),
	})
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case callgraph.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, callgraph.ErrInvalidDepth), errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrNoGraph):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func functionResponse(g *callgraph.Graph, id string) (FunctionResponse, bool) {
	rec, ok := g.Record(id)
	if !ok {
		return FunctionResponse{}, false
	}
	n, _ := g.Node(id)
	return FunctionResponse{
		Record:       *rec,
		Depth:        n.Depth,
		Root:         n.IsRoot(),
		Leaf:         n.IsLeaf(),
		Dependencies: nonNilIDs(n.Dependencies()),
		Dependents:   nonNilIDs(n.Dependents()),
	}, true
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
