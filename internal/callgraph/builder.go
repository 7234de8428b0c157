package callgraph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/callsight/internal/ir"
)

// minChunk keeps tiny inputs on a single goroutine.
const minChunk = 512

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Exclude decides which callee names never become edges.
	// Default: DefaultExcluder().
	Exclude ExcludeFunc

	// WorkerCount is the number of goroutines used to index records.
	// Default: runtime.NumCPU()
	WorkerCount int

	// Logger receives build progress at debug level.
	Logger *slog.Logger
}

// DefaultBuilderOptions returns the options used by NewBuilder.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		Exclude:     DefaultExcluder(),
		WorkerCount: runtime.NumCPU(),
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithExclude replaces the callee exclusion predicate.
func WithExclude(fn ExcludeFunc) BuilderOption {
	return func(o *BuilderOptions) {
		o.Exclude = fn
	}
}

// WithWorkerCount sets the number of workers that index function names.
func WithWorkerCount(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.WorkerCount = n
	}
}

// WithLogger sets the build logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = l
	}
}

// Builder turns a record set into a Graph.
//
// A Builder holds no per-build state and is safe for concurrent use.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a Builder with the given options applied over
// DefaultBuilderOptions.
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.WorkerCount <= 0 {
		options.WorkerCount = runtime.NumCPU()
	}
	if options.Exclude == nil {
		options.Exclude = ExcludeNothing
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Builder{options: options}
}

// Build creates one node per record and one edge per resolvable call.
//
// Callee names are resolved against record names. When several records share
// a name, one in the caller's module wins, otherwise the first in canonical
// record order. A dotted callee such as "pkg.Func" that matches nothing is
// retried with its last segment. Calls that are excluded or match nothing are
// counted and dropped.
//
// Records with empty or duplicate IDs abort the build with a
// *BuildInputError and no graph.
//
// The result is not analyzed; call Analyze before relying on roots, leaves or
// depths.
func (b *Builder) Build(ctx context.Context, records []ir.FunctionRecord) (*Graph, error) {
	for i := range records {
		if records[i].ID == "" {
			return nil, &BuildInputError{EmptyIDAt: i}
		}
	}
	if dups := ir.DuplicateIDs(records); len(dups) > 0 {
		return nil, &BuildInputError{DuplicateIDs: dups, EmptyIDAt: -1}
	}

	store := ir.NewRecordStore(records)
	all := store.All()
	g := newGraph(store)

	nameIndex, err := b.indexNames(ctx, all)
	if err != nil {
		return nil, err
	}

	g.order = make([]string, len(all))
	for i := range all {
		g.order[i] = all[i].ID
		g.nodes[all[i].ID] = newNode(all[i].ID)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build cancelled: %w", err)
	}

	r := &resolver{all: all, names: nameIndex, exclude: b.options.Exclude}
	for i := range all {
		caller := &all[i]
		for _, name := range caller.Calls {
			g.build.CallSites++
			target, outcome := r.resolve(name, caller.Module)
			switch outcome {
			case callExcluded:
				g.build.ExcludedCalls++
				continue
			case callUnresolved:
				g.build.UnresolvedCalls++
				continue
			case callAmbiguous:
				g.build.AmbiguousCalls++
			}
			g.build.ResolvedCalls++
			if g.addEdge(caller.ID, all[target].ID) && all[target].ID == caller.ID {
				g.build.SelfLoops++
			}
		}
	}
	g.finalizeEdges()

	b.options.Logger.Debug("call graph built",
		"nodes", len(g.nodes),
		"edges", g.edgeCount,
		"call_sites", g.build.CallSites,
		"unresolved", g.build.UnresolvedCalls,
		"excluded", g.build.ExcludedCalls,
	)
	return g, nil
}

// indexNames maps each bare name to record indexes in canonical order. Chunks
// are indexed in parallel and merged in chunk order so the result matches a
// sequential pass.
func (b *Builder) indexNames(ctx context.Context, all []ir.FunctionRecord) (map[string][]int, error) {
	workers := b.options.WorkerCount
	chunk := (len(all) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	var parts []map[string][]int
	for start := 0; start < len(all); start += chunk {
		parts = append(parts, nil)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for p := range parts {
		start := p * chunk
		end := min(start+chunk, len(all))
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			local := make(map[string][]int)
			for i := start; i < end; i++ {
				local[all[i].Name] = append(local[all[i].Name], i)
			}
			parts[p] = local
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("index function names: %w", err)
	}

	merged := make(map[string][]int, len(all))
	for _, part := range parts {
		for name, idxs := range part {
			merged[name] = append(merged[name], idxs...)
		}
	}
	return merged, nil
}

type callOutcome int

const (
	callResolved callOutcome = iota
	callAmbiguous
	callUnresolved
	callExcluded
)

type resolver struct {
	all     []ir.FunctionRecord
	names   map[string][]int
	exclude ExcludeFunc
}

func (r *resolver) resolve(name, callerModule string) (int, callOutcome) {
	if name == "" {
		return -1, callUnresolved
	}
	if r.exclude(name) {
		return -1, callExcluded
	}
	if idx, outcome, ok := r.lookup(name, callerModule); ok {
		return idx, outcome
	}
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 && dot < len(name)-1 {
		short := name[dot+1:]
		if r.exclude(short) {
			return -1, callExcluded
		}
		if idx, outcome, ok := r.lookup(short, callerModule); ok {
			return idx, outcome
		}
	}
	return -1, callUnresolved
}

func (r *resolver) lookup(name, callerModule string) (int, callOutcome, bool) {
	idxs := r.names[name]
	switch len(idxs) {
	case 0:
		return -1, callUnresolved, false
	case 1:
		return idxs[0], callResolved, true
	}
	for _, idx := range idxs {
		if r.all[idx].Module == callerModule {
			return idx, callAmbiguous, true
		}
	}
	return idxs[0], callAmbiguous, true
}
