package temporal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/graph"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/vector"
)

// Error types reported to the workflow as non-retryable.
const (
	ErrTypeInvalidRecords = "InvalidRecords"
	ErrTypeNoSource       = "NoRecordSource"
	ErrTypeRecordsChanged = "RecordsChanged"
)

// RecordSource names the record set an activity works on. Each activity
// loads the records itself, so workflow history only ever carries this
// reference and never the records.
type RecordSource struct {
	// RecordsPath is a record file readable by the worker. Empty uses the
	// worker's default loader.
	RecordsPath string `json:"records_path,omitempty"`
	// Digest pins the content seen by LoadRecordsActivity. Later activities
	// fail if the source no longer matches it.
	Digest string `json:"digest,omitempty"`
}

// ActivityResult is the serializable result passed between activities.
type ActivityResult struct {
	Source  string          `json:"source,omitempty"`
	Digest  string          `json:"digest,omitempty"`
	Stats   callgraph.Stats `json:"stats"`
	Items   int             `json:"items"`
	Skipped bool            `json:"skipped,omitempty"`
}

// Dependencies holds shared resources injected into activities. Graph and
// Indexer are optional; the matching activities report Skipped without them.
type Dependencies struct {
	Builder *callgraph.Builder
	Loader  ir.Loader
	Graph   graph.Repository
	Indexer *vector.Indexer
	Logger  *slog.Logger
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	if d.Builder == nil {
		d.Builder = callgraph.NewBuilder()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	deps = d
}

// LoadRecordsActivity checks that the record set named by src can be read
// and reports its size and digest.
func LoadRecordsActivity(ctx context.Context, src RecordSource) (ActivityResult, error) {
	loader, records, digest, err := loadRecords(ctx, src)
	if err != nil {
		return ActivityResult{}, err
	}
	deps.Logger.InfoContext(ctx, "records loaded", "source", loader.Name(), "records", len(records), "digest", digest)
	return ActivityResult{Source: loader.Name(), Digest: digest, Items: len(records)}, nil
}

// BuildGraphActivity builds and analyzes the graph and reports its stats.
// Invalid record sets fail without retries.
func BuildGraphActivity(ctx context.Context, src RecordSource) (ActivityResult, error) {
	g, err := buildGraph(ctx, src)
	if err != nil {
		return ActivityResult{}, err
	}
	return ActivityResult{Stats: g.Stats(), Items: g.Len()}, nil
}

// PersistGraphActivity writes the graph to the graph database.
func PersistGraphActivity(ctx context.Context, src RecordSource) (ActivityResult, error) {
	if deps.Graph == nil {
		return ActivityResult{Skipped: true}, nil
	}
	g, err := buildGraph(ctx, src)
	if err != nil {
		return ActivityResult{}, err
	}
	if err := deps.Graph.StoreGraph(ctx, g); err != nil {
		return ActivityResult{}, fmt.Errorf("store graph: %w", err)
	}
	return ActivityResult{Stats: g.Stats(), Items: g.Len()}, nil
}

// IndexVectorsActivity embeds every function and upserts it into the vector
// index.
func IndexVectorsActivity(ctx context.Context, src RecordSource) (ActivityResult, error) {
	if deps.Indexer == nil {
		return ActivityResult{Skipped: true}, nil
	}
	g, err := buildGraph(ctx, src)
	if err != nil {
		return ActivityResult{}, err
	}
	n, err := deps.Indexer.IndexGraph(ctx, g)
	if err != nil {
		return ActivityResult{}, fmt.Errorf("index vectors: %w", err)
	}
	return ActivityResult{Items: n}, nil
}

func loadRecords(ctx context.Context, src RecordSource) (ir.Loader, []ir.FunctionRecord, string, error) {
	var loader ir.Loader
	switch {
	case src.RecordsPath != "":
		loader = ir.NewFileLoader(src.RecordsPath)
	case deps.Loader != nil:
		loader = deps.Loader
	default:
		return nil, nil, "", sdktemporal.NewNonRetryableApplicationError(
			"no records path given and no default record source configured", ErrTypeNoSource, nil)
	}

	records, err := loader.Load(ctx)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load records from %s: %w", loader.Name(), err)
	}
	digest, err := recordsDigest(records)
	if err != nil {
		return nil, nil, "", err
	}
	if src.Digest != "" && src.Digest != digest {
		return nil, nil, "", sdktemporal.NewNonRetryableApplicationError(
			fmt.Sprintf("records from %s changed during the run", loader.Name()), ErrTypeRecordsChanged, nil)
	}
	return loader, records, digest, nil
}

func recordsDigest(records []ir.FunctionRecord) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// buildGraph is deterministic for a given record set, so every activity can
// rebuild instead of shipping the graph through workflow history.
func buildGraph(ctx context.Context, src RecordSource) (*callgraph.Graph, error) {
	_, records, _, err := loadRecords(ctx, src)
	if err != nil {
		return nil, err
	}
	g, err := deps.Builder.Build(ctx, records)
	if err != nil {
		if callgraph.IsBuildInput(err) {
			return nil, sdktemporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidRecords, err)
		}
		return nil, err
	}
	return callgraph.Analyze(g), nil
}
