package temporal

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
)

const maxAttempts = 3

// IndexInput holds the workflow parameters.
type IndexInput struct {
	// RecordsPath is a record file readable by the worker. Empty uses the
	// worker's default record source.
	RecordsPath string `json:"records_path,omitempty"`
	// SkipPersist and SkipIndex turn off the optional stages.
	SkipPersist bool `json:"skip_persist,omitempty"`
	SkipIndex   bool `json:"skip_index,omitempty"`
}

// IndexOutput holds the workflow result.
type IndexOutput struct {
	Source    string          `json:"source"`
	Stats     callgraph.Stats `json:"stats"`
	Persisted int             `json:"persisted"`
	Indexed   int             `json:"indexed"`
	// Skipped names the optional stages that did not run.
	Skipped []string `json:"skipped,omitempty"`
}

// IndexWorkflow loads a record set, builds its call graph, and then
// persists it to the graph database and the vector index.
func IndexWorkflow(ctx workflow.Context, input IndexInput) (*IndexOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    maxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	// Step 1: load
	src := RecordSource{RecordsPath: input.RecordsPath}
	var loaded ActivityResult
	if err := workflow.ExecuteActivity(ctx, LoadRecordsActivity, src).Get(ctx, &loaded); err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	src.Digest = loaded.Digest

	// Step 2: build and analyze
	var built ActivityResult
	if err := workflow.ExecuteActivity(ctx, BuildGraphActivity, src).Get(ctx, &built); err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	logger.Info("call graph built", "source", loaded.Source, "nodes", built.Stats.TotalNodes, "edges", built.Stats.EdgeCount)

	out := &IndexOutput{Source: loaded.Source, Stats: built.Stats}

	// Step 3: persist
	if input.SkipPersist {
		out.Skipped = append(out.Skipped, "persist")
	} else {
		var persisted ActivityResult
		if err := workflow.ExecuteActivity(ctx, PersistGraphActivity, src).Get(ctx, &persisted); err != nil {
			return nil, fmt.Errorf("persist graph: %w", err)
		}
		if persisted.Skipped {
			out.Skipped = append(out.Skipped, "persist")
		}
		out.Persisted = persisted.Items
	}

	// Step 4: index
	if input.SkipIndex {
		out.Skipped = append(out.Skipped, "index")
	} else {
		var indexed ActivityResult
		if err := workflow.ExecuteActivity(ctx, IndexVectorsActivity, src).Get(ctx, &indexed); err != nil {
			return nil, fmt.Errorf("index vectors: %w", err)
		}
		if indexed.Skipped {
			out.Skipped = append(out.Skipped, "index")
		}
		out.Indexed = indexed.Items
	}

	return out, nil
}
