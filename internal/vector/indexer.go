package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/llm"
	"github.com/efebarandurmaz/callsight/internal/observability"
)

// pointNamespace scopes function point IDs so the same function ID always
// maps to the same point.
var pointNamespace = uuid.MustParse("6f1c7a52-3b0e-4c1e-9d55-1a2f0c8e4b7d")

// Payload keys written for every function.
const (
	KeyFunctionID   = "function_id"
	KeyName         = "name"
	KeyModule       = "module"
	KeyFile         = "file"
	KeyDepth        = "depth"
	KeyDependencies = "dependencies"
	KeyDependents   = "dependents"
	KeyAsync        = "is_async"
	KeyErrors       = "has_error_handling"
)

const defaultBatchSize = 64

// PointID returns the deterministic point ID of a function.
func PointID(functionID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(functionID)).String()
}

// FunctionText is the text embedded for a function.
func FunctionText(r *ir.FunctionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "function %s", r.Name)
	if r.ClassContext != "" {
		fmt.Fprintf(&b, " in class %s", r.ClassContext)
	}
	if r.Module != "" {
		fmt.Fprintf(&b, " of module %s", r.Module)
	}
	if r.FilePath != "" {
		fmt.Fprintf(&b, " (%s)", r.FilePath)
	}
	if len(r.Decorators) > 0 {
		fmt.Fprintf(&b, "\ndecorators: %s", strings.Join(r.Decorators, ", "))
	}
	if len(r.Calls) > 0 {
		fmt.Fprintf(&b, "\ncalls: %s", strings.Join(r.Calls, ", "))
	}
	if r.IsAsync {
		b.WriteString("\nasync")
	}
	if r.HasErrorHandling {
		b.WriteString("\nhandles errors")
	}
	return b.String()
}

// Indexer embeds every function of a graph and upserts it.
type Indexer struct {
	embedder  llm.Embedder
	repo      Repository
	batchSize int
	logger    *slog.Logger
}

// NewIndexer creates an Indexer. batchSize <= 0 selects the default.
func NewIndexer(embedder llm.Embedder, repo Repository, batchSize int, logger *slog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: embedder, repo: repo, batchSize: batchSize, logger: logger}
}

// Documents builds the (not yet embedded) documents for g in canonical order.
func Documents(g *callgraph.Graph) []Document {
	all := g.Records().All()
	docs := make([]Document, 0, len(all))
	for i := range all {
		r := &all[i]
		n, ok := g.Node(r.ID)
		if !ok {
			continue
		}
		docs = append(docs, Document{
			ID:      PointID(r.ID),
			Content: FunctionText(r),
			Metadata: map[string]any{
				KeyFunctionID:   r.ID,
				KeyName:         r.Name,
				KeyModule:       r.Module,
				KeyFile:         r.FilePath,
				KeyDepth:        int64(n.Depth),
				KeyDependencies: int64(len(n.Dependencies())),
				KeyDependents:   int64(len(n.Dependents())),
				KeyAsync:        r.IsAsync,
				KeyErrors:       r.HasErrorHandling,
			},
		})
	}
	return docs
}

// IndexGraph embeds and upserts every function of g. It returns the number
// of documents written.
func (ix *Indexer) IndexGraph(ctx context.Context, g *callgraph.Graph) (int, error) {
	docs := Documents(g)
	if len(docs) == 0 {
		return 0, nil
	}
	ctx, span := observability.StartPersistSpan(ctx, "qdrant", len(docs))
	defer span.End()

	written := 0
	for start := 0; start < len(docs); start += ix.batchSize {
		batch := docs[start:min(start+ix.batchSize, len(docs))]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}
		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			observability.RecordError(span, err)
			return written, fmt.Errorf("embed functions: %w", err)
		}
		if len(vecs) != len(batch) {
			return written, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(batch))
		}
		if start == 0 {
			if err := ix.repo.EnsureCollection(ctx, len(vecs[0])); err != nil {
				observability.RecordError(span, err)
				return 0, fmt.Errorf("ensure collection: %w", err)
			}
		}
		for i := range batch {
			batch[i].Vector = vecs[i]
		}
		if err := ix.repo.Upsert(ctx, batch); err != nil {
			observability.RecordError(span, err)
			return written, fmt.Errorf("upsert functions: %w", err)
		}
		written += len(batch)
	}
	ix.logger.InfoContext(ctx, "functions indexed", "count", written, "provider", ix.embedder.Name())
	return written, nil
}
