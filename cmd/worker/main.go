package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/config"
	"github.com/efebarandurmaz/callsight/internal/graph/neo4j"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/llm"
	"github.com/efebarandurmaz/callsight/internal/llm/openai"
	"github.com/efebarandurmaz/callsight/internal/observability"
	temporalmod "github.com/efebarandurmaz/callsight/internal/temporal"
	"github.com/efebarandurmaz/callsight/internal/vector"
	"github.com/efebarandurmaz/callsight/internal/vector/qdrant"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Options())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	ctx := context.Background()

	deps := &temporalmod.Dependencies{
		Builder: callgraph.NewBuilder(append(cfg.Builder.Options(), callgraph.WithLogger(logger))...),
		Logger:  logger,
	}
	if cfg.Records != "" {
		deps.Loader = ir.NewFileLoader(cfg.Records)
	}

	if cfg.Graph.URI != "" {
		repo, err := neo4j.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
		if err != nil {
			log.Fatalf("neo4j: %v", err)
		}
		defer repo.Close(ctx)
		deps.Graph = repo
		if deps.Loader == nil {
			deps.Loader = repo.Loader()
		}
	}

	// Build the embedder via factory (vector indexing is optional).
	factory := llm.NewFactory()
	openai.Register(factory)
	embedder, err := factory.Create(cfg.Embedding.ProviderConfig())
	if err != nil {
		log.Fatalf("creating embedding provider: %v", err)
	}
	if embedder != nil && cfg.Vector.Host != "" {
		repo, err := qdrant.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			log.Fatalf("qdrant: %v", err)
		}
		defer repo.Close()
		embedder = llm.Instrument(embedder, observability.Default())
		deps.Indexer = vector.NewIndexer(embedder, repo, cfg.Vector.BatchSize, logger)
	}

	temporalmod.SetDependencies(deps)

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	w.Stop()
	fmt.Println("Worker stopped")
}
