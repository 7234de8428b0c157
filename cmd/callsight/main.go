package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/llm"
	"github.com/efebarandurmaz/callsight/internal/metrics"
	"github.com/efebarandurmaz/callsight/internal/search"
	temporalmod "github.com/efebarandurmaz/callsight/internal/temporal"
	"github.com/efebarandurmaz/callsight/internal/vector"
)

var version = "dev"

func main() {
	var (
		configPath  string
		recordsPath string
	)

	rootCmd := &cobra.Command{
		Use:          "callsight",
		Short:        "Call graph context resolution and graph-aware code search",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&recordsPath, "records", "", "Function record file (overrides records in the config)")

	var (
		persist    bool
		index      bool
		jsonReport bool
	)
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build and analyze the call graph, optionally persisting and indexing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), configPath, recordsPath, persist, index, jsonReport)
		},
	}
	buildCmd.Flags().BoolVar(&persist, "persist", false, "Write the graph to Neo4j (requires graph.uri)")
	buildCmd.Flags().BoolVar(&index, "index", false, "Embed functions into Qdrant (requires vector.host and an embedding provider)")
	buildCmd.Flags().BoolVar(&jsonReport, "json", false, "Output the build report as JSON")

	var contextDepth int
	contextCmd := &cobra.Command{
		Use:   "context <function-id>",
		Short: "Show the ancestors, descendants and call paths of a function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd.Context(), cmd.OutOrStdout(), configPath, recordsPath, args[0], contextDepth)
		},
	}
	contextCmd.Flags().IntVar(&contextDepth, "depth", -1, "Traversal depth (default: search.limits.default_depth)")

	var (
		searchLimit int
		searchDepth int
		searchJSON  bool
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank functions for a query and attach their dependency context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.Request{Query: strings.Join(args, " "), Limit: searchLimit, MaxDepth: searchDepth}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), configPath, recordsPath, req, searchJSON)
		},
	}
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (default: search.limits.default_limit)")
	searchCmd.Flags().IntVar(&searchDepth, "depth", 0, "Context depth (default: search.limits.default_depth)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output the full response as JSON")

	var (
		exportFormat string
		exportOutput string
	)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the call graph as dot, mermaid, json, stats or records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), cmd.OutOrStdout(), configPath, recordsPath, exportFormat, exportOutput)
		},
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "dot", "Output format: dot, mermaid, json, stats, records")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file (default: stdout)")

	var (
		indexSkipPersist bool
		indexSkipVectors bool
	)
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Run the index workflow on a Temporal worker and wait for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := temporalmod.IndexInput{
				RecordsPath: recordsPath,
				SkipPersist: indexSkipPersist,
				SkipIndex:   indexSkipVectors,
			}
			return runIndexWorkflow(cmd.Context(), cmd.OutOrStdout(), configPath, input)
		},
	}
	indexCmd.Flags().BoolVar(&indexSkipPersist, "skip-persist", false, "Do not write the graph to Neo4j")
	indexCmd.Flags().BoolVar(&indexSkipVectors, "skip-vectors", false, "Do not embed functions into Qdrant")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, recordsPath)
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			printProviders(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(buildCmd, contextCmd, searchCmd, exportCmd, indexCmd, serveCmd, providersCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runBuild(ctx context.Context, configPath, recordsPath string, persist, index, jsonReport bool) error {
	m := metrics.New()

	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	loader, err := a.recordLoader(recordsPath)
	if err != nil {
		return err
	}

	start := time.Now()
	snap, err := a.newStore().Reload(ctx, loader)
	if err != nil {
		m.AddStage("build", time.Since(start), 0, err)
		return err
	}
	g := snap.Graph
	m.AddStage("build", time.Since(start), g.Len(), nil)
	m.CollectSource(loader.Name(), g.Records())
	m.CollectGraph(g.Stats())

	switch {
	case !persist:
		m.SkipStage("persist", "not requested")
	case a.cfg.Graph.URI == "":
		m.SkipStage("persist", "graph.uri not set")
	default:
		start = time.Now()
		err := persistGraph(ctx, a, g)
		m.AddStage("persist", time.Since(start), g.Len(), err)
	}

	switch {
	case !index:
		m.SkipStage("index", "not requested")
	default:
		start = time.Now()
		n, err := indexGraph(ctx, a, g)
		if n < 0 {
			m.SkipStage("index", "vector.host or embedding provider not set")
			break
		}
		m.AddStage("index", time.Since(start), n, err)
	}

	m.Finish()
	if jsonReport {
		data, err := m.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		m.PrintSummary(os.Stdout)
	}

	if m.Failed() {
		return fmt.Errorf("build finished with %d error(s)", len(m.Errors))
	}
	return nil
}

func persistGraph(ctx context.Context, a *app, g *callgraph.Graph) error {
	repo, err := a.openGraphRepo(ctx)
	if err != nil {
		return err
	}
	defer repo.Close(ctx)
	return repo.StoreGraph(ctx, g)
}

// indexGraph returns -1 when vector search is not configured.
func indexGraph(ctx context.Context, a *app, g *callgraph.Graph) (int, error) {
	vs, err := a.openVectorSearch(ctx)
	if err != nil {
		return 0, err
	}
	if vs == nil {
		return -1, nil
	}
	defer vs.Close()
	ix := vector.NewIndexer(vs.embedder, vs.repo, a.cfg.Vector.BatchSize, a.logger)
	return ix.IndexGraph(ctx, g)
}

type contextOutput struct {
	Context *callgraph.DependencyContext `json:"context"`
	Summary *search.ContextSummary       `json:"summary"`
}

func runContext(ctx context.Context, w io.Writer, configPath, recordsPath, id string, depth int) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	st, _, err := a.loadGraph(ctx, recordsPath)
	if err != nil {
		return err
	}
	svc := a.newService(st, nil)
	if depth < 0 {
		depth = svc.Limits().DefaultDepth
	}
	dc, summary, err := svc.Describe(ctx, id, depth)
	if err != nil {
		return err
	}
	return writeIndented(w, contextOutput{Context: dc, Summary: summary})
}

func runSearch(ctx context.Context, w io.Writer, configPath, recordsPath string, req search.Request, asJSON bool) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	st, _, err := a.loadGraph(ctx, recordsPath)
	if err != nil {
		return err
	}
	vs, err := a.openVectorSearch(ctx)
	if err != nil {
		return err
	}
	defer vs.Close()

	resp, err := a.newService(st, vs).Search(ctx, req)
	if err != nil {
		return err
	}
	if asJSON {
		return writeIndented(w, resp)
	}

	if resp.Degraded {
		fmt.Fprintf(w, "Similarity search unavailable (%s), ranked by graph statistics\n\n", resp.DegradedReason)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %-40s score=%.3f depth=%d\n", i+1, r.ID, r.Score, r.Depth)
		if s := r.Summary; s != nil {
			fmt.Fprintf(w, "    %d callers, %d callees, %d paths, modules: %s\n",
				s.AncestorCount, s.DescendantCount, s.CallPathCount, strings.Join(s.ModulesInvolved, ", "))
		}
		if len(r.Absorbed) > 0 {
			fmt.Fprintf(w, "    covers: %s\n", strings.Join(r.Absorbed, ", "))
		}
	}
	return nil
}

func runExport(ctx context.Context, w io.Writer, configPath, recordsPath, format, outputPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	_, snap, err := a.loadGraph(ctx, recordsPath)
	if err != nil {
		return err
	}

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outputPath, err)
		}
		defer f.Close()
		w = f
	}
	return writeExport(w, snap.Graph, format)
}

func writeExport(w io.Writer, g *callgraph.Graph, format string) error {
	switch format {
	case "dot":
		_, err := io.WriteString(w, callgraph.ExportDOT(g))
		return err
	case "mermaid":
		_, err := io.WriteString(w, callgraph.ExportMermaid(g))
		return err
	case "stats":
		_, err := io.WriteString(w, callgraph.FormatStats(g))
		return err
	case "json":
		data, err := callgraph.ExportJSON(g)
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case "records":
		return ir.WriteRecords(w, g.Records())
	default:
		return fmt.Errorf("unknown export format %q (want dot, mermaid, json, stats or records)", format)
	}
}

func runIndexWorkflow(ctx context.Context, w io.Writer, configPath string, input temporalmod.IndexInput) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	tc := a.cfg.Temporal
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  tc.Host,
		Namespace: tc.Namespace,
		Logger:    temporallog.NewStructuredLogger(a.logger),
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("callsight-index-%d", time.Now().UnixNano()),
		TaskQueue: tc.TaskQueue,
	}, temporalmod.IndexWorkflow, input)
	if err != nil {
		return fmt.Errorf("starting index workflow: %w", err)
	}
	a.logger.InfoContext(ctx, "index workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var out temporalmod.IndexOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("index workflow: %w", err)
	}
	return writeIndented(w, out)
}

func printProviders(w io.Writer) {
	names := make([]string, 0, len(llm.KnownProviders))
	for name := range llm.KnownProviders {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Available embedding providers:")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, llm.KnownProviders[name])
	}
	fmt.Fprintln(w, "  custom         (set base_url to any OpenAI-compatible endpoint)")
	fmt.Fprintln(w, "  none           (keyword search only)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configure in callsight.yaml or via environment:")
	fmt.Fprintln(w, "  CALLSIGHT_EMBEDDING_PROVIDER=openai")
	fmt.Fprintln(w, "  CALLSIGHT_EMBEDDING_API_KEY=sk-...")
	fmt.Fprintln(w, "  CALLSIGHT_EMBEDDING_MODEL=text-embedding-3-small")
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
