// Package observability provides OpenTelemetry tracing, Prometheus metrics
// and slog setup for callsight.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the callsight tracer.
	TracerName = "github.com/efebarandurmaz/callsight"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "callsight")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "callsight",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds for callsight operations.
const (
	SpanKindBuild   = "build"
	SpanKindAnalyze = "analyze"
	SpanKindContext = "context"
	SpanKindSearch  = "search"
	SpanKindPersist = "persist"
)

// StartBuildSpan starts a span for a call graph build.
func StartBuildSpan(ctx context.Context, source string, records int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "callgraph.build",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("callsight.span.kind", SpanKindBuild),
			attribute.String("build.source", source),
			attribute.Int("build.records", records),
		),
	)
}

// RecordBuildResult records graph size and resolution figures on a span.
func RecordBuildResult(span trace.Span, nodes, edges, unresolved, maxDepth int) {
	span.SetAttributes(
		attribute.Int("graph.nodes", nodes),
		attribute.Int("graph.edges", edges),
		attribute.Int("graph.unresolved_calls", unresolved),
		attribute.Int("graph.max_depth", maxDepth),
	)
}

// StartAnalyzeSpan starts a span for graph analysis.
func StartAnalyzeSpan(ctx context.Context, nodes int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "callgraph.analyze",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("callsight.span.kind", SpanKindAnalyze),
			attribute.Int("graph.nodes", nodes),
		),
	)
}

// StartContextSpan starts a span for a dependency context query.
func StartContextSpan(ctx context.Context, functionID string, maxDepth int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "callgraph.context",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("callsight.span.kind", SpanKindContext),
			attribute.String("context.function_id", functionID),
			attribute.Int("context.max_depth", maxDepth),
		),
	)
}

// RecordContextResult records the size of a dependency context.
func RecordContextResult(span trace.Span, ancestors, descendants, paths int, truncated bool) {
	span.SetAttributes(
		attribute.Int("context.ancestors", ancestors),
		attribute.Int("context.descendants", descendants),
		attribute.Int("context.paths", paths),
		attribute.Bool("context.truncated", truncated),
	)
}

// StartSearchSpan starts a span for a fused search.
func StartSearchSpan(ctx context.Context, query string, limit, maxDepth int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "search.fused",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("callsight.span.kind", SpanKindSearch),
			attribute.Int("search.query_length", len(query)),
			attribute.Int("search.limit", limit),
			attribute.Int("search.max_depth", maxDepth),
		),
	)
}

// RecordSearchResult records search outcome on a span.
func RecordSearchResult(span trace.Span, candidates, results int, degraded bool) {
	span.SetAttributes(
		attribute.Int("search.candidates", candidates),
		attribute.Int("search.results", results),
		attribute.Bool("search.degraded", degraded),
	)
	if degraded {
		span.AddEvent("search degraded to graph statistics")
	}
}

// StartPersistSpan starts a span for writing to an external store.
func StartPersistSpan(ctx context.Context, backend string, items int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "persist."+backend,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("callsight.span.kind", SpanKindPersist),
			attribute.String("persist.backend", backend),
			attribute.Int("persist.items", items),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
