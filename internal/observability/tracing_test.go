package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.ServiceName != "callsight" {
		t.Fatalf("expected service name 'callsight', got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil || tp.Tracer() == nil {
		t.Fatal("expected a usable no-op tracer provider")
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}
}

func TestBuildSpan(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartBuildSpan(context.Background(), "file:records.json", 42)
	RecordBuildResult(span, 42, 60, 3, 5)
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "callgraph.build" {
		t.Errorf("span name = %q", s.Name())
	}
	if v, ok := attr(s.Attributes(), "build.records"); !ok || v.AsInt64() != 42 {
		t.Errorf("build.records = %v", v)
	}
	if v, ok := attr(s.Attributes(), "graph.edges"); !ok || v.AsInt64() != 60 {
		t.Errorf("graph.edges = %v", v)
	}
}

func TestContextAndSearchSpans(t *testing.T) {
	sr := recordSpans(t)
	ctx := context.Background()

	_, span := StartContextSpan(ctx, "fn-1", 3)
	RecordContextResult(span, 2, 4, 1, false)
	span.End()

	_, span = StartSearchSpan(ctx, "token decode error", 5, 3)
	RecordSearchResult(span, 10, 5, true)
	span.End()

	_, span = StartAnalyzeSpan(ctx, 10)
	span.End()

	_, span = StartPersistSpan(ctx, "neo4j", 10)
	span.End()

	spans := sr.Ended()
	if len(spans) != 4 {
		t.Fatalf("expected 4 spans, got %d", len(spans))
	}
	if v, _ := attr(spans[0].Attributes(), "context.function_id"); v.AsString() != "fn-1" {
		t.Errorf("context.function_id = %q", v.AsString())
	}
	if v, _ := attr(spans[1].Attributes(), "search.degraded"); !v.AsBool() {
		t.Error("search.degraded should be true")
	}
	if len(spans[1].Events()) != 1 {
		t.Errorf("degraded search should add an event, got %d", len(spans[1].Events()))
	}
	if spans[3].Name() != "persist.neo4j" {
		t.Errorf("persist span name = %q", spans[3].Name())
	}
}

func TestRecordError(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartSearchSpan(context.Background(), "q", 1, 1)
	RecordError(span, nil)
	RecordError(span, errors.New("boom"))
	span.End()

	s := sr.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "boom" {
		t.Errorf("status = %+v, want error boom", s.Status())
	}
}
