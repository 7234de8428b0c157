package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, LogConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("graph published", "nodes", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["msg"] != "graph published" || entry["nodes"] != float64(3) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewLogger_TraceIDs(t *testing.T) {
	recordSpans(t)

	var buf bytes.Buffer
	logger, err := NewLogger(&buf, LogConfig{Format: "text"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, span := StartSearchSpan(context.Background(), "q", 1, 1)
	logger.InfoContext(ctx, "searching")
	span.End()

	if !strings.Contains(buf.String(), "trace_id="+TraceID(ctx)) {
		t.Errorf("log line should carry the trace id: %s", buf.String())
	}
	if TraceID(context.Background()) != "" {
		t.Error("TraceID without a span should be empty")
	}
}

func TestNewLogger_BadFormat(t *testing.T) {
	if _, err := NewLogger(&bytes.Buffer{}, LogConfig{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
