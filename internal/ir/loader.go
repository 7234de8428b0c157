package ir

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Loader supplies a complete record set for one build.
type Loader interface {
	// Name identifies the record source (used to coalesce concurrent loads).
	Name() string
	// Load returns every record of the source.
	Load(ctx context.Context) ([]FunctionRecord, error)
}

// ExportDocument is the on-disk format written by WriteRecords.
type ExportDocument struct {
	ExportInfo ExportInfo       `json:"export_info"`
	Summary    StoreSummary     `json:"summary"`
	Functions  []FunctionRecord `json:"functions"`
}

// ExportInfo describes when and how an export was produced.
type ExportInfo struct {
	CreatedAt      time.Time `json:"created_at"`
	Version        string    `json:"version"`
	TotalFunctions int       `json:"total_functions"`
}

const exportVersion = "1.0"

// FileLoader reads records from a JSON, export-document or JSON Lines file.
type FileLoader struct {
	Path string
}

// NewFileLoader creates a loader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}

func (l *FileLoader) Name() string { return "file:" + l.Path }

func (l *FileLoader) Load(ctx context.Context) ([]FunctionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()

	if ext := strings.ToLower(filepath.Ext(l.Path)); ext == ".jsonl" || ext == ".ndjson" {
		return ReadJSONL(f)
	}
	return ReadRecords(f)
}

// ReadRecords decodes either a JSON array of records or an ExportDocument.
// Input that starts with neither '[' nor '{' is treated as JSON Lines.
func ReadRecords(r io.Reader) ([]FunctionRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var records []FunctionRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
		return records, nil
	case '{':
		// A single object is either an export document or the first line
		// of a JSON Lines stream.
		var doc ExportDocument
		if err := json.Unmarshal(trimmed, &doc); err == nil && doc.Functions != nil {
			return doc.Functions, nil
		}
		return ReadJSONL(bytes.NewReader(trimmed))
	default:
		return nil, fmt.Errorf("decode records: unexpected leading byte %q", trimmed[0])
	}
}

// ReadJSONL decodes one record per non-empty line.
func ReadJSONL(r io.Reader) ([]FunctionRecord, error) {
	var records []FunctionRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec FunctionRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return records, nil
}

// WriteRecords writes the store as an indented ExportDocument.
func WriteRecords(w io.Writer, s *RecordStore) error {
	doc := ExportDocument{
		ExportInfo: ExportInfo{
			CreatedAt:      time.Now().UTC(),
			Version:        exportVersion,
			TotalFunctions: s.Len(),
		},
		Summary:   s.Summary(),
		Functions: s.All(),
	}
	if doc.Functions == nil {
		doc.Functions = []FunctionRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// StaticLoader serves a fixed in-memory record set.
type StaticLoader struct {
	Label   string
	Records []FunctionRecord
}

func (l *StaticLoader) Name() string { return "static:" + l.Label }

func (l *StaticLoader) Load(ctx context.Context) ([]FunctionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]FunctionRecord, len(l.Records))
	copy(out, l.Records)
	return out, nil
}
