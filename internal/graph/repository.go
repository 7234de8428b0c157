// Package graph persists published call graphs to an external graph database.
package graph

import (
	"context"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
)

// Repository provides graph storage for call graphs.
type Repository interface {
	// StoreGraph replaces the persisted graph with g.
	StoreGraph(ctx context.Context, g *callgraph.Graph) error
	// LoadRecords reads back the function records of the persisted graph.
	LoadRecords(ctx context.Context) ([]ir.FunctionRecord, error)
	// QueryCallees returns the IDs of the functions id calls.
	QueryCallees(ctx context.Context, id string) ([]string, error)
	// QueryCallers returns the IDs of the functions that call id.
	QueryCallers(ctx context.Context, id string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// NodeRow is the property map written for one :Function node.
type NodeRow = map[string]any

// EdgeRow is the property map written for one :CALLS relationship.
type EdgeRow = map[string]any

// NodeRows flattens g's nodes into database parameter rows, in canonical
// record order.
func NodeRows(g *callgraph.Graph) []NodeRow {
	all := g.Records().All()
	rows := make([]NodeRow, 0, len(all))
	for i := range all {
		r := &all[i]
		n, ok := g.Node(r.ID)
		if !ok {
			continue
		}
		rows = append(rows, NodeRow{
			"id":                 r.ID,
			"name":               r.Name,
			"module":             r.Module,
			"file":               r.FilePath,
			"repository":         r.Repository,
			"class_context":      r.ClassContext,
			"calls":              nonNil(r.Calls),
			"decorators":         nonNil(r.Decorators),
			"imports":            nonNil(r.Imports),
			"is_async":           r.IsAsync,
			"has_error_handling": r.HasErrorHandling,
			"start_line":         int64(r.StartLine),
			"end_line":           int64(r.EndLine),
			"depth":              int64(n.Depth),
			"is_root":            n.IsRoot(),
			"is_leaf":            n.IsLeaf(),
		})
	}
	return rows
}

// EdgeRows lists every resolved call edge as a caller/callee row, sorted by
// caller then callee.
func EdgeRows(g *callgraph.Graph) []EdgeRow {
	var rows []EdgeRow
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		for _, callee := range n.Dependencies() {
			rows = append(rows, EdgeRow{"caller": id, "callee": callee})
		}
	}
	return rows
}

// RecordFromRow is the inverse of the record half of NodeRows.
func RecordFromRow(row map[string]any) ir.FunctionRecord {
	return ir.FunctionRecord{
		ID:               str(row["id"]),
		Name:             str(row["name"]),
		Module:           str(row["module"]),
		FilePath:         str(row["file"]),
		Repository:       str(row["repository"]),
		ClassContext:     str(row["class_context"]),
		Calls:            strs(row["calls"]),
		Decorators:       strs(row["decorators"]),
		Imports:          strs(row["imports"]),
		IsAsync:          boolean(row["is_async"]),
		HasErrorHandling: boolean(row["has_error_handling"]),
		StartLine:        integer(row["start_line"]),
		EndLine:          integer(row["end_line"]),
	}
}

// Batches splits rows into chunks of at most size.
func Batches[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]T
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func integer(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// strs accepts both []string and the []any lists returned by drivers.
func strs(v any) []string {
	switch l := v.(type) {
	case []string:
		if len(l) == 0 {
			return nil
		}
		return append([]string(nil), l...)
	case []any:
		var out []string
		for _, x := range l {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
