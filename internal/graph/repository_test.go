package graph

import (
	"context"
	"reflect"
	"testing"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
)

func testGraph(t *testing.T) *callgraph.Graph {
	t.Helper()
	g, err := callgraph.NewBuilder().Build(context.Background(), []ir.FunctionRecord{
		{ID: "b", Name: "validate", Module: "auth", FilePath: "auth.py", StartLine: 10, Calls: []string{"decode"}},
		{ID: "a", Name: "login", Module: "auth", FilePath: "auth.py", StartLine: 1, Calls: []string{"validate", "print"}, IsAsync: true},
		{ID: "c", Name: "decode", Module: "codec", FilePath: "codec.py", StartLine: 1, EndLine: 9, Decorators: []string{"cache"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return callgraph.Analyze(g)
}

func TestNodeRows(t *testing.T) {
	rows := NodeRows(testGraph(t))
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	var ids []string
	for _, r := range rows {
		ids = append(ids, r["id"].(string))
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("rows not in canonical order: %v", ids)
	}
	if rows[0]["is_root"] != true || rows[2]["is_leaf"] != true || rows[2]["depth"] != int64(2) {
		t.Errorf("graph properties wrong: %v / %v", rows[0], rows[2])
	}
	if calls, ok := rows[2]["calls"].([]string); !ok || calls == nil {
		t.Errorf("empty call list should be a non-nil slice, got %#v", rows[2]["calls"])
	}
}

func TestEdgeRows(t *testing.T) {
	rows := EdgeRows(testGraph(t))
	want := []EdgeRow{
		{"caller": "a", "callee": "b"},
		{"caller": "b", "callee": "c"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("EdgeRows = %v, want %v", rows, want)
	}
}

func TestRecordFromRow(t *testing.T) {
	g := testGraph(t)
	for _, row := range NodeRows(g) {
		// Drivers hand lists back as []any.
		calls := row["calls"].([]string)
		anyCalls := make([]any, len(calls))
		for i, c := range calls {
			anyCalls[i] = c
		}
		row["calls"] = anyCalls

		got := RecordFromRow(row)
		want, _ := g.Record(got.ID)
		if !reflect.DeepEqual(got, *want) {
			t.Errorf("round trip of %s:\n got %+v\nwant %+v", got.ID, got, *want)
		}
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 10, nil},
		{5, 2, []int{2, 2, 1}},
		{4, 4, []int{4}},
		{3, 0, []int{3}},
	}
	for _, tt := range tests {
		rows := make([]int, tt.n)
		var sizes []int
		for _, b := range Batches(rows, tt.size) {
			sizes = append(sizes, len(b))
		}
		if !reflect.DeepEqual(sizes, tt.want) {
			t.Errorf("Batches(%d, %d) sizes = %v, want %v", tt.n, tt.size, sizes, tt.want)
		}
	}
}
