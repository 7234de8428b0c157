package vector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
)

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

type memoryRepo struct {
	dims    []int
	docs    map[string]Document
	hits    []SearchResult
	err     error
	lastTop int
}

func (m *memoryRepo) EnsureCollection(_ context.Context, dim int) error {
	m.dims = append(m.dims, dim)
	return nil
}

func (m *memoryRepo) Upsert(_ context.Context, docs []Document) error {
	if m.docs == nil {
		m.docs = make(map[string]Document)
	}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *memoryRepo) Search(_ context.Context, _ []float32, topK int) ([]SearchResult, error) {
	m.lastTop = topK
	return m.hits, m.err
}

func (m *memoryRepo) Close() error { return nil }

func testGraph(t *testing.T) *callgraph.Graph {
	t.Helper()
	g, err := callgraph.NewBuilder().Build(context.Background(), []ir.FunctionRecord{
		{ID: "login", Name: "login", Module: "auth", FilePath: "auth.py", StartLine: 1, Calls: []string{"validate"}},
		{ID: "validate", Name: "validate", Module: "auth", FilePath: "auth.py", StartLine: 9, Calls: []string{"decode"}, HasErrorHandling: true},
		{ID: "decode", Name: "decode", Module: "codec", FilePath: "codec.py", StartLine: 1, ClassContext: "Codec", Decorators: []string{"cached"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return callgraph.Analyze(g)
}

func TestPointID_Deterministic(t *testing.T) {
	if PointID("auth.login") != PointID("auth.login") {
		t.Error("point id must be stable")
	}
	if PointID("a") == PointID("b") {
		t.Error("different functions must get different point ids")
	}
	if id := PointID("a"); len(id) != 36 || id[14] != '5' {
		t.Errorf("expected a version 5 UUID, got %s", id)
	}
}

func TestFunctionText(t *testing.T) {
	r := &ir.FunctionRecord{
		Name: "decode", Module: "codec", FilePath: "codec.py", ClassContext: "Codec",
		Decorators: []string{"cached"}, Calls: []string{"b64"}, IsAsync: true,
	}
	got := FunctionText(r)
	for _, want := range []string{"function decode in class Codec of module codec (codec.py)", "decorators: cached", "calls: b64", "async"} {
		if !strings.Contains(got, want) {
			t.Errorf("FunctionText missing %q:\n%s", want, got)
		}
	}
}

func TestDocuments_Payload(t *testing.T) {
	docs := Documents(testGraph(t))
	if len(docs) != 3 {
		t.Fatalf("got %d documents", len(docs))
	}
	// Canonical order: auth.py:1, auth.py:9, codec.py:1.
	v := docs[1].Metadata
	if v[KeyFunctionID] != "validate" || v[KeyDepth] != int64(1) ||
		v[KeyDependencies] != int64(1) || v[KeyDependents] != int64(1) || v[KeyErrors] != true {
		t.Errorf("validate payload = %v", v)
	}
	if docs[1].ID != PointID("validate") {
		t.Error("document id should be the function's point id")
	}
}

func TestIndexer_IndexGraph(t *testing.T) {
	emb := &fakeEmbedder{}
	repo := &memoryRepo{}
	ix := NewIndexer(emb, repo, 2, nil)

	n, err := ix.IndexGraph(context.Background(), testGraph(t))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || len(repo.docs) != 3 {
		t.Errorf("indexed %d, stored %d", n, len(repo.docs))
	}
	if len(emb.calls) != 2 || len(emb.calls[0]) != 2 || len(emb.calls[1]) != 1 {
		t.Errorf("expected batches of 2 and 1, got %v", emb.calls)
	}
	if len(repo.dims) != 1 || repo.dims[0] != 3 {
		t.Errorf("collection should be ensured once with dim 3, got %v", repo.dims)
	}
	if d := repo.docs[PointID("decode")]; len(d.Vector) != 3 {
		t.Errorf("stored document lacks its vector: %+v", d)
	}

	// Re-indexing overwrites the same points.
	if _, err := ix.IndexGraph(context.Background(), testGraph(t)); err != nil {
		t.Fatal(err)
	}
	if len(repo.docs) != 3 {
		t.Errorf("re-index should upsert in place, have %d docs", len(repo.docs))
	}
}

func TestIndexer_EmbedError(t *testing.T) {
	ix := NewIndexer(&fakeEmbedder{err: errors.New("quota")}, &memoryRepo{}, 0, nil)
	if _, err := ix.IndexGraph(context.Background(), testGraph(t)); err == nil {
		t.Fatal("expected embedding error")
	}
	n, err := ix.IndexGraph(context.Background(), callgraph.Empty())
	if err != nil || n != 0 {
		t.Errorf("empty graph: %d, %v", n, err)
	}
}

func TestSearcher(t *testing.T) {
	repo := &memoryRepo{hits: []SearchResult{
		{Score: 0.9, Metadata: map[string]any{KeyFunctionID: "validate"}},
		{Score: 0.8, Metadata: map[string]any{}},
		{Score: 0.7, Metadata: map[string]any{KeyFunctionID: "validate"}},
		{Score: 0.5, Metadata: map[string]any{KeyFunctionID: "decode"}},
	}}
	s := NewSearcher(&fakeEmbedder{}, repo)

	got, err := s.Search(context.Background(), "token check", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "validate" || got[1].ID != "decode" {
		t.Errorf("candidates = %+v", got)
	}
	if got[0].Score < 0.89 || got[0].Score > 0.91 {
		t.Errorf("score should carry over, got %v", got[0].Score)
	}
	if repo.lastTop != 4 {
		t.Errorf("topK = %d", repo.lastTop)
	}
}

func TestSearcher_Errors(t *testing.T) {
	if _, err := NewSearcher(&fakeEmbedder{err: errors.New("down")}, &memoryRepo{}).Search(context.Background(), "q", 3); err == nil {
		t.Error("expected embed error")
	}
	if _, err := NewSearcher(&fakeEmbedder{}, &memoryRepo{err: errors.New("down")}).Search(context.Background(), "q", 3); err == nil {
		t.Error("expected search error")
	}
	got, err := NewSearcher(&fakeEmbedder{}, &memoryRepo{}).Search(context.Background(), "q", 0)
	if err != nil || len(got) != 0 {
		t.Errorf("zero limit: %v, %v", got, err)
	}
}
