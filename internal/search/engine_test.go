package search

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/ir"
)

func rec(id, module string, calls ...string) ir.FunctionRecord {
	return ir.FunctionRecord{ID: id, Name: id, Module: module, FilePath: module + ".py", Calls: calls}
}

func buildGraph(t *testing.T, records ...ir.FunctionRecord) *callgraph.Graph {
	t.Helper()
	g, err := callgraph.NewBuilder().Build(context.Background(), records)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return callgraph.Analyze(g)
}

func loginGraph(t *testing.T) *callgraph.Graph {
	return buildGraph(t,
		rec("Login", "auth", "Validate", "Audit"),
		rec("Validate", "auth", "Decode"),
		rec("Decode", "auth"),
		rec("Audit", "audit"),
	)
}

func resultIDs(rs []Result) string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return strings.Join(ids, ",")
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestWeights_Monotonic(t *testing.T) {
	w := DefaultWeights()
	if err := w.Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}
	if w.DepthWeight(0) != 1 || w.RelationshipBoost(0) != 1 {
		t.Error("neutral depth and dependent count should weigh 1")
	}
	for d := 0; d < 20; d++ {
		if w.DepthWeight(d+1) > w.DepthWeight(d) {
			t.Errorf("DepthWeight increased from %d to %d", d, d+1)
		}
		if w.RelationshipBoost(d+1) < w.RelationshipBoost(d) {
			t.Errorf("RelationshipBoost decreased from %d to %d", d, d+1)
		}
	}
	if got := w.RelationshipBoost(1 << 30); got != w.MaxBoost {
		t.Errorf("boost should cap at %v, got %v", w.MaxBoost, got)
	}
}

func TestWeights_Validate(t *testing.T) {
	bad := []Weights{
		{DepthDecay: -1, MaxBoost: 2},
		{DependentBoost: -0.1, MaxBoost: 2},
		{MaxBoost: 0.5},
		{DepthDecay: math.NaN(), MaxBoost: 2},
		{DependentBoost: math.Inf(1), MaxBoost: 2},
	}
	for _, w := range bad {
		if w.Validate() == nil {
			t.Errorf("expected %+v to be rejected", w)
		}
	}
}

func TestFuse_EmptyGraphPassesCandidatesThrough(t *testing.T) {
	e := NewEngine(DefaultWeights())
	candidates := []Candidate{{"a", 0.9}, {"b", 0.7}, {"c", 0.2}}

	for name, g := range map[string]*callgraph.Graph{"empty": callgraph.Empty(), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			got, err := e.Fuse(candidates, g, 3, 2)
			if err != nil {
				t.Fatal(err)
			}
			if resultIDs(got) != "a,b" {
				t.Fatalf("results = %s, want a,b", resultIDs(got))
			}
			for i, r := range got {
				if r.Score != candidates[i].Score || r.Summary != nil || r.Context != nil {
					t.Errorf("result %d should be the unmodified candidate, got %+v", i, r)
				}
			}
		})
	}
}

func TestFuse_ScoresAndAbsorption(t *testing.T) {
	g := loginGraph(t)
	e := NewEngine(DefaultWeights())
	w := e.Weights()
	candidates := []Candidate{{"Decode", 0.9}, {"Login", 0.8}, {"Audit", 0.5}}

	t.Run("depth_3_absorbs_ancestor", func(t *testing.T) {
		got, err := e.Fuse(candidates, g, 3, 5)
		if err != nil {
			t.Fatal(err)
		}
		if resultIDs(got) != "Decode,Audit" {
			t.Fatalf("results = %s, want Decode,Audit", resultIDs(got))
		}
		if strings.Join(got[0].Absorbed, ",") != "Login" {
			t.Errorf("Decode should absorb Login, got %v", got[0].Absorbed)
		}
		wantDecode := 0.9 * w.DepthWeight(2) * w.RelationshipBoost(1)
		if !almostEqual(got[0].Score, wantDecode) {
			t.Errorf("Decode score = %v, want %v", got[0].Score, wantDecode)
		}
		if got[0].BaseScore != 0.9 || got[0].Depth != 2 {
			t.Errorf("Decode base/depth = %v/%d", got[0].BaseScore, got[0].Depth)
		}
	})

	t.Run("depth_1_keeps_both", func(t *testing.T) {
		got, err := e.Fuse(candidates, g, 1, 5)
		if err != nil {
			t.Fatal(err)
		}
		if resultIDs(got) != "Login,Decode" {
			t.Fatalf("results = %s, want Login,Decode", resultIDs(got))
		}
		if strings.Join(got[0].Absorbed, ",") != "Audit" {
			t.Errorf("Login should absorb Audit, got %v", got[0].Absorbed)
		}
		if got[0].Summary == nil || got[0].Summary.PrimaryFunction != "Login" {
			t.Errorf("Login summary = %+v", got[0].Summary)
		}
	})

	t.Run("limit_stops_selection", func(t *testing.T) {
		got, err := e.Fuse(candidates, g, 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		if resultIDs(got) != "Decode" {
			t.Errorf("results = %s, want Decode", resultIDs(got))
		}
	})
}

func TestFuse_TieBreaks(t *testing.T) {
	g := loginGraph(t)
	flat := NewEngine(Weights{MaxBoost: 1})

	got, err := flat.Fuse([]Candidate{{"Decode", 0.5}, {"Validate", 0.5}, {"Login", 0.5}}, g, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if resultIDs(got) != "Login,Validate,Decode" {
		t.Errorf("equal scores should order by depth, got %s", resultIDs(got))
	}

	got, err = flat.Fuse([]Candidate{{"Validate", 0.5}, {"Audit", 0.5}}, g, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if resultIDs(got) != "Validate,Audit" {
		t.Errorf("equal score and depth should keep candidate order, got %s", resultIDs(got))
	}
}

func TestFuse_UnknownAndDuplicateCandidates(t *testing.T) {
	g := loginGraph(t)
	e := NewEngine(DefaultWeights())

	got, err := e.Fuse([]Candidate{{"ghost", 0.95}, {"Login", 0.6}, {"ghost", 0.5}}, g, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if resultIDs(got) != "ghost,Login" {
		t.Fatalf("results = %s, want ghost,Login", resultIDs(got))
	}
	if got[0].Summary != nil || got[0].Score != 0.95 {
		t.Errorf("unknown candidate should pass through unboosted: %+v", got[0])
	}
}

func TestFuse_Bounds(t *testing.T) {
	e := NewEngine(DefaultWeights())
	g := loginGraph(t)

	if _, err := e.Fuse([]Candidate{{"Login", 1}}, g, -1, 5); !errors.Is(err, callgraph.ErrInvalidDepth) {
		t.Errorf("negative depth: got %v", err)
	}
	got, err := e.Fuse([]Candidate{{"Login", 1}}, g, 2, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("zero limit should return nothing, got %v, %v", got, err)
	}
}

func TestStatisticalCandidates(t *testing.T) {
	e := NewEngine(DefaultWeights())
	got := e.StatisticalCandidates(loginGraph(t))

	var ids []string
	for _, c := range got {
		ids = append(ids, c.ID)
		if c.Score != 1 {
			t.Errorf("statistical candidate %s has score %v, want 1", c.ID, c.Score)
		}
	}
	if strings.Join(ids, ",") != "Login,Audit,Validate,Decode" {
		t.Errorf("order = %v, want Login,Audit,Validate,Decode", ids)
	}
	if len(e.StatisticalCandidates(callgraph.Empty())) != 0 {
		t.Error("empty graph should yield no candidates")
	}
}

func TestSummarize(t *testing.T) {
	recs := []ir.FunctionRecord{
		{ID: "Login", Name: "login", Module: "auth", FilePath: "auth/login.py", Calls: []string{"validate"}, IsAsync: true},
		{ID: "Validate", Name: "validate", Module: "auth", FilePath: "auth/validate.py", Calls: []string{"decode"}},
		{ID: "Decode", Name: "decode", Module: "codec", FilePath: "codec/decode.py", HasErrorHandling: true},
	}
	g := buildGraph(t, recs...)
	dc, err := g.ContextFor("Validate", 2)
	if err != nil {
		t.Fatal(err)
	}
	s := Summarize(g, dc, 0.42)

	if s.PrimaryFunction != "validate" || s.GraphDepth != 1 {
		t.Errorf("primary/depth = %s/%d", s.PrimaryFunction, s.GraphDepth)
	}
	if s.AncestorCount != 1 || s.DescendantCount != 1 || s.TotalFunctions != 3 || s.CallPathCount != 1 {
		t.Errorf("counts = %+v", s)
	}
	if strings.Join(s.ModulesInvolved, ",") != "auth,codec" || len(s.FilesInvolved) != 3 {
		t.Errorf("modules/files = %v / %v", s.ModulesInvolved, s.FilesInvolved)
	}
	if !s.HasErrorHandling || s.AsyncFunctions != 1 || s.RelevanceScore != 0.42 {
		t.Errorf("flags = %+v", s)
	}
}
