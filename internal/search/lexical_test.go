package search

import (
	"context"
	"strings"
	"testing"

	"github.com/efebarandurmaz/callsight/internal/ir"
)

type staticRecords struct{ store *ir.RecordStore }

func (s staticRecords) Records() *ir.RecordStore { return s.store }

func lexicalFixture() *LexicalSearcher {
	return NewLexicalSearcher(staticRecords{ir.NewRecordStore([]ir.FunctionRecord{
		{ID: "v", Name: "validate_token", Module: "auth", FilePath: "auth/tokens.py", StartLine: 1},
		{ID: "d", Name: "decode_token", Module: "auth", FilePath: "auth/tokens.py", StartLine: 20, HasErrorHandling: true},
		{ID: "e", Name: "sendEmail", Module: "notify", FilePath: "notify/mail.py", StartLine: 1},
	})})
}

func candidateIDs(cs []Candidate) string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"parseHTTPRequest", "parse,http,request"},
		{"snake_case_name", "snake,case,name"},
		{"pkg/auth/login.py", "pkg,auth,login,py"},
		{"SendEmail", "send,email"},
		{"self.decode", "self,decode"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := strings.Join(splitIdentifier(tt.in), ","); got != tt.want {
				t.Errorf("splitIdentifier(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestLexicalSearcher_Ranking(t *testing.T) {
	s := lexicalFixture()
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"stemmed_terms", "token validation", "v,d"},
		{"error_words_favour_handlers", "token error", "d,v"},
		{"whole_query_in_name", "sendemail", "e"},
		{"module_term", "notify", "e"},
		{"no_match", "kubernetes", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query, 10)
			if err != nil {
				t.Fatal(err)
			}
			if candidateIDs(got) != tt.want {
				t.Errorf("Search(%q) = %s, want %s", tt.query, candidateIDs(got), tt.want)
			}
			if len(got) > 0 && got[0].Score != 1 {
				t.Errorf("best score should normalize to 1, got %v", got[0].Score)
			}
		})
	}
}

func TestLexicalSearcher_CamelCaseQuery(t *testing.T) {
	s := NewLexicalSearcher(staticRecords{ir.NewRecordStore([]ir.FunctionRecord{
		{ID: "p", Name: "parseHTTPRequest", Module: "web", FilePath: "web/handlers.py"},
		{ID: "e", Name: "sendEmail", Module: "notify", FilePath: "notify/mail.py"},
	})})

	for _, q := range []string{"parseHTTPRequest fails", "http request fails", "ParseHttpRequest"} {
		got, err := s.Search(context.Background(), q, 10)
		if err != nil {
			t.Fatal(err)
		}
		if candidateIDs(got) != "p" {
			t.Errorf("Search(%q) = %q, want p", q, candidateIDs(got))
		}
	}

	want := strings.Join(stemAll([]string{"parse", "http", "request", "fail"}), ",")
	if got := strings.Join(queryTerms("parseHTTPRequest fails"), ","); got != want {
		t.Errorf("queryTerms = %s, want %s", got, want)
	}
}

func TestLexicalSearcher_FuzzyName(t *testing.T) {
	got, err := lexicalFixture().Search(context.Background(), "tokn", 10)
	if err != nil {
		t.Fatal(err)
	}
	if candidateIDs(got) != "v,d" {
		t.Errorf("typo should still find both token functions, got %s", candidateIDs(got))
	}
}

func TestLexicalSearcher_Limits(t *testing.T) {
	s := lexicalFixture()
	ctx := context.Background()

	got, err := s.Search(ctx, "token", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("limit 1 returned %d candidates", len(got))
	}
	for _, q := range []string{"", "   "} {
		got, err := s.Search(ctx, q, 5)
		if err != nil || len(got) != 0 {
			t.Errorf("blank query should return nothing, got %v %v", got, err)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Search(cancelled, "token", 5); err == nil {
		t.Error("expected error for cancelled context")
	}
}
