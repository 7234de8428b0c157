package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/efebarandurmaz/callsight/internal/ir"
)

// RecordSource hands out the current record set. *callgraph.Graph and the
// graph store both satisfy it.
type RecordSource interface {
	Records() *ir.RecordStore
}

// Keyword score components.
const (
	scoreNameSubstring   = 10.0
	scoreModuleSubstring = 5.0
	scoreErrorHandling   = 3.0
	scoreNameTerm        = 4.0
	scoreModuleTerm      = 2.0
	scorePathTerm        = 1.0
	scoreFuzzyTerm       = 2.0
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a near-miss term.
const fuzzyThreshold = 0.88

// minStemLength leaves short terms such as "id" and "io" unstemmed.
const minStemLength = 3

var errorWords = []string{"error", "exception", "bug", "issue", "fail", "panic", "crash"}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "to": true, "for": true, "is": true, "it": true,
	"when": true, "with": true, "from": true, "by": true, "be": true, "at": true,
	"not": true, "does": true, "do": true, "this": true, "that": true,
}

// LexicalSearcher scores records against keyword overlap with the query. It
// is the in-process similarity source used when no vector index is
// configured.
//
// A record earns points when the whole query appears in its name or module,
// when it handles errors and the query talks about failures, and per query
// term that matches (after Porter2 stemming) a word of its name, module or
// file path. Terms that miss exactly but are close to a name word by
// Jaro-Winkler similarity earn a smaller, similarity-weighted amount.
type LexicalSearcher struct {
	source RecordSource
}

// NewLexicalSearcher creates a searcher over source.
func NewLexicalSearcher(source RecordSource) *LexicalSearcher {
	return &LexicalSearcher{source: source}
}

// Search returns up to limit candidates with a positive score, best first,
// scores normalized so the best is 1.
func (s *LexicalSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store := s.source.Records()
	query = strings.TrimSpace(query)
	q := strings.ToLower(query)
	if q == "" || limit <= 0 || store.Len() == 0 {
		return []Candidate{}, nil
	}

	// Terms come from the original case so camelCase queries split.
	terms := queryTerms(query)
	mentionsErrors := false
	for _, w := range errorWords {
		if strings.Contains(q, w) {
			mentionsErrors = true
			break
		}
	}

	var out []Candidate
	for i, r := range store.All() {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := scoreRecord(&r, q, terms, mentionsErrors)
		if score > 0 {
			out = append(out, Candidate{ID: r.ID, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) > 0 {
		top := out[0].Score
		for i := range out {
			out[i].Score /= top
		}
	}
	if out == nil {
		out = []Candidate{}
	}
	return out, nil
}

func scoreRecord(r *ir.FunctionRecord, q string, terms []string, mentionsErrors bool) float64 {
	name := strings.ToLower(r.Name)
	module := strings.ToLower(r.Module)

	var score float64
	if strings.Contains(name, q) {
		score += scoreNameSubstring
	}
	if module != "" && strings.Contains(module, q) {
		score += scoreModuleSubstring
	}
	if mentionsErrors && r.HasErrorHandling {
		score += scoreErrorHandling
	}
	if len(terms) == 0 {
		return score
	}

	nameWords := stemAll(splitIdentifier(r.Name))
	moduleWords := stemSet(splitIdentifier(r.Module))
	pathWords := stemSet(splitIdentifier(r.FilePath))

	for _, t := range terms {
		switch {
		case containsWord(nameWords, t):
			score += scoreNameTerm
		case moduleWords[t]:
			score += scoreModuleTerm
		case pathWords[t]:
			score += scorePathTerm
		default:
			if sim := bestSimilarity(t, nameWords); sim >= fuzzyThreshold {
				score += scoreFuzzyTerm * sim
			}
		}
	}
	return score
}

func bestSimilarity(term string, words []string) float64 {
	best := 0.0
	for _, w := range words {
		sim, err := edlib.StringsSimilarity(term, w, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(sim) > best {
			best = float64(sim)
		}
	}
	return best
}

// queryTerms splits a query into distinct stemmed words without stop words.
func queryTerms(q string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range splitIdentifier(q) {
		if stopWords[w] {
			continue
		}
		w = stem(w)
		if !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

// splitIdentifier breaks camelCase, snake_case, dotted and path-like names
// into lower-case words.
func splitIdentifier(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r):
			// Split before an upper-case letter that starts a new word:
			// "parseHTTPRequest" -> parse, http, request.
			if len(cur) > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func stem(w string) string {
	if len(w) < minStemLength {
		return w
	}
	return porter2.Stem(w)
}

func stemAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = stem(w)
	}
	return out
}

func stemSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[stem(w)] = true
	}
	return m
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
