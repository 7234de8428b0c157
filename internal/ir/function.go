// Package ir holds the function-level records produced by the source
// extractor. Records are immutable once handed to this package; everything
// downstream (call graph, search, persistence) references them by ID.
package ir

import (
	"sort"
)

// FunctionRecord is the metadata extracted for a single function or method.
type FunctionRecord struct {
	ID               string   `json:"lookup_id"`
	Name             string   `json:"name"`
	Module           string   `json:"module_name"`
	FilePath         string   `json:"file_path"`
	Repository       string   `json:"repository_name,omitempty"`
	ClassContext     string   `json:"class_context,omitempty"`
	Calls            []string `json:"calls,omitempty"`
	Decorators       []string `json:"decorators,omitempty"`
	Imports          []string `json:"imports,omitempty"`
	IsAsync          bool     `json:"is_async"`
	HasErrorHandling bool     `json:"has_error_handling"`
	StartLine        int      `json:"start_line"`
	EndLine          int      `json:"end_line"`
}

// LineCount returns the number of source lines the function spans.
func (r *FunctionRecord) LineCount() int {
	if r.EndLine < r.StartLine {
		return 0
	}
	return r.EndLine - r.StartLine + 1
}

// SortCanonical orders records by file path, start line and ID. This is the
// order used whenever "first seen" matters, so that results do not depend on
// the order the extractor happened to emit records in.
func SortCanonical(records []FunctionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return canonicalLess(&records[i], &records[j])
	})
}

func canonicalLess(a, b *FunctionRecord) bool {
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	if a.StartLine != b.StartLine {
		return a.StartLine < b.StartLine
	}
	return a.ID < b.ID
}

// RecordStore is an immutable lookup table over a fixed set of records.
type RecordStore struct {
	records []FunctionRecord
	byID    map[string]int
	byName  map[string][]int
}

// StoreSummary aggregates a few counters over the whole record set.
type StoreSummary struct {
	TotalFunctions             int `json:"total_functions"`
	AsyncFunctions             int `json:"async_functions"`
	FunctionsWithErrorHandling int `json:"functions_with_error_handling"`
	UniqueModules              int `json:"unique_modules"`
	UniqueRepositories         int `json:"unique_repositories"`
}

// NewRecordStore copies records into a new store in canonical order. When
// the same ID appears more than once the first occurrence in canonical order
// wins; callers that need to reject duplicates should use DuplicateIDs first.
func NewRecordStore(records []FunctionRecord) *RecordStore {
	sorted := make([]FunctionRecord, len(records))
	copy(sorted, records)
	SortCanonical(sorted)

	s := &RecordStore{
		records: make([]FunctionRecord, 0, len(sorted)),
		byID:    make(map[string]int, len(sorted)),
		byName:  make(map[string][]int),
	}
	for _, r := range sorted {
		if _, ok := s.byID[r.ID]; ok {
			continue
		}
		idx := len(s.records)
		s.records = append(s.records, r)
		s.byID[r.ID] = idx
		s.byName[r.Name] = append(s.byName[r.Name], idx)
	}
	return s
}

// DuplicateIDs returns every ID that occurs more than once, sorted.
func DuplicateIDs(records []FunctionRecord) []string {
	seen := make(map[string]int, len(records))
	for _, r := range records {
		seen[r.ID]++
	}
	var dups []string
	for id, n := range seen {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

// Get returns the record for id.
func (s *RecordStore) Get(id string) (*FunctionRecord, bool) {
	if s == nil {
		return nil, false
	}
	idx, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.records[idx], true
}

// ByName returns all records sharing a bare function name, in canonical order.
func (s *RecordStore) ByName(name string) []*FunctionRecord {
	if s == nil {
		return nil
	}
	idxs := s.byName[name]
	out := make([]*FunctionRecord, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, &s.records[i])
	}
	return out
}

// Len returns the number of records.
func (s *RecordStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// All returns the records in canonical order. The slice must not be modified.
func (s *RecordStore) All() []FunctionRecord {
	if s == nil {
		return nil
	}
	return s.records
}

// Summary computes the aggregate counters for the store.
func (s *RecordStore) Summary() StoreSummary {
	var sum StoreSummary
	if s == nil {
		return sum
	}
	modules := make(map[string]struct{})
	repos := make(map[string]struct{})
	for i := range s.records {
		r := &s.records[i]
		sum.TotalFunctions++
		if r.IsAsync {
			sum.AsyncFunctions++
		}
		if r.HasErrorHandling {
			sum.FunctionsWithErrorHandling++
		}
		modules[r.Module] = struct{}{}
		if r.Repository != "" {
			repos[r.Repository] = struct{}{}
		}
	}
	sum.UniqueModules = len(modules)
	sum.UniqueRepositories = len(repos)
	return sum
}
