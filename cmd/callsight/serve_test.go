package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/efebarandurmaz/callsight/internal/ir"
	recordcache "github.com/efebarandurmaz/callsight/internal/storage/badger"
	"github.com/efebarandurmaz/callsight/internal/store"
)

func openCache(t *testing.T, source string, records []ir.FunctionRecord) *recordcache.RecordCache {
	t.Helper()
	cache, err := recordcache.OpenRecordCache(recordcache.InMemoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })
	if records != nil {
		if err := cache.Save(context.Background(), recordcache.Meta{Source: source}, records); err != nil {
			t.Fatal(err)
		}
	}
	return cache
}

func TestRestore_SourceOrder(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	cached := []ir.FunctionRecord{{ID: "cached", Name: "cached", Module: "m", FilePath: "m.py"}}
	db := &ir.StaticLoader{Label: "db", Records: []ir.FunctionRecord{{ID: "stored", Name: "stored"}}}
	file := ir.NewFileLoader(writeRecords(t))
	broken := ir.NewFileLoader(t.TempDir() + "/absent.json")

	tests := []struct {
		name  string
		file  ir.Loader
		cache *recordcache.RecordCache
		db    ir.Loader
		want  string
	}{
		{"file_first", file, openCache(t, "cache-src", cached), db, file.Name()},
		{"cache_before_database", nil, openCache(t, "cache-src", cached), db, "cache-src"},
		{"broken_file_falls_back_to_cache", broken, openCache(t, "cache-src", cached), db, "cache-src"},
		{"empty_cache_falls_back_to_database", nil, openCache(t, "", nil), db, db.Name()},
		{"database_only", nil, nil, db, db.Name()},
		{"nothing", nil, nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.New(store.WithLogger(logger))
			restore(ctx, logger, st, tt.file, tt.cache, tt.db)
			if got := st.Current().Source; got != tt.want {
				t.Errorf("restored from %q, want %q", got, tt.want)
			}
		})
	}
}
