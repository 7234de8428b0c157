// Package badger persists the record set of the last published graph so a
// restarted server can serve queries before any new build.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/store"
)

// Config configures the cache database.
type Config struct {
	// Path is the directory for the database files. Required unless InMemory.
	Path string
	// InMemory keeps everything in memory (tests).
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives badger's internal log lines. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens a badger database with cfg.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

var (
	recordPrefix = []byte("fn/")
	metaKey      = []byte("meta/current")
)

// Meta describes the cached record set.
type Meta struct {
	Source  string    `json:"source"`
	Version uint64    `json:"version"`
	Records int       `json:"records"`
	SavedAt time.Time `json:"saved_at"`
}

// ErrEmpty is returned by Load when nothing has been cached yet.
var ErrEmpty = errors.New("record cache is empty")

// RecordCache stores one record set, replacing it on every Save.
type RecordCache struct {
	db *badger.DB
}

// OpenRecordCache opens (or creates) a cache with cfg.
func OpenRecordCache(cfg Config) (*RecordCache, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &RecordCache{db: db}, nil
}

// Close closes the underlying database.
func (c *RecordCache) Close() error {
	return c.db.Close()
}

// Save replaces the cached record set. The metadata entry is written last,
// so a Save interrupted part way is read back as a miss.
func (c *RecordCache) Save(ctx context.Context, meta Meta, records []ir.FunctionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.clear(); err != nil {
		return fmt.Errorf("clear record cache: %w", err)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("encode record %s: %w", records[i].ID, err)
		}
		if err := wb.Set(recordKey(records[i].ID), data); err != nil {
			return fmt.Errorf("write record %s: %w", records[i].ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush record cache: %w", err)
	}

	meta.Records = len(records)
	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey, data)
	})
}

// clear deletes the metadata entry first, then every cached record.
func (c *RecordCache) clear() error {
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.Delete(metaKey) }); err != nil {
		return err
	}
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Load returns the cached record set in canonical order, or ErrEmpty.
func (c *RecordCache) Load(ctx context.Context) (Meta, []ir.FunctionRecord, error) {
	var meta Meta
	var records []ir.FunctionRecord

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEmpty
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
			return fmt.Errorf("decode cache metadata: %w", err)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r ir.FunctionRecord
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				return fmt.Errorf("decode cached record %s: %w", it.Item().Key(), err)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return Meta{}, nil, err
	}
	if len(records) != meta.Records {
		return Meta{}, nil, fmt.Errorf("record cache is incomplete: %d of %d records", len(records), meta.Records)
	}
	ir.SortCanonical(records)
	return meta, records, nil
}

// PublishHook saves every published snapshot. Cache failures are logged and
// never affect the published graph.
func (c *RecordCache) PublishHook(logger *slog.Logger) store.PublishHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, snap *store.Snapshot) {
		meta := Meta{Source: snap.Source, Version: snap.Version, SavedAt: snap.BuiltAt}
		if err := c.Save(ctx, meta, snap.Graph.Records().All()); err != nil {
			logger.WarnContext(ctx, "record cache update failed", "version", snap.Version, "error", err)
		}
	}
}

// Loader exposes the cache as a record source.
func (c *RecordCache) Loader() ir.Loader {
	return &cacheLoader{cache: c}
}

type cacheLoader struct {
	cache *RecordCache
}

func (l *cacheLoader) Name() string { return "cache" }

func (l *cacheLoader) Load(ctx context.Context) ([]ir.FunctionRecord, error) {
	_, records, err := l.cache.Load(ctx)
	return records, err
}

func recordKey(id string) []byte {
	return append(append([]byte{}, recordPrefix...), id...)
}
