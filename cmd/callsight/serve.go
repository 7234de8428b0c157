package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/observability"
	"github.com/efebarandurmaz/callsight/internal/server"
	recordcache "github.com/efebarandurmaz/callsight/internal/storage/badger"
	"github.com/efebarandurmaz/callsight/internal/store"
)

func runServe(ctx context.Context, configPath, recordsPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	a.metrics = observability.Default()
	logger := a.logger

	tcfg := a.cfg.Tracing.Options()
	tcfg.ServiceVersion = version
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	st := a.newStore()
	var closers []server.ShutdownHook

	// Published graphs are mirrored to the record cache and to Neo4j. Both are
	// best effort: a failure is logged and the snapshot stays published.
	var cache *recordcache.RecordCache
	if path := a.cfg.Cache.Path; path != "" {
		cache, err = recordcache.OpenRecordCache(recordcache.Config{Path: path, SyncWrites: true, Logger: logger})
		if err != nil {
			return fmt.Errorf("record cache: %w", err)
		}
		st.OnPublish(cache.PublishHook(logger))
		closers = append(closers, server.DatabaseShutdownHook("record-cache", cache.Close))
	}

	graphRepo, err := a.openGraphRepo(ctx)
	if err != nil {
		return err
	}
	if graphRepo != nil {
		st.OnPublish(func(ctx context.Context, snap *store.Snapshot) {
			if err := graphRepo.StoreGraph(ctx, snap.Graph); err != nil {
				logger.WarnContext(ctx, "neo4j sync failed", "version", snap.Version, "error", err)
			}
		})
		closers = append(closers, server.DatabaseShutdownHook("neo4j", func() error {
			return graphRepo.Close(context.Background())
		}))
	}

	vs, err := a.openVectorSearch(ctx)
	if err != nil {
		return err
	}
	if vs != nil {
		closers = append(closers, server.DatabaseShutdownHook("qdrant", vs.Close))
	}

	// Start-up tries the record file, then the record cache, then the graph
	// database. Rebuilds read the record file when one is configured,
	// otherwise the graph database.
	var fileLoader, dbLoader ir.Loader
	if l, err := a.recordLoader(recordsPath); err == nil {
		fileLoader = l
	}
	if graphRepo != nil {
		dbLoader = graphRepo.Loader()
	}
	restore(ctx, logger, st, fileLoader, cache, dbLoader)

	loader := fileLoader
	if loader == nil {
		loader = dbLoader
	}

	api := server.NewAPI(st, a.newService(st, vs), loader, logger)
	srv := server.New(server.Config{
		Addr:            a.cfg.Server.Addr,
		Version:         version,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		Signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}, api, a.metrics, logger)

	srv.Health.RegisterCheck("graph", server.GraphHealthChecker(st))
	if graphRepo != nil {
		srv.Health.RegisterCheck("neo4j", server.DependencyHealthChecker("neo4j", false, graphRepo.Ping))
	}
	if vs != nil {
		srv.Health.RegisterCheck("qdrant", server.DependencyHealthChecker("qdrant", false, vs.repo.Ping))
	}
	for _, hook := range closers {
		srv.Shutdown.Add(hook)
	}
	srv.Shutdown.Add(server.TracingShutdownHook(tp.Shutdown))

	logger.InfoContext(ctx, "serving", "addr", a.cfg.Server.Addr, "version", version, "source", st.Current().Source)
	return srv.Run(ctx)
}

// restore publishes an initial graph from the first source that yields one:
// the record file, the record cache, then the graph database. Any source may
// be nil. When all fail the server still comes up empty, so /v1/rebuild can be
// retried.
func restore(ctx context.Context, logger *slog.Logger, st *store.Store, file ir.Loader, cache *recordcache.RecordCache, db ir.Loader) {
	if reloadFrom(ctx, logger, st, file) {
		return
	}
	if cache != nil {
		meta, records, err := cache.Load(ctx)
		switch {
		case errors.Is(err, recordcache.ErrEmpty):
			logger.InfoContext(ctx, "record cache is empty")
		case err != nil:
			logger.WarnContext(ctx, "record cache unreadable", "error", err)
		default:
			if _, err := st.Rebuild(ctx, meta.Source, records); err != nil {
				logger.WarnContext(ctx, "restoring from record cache failed", "error", err)
				break
			}
			logger.InfoContext(ctx, "graph restored from record cache", "source", meta.Source, "saved_at", meta.SavedAt)
			return
		}
	}
	reloadFrom(ctx, logger, st, db)
}

func reloadFrom(ctx context.Context, logger *slog.Logger, st *store.Store, loader ir.Loader) bool {
	if loader == nil {
		return false
	}
	if _, err := st.Reload(ctx, loader); err != nil {
		logger.WarnContext(ctx, "initial build failed", "source", loader.Name(), "error", err)
		return false
	}
	return true
}
