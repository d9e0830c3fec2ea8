package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/cache"
	"git.home.luguber.info/inful/docforge/internal/config"
	"git.home.luguber.info/inful/docforge/internal/graph"
	"git.home.luguber.info/inful/docforge/internal/markdown"
	"git.home.luguber.info/inful/docforge/internal/metrics"
	"git.home.luguber.info/inful/docforge/internal/source"
)

// runtime bundles the engine and its persistent cache for one command run.
type runtime struct {
	cfg      *config.Config
	engine   *build.Engine
	cache    *cache.Cache
	store    *cache.Store
	registry *prom.Registry
	recorder metrics.Recorder
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	c := cache.New(cache.Config{
		MaxBytes: cfg.Cache.MaxBytes,
		MaxAge:   cfg.Cache.MaxAge,
	})

	rt := &runtime{
		cfg:      cfg,
		cache:    c,
		registry: registry,
		recorder: recorder,
	}

	if cfg.Cache.Path != "" {
		store, err := cache.OpenStore(cfg.Cache.Path)
		if err != nil {
			// A broken cache store degrades to a cold cache, never a failure.
			slog.Warn("Failed to open cache store, starting cold", "path", cfg.Cache.Path, "error", err)
		} else {
			rt.store = store
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			entries, err := store.Load(ctx)
			if err != nil {
				slog.Warn("Failed to load cache store, starting cold", "error", err)
			} else {
				restored := c.Restore(entries)
				slog.Info("Cache restored", "entries", restored)
			}
		}
	}

	rt.engine = build.NewEngine(build.Config{
		SourceRoot:    cfg.Source.Directory,
		OutputDir:     cfg.Output.Directory,
		Workers:       cfg.Build.Workers,
		FailOnWarning: cfg.Build.FailOnWarning,
		Render:        cfg.Render,
	}, graph.New(), c, markdown.NewParser(), markdown.NewRenderer()).
		WithRecorder(recorder)

	return rt, nil
}

// discover scans the source tree and registers every document.
func (rt *runtime) discover() (int, error) {
	files, err := source.Scan(rt.cfg.Source.Directory, rt.cfg.Output.Directory)
	if err != nil {
		return 0, fmt.Errorf("discover sources: %w", err)
	}
	for _, f := range files {
		rt.engine.Register(f.ID, f.Path)
	}
	return len(files), nil
}

// flushCache persists the in-memory cache. Failures degrade to a warning.
func (rt *runtime) flushCache(ctx context.Context) {
	if rt.store == nil {
		return
	}
	if err := rt.store.Flush(ctx, rt.cache.Snapshot()); err != nil {
		slog.Warn("Failed to flush cache store", "error", err)
	}
}

func (rt *runtime) close(ctx context.Context) {
	rt.flushCache(ctx)
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			slog.Warn("Failed to close cache store", "error", err)
		}
	}
}
