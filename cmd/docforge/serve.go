package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docforge/internal/config"
	"git.home.luguber.info/inful/docforge/internal/events"
	"git.home.luguber.info/inful/docforge/internal/livereload"
	"git.home.luguber.info/inful/docforge/internal/notify"
	"git.home.luguber.info/inful/docforge/internal/pipeline"
	"git.home.luguber.info/inful/docforge/internal/server"
	"git.home.luguber.info/inful/docforge/internal/source"
)

func runServe(cfg *config.Config) error {
	if CLI.Serve.Listen != "" {
		cfg.Server.Listen = CLI.Serve.Listen
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer rt.close(context.Background())

	count, err := rt.discover()
	if err != nil {
		return err
	}
	slog.Info("Sources discovered", "documents", count)

	bus := events.NewBus()
	defer bus.Close()

	coordinator := pipeline.NewCoordinator(rt.engine, bus, cfg.Source.Directory, slog.Default())
	debouncer, err := pipeline.NewDebouncer(bus, pipeline.DebouncerConfig{
		QuietWindow:       cfg.Watch.QuietWindow,
		MaxDelay:          cfg.Watch.MaxDelay,
		CheckBuildRunning: rt.engine.Running,
	})
	if err != nil {
		return err
	}
	watcher := pipeline.NewWatcher(cfg.Source.Directory, bus, slog.Default())
	hub := livereload.NewHub(rt.recorder)
	defer hub.Shutdown()

	// Initial full build before serving anything.
	res := coordinator.RunOnce(ctx, rt.engine.AllNodes())
	if err := reportDiagnostics(res); err != nil {
		return err
	}
	if err := source.CopyStatic(cfg.Source.Directory, cfg.Output.Directory); err != nil {
		return fmt.Errorf("copy static assets: %w", err)
	}
	slog.Info("Initial build finished",
		"state", string(res.State),
		"built", res.Built,
		"failed", len(res.Failed),
		"duration", res.Duration)

	httpSrv := server.New(server.Options{
		Addr:      cfg.Server.Listen,
		OutputDir: cfg.Output.Directory,
		Engine:    rt.engine,
		Hub:       hub,
		Registry:  rt.registry,
		Logger:    slog.Default(),
	})

	scheduler, err := startMaintenance(ctx, rt, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = scheduler.Shutdown() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return debouncer.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return coordinator.Run(gctx) })
	g.Go(func() error { return httpSrv.Start(gctx) })
	g.Go(func() error { return broadcastFinished(gctx, bus, hub) })

	if cfg.NATS.URL != "" {
		pub, err := notify.NewPublisher(notify.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
		}, bus, slog.Default())
		if err != nil {
			slog.Warn("NATS publisher disabled", "error", err)
		} else {
			defer pub.Close()
			g.Go(func() error { return pub.Run(gctx) })
		}
	}

	slog.Info("Serving documentation",
		"addr", cfg.Server.Listen,
		"source", cfg.Source.Directory,
		"output", cfg.Output.Directory)

	return g.Wait()
}

// broadcastFinished forwards every finished generation to livereload
// clients, including failed ones whose output is unchanged so listeners
// still see the diagnostics. Clients decide whether a reload is needed.
func broadcastFinished(ctx context.Context, bus *events.Bus, hub *livereload.Hub) error {
	ch, unsubscribe := events.Subscribe[events.BuildFinished](bus, 16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			n := livereload.Notification{
				Generation: evt.Generation,
				Changed:    evt.Changed,
			}
			if evt.Result != nil {
				n.Diagnostics = evt.Result.Diagnostics
			}
			hub.Broadcast(n)
		}
	}
}

// startMaintenance schedules periodic cache upkeep: expiry sweeps and store
// flushes, so a crash loses at most one interval of cache updates.
func startMaintenance(ctx context.Context, rt *runtime, cfg *config.Config) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(cfg.Cache.FlushInterval),
		gocron.NewTask(func() {
			if swept := rt.cache.Sweep(); swept > 0 {
				slog.Debug("Cache sweep", "expired", swept)
			}
			rt.flushCache(ctx)
		}),
		gocron.WithName("cache-maintenance"),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule cache maintenance: %w", err)
	}

	s.Start()
	return s, nil
}
