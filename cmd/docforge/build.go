package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/config"
	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/source"
)

func runBuild(cfg *config.Config) error {
	applyBuildOverrides(cfg)

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer rt.close(ctx)

	count, err := rt.discover()
	if err != nil {
		return err
	}
	slog.Info("Sources discovered", "documents", count)

	res := rt.engine.Run(ctx, 1, rt.engine.AllNodes())
	appendOrphanWarnings(res, rt.engine.Orphans(), cfg.Build.FailOnWarning)
	if err := reportDiagnostics(res); err != nil {
		return err
	}

	if err := source.CopyStatic(cfg.Source.Directory, cfg.Output.Directory); err != nil {
		return fmt.Errorf("copy static assets: %w", err)
	}

	stats := rt.cache.Stats()
	slog.Info("Build finished",
		"state", string(res.State),
		"built", res.Built,
		"cache_hits", res.CacheHits,
		"failed", len(res.Failed),
		"hit_ratio", fmt.Sprintf("%.2f", rt.cache.HitRatio()),
		"cache_bytes", stats.Bytes,
		"duration", res.Duration)

	if res.State == build.StateFailed {
		if len(res.Failed) > 0 {
			return fmt.Errorf("build failed: %d document(s) failed", len(res.Failed))
		}
		return fmt.Errorf("build failed: %d warning(s) with fail-on-warning", len(res.Warnings()))
	}
	return nil
}

// appendOrphanWarnings adds a warning per never-referenced document. These
// are appended after the generation runs, so fail-on-warning is applied here
// as well.
func appendOrphanWarnings(res *build.Result, orphans []docid.DocumentID, failOnWarning bool) {
	for _, id := range orphans {
		res.Diagnostics = append(res.Diagnostics, build.Diagnostic{
			DocumentID: id,
			Severity:   build.SeverityWarning,
			Message:    "document is not referenced by any other document",
		})
	}
	if failOnWarning && len(orphans) > 0 && res.State == build.StateCompleted {
		res.State = build.StateFailed
	}
}

func applyBuildOverrides(cfg *config.Config) {
	if CLI.Build.Source != "" {
		cfg.Source.Directory = CLI.Build.Source
	}
	if CLI.Build.Output != "" {
		cfg.Output.Directory = CLI.Build.Output
	}
	if CLI.Build.FailOnWarning {
		cfg.Build.FailOnWarning = true
	}
}

// reportDiagnostics prints diagnostics to stderr in "path: SEVERITY: message"
// form, one per line, stable across identical builds. With --warnings-file
// the same lines are also written to that file.
func reportDiagnostics(res *build.Result) error {
	var sink *os.File
	if CLI.Build.WarningsFile != "" {
		f, err := os.Create(CLI.Build.WarningsFile)
		if err != nil {
			return fmt.Errorf("open warnings file: %w", err)
		}
		defer f.Close()
		sink = f
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintln(os.Stderr, d.String())
		if sink != nil {
			fmt.Fprintln(sink, d.String())
		}
	}
	return nil
}
