package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/docforge/internal/cache"
	"git.home.luguber.info/inful/docforge/internal/config"
	"git.home.luguber.info/inful/docforge/internal/markdown"
	"git.home.luguber.info/inful/docforge/internal/source"
)

func runStats(cfg *config.Config) error {
	if err := printSourceStats(cfg); err != nil {
		return err
	}

	if cfg.Cache.Path == "" {
		fmt.Println("No persistent cache configured (cache.path is empty).")
		return nil
	}

	store, err := cache.OpenStore(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	entries, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cache store: %w", err)
	}

	var bytes int64
	oldest := time.Now()
	for _, e := range entries {
		bytes += e.Size
		if e.CreatedAt.Before(oldest) {
			oldest = e.CreatedAt
		}
	}

	fmt.Printf("Cache store: %s\n", cfg.Cache.Path)
	fmt.Printf("  entries: %d\n", len(entries))
	fmt.Printf("  bytes:   %d\n", bytes)
	if len(entries) > 0 {
		fmt.Printf("  oldest:  %s\n", oldest.Format(time.RFC3339))
	}
	fmt.Printf("  budget:  %d bytes, max age %s\n", cfg.Cache.MaxBytes, cfg.Cache.MaxAge)
	return nil
}

func printSourceStats(cfg *config.Config) error {
	files, err := source.Scan(cfg.Source.Directory, cfg.Output.Directory)
	if err != nil {
		return fmt.Errorf("scan sources: %w", err)
	}

	parser := markdown.NewParser()
	var lines, size int64
	var refs int
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Path, err)
		}
		size += int64(len(data))
		lines += int64(bytes.Count(data, []byte("\n")))
		if _, deps, _, err := parser.Parse(data, f.ID, f.Path); err == nil {
			refs += len(deps)
		}
	}

	fmt.Printf("Source tree: %s\n", cfg.Source.Directory)
	fmt.Printf("  documents:  %d\n", len(files))
	fmt.Printf("  lines:      %d\n", lines)
	fmt.Printf("  bytes:      %d\n", size)
	fmt.Printf("  references: %d\n", refs)
	return nil
}
