package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/docforge/internal/cache"
	"git.home.luguber.info/inful/docforge/internal/config"
)

func runClean(cfg *config.Config) error {
	if err := os.RemoveAll(cfg.Output.Directory); err != nil {
		return fmt.Errorf("remove output directory: %w", err)
	}
	slog.Info("Output directory removed", "path", cfg.Output.Directory)

	if cfg.Cache.Path != "" {
		if _, err := os.Stat(cfg.Cache.Path); err == nil {
			store, err := cache.OpenStore(cfg.Cache.Path)
			if err != nil {
				return fmt.Errorf("open cache store: %w", err)
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := store.Clear(ctx); err != nil {
				return fmt.Errorf("clear cache store: %w", err)
			}
			slog.Info("Cache store cleared", "path", cfg.Cache.Path)
		}
	}
	return nil
}
