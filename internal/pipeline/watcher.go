package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/events"
	"git.home.luguber.info/inful/docforge/internal/source"
)

// Watcher turns filesystem events under the source root into ChangeDetected
// events on the bus. New directories are added to the watch recursively.
type Watcher struct {
	root   string
	bus    *events.Bus
	logger *slog.Logger
}

func NewWatcher(root string, bus *events.Bus, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, bus: bus, logger: logger}
}

func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root, w.logger); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if source.IgnorePath(ev.Name) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(fw, ev.Name, w.logger)
			return
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	change := events.ChangeDetected{DetectedAt: time.Now()}
	if docid.IsMarkupPath(rel) {
		id := docid.FromPath(rel)
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			change.Removed = []docid.DocumentID{id}
		}
		change.Nodes = []docid.NodeRef{docid.DocNode(id)}
	} else {
		change.Nodes = []docid.NodeRef{docid.AssetNode(docid.AssetFromPath(rel))}
	}

	w.logger.Debug("File change detected", "path", ev.Name, "op", ev.Op.String())
	if err := w.bus.Publish(ctx, change); err != nil {
		w.logger.Warn("Failed to publish change", "error", err)
	}
}

func addDirsRecursive(fw *fsnotify.Watcher, root string, logger *slog.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			logger.Warn("Watch add failed", "dir", path, "error", err)
		}
		return nil
	})
}
