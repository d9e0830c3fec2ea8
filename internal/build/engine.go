package build

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/docforge/internal/cache"
	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/graph"
	"git.home.luguber.info/inful/docforge/internal/metrics"
)

// Config configures the engine.
type Config struct {
	// SourceRoot is the absolute path of the source tree.
	SourceRoot string
	// OutputDir is where rendered artifacts are written.
	OutputDir string
	// Workers bounds the parallel job pool. Zero means available parallelism.
	Workers int
	// FailOnWarning makes a generation report overall failure whenever its
	// diagnostic set is non-empty, without altering the artifact set.
	FailOnWarning bool
	// Render is the configuration slice that affects rendered output; it is
	// part of every document fingerprint.
	Render RenderContext
}

// Engine owns the document registry and drives build generations. The
// dependency graph and artifact cache are explicitly owned structures passed
// in at construction; there is no ambient singleton state.
type Engine struct {
	cfg      Config
	graph    *graph.Graph
	cache    *cache.Cache
	parser   Parser
	renderer Renderer
	rec      metrics.Recorder
	logger   *slog.Logger

	mu   sync.RWMutex
	docs map[docid.DocumentID]*Document

	// latest is the newest generation number handed to Run. Jobs from an
	// older generation observe the mismatch and drop their results.
	latest  atomic.Uint64
	running atomic.Bool
}

func NewEngine(cfg Config, g *graph.Graph, c *cache.Cache, p Parser, r Renderer) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{
		cfg:      cfg,
		graph:    g,
		cache:    c,
		parser:   p,
		renderer: r,
		rec:      metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithRecorder sets a metrics recorder.
func (e *Engine) WithRecorder(rec metrics.Recorder) *Engine {
	if rec != nil {
		e.rec = rec
	}
	return e
}

// WithLogger sets a custom logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// Register records a discovered source file. Safe to call repeatedly; the
// document record is created on first discovery.
func (e *Engine) Register(id docid.DocumentID, sourcePath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.docs == nil {
		e.docs = make(map[docid.DocumentID]*Document)
	}
	if doc, ok := e.docs[id]; ok {
		doc.SourcePath = sourcePath
		return
	}
	e.docs[id] = &Document{ID: id, SourcePath: sourcePath}
}

// Remove drops a deleted document: registry record, graph edges and cached
// artifact go; the rendered output file is removed best-effort so stale
// output cannot be served.
func (e *Engine) Remove(id docid.DocumentID) {
	e.mu.Lock()
	doc, ok := e.docs[id]
	if ok {
		delete(e.docs, id)
	}
	e.mu.Unlock()

	e.graph.Remove(id)
	if ok && doc.LastBuildFingerprint != "" {
		e.cache.Invalidate(doc.LastBuildFingerprint)
	}
	if err := os.Remove(e.outputPath(id)); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("Failed to remove stale output", "doc", id, "error", err)
	}
}

// Lookup returns a copy of the document record.
func (e *Engine) Lookup(id docid.DocumentID) (Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[id]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// IDs returns all registered document ids, sorted for determinism.
func (e *Engine) IDs() []docid.DocumentID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]docid.DocumentID, 0, len(e.docs))
	for id := range e.docs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllNodes returns every registered document as a graph node, the full-scan
// input for the build command.
func (e *Engine) AllNodes() []docid.NodeRef {
	ids := e.IDs()
	out := make([]docid.NodeRef, len(ids))
	for i, id := range ids {
		out[i] = docid.DocNode(id)
	}
	return out
}

// Orphans returns documents no other document references, excluding index
// documents. Useful after a full build to flag unreachable pages.
func (e *Engine) Orphans() []docid.DocumentID {
	var out []docid.DocumentID
	for _, id := range e.IDs() {
		if id == "index" || strings.HasSuffix(string(id), "/index") {
			continue
		}
		if len(e.graph.Dependents(docid.DocNode(id))) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Running reports whether a generation is currently in flight.
func (e *Engine) Running() bool { return e.running.Load() }

// Cache exposes the engine's artifact cache for maintenance tasks.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Graph exposes the engine's dependency graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

func (e *Engine) outputPath(id docid.DocumentID) string {
	return filepath.Join(e.cfg.OutputDir, filepath.FromSlash(string(id))+".html")
}

func (e *Engine) registered(id docid.DocumentID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.docs[id]
	return ok
}

func (e *Engine) updateDoc(id docid.DocumentID, fn func(*Document)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if doc, ok := e.docs[id]; ok {
		fn(doc)
	}
}
