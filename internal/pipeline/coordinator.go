package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/events"
)

// Coordinator owns the generation counter. It consumes BuildNow events one at
// a time, runs the engine, and publishes exactly one BuildFinished per
// generation, in generation order.
type Coordinator struct {
	engine     *build.Engine
	bus        *events.Bus
	sourceRoot string
	logger     *slog.Logger
	generation atomic.Uint64
}

func NewCoordinator(engine *build.Engine, bus *events.Bus, sourceRoot string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{engine: engine, bus: bus, sourceRoot: sourceRoot, logger: logger}
}

// Generation returns the number of the most recently started generation.
func (c *Coordinator) Generation() uint64 { return c.generation.Load() }

func (c *Coordinator) Run(ctx context.Context) error {
	buildCh, unsubscribe := events.Subscribe[events.BuildNow](c.bus, 16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-buildCh:
			if !ok {
				return nil
			}
			c.runGeneration(ctx, evt)
		}
	}
}

// RunOnce drives a single generation outside the event loop, used for the
// initial full build and the one-shot build command.
func (c *Coordinator) RunOnce(ctx context.Context, dirty []docid.NodeRef) *build.Result {
	gen := c.generation.Add(1)
	res := c.engine.Run(ctx, gen, dirty)
	c.publishFinished(ctx, res)
	return res
}

func (c *Coordinator) runGeneration(ctx context.Context, evt events.BuildNow) {
	for _, id := range evt.Removed {
		c.engine.Remove(id)
	}
	c.registerNew(evt.Nodes)

	gen := c.generation.Add(1)
	c.logger.Info("Build triggered",
		"job_id", evt.JobID,
		"generation", gen,
		"requests", evt.RequestCount,
		"cause", evt.DebounceCause)

	res := c.engine.Run(ctx, gen, evt.Nodes)
	c.publishFinished(ctx, res)
}

// registerNew registers documents discovered mid-run, e.g. a created file
// whose referrers previously warned about a missing target.
func (c *Coordinator) registerNew(nodes []docid.NodeRef) {
	for _, n := range nodes {
		if !n.IsDoc() {
			continue
		}
		if _, ok := c.engine.Lookup(n.Doc); ok {
			continue
		}
		for _, ext := range []string{".md", ".markdown", ".rst", ".txt"} {
			path := filepath.Join(c.sourceRoot, filepath.FromSlash(string(n.Doc))+ext)
			if _, err := os.Stat(path); err == nil {
				c.engine.Register(n.Doc, path)
				break
			}
		}
	}
}

func (c *Coordinator) publishFinished(ctx context.Context, res *build.Result) {
	evt := events.BuildFinished{
		Generation: res.Generation,
		State:      res.State,
		Changed:    res.Changed,
		Result:     res,
		FinishedAt: time.Now(),
	}
	if err := c.bus.Publish(ctx, evt); err != nil {
		c.logger.Warn("Failed to publish build result", "generation", res.Generation, "error", err)
	}
}
