package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/docforge/internal/cache"
	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/fingerprint"
	"git.home.luguber.info/inful/docforge/internal/graph"
	"git.home.luguber.info/inful/docforge/internal/metrics"
	"git.home.luguber.info/inful/docforge/internal/util/sets"
)

// genRun accumulates one generation's outcome across the worker set.
type genRun struct {
	mu        sync.Mutex
	diags     []Diagnostic
	failed    sets.Set[docid.DocumentID]
	changed   sets.Set[docid.DocumentID]
	built     int
	cacheHits int
	skipped   int
}

func (r *genRun) addDiags(diags ...Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, diags...)
}

func (r *genRun) markFailed(id docid.DocumentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed.Add(id)
}

// Run executes one build generation over the given dirty nodes: Planning
// (affected set + topological batches), then Running (batch-by-batch
// parallel dispatch), ending Completed or Failed. Batch k fully completes,
// graph updates included, before batch k+1 starts.
func (e *Engine) Run(ctx context.Context, generation uint64, dirty []docid.NodeRef) *Result {
	start := time.Now()
	res := &Result{Generation: generation, State: StatePlanning}

	// Record the newest generation so stale in-flight jobs drop themselves.
	for {
		cur := e.latest.Load()
		if generation <= cur {
			break
		}
		if e.latest.CompareAndSwap(cur, generation) {
			break
		}
	}

	e.running.Store(true)
	defer e.running.Store(false)

	affected, err := e.graph.AffectedBy(dirty)
	if err != nil {
		return e.fatal(res, start, err)
	}

	// Ghost targets (recorded edges whose document was never discovered)
	// cannot be scheduled; their referrers warn during their own builds.
	jobs := sets.New[docid.DocumentID]()
	for id := range affected {
		if e.registered(id) {
			jobs.Add(id)
		}
	}

	batches, err := e.graph.TopologicalBatches(jobs)
	if err != nil {
		return e.fatal(res, start, err)
	}

	e.logger.Info("Generation planned",
		"generation", generation,
		"dirty", len(dirty),
		"affected", jobs.Len(),
		"batches", len(batches))

	res.State = StateRunning
	run := &genRun{
		failed:  sets.New[docid.DocumentID](),
		changed: sets.New[docid.DocumentID](),
	}

	sem := make(chan struct{}, e.cfg.Workers)
	for _, batch := range batches {
		var wg sync.WaitGroup
		for _, id := range batch {
			select {
			case <-ctx.Done():
				wg.Wait()
				return e.fatal(res, start, ctx.Err())
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(id docid.DocumentID) {
				defer wg.Done()
				defer func() { <-sem }()
				e.buildOne(Job{DocumentID: id, Generation: generation}, run)
			}(id)
		}
		// Batch barrier: dependents in the next batch may read artifacts
		// produced here.
		wg.Wait()
	}

	res.Built = run.built
	res.CacheHits = run.cacheHits
	res.Skipped = run.skipped
	res.Diagnostics = run.diags
	res.Failed = run.failed.Values()
	res.Changed = run.changed.Values()
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i] < res.Failed[j] })
	sort.Slice(res.Changed, func(i, j int) bool { return res.Changed[i] < res.Changed[j] })
	res.Duration = time.Since(start)

	res.State = StateCompleted
	if len(res.Failed) > 0 {
		res.State = StateFailed
	}
	if e.cfg.FailOnWarning && len(res.Diagnostics) > 0 {
		res.State = StateFailed
	}

	e.rec.ObserveGenerationDuration(res.Duration)
	e.rec.IncGenerationOutcome(string(res.State))
	stats := e.cache.Stats()
	e.rec.SetCacheBytes(stats.Bytes)
	e.rec.SetCacheEntries(stats.Entries)

	e.logger.Info("Generation finished",
		"generation", generation,
		"state", string(res.State),
		"built", res.Built,
		"cache_hits", res.CacheHits,
		"failed", len(res.Failed),
		"duration", res.Duration)

	return res
}

// buildOne runs the per-job algorithm. A panic or unrecoverable error is
// isolated to this job; the batch continues.
func (e *Engine) buildOne(job Job, run *genRun) {
	jobStart := time.Now()
	defer func() {
		if r := recover(); r != nil {
			run.addDiags(Diagnostic{
				DocumentID: job.DocumentID,
				Severity:   SeverityError,
				Message:    fmt.Sprintf("worker panic: %v", r),
			})
			run.markFailed(job.DocumentID)
			e.rec.IncJobResult(metrics.JobResultFailed)
		}
		e.rec.ObserveJobDuration(time.Since(jobStart))
	}()

	// Superseded generation: drop the job rather than overwrite newer results.
	if e.latest.Load() != job.Generation {
		run.mu.Lock()
		run.skipped++
		run.mu.Unlock()
		e.rec.IncJobResult(metrics.JobResultStale)
		return
	}

	id := job.DocumentID
	doc, ok := e.Lookup(id)
	if !ok {
		return
	}

	source, err := os.ReadFile(doc.SourcePath)
	if err != nil {
		run.addDiags(Diagnostic{
			DocumentID: id,
			Severity:   SeverityError,
			Message:    fmt.Sprintf("read source: %v", err),
			Location:   doc.SourcePath,
		})
		run.markFailed(id)
		e.rec.IncJobResult(metrics.JobResultFailed)
		return
	}

	fp, err := fingerprint.New(source, e.cfg.Render)
	if err != nil {
		run.addDiags(Diagnostic{
			DocumentID: id,
			Severity:   SeverityError,
			Message:    fmt.Sprintf("fingerprint: %v", err),
		})
		run.markFailed(id)
		e.rec.IncJobResult(metrics.JobResultFailed)
		return
	}

	if entry, hit := e.cache.Get(fp); hit {
		// Reuse the artifact, but still re-register dependency edges from the
		// cached metadata so the graph stays accurate.
		e.graph.Upsert(id, entry.Deps)
		run.addDiags(e.missingTargetWarnings(id, entry.Deps)...)
		e.finishDoc(id, doc, fp, entry.Artifact, entry.Deps, entry.Title, run)
		run.mu.Lock()
		run.cacheHits++
		run.mu.Unlock()
		e.rec.IncJobResult(metrics.JobResultCacheHit)
		return
	}

	parsed, deps, diags, err := e.parser.Parse(source, id, doc.SourcePath)
	run.addDiags(diags...)
	if err != nil {
		perr := &ParseError{ID: id, Err: err}
		run.addDiags(Diagnostic{
			DocumentID: id,
			Severity:   SeverityError,
			Message:    perr.Error(),
			Location:   doc.SourcePath,
		})
		// Previous artifact, if any, stays untouched.
		run.markFailed(id)
		e.rec.IncJobResult(metrics.JobResultFailed)
		return
	}

	e.graph.Upsert(id, deps)
	run.addDiags(e.missingTargetWarnings(id, deps)...)

	artifact, rdiags, err := e.renderer.Render(parsed, e.cfg.Render)
	run.addDiags(rdiags...)
	if err != nil {
		rerr := &RenderError{ID: id, Err: err}
		run.addDiags(Diagnostic{
			DocumentID: id,
			Severity:   SeverityError,
			Message:    rerr.Error(),
			Location:   doc.SourcePath,
		})
		run.markFailed(id)
		e.rec.IncJobResult(metrics.JobResultFailed)
		return
	}

	e.cache.Put(fp, cache.Entry{
		Artifact: artifact,
		Deps:     deps,
		Title:    parsed.Title,
	})

	e.finishDoc(id, doc, fp, artifact, deps, parsed.Title, run)
	run.mu.Lock()
	run.built++
	run.mu.Unlock()
	e.rec.IncJobResult(metrics.JobResultBuilt)
}

// finishDoc writes the artifact, updates the document record and tracks
// output changes versus the previous generation.
func (e *Engine) finishDoc(id docid.DocumentID, prev Document, fp fingerprint.Fingerprint, artifact []byte, deps []docid.NodeRef, title string, run *genRun) {
	if err := e.writeArtifact(id, artifact); err != nil {
		run.addDiags(Diagnostic{
			DocumentID: id,
			Severity:   SeverityError,
			Message:    fmt.Sprintf("write artifact: %v", err),
		})
		run.markFailed(id)
		return
	}

	hash := fingerprint.OfBytes(artifact)
	if prev.ArtifactHash != hash {
		run.mu.Lock()
		run.changed.Add(id)
		run.mu.Unlock()
	}

	e.updateDoc(id, func(d *Document) {
		d.SourceFingerprint = fp
		d.LastBuildFingerprint = fp
		d.ArtifactHash = hash
		d.Deps = deps
		d.Title = title
		d.Failed = false
	})
}

// missingTargetWarnings warns about cross-references to documents that do
// not exist and assets missing from the source tree. The edges themselves
// stay recorded so later creation of the target invalidates the referrer.
func (e *Engine) missingTargetWarnings(from docid.DocumentID, deps []docid.NodeRef) []Diagnostic {
	var out []Diagnostic
	for _, dep := range deps {
		if dep.IsDoc() {
			if !e.registered(dep.Doc) {
				out = append(out, Diagnostic{
					DocumentID: from,
					Severity:   SeverityWarning,
					Message:    fmt.Sprintf("cross-reference to missing document %q", dep.Doc),
				})
			}
			continue
		}
		assetPath := filepath.Join(e.cfg.SourceRoot, filepath.FromSlash(string(dep.Asset)))
		if _, err := os.Stat(assetPath); err != nil {
			out = append(out, Diagnostic{
				DocumentID: from,
				Severity:   SeverityWarning,
				Message:    fmt.Sprintf("missing asset %q", dep.Asset),
			})
		}
	}
	return out
}

func (e *Engine) writeArtifact(id docid.DocumentID, artifact []byte) error {
	path := e.outputPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// fatal handles generation-level fatal conditions: a cycle (no partial
// ordering exists) or cancellation. A single fatal diagnostic is surfaced.
func (e *Engine) fatal(res *Result, start time.Time, err error) *Result {
	res.State = StateFailed
	res.Duration = time.Since(start)

	var cerr *graph.CycleError
	switch {
	case errors.As(err, &cerr):
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Message:  cerr.Error(),
		})
		for _, id := range cerr.Participants {
			res.Failed = append(res.Failed, id)
		}
	default:
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Message:  err.Error(),
		})
	}

	e.rec.IncGenerationOutcome(string(StateFailed))
	e.logger.Error("Generation failed", "generation", res.Generation, "error", err)
	return res
}
