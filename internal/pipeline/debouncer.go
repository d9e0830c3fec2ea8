// Package pipeline connects filesystem changes to build generations: the
// watcher feeds raw changes, the debouncer coalesces bursts, and the
// coordinator runs the engine one generation at a time.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/events"
	"git.home.luguber.info/inful/docforge/internal/util/sets"
)

type DebouncerConfig struct {
	QuietWindow time.Duration
	MaxDelay    time.Duration

	// CheckBuildRunning reports whether a generation is currently running.
	// When true, the debouncer avoids emitting BuildNow and schedules exactly
	// one follow-up after the running generation finishes.
	CheckBuildRunning func() bool

	// PollInterval controls how often the debouncer polls for generation
	// completion once it has detected one running.
	PollInterval time.Duration
}

// Debouncer coalesces bursts of ChangeDetected and BuildRequested events
// into a single BuildNow carrying the union of their dirty nodes.
//
//   - quiet window debounce
//   - max delay (cannot postpone indefinitely)
//   - if a generation is already running, queue exactly one follow-up
//
// Safe to run as a single goroutine.
type Debouncer struct {
	bus *events.Bus
	cfg DebouncerConfig

	mu        sync.Mutex
	readyOnce sync.Once
	ready     chan struct{}

	pending         bool
	pendingAfterRun bool
	firstRequestAt  time.Time
	lastRequestAt   time.Time
	requestCount    int
	pollingAfterRun bool

	nodes   sets.Set[docid.NodeRef]
	removed sets.Set[docid.DocumentID]
}

func NewDebouncer(bus *events.Bus, cfg DebouncerConfig) (*Debouncer, error) {
	if bus == nil {
		return nil, errors.New("bus is required")
	}
	if cfg.QuietWindow <= 0 {
		return nil, errors.New("quiet window must be > 0")
	}
	if cfg.MaxDelay <= 0 {
		return nil, errors.New("max delay must be > 0")
	}
	if cfg.CheckBuildRunning == nil {
		cfg.CheckBuildRunning = func() bool { return false }
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}

	return &Debouncer{
		bus:     bus,
		cfg:     cfg,
		ready:   make(chan struct{}),
		nodes:   sets.New[docid.NodeRef](),
		removed: sets.New[docid.DocumentID](),
	}, nil
}

// Ready is closed once Run has subscribed to events. Intended for tests and
// deterministic startup sequencing.
func (d *Debouncer) Ready() <-chan struct{} {
	return d.ready
}

func (d *Debouncer) Run(ctx context.Context) error {
	reqCh, unsubReq := events.Subscribe[events.BuildRequested](d.bus, 64)
	defer unsubReq()
	changeCh, unsubChange := events.Subscribe[events.ChangeDetected](d.bus, 64)
	defer unsubChange()

	d.readyOnce.Do(func() { close(d.ready) })

	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()
	pollTimer := newStoppedTimer()

	var (
		quietC <-chan time.Time
		maxC   <-chan time.Time
		pollC  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-reqCh:
			if !ok {
				return nil
			}
			d.onRequest(req)

			if req.Immediate {
				if d.tryEmit(ctx, "immediate") {
					quietC = nil
					maxC = nil
				}
			} else {
				resetTimer(quietTimer, d.cfg.QuietWindow)
				quietC = quietTimer.C

				if d.shouldStartMaxTimer() {
					resetTimer(maxTimer, d.cfg.MaxDelay)
					maxC = maxTimer.C
				}
			}

		case change, ok := <-changeCh:
			if !ok {
				return nil
			}
			d.onRequest(events.BuildRequested{
				Nodes:       change.Nodes,
				Removed:     change.Removed,
				RequestedAt: change.DetectedAt,
			})

			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C

			if d.shouldStartMaxTimer() {
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}

		case <-quietC:
			if d.tryEmit(ctx, "quiet") {
				quietC = nil
				maxC = nil
			}
			// else: generation running; pendingAfterRun holds until completion.

		case <-maxC:
			if d.tryEmit(ctx, "max_delay") {
				quietC = nil
				maxC = nil
			}

		case <-pollC:
			if d.tryEmitAfterRunning(ctx) {
				pollC = nil
				quietC = nil
				maxC = nil
				continue
			}
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}

		if d.shouldPollAfterRun() && pollC == nil {
			resetTimer(pollTimer, d.cfg.PollInterval)
			pollC = pollTimer.C
		}
	}
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(after)
}

func (d *Debouncer) onRequest(req events.BuildRequested) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := req.RequestedAt
	if now.IsZero() {
		now = time.Now()
	}

	if !d.pending {
		d.pending = true
		d.firstRequestAt = now
		d.requestCount = 0
	}

	d.lastRequestAt = now
	d.requestCount++
	for _, n := range req.Nodes {
		d.nodes.Add(n)
	}
	for _, id := range req.Removed {
		d.removed.Add(id)
	}
}

func (d *Debouncer) shouldStartMaxTimer() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending && d.requestCount == 1
}

func (d *Debouncer) shouldPollAfterRun() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingAfterRun && !d.pollingAfterRun
}

func (d *Debouncer) tryEmit(ctx context.Context, cause string) bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return true
	}

	if d.cfg.CheckBuildRunning() {
		d.pendingAfterRun = true
		d.mu.Unlock()
		return false
	}

	first := d.firstRequestAt
	last := d.lastRequestAt
	count := d.requestCount
	nodes := d.nodes.Values()
	removed := d.removed.Values()

	d.pending = false
	d.pendingAfterRun = false
	d.pollingAfterRun = false
	d.nodes = sets.New[docid.NodeRef]()
	d.removed = sets.New[docid.DocumentID]()
	d.mu.Unlock()

	evt := events.BuildNow{
		JobID:         uuid.NewString(),
		TriggeredAt:   time.Now(),
		RequestCount:  count,
		Nodes:         nodes,
		Removed:       removed,
		FirstRequest:  first,
		LastRequest:   last,
		DebounceCause: cause,
	}

	_ = d.bus.Publish(ctx, evt)
	return true
}

func (d *Debouncer) tryEmitAfterRunning(ctx context.Context) bool {
	d.mu.Lock()
	if !d.pendingAfterRun {
		d.mu.Unlock()
		return true
	}
	d.pollingAfterRun = true
	d.mu.Unlock()

	if d.cfg.CheckBuildRunning() {
		return false
	}

	// Generation finished; emit exactly one follow-up.
	return d.tryEmit(ctx, "after_running")
}
