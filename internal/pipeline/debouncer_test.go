package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/events"
)

func startDebouncer(t *testing.T, cfg DebouncerConfig) (*events.Bus, <-chan events.BuildNow) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	d, err := NewDebouncer(bus, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = d.Run(ctx) }()
	<-d.Ready()

	ch, unsub := events.Subscribe[events.BuildNow](bus, 8)
	t.Cleanup(unsub)
	return bus, ch
}

func request(t *testing.T, bus *events.Bus, nodes ...docid.NodeRef) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), events.BuildRequested{
		Nodes:       nodes,
		RequestedAt: time.Now(),
	}))
}

func waitBuildNow(t *testing.T, ch <-chan events.BuildNow, within time.Duration) events.BuildNow {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(within):
		t.Fatal("expected BuildNow")
		return events.BuildNow{}
	}
}

func TestBurstCoalescesIntoOneBuild(t *testing.T) {
	bus, ch := startDebouncer(t, DebouncerConfig{
		QuietWindow: 30 * time.Millisecond,
		MaxDelay:    time.Second,
	})

	request(t, bus, docid.DocNode("a"))
	request(t, bus, docid.DocNode("b"))
	request(t, bus, docid.DocNode("a"))

	evt := waitBuildNow(t, ch, time.Second)
	assert.Equal(t, 3, evt.RequestCount)
	assert.Equal(t, "quiet", evt.DebounceCause)
	assert.ElementsMatch(t, []docid.NodeRef{docid.DocNode("a"), docid.DocNode("b")}, evt.Nodes)
	assert.NotEmpty(t, evt.JobID)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected second BuildNow: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMaxDelayFiresUnderSustainedChanges(t *testing.T) {
	bus, ch := startDebouncer(t, DebouncerConfig{
		QuietWindow: 80 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(30 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = bus.Publish(context.Background(), events.BuildRequested{
					Nodes:       []docid.NodeRef{docid.DocNode("a")},
					RequestedAt: time.Now(),
				})
			}
		}
	}()

	evt := waitBuildNow(t, ch, time.Second)
	assert.Equal(t, "max_delay", evt.DebounceCause)
}

func TestChangesDuringRunQueueExactlyOneFollowUp(t *testing.T) {
	var running atomic.Bool
	running.Store(true)

	bus, ch := startDebouncer(t, DebouncerConfig{
		QuietWindow:       20 * time.Millisecond,
		MaxDelay:          time.Second,
		CheckBuildRunning: running.Load,
		PollInterval:      10 * time.Millisecond,
	})

	request(t, bus, docid.DocNode("a"))
	request(t, bus, docid.DocNode("b"))
	request(t, bus, docid.DocNode("c"))

	select {
	case evt := <-ch:
		t.Fatalf("BuildNow emitted while a generation was running: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}

	running.Store(false)
	evt := waitBuildNow(t, ch, time.Second)
	assert.Equal(t, "after_running", evt.DebounceCause)
	assert.Len(t, evt.Nodes, 3)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected second follow-up: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestImmediateBypassesQuietWindow(t *testing.T) {
	bus, ch := startDebouncer(t, DebouncerConfig{
		QuietWindow: time.Hour,
		MaxDelay:    2 * time.Hour,
	})

	require.NoError(t, bus.Publish(context.Background(), events.BuildRequested{
		Immediate:   true,
		Nodes:       []docid.NodeRef{docid.DocNode("a")},
		RequestedAt: time.Now(),
	}))

	evt := waitBuildNow(t, ch, time.Second)
	assert.Equal(t, "immediate", evt.DebounceCause)
}

func TestFilesystemChangesFeedDebouncer(t *testing.T) {
	bus, ch := startDebouncer(t, DebouncerConfig{
		QuietWindow: 30 * time.Millisecond,
		MaxDelay:    time.Second,
	})

	require.NoError(t, bus.Publish(context.Background(), events.ChangeDetected{
		Nodes:      []docid.NodeRef{docid.DocNode("a")},
		DetectedAt: time.Now(),
	}))
	require.NoError(t, bus.Publish(context.Background(), events.ChangeDetected{
		Nodes:      []docid.NodeRef{docid.DocNode("gone")},
		Removed:    []docid.DocumentID{"gone"},
		DetectedAt: time.Now(),
	}))

	evt := waitBuildNow(t, ch, time.Second)
	assert.ElementsMatch(t, []docid.NodeRef{docid.DocNode("a"), docid.DocNode("gone")}, evt.Nodes)
	assert.Equal(t, []docid.DocumentID{"gone"}, evt.Removed)
}

func TestConfigValidation(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	_, err := NewDebouncer(nil, DebouncerConfig{QuietWindow: time.Second, MaxDelay: time.Second})
	assert.Error(t, err)
	_, err = NewDebouncer(bus, DebouncerConfig{MaxDelay: time.Second})
	assert.Error(t, err)
	_, err = NewDebouncer(bus, DebouncerConfig{QuietWindow: time.Second})
	assert.Error(t, err)
}
