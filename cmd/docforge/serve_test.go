package main

import (
	"bufio"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/events"
	"git.home.luguber.info/inful/docforge/internal/livereload"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func readSSE(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return strings.TrimSpace(data)
		}
	}
	t.Fatal("no SSE data event")
	return ""
}

func TestBroadcastFinishedForwardsFailedGeneration(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	hub := livereload.NewHub(nil)
	defer hub.Shutdown()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = broadcastFinished(ctx, bus, hub) }()
	waitFor(t, func() bool { return events.SubscriberCount[events.BuildFinished](bus) == 1 })

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	// A parse failure keeps the previous artifact, so Changed is empty. The
	// generation is still announced, diagnostics included.
	res := &build.Result{
		Generation: 4,
		State:      build.StateFailed,
		Diagnostics: []build.Diagnostic{{
			DocumentID: "a",
			Severity:   build.SeverityError,
			Message:    "malformed document",
		}},
	}
	require.NoError(t, bus.Publish(ctx, events.BuildFinished{
		Generation: 4,
		State:      res.State,
		Result:     res,
		FinishedAt: time.Now(),
	}))

	data := readSSE(t, r)
	assert.Contains(t, data, `"generation":4`)
	assert.Contains(t, data, "malformed document")
}
