package livereload

import (
	"bufio"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/docid"
)

func connect(t *testing.T, srv *httptest.Server) *bufio.Reader {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func readEvent(t *testing.T, r *bufio.Reader) string {
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

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
}

func TestBroadcastReachesClient(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Shutdown()

	r := connect(t, srv)
	waitClients(t, h, 1)

	h.Broadcast(Notification{Generation: 7, Changed: []docid.DocumentID{"guide/setup"}})

	data := readEvent(t, r)
	assert.Contains(t, data, `"generation":7`)
	assert.Contains(t, data, `"guide/setup"`)
}

func TestBroadcastCarriesDiagnostics(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Shutdown()

	r := connect(t, srv)
	waitClients(t, h, 1)

	// A failed generation may change no output at all; the notification is
	// still delivered, carrying the diagnostics.
	h.Broadcast(Notification{
		Generation: 9,
		Diagnostics: []build.Diagnostic{{
			DocumentID: "guide/setup",
			Severity:   build.SeverityError,
			Message:    "malformed document",
		}},
	})

	data := readEvent(t, r)
	assert.Contains(t, data, `"generation":9`)
	assert.Contains(t, data, `"severity":"error"`)
	assert.Contains(t, data, "malformed document")
}

func TestLateJoinerGetsLastNotification(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Shutdown()

	h.Broadcast(Notification{Generation: 3})

	r := connect(t, srv)
	data := readEvent(t, r)
	assert.Contains(t, data, `"generation":3`)
}

func TestShutdownRejectsNewClients(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	h.Shutdown()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}

func TestClientDisconnectIsTracked(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Shutdown()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	waitClients(t, h, 1)
	resp.Body.Close()
	waitClients(t, h, 0)
}
