// Package livereload serves the SSE endpoint that notifies connected
// browsers which documents changed in a finished build generation.
package livereload

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/metrics"
)

// Notification is one SSE payload per finished generation: the documents
// whose rendered output actually changed plus that generation's diagnostics.
// Changed may be empty, e.g. a failed generation that kept previous output.
type Notification struct {
	Generation  uint64             `json:"generation"`
	Changed     []docid.DocumentID `json:"changed"`
	Diagnostics []build.Diagnostic `json:"diagnostics,omitempty"`
}

// Hub manages SSE clients for build-change broadcasts.
type Hub struct {
	mu      sync.RWMutex
	nextID  int
	clients map[int]*client
	rec     metrics.Recorder
	closed  bool
	last    *Notification
}

type client struct {
	id   int
	ch   chan []byte
	done chan struct{}
}

func NewHub(rec metrics.Recorder) *Hub {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Hub{clients: map[int]*client{}, rec: rec}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP implements the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	c := &client{ch: make(chan []byte, 8), done: make(chan struct{})}
	h.mu.Lock()
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	last := h.last
	count := len(h.clients)
	h.mu.Unlock()
	h.rec.SetLiveReloadClients(count)

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		slog.Debug("livereload write", "error", err)
		return
	}
	// Late joiners get the last notification so a reload that raced the
	// connection is not lost.
	if last != nil {
		writeEvent(bw, encode(last))
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(30 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(c.id)
			return
		case <-c.done:
			h.removeClient(c.id)
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				bw.Flush()
				flusher.Flush()
			} else {
				slog.Debug("livereload ping write", "error", err)
			}
		case payload := <-c.ch:
			if writeEvent(bw, payload) {
				flusher.Flush()
			}
		}
	}
}

func writeEvent(bw *bufio.Writer, payload []byte) bool {
	if _, err := bw.WriteString("data: "); err != nil {
		slog.Debug("livereload broadcast write", "error", err)
		return false
	}
	bw.Write(payload)
	bw.WriteString("\n\n")
	return bw.Flush() == nil
}

func encode(n *Notification) []byte {
	payload, err := json.Marshal(n)
	if err != nil {
		return []byte("{}")
	}
	return payload
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.rec.SetLiveReloadClients(len(h.clients))
	}
}

// Broadcast notifies all clients. Clients whose channels are full are
// dropped rather than allowed to stall the broadcast.
func (h *Hub) Broadcast(n Notification) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.last = &n
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	payload := encode(&n)
	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- payload:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.rec.IncLiveReloadBroadcasts()
	slog.Debug("livereload broadcast",
		"generation", n.Generation,
		"changed", len(n.Changed),
		"clients", len(snapshot),
		"dropped", dropped)
}

// Shutdown closes all clients and prevents future broadcasts.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.rec.SetLiveReloadClients(0)
}

// Script is the JS snippet clients can include to reload on change.
const Script = `(() => {
  if (window.__DOCFORGE_LR__) return;
  window.__DOCFORGE_LR__ = true;
  function connect() {
    const es = new EventSource('/livereload');
    let first = true;
    let gen = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (first) { gen = p.generation; first = false; return; }
        if (p.generation && p.generation !== gen) {
          gen = p.generation;
          if (p.changed && p.changed.length) {
            console.log('[docforge] change detected, reloading');
            location.reload();
          }
        }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`
