package server

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/cache"
	"git.home.luguber.info/inful/docforge/internal/graph"
	"git.home.luguber.info/inful/docforge/internal/livereload"
	"git.home.luguber.info/inful/docforge/internal/markdown"
	"git.home.luguber.info/inful/docforge/internal/metrics"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	out := t.TempDir()
	engine := build.NewEngine(build.Config{
		SourceRoot: t.TempDir(),
		OutputDir:  out,
		Workers:    1,
	}, graph.New(), cache.New(cache.Config{}), markdown.NewParser(), markdown.NewRenderer())

	reg := prom.NewRegistry()
	metrics.NewPrometheusRecorder(reg)

	return New(Options{
		Addr:      "127.0.0.1:0",
		OutputDir: out,
		Engine:    engine,
		Hub:       livereload.NewHub(nil),
		Registry:  reg,
	}), out
}

func get(t *testing.T, h *Server, path string) (int, string) {
	t.Helper()
	srv := httptest.NewServer(h.routes())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServesRenderedArtifacts(t *testing.T) {
	s, out := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(out, "index.html"), []byte("<html>hi</html>"), 0o644))

	code, body := get(t, s, "/index.html")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "hi")
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := get(t, s, "/healthz")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := get(t, s, "/metrics")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "docforge_cache_entries")
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := get(t, s, "/api/status")
	assert.Equal(t, 200, code)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, false, status["building"])
	assert.Contains(t, status, "cache")
}

func TestLiveReloadScript(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := get(t, s, "/livereload.js")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "EventSource")
}
