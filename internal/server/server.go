// Package server exposes the rendered site, the livereload endpoint and the
// operational endpoints over a single HTTP listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/livereload"
	"git.home.luguber.info/inful/docforge/internal/metrics"
)

type Options struct {
	Addr      string
	OutputDir string
	Engine    *build.Engine
	Hub       *livereload.Hub
	Registry  *prom.Registry
	Logger    *slog.Logger
}

// Server serves rendered artifacts plus /livereload, /metrics, /healthz and
// /api/status.
type Server struct {
	opts Options
	srv  *http.Server
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{opts: opts}
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.opts.OutputDir)))
	if s.opts.Hub != nil {
		mux.Handle("/livereload", s.opts.Hub)
		mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript")
			fmt.Fprint(w, livereload.Script)
		})
	}
	if s.opts.Registry != nil {
		mux.Handle("/metrics", metrics.Handler(s.opts.Registry))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{}
	if s.opts.Engine != nil {
		stats := s.opts.Engine.Cache().Stats()
		status["building"] = s.opts.Engine.Running()
		status["documents"] = len(s.opts.Engine.IDs())
		status["cache"] = map[string]any{
			"entries":   stats.Entries,
			"bytes":     stats.Bytes,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
			"hit_ratio": s.opts.Engine.Cache().HitRatio(),
		}
	}
	if s.opts.Hub != nil {
		status["livereload_clients"] = s.opts.Hub.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.opts.Logger.Debug("status encode failed", "error", err)
	}
}

// Start binds the listener first so port conflicts fail fast, then serves
// until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.opts.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.opts.Logger.Info("HTTP server started", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
