// Package status serves Prometheus metrics and JSON snapshots of running
// streamers and clients over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opd-ai/framestream/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// DefaultSnapshotTimeout bounds how long /status waits for the loop.
const DefaultSnapshotTimeout = 2 * time.Second

// SnapshotFunc returns a JSON-encodable snapshot. It runs on the loop.
type SnapshotFunc func() any

// Server is the HTTP status endpoint.
type Server struct {
	loop     *scheduler.Loop
	gatherer prometheus.Gatherer
	timeout  time.Duration
	started  time.Time
	router   chi.Router

	mu      sync.RWMutex
	sources map[string]SnapshotFunc
	srv     *http.Server
}

// New creates a status server. Snapshots are taken on loop; metrics come
// from gatherer.
func New(loop *scheduler.Loop, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		loop:     loop,
		gatherer: gatherer,
		timeout:  DefaultSnapshotTimeout,
		started:  time.Now(),
		sources:  make(map[string]SnapshotFunc),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.router = r

	return s
}

// AddSource publishes fn under name in /status.
func (s *Server) AddSource(name string, fn SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[name] = fn
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr uses port 0.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "Server.Start",
				"error":    err.Error(),
			}).Error("Status server stopped")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function": "Server.Start",
		"addr":     ln.Addr().String(),
	}).Info("Status server listening")

	return ln.Addr(), nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.srv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sources := make([]SnapshotFunc, len(names))
	sort.Strings(names)
	for i, name := range names {
		sources[i] = s.sources[name]
	}
	s.mu.RUnlock()

	out := make(map[string]any, len(names))
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	err := s.loop.Call(ctx, func() {
		for i, name := range names {
			out[name] = sources[i]()
		}
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": fmt.Sprintf("snapshot: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// requestLogger logs each request through logrus at Debug.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logrus.WithFields(logrus.Fields{
			"function":   "requestLogger",
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Status request")
	})
}
