package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/sim"
)

// statsServer exposes Prometheus metrics and the last run report.
type statsServer struct {
	addr     string
	gatherer prometheus.Gatherer
	logger   directive.Logger
	server   *http.Server

	mu     sync.RWMutex
	report *sim.Report
}

func newStatsServer(addr string, gatherer prometheus.Gatherer, logger directive.Logger) *statsServer {
	return &statsServer{addr: addr, gatherer: gatherer, logger: logger}
}

func (s *statsServer) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *statsServer) start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("metrics endpoint listening on %s", ln.Addr())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics endpoint stopped: %v", err)
		}
	}()
	return nil
}

func (s *statsServer) stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics endpoint shutdown: %v", err)
	}
}

func (s *statsServer) setReport(r *sim.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
}

func (s *statsServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *statsServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	report := s.report
	s.mu.RUnlock()

	if report == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"script":            report.Script,
		"counts":            report.Counts,
		"rejected_handlers": report.Rejected,
		"trace_length":      len(report.Trace),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
