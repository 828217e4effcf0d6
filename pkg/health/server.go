// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noahyzhang/fioscope/pkg/core"
	"go.uber.org/zap"
)

// Server provides health, readiness, metrics, and drain HTTP endpoints.
type Server struct {
	logger  *zap.Logger
	stats   *Stats
	handler *core.Handler
	version string
	addr    string
	ready   atomic.Bool
	server  *http.Server

	procMu   sync.RWMutex
	procGaug map[string]float64
}

// NewServer creates a health server. handler is drained by the /drain
// endpoint; it is the same handler whose counters stats reports on.
func NewServer(addr, version string, stats *Stats, handler *core.Handler, logger *zap.Logger) *Server {
	return &Server{
		addr:     addr,
		version:  version,
		stats:    stats,
		handler:  handler,
		logger:   logger,
		procGaug: make(map[string]float64),
	}
}

// SetReady marks the agent as ready to serve traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// SetProcStat records the latest value of a gopsutil-derived process/system
// gauge (D7) so /metrics exposes it alongside the core's own counters. name
// should already be a valid Prometheus metric name (e.g.
// "fioscope_process_cpu_percent").
func (s *Server) SetProcStat(name string, value float64) {
	s.procMu.Lock()
	s.procGaug[name] = value
	s.procMu.Unlock()
}

// Start begins serving health endpoints.
func (s *Server) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/drain", s.handleDrain)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server error", zap.Error(err))
		}
	}()

	s.logger.Info("health server started", zap.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts down the health server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status  string  `json:"status"`
	Version string  `json:"version"`
	Uptime  string  `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: s.version,
		Uptime:  s.stats.Uptime().Truncate(time.Second).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	body := []byte(s.stats.PrometheusMetrics())

	s.procMu.RLock()
	for name, value := range s.procGaug {
		body = appendMetric(body, name, "gauge", "Process/system gauge sampled via gopsutil", value)
	}
	s.procMu.RUnlock()

	w.Write(body)
}

// handleDrain performs an on-demand read-and-switch against the core
// aggregation pool and returns the drained records as JSON. Intended for
// ad-hoc inspection; the sink and alert pipelines drain on their own
// schedules independently of this endpoint.
func (s *Server) handleDrain(w http.ResponseWriter, _ *http.Request) {
	records := s.handler.Drain()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
