// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/noahyzhang/fioscope/pkg/core"
	"go.uber.org/zap"
)

func newTestServer(addr, version string) (*Server, *core.Handler) {
	h := core.NewHandler(64, 1000)
	stats := NewStats(h)
	return NewServer(addr, version, stats, h, zap.NewNop()), h
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(":0", "1.0.0-test")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var hr healthResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if hr.Status != "healthy" {
		t.Errorf("expected status=healthy, got %q", hr.Status)
	}
	if hr.Version != "1.0.0-test" {
		t.Errorf("expected version=1.0.0-test, got %q", hr.Version)
	}
}

func TestReadyEndpoint_NotReady(t *testing.T) {
	srv, _ := newTestServer(":0", "test")

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	srv.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestReadyEndpoint_Ready(t *testing.T) {
	srv, _ := newTestServer(":0", "test")
	srv.SetReady(true)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	srv.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, h := newTestServer(":0", "test")

	h.OnOpen(3, "/var/log/app.log")
	h.OnWrite(1, 3, 42)
	h.OnClose(999) // unknown fd, counted but not an error

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.handleMetrics(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "fioscope_write_calls_total 1") {
		t.Errorf("expected write_calls_total 1 in metrics output, got: %s", body)
	}
	if !strings.Contains(body, "fioscope_open_calls_total 1") {
		t.Errorf("expected open_calls_total 1 in metrics output")
	}
	if !strings.Contains(body, "fioscope_uptime_seconds") {
		t.Errorf("expected uptime_seconds in metrics output")
	}
}

func TestDrainEndpoint(t *testing.T) {
	srv, h := newTestServer(":0", "test")

	h.OnOpen(3, "/var/log/app.log")
	h.OnWrite(1, 3, 42)

	req := httptest.NewRequest("GET", "/drain", nil)
	w := httptest.NewRecorder()
	srv.handleDrain(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var records []core.FileActivity
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(records) != 1 || records[0].Path != "/var/log/app.log" || records[0].Write != 42 {
		t.Errorf("unexpected drained records: %+v", records)
	}
}

func TestServerStartStop(t *testing.T) {
	srv, _ := newTestServer("127.0.0.1:0", "test")

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
