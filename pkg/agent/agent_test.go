// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noahyzhang/fioscope/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Health.Addr = "127.0.0.1:0"
	cfg.Socket.Path = filepath.Join(dir, "fioscope.sock")
	cfg.Sink.DBPath = filepath.Join(dir, "fioscope.db")
	cfg.Sink.FlushInterval = time.Second
	cfg.ProcStats.Interval = time.Second
	return cfg
}

func TestNewBuildsEveryEnabledSubsystem(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, "test", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.core == nil {
		t.Error("expected core handler to be constructed")
	}
	if a.hookProvider == nil {
		t.Error("expected a hook provider to be selected")
	}
	if a.hookProvider.Name() != "socket" {
		t.Errorf("expected socket provider when ebpf disabled, got %q", a.hookProvider.Name())
	}
	if a.sink == nil {
		t.Error("expected sink to be constructed when sink.enabled is true")
	}
	if a.detector != nil {
		t.Error("expected no alert detector when alerts.enabled is false")
	}
	if a.exporter == nil {
		t.Error("expected an exporter (even with otlp disabled, it still exists to no-op)")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, "test", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a.core.OnOpen(5, "/tmp/agent-test.log")
	a.core.OnWrite(1, 5, 128)
	a.core.OnClose(5)

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNewWithAlertsEnabledConstructsDetector(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerts.Enabled = true
	cfg.Alerts.RulesDir = filepath.Join(t.TempDir(), "rules")

	a, err := New(cfg, "test", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.detector == nil {
		t.Error("expected alert detector to be constructed when alerts.enabled is true")
	}
}
