// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package agent wires the aggregation core, an intercept provider, and the
// ambient subsystems (health server, sink, alert detector, OTLP exporter,
// process sampler) into a single process lifecycle.
package agent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noahyzhang/fioscope/pkg/alert"
	"github.com/noahyzhang/fioscope/pkg/config"
	"github.com/noahyzhang/fioscope/pkg/core"
	"github.com/noahyzhang/fioscope/pkg/export"
	"github.com/noahyzhang/fioscope/pkg/health"
	"github.com/noahyzhang/fioscope/pkg/hook"
	hookebpf "github.com/noahyzhang/fioscope/pkg/hook/ebpf"
	"github.com/noahyzhang/fioscope/pkg/metrics"
	"github.com/noahyzhang/fioscope/pkg/sink"
)

// Agent is the main orchestrator: it owns the core handler and every
// ambient subsystem built on top of it, and wires them together for the
// lifetime of one process.
type Agent struct {
	cfg    atomic.Pointer[config.Config]
	logger *zap.Logger

	core         *core.Handler
	hookProvider hook.HookProvider
	healthServer *health.Server
	healthStats  *health.Stats
	sink         *sink.Sink
	detector     *alert.Detector
	exporter     *export.Manager
	procStats    *metrics.Collector
	procStatsPID *metrics.ProcessCollector

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// New builds an Agent from cfg but starts nothing yet.
func New(cfg *config.Config, version string, logger *zap.Logger) (*Agent, error) {
	a := &Agent{logger: logger}
	a.cfg.Store(cfg)

	a.core = core.NewHandler(cfg.Core.BucketCount, cfg.Core.MaxPoolEntries)
	a.healthStats = health.NewStats(a.core)
	a.healthServer = health.NewServer(cfg.Health.Addr, version, a.healthStats, a.core, logger)

	if cfg.EBPF.Enabled {
		a.hookProvider = hookebpf.NewProvider(cfg, logger)
	} else {
		a.hookProvider = hook.NewSocketProvider(cfg.Socket.Path, logger)
	}

	if cfg.Sink.Enabled {
		s, err := sink.Open(cfg.Sink.DBPath, a.core, cfg.Sink.FlushInterval, logger)
		if err != nil {
			return nil, fmt.Errorf("open sink: %w", err)
		}
		a.sink = s
	}

	if cfg.Alerts.Enabled {
		d, err := alert.NewDetector(cfg.Alerts.RulesDir, logger)
		if err != nil {
			return nil, fmt.Errorf("create alert detector: %w", err)
		}
		a.detector = d
	}

	exporter, err := export.NewManager(&cfg.OTLP, "fioscoped", logger)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	a.exporter = exporter

	if cfg.ProcStats.Enabled {
		a.procStats = metrics.NewCollector(cfg.ProcStats.Interval, logger)
		a.procStats.OnMetric(a.onProcMetric)

		a.procStatsPID = metrics.NewProcessCollector(logger)
		a.procStatsPID.AddPID(uint32(os.Getpid()))
		a.procStatsPID.OnMetric(a.onProcMetric)
	}

	return a, nil
}

// onProcMetric folds a gopsutil sample into the health server's /metrics
// output (D7) — the counterpart of a.exportLoop for the core's own
// byte counters below.
func (a *Agent) onProcMetric(m *metrics.Metric) {
	name := "fioscope_" + sanitizeMetricName(m.Name)
	a.healthServer.SetProcStat(name, m.Value)
}

func sanitizeMetricName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '-' {
			out[i] = '_'
		} else {
			out[i] = c
		}
	}
	return string(out)
}

// Start begins every enabled subsystem and the periodic drain loops: the
// export loop (OTLP), the alert loop, and the sink's own flush ticker each
// call core.Handler.Drain() on their own schedule.
func (a *Agent) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.ctx = ctx
	a.cancel = cancel
	cfg := a.cfg.Load()

	callbacks := hook.Callbacks{
		OnOpen: func(_, _ uint32, fd int32, path string, _ uint64) {
			a.core.OnOpen(int(fd), path)
		},
		OnClose: func(_, _ uint32, fd int32, _ uint64) {
			a.core.OnClose(int(fd))
		},
		OnRead: func(_, tid uint32, fd int32, n uint64, _ uint64) {
			a.core.OnRead(uint64(tid), int(fd), n)
		},
		OnWrite: func(_, tid uint32, fd int32, n uint64, _ uint64) {
			a.core.OnWrite(uint64(tid), int(fd), n)
		},
	}

	if err := a.hookProvider.Start(ctx, callbacks); err != nil {
		return fmt.Errorf("start hook provider: %w", err)
	}

	if err := a.healthServer.Start(ctx); err != nil {
		return fmt.Errorf("start health server: %w", err)
	}

	if a.sink != nil {
		a.sink.Start(ctx)
	}

	if err := a.exporter.Start(ctx); err != nil {
		return fmt.Errorf("start exporter: %w", err)
	}

	if a.procStats != nil {
		if err := a.procStats.Start(ctx); err != nil {
			return fmt.Errorf("start proc stats collector: %w", err)
		}
	}
	if a.procStatsPID != nil {
		if err := a.procStatsPID.Start(ctx, cfg.ProcStats.Interval); err != nil {
			return fmt.Errorf("start per-pid collector: %w", err)
		}
	}

	if a.detector != nil {
		a.wg.Add(1)
		go a.alertLoop(ctx, cfg.Sink.FlushInterval)
	}

	a.wg.Add(1)
	go a.exportLoop(ctx, cfg.Sink.FlushInterval)

	a.healthServer.SetReady(true)
	a.logger.Info("fioscope agent started",
		zap.String("hook_provider", a.hookProvider.Name()),
		zap.String("health_addr", cfg.Health.Addr),
	)
	return nil
}

// exportLoop periodically drains the core and forwards each record's
// read/write byte counts to the OTLP exporter (D6). The sink drains on its
// own independent ticker (D4); a re-entrant Drain() call here simply
// observes whatever accumulated since the sink's last drain, per spec.md
// §4.5.
func (a *Agent) exportLoop(ctx context.Context, interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, rec := range a.core.Drain() {
				labels := map[string]string{"tid": uint64ToStr(rec.TID), "path": rec.Path}
				if rec.Read > 0 {
					a.exporter.ExportMetric(&export.Metric{Name: "fioscope_read_bytes_total", Value: float64(rec.Read), Timestamp: now, Labels: labels})
				}
				if rec.Write > 0 {
					a.exporter.ExportMetric(&export.Metric{Name: "fioscope_write_bytes_total", Value: float64(rec.Write), Timestamp: now, Labels: labels})
				}
			}
		}
	}
}

// alertLoop periodically drains the core and evaluates every record against
// the loaded Sigma rules (D5), persisting matches to the sink's io_alerts
// table when a sink is configured.
func (a *Agent) alertLoop(ctx context.Context, interval time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			matches := a.detector.EvaluateAll(ctx, a.core.Drain())
			for _, m := range matches {
				a.logger.Warn("alert rule matched",
					zap.String("rule_id", m.RuleID),
					zap.String("rule_name", m.RuleName),
					zap.String("severity", m.Severity),
					zap.Uint64("tid", m.TID),
					zap.String("path", m.Path),
				)
			}
			if a.sink != nil && len(matches) > 0 {
				records := make([]sink.AlertRecord, len(matches))
				for i, m := range matches {
					records[i] = sink.AlertRecord{RuleID: m.RuleID, RuleName: m.RuleName, Severity: m.Severity, TID: m.TID, Path: m.Path, Read: m.Read, Write: m.Write}
				}
				if err := a.sink.InsertAlerts(now, records); err != nil {
					a.logger.Error("failed to persist alerts", zap.Error(err))
				}
			}
		}
	}
}

func uint64ToStr(n uint64) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte(n%10) + '0'
		n /= 10
	}
	return string(buf[i:])
}

// Stop tears down every subsystem, marks the core destructing so any
// in-flight hook callback becomes a silent no-op, and waits for the
// export/alert loops to exit.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}

	a.healthServer.SetReady(false)

	if a.hookProvider != nil {
		a.hookProvider.Stop()
	}
	if a.procStats != nil {
		a.procStats.Stop()
	}
	if a.procStatsPID != nil {
		a.procStatsPID.Stop()
	}

	a.wg.Wait()

	a.core.MarkDestructing()

	if a.detector != nil {
		a.detector.Close()
	}
	if a.sink != nil {
		a.sink.Stop()
	}
	if a.exporter != nil {
		a.exporter.Stop()
	}
	if err := a.healthServer.Stop(); err != nil {
		a.logger.Warn("health server shutdown error", zap.Error(err))
	}

	a.logger.Info("fioscope agent stopped")
	return nil
}

// Reload stores cfg as the agent's current configuration and logs the
// change. It does not reconfigure anything already running: the hook
// provider, sink, detector, exporter and samplers keep the settings they
// were started with.
func (a *Agent) Reload(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Store(cfg)
	a.logger.Info("configuration reloaded",
		zap.Bool("sink_enabled", cfg.Sink.Enabled),
		zap.Bool("alerts_enabled", cfg.Alerts.Enabled),
		zap.Bool("otlp_enabled", cfg.OTLP.Enabled),
	)
	return nil
}
