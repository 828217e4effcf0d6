// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noahyzhang/fioscope/pkg/config"
	"go.uber.org/zap"
)

// Metric is one OTLP data point derived from a drained core.FileActivity
// record: fioscope_read_bytes_total or fioscope_write_bytes_total, labeled
// by thread id and file path.
type Metric struct {
	Name      string
	Value     float64
	Timestamp time.Time
	Labels    map[string]string
}

// Exporter is the interface for telemetry exporters.
type Exporter interface {
	ExportMetrics(ctx context.Context, metrics []*Metric) error
	Shutdown(ctx context.Context) error
}

const (
	defaultBatchSize     = 1000
	defaultFlushInterval = 5 * time.Second
	defaultChannelSize   = 10000

	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	backoffFactor  = 2.0
)

// Manager batches FileActivity-derived metrics and exports them to every
// configured exporter, with retry and circuit-breaker protection per signal.
type Manager struct {
	logger    *zap.Logger
	exporters []Exporter

	metricCh chan *Metric

	metricCount atomic.Int64
	dropCount   atomic.Int64

	batchSize     int
	flushInterval time.Duration

	circuitBreaker *CircuitBreaker

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewManager creates a new export manager from OTLP configuration.
func NewManager(cfg *config.OTLPConfig, serviceName string, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:         logger,
		metricCh:       make(chan *Metric, defaultChannelSize),
		batchSize:      defaultBatchSize,
		flushInterval:  defaultFlushInterval,
		circuitBreaker: NewCircuitBreaker(5, 30*time.Second),
		stopCh:         make(chan struct{}),
	}

	if cfg.Enabled {
		exp, err := NewOTLPExporter(cfg, serviceName, logger)
		if err != nil {
			logger.Warn("failed to create OTLP exporter", zap.Error(err))
		} else {
			m.exporters = append(m.exporters, exp)
		}
	}

	return m, nil
}

// Start begins the batch export goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.wg.Add(1)
	go m.processMetrics(ctx)

	m.logger.Info("export manager started",
		zap.Int("exporters", len(m.exporters)),
		zap.Int("batch_size", m.batchSize),
		zap.Duration("flush_interval", m.flushInterval),
	)

	return nil
}

// Stop flushes remaining data and shuts down exporters.
func (m *Manager) Stop() error {
	close(m.stopCh)
	m.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, exp := range m.exporters {
		if err := exp.Shutdown(ctx); err != nil {
			m.logger.Error("exporter shutdown error", zap.Error(err))
		}
	}

	m.logger.Info("export manager stopped",
		zap.Int64("metrics_exported", m.metricCount.Load()),
		zap.Int64("dropped", m.dropCount.Load()),
	)

	return nil
}

// ExportMetric queues a metric for export.
func (m *Manager) ExportMetric(metric *Metric) {
	select {
	case m.metricCh <- metric:
	default:
		m.dropCount.Add(1)
		m.logger.Warn("metric channel full, dropping metric")
	}
}

func (m *Manager) processMetrics(ctx context.Context) {
	defer m.wg.Done()

	batch := make([]*Metric, 0, m.batchSize)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case metric := <-m.metricCh:
			batch = append(batch, metric)
			if len(batch) >= m.batchSize {
				m.flushMetrics(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				m.flushMetrics(ctx, batch)
				batch = batch[:0]
			}

		case <-m.stopCh:
			for {
				select {
				case metric := <-m.metricCh:
					batch = append(batch, metric)
				default:
					if len(batch) > 0 {
						m.flushMetrics(ctx, batch)
					}
					return
				}
			}

		case <-ctx.Done():
			for {
				select {
				case metric := <-m.metricCh:
					batch = append(batch, metric)
				default:
					if len(batch) > 0 {
						m.flushMetrics(context.Background(), batch)
					}
					return
				}
			}
		}
	}
}

func (m *Manager) flushMetrics(ctx context.Context, metrics []*Metric) {
	for _, exp := range m.exporters {
		m.retryExport(ctx, "metrics", func(expCtx context.Context) error {
			return exp.ExportMetrics(expCtx, metrics)
		})
	}
	m.metricCount.Add(int64(len(metrics)))
}

// retryExport attempts an export with exponential backoff and circuit breaker.
func (m *Manager) retryExport(ctx context.Context, signal string, exportFn func(context.Context) error) {
	if !m.circuitBreaker.Allow() {
		m.dropCount.Add(1)
		m.logger.Debug("circuit breaker open, dropping export",
			zap.String("signal", signal),
		)
		return
	}

	backoff := initialBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		exportCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := exportFn(exportCtx)
		cancel()

		if err == nil {
			m.circuitBreaker.RecordSuccess()
			return
		}

		m.circuitBreaker.RecordFailure()

		if attempt == maxRetries {
			m.logger.Error("export failed after retries",
				zap.String("signal", signal),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			m.dropCount.Add(1)
			return
		}

		m.logger.Warn("export failed, retrying",
			zap.String("signal", signal),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff = time.Duration(math.Min(
			float64(backoff)*backoffFactor,
			float64(maxBackoff),
		))
	}
}

// Stats returns current export statistics.
func (m *Manager) Stats() (metrics int64) {
	return m.metricCount.Load()
}

// DropCount returns the number of dropped telemetry items.
func (m *Manager) DropCount() int64 {
	return m.dropCount.Load()
}

// ChannelDepth returns the current metric channel fill level for monitoring.
func (m *Manager) ChannelDepth() int {
	return len(m.metricCh)
}
