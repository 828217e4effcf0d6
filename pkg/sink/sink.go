// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package sink persists drained file-activity snapshots to a local SQLite
// database so a flaky OTLP collector or a process restart does not lose
// the aggregation window entirely.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/noahyzhang/fioscope/pkg/core"
)

// Sink writes drained core.FileActivity records to a SQLite database on a
// fixed flush interval.
type Sink struct {
	db     *sql.DB
	logger *zap.Logger

	handler  *core.Handler
	interval time.Duration

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Open creates (or attaches to) the SQLite database at dbPath, running the
// io_snapshots schema migration, and returns a Sink that will drain handler
// on the given interval once Start is called.
func Open(dbPath string, handler *core.Handler, interval time.Duration, logger *zap.Logger) (*Sink, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create sink directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sink database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Sink{
		db:       db,
		logger:   logger,
		handler:  handler,
		interval: interval,
		stopCh:   make(chan struct{}),
	}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS io_snapshots (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		ts           DATETIME NOT NULL,
		tid          INTEGER NOT NULL,
		path         TEXT NOT NULL,
		read_bytes   INTEGER NOT NULL,
		write_bytes  INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create io_snapshots table: %w", err)
	}

	alertSchema := `
	CREATE TABLE IF NOT EXISTS io_alerts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		ts           DATETIME NOT NULL,
		rule_id      TEXT NOT NULL,
		rule_name    TEXT NOT NULL,
		severity     TEXT NOT NULL,
		tid          INTEGER NOT NULL,
		path         TEXT NOT NULL,
		read_bytes   INTEGER NOT NULL,
		write_bytes  INTEGER NOT NULL
	);`
	if _, err := db.Exec(alertSchema); err != nil {
		return fmt.Errorf("create io_alerts table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_io_snapshots_ts ON io_snapshots(ts);",
		"CREATE INDEX IF NOT EXISTS idx_io_snapshots_tid ON io_snapshots(tid);",
		"CREATE INDEX IF NOT EXISTS idx_io_snapshots_path ON io_snapshots(path);",
		"CREATE INDEX IF NOT EXISTS idx_io_alerts_ts ON io_alerts(ts);",
		"CREATE INDEX IF NOT EXISTS idx_io_alerts_rule_id ON io_alerts(rule_id);",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// InsertAlerts persists a batch of alert.Match values into io_alerts in a
// single transaction. The sink package does not import pkg/alert to avoid a
// cyclic dependency (alert consumes core.FileActivity, sink consumes
// alert.Match) — callers pass the fields already extracted.
func (s *Sink) InsertAlerts(ts time.Time, matches []AlertRecord) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO io_alerts (ts, rule_id, rule_name, severity, tid, path, read_bytes, write_bytes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := stmt.Exec(ts, m.RuleID, m.RuleName, m.Severity, m.TID, m.Path, m.Read, m.Write); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// AlertRecord is the subset of alert.Match the sink needs to persist a row,
// shaped to avoid importing pkg/alert from pkg/sink.
type AlertRecord struct {
	RuleID   string
	RuleName string
	Severity string
	TID      uint64
	Path     string
	Read     uint64
	Write    uint64
}

// Start begins the periodic drain-and-persist loop.
func (s *Sink) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.flush(time.Now())
			case <-s.stopCh:
				s.flush(time.Now())
				return
			case <-ctx.Done():
				s.flush(time.Now())
				return
			}
		}
	}()

	s.logger.Info("sink started", zap.Duration("flush_interval", s.interval))
}

func (s *Sink) flush(now time.Time) {
	records := s.handler.Drain()
	if len(records) == 0 {
		return
	}

	if err := s.insertBatch(now, records); err != nil {
		s.logger.Error("sink flush failed", zap.Error(err), zap.Int("records", len(records)))
		return
	}

	s.logger.Debug("sink flushed records", zap.Int("records", len(records)))
}

func (s *Sink) insertBatch(ts time.Time, records []core.FileActivity) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO io_snapshots (ts, tid, path, read_bytes, write_bytes) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(ts, r.TID, r.Path, r.Read, r.Write); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Stop halts the flush loop, performing one final drain-and-persist pass,
// and closes the database.
func (s *Sink) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return s.db.Close()
}
