// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package sink

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noahyzhang/fioscope/pkg/core"
)

func TestSinkFlushPersistsDrainedRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fioscope.db")
	h := core.NewHandler(64, 1000)

	s, err := Open(dbPath, h, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Stop()

	h.OnOpen(3, "/var/log/app.log")
	h.OnWrite(1, 3, 128)
	h.OnRead(1, 3, 64)

	s.flush(time.Now())

	row := s.db.QueryRow(`SELECT tid, path, read_bytes, write_bytes FROM io_snapshots`)
	var tid int64
	var path string
	var readBytes, writeBytes int64
	if err := row.Scan(&tid, &path, &readBytes, &writeBytes); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if tid != 1 || path != "/var/log/app.log" || readBytes != 64 || writeBytes != 128 {
		t.Errorf("unexpected row: tid=%d path=%s read=%d write=%d", tid, path, readBytes, writeBytes)
	}
}

func TestSinkInsertAlertsPersistsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fioscope.db")
	h := core.NewHandler(64, 1000)

	s, err := Open(dbPath, h, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Stop()

	err = s.InsertAlerts(time.Now(), []AlertRecord{
		{RuleID: "large-write-burst", RuleName: "Large single-thread write burst", Severity: "high", TID: 7, Path: "/tmp/x", Read: 0, Write: 1 << 20},
	})
	if err != nil {
		t.Fatalf("InsertAlerts: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM io_alerts WHERE rule_id = ?`, "large-write-burst").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 alert row, got %d", count)
	}
}

func TestSinkInsertAlertsNoopOnEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fioscope.db")
	h := core.NewHandler(64, 1000)

	s, err := Open(dbPath, h, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Stop()

	if err := s.InsertAlerts(time.Now(), nil); err != nil {
		t.Fatalf("InsertAlerts: %v", err)
	}
}

func TestSinkFlushNoopWhenNothingDrained(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fioscope.db")
	h := core.NewHandler(64, 1000)

	s, err := Open(dbPath, h, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Stop()

	s.flush(time.Now())

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM io_snapshots`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 rows, got %d", count)
	}
}
