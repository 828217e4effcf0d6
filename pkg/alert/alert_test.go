// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package alert

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/noahyzhang/fioscope/pkg/core"
)

const largeWriteBurstRule = `
title: Large single-thread write burst
id: large-write-burst
status: stable
level: high
logsource:
  category: file_io
detection:
  selection:
    write_bytes|gt: 1048576
  condition: selection
`

func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write rule %s: %v", name, err)
	}
}

func TestDetectorMatchesLargeWriteBurst(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "large-write-burst.yml", largeWriteBurstRule)

	d, err := NewDetector(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	defer d.Close()

	matches := d.Evaluate(context.Background(), core.FileActivity{
		TID: 7, Path: "/var/log/big.log", Write: 2 << 20,
	})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(matches), matches)
	}
	if matches[0].RuleID != "large-write-burst" {
		t.Errorf("unexpected rule id: %s", matches[0].RuleID)
	}
}

func TestDetectorNoMatchUnderThreshold(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "large-write-burst.yml", largeWriteBurstRule)

	d, err := NewDetector(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	defer d.Close()

	matches := d.Evaluate(context.Background(), core.FileActivity{
		TID: 7, Path: "/var/log/small.log", Write: 512,
	})
	if len(matches) != 0 {
		t.Errorf("expected no match, got %+v", matches)
	}
}

func TestDetectorReloadsOnRuleChange(t *testing.T) {
	dir := t.TempDir()

	d, err := NewDetector(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	defer d.Close()

	matches := d.Evaluate(context.Background(), core.FileActivity{TID: 1, Path: "/tmp/x", Write: 2 << 20})
	if len(matches) != 0 {
		t.Errorf("expected no matches before any rule is loaded, got %+v", matches)
	}

	writeRule(t, dir, "large-write-burst.yml", largeWriteBurstRule)
	if err := d.loadRules(); err != nil {
		t.Fatalf("loadRules: %v", err)
	}

	matches = d.Evaluate(context.Background(), core.FileActivity{TID: 1, Path: "/tmp/x", Write: 2 << 20})
	if len(matches) != 1 {
		t.Errorf("expected 1 match after reload, got %+v", matches)
	}
}
