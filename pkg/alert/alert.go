// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package alert evaluates Sigma-style rules against drained file-activity
// records to flag suspicious I/O patterns — a large write burst from a
// single thread, a read of a path matching a secrets glob, and so on.
package alert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/noahyzhang/fioscope/pkg/core"
)

// Match is one rule evaluating true against one drained record.
type Match struct {
	RuleID   string
	RuleName string
	Severity string
	TID      uint64
	Path     string
	Read     uint64
	Write    uint64
}

func fieldConfig() sigma.Config {
	return sigma.Config{
		Title: "fioscope field mappings",
		FieldMappings: map[string]sigma.FieldMapping{
			"path":        {TargetNames: []string{"path"}},
			"tid":         {TargetNames: []string{"tid"}},
			"read_bytes":  {TargetNames: []string{"read_bytes"}},
			"write_bytes": {TargetNames: []string{"write_bytes"}},
		},
	}
}

// Detector loads Sigma rules from a directory, hot-reloads them on change,
// and evaluates drained records against every loaded rule.
type Detector struct {
	rulesDir string
	logger   *zap.Logger

	mu         sync.RWMutex
	evaluators map[string]*evaluator.RuleEvaluator

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDetector loads every *.yml/*.yaml rule in rulesDir and starts watching
// the directory for changes.
func NewDetector(rulesDir string, logger *zap.Logger) (*Detector, error) {
	if err := os.MkdirAll(rulesDir, 0755); err != nil {
		return nil, fmt.Errorf("create rules directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create rule watcher: %w", err)
	}

	d := &Detector{
		rulesDir:   rulesDir,
		logger:     logger,
		evaluators: make(map[string]*evaluator.RuleEvaluator),
		watcher:    watcher,
		stopCh:     make(chan struct{}),
	}

	if err := d.loadRules(); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}

	if err := watcher.Add(rulesDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch rules directory: %w", err)
	}

	d.wg.Add(1)
	go d.watchRuleChanges()

	return d, nil
}

func (d *Detector) watchRuleChanges() {
	defer d.wg.Done()
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yml") && !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := d.loadRules(); err != nil {
				d.logger.Error("rule reload failed", zap.Error(err))
			} else {
				d.logger.Info("rules reloaded", zap.String("file", event.Name))
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("rule watcher error", zap.Error(err))
		case <-d.stopCh:
			return
		}
	}
}

func (d *Detector) loadRules() error {
	entries, err := os.ReadDir(d.rulesDir)
	if err != nil {
		return err
	}

	loaded := make(map[string]*evaluator.RuleEvaluator)
	cfg := fieldConfig()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(d.rulesDir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			d.logger.Warn("failed to read rule file", zap.String("path", path), zap.Error(err))
			continue
		}

		rule, err := sigma.ParseRule(content)
		if err != nil {
			d.logger.Warn("failed to parse rule file", zap.String("path", path), zap.Error(err))
			continue
		}

		ruleEvaluator := evaluator.ForRule(rule, evaluator.WithConfig(cfg))
		loaded[rule.ID] = ruleEvaluator
	}

	d.mu.Lock()
	d.evaluators = loaded
	d.mu.Unlock()

	d.logger.Info("loaded alert rules", zap.Int("count", len(loaded)), zap.String("dir", d.rulesDir))
	return nil
}

// Evaluate checks one drained record against every loaded rule and returns
// every match.
func (d *Detector) Evaluate(ctx context.Context, rec core.FileActivity) []Match {
	event := map[string]interface{}{
		"path":        rec.Path,
		"tid":         float64(rec.TID),
		"read_bytes":  float64(rec.Read),
		"write_bytes": float64(rec.Write),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var matches []Match
	for _, re := range d.evaluators {
		result, err := re.Matches(ctx, event)
		if err != nil {
			d.logger.Error("rule evaluation failed", zap.String("rule_id", re.Rule.ID), zap.Error(err))
			continue
		}
		if !result.Match {
			continue
		}

		severity := re.Rule.Level
		if severity == "" {
			severity = "medium"
		}

		matches = append(matches, Match{
			RuleID:   re.Rule.ID,
			RuleName: re.Rule.Title,
			Severity: severity,
			TID:      rec.TID,
			Path:     rec.Path,
			Read:     rec.Read,
			Write:    rec.Write,
		})
	}
	return matches
}

// EvaluateAll evaluates a batch of drained records, as produced by a single
// core.Handler.Drain() call.
func (d *Detector) EvaluateAll(ctx context.Context, records []core.FileActivity) []Match {
	var all []Match
	for _, rec := range records {
		all = append(all, d.Evaluate(ctx, rec)...)
	}
	return all
}

// Close stops the rule watcher.
func (d *Detector) Close() error {
	close(d.stopCh)
	err := d.watcher.Close()
	d.wg.Wait()
	return err
}
