// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package metrics

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCollectorEmitInvokesAllCallbacks(t *testing.T) {
	c := NewCollector(time.Second, zap.NewNop())

	var got []*Metric
	c.OnMetric(func(m *Metric) { got = append(got, m) })
	c.OnMetric(func(m *Metric) { got = append(got, m) })

	c.emit(&Metric{Name: "process.runtime.go.goroutines", Value: 4, Timestamp: time.Now()})

	if len(got) != 2 {
		t.Fatalf("expected 2 callback invocations, got %d", len(got))
	}
	if got[0].Name != "process.runtime.go.goroutines" {
		t.Errorf("unexpected metric name: %s", got[0].Name)
	}
}

func TestCollectorDefaultsIntervalWhenZero(t *testing.T) {
	c := NewCollector(0, zap.NewNop())
	if c.interval != 15*time.Second {
		t.Errorf("expected default 15s interval, got %v", c.interval)
	}
}

func TestMergeMapsCombinesWithoutMutatingInputs(t *testing.T) {
	a := map[string]string{"device": "sda"}
	b := map[string]string{"direction": "read"}

	merged := mergeMaps(a, b)

	if merged["device"] != "sda" || merged["direction"] != "read" {
		t.Errorf("unexpected merged map: %+v", merged)
	}
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("mergeMaps mutated an input map: a=%+v b=%+v", a, b)
	}
}

func TestCollectorRuntimeMetricsAreEmitted(t *testing.T) {
	c := NewCollector(time.Second, zap.NewNop())

	names := map[string]bool{}
	c.OnMetric(func(m *Metric) { names[m.Name] = true })

	c.collectRuntime(time.Now())

	for _, want := range []string{
		"process.runtime.go.mem.heap_alloc",
		"process.runtime.go.mem.heap_sys",
		"process.runtime.go.goroutines",
		"process.runtime.go.gc.count",
	} {
		if !names[want] {
			t.Errorf("expected runtime metric %q to be emitted", want)
		}
	}
}
