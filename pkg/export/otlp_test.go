// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"testing"
	"time"

	"github.com/noahyzhang/fioscope/pkg/config"
)

func TestDefaultOTLPConfigValidates(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}
}

func TestOTLPConfigRequiresEndpointWhenEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OTLP.Enabled = true
	cfg.OTLP.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for enabled OTLP with empty endpoint")
	}
}

func TestMetricLabels(t *testing.T) {
	m := &Metric{
		Name:      "fioscope_read_bytes_total",
		Value:     4096,
		Timestamp: time.Now(),
		Labels:    map[string]string{"tid": "123", "path": "/var/log/app.log"},
	}
	if m.Labels["tid"] != "123" {
		t.Errorf("expected tid label 123, got %q", m.Labels["tid"])
	}
	if m.Labels["path"] != "/var/log/app.log" {
		t.Errorf("expected path label, got %q", m.Labels["path"])
	}
}

func TestResourceIncludesServiceName(t *testing.T) {
	e := &OTLPExporter{serviceName: "fioscoped"}

	res := e.resource()
	found := false
	for _, attr := range res.Attributes {
		if attr.Key == "service.name" {
			found = true
			if attr.Value.GetStringValue() != "fioscoped" {
				t.Errorf("expected service.name=fioscoped, got %s", attr.Value.GetStringValue())
			}
		}
	}
	if !found {
		t.Error("service.name attribute missing from resource")
	}
}

func TestConvertMetricIsMonotonicSum(t *testing.T) {
	e := &OTLPExporter{serviceName: "fioscoped"}
	m := &Metric{
		Name:      "fioscope_write_bytes_total",
		Value:     1024,
		Timestamp: time.Now(),
		Labels:    map[string]string{"tid": "7", "path": "/tmp/x"},
	}

	pm := e.convertMetric(m)
	if pm.Name != "fioscope_write_bytes_total" {
		t.Errorf("expected metric name preserved, got %q", pm.Name)
	}
	sum := pm.GetSum()
	if sum == nil {
		t.Fatal("expected Sum data")
	}
	if !sum.IsMonotonic {
		t.Error("expected monotonic sum for a byte counter")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].GetAsDouble() != 1024 {
		t.Errorf("unexpected data points: %+v", sum.DataPoints)
	}
}
