// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"runtime"
	"time"

	"github.com/noahyzhang/fioscope/pkg/core"
)

// Stats wraps the core aggregation handler's health counters with process
// self-monitoring (uptime, goroutine count, memory) for the health server.
type Stats struct {
	startTime time.Time
	handler   *core.Handler
}

// NewStats creates a new Stats instance reporting on handler's counters.
func NewStats(handler *core.Handler) *Stats {
	return &Stats{
		startTime: time.Now(),
		handler:   handler,
	}
}

// Uptime returns agent uptime.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot returns a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds          float64
	Goroutines             int
	MemoryRSSBytes         uint64
	OpenCalls              uint64
	CloseCalls             uint64
	ReadCalls              uint64
	WriteCalls             uint64
	OpenCloseParamErrors   uint64
	ReadWriteParamErrors   uint64
	OverflowDrops          uint64
	UnknownDescriptorDrops uint64
}

// Snapshot returns current stats.
func (s *Stats) Snapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	h := s.handler.Health()
	return Snapshot{
		UptimeSeconds:          s.Uptime().Seconds(),
		Goroutines:             runtime.NumGoroutine(),
		MemoryRSSBytes:         memStats.Sys,
		OpenCalls:              h.OpenCalls,
		CloseCalls:             h.CloseCalls,
		ReadCalls:              h.ReadCalls,
		WriteCalls:             h.WriteCalls,
		OpenCloseParamErrors:   h.OpenCloseParamErrors,
		ReadWriteParamErrors:   h.ReadWriteParamErrors,
		OverflowDrops:          h.OverflowDrops,
		UnknownDescriptorDrops: h.UnknownDescriptorDrops,
	}
}

// PrometheusMetrics returns stats in Prometheus text exposition format.
func (s *Stats) PrometheusMetrics() string {
	snap := s.Snapshot()
	return prometheusFormat(snap)
}

func prometheusFormat(snap Snapshot) string {
	var b []byte
	b = appendMetric(b, "fioscope_uptime_seconds", "gauge", "Agent uptime in seconds", snap.UptimeSeconds)
	b = appendMetric(b, "fioscope_goroutines", "gauge", "Number of goroutines", float64(snap.Goroutines))
	b = appendMetric(b, "fioscope_memory_rss_bytes", "gauge", "Memory usage in bytes", float64(snap.MemoryRSSBytes))
	b = appendMetric(b, "fioscope_open_calls_total", "counter", "Total open calls observed", float64(snap.OpenCalls))
	b = appendMetric(b, "fioscope_close_calls_total", "counter", "Total close calls observed", float64(snap.CloseCalls))
	b = appendMetric(b, "fioscope_read_calls_total", "counter", "Total read calls observed", float64(snap.ReadCalls))
	b = appendMetric(b, "fioscope_write_calls_total", "counter", "Total write calls observed", float64(snap.WriteCalls))
	b = appendMetric(b, "fioscope_open_close_param_errors_total", "counter", "Open/close calls dropped for bad parameters", float64(snap.OpenCloseParamErrors))
	b = appendMetric(b, "fioscope_read_write_param_errors_total", "counter", "Read/write calls dropped for bad parameters", float64(snap.ReadWriteParamErrors))
	b = appendMetric(b, "fioscope_overflow_drops_total", "counter", "Read/write calls dropped because the counter pool was full", float64(snap.OverflowDrops))
	b = appendMetric(b, "fioscope_unknown_descriptor_drops_total", "counter", "Read/write calls dropped because the fd was not open", float64(snap.UnknownDescriptorDrops))
	return string(b)
}

func appendMetric(b []byte, name, typ, help string, value float64) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, '\n')
	b = append(b, "# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, typ...)
	b = append(b, '\n')
	b = append(b, name...)
	b = append(b, ' ')
	b = appendFloat(b, value)
	b = append(b, '\n')
	return b
}

func appendFloat(b []byte, f float64) []byte {
	// Use simple formatting; avoid importing strconv for this
	if f == float64(int64(f)) {
		return append(b, []byte(intToStr(int64(f)))...)
	}
	// Use fmt-free float formatting for common cases
	return append(b, []byte(floatToStr(f))...)
}

func intToStr(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte(n%10) + '0'
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func floatToStr(f float64) string {
	// Simple 6 decimal place formatting
	neg := f < 0
	if neg {
		f = -f
	}
	whole := int64(f)
	frac := int64((f - float64(whole)) * 1000000)
	if frac < 0 {
		frac = -frac
	}

	s := intToStr(whole) + "."
	fracStr := intToStr(frac)
	// Pad to 6 digits
	for len(fracStr) < 6 {
		fracStr = "0" + fracStr
	}
	s += fracStr

	// Trim trailing zeros after decimal
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}

	if neg {
		s = "-" + s
	}
	return s
}
