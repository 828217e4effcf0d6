package core

import "sync/atomic"

// HealthCounters are independent atomic counters tracking call volume and
// every way a call can be dropped. Nothing in the core ever raises an
// error to its caller (spec.md §7) — these counters are the only place
// failure is observable.
type HealthCounters struct {
	OpenCalls              atomic.Uint64
	CloseCalls             atomic.Uint64
	ReadCalls              atomic.Uint64
	WriteCalls             atomic.Uint64
	OpenCloseParamErrors   atomic.Uint64
	ReadWriteParamErrors   atomic.Uint64
	OverflowDrops          atomic.Uint64
	UnknownDescriptorDrops atomic.Uint64
}

// HealthSnapshot is a point-in-time copy of HealthCounters, safe to pass
// around and serialize.
type HealthSnapshot struct {
	OpenCalls              uint64
	CloseCalls             uint64
	ReadCalls               uint64
	WriteCalls              uint64
	OpenCloseParamErrors    uint64
	ReadWriteParamErrors    uint64
	OverflowDrops           uint64
	UnknownDescriptorDrops  uint64
}

// Snapshot reads every counter. Individual loads are not mutually
// consistent with each other (no global lock), which matches the
// counters' role as independent health signals, not a transactional view.
func (c *HealthCounters) Snapshot() HealthSnapshot {
	return HealthSnapshot{
		OpenCalls:              c.OpenCalls.Load(),
		CloseCalls:             c.CloseCalls.Load(),
		ReadCalls:              c.ReadCalls.Load(),
		WriteCalls:             c.WriteCalls.Load(),
		OpenCloseParamErrors:   c.OpenCloseParamErrors.Load(),
		ReadWriteParamErrors:   c.ReadWriteParamErrors.Load(),
		OverflowDrops:          c.OverflowDrops.Load(),
		UnknownDescriptorDrops: c.UnknownDescriptorDrops.Load(),
	}
}
