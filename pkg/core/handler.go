// Package core implements the lock-efficient, fork-safe aggregation engine
// that sits underneath every intercept provider: a descriptor table mapping
// open file descriptors to paths, a double-buffered sharded map accumulating
// per-(thread, path) byte counters, and the health counters and teardown
// guard that make both of those safe to drive from arbitrary hook call
// sites without ever blocking or returning an error.
package core

import "sort"

// Handler is the process-wide aggregation façade. It owns the descriptor
// table (C4), the double-buffered counter pool (C3), the health counters,
// and the destructing flag (C7). OnOpen/OnClose/OnRead/OnWrite, Health and
// MarkDestructing are safe to call from any number of concurrent goroutines;
// Drain supports a single caller at a time (see DoubleBuffer.ReadAndSwitch).
// No method blocks on I/O.
//
// The reference this was translated from obtains a calling thread's id via
// a same-thread gettid() syscall made from inside the hooked libc call
// itself. Here the intercept layer (socket listener, eBPF ring buffer
// consumer) already captures that id at the point of interception and hands
// it to Handler explicitly, so OnRead/OnWrite take tid as a parameter
// instead of deriving it (OnOpen/OnClose need no tid) — the hook layer and the aggregation
// core run as decoupled components, possibly in different processes.
type Handler struct {
	descriptors *DescriptorTable
	pool        *DoubleBuffer[AggKey, RWBytes]
	health      HealthCounters
	destructing destructFlag
}

// NewHandler creates a Handler with bucketCount shards per map side and a
// drop ceiling of maxPoolEntries entries per active side.
func NewHandler(bucketCount, maxPoolEntries int) *Handler {
	h := &Handler{
		descriptors: NewDescriptorTable(bucketCount),
		pool:        NewDoubleBuffer[AggKey, RWBytes](bucketCount, maxPoolEntries, HashAggKey, mergeRWBytes),
	}
	registerForFork(h)
	return h
}

func mergeRWBytes(existing, delta RWBytes) RWBytes { return existing.Add(delta) }

// OnOpen records that fd now refers to path. Called on a successful open,
// openat, or creat. fd must be non-negative and path non-empty; violations
// are counted as open/close parameter errors and otherwise ignored.
func (h *Handler) OnOpen(fd int, path string) {
	if h.destructing.isSet() {
		return
	}
	h.health.OpenCalls.Add(1)
	if fd < 0 || path == "" {
		h.health.OpenCloseParamErrors.Add(1)
		return
	}
	h.descriptors.Insert(fd, path)
}

// OnClose forgets fd. Called on a successful close. A close of an fd this
// handler never saw opened is not an error here (the descriptor may have
// been opened before this process attached); it is simply a no-op.
func (h *Handler) OnClose(fd int) {
	if h.destructing.isSet() {
		return
	}
	h.health.CloseCalls.Add(1)
	if fd < 0 {
		h.health.OpenCloseParamErrors.Add(1)
		return
	}
	h.descriptors.Erase(fd)
}

// OnRead records n bytes read from fd by the thread identified by tid. If fd
// is not a known open descriptor, the call is dropped and counted as an
// unknown-descriptor drop.
func (h *Handler) OnRead(tid uint64, fd int, n uint64) {
	h.recordRW(tid, fd, n, true)
}

// OnWrite records n bytes written to fd by the thread identified by tid.
func (h *Handler) OnWrite(tid uint64, fd int, n uint64) {
	h.recordRW(tid, fd, n, false)
}

func (h *Handler) recordRW(tid uint64, fd int, n uint64, isRead bool) {
	if h.destructing.isSet() {
		return
	}
	if isRead {
		h.health.ReadCalls.Add(1)
	} else {
		h.health.WriteCalls.Add(1)
	}
	if fd < 0 {
		h.health.ReadWriteParamErrors.Add(1)
		return
	}
	path, ok := h.descriptors.Lookup(fd)
	if !ok {
		h.health.UnknownDescriptorDrops.Add(1)
		return
	}

	delta := RWBytes{}
	if isRead {
		delta.Read = n
	} else {
		delta.Write = n
	}
	key := AggKey{TID: tid, Path: path}
	if !h.pool.Write(key, delta) {
		h.health.OverflowDrops.Add(1)
	}
}

// FileActivity is one drained (thread, path) record: the thread and path it
// was keyed on, plus the bytes read and written since the previous drain.
type FileActivity struct {
	TID   uint64
	Path  string
	Read  uint64
	Write uint64
}

// Drain performs a read-and-switch against the counter pool and returns the
// quiescent side's contents as a slice sorted by total bytes (read+write)
// descending, mirroring the reference implementation's consume_and_parse.
func (h *Handler) Drain() []FileActivity {
	if h.destructing.isSet() {
		return nil
	}
	drained := h.pool.ReadAndSwitch()

	var records []FileActivity
	drained.Iterate(func(k AggKey, v RWBytes) bool {
		records = append(records, FileActivity{TID: k.TID, Path: k.Path, Read: v.Read, Write: v.Write})
		return true
	})

	sort.Slice(records, func(i, j int) bool {
		return records[i].Read+records[i].Write > records[j].Read+records[j].Write
	})
	return records
}

// Health returns a snapshot of the counters tracking call volume and drops.
func (h *Handler) Health() HealthSnapshot {
	return h.health.Snapshot()
}

// MarkDestructing sets the teardown flag (C7). Every public method becomes
// a silent no-op from this point on; it is never unset. Intended to be
// called exactly once, from an atexit-style hook, before the process or
// host library begins tearing down the data structures this handler owns.
func (h *Handler) MarkDestructing() {
	h.destructing.set()
}

// Prefork acquires every lock this handler owns, in a fixed order: the
// counter pool's switch mutex and both its maps' bucket locks, then the
// descriptor table's bucket locks. Call immediately before fork().
func (h *Handler) Prefork() {
	h.pool.lockForFork()
	h.descriptors.lockForFork()
}

// PostforkParent releases the locks Prefork acquired, in reverse order. Call
// in the parent immediately after fork() returns.
func (h *Handler) PostforkParent() {
	h.descriptors.unlockForFork()
	h.pool.unlockForFork()
}

// PostforkChild releases the locks Prefork acquired. In the child, the
// Go runtime itself is not fork-safe beyond this single thread, so the
// child's handler is expected to be torn down shortly after this call
// (see SPEC_FULL.md's fork-coordination notes); releasing rather than
// leaving the locks held at least avoids poisoning any copy-on-write
// state a caller might still briefly touch.
func (h *Handler) PostforkChild() {
	h.descriptors.unlockForFork()
	h.pool.unlockForFork()
}
