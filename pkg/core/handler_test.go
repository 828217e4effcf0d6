package core

import (
	"sync"
	"testing"
)

func TestHandlerOpenWriteCloseDrain(t *testing.T) {
	h := NewHandler(17, 1000)

	h.OnOpen(3, "/var/log/app.log")
	h.OnWrite(100, 3, 42)
	h.OnRead(100, 3, 8)
	h.OnClose(3)

	records := h.Drain()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.TID != 100 || r.Path != "/var/log/app.log" || r.Write != 42 || r.Read != 8 {
		t.Fatalf("unexpected record: %+v", r)
	}

	health := h.Health()
	if health.OpenCalls != 1 || health.CloseCalls != 1 || health.ReadCalls != 1 || health.WriteCalls != 1 {
		t.Fatalf("unexpected health snapshot: %+v", health)
	}
}

func TestHandlerTwoThreadsSameFile(t *testing.T) {
	h := NewHandler(17, 1000)
	h.OnOpen(5, "/data/shared")
	h.OnWrite(1, 5, 10)
	h.OnWrite(2, 5, 20)

	records := h.Drain()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (distinct per thread)", len(records))
	}
	byTID := map[uint64]FileActivity{}
	for _, r := range records {
		byTID[r.TID] = r
	}
	if byTID[1].Write != 10 || byTID[2].Write != 20 {
		t.Fatalf("unexpected per-thread split: %+v", byTID)
	}
}

func TestHandlerUnknownDescriptorDropped(t *testing.T) {
	h := NewHandler(17, 1000)
	h.OnRead(1, 99, 123)

	if got := h.Health().UnknownDescriptorDrops; got != 1 {
		t.Fatalf("UnknownDescriptorDrops = %d, want 1", got)
	}
	if records := h.Drain(); len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestHandlerOpenCloseParamErrorCounted(t *testing.T) {
	h := NewHandler(17, 1000)
	h.OnOpen(-1, "/x")
	h.OnOpen(3, "")

	if got := h.Health().OpenCloseParamErrors; got != 2 {
		t.Fatalf("OpenCloseParamErrors = %d, want 2", got)
	}
}

func TestHandlerDrainSortedDescendingByTotalBytes(t *testing.T) {
	h := NewHandler(17, 1000)
	h.OnOpen(1, "/small")
	h.OnOpen(2, "/big")
	h.OnWrite(1, 1, 5)
	h.OnWrite(2, 2, 500)

	records := h.Drain()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Path != "/big" || records[1].Path != "/small" {
		t.Fatalf("records not sorted descending: %+v", records)
	}
}

func TestHandlerMarkDestructingSilencesAllOperations(t *testing.T) {
	h := NewHandler(17, 1000)
	h.OnOpen(1, "/x")
	h.MarkDestructing()

	h.OnWrite(1, 1, 100)
	h.OnClose(1)
	if records := h.Drain(); records != nil {
		t.Fatalf("expected nil after MarkDestructing, got %v", records)
	}

	before := h.Health()
	h.OnOpen(2, "/y")
	after := h.Health()
	if before != after {
		t.Fatalf("health counters changed after MarkDestructing: before=%+v after=%+v", before, after)
	}
}

func TestHandlerDrainDuringConcurrentWritesStress(t *testing.T) {
	h := NewHandler(1031, 1_000_000)
	h.OnOpen(1, "/hot")

	const writers = 8
	const perWriter = 2000
	var wg sync.WaitGroup
	done := make(chan struct{})

	var totalDrained uint64
	var drainWG sync.WaitGroup
	drainWG.Add(1)
	go func() {
		defer drainWG.Done()
		for {
			for _, r := range h.Drain() {
				totalDrained += r.Write
			}
			select {
			case <-done:
				for _, r := range h.Drain() {
					totalDrained += r.Write
				}
				return
			default:
			}
		}
	}()

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(tid uint64) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				h.OnWrite(tid, 1, 1)
			}
		}(uint64(i))
	}
	wg.Wait()
	close(done)
	drainWG.Wait()

	want := uint64(writers * perWriter)
	if totalDrained != want {
		t.Fatalf("totalDrained = %d, want %d (no byte may be lost or duplicated)", totalDrained, want)
	}
}

func TestHandlerForkLockOrderingDoesNotDeadlock(t *testing.T) {
	h := NewHandler(17, 1000)
	h.OnOpen(1, "/x")
	h.OnWrite(1, 1, 10)

	h.Prefork()
	h.PostforkParent()

	// Handler must remain usable after the parent-side resume.
	h.OnWrite(1, 1, 5)
	records := h.Drain()
	if len(records) != 1 || records[0].Write != 15 {
		t.Fatalf("unexpected state after fork cycle: %+v", records)
	}
}
