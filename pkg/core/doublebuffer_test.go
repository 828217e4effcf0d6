package core

import (
	"sync"
	"testing"
)

func mergeRW(existing, delta RWBytes) RWBytes { return existing.Add(delta) }

func TestDoubleBufferWriteThenDrain(t *testing.T) {
	db := NewDoubleBuffer[AggKey, RWBytes](17, 100, HashAggKey, mergeRW)

	key := AggKey{TID: 1, Path: "/a"}
	if !db.Write(key, RWBytes{Write: 13}) {
		t.Fatal("expected write to be accepted")
	}

	drained := db.ReadAndSwitch()
	v, ok := drained.Find(key)
	if !ok {
		t.Fatal("expected key in drained map")
	}
	if v.Write != 13 || v.Read != 0 {
		t.Fatalf("got %+v, want Write=13 Read=0", v)
	}
}

func TestDoubleBufferPreviouslyActiveEmptiedAfterDrain(t *testing.T) {
	db := NewDoubleBuffer[AggKey, RWBytes](17, 100, HashAggKey, mergeRW)
	key := AggKey{TID: 1, Path: "/a"}
	db.Write(key, RWBytes{Read: 1})
	db.ReadAndSwitch()

	// Producers now target the other map; a second drain without any new
	// writes must come back empty.
	drained := db.ReadAndSwitch()
	count := 0
	drained.Iterate(func(k AggKey, v RWBytes) bool { count++; return true })
	if count != 0 {
		t.Fatalf("expected empty drain, got %d entries", count)
	}
}

func TestDoubleBufferOverflowDrop(t *testing.T) {
	db := NewDoubleBuffer[AggKey, RWBytes](17, 2, HashAggKey, mergeRW)

	if !db.Write(AggKey{TID: 1, Path: "/a"}, RWBytes{Read: 1}) {
		t.Fatal("write 1 should be accepted")
	}
	if !db.Write(AggKey{TID: 2, Path: "/a"}, RWBytes{Read: 1}) {
		t.Fatal("write 2 should be accepted")
	}
	if db.Write(AggKey{TID: 3, Path: "/a"}, RWBytes{Read: 1}) {
		t.Fatal("write 3 should be dropped: at ceiling")
	}
}

func TestDoubleBufferConcurrentWritesSumCorrectly(t *testing.T) {
	db := NewDoubleBuffer[AggKey, RWBytes](1031, 100000, HashAggKey, mergeRW)
	key := AggKey{TID: 1, Path: "/shared"}

	const goroutines = 8
	const perGoroutine = 1000
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				db.Write(key, RWBytes{Write: 1})
			}
		}()
	}
	wg.Wait()

	drained := db.ReadAndSwitch()
	v, ok := drained.Find(key)
	if !ok {
		t.Fatal("expected key present")
	}
	want := uint64(goroutines * perGoroutine)
	if v.Write != want {
		t.Fatalf("Write = %d, want %d", v.Write, want)
	}
}
