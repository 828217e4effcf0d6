package core

import (
	"sync"
	"testing"
)

func intHash(k int) uint64 { return uint64(k) }

func TestShardedMapFindInsertErase(t *testing.T) {
	m := NewShardedMap[int, string](17, intHash)

	if _, ok := m.Find(1); ok {
		t.Fatal("expected miss on empty map")
	}

	m.Insert(1, "/a")
	v, ok := m.Find(1)
	if !ok || v != "/a" {
		t.Fatalf("Find(1) = %q, %v; want /a, true", v, ok)
	}

	m.Insert(1, "/b")
	v, ok = m.Find(1)
	if !ok || v != "/b" {
		t.Fatalf("overwrite failed: Find(1) = %q, %v; want /b, true", v, ok)
	}

	m.Erase(1)
	if _, ok := m.Find(1); ok {
		t.Fatal("expected miss after erase")
	}

	// Erasing an unknown key is a no-op, not an error.
	m.Erase(999)
}

func TestShardedMapAtMostOneEntryPerKey(t *testing.T) {
	m := NewShardedMap[int, int](1, intHash) // single bucket forces chaining
	for i := 0; i < 50; i++ {
		m.Insert(i%10, i)
	}
	count := 0
	m.Iterate(func(k, v int) bool {
		count++
		return true
	})
	if count != 10 {
		t.Fatalf("expected 10 distinct keys in a single bucket, got %d", count)
	}
}

func TestShardedMapInsertAndAdd(t *testing.T) {
	m := NewShardedMap[int, RWBytes](1031, intHash)
	merge := func(existing, delta RWBytes) RWBytes { return existing.Add(delta) }

	m.InsertAndAdd(1, RWBytes{Read: 5}, merge)
	m.InsertAndAdd(1, RWBytes{Read: 7}, merge)
	m.InsertAndAdd(1, RWBytes{Write: 3}, merge)

	v, ok := m.Find(1)
	if !ok {
		t.Fatal("expected key present")
	}
	if v.Read != 12 || v.Write != 3 {
		t.Fatalf("got %+v, want Read=12 Write=3", v)
	}
}

func TestShardedMapClear(t *testing.T) {
	m := NewShardedMap[int, string](31, intHash)
	for i := 0; i < 100; i++ {
		m.Insert(i, "x")
	}
	m.Clear()
	count := 0
	m.Iterate(func(k int, v string) bool { count++; return true })
	if count != 0 {
		t.Fatalf("expected empty map after Clear, found %d entries", count)
	}
}

func TestShardedMapConcurrentDifferentBuckets(t *testing.T) {
	m := NewShardedMap[int, int](1031, intHash)
	var wg sync.WaitGroup
	const n = 2000
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Insert(i, i*2)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, ok := m.Find(i)
		if !ok || v != i*2 {
			t.Fatalf("Find(%d) = %d, %v; want %d, true", i, v, ok, i*2)
		}
	}
}

func TestShardedMapIterateStopsEarly(t *testing.T) {
	m := NewShardedMap[int, int](7, intHash)
	for i := 0; i < 20; i++ {
		m.Insert(i, i)
	}
	seen := 0
	m.Iterate(func(k, v int) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Fatalf("expected early stop after 3 entries, saw %d", seen)
	}
}
