package core

import "sync"

// DoubleBuffer holds two ShardedMap instances and a selector saying which
// one is currently the producer target ("active"). A short-held switch
// mutex guards the selector flip; it never guards the long iteration a
// drain performs afterward.
//
// Write path: acquire switchMu, insert-and-add into the active map, bump
// the size counter, release. Drain path ("read-and-switch"): clear the
// currently-inactive map first (safe — producers never touch it), then
// acquire switchMu just long enough to capture the active map, flip the
// selector, and reset the size counter. The caller iterates the returned
// map without any lock: no producer will touch it again until the next
// flip.
type DoubleBuffer[K comparable, V any] struct {
	switchMu sync.Mutex

	a, b *ShardedMap[K, V]
	// active selects which side producers write to: true picks a, false
	// picks b. Mutated only while switchMu is held, by the single drainer.
	active bool
	size   int

	maxEntries int
	merge      func(existing, delta V) V
}

// NewDoubleBuffer creates a double buffer with two maps of bucketCount
// shards each, a drop ceiling of maxEntries, and the given merge function
// for InsertAndAdd.
func NewDoubleBuffer[K comparable, V any](bucketCount, maxEntries int, hash func(K) uint64, merge func(existing, delta V) V) *DoubleBuffer[K, V] {
	return &DoubleBuffer[K, V]{
		a:          NewShardedMap[K, V](bucketCount, hash),
		b:          NewShardedMap[K, V](bucketCount, hash),
		active:     true,
		maxEntries: maxEntries,
		merge:      merge,
	}
}

// Write routes (key, delta) into the currently-active map. It returns false
// without writing if the active map is already at the configured ceiling —
// the caller is responsible for counting this as an overflow drop.
func (d *DoubleBuffer[K, V]) Write(key K, delta V) bool {
	d.switchMu.Lock()
	defer d.switchMu.Unlock()

	if d.size >= d.maxEntries {
		return false
	}
	active := d.activeMapLocked()
	active.InsertAndAdd(key, delta, d.merge)
	d.size++
	return true
}

// ReadAndSwitch clears the inactive side, then atomically flips the
// selector and returns a reference to what was, until this call, the
// active side. The caller may iterate the returned map without locking:
// no producer touches it again until the next ReadAndSwitch. Concurrent
// calls to ReadAndSwitch are not supported — the spec assumes a single
// consumer.
func (d *DoubleBuffer[K, V]) ReadAndSwitch() *ShardedMap[K, V] {
	// Safe without the lock: producers only ever touch the active side,
	// and only this (single) drainer goroutine reads/mutates `active`.
	if d.active {
		d.b.Clear()
	} else {
		d.a.Clear()
	}

	d.switchMu.Lock()
	defer d.switchMu.Unlock()

	drained := d.activeMapLocked()
	d.active = !d.active
	d.size = 0
	return drained
}

// activeMapLocked returns the currently-active map. Callers must hold
// switchMu or otherwise be the sole accessor of `active`.
func (d *DoubleBuffer[K, V]) activeMapLocked() *ShardedMap[K, V] {
	if d.active {
		return d.a
	}
	return d.b
}

// Size returns the number of entries written to the active side since the
// last switch.
func (d *DoubleBuffer[K, V]) Size() int {
	d.switchMu.Lock()
	defer d.switchMu.Unlock()
	return d.size
}

// lockForFork acquires the switch mutex and every bucket lock of both
// maps, in a fixed order: switch mutex, then a's buckets, then b's.
func (d *DoubleBuffer[K, V]) lockForFork() {
	d.switchMu.Lock()
	d.a.lockAllForFork()
	d.b.lockAllForFork()
}

// unlockForFork releases in the reverse order of lockForFork.
func (d *DoubleBuffer[K, V]) unlockForFork() {
	d.b.unlockAllForFork()
	d.a.unlockAllForFork()
	d.switchMu.Unlock()
}
