package core

// DefaultBucketCount is the number of shards a ShardedMap uses when none is
// given explicitly. 1031 is prime, which spreads hashed keys more evenly
// across buckets than a round number would.
const DefaultBucketCount = 1031

type node[K comparable, V any] struct {
	key   K
	value V
	next  *node[K, V]
}

type bucket[K comparable, V any] struct {
	lock RWSpinLock
	head *node[K, V]
}

// ShardedMap is a fixed-size array of independently-locked buckets, each a
// singly-linked list. Writers to different buckets never contend; readers
// never block other readers in the same bucket. Keys are immutable after
// insertion; the only mutable link is a node's next pointer.
//
// Iterate is a single-threaded snapshot walk and is not safe against
// concurrent mutation — callers must establish quiescence themselves
// (DoubleBuffer's role swap is what makes this safe in practice).
type ShardedMap[K comparable, V any] struct {
	buckets []bucket[K, V]
	hash    func(K) uint64
}

// NewShardedMap creates a map with the given number of buckets and hash
// function. bucketCount <= 0 falls back to DefaultBucketCount.
func NewShardedMap[K comparable, V any](bucketCount int, hash func(K) uint64) *ShardedMap[K, V] {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	return &ShardedMap[K, V]{
		buckets: make([]bucket[K, V], bucketCount),
		hash:    hash,
	}
}

func (m *ShardedMap[K, V]) bucketFor(key K) *bucket[K, V] {
	idx := m.hash(key) % uint64(len(m.buckets))
	return &m.buckets[idx]
}

// Find returns the value stored for key, and whether it was present.
func (m *ShardedMap[K, V]) Find(key K) (V, bool) {
	b := m.bucketFor(key)
	b.lock.RLock()
	defer b.lock.RUnlock()
	for n := b.head; n != nil; n = n.next {
		if n.key == key {
			return n.value, true
		}
	}
	var zero V
	return zero, false
}

// Insert stores value for key, overwriting any existing value.
func (m *ShardedMap[K, V]) Insert(key K, value V) {
	b := m.bucketFor(key)
	b.lock.Lock()
	defer b.lock.Unlock()
	for n := b.head; n != nil; n = n.next {
		if n.key == key {
			n.value = value
			return
		}
	}
	b.head = &node[K, V]{key: key, value: value, next: b.head}
}

// InsertAndAdd merges delta into the existing value for key using merge, or
// inserts delta as the initial value if key is absent. merge receives
// (existing, delta) and returns the new value. Returns the resulting value.
func (m *ShardedMap[K, V]) InsertAndAdd(key K, delta V, merge func(existing, delta V) V) V {
	b := m.bucketFor(key)
	b.lock.Lock()
	defer b.lock.Unlock()
	for n := b.head; n != nil; n = n.next {
		if n.key == key {
			n.value = merge(n.value, delta)
			return n.value
		}
	}
	b.head = &node[K, V]{key: key, value: delta, next: b.head}
	return delta
}

// Erase removes key if present; it is a no-op otherwise.
func (m *ShardedMap[K, V]) Erase(key K) {
	b := m.bucketFor(key)
	b.lock.Lock()
	defer b.lock.Unlock()
	var prev *node[K, V]
	for n := b.head; n != nil; n = n.next {
		if n.key == key {
			if prev == nil {
				b.head = n.next
			} else {
				prev.next = n.next
			}
			return
		}
		prev = n
	}
}

// Clear removes every entry, one bucket at a time.
func (m *ShardedMap[K, V]) Clear() {
	for i := range m.buckets {
		b := &m.buckets[i]
		b.lock.Lock()
		b.head = nil
		b.lock.Unlock()
	}
}

// Iterate walks every entry bucket by bucket (not key order) and calls fn
// for each. Insert and InsertAndAdd prepend new entries, so within a bucket
// the most recently inserted entry comes first. It stops early if fn returns false. The caller must
// guarantee no concurrent writer is mutating the map during the walk.
func (m *ShardedMap[K, V]) Iterate(fn func(key K, value V) bool) {
	for i := range m.buckets {
		for n := m.buckets[i].head; n != nil; n = n.next {
			if !fn(n.key, n.value) {
				return
			}
		}
	}
}

// lockAllForFork acquires every bucket's exclusive lock, in bucket order.
func (m *ShardedMap[K, V]) lockAllForFork() {
	for i := range m.buckets {
		m.buckets[i].lock.Lock()
	}
}

// unlockAllForFork releases every bucket's exclusive lock, in reverse order.
func (m *ShardedMap[K, V]) unlockAllForFork() {
	for i := len(m.buckets) - 1; i >= 0; i-- {
		m.buckets[i].lock.Unlock()
	}
}
