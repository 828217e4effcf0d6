package core

// DescriptorTable maps live file descriptors to the path they were opened
// with. It is a thin ShardedMap instance: at most one entry per descriptor,
// inserted on a successful open and erased on a successful close. A close
// of an unknown descriptor is not an error here, and Handler.OnClose does
// not count it as an anomaly either: erasing an untracked fd is a no-op.
type DescriptorTable struct {
	m *ShardedMap[int, string]
}

// NewDescriptorTable creates a descriptor table with bucketCount shards.
func NewDescriptorTable(bucketCount int) *DescriptorTable {
	return &DescriptorTable{m: NewShardedMap[int, string](bucketCount, HashFD)}
}

// Insert records fd as open with the given path, overwriting any stale
// entry for the same fd (descriptor reuse across an unobserved close).
func (t *DescriptorTable) Insert(fd int, path string) {
	t.m.Insert(fd, path)
}

// Lookup returns the path open on fd, if any.
func (t *DescriptorTable) Lookup(fd int) (string, bool) {
	return t.m.Find(fd)
}

// Erase removes fd's entry. No-op if fd was not tracked.
func (t *DescriptorTable) Erase(fd int) {
	t.m.Erase(fd)
}

func (t *DescriptorTable) lockForFork()   { t.m.lockAllForFork() }
func (t *DescriptorTable) unlockForFork() { t.m.unlockAllForFork() }
