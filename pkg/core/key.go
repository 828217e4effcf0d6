package core

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// AggKey is the aggregation key: a (thread id, path) pair. It is kept as a
// struct rather than flattened into a delimited string, so that paths
// containing the separator byte the original design used ('-') can never be
// confused with the thread-id prefix. See DESIGN.md's pkg/core/key.go entry
// for why this repo departs from the reference's string-flattened key.
type AggKey struct {
	TID  uint64
	Path string
}

// HashAggKey combines the hashes of the two components, mirroring the
// reference's h1 ^ (h2 << 1) combiner.
func HashAggKey(k AggKey) uint64 {
	h1 := k.TID
	h2 := fnvHash(k.Path)
	return h1 ^ (h2 << 1)
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// HashFD hashes a plain file descriptor for use as a ShardedMap key.
func HashFD(fd int) uint64 {
	return uint64(fd)
}

// SeparatorByte delimits the tid from the path in the legacy flattened key
// format produced by CombineKey. It is a configuration point (spec.md §6);
// the default matches the reference implementation's '-'.
const SeparatorByte = '-'

// CombineKey renders the legacy flattened "<tid><sep><path>" representation
// of an aggregation key. Not used on the ingest path (AggKey is used
// directly there) — kept for callers that need a flat string form (e.g. a
// sink keying rows by string) and to exercise the round-trip law this
// system was specified against. Ambiguous when path contains sep.
func CombineKey(tid uint64, path string, sep byte) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(tid, 10))
	b.WriteByte(sep)
	b.WriteString(path)
	return b.String()
}

// SplitKey reverses CombineKey. It splits at the first sep, so a path that
// itself contained sep comes back whole. It returns ok=false if sep does not
// appear in key or the text before it is not a decimal tid.
func SplitKey(key string, sep byte) (tid uint64, path string, ok bool) {
	idx := strings.IndexByte(key, sep)
	if idx < 0 {
		return 0, "", false
	}
	tid, err := strconv.ParseUint(key[:idx], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return tid, key[idx+1:], true
}
