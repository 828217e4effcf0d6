package core

import "math"

// RWBytes is the aggregation value: a saturating (read_bytes, write_bytes)
// pair.
type RWBytes struct {
	Read  uint64
	Write uint64
}

// Add returns the saturating sum of b and delta.
func (b RWBytes) Add(delta RWBytes) RWBytes {
	return RWBytes{
		Read:  saturatingAddU64(b.Read, delta.Read),
		Write: saturatingAddU64(b.Write, delta.Write),
	}
}

func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}
