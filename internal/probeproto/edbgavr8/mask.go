package edbgavr8

import "github.com/boljen/go-bitmap"

// BuildInclusionMask builds the one-bit-per-byte mask consumed by the
// masked ReadMemory (0x22) command: for a read of length n bytes starting
// at addr, bit i is set (1) unless addr+i is present in excluded.
func BuildInclusionMask(addr uint32, n int, excluded map[uint32]bool) []byte {
	bm := bitmap.New(n)
	for i := 0; i < n; i++ {
		if !excluded[addr+uint32(i)] {
			bm.Set(i, true)
		}
	}
	// bitmap.New allocates n/8+1 bytes; trim to exactly one bit per byte.
	return bm.Data(false)[:(n+7)/8]
}
