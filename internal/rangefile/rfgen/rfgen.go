// Package rfgen builds range-file fixtures for tests. It is not the
// offline range-file writer described in spec.md §1 as an external
// collaborator — it exists solely so this module's own tests don't
// need to check in binary fixtures.
package rfgen

import (
	"encoding/binary"

	"github.com/golang/geo/s2"
)

// Range is a half-open [Start, End) S2 cell id range.
type Range struct {
	Start, End s2.CellID
}

// Build encodes a range file per spec.md §6 with the given level,
// allow-list flag, and sorted, disjoint ranges.
func Build(level int, isAllowList bool, ranges []Range) []byte {
	mode := byte(0)
	if isAllowList {
		mode = 1
	}

	buf := make([]byte, 12, 12+len(ranges)*16)
	copy(buf[0:4], "SGR1")
	binary.LittleEndian.PutUint16(buf[4:6], 1)
	buf[6] = byte(level)
	buf[7] = mode
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(ranges)))

	for _, r := range ranges {
		var entry [16]byte
		binary.LittleEndian.PutUint64(entry[0:8], uint64(r.Start))
		binary.LittleEndian.PutUint64(entry[8:16], uint64(r.End))
		buf = append(buf, entry[:]...)
	}
	return buf
}
