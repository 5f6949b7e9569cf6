// Package s2cell converts geographic points to S2 cell ids and
// projects them to a configured ancestor level. It is a pure,
// stateless component with no concurrency concerns of its own.
package s2cell

import "github.com/golang/geo/s2"

// MinLevel and MaxLevel bound the practically valid S2 levels for a
// range file, per the RangeFile invariant in spec.md §3.
const (
	MinLevel = 4
	MaxLevel = 30
)

// Leaf returns the S2 leaf cell id containing (lat, lon), in degrees.
// Out-of-range inputs are handled however the underlying S2 library
// normalizes them; this function does no clamping of its own.
func Leaf(lat, lon float64) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon))
}

// Parent projects id to its ancestor at level, truncating precision.
// If id is already at or coarser than level, id's own level is used.
func Parent(id s2.CellID, level int) s2.CellID {
	if level >= id.Level() {
		return id
	}
	return id.Parent(level)
}

// LocationToken is an opaque equality key representing a cell id at a
// fixed, configured S2 level. Two points projected at the same level
// that land in the same cell compare equal. Tokens minted at
// different levels are not meaningfully comparable to one another,
// even though Go equality will happily compare them — callers must
// only ever compare tokens drawn from the same *device.Controller.
type LocationToken struct {
	cellID s2.CellID
	level  int
}

// Token projects (lat, lon) to a LocationToken at level.
func Token(lat, lon float64, level int) LocationToken {
	return LocationToken{cellID: Parent(Leaf(lat, lon), level), level: level}
}

// CellID returns the underlying 64-bit S2 cell id.
func (t LocationToken) CellID() s2.CellID { return t.cellID }

// Level returns the S2 level this token was projected to.
func (t LocationToken) Level() int { return t.level }
