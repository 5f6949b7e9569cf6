// Package device implements the on-device satellite access
// controller: the policy seam between the mechanical range-file
// reader (internal/rangefile) and everything that needs a yes/no
// verdict for a location. The file format may change independently
// of the allow-list/deny-list policy pinned here.
package device

import (
	"fmt"

	"github.com/golang/geo/s2"

	"github.com/malbeclabs/satgate/internal/s2cell"
)

// rangeFinder is the seam Controller depends on instead of
// *rangefile.Reader directly, so tests can drive the policy logic
// without building real mmap'd fixtures.
type rangeFinder interface {
	Level() int
	IsAllowList() bool
	Find(id s2.CellID) (rangeT, bool)
	Close() error
}

// rangeT mirrors rangefile.S2Range's shape without importing the
// rangefile package's exported type, so this seam stays minimal; the
// production opener adapts *rangefile.Reader to satisfy it.
type rangeT struct {
	Start, End s2.CellID
}

// Controller wraps a range-file reader and pins the file's
// allow-list/deny-list policy, per spec.md §4.C.
type Controller struct {
	reader rangeFinder
	level  int
}

// Opener opens a range-file-backed rangeFinder at path. Production
// code uses rangefile.Open (adapted below); tests substitute a fake.
type Opener func(path string) (rangeFinder, error)

// New opens the range file at path and caches its level.
func New(path string) (*Controller, error) {
	return newWithOpener(path, defaultOpener)
}

func newWithOpener(path string, open Opener) (*Controller, error) {
	r, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("device: opening range file: %w", err)
	}
	return &Controller{reader: r, level: r.Level()}, nil
}

// Level returns the S2 level the caller must pass to TokenFor.
func (c *Controller) Level() int { return c.level }

// TokenFor mints a LocationToken for (lat, lon) at the controller's
// configured level.
func (c *Controller) TokenFor(lat, lon float64) s2cell.LocationToken {
	return s2cell.Token(lat, lon, c.level)
}

// IsAllowed evaluates the allow-list/deny-list policy for token: found
// in the range set means "allowed" under allow-list mode and "denied"
// under deny-list mode.
func (c *Controller) IsAllowed(token s2cell.LocationToken) bool {
	_, found := c.reader.Find(token.CellID())
	return found == c.reader.IsAllowList()
}

// Close releases the underlying range-file reader.
func (c *Controller) Close() error {
	return c.reader.Close()
}
