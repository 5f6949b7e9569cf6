package device

import (
	"github.com/golang/geo/s2"

	"github.com/malbeclabs/satgate/internal/rangefile"
)

// rangefileAdapter satisfies rangeFinder over a real *rangefile.Reader.
type rangefileAdapter struct {
	*rangefile.Reader
}

func (a rangefileAdapter) Find(id s2.CellID) (rangeT, bool) {
	rng, ok := a.Reader.Find(id)
	if !ok {
		return rangeT{}, false
	}
	return rangeT{Start: rng.Start, End: rng.End}, true
}

func defaultOpener(path string) (rangeFinder, error) {
	r, err := rangefile.Open(path)
	if err != nil {
		return nil, err
	}
	return rangefileAdapter{r}, nil
}
