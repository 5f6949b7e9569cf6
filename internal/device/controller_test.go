package device

import (
	"testing"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/satgate/internal/s2cell"
)

type fakeReader struct {
	level       int
	isAllowList bool
	ranges      []rangeT
	closed      bool
}

func (f *fakeReader) Level() int       { return f.level }
func (f *fakeReader) IsAllowList() bool { return f.isAllowList }
func (f *fakeReader) Close() error     { f.closed = true; return nil }

func (f *fakeReader) Find(id s2.CellID) (rangeT, bool) {
	for _, r := range f.ranges {
		if id >= r.Start && id < r.End {
			return r, true
		}
	}
	return rangeT{}, false
}

func fakeOpenerFor(r *fakeReader) Opener {
	return func(path string) (rangeFinder, error) { return r, nil }
}

func TestIsAllowed_AllowListMode_FoundMeansAllowed(t *testing.T) {
	t.Parallel()

	cell := s2cell.Parent(s2cell.Leaf(37.4, -122.1), 12)
	fake := &fakeReader{level: 12, isAllowList: true, ranges: []rangeT{{Start: cell, End: cell + 1}}}

	c, err := newWithOpener("ignored", fakeOpenerFor(fake))
	require.NoError(t, err)

	tok := c.TokenFor(37.4, -122.1)
	require.True(t, c.IsAllowed(tok))

	elsewhere := c.TokenFor(51.5, -0.12)
	require.False(t, c.IsAllowed(elsewhere))
}

func TestIsAllowed_DenyListMode_FoundMeansDenied(t *testing.T) {
	t.Parallel()

	cell := s2cell.Parent(s2cell.Leaf(37.4, -122.1), 12)
	fake := &fakeReader{level: 12, isAllowList: false, ranges: []rangeT{{Start: cell, End: cell + 1}}}

	c, err := newWithOpener("ignored", fakeOpenerFor(fake))
	require.NoError(t, err)

	tok := c.TokenFor(37.4, -122.1)
	require.False(t, c.IsAllowed(tok))

	elsewhere := c.TokenFor(51.5, -0.12)
	require.True(t, c.IsAllowed(elsewhere))
}

func TestClose_ReleasesReader(t *testing.T) {
	t.Parallel()

	fake := &fakeReader{level: 10}
	c, err := newWithOpener("ignored", fakeOpenerFor(fake))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.True(t, fake.closed)
}

func TestLevel_CachedFromReader(t *testing.T) {
	t.Parallel()

	fake := &fakeReader{level: 14}
	c, err := newWithOpener("ignored", fakeOpenerFor(fake))
	require.NoError(t, err)
	require.Equal(t, 14, c.Level())
}
