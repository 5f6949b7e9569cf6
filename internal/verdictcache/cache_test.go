package verdictcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/satgate/internal/s2cell"
)

func TestGetAdd_RoundTrip(t *testing.T) {
	t.Parallel()

	c := New()
	tok := s2cell.Token(37.4, -122.1, 12)

	_, ok := c.Get(tok)
	require.False(t, ok)

	c.Add(tok, true)
	allowed, ok := c.Get(tok)
	require.True(t, ok)
	require.True(t, allowed)
}

func TestCapacity_NeverExceedsCap(t *testing.T) {
	t.Parallel()

	c := New()
	for i := 0; i < Cap+25; i++ {
		tok := s2cell.Token(float64(i%80-40), float64(i%170-85), 12)
		c.Add(tok, i%2 == 0)
		require.LessOrEqual(t, c.Len(), Cap)
	}
	require.Equal(t, Cap, c.Len())
}

func TestClear_EmptiesCache(t *testing.T) {
	t.Parallel()

	c := New()
	c.Add(s2cell.Token(1, 1, 10), true)
	require.Equal(t, 1, c.Len())

	c.Clear()
	require.Equal(t, 0, c.Len())
}
