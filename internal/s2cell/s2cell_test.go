package s2cell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToken_SameCell_EqualTokens(t *testing.T) {
	t.Parallel()

	// Two points close enough together to share a level-12 cell.
	a := Token(37.400000, -122.100000, 12)
	b := Token(37.400001, -122.100001, 12)

	require.Equal(t, a, b)
	require.Equal(t, a.CellID(), b.CellID())
}

func TestToken_DifferentCells_NotEqual(t *testing.T) {
	t.Parallel()

	a := Token(37.4, -122.1, 12)
	b := Token(51.5, -0.12, 12)

	require.NotEqual(t, a, b)
}

func TestParent_AlreadyCoarser_ReturnsSameID(t *testing.T) {
	t.Parallel()

	leaf := Leaf(37.4, -122.1)
	coarse := Parent(leaf, 10)
	require.Equal(t, coarse, Parent(coarse, 30))
}

func TestToken_LevelRecorded(t *testing.T) {
	t.Parallel()

	tok := Token(10, 10, 15)
	require.Equal(t, 15, tok.Level())
}
