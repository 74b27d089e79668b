package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/tilestream/dataset"
	"github.com/outofforest/tilestream/types"
)

func TestSweepEmpty(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(dataset.Selection{}, newSweep(nil, 1, 1).next())
}

func TestSweepMovesWindow(t *testing.T) {
	requireT := require.New(t)

	leaves := []types.TileIndex{10, 11, 12, 13, 14, 15, 16, 17}
	s := newSweep(leaves, 1, 1)

	sel := s.next()
	requireT.Equal([]types.TileIndex{17, 10, 11, 12}, sel.WarmUp)
	requireT.Equal([]types.TileIndex{17, 10, 11}, sel.HeatUp)
	requireT.Equal([]types.TileIndex{12}, sel.Cooldown)
	requireT.Empty(sel.Freeze)

	sel = s.next()
	requireT.Equal([]types.TileIndex{10, 11, 12, 13}, sel.WarmUp)
	requireT.Equal([]types.TileIndex{10, 11, 12}, sel.HeatUp)
	requireT.Equal([]types.TileIndex{13}, sel.Cooldown)
	requireT.Equal([]types.TileIndex{17}, sel.Freeze)
}

func TestSweepWrapsAround(t *testing.T) {
	requireT := require.New(t)

	leaves := []types.TileIndex{1, 2, 3}
	s := newSweep(leaves, 2, 2)

	for range 5 {
		sel := s.next()
		requireT.ElementsMatch(leaves, sel.WarmUp)
		requireT.ElementsMatch(leaves, sel.HeatUp)
		requireT.Empty(sel.Cooldown)
		requireT.Empty(sel.Freeze)
	}
}
