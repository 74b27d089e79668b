package main

import (
	"github.com/samber/lo"

	"github.com/outofforest/tilestream/dataset"
	"github.com/outofforest/tilestream/types"
)

// sweep moves a window of interest over the leaves. Tiles inside the window are hot, tiles ahead of it are
// prefetched and tiles left behind are frozen.
type sweep struct {
	leaves   []types.TileIndex
	radius   int
	ahead    int
	position int
	selected []types.TileIndex
}

func newSweep(leaves []types.TileIndex, radius, ahead int) *sweep {
	return &sweep{
		leaves: leaves,
		radius: radius,
		ahead:  ahead,
	}
}

func (s *sweep) next() dataset.Selection {
	if len(s.leaves) == 0 {
		return dataset.Selection{}
	}

	hot := s.window(s.position-s.radius, s.position+s.radius)
	warm := s.window(s.position-s.radius, s.position+s.radius+s.ahead)
	gone := lo.Without(s.selected, warm...)

	s.selected = warm
	s.position = (s.position + 1) % len(s.leaves)

	return dataset.Selection{
		WarmUp:   warm,
		HeatUp:   hot,
		Cooldown: lo.Without(warm, hot...),
		Freeze:   gone,
	}
}

func (s *sweep) window(from, to int) []types.TileIndex {
	n := len(s.leaves)
	tiles := make([]types.TileIndex, 0, to-from+1)
	for i := from; i <= to; i++ {
		tiles = append(tiles, s.leaves[((i%n)+n)%n])
	}
	return lo.Uniq(tiles)
}
