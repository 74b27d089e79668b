package test

import (
	"context"
	"sort"
	"testing"

	"github.com/outofforest/logger"

	"github.com/outofforest/tilestream/tileset"
	"github.com/outofforest/tilestream/types"
)

// Context returns context carrying the logger, canceled when test finishes.
func Context(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)
	return ctx
}

// CollectTiles collects indices of tiles reachable from the root of the tile set.
func CollectTiles(ts *tileset.TileSet) []types.TileIndex {
	tiles := []types.TileIndex{}
	ts.Walk(func(index types.TileIndex, depth int) bool {
		tiles = append(tiles, index)
		return true
	})

	sort.Slice(tiles, func(i, j int) bool {
		return tiles[i] < tiles[j]
	})
	return tiles
}

// CollectLeaves collects indices of tiles having no children.
func CollectLeaves(ts *tileset.TileSet) []types.TileIndex {
	leaves := []types.TileIndex{}
	ts.Walk(func(index types.TileIndex, depth int) bool {
		if len(ts.ChildrenOf(index)) == 0 {
			leaves = append(leaves, index)
		}
		return true
	})

	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i] < leaves[j]
	})
	return leaves
}
