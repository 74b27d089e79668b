package quadtree

import (
	"context"
	"math"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/tilestream/alloc"
	"github.com/outofforest/tilestream/event"
	"github.com/outofforest/tilestream/tileset"
	"github.com/outofforest/tilestream/types"
	"github.com/outofforest/tilestream/volume"
)

const (
	// MaxDepth is the deepest tree whose tile count fits into tile index.
	MaxDepth = 15

	// DefaultMaxDepth caps trees materialized upfront unless configured otherwise. Every level multiplies the number
	// of tile set rows by four: depth 12 takes 22369621 rows while MaxDepth takes 1431655765.
	DefaultMaxDepth = 12
)

var (
	// ErrNegativeDepth is returned when configured depth is below zero.
	ErrNegativeDepth = errors.New("negative depth")

	// ErrDepthTooLarge is returned when configured depth exceeds the allowed maximum.
	ErrDepthTooLarge = errors.New("depth too large")

	// ErrMalformedArea is returned when area of interest has no horizontal extent.
	ErrMalformedArea = errors.New("malformed area of interest")
)

// Config stores materialization configuration.
type Config struct {
	// Depth is the level of the leaves, root is at level 0.
	Depth int

	// RootError is the geometric error of the root. Defaults to the horizontal diagonal of the area.
	RootError float64

	// Events receives TileSpawned and TileSetLoaded notifications if set.
	Events *event.Channel

	// Source tags published events.
	Source string
}

// TileCount returns number of tiles in the full quad tree of given depth.
func TileCount(depth int) uint32 {
	if depth < 0 {
		return 0
	}
	return uint32((uint64(1)<<(2*(uint64(depth)+1)) - 1) / 3)
}

// GeometricError returns error of tiles at level. It halves with each level and is zero at the leaves.
func GeometricError(rootError float64, level, depth int) float64 {
	if level >= depth {
		return 0
	}
	return math.Ldexp(rootError, -level)
}

// Materialize builds the explicit quad tree over area of interest of the tile set and returns the root.
// Children of every tile are ordered top-left, top-right, bottom-right, bottom-left.
func Materialize(ctx context.Context, ts *tileset.TileSet, config Config) (types.TileIndex, error) {
	if config.Depth < 0 {
		return 0, errors.Wrapf(ErrNegativeDepth, "depth: %d", config.Depth)
	}
	if config.Depth > MaxDepth {
		return 0, errors.Wrapf(ErrDepthTooLarge, "depth %d exceeds maximum %d", config.Depth, MaxDepth)
	}

	area := ts.Area()
	if area == nil || volume.Degenerate(area) {
		return 0, errors.WithStack(ErrMalformedArea)
	}

	required := TileCount(config.Depth)
	if free := ts.Capacity() - ts.Count(); free < required {
		return 0, errors.Wrapf(alloc.ErrOutOfSpace, "quad tree of depth %d requires %d tiles, free: %d",
			config.Depth, required, free)
	}

	if config.RootError == 0 {
		config.RootError = volume.Diagonal(area)
	}

	m := &materializer{
		ts:      ts,
		config:  config,
		spawned: make([]types.TileIndex, 0, required),
	}

	var root types.TileIndex
	var err error
	switch a := area.(type) {
	case volume.Box:
		root, err = build(m, a, volume.Box.Subdivide2D, 0)
	case volume.Region:
		root, err = build(m, a, volume.Region.Subdivide2D, 0)
	case volume.Sphere:
		root, err = build(m, a.Box(), volume.Box.Subdivide2D, 0)
	default:
		return 0, errors.Errorf("unsupported area of interest %T", area)
	}
	if err != nil {
		return 0, err
	}

	logger.Get(ctx).Debug("Tile set materialized",
		zap.Stringer("tileSet", ts.ID()),
		zap.Int("depth", config.Depth),
		zap.Int("tiles", len(m.spawned)))

	if config.Events != nil {
		config.Events.Publish(event.Event{
			Kind:    event.TileSpawned,
			Source:  config.Source,
			TileSet: ts.ID(),
			Tiles:   m.spawned,
		})
		config.Events.Publish(event.Event{
			Kind:    event.TileSetLoaded,
			Source:  config.Source,
			TileSet: ts.ID(),
			Tiles:   []types.TileIndex{root},
		})
	}

	return root, nil
}

type materializer struct {
	ts      *tileset.TileSet
	config  Config
	spawned []types.TileIndex
}

func build[V volume.Volume](m *materializer, v V, split func(V) [4]V, level int) (types.TileIndex, error) {
	index, err := m.ts.Allocate()
	if err != nil {
		return 0, err
	}
	m.spawned = append(m.spawned, index)

	if err := m.ts.SetVolume(index, v); err != nil {
		return 0, err
	}
	m.ts.GeometricErrors[index] = GeometricError(m.config.RootError, level, m.config.Depth)

	if level == m.config.Depth {
		return index, nil
	}

	var children [4]types.TileIndex
	for i, c := range split(v) {
		children[i], err = build(m, c, split, level+1)
		if err != nil {
			return 0, err
		}
	}
	if err := m.ts.SetChildren(index, children[:]...); err != nil {
		return 0, err
	}
	return index, nil
}
