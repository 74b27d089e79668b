package tileset

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/outofforest/tilestream/alloc"
	"github.com/outofforest/tilestream/types"
	"github.com/outofforest/tilestream/volume"
)

var (
	// ErrInvalidTile is returned when tile index does not refer to allocated tile.
	ErrInvalidTile = errors.New("invalid tile index")

	// ErrHasChildren is returned when deallocated tile still has children.
	ErrHasChildren = errors.New("tile has children")
)

// ContentRef references content of the tile stored in content cache.
type ContentRef struct {
	Key    types.ContentKey
	Volume types.VolumeRef
}

// Config stores tile set configuration.
type Config struct {
	// Capacity is the maximum number of tiles.
	Capacity uint32

	// ChildCapacity is the total number of child indices stored by all tiles. Defaults to 4 * Capacity.
	ChildCapacity uint32

	// ContentCapacity is the total number of content references stored by all tiles. Defaults to Capacity.
	ContentCapacity uint32

	// Area is the area of interest covered by the tile set.
	Area volume.Volume
}

// New creates new tile set.
func New(config Config) (*TileSet, error) {
	area, err := volume.Resolve(config.Area)
	if err != nil {
		return nil, errors.Wrap(err, "area of interest is not configured")
	}
	config.Area = area
	if config.ChildCapacity == 0 {
		config.ChildCapacity = 4 * config.Capacity
	}
	if config.ContentCapacity == 0 {
		config.ContentCapacity = config.Capacity
	}

	capacity := config.Capacity
	ts := &TileSet{
		id:              uuid.New(),
		config:          config,
		slots:           alloc.NewSlots[types.TileIndex](capacity),
		children:        alloc.NewBlocks[types.TileIndex](config.ChildCapacity),
		contents:        alloc.NewBlocks[ContentRef](config.ContentCapacity),
		allocated:       make([]bool, capacity),
		Volumes:         volume.Alloc(capacity),
		GeometricErrors: make([]float64, capacity),
		Refinements:     make([]types.Refinement, capacity),
		Transforms:      make([]types.Mat4, capacity),
		Parents:         make([]types.TileIndex, capacity),
		Children:        make([]alloc.Block, capacity),
		Contents:        make([]alloc.Block, capacity),
		Root:            types.InvalidTileIndex,
	}
	for i := range ts.Parents {
		ts.Parents[i] = types.InvalidTileIndex
	}
	return ts, nil
}

// TileSet stores tiles as rows across parallel arrays. Tile index is stable for the lifetime of the tile.
type TileSet struct {
	id     uuid.UUID
	config Config

	slots     *alloc.Slots[types.TileIndex]
	children  *alloc.Blocks[types.TileIndex]
	contents  *alloc.Blocks[ContentRef]
	allocated []bool
	count     uint32

	Volumes         *volume.Store
	GeometricErrors []float64
	Refinements     []types.Refinement
	Transforms      []types.Mat4
	Parents         []types.TileIndex
	Children        []alloc.Block
	Contents        []alloc.Block
	Root            types.TileIndex
}

// ID returns identifier of the tile set.
func (ts *TileSet) ID() uuid.UUID {
	return ts.id
}

// Area returns area of interest.
func (ts *TileSet) Area() volume.Volume {
	return ts.config.Area
}

// Capacity returns maximum number of tiles.
func (ts *TileSet) Capacity() uint32 {
	return ts.config.Capacity
}

// Count returns number of allocated tiles.
func (ts *TileSet) Count() uint32 {
	return ts.count
}

// Valid reports whether the index refers to allocated tile.
func (ts *TileSet) Valid(index types.TileIndex) bool {
	return uint32(index) < ts.config.Capacity && ts.allocated[index]
}

// Allocate allocates tile row initialized to identity transform and replace refinement.
func (ts *TileSet) Allocate() (types.TileIndex, error) {
	index, err := ts.slots.Allocate()
	if err != nil {
		return 0, errors.Wrapf(err, "tile set is full, capacity: %d", ts.config.Capacity)
	}

	ts.allocated[index] = true
	ts.count++

	ts.GeometricErrors[index] = 0
	ts.Refinements[index] = types.RefineReplace
	ts.Transforms[index] = types.Identity()
	ts.Parents[index] = types.InvalidTileIndex
	ts.Children[index] = alloc.Block{}
	ts.Contents[index] = alloc.Block{}

	if ts.Root == types.InvalidTileIndex {
		ts.Root = index
	}

	return index, nil
}

// Deallocate releases the tile row and its blocks and detaches the tile from its parent. Children must be
// deallocated first.
func (ts *TileSet) Deallocate(index types.TileIndex) error {
	if !ts.Valid(index) {
		return errors.Wrapf(ErrInvalidTile, "tile %d", index)
	}
	if n := ts.Children[index].Count; n > 0 {
		return errors.Wrapf(ErrHasChildren, "tile %d has %d children", index, n)
	}

	if parent := ts.Parents[index]; parent != types.InvalidTileIndex {
		if i := lo.IndexOf(ts.children.Get(ts.Children[parent]), index); i >= 0 {
			ts.Children[parent] = ts.children.Remove(ts.Children[parent], uint32(i))
		}
	}

	ts.children.Release(ts.Children[index])
	ts.contents.Release(ts.Contents[index])
	ts.Children[index] = alloc.Block{}
	ts.Contents[index] = alloc.Block{}
	ts.Volumes.Refs[index] = types.VolumeRef{}
	ts.Parents[index] = types.InvalidTileIndex
	ts.allocated[index] = false
	ts.count--
	ts.slots.Deallocate(index)

	if ts.Root == index {
		ts.Root = types.InvalidTileIndex
	}
	return nil
}

// Commit makes deallocated tile indices reusable.
func (ts *TileSet) Commit() {
	ts.slots.Commit()
}

// SetVolume stores bounding volume of the tile.
func (ts *TileSet) SetVolume(index types.TileIndex, v volume.Volume) error {
	if !ts.Valid(index) {
		return errors.Wrapf(ErrInvalidTile, "tile %d", index)
	}
	return ts.Volumes.Add(uint32(index), v)
}

// Volume returns bounding volume of the tile.
func (ts *TileSet) Volume(index types.TileIndex) (volume.Volume, bool) {
	if !ts.Valid(index) {
		return nil, false
	}
	return ts.Volumes.Get(ts.Volumes.Refs[index])
}

// SetChildren replaces the child block of the tile.
func (ts *TileSet) SetChildren(index types.TileIndex, children ...types.TileIndex) error {
	if !ts.Valid(index) {
		return errors.Wrapf(ErrInvalidTile, "tile %d", index)
	}
	for _, c := range children {
		if !ts.Valid(c) {
			return errors.Wrapf(ErrInvalidTile, "child %d of tile %d", c, index)
		}
	}

	block, err := ts.children.Allocate(children...)
	if err != nil {
		return err
	}
	ts.children.Release(ts.Children[index])
	ts.Children[index] = block

	for _, c := range children {
		ts.Parents[c] = index
	}
	return nil
}

// ChildrenOf returns children of the tile. Returned slice must not be modified.
func (ts *TileSet) ChildrenOf(index types.TileIndex) []types.TileIndex {
	if !ts.Valid(index) {
		return nil
	}
	return ts.children.Get(ts.Children[index])
}

// SetContents replaces the content block of the tile.
func (ts *TileSet) SetContents(index types.TileIndex, refs ...ContentRef) error {
	if !ts.Valid(index) {
		return errors.Wrapf(ErrInvalidTile, "tile %d", index)
	}

	block, err := ts.contents.Allocate(refs...)
	if err != nil {
		return err
	}
	ts.contents.Release(ts.Contents[index])
	ts.Contents[index] = block
	return nil
}

// ContentsOf returns content references of the tile. Returned slice must not be modified.
func (ts *TileSet) ContentsOf(index types.TileIndex) []ContentRef {
	if !ts.Valid(index) {
		return nil
	}
	return ts.contents.Get(ts.Contents[index])
}

// Depth returns the number of ancestors of the tile.
func (ts *TileSet) Depth(index types.TileIndex) int {
	var depth int
	for p := ts.Parents[index]; p != types.InvalidTileIndex; p = ts.Parents[p] {
		depth++
	}
	return depth
}

// Walk visits tiles depth-first starting from the root, in child order.
func (ts *TileSet) Walk(visit func(index types.TileIndex, depth int) bool) {
	if !ts.Valid(ts.Root) {
		return
	}

	type frame struct {
		Index types.TileIndex
		Depth int
	}

	stack := []frame{{Index: ts.Root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(f.Index, f.Depth) {
			return
		}

		children := ts.ChildrenOf(f.Index)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{Index: children[i], Depth: f.Depth + 1})
		}
	}
}

// Clear destroys all the tiles.
func (ts *TileSet) Clear() {
	ts.slots.Reset()
	ts.children.Reset()
	ts.contents.Reset()
	ts.Volumes.Reset()
	clear(ts.allocated)
	clear(ts.GeometricErrors)
	clear(ts.Refinements)
	clear(ts.Transforms)
	clear(ts.Children)
	clear(ts.Contents)
	for i := range ts.Parents {
		ts.Parents[i] = types.InvalidTileIndex
	}
	ts.count = 0
	ts.Root = types.InvalidTileIndex
}
