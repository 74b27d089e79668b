package volume

import (
	"github.com/pkg/errors"

	"github.com/outofforest/tilestream/types"
)

// ErrOutOfBounds is returned when index exceeds the allocated capacity.
var ErrOutOfBounds = errors.New("volume index out of bounds")

// Alloc allocates store with exactly capacity rows in each table.
func Alloc(capacity uint32) *Store {
	return &Store{
		Refs:    make([]types.VolumeRef, capacity),
		Boxes:   make([]Box, capacity),
		Spheres: make([]Sphere, capacity),
		Regions: make([]Region, capacity),
	}
}

// Store keeps the small ref table separate from the per-shape geometry tables.
// Geometry at Boxes[i], Spheres[i] or Regions[i] is meaningful only when Refs[i].Type says so.
type Store struct {
	Refs    []types.VolumeRef
	Boxes   []Box
	Spheres []Sphere
	Regions []Region
}

// Capacity returns the number of rows.
func (s *Store) Capacity() uint32 {
	return uint32(len(s.Refs))
}

// Add writes the volume at index. Previous content of the slot is overwritten only if the volume is accepted.
func (s *Store) Add(index uint32, v Volume) error {
	if index >= s.Capacity() {
		return errors.Wrapf(ErrOutOfBounds, "index %d, capacity %d", index, s.Capacity())
	}

	v, err := Resolve(v)
	if err != nil {
		return err
	}

	s.clear(index)
	switch vt := v.(type) {
	case Box:
		s.Boxes[index] = vt
	case Sphere:
		s.Spheres[index] = vt
	case Region:
		s.Regions[index] = vt
	}

	s.Refs[index] = types.VolumeRef{
		Type:  v.Type(),
		Index: index,
	}
	return nil
}

// Box returns box stored at index.
func (s *Store) Box(index uint32) (Box, bool) {
	if index >= s.Capacity() || s.Refs[index].Type != types.VolumeBox {
		return Box{}, false
	}
	return s.Boxes[s.Refs[index].Index], true
}

// Sphere returns sphere stored at index.
func (s *Store) Sphere(index uint32) (Sphere, bool) {
	if index >= s.Capacity() || s.Refs[index].Type != types.VolumeSphere {
		return Sphere{}, false
	}
	return s.Spheres[s.Refs[index].Index], true
}

// Region returns region stored at index.
func (s *Store) Region(index uint32) (Region, bool) {
	if index >= s.Capacity() || s.Refs[index].Type != types.VolumeRegion {
		return Region{}, false
	}
	return s.Regions[s.Refs[index].Index], true
}

// Get resolves the ref into the volume it points to.
func (s *Store) Get(ref types.VolumeRef) (Volume, bool) {
	if ref.Index >= s.Capacity() {
		return nil, false
	}
	switch ref.Type {
	case types.VolumeBox:
		return s.Boxes[ref.Index], true
	case types.VolumeSphere:
		return s.Spheres[ref.Index], true
	case types.VolumeRegion:
		return s.Regions[ref.Index], true
	default:
		return nil, false
	}
}

// Bounds returns axis-aligned corners of the volume stored at index.
func (s *Store) Bounds(index uint32) (types.Vec3, types.Vec3, bool) {
	if index >= s.Capacity() {
		return types.Vec3{}, types.Vec3{}, false
	}
	v, ok := s.Get(s.Refs[index])
	if !ok {
		return types.Vec3{}, types.Vec3{}, false
	}
	minP, maxP := v.Bounds()
	return minP, maxP, true
}

// Reset marks all the slots uninitialized.
func (s *Store) Reset() {
	clear(s.Refs)
	clear(s.Boxes)
	clear(s.Spheres)
	clear(s.Regions)
}

func (s *Store) clear(index uint32) {
	ref := s.Refs[index]
	switch ref.Type {
	case types.VolumeBox:
		s.Boxes[ref.Index] = Box{}
	case types.VolumeSphere:
		s.Spheres[ref.Index] = Sphere{}
	case types.VolumeRegion:
		s.Regions[ref.Index] = Region{}
	}
}
