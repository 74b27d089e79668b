package volume

import (
	"math"

	"github.com/pkg/errors"

	"github.com/outofforest/tilestream/types"
)

// Volume is implemented by Box, Sphere and Region.
type Volume interface {
	// Type returns the shape tag stored in the ref table.
	Type() types.VolumeType

	// Bounds returns axis-aligned minimum and maximum corners.
	Bounds() (types.Vec3, types.Vec3)

	sealed()
}

// ErrNilVolume is returned when volume is nil or a nil pointer.
var ErrNilVolume = errors.New("nil volume")

// Resolve dereferences pointers to volumes so the result is always Box, Sphere or Region value.
func Resolve(v Volume) (Volume, error) {
	switch vt := v.(type) {
	case Box, Sphere, Region:
		return vt, nil
	case *Box:
		if vt != nil {
			return *vt, nil
		}
	case *Sphere:
		if vt != nil {
			return *vt, nil
		}
	case *Region:
		if vt != nil {
			return *vt, nil
		}
	}
	return nil, errors.Wrapf(ErrNilVolume, "volume %T", v)
}

var (
	_ Volume = Box{}
	_ Volume = Sphere{}
	_ Volume = Region{}
)

// Box is the oriented box described by its center and three half-axis vectors.
type Box struct {
	Center    types.Vec3
	HalfAxisX types.Vec3
	HalfAxisY types.Vec3
	HalfAxisZ types.Vec3
}

// FromBounds creates axis-aligned box from its center and size.
func FromBounds(center, size types.Vec3) Box {
	return Box{
		Center:    center,
		HalfAxisX: types.Vec3{X: size.X / 2},
		HalfAxisY: types.Vec3{Y: size.Y / 2},
		HalfAxisZ: types.Vec3{Z: size.Z / 2},
	}
}

// FromTopLeftAndBottomRight creates axis-aligned box spanning two corners.
func FromTopLeftAndBottomRight(topLeft, bottomRight types.Vec3) Box {
	return FromBounds(topLeft.Add(bottomRight).Scale(0.5), bottomRight.Sub(topLeft))
}

func (b Box) sealed() {}

// Type returns the shape tag.
func (b Box) Type() types.VolumeType {
	return types.VolumeBox
}

// Size returns the extent of the box along each world axis.
func (b Box) Size() types.Vec3 {
	return b.HalfAxisX.Abs().Add(b.HalfAxisY.Abs()).Add(b.HalfAxisZ.Abs()).Scale(2)
}

// TopLeft returns the minimum corner.
func (b Box) TopLeft() types.Vec3 {
	return b.Center.Sub(b.Size().Scale(0.5))
}

// BottomRight returns the maximum corner.
func (b Box) BottomRight() types.Vec3 {
	return b.Center.Add(b.Size().Scale(0.5))
}

// ToBounds returns center and size of the box.
func (b Box) ToBounds() (types.Vec3, types.Vec3) {
	return b.Center, b.Size()
}

// Bounds returns axis-aligned minimum and maximum corners.
func (b Box) Bounds() (types.Vec3, types.Vec3) {
	return b.TopLeft(), b.BottomRight()
}

// Subdivide2D splits the box into four quadrants over its X and Y axes, preserving Z.
// Children are ordered top-left, top-right, bottom-right, bottom-left.
func (b Box) Subdivide2D() [4]Box {
	hx := b.HalfAxisX.Scale(0.5)
	hy := b.HalfAxisY.Scale(0.5)

	child := func(sx, sy float64) Box {
		return Box{
			Center:    b.Center.Add(hx.Scale(sx)).Add(hy.Scale(sy)),
			HalfAxisX: hx,
			HalfAxisY: hy,
			HalfAxisZ: b.HalfAxisZ,
		}
	}

	return [4]Box{
		child(-1, -1),
		child(1, -1),
		child(1, 1),
		child(-1, 1),
	}
}

// Sphere is the bounding sphere.
type Sphere struct {
	Center types.Vec3
	Radius float64
}

func (s Sphere) sealed() {}

// Type returns the shape tag.
func (s Sphere) Type() types.VolumeType {
	return types.VolumeSphere
}

// Bounds returns axis-aligned minimum and maximum corners.
func (s Sphere) Bounds() (types.Vec3, types.Vec3) {
	r := types.Vec3{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return s.Center.Sub(r), s.Center.Add(r)
}

// Box returns axis-aligned box enclosing the sphere.
func (s Sphere) Box() Box {
	return FromBounds(s.Center, types.Vec3{X: 2 * s.Radius, Y: 2 * s.Radius, Z: 2 * s.Radius})
}

// Region is the geographic extent in degrees plus height range in meters.
type Region struct {
	West      float64
	South     float64
	East      float64
	North     float64
	MinHeight float64
	MaxHeight float64
}

func (r Region) sealed() {}

// Type returns the shape tag.
func (r Region) Type() types.VolumeType {
	return types.VolumeRegion
}

// Bounds returns the region as (west, south, minHeight) - (east, north, maxHeight).
func (r Region) Bounds() (types.Vec3, types.Vec3) {
	return types.Vec3{X: r.West, Y: r.South, Z: r.MinHeight}, types.Vec3{X: r.East, Y: r.North, Z: r.MaxHeight}
}

// Subdivide2D splits the region into four quadrants, preserving the height range.
// Children are ordered the same way as for Box: west-south, east-south, east-north, west-north.
func (r Region) Subdivide2D() [4]Region {
	midLon := (r.West + r.East) / 2
	midLat := (r.South + r.North) / 2

	child := func(w, s, e, n float64) Region {
		return Region{West: w, South: s, East: e, North: n, MinHeight: r.MinHeight, MaxHeight: r.MaxHeight}
	}

	return [4]Region{
		child(r.West, r.South, midLon, midLat),
		child(midLon, r.South, r.East, midLat),
		child(midLon, midLat, r.East, r.North),
		child(r.West, midLat, midLon, r.North),
	}
}

// Degenerate reports whether the volume has no usable horizontal extent.
func Degenerate(v Volume) bool {
	minP, maxP := v.Bounds()
	dx := maxP.X - minP.X
	dy := maxP.Y - minP.Y
	return math.IsNaN(dx) || math.IsNaN(dy) || math.IsInf(dx, 0) || math.IsInf(dy, 0) || dx <= 0 || dy <= 0
}

// Diagonal returns length of the horizontal diagonal of the volume.
func Diagonal(v Volume) float64 {
	minP, maxP := v.Bounds()
	return math.Hypot(maxP.X-minP.X, maxP.Y-minP.Y)
}
