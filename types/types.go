package types

import "math"

const (
	// UInt64Length is the number of bytes taken by uint64.
	UInt64Length = 8

	// DigestLength is the number of bytes taken by payload digest.
	DigestLength = 32

	// InvalidTileIndex marks the absence of a tile.
	InvalidTileIndex TileIndex = math.MaxUint32
)

type (
	// TileIndex is the stable index of a tile inside the tile set.
	TileIndex uint32

	// ContentKey is the hash of a content locator.
	ContentKey uint64

	// Digest is the checksum of a content payload.
	Digest [DigestLength]byte
)

// VolumeType enumerates bounding volume shapes.
type VolumeType byte

const (
	// VolumeUninitialized means slot has never been written.
	VolumeUninitialized VolumeType = iota

	// VolumeBox means slot contains oriented box.
	VolumeBox

	// VolumeSphere means slot contains sphere.
	VolumeSphere

	// VolumeRegion means slot contains geographic region.
	VolumeRegion
)

func (t VolumeType) String() string {
	switch t {
	case VolumeBox:
		return "box"
	case VolumeSphere:
		return "sphere"
	case VolumeRegion:
		return "region"
	default:
		return "uninitialized"
	}
}

// VolumeRef is the typed pointer into one of the geometry tables of volume store.
type VolumeRef struct {
	Type  VolumeType
	Index uint32
}

// Refinement defines how children refine their parent.
type Refinement byte

const (
	// RefineReplace means children replace the parent when rendered.
	RefineReplace Refinement = iota

	// RefineAdd means children are rendered on top of the parent.
	RefineAdd
)

// Vec3 is the 3D vector.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Abs returns v with absolute components.
func (v Vec3) Abs() Vec3 {
	return Vec3{X: math.Abs(v.X), Y: math.Abs(v.Y), Z: math.Abs(v.Z)}
}

// Min returns componentwise minimum.
func (v Vec3) Min(o Vec3) Vec3 {
	return Vec3{X: math.Min(v.X, o.X), Y: math.Min(v.Y, o.Y), Z: math.Min(v.Z, o.Z)}
}

// Max returns componentwise maximum.
func (v Vec3) Max(o Vec3) Vec3 {
	return Vec3{X: math.Max(v.X, o.X), Y: math.Max(v.Y, o.Y), Z: math.Max(v.Z, o.Z)}
}

// Length returns euclidean length of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Mat4 is the column-major 4x4 matrix.
type Mat4 [16]float64

// Identity returns identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns matrix translating by v.
func Translation(v Vec3) Mat4 {
	m := Identity()
	m[12] = v.X
	m[13] = v.Y
	m[14] = v.Z
	return m
}

// Transform applies matrix to the point.
func (m Mat4) Transform(p Vec3) Vec3 {
	return Vec3{
		X: m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12],
		Y: m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13],
		Z: m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14],
	}
}
