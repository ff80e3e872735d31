package models

import (
	"fmt"
	"math"
)

// Axis order used everywhere in the module: Z, Y, X.
const (
	AxisZ = iota
	AxisY
	AxisX
)

// Shape is the extent of a volume along Z, Y and X.
type Shape [3]int

// ShapeFromDims converts an arbitrary dimension list into a Shape.
// Anything that is not exactly three positive dimensions is rejected.
func ShapeFromDims(dims []int) (Shape, error) {
	if len(dims) != 3 {
		return Shape{}, fmt.Errorf("%w: volume must be 3-dimensional, got %d dims", ErrInputShape, len(dims))
	}
	s := Shape{dims[0], dims[1], dims[2]}
	if err := s.validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

func (s Shape) validate() error {
	for a, d := range s {
		if d <= 0 {
			return fmt.Errorf("%w: dimension %d has non-positive size %d", ErrInputShape, a, d)
		}
	}
	return nil
}

// Len is the number of voxels in the shape.
func (s Shape) Len() int {
	return s[0] * s[1] * s[2]
}

// Index returns the flat row-major offset of (z, y, x).
func (s Shape) Index(z, y, x int) int {
	return (z*s[1]+y)*s[2] + x
}

// Coord is the inverse of Index.
func (s Shape) Coord(idx int) (z, y, x int) {
	x = idx % s[2]
	idx /= s[2]
	y = idx % s[1]
	z = idx / s[1]
	return
}

// InBounds reports whether (z, y, x) lies inside the shape.
func (s Shape) InBounds(z, y, x int) bool {
	return z >= 0 && y >= 0 && x >= 0 && z < s[0] && y < s[1] && x < s[2]
}

// Full is the box covering the whole shape.
func (s Shape) Full() Box {
	return Box{Max: [3]int(s)}
}

// LabelVolume is a segmented 3D image. Each voxel holds the id of the cell
// occupying it, 0 meaning background. It is never mutated once built.
type LabelVolume struct {
	// Data holds the labels in row-major (Z, Y, X) order
	Data []uint32

	// Shape is the extent of the volume in voxels
	Shape Shape
}

// NewLabelVolume wraps data as a volume of the given shape.
func NewLabelVolume(data []uint32, shape Shape) (*LabelVolume, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("%w: %d labels for shape %v (%d voxels)", ErrInputShape, len(data), shape, shape.Len())
	}
	return &LabelVolume{Data: data, Shape: shape}, nil
}

// At returns the label at (z, y, x).
func (v *LabelVolume) At(z, y, x int) uint32 {
	return v.Data[v.Shape.Index(z, y, x)]
}

// VoxelPitch is the physical size of one voxel along Z, Y and X.
// Components need not be equal.
type VoxelPitch [3]float64

// NewVoxelPitch validates a list of voxel sizes given in Z, Y, X order.
func NewVoxelPitch(sizes ...float64) (VoxelPitch, error) {
	if len(sizes) != 3 {
		return VoxelPitch{}, fmt.Errorf("%w: voxel size needs 3 components, got %d", ErrInputShape, len(sizes))
	}
	p := VoxelPitch{sizes[0], sizes[1], sizes[2]}
	if err := p.Validate(); err != nil {
		return VoxelPitch{}, err
	}
	return p, nil
}

// Validate checks that every component is positive and finite.
func (p VoxelPitch) Validate() error {
	for a, s := range p {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: voxel size along axis %d must be positive, got %v", ErrInputShape, a, s)
		}
	}
	return nil
}

// Physical converts voxel coordinates into physical ones.
func (p VoxelPitch) Physical(z, y, x int) [3]float64 {
	return [3]float64{float64(z) * p[0], float64(y) * p[1], float64(x) * p[2]}
}

// ValidateDistance rejects thresholds that make a halo margin meaningless.
func ValidateDistance(maxDistance float64) error {
	if !(maxDistance > 0) || math.IsInf(maxDistance, 0) {
		return fmt.Errorf("%w: got %v", ErrDegenerateDistance, maxDistance)
	}
	return nil
}
