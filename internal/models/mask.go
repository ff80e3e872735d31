package models

// SurfaceMask marks the foreground voxels of a volume that touch background.
// It is derived once per volume and only read afterwards.
type SurfaceMask struct {
	// Bits is true at surface voxels, row-major (Z, Y, X)
	Bits []bool

	// Shape matches the volume the mask was computed from
	Shape Shape
}

// At reports whether (z, y, x) is a surface voxel.
func (m *SurfaceMask) At(z, y, x int) bool {
	return m.Bits[m.Shape.Index(z, y, x)]
}

// Count returns the number of surface voxels.
func (m *SurfaceMask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}
