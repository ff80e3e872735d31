// Package surface extracts the boundary voxels of a segmented volume.
package surface

import (
	"interscellar/internal/models"
)

// ComputeGlobalSurface marks every foreground voxel that has at least one
// background voxel among its 26 neighbours. Voxels outside the volume count
// as background, so foreground touching the volume border is surface too.
//
// The mask is computed for the whole volume in one go and does not depend on
// the number of cells; callers compute it once and pass it around.
func ComputeGlobalSurface(vol *models.LabelVolume) *models.SurfaceMask {
	shape := vol.Shape
	fg := make([]bool, len(vol.Data))
	for i, label := range vol.Data {
		fg[i] = label > 0
	}

	// The 3x3x3 structuring element is a product of three 1-D segments, so
	// the erosion is done as one pass per axis.
	eroded := erodeAxis(fg, shape, models.AxisX)
	eroded = erodeAxis(eroded, shape, models.AxisY)
	eroded = erodeAxis(eroded, shape, models.AxisZ)

	bits := fg
	for i := range bits {
		bits[i] = bits[i] && !eroded[i]
	}
	return &models.SurfaceMask{Bits: bits, Shape: shape}
}

// erodeAxis keeps a voxel only when it and both of its neighbours along the
// given axis are set. Neighbours beyond the border are unset.
func erodeAxis(src []bool, shape models.Shape, axis int) []bool {
	strides := [3]int{shape[1] * shape[2], shape[2], 1}
	stride := strides[axis]
	dim := shape[axis]

	dst := make([]bool, len(src))
	i := 0
	for z := 0; z < shape[0]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[2]; x++ {
				if src[i] {
					c := [3]int{z, y, x}[axis]
					dst[i] = c > 0 && c < dim-1 && src[i-stride] && src[i+stride]
				}
				i++
			}
		}
	}
	return dst
}

// CellSurface returns the surface voxels of one cell inside box, as voxel
// coordinates.
func CellSurface(vol *models.LabelVolume, mask *models.SurfaceMask, cellID uint32, box models.Box) [][3]int {
	var pts [][3]int
	for z := box.Min[0]; z < box.Max[0]; z++ {
		for y := box.Min[1]; y < box.Max[1]; y++ {
			for x := box.Min[2]; x < box.Max[2]; x++ {
				i := vol.Shape.Index(z, y, x)
				if mask.Bits[i] && vol.Data[i] == cellID {
					pts = append(pts, [3]int{z, y, x})
				}
			}
		}
	}
	return pts
}
