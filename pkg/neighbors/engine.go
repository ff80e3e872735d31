// Package neighbors finds, for every cell of a segmented volume, the other
// cells whose surfaces come within a physical distance of its own surface.
//
// The search for a cell never looks beyond its halo box: the tight box grown
// by ceil(maxDistance/pitch) voxels per axis. Any surface voxel of another
// cell within maxDistance of the cell's surface is guaranteed to lie inside
// that box, so the windowed search is exact.
package neighbors

import (
	"fmt"
	"math"
	"sort"

	"interscellar/internal/models"
	"interscellar/pkg/bbox"
	"interscellar/pkg/halo"
	"interscellar/pkg/surface"
)

// Scene bundles the read-only artifacts shared by every per-cell query of a
// run. It is built once, sequentially, and then used concurrently without
// locking.
type Scene struct {
	// Volume is the labelled input
	Volume *models.LabelVolume

	// Surface is the global surface mask of Volume
	Surface *models.SurfaceMask

	// Boxes are the tight boxes, Voxels the voxel counts per cell
	Boxes  bbox.Boxes
	Voxels map[uint32]int

	// Halos are the tight boxes grown by the distance threshold
	Halos bbox.Boxes

	MaxDistance float64
	Pitch       models.VoxelPitch
}

// Prepare computes the global surface, the tight boxes and the halo boxes of
// vol. The threshold and voxel size are validated before the volume is
// scanned.
func Prepare(vol *models.LabelVolume, maxDistance float64, pitch models.VoxelPitch) (*Scene, error) {
	if _, err := halo.Margins(maxDistance, pitch); err != nil {
		return nil, err
	}
	mask := surface.ComputeGlobalSurface(vol)
	return NewScene(vol, mask, bbox.Index(vol), maxDistance, pitch)
}

// NewScene assembles a scene from a surface mask and cell index computed
// earlier for the same volume. Only the halo boxes, which depend on the
// threshold, are derived here.
func NewScene(vol *models.LabelVolume, mask *models.SurfaceMask, idx *bbox.CellIndex, maxDistance float64, pitch models.VoxelPitch) (*Scene, error) {
	if mask.Shape != vol.Shape || len(mask.Bits) != len(vol.Data) {
		return nil, fmt.Errorf("%w: surface mask %v does not match volume %v", models.ErrInputShape, mask.Shape, vol.Shape)
	}
	halos, err := halo.ExpandAll(idx.Boxes, maxDistance, pitch, vol.Shape)
	if err != nil {
		return nil, err
	}
	return &Scene{
		Volume:      vol,
		Surface:     mask,
		Boxes:       idx.Boxes,
		Voxels:      idx.Voxels,
		Halos:       halos,
		MaxDistance: maxDistance,
		Pitch:       pitch,
	}, nil
}

// FindNeighbors runs the windowed search for one cell of the scene.
func (s *Scene) FindNeighbors(cellID uint32) ([]models.Neighbor, error) {
	return FindNeighbors(cellID, s.Volume, s.Surface, s.Halos, s.MaxDistance, s.Pitch)
}

// FindNeighbors returns the cells whose surface lies within maxDistance
// (inclusive) of the surface of cellID, sorted by id, each with the minimum
// surface-to-surface distance. Only the halo box of cellID is examined.
//
// A cell without surface voxels has no neighbours; that is not an error.
func FindNeighbors(cellID uint32, vol *models.LabelVolume, mask *models.SurfaceMask, halos bbox.Boxes, maxDistance float64, pitch models.VoxelPitch) ([]models.Neighbor, error) {
	if err := models.ValidateDistance(maxDistance); err != nil {
		return nil, err
	}
	if err := pitch.Validate(); err != nil {
		return nil, err
	}
	if mask.Shape != vol.Shape {
		return nil, fmt.Errorf("%w: surface mask %v does not match volume %v", models.ErrInputShape, mask.Shape, vol.Shape)
	}
	box, ok := halos[cellID]
	if !ok {
		return nil, fmt.Errorf("%w: no halo box for cell %d", models.ErrUnknownCell, cellID)
	}

	own, others := collectSurfaces(cellID, vol, mask, box, pitch)
	if len(own.pts) == 0 || len(others) == 0 {
		return []models.Neighbor{}, nil
	}

	ids := make([]uint32, 0, len(others))
	for id := range others {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	limit := maxDistance * maxDistance
	result := []models.Neighbor{}
	for _, id := range ids {
		d2 := minSquaredDistance(own, others[id])
		if d2 <= limit {
			result = append(result, models.Neighbor{ID: id, Distance: math.Sqrt(d2)})
		}
	}
	return result, nil
}

// collectSurfaces splits the surface voxels inside box into those of cellID
// and those of every other label, converted to physical coordinates.
func collectSurfaces(cellID uint32, vol *models.LabelVolume, mask *models.SurfaceMask, box models.Box, pitch models.VoxelPitch) (*pointSet, map[uint32]*pointSet) {
	own := &pointSet{}
	others := make(map[uint32]*pointSet)
	shape := vol.Shape
	for z := box.Min[0]; z < box.Max[0]; z++ {
		for y := box.Min[1]; y < box.Max[1]; y++ {
			row := shape.Index(z, y, 0)
			for x := box.Min[2]; x < box.Max[2]; x++ {
				i := row + x
				if !mask.Bits[i] {
					continue
				}
				label := vol.Data[i]
				p := toPoint(pitch, z, y, x)
				if label == cellID {
					own.pts = append(own.pts, p)
					continue
				}
				set, ok := others[label]
				if !ok {
					set = &pointSet{}
					others[label] = set
				}
				set.pts = append(set.pts, p)
			}
		}
	}
	return own, others
}

// SurfaceIndex answers nearest-surface queries against one cell.
type SurfaceIndex struct {
	set   *pointSet
	pitch models.VoxelPitch
}

// NewSurfaceIndex indexes the surface voxels of cellID. A cell unknown to
// the scene gives an empty index.
func NewSurfaceIndex(s *Scene, cellID uint32) *SurfaceIndex {
	idx := &SurfaceIndex{set: &pointSet{}, pitch: s.Pitch}
	box, ok := s.Boxes[cellID]
	if !ok {
		return idx
	}
	for _, c := range surface.CellSurface(s.Volume, s.Surface, cellID, box) {
		idx.set.pts = append(idx.set.pts, toPoint(s.Pitch, c[0], c[1], c[2]))
	}
	return idx
}

// Len is the number of indexed surface voxels.
func (idx *SurfaceIndex) Len() int {
	return len(idx.set.pts)
}

// SquaredDistance is the squared physical distance from voxel (z, y, x) to
// the nearest surface voxel of the cell.
func (idx *SurfaceIndex) SquaredDistance(z, y, x int) float64 {
	if idx.Len() == 0 {
		return math.Inf(1)
	}
	return idx.set.nearest(toPoint(idx.pitch, z, y, x))
}
