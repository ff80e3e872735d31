// Package bbox indexes the cells of a label volume by their tight
// axis-aligned bounding boxes.
package bbox

import (
	"sort"

	"interscellar/internal/models"
)

// Boxes maps a cell id to a bounding box.
type Boxes map[uint32]models.Box

// IDs returns the cell ids in ascending order.
func (b Boxes) IDs() []uint32 {
	ids := make([]uint32, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CellIndex holds the per-cell aggregates of one pass over a volume.
type CellIndex struct {
	// Boxes is the tight box of every non-zero label
	Boxes Boxes

	// Voxels is the number of voxels carrying each label
	Voxels map[uint32]int
}

// Index walks the volume once and accumulates, for every non-zero label,
// the min/max voxel coordinate and the voxel count.
func Index(vol *models.LabelVolume) *CellIndex {
	idx := &CellIndex{
		Boxes:  make(Boxes),
		Voxels: make(map[uint32]int),
	}
	shape := vol.Shape
	i := 0
	for z := 0; z < shape[0]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[2]; x++ {
				label := vol.Data[i]
				i++
				if label == 0 {
					continue
				}
				if box, ok := idx.Boxes[label]; ok {
					box.Extend(z, y, x)
					idx.Boxes[label] = box
				} else {
					idx.Boxes[label] = models.VoxelBox(z, y, x)
				}
				idx.Voxels[label]++
			}
		}
	}
	return idx
}

// ComputeBoundingBoxes returns the tight bounding box of every cell present
// in the volume. An all-background volume yields an empty mapping.
func ComputeBoundingBoxes(vol *models.LabelVolume) Boxes {
	return Index(vol).Boxes
}
