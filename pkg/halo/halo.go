// Package halo grows voxel boxes by a physical distance so that everything
// within that distance of a region is inside the grown box.
package halo

import (
	"fmt"
	"math"

	"interscellar/internal/models"
	"interscellar/pkg/bbox"
)

// Margins returns, per axis, the number of voxels that span maxDistance.
// Rounding up guarantees margin * pitch >= maxDistance on every axis.
func Margins(maxDistance float64, pitch models.VoxelPitch) ([3]int, error) {
	if err := models.ValidateDistance(maxDistance); err != nil {
		return [3]int{}, err
	}
	if err := pitch.Validate(); err != nil {
		return [3]int{}, err
	}
	var m [3]int
	for a := 0; a < 3; a++ {
		m[a] = int(math.Ceil(maxDistance / pitch[a]))
	}
	return m, nil
}

// ExpandBox grows box by margins on both sides and clips the result to the
// volume. Start is floored at 0 and stop capped at the dimension; the result
// never has start > stop.
func ExpandBox(box models.Box, margins [3]int, shape models.Shape) models.Box {
	var out models.Box
	for a := 0; a < 3; a++ {
		out.Min[a] = max(0, box.Min[a]-margins[a])
		out.Max[a] = min(shape[a], box.Max[a]+margins[a])
		if out.Min[a] > shape[a] {
			out.Min[a] = shape[a]
		}
		if out.Max[a] < out.Min[a] {
			out.Max[a] = out.Min[a]
		}
	}
	return out
}

// ExpandMask computes the tight box of the set voxels of region (a full-size
// boolean volume) and grows it by the halo of maxDistance. The boolean result
// is false when the region has no voxel at all, in which case there is
// nothing to search.
func ExpandMask(region []bool, shape models.Shape, maxDistance float64, pitch models.VoxelPitch) (models.Box, bool, error) {
	margins, err := Margins(maxDistance, pitch)
	if err != nil {
		return models.Box{}, false, err
	}
	if len(region) != shape.Len() {
		return models.Box{}, false, fmt.Errorf("%w: region has %d voxels, shape %v needs %d", models.ErrInputShape, len(region), shape, shape.Len())
	}

	var box models.Box
	found := false
	for i, set := range region {
		if !set {
			continue
		}
		z, y, x := shape.Coord(i)
		if !found {
			box = models.VoxelBox(z, y, x)
			found = true
			continue
		}
		box.Extend(z, y, x)
	}
	if !found {
		return models.Box{}, false, nil
	}
	return ExpandBox(box, margins, shape), true, nil
}

// ExpandAll derives the halo box of every cell from its tight box.
func ExpandAll(boxes bbox.Boxes, maxDistance float64, pitch models.VoxelPitch, shape models.Shape) (bbox.Boxes, error) {
	margins, err := Margins(maxDistance, pitch)
	if err != nil {
		return nil, err
	}
	halos := make(bbox.Boxes, len(boxes))
	for id, b := range boxes {
		halos[id] = ExpandBox(b, margins, shape)
	}
	return halos, nil
}
