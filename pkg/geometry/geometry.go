// Package geometry derives physical quantities from a neighbour scene:
// cell volumes, contact areas and the empty space between neighbouring cells.
package geometry

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"interscellar/internal/models"
	"interscellar/pkg/neighbors"
)

// VoxelVolume is the physical volume of one voxel.
func VoxelVolume(pitch models.VoxelPitch) float64 {
	return floats.Prod(pitch[:])
}

// CellVolumes converts voxel counts into physical volumes.
func CellVolumes(voxels map[uint32]int, pitch models.VoxelPitch) map[uint32]float64 {
	unit := VoxelVolume(pitch)
	out := make(map[uint32]float64, len(voxels))
	for id, n := range voxels {
		out[id] = float64(n) * unit
	}
	return out
}

// ComputeGapVolume measures the background between two neighbouring cells:
// the background voxels lying within the scene's max distance of the surface
// of both cells. Only the overlap of the two halo boxes can hold such voxels,
// so nothing outside it is visited.
func ComputeGapVolume(a, b uint32, scene *neighbors.Scene) (float64, error) {
	ha, ok := scene.Halos[a]
	if !ok {
		return 0, fmt.Errorf("%w: no halo box for cell %d", models.ErrUnknownCell, a)
	}
	hb, ok := scene.Halos[b]
	if !ok {
		return 0, fmt.Errorf("%w: no halo box for cell %d", models.ErrUnknownCell, b)
	}
	region := ha.Intersect(hb)
	if region.Empty() {
		return 0, nil
	}

	sa := neighbors.NewSurfaceIndex(scene, a)
	sb := neighbors.NewSurfaceIndex(scene, b)
	if sa.Len() == 0 || sb.Len() == 0 {
		return 0, nil
	}

	vol := scene.Volume
	limit := scene.MaxDistance * scene.MaxDistance
	count := 0
	for z := region.Min[0]; z < region.Max[0]; z++ {
		for y := region.Min[1]; y < region.Max[1]; y++ {
			for x := region.Min[2]; x < region.Max[2]; x++ {
				if vol.At(z, y, x) != 0 {
					continue
				}
				if sa.SquaredDistance(z, y, x) > limit {
					continue
				}
				if sb.SquaredDistance(z, y, x) > limit {
					continue
				}
				count++
			}
		}
	}
	return float64(count) * VoxelVolume(scene.Pitch), nil
}

// ComputeGapVolumes runs ComputeGapVolume for every pair concurrently.
func ComputeGapVolumes(ctx context.Context, scene *neighbors.Scene, pairs []models.Pair, workers int) (map[models.Pair]float64, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make(map[models.Pair]float64, len(pairs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := ComputeGapVolume(p.A, p.B, scene)
			if err != nil {
				return fmt.Errorf("gap volume of %v: %w", p, err)
			}
			mu.Lock()
			out[p] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ContactAreas sums, for every pair of touching cells, the physical area of
// the voxel faces they share under 6-connectivity.
func ContactAreas(vol *models.LabelVolume, pitch models.VoxelPitch) map[models.Pair]float64 {
	faceArea := [3]float64{pitch[1] * pitch[2], pitch[0] * pitch[2], pitch[0] * pitch[1]}
	strides := [3]int{vol.Shape[1] * vol.Shape[2], vol.Shape[2], 1}
	out := make(map[models.Pair]float64)

	i := 0
	for z := 0; z < vol.Shape[0]; z++ {
		for y := 0; y < vol.Shape[1]; y++ {
			for x := 0; x < vol.Shape[2]; x++ {
				label := vol.Data[i]
				if label != 0 {
					c := [3]int{z, y, x}
					for a := 0; a < 3; a++ {
						if c[a]+1 >= vol.Shape[a] {
							continue
						}
						other := vol.Data[i+strides[a]]
						if other != 0 && other != label {
							out[models.NewPair(label, other)] += faceArea[a]
						}
					}
				}
				i++
			}
		}
	}
	return out
}
