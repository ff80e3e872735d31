package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"interscellar/internal/models"
	"interscellar/pkg/neighbors"
)

// Summary condenses a run into a handful of numbers.
type Summary struct {
	Cells         int
	SurfaceVoxels int
	Pairs         int

	// MeanDegree is the average number of neighbours per cell
	MeanDegree float64

	// Statistics of the pair distances. MedianDistance is the lower median.
	MeanDistance   float64
	StdDistance    float64
	MedianDistance float64

	// TotalGapVolume sums the gap volumes, 0 when none were computed
	TotalGapVolume float64

	// Cells sharing at least one voxel face, and the summed shared area
	TouchingPairs    int
	TotalContactArea float64
}

// Summarize computes the summary of a finished search.
func Summarize(scene *neighbors.Scene, graph *neighbors.Graph, gaps, contacts map[models.Pair]float64) Summary {
	s := Summary{
		Cells:         len(scene.Boxes),
		SurfaceVoxels: scene.Surface.Count(),
		Pairs:         len(graph.Relations),
	}
	if s.Cells > 0 {
		s.MeanDegree = 2 * float64(s.Pairs) / float64(s.Cells)
	}

	distances := make([]float64, len(graph.Relations))
	for i, r := range graph.Relations {
		distances[i] = r.Distance
	}
	if len(distances) > 0 {
		sort.Float64s(distances)
		s.MeanDistance = stat.Mean(distances, nil)
		s.MedianDistance = stat.Quantile(0.5, stat.Empirical, distances, nil)
	}
	if len(distances) > 1 {
		s.StdDistance = stat.StdDev(distances, nil)
	}

	if len(gaps) > 0 {
		volumes := make([]float64, 0, len(gaps))
		for _, v := range gaps {
			volumes = append(volumes, v)
		}
		s.TotalGapVolume = floats.Sum(volumes)
	}

	s.TouchingPairs = len(contacts)
	if len(contacts) > 0 {
		areas := make([]float64, 0, len(contacts))
		for _, a := range contacts {
			areas = append(areas, a)
		}
		s.TotalContactArea = floats.Sum(areas)
	}
	return s
}
