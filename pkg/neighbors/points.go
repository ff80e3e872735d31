package neighbors

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"interscellar/internal/models"
)

// Point3D is a surface voxel centre in physical units, ordered Z, Y, X.
type Point3D [3]float64

// Compare implements the kdtree.Comparable interface
func (p Point3D) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point3D)
	return p[d] - q[d]
}

// Dims returns the number of dimensions for the KD-tree
func (p Point3D) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p Point3D) Distance(c kdtree.Comparable) float64 {
	q := c.(Point3D)
	dz := p[0] - q[0]
	dy := p[1] - q[1]
	dx := p[2] - q[2]
	return dz*dz + dy*dy + dx*dx
}

// Points3D is a collection of Point3D that satisfies kdtree.Interface
type Points3D []Point3D

func (p Points3D) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points3D) Len() int                              { return len(p) }
func (p Points3D) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Points3D) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{Points3D: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{Points3D: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points3D
type pointPlane struct {
	Points3D
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.Points3D[i][p.Dim] < p.Points3D[j][p.Dim]
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points3D: p.Points3D[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points3D[i], p.Points3D[j] = p.Points3D[j], p.Points3D[i]
}

func toPoint(pitch models.VoxelPitch, z, y, x int) Point3D {
	return Point3D(pitch.Physical(z, y, x))
}

// pointSet is a surface point cloud whose kd-tree is built on first use.
type pointSet struct {
	pts  Points3D
	tree *kdtree.Tree
}

func (s *pointSet) index() *kdtree.Tree {
	if s.tree == nil {
		s.tree = kdtree.New(s.pts, false)
	}
	return s.tree
}

// nearest returns the squared distance from q to the closest point of s.
func (s *pointSet) nearest(q Point3D) float64 {
	_, d := s.index().Nearest(q)
	return d
}

// minSquaredDistance returns the smallest squared distance between the two
// point sets. The tree is built on the smaller set and queried with every
// point of the larger one, instead of comparing all pairs.
func minSquaredDistance(a, b *pointSet) float64 {
	if len(a.pts) == 0 || len(b.pts) == 0 {
		return math.Inf(1)
	}
	indexed, queries := a, b
	if len(b.pts) < len(a.pts) {
		indexed, queries = b, a
	}
	best := math.Inf(1)
	for _, q := range queries.pts {
		if d := indexed.nearest(q); d < best {
			best = d
			if best == 0 {
				break
			}
		}
	}
	return best
}
