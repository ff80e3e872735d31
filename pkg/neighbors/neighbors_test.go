package neighbors

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"interscellar/internal/models"
	"interscellar/pkg/surface"
)

func createTestVolume(t *testing.T, shape models.Shape) *models.LabelVolume {
	t.Helper()
	vol, err := models.NewLabelVolume(make([]uint32, shape.Len()), shape)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	return vol
}

func fillBox(vol *models.LabelVolume, b models.Box, label uint32) {
	for z := b.Min[0]; z < b.Max[0]; z++ {
		for y := b.Min[1]; y < b.Max[1]; y++ {
			for x := b.Min[2]; x < b.Max[2]; x++ {
				vol.Data[vol.Shape.Index(z, y, x)] = label
			}
		}
	}
}

// twoCubes builds a 10x10x10 volume with two 2x2x2 cubes separated by three
// background voxels along x.
func twoCubes(t *testing.T) *models.LabelVolume {
	vol := createTestVolume(t, models.Shape{10, 10, 10})
	fillBox(vol, models.Box{Min: [3]int{4, 4, 2}, Max: [3]int{6, 6, 4}}, 1)
	fillBox(vol, models.Box{Min: [3]int{4, 4, 7}, Max: [3]int{6, 6, 9}}, 2)
	return vol
}

// randomVolume scatters small blobs of random labels.
func randomVolume(t *testing.T, seed int64, shape models.Shape, cells int) *models.LabelVolume {
	rng := rand.New(rand.NewSource(seed))
	vol := createTestVolume(t, shape)
	for c := 1; c <= cells; c++ {
		z, y, x := rng.Intn(shape[0]), rng.Intn(shape[1]), rng.Intn(shape[2])
		size := [3]int{1 + rng.Intn(3), 1 + rng.Intn(3), 1 + rng.Intn(3)}
		b := models.Box{Min: [3]int{z, y, x}, Max: [3]int{z + size[0], y + size[1], x + size[2]}}
		fillBox(vol, b.Clip(shape), uint32(c))
	}
	return vol
}

// bruteForce computes the minimum surface distance of every label pair by
// comparing all surface points.
func bruteForce(vol *models.LabelVolume, pitch models.VoxelPitch) map[models.Pair]float64 {
	mask := surface.ComputeGlobalSurface(vol)
	pts := make(map[uint32][]Point3D)
	for i, set := range mask.Bits {
		if !set {
			continue
		}
		z, y, x := vol.Shape.Coord(i)
		pts[vol.Data[i]] = append(pts[vol.Data[i]], toPoint(pitch, z, y, x))
	}
	out := make(map[models.Pair]float64)
	for a, pa := range pts {
		for b, pb := range pts {
			if a >= b {
				continue
			}
			best := math.Inf(1)
			for _, p := range pa {
				for _, q := range pb {
					best = math.Min(best, p.Distance(q))
				}
			}
			out[models.NewPair(a, b)] = math.Sqrt(best)
		}
	}
	return out
}

func TestTwoCubesScenario(t *testing.T) {
	vol := twoCubes(t)
	pitch := models.VoxelPitch{1, 1, 1}

	near, err := Prepare(vol, 2, pitch)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []uint32{1, 2} {
		found, err := near.FindNeighbors(id)
		if err != nil {
			t.Fatal(err)
		}
		if len(found) != 0 {
			t.Errorf("max distance 2: expected no neighbours for cell %d, got %v", id, found)
		}
	}

	far, err := Prepare(vol, 4, pitch)
	if err != nil {
		t.Fatal(err)
	}
	a, err := far.FindNeighbors(1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := far.FindNeighbors(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 1 || a[0].ID != 2 {
		t.Fatalf("max distance 4: expected cell 1 to neighbour cell 2, got %v", a)
	}
	if len(b) != 1 || b[0].ID != 1 {
		t.Fatalf("max distance 4: expected cell 2 to neighbour cell 1, got %v", b)
	}
	if a[0].Distance != 4 || b[0].Distance != 4 {
		t.Errorf("Expected distance 4 both ways, got %f and %f", a[0].Distance, b[0].Distance)
	}
}

func TestFindNeighborsAnisotropic(t *testing.T) {
	vol := twoCubes(t)
	// x gap of 4 voxel steps at 0.5 = 2.0 physical units
	pitch := models.VoxelPitch{3, 3, 0.5}

	scene, err := Prepare(vol, 2, pitch)
	if err != nil {
		t.Fatal(err)
	}
	found, err := scene.FindNeighbors(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != 2 || found[0].Distance != 2 {
		t.Errorf("Expected neighbour 2 at distance 2, got %v", found)
	}

	scene, err = Prepare(vol, 1.9, pitch)
	if err != nil {
		t.Fatal(err)
	}
	found, err = scene.FindNeighbors(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Errorf("Expected no neighbours below the gap, got %v", found)
	}
}

func TestFindNeighborsErrors(t *testing.T) {
	vol := twoCubes(t)
	scene, err := Prepare(vol, 4, models.VoxelPitch{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := scene.FindNeighbors(99); !errors.Is(err, models.ErrUnknownCell) {
		t.Errorf("Expected ErrUnknownCell, got %v", err)
	}
	if _, err := FindNeighbors(1, vol, scene.Surface, scene.Halos, 0, scene.Pitch); !errors.Is(err, models.ErrDegenerateDistance) {
		t.Errorf("Expected ErrDegenerateDistance, got %v", err)
	}
	if _, err := Prepare(vol, -1, models.VoxelPitch{1, 1, 1}); !errors.Is(err, models.ErrDegenerateDistance) {
		t.Errorf("Expected ErrDegenerateDistance from Prepare, got %v", err)
	}
	if _, err := Prepare(vol, 1, models.VoxelPitch{1, -1, 1}); !errors.Is(err, models.ErrInputShape) {
		t.Errorf("Expected ErrInputShape from Prepare, got %v", err)
	}
}

func TestCellWithoutSurfaceHasNoNeighbors(t *testing.T) {
	vol := twoCubes(t)
	scene, err := Prepare(vol, 4, models.VoxelPitch{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	// a halo entry for a cell whose voxels are all interior or absent
	halos := make(map[uint32]models.Box)
	for id, b := range scene.Halos {
		halos[id] = b
	}
	halos[7] = vol.Shape.Full()

	found, err := FindNeighbors(7, vol, scene.Surface, halos, 4, scene.Pitch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Expected no neighbours, got %v", found)
	}
}

func TestMatchesBruteForce(t *testing.T) {
	pitch := models.VoxelPitch{1.5, 1, 0.75}
	vol := randomVolume(t, 5, models.Shape{14, 16, 18}, 25)
	want := bruteForce(vol, pitch)

	for _, d := range []float64{1, 2.25, 4} {
		scene, err := Prepare(vol, d, pitch)
		if err != nil {
			t.Fatal(err)
		}
		graph, err := scene.FindAll(context.Background(), Options{Workers: 4})
		if err != nil {
			t.Fatal(err)
		}

		got := make(map[models.Pair]float64)
		for _, r := range graph.Relations {
			got[r.Pair] = r.Distance
		}
		for p, dist := range want {
			if dist > d {
				if _, ok := got[p]; ok {
					t.Errorf("d=%v: pair %v at %f reported but beyond threshold", d, p, dist)
				}
				continue
			}
			gd, ok := got[p]
			if !ok {
				t.Errorf("d=%v: missing pair %v at distance %f", d, p, dist)
				continue
			}
			if math.Abs(gd-dist) > 1e-9 {
				t.Errorf("d=%v: pair %v expected distance %f, got %f", d, p, dist, gd)
			}
		}
	}
}

func TestSymmetry(t *testing.T) {
	vol := randomVolume(t, 9, models.Shape{12, 12, 12}, 30)
	scene, err := Prepare(vol, 2.5, models.VoxelPitch{1, 0.8, 1.2})
	if err != nil {
		t.Fatal(err)
	}

	direct := make(map[uint32]map[uint32]float64)
	for _, id := range scene.Boxes.IDs() {
		found, err := scene.FindNeighbors(id)
		if err != nil {
			t.Fatal(err)
		}
		direct[id] = make(map[uint32]float64)
		for _, n := range found {
			direct[id][n.ID] = n.Distance
		}
	}
	for a, ns := range direct {
		for b, d := range ns {
			back, ok := direct[b][a]
			if !ok {
				t.Errorf("%d lists %d but not the reverse", a, b)
				continue
			}
			if math.Abs(back-d) > 1e-9 {
				t.Errorf("distance %d->%d = %f but %d->%d = %f", a, b, d, b, a, back)
			}
		}
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	vol := randomVolume(t, 21, models.Shape{12, 14, 10}, 20)
	pitch := models.VoxelPitch{1, 1, 1}

	var previous map[models.Pair]bool
	for _, d := range []float64{0.5, 1, 1.5, 2, 3, 5} {
		scene, err := Prepare(vol, d, pitch)
		if err != nil {
			t.Fatal(err)
		}
		graph, err := scene.FindAll(context.Background(), Options{Workers: 2})
		if err != nil {
			t.Fatal(err)
		}
		current := make(map[models.Pair]bool)
		for _, p := range graph.Pairs() {
			current[p] = true
		}
		for p := range previous {
			if !current[p] {
				t.Errorf("pair %v lost when raising threshold to %v", p, d)
			}
		}
		previous = current
	}
}

func TestFindAllGraph(t *testing.T) {
	vol := twoCubes(t)
	fillBox(vol, models.Box{Min: [3]int{0, 0, 0}, Max: [3]int{1, 1, 1}}, 3)

	scene, err := Prepare(vol, 4, models.VoxelPitch{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	var calls int
	graph, err := scene.FindAll(context.Background(), Options{
		Workers:  1,
		Progress: func(completed, total int, message string) { calls++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 progress calls, got %d", calls)
	}
	if len(graph.Relations) != 1 {
		t.Fatalf("Expected exactly one relation, got %v", graph.Relations)
	}
	if graph.Relations[0].Pair != models.NewPair(2, 1) {
		t.Errorf("Unexpected pair %v", graph.Relations[0].Pair)
	}
	if len(graph.Neighbors(3)) != 0 {
		t.Errorf("Expected cell 3 to be isolated, got %v", graph.Neighbors(3))
	}
	if _, ok := graph.Adjacency[3]; !ok {
		t.Errorf("Expected an adjacency entry for isolated cell 3")
	}
}

func TestFindAllCancelled(t *testing.T) {
	vol := randomVolume(t, 1, models.Shape{10, 10, 10}, 10)
	scene, err := Prepare(vol, 2, models.VoxelPitch{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := scene.FindAll(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFindAllCompletes(t *testing.T) {
	scene, err := Prepare(twoCubes(t), 4, models.VoxelPitch{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{0, 1, 4} {
		graph, err := scene.FindAll(context.Background(), Options{Workers: workers})
		if err != nil {
			t.Fatalf("workers=%d: expected no error, got %v", workers, err)
		}
		if graph == nil || len(graph.Relations) != 1 || graph.Relations[0].Distance != 4 {
			t.Errorf("workers=%d: expected one relation at distance 4, got %+v", workers, graph)
		}
	}
}

func TestBuildGraphDeduplicates(t *testing.T) {
	ids := []uint32{1, 2, 3}
	results := [][]models.Neighbor{
		{{ID: 2, Distance: 1.5}},
		{{ID: 1, Distance: 1.5}, {ID: 3, Distance: 2}},
		{},
	}
	g := BuildGraph(ids, results)
	if len(g.Relations) != 2 {
		t.Fatalf("Expected 2 relations, got %v", g.Relations)
	}
	if n := g.Neighbors(3); len(n) != 1 || n[0].ID != 2 {
		t.Errorf("Expected symmetric closure for cell 3, got %v", n)
	}
	if n := g.Neighbors(2); len(n) != 2 || n[0].ID != 1 || n[1].ID != 3 {
		t.Errorf("Expected sorted neighbours [1 3] for cell 2, got %v", n)
	}
}
