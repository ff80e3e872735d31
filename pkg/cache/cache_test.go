package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"interscellar/internal/models"
	"interscellar/pkg/neighbors"
)

func twoCubes(t *testing.T) *models.LabelVolume {
	t.Helper()
	shape := models.Shape{10, 10, 12}
	vol, err := models.NewLabelVolume(make([]uint32, shape.Len()), shape)
	if err != nil {
		t.Fatal(err)
	}
	for z := 4; z < 6; z++ {
		for y := 4; y < 6; y++ {
			for x := 2; x < 4; x++ {
				vol.Data[shape.Index(z, y, x)] = 1
			}
			for x := 7; x < 9; x++ {
				vol.Data[shape.Index(z, y, x)] = 2
			}
		}
	}
	return vol
}

func TestSceneReusesArtifacts(t *testing.T) {
	m, err := NewManager(2)
	if err != nil {
		t.Fatal(err)
	}
	vol := twoCubes(t)
	pitch := models.VoxelPitch{1, 1, 1}

	near, err := m.Scene("a", vol, 2, pitch)
	if err != nil {
		t.Fatal(err)
	}
	far, err := m.Scene("a", vol, 4, pitch)
	if err != nil {
		t.Fatal(err)
	}
	if near.Surface != far.Surface {
		t.Error("Expected both scenes to share the cached surface mask")
	}
	if near.Halos[1] == far.Halos[1] {
		t.Error("Expected halo boxes to depend on the threshold")
	}

	found, err := far.FindNeighbors(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != 2 || found[0].Distance != 4 {
		t.Errorf("Expected cell 2 at distance 4, got %v", found)
	}
	if got := m.Stats()["artifact_cache_len"]; got != 1 {
		t.Errorf("Expected 1 cached volume, got %v", got)
	}
}

func TestSceneRejectsBadThreshold(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Scene("a", twoCubes(t), 0, models.VoxelPitch{1, 1, 1}); !errors.Is(err, models.ErrDegenerateDistance) {
		t.Errorf("Expected ErrDegenerateDistance, got %v", err)
	}
	if got := m.Stats()["artifact_cache_len"]; got != 0 {
		t.Errorf("Expected nothing cached, got %v", got)
	}
}

func TestGraphCached(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatal(err)
	}
	vol := twoCubes(t)
	pitch := models.VoxelPitch{1, 1, 1}

	var wg sync.WaitGroup
	graphs := make([]*neighbors.Graph, 4)
	for i := range graphs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := m.Graph(context.Background(), "a", vol, 4, pitch, neighbors.Options{Workers: 2})
			if err != nil {
				t.Error(err)
				return
			}
			graphs[i] = g
		}()
	}
	wg.Wait()

	for _, g := range graphs {
		if g == nil || len(g.Relations) != 1 {
			t.Fatalf("Expected one relation, got %+v", g)
		}
	}
	again, err := m.Graph(context.Background(), "a", vol, 4, pitch, neighbors.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if again != graphs[0] {
		t.Error("Expected the cached graph to be returned")
	}

	m.Purge()
	if got := m.Stats()["graph_cache_len"]; got != 0 {
		t.Errorf("Expected empty cache after purge, got %v", got)
	}
}

func TestEviction(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatal(err)
	}
	vol := twoCubes(t)
	first, err := m.Artifacts("a", vol)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Artifacts("b", vol); err != nil {
		t.Fatal(err)
	}
	again, err := m.Artifacts("a", vol)
	if err != nil {
		t.Fatal(err)
	}
	if again == first {
		t.Error("Expected the first entry to have been evicted")
	}
}

func TestKeys(t *testing.T) {
	vol := twoCubes(t)
	if VolumeKey(vol) != VolumeKey(twoCubes(t)) {
		t.Error("Expected equal volumes to share a key")
	}
	other := twoCubes(t)
	other.Data[0] = 9
	if VolumeKey(vol) == VolumeKey(other) {
		t.Error("Expected different volumes to get different keys")
	}
	if GraphKey("v", 2, models.VoxelPitch{1, 1, 0.5}) != "v:d=2:p=1/1/0.5" {
		t.Errorf("Unexpected graph key %q", GraphKey("v", 2, models.VoxelPitch{1, 1, 0.5}))
	}
}

func TestGraphSurvivesCancelledCaller(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatal(err)
	}
	vol := twoCubes(t)
	pitch := models.VoxelPitch{1, 1, 1}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g, err := m.Graph(cancelled, "a", vol, 4, pitch, neighbors.Options{Workers: 1})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled or a graph, got %v", err)
		}
		if err == nil && len(g.Relations) != 1 {
			t.Errorf("Expected one relation, got %v", g.Relations)
		}
	}()
	go func() {
		defer wg.Done()
		g, err := m.Graph(context.Background(), "a", vol, 4, pitch, neighbors.Options{Workers: 1})
		if err != nil {
			t.Errorf("Expected the search to finish for a live caller, got %v", err)
			return
		}
		if len(g.Relations) != 1 {
			t.Errorf("Expected one relation, got %v", g.Relations)
		}
	}()
	wg.Wait()

	if _, err := m.Graph(context.Background(), "a", vol, 4, pitch, neighbors.Options{}); err != nil {
		t.Fatal(err)
	}
	if got := m.Stats()["graph_cache_len"]; got != 1 {
		t.Errorf("Expected the shared graph to be cached, got %v", got)
	}
}
