// Package cache keeps the threshold-independent artifacts of a volume (its
// surface mask and cell index) so that repeated queries with different
// distances only recompute the halo boxes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"interscellar/internal/models"
	"interscellar/pkg/bbox"
	"interscellar/pkg/neighbors"
	"interscellar/pkg/surface"
)

// Artifacts are computed once per volume.
type Artifacts struct {
	Surface *models.SurfaceMask
	Index   *bbox.CellIndex
}

// Manager manages artifact, scene and graph caches.
type Manager struct {
	artifacts *lru.Cache[string, *Artifacts]
	graphs    *lru.Cache[string, *neighbors.Graph]
	group     singleflight.Group
}

// NewManager creates a cache holding up to entries volumes and as many
// graphs per kind.
func NewManager(entries int) (*Manager, error) {
	artifacts, err := lru.New[string, *Artifacts](entries)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache: %w", err)
	}
	graphs, err := lru.New[string, *neighbors.Graph](entries * 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph cache: %w", err)
	}
	return &Manager{artifacts: artifacts, graphs: graphs}, nil
}

// Artifacts returns the cached artifacts for key, computing them from vol
// on a miss. Concurrent misses for one key compute once.
func (m *Manager) Artifacts(key string, vol *models.LabelVolume) (*Artifacts, error) {
	if a, ok := m.artifacts.Get(key); ok {
		return a, nil
	}
	v, err, _ := m.group.Do("artifacts:"+key, func() (interface{}, error) {
		if a, ok := m.artifacts.Get(key); ok {
			return a, nil
		}
		a := &Artifacts{
			Surface: surface.ComputeGlobalSurface(vol),
			Index:   bbox.Index(vol),
		}
		m.artifacts.Add(key, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifacts), nil
}

// Scene builds a neighbour scene for vol from cached artifacts. Only the halo
// boxes are derived from maxDistance and pitch.
func (m *Manager) Scene(key string, vol *models.LabelVolume, maxDistance float64, pitch models.VoxelPitch) (*neighbors.Scene, error) {
	if err := models.ValidateDistance(maxDistance); err != nil {
		return nil, err
	}
	if err := pitch.Validate(); err != nil {
		return nil, err
	}
	a, err := m.Artifacts(key, vol)
	if err != nil {
		return nil, err
	}
	return neighbors.NewScene(vol, a.Surface, a.Index, maxDistance, pitch)
}

// Graph returns the full neighbour graph of vol for one threshold, searching
// on a miss. Concurrent misses share one search. A caller whose ctx ends
// stops waiting, but the search keeps running for the others.
func (m *Manager) Graph(ctx context.Context, key string, vol *models.LabelVolume, maxDistance float64, pitch models.VoxelPitch, opts neighbors.Options) (*neighbors.Graph, error) {
	gk := GraphKey(key, maxDistance, pitch)
	if g, ok := m.graphs.Get(gk); ok {
		return g, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan("graph:"+gk, func() (interface{}, error) {
		scene, err := m.Scene(key, vol, maxDistance, pitch)
		if err != nil {
			return nil, err
		}
		g, err := scene.FindAll(shared, opts)
		if err != nil {
			return nil, err
		}
		m.graphs.Add(gk, g)
		return g, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*neighbors.Graph), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Purge drops every cached entry.
func (m *Manager) Purge() {
	m.artifacts.Purge()
	m.graphs.Purge()
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"artifact_cache_len": m.artifacts.Len(),
		"graph_cache_len":    m.graphs.Len(),
	}
}

// GraphKey generates a cache key for a graph of a volume.
func GraphKey(volumeKey string, maxDistance float64, pitch models.VoxelPitch) string {
	return fmt.Sprintf("%s:d=%g:p=%g/%g/%g", volumeKey, maxDistance, pitch[0], pitch[1], pitch[2])
}

// VolumeKey derives a content key for volumes that have no natural name.
func VolumeKey(vol *models.LabelVolume) string {
	h := sha256.New()
	var buf [4]byte
	for _, d := range vol.Shape {
		binary.LittleEndian.PutUint32(buf[:], uint32(d))
		h.Write(buf[:])
	}
	for _, v := range vol.Data {
		binary.LittleEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}
	return "vol:" + hex.EncodeToString(h.Sum(nil))[:16]
}
