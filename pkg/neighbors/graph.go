package neighbors

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"interscellar/internal/models"
)

// ProgressCallback is a function that reports progress of a run
type ProgressCallback func(completed, total int, message string)

// Options controls a full-volume neighbour search.
type Options struct {
	// Workers bounds the number of cells searched concurrently.
	// Zero means runtime.NumCPU().
	Workers int

	// Progress, if set, is called after each finished cell.
	Progress ProgressCallback
}

// Graph is the symmetric neighbour relation of all cells in a scene.
type Graph struct {
	// Adjacency lists the neighbours of every cell, sorted by id. Cells
	// without neighbours map to an empty list.
	Adjacency map[uint32][]models.Neighbor

	// Relations holds each neighbouring pair exactly once, sorted.
	Relations []models.Relation
}

// Neighbors returns the neighbours of id.
func (g *Graph) Neighbors(id uint32) []models.Neighbor {
	return g.Adjacency[id]
}

// Pairs returns the canonical pairs of the relation.
func (g *Graph) Pairs() []models.Pair {
	pairs := make([]models.Pair, len(g.Relations))
	for i, r := range g.Relations {
		pairs[i] = r.Pair
	}
	return pairs
}

// FindAll searches every cell of the scene. Cells are independent, so they
// are processed by a bounded pool of goroutines, each writing only to its own
// result slot. Cancelling ctx stops the remaining cells.
func (s *Scene) FindAll(ctx context.Context, opts Options) (*Graph, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ids := s.Boxes.IDs()
	results := make([][]models.Neighbor, len(ids))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found, err := s.FindNeighbors(id)
			if err != nil {
				return err
			}
			results[i] = found
			if opts.Progress != nil {
				opts.Progress(int(completed.Add(1)), len(ids), "searching neighbours")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// gctx is always cancelled once Wait returns; only the caller's ctx
	// tells whether cells were skipped.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return BuildGraph(ids, results), nil
}

// BuildGraph merges per-cell results into one symmetric relation. A pair
// seen from both of its cells is recorded once.
func BuildGraph(ids []uint32, results [][]models.Neighbor) *Graph {
	seen := make(map[models.Pair]float64)
	for i, id := range ids {
		for _, n := range results[i] {
			p := models.NewPair(id, n.ID)
			if d, ok := seen[p]; !ok || n.Distance < d {
				seen[p] = n.Distance
			}
		}
	}

	g := &Graph{
		Adjacency: make(map[uint32][]models.Neighbor, len(ids)),
		Relations: make([]models.Relation, 0, len(seen)),
	}
	for _, id := range ids {
		g.Adjacency[id] = []models.Neighbor{}
	}
	for p, d := range seen {
		g.Relations = append(g.Relations, models.Relation{Pair: p, Distance: d})
		g.Adjacency[p.A] = append(g.Adjacency[p.A], models.Neighbor{ID: p.B, Distance: d})
		g.Adjacency[p.B] = append(g.Adjacency[p.B], models.Neighbor{ID: p.A, Distance: d})
	}

	sort.Slice(g.Relations, func(i, j int) bool {
		if g.Relations[i].A != g.Relations[j].A {
			return g.Relations[i].A < g.Relations[j].A
		}
		return g.Relations[i].B < g.Relations[j].B
	})
	for id, list := range g.Adjacency {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		g.Adjacency[id] = list
	}
	return g
}
