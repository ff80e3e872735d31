// Package pipeline runs a complete neighbour analysis of one label volume:
// loading, surface extraction, the parallel neighbour search, optional gap
// volumes, export and a summary of the result.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"interscellar/internal/models"
	"interscellar/pkg/export"
	"interscellar/pkg/geometry"
	"interscellar/pkg/logging"
	"interscellar/pkg/neighbors"
	"interscellar/pkg/visualization"
	"interscellar/pkg/zarr"
)

// Params holds the parameters of one run.
type Params struct {
	// InputPath is the Zarr v3 array holding the label volume. It is ignored
	// when Volume is set.
	InputPath string

	// Volume is an already loaded label volume
	Volume *models.LabelVolume

	// MaxDistance is the surface-to-surface threshold in physical units
	MaxDistance float64

	// VoxelSize is the physical voxel size as (z, y, x). When empty the
	// store's voxel_size attribute is used, and failing that unit voxels.
	VoxelSize []float64

	// NumWorkers bounds the goroutines used by the parallel steps.
	// Zero means all available cores.
	NumWorkers int

	ComputeGapVolumes bool

	// Outputs; empty paths are skipped
	SQLitePath string
	CSVPath    string
	SlicesDir  string

	// Progress, if set, receives per-cell progress of the neighbour search
	Progress neighbors.ProgressCallback
}

// Finder carries a run from input to results.
type Finder struct {
	params *Params

	vol      *models.LabelVolume
	pitch    models.VoxelPitch
	scene    *neighbors.Scene
	graph    *neighbors.Graph
	gaps     map[models.Pair]float64
	contacts map[models.Pair]float64
	summary  Summary
}

// NewFinder creates a finder for the given parameters.
func NewFinder(params *Params) *Finder {
	return &Finder{params: params}
}

// Process runs the complete pipeline
func (f *Finder) Process(ctx context.Context) error {
	start := time.Now()

	logging.Infof("Step 1: Loading label volume...")
	if err := f.loadVolume(); err != nil {
		return fmt.Errorf("failed to load volume: %w", err)
	}
	logging.Infof("Volume %v with voxel size %v (%s voxels)", f.vol.Shape, f.pitch, logging.Count(f.vol.Shape.Len()))

	logging.Infof("Step 2: Computing surfaces and halo boxes...")
	scene, err := neighbors.Prepare(f.vol, f.params.MaxDistance, f.pitch)
	if err != nil {
		return fmt.Errorf("failed to prepare scene: %w", err)
	}
	f.scene = scene
	logging.Infof("Found %s cells", logging.Count(len(scene.Boxes)))

	logging.Infof("Step 3: Searching neighbours within %g...", f.params.MaxDistance)
	graph, err := scene.FindAll(ctx, neighbors.Options{
		Workers:  f.params.NumWorkers,
		Progress: f.params.Progress,
	})
	if err != nil {
		return fmt.Errorf("neighbour search failed: %w", err)
	}
	f.graph = graph
	f.contacts = geometry.ContactAreas(f.vol, f.pitch)

	if f.params.ComputeGapVolumes {
		logging.Infof("Step 4: Computing gap volumes of %s pairs...", logging.Count(len(graph.Relations)))
		gaps, err := geometry.ComputeGapVolumes(ctx, scene, graph.Pairs(), f.params.NumWorkers)
		if err != nil {
			return fmt.Errorf("gap volumes failed: %w", err)
		}
		f.gaps = gaps
	}

	logging.Infof("Step 5: Writing results...")
	if err := f.export(); err != nil {
		return err
	}

	f.summary = Summarize(scene, graph, f.gaps, f.contacts)
	logging.Infof("Done in %s: %s pairs among %s cells", time.Since(start).Round(time.Millisecond),
		logging.Count(f.summary.Pairs), logging.Count(f.summary.Cells))
	return nil
}

func (f *Finder) loadVolume() error {
	var attrs *zarr.Attributes
	if f.params.Volume != nil {
		f.vol = f.params.Volume
	} else {
		if f.params.InputPath == "" {
			return fmt.Errorf("no input volume given")
		}
		vol, a, err := zarr.ReadLabelVolume(f.params.InputPath)
		if err != nil {
			return err
		}
		f.vol, attrs = vol, a
	}

	sizes := f.params.VoxelSize
	if len(sizes) == 0 && attrs != nil && len(attrs.VoxelSize) > 0 {
		sizes = attrs.VoxelSize
	}
	if len(sizes) == 0 {
		sizes = []float64{1, 1, 1}
	}
	pitch, err := models.NewVoxelPitch(sizes...)
	if err != nil {
		return err
	}
	f.pitch = pitch
	return nil
}

func (f *Finder) export() error {
	if path := f.params.SQLitePath; path != "" {
		store, err := export.NewStore(path)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveCells(f.Cells()); err != nil {
			return fmt.Errorf("failed to save cells: %w", err)
		}
		if err := store.SaveNeighbors(f.graph.Relations, f.gaps); err != nil {
			return fmt.Errorf("failed to save neighbours: %w", err)
		}
		if err := store.SaveContacts(f.contacts); err != nil {
			return fmt.Errorf("failed to save contacts: %w", err)
		}
		logging.Infof("Saved neighbour table to %s", path)
	}

	if path := f.params.CSVPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := export.WriteNeighborsCSV(file, f.graph.Relations, f.gaps); err != nil {
			file.Close()
			return fmt.Errorf("failed to write csv: %w", err)
		}
		if err := file.Close(); err != nil {
			return err
		}
		logging.Infof("Saved neighbour list to %s", path)
	}

	if dir := f.params.SlicesDir; dir != "" {
		viewer := visualization.NewViewer(f.vol, f.scene.Surface)
		for _, axis := range []string{"x", "y", "z"} {
			n, err := viewer.SaveSliceSequence(axis, filepath.Join(dir, axis))
			if err != nil {
				logging.Warningf("Failed to save %s-axis slices: %v", axis, err)
				continue
			}
			logging.Debugf("Saved %d %s-axis slices", n, axis)
		}
	}
	return nil
}

// Cells describes every cell of the processed volume, sorted by id.
func (f *Finder) Cells() []export.CellRecord {
	if f.scene == nil {
		return nil
	}
	ids := f.scene.Boxes.IDs()
	volumes := geometry.CellVolumes(f.scene.Voxels, f.pitch)
	cells := make([]export.CellRecord, len(ids))
	for i, id := range ids {
		cells[i] = export.CellRecord{
			ID:     id,
			Voxels: f.scene.Voxels[id],
			Volume: volumes[id],
			Box:    f.scene.Boxes[id],
		}
	}
	return cells
}

// Scene returns the prepared scene, nil before Process.
func (f *Finder) Scene() *neighbors.Scene {
	return f.scene
}

// Graph returns the neighbour graph, nil before Process.
func (f *Finder) Graph() *neighbors.Graph {
	return f.graph
}

// GapVolumes returns the gap volume of every neighbouring pair, nil unless
// requested.
func (f *Finder) GapVolumes() map[models.Pair]float64 {
	return f.gaps
}

// ContactAreas returns the shared face area of every pair of touching cells.
func (f *Finder) ContactAreas() map[models.Pair]float64 {
	return f.contacts
}

// Pitch returns the voxel size the run used.
func (f *Finder) Pitch() models.VoxelPitch {
	return f.pitch
}

// GetSummary returns the run summary.
func (f *Finder) GetSummary() Summary {
	return f.summary
}
