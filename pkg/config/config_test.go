package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"interscellar/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.NumWorkers != runtime.NumCPU() {
		t.Errorf("Expected %d workers, got %d", runtime.NumCPU(), cfg.Processing.NumWorkers)
	}
	if cfg.Processing.MaxDistance != 1.0 {
		t.Errorf("Expected max distance 1.0, got %f", cfg.Processing.MaxDistance)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected server address :8080, got %s", cfg.Server.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if pitch, err := cfg.Pitch(); err != nil || pitch != (models.VoxelPitch{1, 1, 1}) {
		t.Errorf("Expected unit voxels by default, got %v %v", pitch, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got %v", err)
	}
	if cfg.Cache.Entries != 4 {
		t.Errorf("Expected 4 cache entries, got %d", cfg.Cache.Entries)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `processing:
  numWorkers: 3
  maxDistance: 2.5
  voxelSize: [2.0, 0.5, 0.5]
  computeGapVolumes: true
input:
  zarrPath: /data/labels.zarr
output:
  csvPath: out.csv
log:
  maxAge: 7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Processing.NumWorkers != 3 || cfg.Processing.MaxDistance != 2.5 || !cfg.Processing.ComputeGapVolumes {
		t.Errorf("Processing section not loaded: %+v", cfg.Processing)
	}
	pitch, err := cfg.Pitch()
	if err != nil {
		t.Fatal(err)
	}
	if pitch != (models.VoxelPitch{2, 0.5, 0.5}) {
		t.Errorf("Unexpected pitch %v", pitch)
	}
	if cfg.Input.ZarrPath != "/data/labels.zarr" || cfg.Output.CSVPath != "out.csv" {
		t.Errorf("Paths not loaded: %+v %+v", cfg.Input, cfg.Output)
	}
	if cfg.Log.MaxAge != 7 || cfg.Log.MaxSize != 500 {
		t.Errorf("Expected maxAge 7 and default maxSize 500, got %d and %d", cfg.Log.MaxAge, cfg.Log.MaxSize)
	}
}

func TestLoadZeroMaxDistance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("processing:\n  maxDistance: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Processing.MaxDistance != 0 {
		t.Errorf("Expected the explicit 0 to be kept, got %f", cfg.Processing.MaxDistance)
	}
	if err := cfg.Validate(); !errors.Is(err, models.ErrDegenerateDistance) {
		t.Errorf("Expected ErrDegenerateDistance, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("processing: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestScalarVoxelSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.VoxelSize = []float64{0.25}
	pitch, err := cfg.Pitch()
	if err != nil {
		t.Fatal(err)
	}
	if pitch != (models.VoxelPitch{0.25, 0.25, 0.25}) {
		t.Errorf("Unexpected pitch %v", pitch)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.MaxDistance = -1
	if err := cfg.Validate(); !errors.Is(err, models.ErrDegenerateDistance) {
		t.Errorf("Expected ErrDegenerateDistance, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Processing.VoxelSize = []float64{1, 0, 1}
	if err := cfg.Validate(); !errors.Is(err, models.ErrInputShape) {
		t.Errorf("Expected ErrInputShape, got %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Processing.MaxDistance = 3
	cfg.Output.SQLitePath = "graph.db"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Processing.MaxDistance != 3 || loaded.Output.SQLitePath != "graph.db" {
		t.Errorf("Saved settings not reloaded: %+v", loaded)
	}
}
