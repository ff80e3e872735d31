// Package config provides configuration loading and management for interscellar.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"interscellar/internal/models"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers bounds how many cells are searched concurrently
		NumWorkers int `yaml:"numWorkers"`

		// MaxDistance is the surface-to-surface threshold in physical units
		MaxDistance float64 `yaml:"maxDistance"`

		// VoxelSize is the physical size of one voxel as (z, y, x).
		// One value applies to all three axes. When empty the voxel_size
		// attribute of the input is used, and failing that unit voxels.
		VoxelSize []float64 `yaml:"voxelSize"`

		// ComputeGapVolumes enables the gap volume of every neighbouring pair
		ComputeGapVolumes bool `yaml:"computeGapVolumes"`
	} `yaml:"processing"`

	Input struct {
		// ZarrPath is the Zarr v3 array holding the label volume
		ZarrPath string `yaml:"zarrPath"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		SQLitePath string `yaml:"sqlitePath"`
		CSVPath    string `yaml:"csvPath"`

		// SlicesDir, when set, receives label slices with the surface highlighted
		SlicesDir string `yaml:"slicesDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	Cache struct {
		// Entries is how many prepared volumes the service keeps
		Entries int `yaml:"entries"`
	} `yaml:"cache"`

	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"corsOrigins"`
	} `yaml:"server"`

	Log struct {
		// Logfile, when set, redirects logging to a rotated file
		Logfile string `yaml:"logfile"`

		// MaxSize is the size in MB a log file may reach before rotation
		MaxSize int `yaml:"maxSize"`

		// MaxAge is the number of days rotated files are kept
		MaxAge int `yaml:"maxAge"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Processing.MaxDistance = 1.0
	cfg.applyDefaults()
	cfg.Output.Verbose = true
	return cfg
}

// applyDefaults fills every zero-valued setting that has a default.
func (c *Config) applyDefaults() {
	if c.Processing.NumWorkers <= 0 {
		c.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	}
	if c.Cache.Entries <= 0 {
		c.Cache.Entries = 4
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Log.MaxSize <= 0 {
		c.Log.MaxSize = 500
	}
	if c.Log.MaxAge <= 0 {
		c.Log.MaxAge = 30
	}
}

// Pitch returns the configured voxel size, unit voxels when none is set.
func (c *Config) Pitch() (models.VoxelPitch, error) {
	sizes := c.Processing.VoxelSize
	switch len(sizes) {
	case 0:
		return models.VoxelPitch{1, 1, 1}, nil
	case 1:
		sizes = []float64{sizes[0], sizes[0], sizes[0]}
	}
	return models.NewVoxelPitch(sizes...)
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if err := models.ValidateDistance(c.Processing.MaxDistance); err != nil {
		return fmt.Errorf("processing.maxDistance: %w", err)
	}
	if _, err := c.Pitch(); err != nil {
		return fmt.Errorf("processing.voxelSize: %w", err)
	}
	if c.Processing.NumWorkers <= 0 {
		return fmt.Errorf("processing.numWorkers must be positive, got %d", c.Processing.NumWorkers)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
