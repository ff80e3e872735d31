package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"interscellar/internal/models"
	"interscellar/pkg/cache"
	"interscellar/pkg/config"
	"interscellar/pkg/logging"
	"interscellar/pkg/pipeline"
	"interscellar/pkg/server"
	"interscellar/pkg/zarr"
)

func main() {
	configPath := flag.String("config", "interscellar.yaml", "YAML configuration file")
	input := flag.String("input", "", "Zarr v3 array holding the label volume")
	maxDistance := flag.Float64("max-distance", 1.0, "Surface-to-surface distance threshold in physical units")
	voxelSize := flag.String("voxel-size", "", "Voxel size as z,y,x (or one value for all axes)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: all available cores)")
	sqlitePath := flag.String("sqlite", "", "Write cells and neighbours to this SQLite database")
	csvPath := flag.String("csv", "", "Write the neighbour pairs to this CSV file")
	gapVolumes := flag.Bool("gap-volumes", false, "Compute the gap volume of every neighbouring pair")
	slicesDir := flag.String("extract-slices", "", "Save label slices along all axes to this directory")
	serve := flag.Bool("serve", false, "Serve the volume over HTTP instead of running once")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags given on the command line override the config file.
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.ZarrPath = *input
		case "max-distance":
			cfg.Processing.MaxDistance = *maxDistance
		case "voxel-size":
			sizes, err := parseVoxelSize(*voxelSize)
			if err != nil {
				flagErr = err
			}
			cfg.Processing.VoxelSize = sizes
		case "workers":
			cfg.Processing.NumWorkers = *workers
		case "sqlite":
			cfg.Output.SQLitePath = *sqlitePath
		case "csv":
			cfg.Output.CSVPath = *csvPath
		case "gap-volumes":
			cfg.Processing.ComputeGapVolumes = *gapVolumes
		case "extract-slices":
			cfg.Output.SlicesDir = *slicesDir
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if flagErr != nil {
		log.Fatalf("Invalid -voxel-size: %v", flagErr)
	}
	if cfg.Processing.NumWorkers <= 0 {
		cfg.Processing.NumWorkers = config.DefaultConfig().Processing.NumWorkers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Input.ZarrPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	logCfg := &logging.Config{Logfile: cfg.Log.Logfile, MaxSize: cfg.Log.MaxSize, MaxAge: cfg.Log.MaxAge}
	logCfg.SetLogger()
	defer logging.Shutdown()
	logging.SetVerbose(cfg.Output.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		if err := runServer(ctx, cfg); err != nil {
			logging.Errorf("Server failed: %v", err)
			os.Exit(1)
		}
		return
	}
	if err := runOnce(ctx, cfg); err != nil {
		logging.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
}

func parseVoxelSize(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 1 && len(parts) != 3 {
		return nil, fmt.Errorf("expected 1 or 3 values, got %d", len(parts))
	}
	sizes := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		sizes[i] = v
	}
	return sizes, nil
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	var sizes []float64
	if len(cfg.Processing.VoxelSize) > 0 {
		pitch, err := cfg.Pitch()
		if err != nil {
			return err
		}
		sizes = pitch[:]
	}

	params := &pipeline.Params{
		InputPath:         cfg.Input.ZarrPath,
		MaxDistance:       cfg.Processing.MaxDistance,
		VoxelSize:         sizes,
		NumWorkers:        cfg.Processing.NumWorkers,
		ComputeGapVolumes: cfg.Processing.ComputeGapVolumes,
		SQLitePath:        cfg.Output.SQLitePath,
		CSVPath:           cfg.Output.CSVPath,
		SlicesDir:         cfg.Output.SlicesDir,
		Progress: func(completed, total int, message string) {
			if completed == total || completed%1000 == 0 {
				logging.Debugf("%s: %s/%s", message, logging.Count(completed), logging.Count(total))
			}
		},
	}

	fmt.Println("Starting neighbour search...")
	startTime := time.Now()
	finder := pipeline.NewFinder(params)
	if err := finder.Process(ctx); err != nil {
		return err
	}
	summary := finder.GetSummary()

	fmt.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("=======================================\n")
	fmt.Printf("Cells:            %s\n", logging.Count(summary.Cells))
	fmt.Printf("Surface voxels:   %s\n", logging.Count(summary.SurfaceVoxels))
	fmt.Printf("Neighbour pairs:  %s\n", logging.Count(summary.Pairs))
	fmt.Printf("Mean degree:      %.3f\n", summary.MeanDegree)
	fmt.Printf("Distance:         mean %.3f, std %.3f, median %.3f\n",
		summary.MeanDistance, summary.StdDistance, summary.MedianDistance)
	fmt.Printf("Touching pairs:   %s (contact area %.3f)\n", logging.Count(summary.TouchingPairs), summary.TotalContactArea)
	if cfg.Processing.ComputeGapVolumes {
		fmt.Printf("Total gap volume: %.3f\n", summary.TotalGapVolume)
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	vol, attrs, err := zarr.ReadLabelVolume(cfg.Input.ZarrPath)
	if err != nil {
		return fmt.Errorf("failed to load volume: %w", err)
	}
	pitch, err := cfg.Pitch()
	if err != nil {
		return err
	}
	if len(cfg.Processing.VoxelSize) == 0 && len(attrs.VoxelSize) > 0 {
		if p, err := models.NewVoxelPitch(attrs.VoxelSize...); err == nil {
			pitch = p
		}
	}
	logging.Infof("Loaded volume %v (%s) with voxel size %v", vol.Shape,
		logging.Bytes(uint64(len(vol.Data))*4), pitch)

	cacheManager, err := cache.NewManager(cfg.Cache.Entries)
	if err != nil {
		return err
	}
	router := server.NewRouter(server.RouterConfig{
		Volume:      vol,
		VolumeKey:   cfg.Input.ZarrPath,
		Pitch:       pitch,
		MaxDistance: cfg.Processing.MaxDistance,
		Workers:     cfg.Processing.NumWorkers,
		Cache:       cacheManager,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logging.Infof("Listening on %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Infof("Shutting down...")
		return srv.Shutdown(shutdownCtx)
	}
}
