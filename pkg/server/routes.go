// Package server exposes the neighbour search of one label volume over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"interscellar/internal/models"
	"interscellar/pkg/cache"
	"interscellar/pkg/export"
	"interscellar/pkg/geometry"
	"interscellar/pkg/logging"
	"interscellar/pkg/neighbors"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	// Volume is the label volume served, VolumeKey its cache key
	Volume    *models.LabelVolume
	VolumeKey string

	Pitch models.VoxelPitch

	// MaxDistance applies when a request has no max_distance parameter
	MaxDistance float64

	Workers     int
	Cache       *cache.Manager
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.VolumeKey == "" {
		cfg.VolumeKey = cache.VolumeKey(cfg.Volume)
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/stats", statsHandler(cfg))
	r.Get("/cells", cellsHandler(cfg))
	r.Get("/cells/{id}", cellHandler(cfg))
	r.Get("/cells/{id}/neighbors", cellNeighborsHandler(cfg))
	r.Get("/pairs", pairsHandler(cfg))

	return r
}

// pairResponse is one entry of the /pairs listing.
type pairResponse struct {
	models.Relation
	GapVolume *float64 `json:"gap_volume,omitempty"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Errorf("failed to encode response: %v", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrDegenerateDistance), errors.Is(err, models.ErrInputShape):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrUnknownCell):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		logging.Errorf("request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// maxDistanceParam reads the optional max_distance query parameter.
func maxDistanceParam(cfg RouterConfig, r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("max_distance")
	if raw == "" {
		return cfg.MaxDistance, nil
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, models.ErrDegenerateDistance
	}
	return d, models.ValidateDistance(d)
}

func cellIDParam(r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint32(id), true
}

func cellRecord(a *cache.Artifacts, id uint32, pitch models.VoxelPitch) export.CellRecord {
	n := a.Index.Voxels[id]
	return export.CellRecord{
		ID:     id,
		Voxels: n,
		Volume: float64(n) * geometry.VoxelVolume(pitch),
		Box:    a.Index.Boxes[id],
	}
}

func statsHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := cfg.Cache.Stats()
		stats["shape"] = cfg.Volume.Shape
		stats["voxel_size"] = cfg.Pitch
		stats["max_distance"] = cfg.MaxDistance
		writeJSON(w, stats)
	}
}

func cellsHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := cfg.Cache.Artifacts(cfg.VolumeKey, cfg.Volume)
		if err != nil {
			writeError(w, err)
			return
		}
		ids := a.Index.Boxes.IDs()
		cells := make([]export.CellRecord, len(ids))
		for i, id := range ids {
			cells[i] = cellRecord(a, id, cfg.Pitch)
		}
		writeJSON(w, map[string]interface{}{
			"count": len(cells),
			"cells": cells,
		})
	}
}

func cellHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := cellIDParam(r)
		if !ok {
			http.Error(w, "invalid cell id: "+chi.URLParam(r, "id"), http.StatusBadRequest)
			return
		}
		a, err := cfg.Cache.Artifacts(cfg.VolumeKey, cfg.Volume)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, found := a.Index.Boxes[id]; !found {
			http.Error(w, "cell not found: "+strconv.FormatUint(uint64(id), 10), http.StatusNotFound)
			return
		}
		writeJSON(w, cellRecord(a, id, cfg.Pitch))
	}
}

func cellNeighborsHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := cellIDParam(r)
		if !ok {
			http.Error(w, "invalid cell id: "+chi.URLParam(r, "id"), http.StatusBadRequest)
			return
		}
		maxDistance, err := maxDistanceParam(cfg, r)
		if err != nil {
			writeError(w, err)
			return
		}
		scene, err := cfg.Cache.Scene(cfg.VolumeKey, cfg.Volume, maxDistance, cfg.Pitch)
		if err != nil {
			writeError(w, err)
			return
		}
		found, err := scene.FindNeighbors(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"cell":         id,
			"max_distance": maxDistance,
			"neighbors":    found,
		})
	}
}

func pairsHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxDistance, err := maxDistanceParam(cfg, r)
		if err != nil {
			writeError(w, err)
			return
		}
		graph, err := cfg.Cache.Graph(r.Context(), cfg.VolumeKey, cfg.Volume, maxDistance, cfg.Pitch,
			neighbors.Options{Workers: cfg.Workers})
		if err != nil {
			writeError(w, err)
			return
		}

		var gaps map[models.Pair]float64
		if withGaps, _ := strconv.ParseBool(r.URL.Query().Get("gap_volumes")); withGaps {
			scene, err := cfg.Cache.Scene(cfg.VolumeKey, cfg.Volume, maxDistance, cfg.Pitch)
			if err != nil {
				writeError(w, err)
				return
			}
			gaps, err = geometry.ComputeGapVolumes(r.Context(), scene, graph.Pairs(), cfg.Workers)
			if err != nil {
				writeError(w, err)
				return
			}
		}

		pairs := make([]pairResponse, len(graph.Relations))
		for i, rel := range graph.Relations {
			pairs[i].Relation = rel
			if v, ok := gaps[rel.Pair]; ok {
				pairs[i].GapVolume = &v
			}
		}
		writeJSON(w, map[string]interface{}{
			"max_distance": maxDistance,
			"count":        len(pairs),
			"pairs":        pairs,
		})
	}
}
