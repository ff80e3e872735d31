package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"interscellar/internal/models"
)

// WriteLabelVolume stores vol as a uint32 Zarr v3 array at arrayPath, split
// into chunks of the given shape and compressed with zstd. Chunks holding
// only background are not written.
func WriteLabelVolume(arrayPath string, vol *models.LabelVolume, chunk [3]int, attrs *Attributes) error {
	for d, c := range chunk {
		if c <= 0 {
			return fmt.Errorf("invalid chunk shape at dim %d: %d", d, c)
		}
	}

	meta := &ArrayMeta{
		ZarrFormat: 3,
		NodeType:   "array",
		Shape:      vol.Shape[:],
		DataType:   "uint32",
		FillValue:  0,
		Codecs: []Codec{
			{Name: "bytes", Configuration: map[string]interface{}{"endian": "little"}},
			{Name: "zstd", Configuration: map[string]interface{}{"level": 3, "checksum": false}},
		},
		Attributes: attrs,
	}
	meta.ChunkGrid.Name = "regular"
	meta.ChunkGrid.Configuration.ChunkShape = chunk[:]
	meta.ChunkKeyEncoding.Name = "default"
	meta.ChunkKeyEncoding.Configuration.Separator = "/"

	if err := os.MkdirAll(arrayPath, 0755); err != nil {
		return fmt.Errorf("error creating array directory: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling zarr.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(arrayPath, "zarr.json"), data, 0644); err != nil {
		return fmt.Errorf("error writing zarr.json: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()

	shape := vol.Shape
	buf := make([]byte, chunk[0]*chunk[1]*chunk[2]*4)
	for cz := 0; cz < ceilDiv(shape[0], chunk[0]); cz++ {
		for cy := 0; cy < ceilDiv(shape[1], chunk[1]); cy++ {
			for cx := 0; cx < ceilDiv(shape[2], chunk[2]); cx++ {
				idx := [3]int{cz, cy, cx}
				if !packChunk(buf, vol, idx, chunk) {
					continue
				}
				path := chunkPath(arrayPath, meta.chunkKey(idx[:]))
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return fmt.Errorf("error creating chunk directory: %w", err)
				}
				if err := os.WriteFile(path, encoder.EncodeAll(buf, nil), 0644); err != nil {
					return fmt.Errorf("error writing chunk: %w", err)
				}
			}
		}
	}
	return nil
}

// packChunk fills buf with one little endian chunk, padding beyond the edge
// of the volume with zeros. It reports whether any label is non-zero.
func packChunk(buf []byte, vol *models.LabelVolume, idx, chunk [3]int) bool {
	clear(buf)
	shape := vol.Shape
	origin := [3]int{idx[0] * chunk[0], idx[1] * chunk[1], idx[2] * chunk[2]}
	found := false
	for z := 0; z < chunk[0] && origin[0]+z < shape[0]; z++ {
		for y := 0; y < chunk[1] && origin[1]+y < shape[1]; y++ {
			row := shape.Index(origin[0]+z, origin[1]+y, origin[2])
			off := (z*chunk[1] + y) * chunk[2] * 4
			for x := 0; x < chunk[2] && origin[2]+x < shape[2]; x++ {
				label := vol.Data[row+x]
				if label != 0 {
					found = true
				}
				binary.LittleEndian.PutUint32(buf[off+x*4:], label)
			}
		}
	}
	return found
}
