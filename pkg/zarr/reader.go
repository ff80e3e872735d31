package zarr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"interscellar/internal/models"
)

// ReadLabelVolume loads the 3-D integer array at arrayPath as a label volume.
// Chunks absent from the store hold the array's fill value. The returned
// attributes are never nil.
func ReadLabelVolume(arrayPath string) (*models.LabelVolume, *Attributes, error) {
	meta, err := loadArrayMeta(arrayPath)
	if err != nil {
		return nil, nil, err
	}
	if err := meta.validate(); err != nil {
		return nil, nil, err
	}
	shape, err := models.ShapeFromDims(meta.Shape)
	if err != nil {
		return nil, nil, err
	}
	pipe, err := meta.pipeline()
	if err != nil {
		return nil, nil, err
	}
	size, decode, err := zarrDType(meta.DataType)
	if err != nil {
		return nil, nil, err
	}
	fill, err := meta.fillLabel()
	if err != nil {
		return nil, nil, err
	}

	data := make([]uint32, shape.Len())
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	vol, err := models.NewLabelVolume(data, shape)
	if err != nil {
		return nil, nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	chunk := [3]int(meta.ChunkGrid.Configuration.ChunkShape)
	grid := [3]int{
		ceilDiv(shape[0], chunk[0]),
		ceilDiv(shape[1], chunk[1]),
		ceilDiv(shape[2], chunk[2]),
	}

	// Chunks cover disjoint parts of the volume, so they are decoded in
	// parallel straight into place.
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for cz := 0; cz < grid[0]; cz++ {
		for cy := 0; cy < grid[1]; cy++ {
			for cx := 0; cx < grid[2]; cx++ {
				idx := [3]int{cz, cy, cx}
				g.Go(func() error {
					key := meta.chunkKey(idx[:])
					raw, err := os.ReadFile(chunkPath(arrayPath, key))
					if errors.Is(err, fs.ErrNotExist) {
						return nil
					}
					if err != nil {
						return fmt.Errorf("failed to read chunk %s: %w", key, err)
					}
					if pipe.zstd {
						raw, err = decoder.DecodeAll(raw, nil)
						if err != nil {
							return fmt.Errorf("zstd decompress of chunk %s failed: %w", key, err)
						}
					}
					if err := placeChunk(vol, raw, idx, chunk, size, decode, pipe); err != nil {
						return fmt.Errorf("chunk %s: %w", key, err)
					}
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	attrs := meta.Attributes
	if attrs == nil {
		attrs = &Attributes{}
	}
	return vol, attrs, nil
}

// placeChunk copies the in-bounds part of one decoded chunk into vol. Edge
// chunks are stored at full chunk size; the padding is ignored.
func placeChunk(vol *models.LabelVolume, raw []byte, idx, chunk [3]int, size int, decode labelDecoder, pipe pipeline) error {
	want := chunk[0] * chunk[1] * chunk[2] * size
	if len(raw) != want {
		return fmt.Errorf("decoded %d bytes, expected %d", len(raw), want)
	}
	shape := vol.Shape
	origin := [3]int{idx[0] * chunk[0], idx[1] * chunk[1], idx[2] * chunk[2]}
	for z := 0; z < chunk[0] && origin[0]+z < shape[0]; z++ {
		for y := 0; y < chunk[1] && origin[1]+y < shape[1]; y++ {
			row := shape.Index(origin[0]+z, origin[1]+y, origin[2])
			off := ((z*chunk[1] + y) * chunk[2]) * size
			for x := 0; x < chunk[2] && origin[2]+x < shape[2]; x++ {
				label, err := decode(raw[off+x*size:off+(x+1)*size], pipe.order)
				if err != nil {
					return err
				}
				vol.Data[row+x] = label
			}
		}
	}
	return nil
}
