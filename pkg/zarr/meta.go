// Package zarr reads and writes 3-D label volumes stored as Zarr v3 arrays.
package zarr

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrUnsupported is returned for arrays using features this package does
	// not decode, such as sharding or floating point data.
	ErrUnsupported = errors.New("unsupported zarr array")

	// ErrLabelRange is returned when a stored label is negative or does not
	// fit in 32 bits.
	ErrLabelRange = errors.New("label outside the uint32 range")
)

// Attributes are the user attributes this package understands.
type Attributes struct {
	// VoxelSize is the physical voxel size as (z, y, x)
	VoxelSize []float64 `json:"voxel_size,omitempty"`
}

// Codec is one entry of the array's codec pipeline.
type Codec struct {
	Name          string                 `json:"name"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// ArrayMeta represents Zarr v3 array metadata (zarr.json).
type ArrayMeta struct {
	ZarrFormat int    `json:"zarr_format"`
	NodeType   string `json:"node_type"`
	Shape      []int  `json:"shape"`
	DataType   string `json:"data_type"`
	ChunkGrid  struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator,omitempty"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue  interface{} `json:"fill_value"`
	Codecs     []Codec     `json:"codecs"`
	Attributes *Attributes `json:"attributes,omitempty"`
}

// loadArrayMeta loads Zarr v3 array metadata.
func loadArrayMeta(arrayPath string) (*ArrayMeta, error) {
	data, err := os.ReadFile(filepath.Join(arrayPath, "zarr.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read zarr.json: %w", err)
	}
	var meta ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse zarr.json: %w", err)
	}
	return &meta, nil
}

func (m *ArrayMeta) validate() error {
	if m.ZarrFormat != 3 {
		return fmt.Errorf("%w: zarr_format %d", ErrUnsupported, m.ZarrFormat)
	}
	if m.NodeType != "array" {
		return fmt.Errorf("%w: node_type %q", ErrUnsupported, m.NodeType)
	}
	if m.ChunkGrid.Name != "regular" {
		return fmt.Errorf("%w: chunk grid %q", ErrUnsupported, m.ChunkGrid.Name)
	}
	chunk := m.ChunkGrid.Configuration.ChunkShape
	if len(chunk) != len(m.Shape) {
		return fmt.Errorf("invalid zarr metadata: shape dims (%d) != chunk dims (%d)", len(m.Shape), len(chunk))
	}
	for d, c := range chunk {
		if c <= 0 {
			return fmt.Errorf("invalid chunk shape at dim %d: %d", d, c)
		}
	}
	switch m.ChunkKeyEncoding.Name {
	case "", "default", "v2":
	default:
		return fmt.Errorf("%w: chunk key encoding %q", ErrUnsupported, m.ChunkKeyEncoding.Name)
	}
	return nil
}

// chunkKey returns the store key of the chunk at the given grid position.
func (m *ArrayMeta) chunkKey(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	sep := m.ChunkKeyEncoding.Configuration.Separator
	if m.ChunkKeyEncoding.Name == "v2" {
		if sep == "" {
			sep = "."
		}
		return strings.Join(parts, sep)
	}
	if sep == "" {
		sep = "/"
	}
	return "c" + sep + strings.Join(parts, sep)
}

// chunkPath maps a chunk key onto the file system. Keys using "/" become
// nested directories.
func chunkPath(arrayPath, key string) string {
	return filepath.Join(arrayPath, filepath.FromSlash(key))
}

// pipeline is the decoded form of the codec list: a bytes codec optionally
// followed by zstd compression.
type pipeline struct {
	order binary.ByteOrder
	zstd  bool
}

func (m *ArrayMeta) pipeline() (pipeline, error) {
	p := pipeline{order: binary.LittleEndian}
	sawBytes := false
	for _, c := range m.Codecs {
		switch c.Name {
		case "bytes":
			if endian, ok := c.Configuration["endian"].(string); ok && endian == "big" {
				p.order = binary.BigEndian
			}
			sawBytes = true
		case "zstd":
			if !sawBytes {
				return p, fmt.Errorf("%w: zstd before bytes codec", ErrUnsupported)
			}
			p.zstd = true
		default:
			return p, fmt.Errorf("%w: codec %q", ErrUnsupported, c.Name)
		}
	}
	if !sawBytes {
		return p, fmt.Errorf("%w: no bytes codec", ErrUnsupported)
	}
	return p, nil
}

// labelDecoder converts one stored element into a label.
type labelDecoder func(b []byte, order binary.ByteOrder) (uint32, error)

func zarrDType(dataType string) (int, labelDecoder, error) {
	switch dataType {
	case "uint8":
		return 1, func(b []byte, _ binary.ByteOrder) (uint32, error) { return uint32(b[0]), nil }, nil
	case "int8":
		return 1, func(b []byte, _ binary.ByteOrder) (uint32, error) { return fromSigned(int64(int8(b[0]))) }, nil
	case "uint16":
		return 2, func(b []byte, o binary.ByteOrder) (uint32, error) { return uint32(o.Uint16(b)), nil }, nil
	case "int16":
		return 2, func(b []byte, o binary.ByteOrder) (uint32, error) { return fromSigned(int64(int16(o.Uint16(b)))) }, nil
	case "uint32":
		return 4, func(b []byte, o binary.ByteOrder) (uint32, error) { return o.Uint32(b), nil }, nil
	case "int32":
		return 4, func(b []byte, o binary.ByteOrder) (uint32, error) { return fromSigned(int64(int32(o.Uint32(b)))) }, nil
	case "uint64":
		return 8, func(b []byte, o binary.ByteOrder) (uint32, error) { return fromUnsigned(o.Uint64(b)) }, nil
	case "int64":
		return 8, func(b []byte, o binary.ByteOrder) (uint32, error) { return fromSigned(int64(o.Uint64(b))) }, nil
	default:
		return 0, nil, fmt.Errorf("%w: data_type %s", ErrUnsupported, dataType)
	}
}

func fromSigned(v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d", ErrLabelRange, v)
	}
	return uint32(v), nil
}

func fromUnsigned(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d", ErrLabelRange, v)
	}
	return uint32(v), nil
}

// fillLabel converts the fill_value into a label. An absent fill value is 0.
func (m *ArrayMeta) fillLabel() (uint32, error) {
	switch t := m.FillValue.(type) {
	case nil:
		return 0, nil
	case float64:
		if t != math.Trunc(t) || t < 0 || t > math.MaxUint32 {
			return 0, fmt.Errorf("%w: fill_value %v", ErrLabelRange, t)
		}
		return uint32(t), nil
	default:
		return 0, fmt.Errorf("%w: fill_value of type %T", ErrUnsupported, m.FillValue)
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
