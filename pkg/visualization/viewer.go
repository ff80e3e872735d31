package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"interscellar/internal/models"
)

// palette is a 20-colour categorical palette; labels cycle through it.
var palette = []color.RGBA{
	{0x1f, 0x77, 0xb4, 0xff}, {0xff, 0x7f, 0x0e, 0xff}, {0x2c, 0xa0, 0x2c, 0xff}, {0xd6, 0x27, 0x28, 0xff},
	{0x94, 0x67, 0xbd, 0xff}, {0x8c, 0x56, 0x4b, 0xff}, {0xe3, 0x77, 0xc2, 0xff}, {0x7f, 0x7f, 0x7f, 0xff},
	{0xbc, 0xbd, 0x22, 0xff}, {0x17, 0xbe, 0xcf, 0xff}, {0xae, 0xc7, 0xe8, 0xff}, {0xff, 0xbb, 0x78, 0xff},
	{0x98, 0xdf, 0x8a, 0xff}, {0xff, 0x98, 0x96, 0xff}, {0xc5, 0xb0, 0xd5, 0xff}, {0xc4, 0x9c, 0x94, 0xff},
	{0xf7, 0xb6, 0xd2, 0xff}, {0xc7, 0xc7, 0xc7, 0xff}, {0xdb, 0xdb, 0x8d, 0xff}, {0x9e, 0xda, 0xe5, 0xff},
}

var background = color.RGBA{0, 0, 0, 0xff}

// Viewer renders 2D slices of a label volume. Surface voxels are drawn in
// their label's colour, interior voxels at half brightness.
type Viewer struct {
	vol  *models.LabelVolume
	mask *models.SurfaceMask
}

// NewViewer creates a viewer. mask may be nil, in which case every voxel is
// drawn as surface.
func NewViewer(vol *models.LabelVolume, mask *models.SurfaceMask) *Viewer {
	return &Viewer{vol: vol, mask: mask}
}

// LabelColor is the colour used for a label's surface voxels.
func LabelColor(label uint32) color.RGBA {
	if label == 0 {
		return background
	}
	return palette[(label-1)%uint32(len(palette))]
}

func (v *Viewer) voxelColor(z, y, x int) color.RGBA {
	i := v.vol.Shape.Index(z, y, x)
	label := v.vol.Data[i]
	c := LabelColor(label)
	if label == 0 || v.mask == nil || v.mask.Bits[i] {
		return c
	}
	return color.RGBA{c.R / 2, c.G / 2, c.B / 2, 0xff}
}

func axisIndex(axis string) (int, error) {
	switch axis {
	case "z", "Z":
		return models.AxisZ, nil
	case "y", "Y":
		return models.AxisY, nil
	case "x", "X":
		return models.AxisX, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// A z slice is laid out as (x, y), a y slice as (x, z) and an x slice as
// (z, y).
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	shape := v.vol.Shape
	if position < 0 || position >= shape[a] {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, shape[a], axis)
	}

	var img *image.RGBA
	switch a {
	case models.AxisZ:
		img = image.NewRGBA(image.Rect(0, 0, shape[2], shape[1]))
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[2]; x++ {
				img.SetRGBA(x, y, v.voxelColor(position, y, x))
			}
		}
	case models.AxisY:
		img = image.NewRGBA(image.Rect(0, 0, shape[2], shape[0]))
		for z := 0; z < shape[0]; z++ {
			for x := 0; x < shape[2]; x++ {
				img.SetRGBA(x, z, v.voxelColor(z, position, x))
			}
		}
	case models.AxisX:
		img = image.NewRGBA(image.Rect(0, 0, shape[0], shape[1]))
		for y := 0; y < shape[1]; y++ {
			for z := 0; z < shape[0]; z++ {
				img.SetRGBA(z, y, v.voxelColor(z, y, position))
			}
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis.
// It returns the number of files written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	for pos := 0; pos < v.vol.Shape[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return v.vol.Shape[a], nil
}
