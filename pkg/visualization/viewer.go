// Package visualization renders grayscale previews of reconstructed slices,
// sinograms and projection stacks.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"spectrecon/internal/models"
)

// Viewer holds a stack of equally sized 2D images as a volume. Depth indexes
// the images, so a projection stack has one depth plane per angle and a
// reconstructed slice has a single plane.
type Viewer struct {
	// volumeData holds depth*height*width values, plane after plane
	volumeData []float64

	// dimensions of the volume
	width  int
	height int
	depth  int

	// display window, mapped onto the full 16-bit range
	low, high float64

	// Scale magnifies saved slices by pixel replication
	Scale int
}

// NewViewer stacks the given images into a volume. The display window spans
// the smallest to the largest value of the whole stack.
func NewViewer(images ...*models.Image) (*Viewer, error) {
	if len(images) == 0 {
		return nil, errors.New("viewer needs at least one image")
	}

	width, height := images[0].Cols, images[0].Rows
	volumeData := make([]float64, 0, width*height*len(images))
	for i, img := range images {
		if img.Cols != width || img.Rows != height {
			return nil, fmt.Errorf("image %d is %dx%d, expected %dx%d", i, img.Rows, img.Cols, height, width)
		}
		volumeData = append(volumeData, img.Data...)
	}

	v := &Viewer{
		volumeData: volumeData,
		width:      width,
		height:     height,
		depth:      len(images),
		Scale:      1,
	}
	v.low, v.high = window(volumeData)
	return v, nil
}

// NewSinogramViewer shows a sinogram with angles down and bins across
func NewSinogramViewer(s *models.Sinogram) (*Viewer, error) {
	return NewViewer(s.AsImage())
}

func window(data []float64) (low, high float64) {
	low, high = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	if low > high {
		return 0, 0
	}
	return low, high
}

// gray maps a value through the display window. A flat volume renders black.
func (v *Viewer) gray(value float64) color.Gray16 {
	if v.high <= v.low || math.IsNaN(value) {
		return color.Gray16{}
	}
	t := (value - v.low) / (v.high - v.low)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, math.Round(t*65535))))}
}

// ExtractSlice extracts a 2D plane of the volume.
//
//	z: image number position (width x height), e.g. one projection
//	y: row position of every image (width x depth), e.g. the sinogram of a slice
//	x: column position of every image (depth x height)
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetGray16(z, y, v.gray(v.volumeData[v.index(position, y, z)]))
			}
		}

	case "y", "Y":
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, z, v.gray(v.volumeData[v.index(x, position, z)]))
			}
		}

	case "z", "Z":
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, y, v.gray(v.volumeData[v.index(x, y, position)]))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

func (v *Viewer) index(x, y, z int) int {
	return z*v.width*v.height + y*v.width + x
}

// SaveSlice writes a slice as a PNG, magnified by Scale
func (v *Viewer) SaveSlice(img *image.Gray16, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, magnify(img, v.Scale)); err != nil {
		return fmt.Errorf("error encoding %s: %w", filename, err)
	}
	return file.Close()
}

// SavePlane extracts the z plane at position and saves it as a PNG
func (v *Viewer) SavePlane(position int, filename string) error {
	img, err := v.ExtractSlice("z", position)
	if err != nil {
		return err
	}
	return v.SaveSlice(img, filename)
}

func magnify(img *image.Gray16, scale int) *image.Gray16 {
	if scale <= 1 {
		return img
	}

	b := img.Bounds()
	out := image.NewGray16(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			out.SetGray16(x, y, img.Gray16At(b.Min.X+x/scale, b.Min.Y+y/scale))
		}
	}
	return out
}

// SaveSliceSequence extracts and saves every slice along the given axis as
// slice_<axis>_NNN.png in outputDir
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
