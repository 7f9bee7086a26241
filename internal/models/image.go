package models

import (
	"fmt"
	"math"
)

// Image is a 2D grid of floating point intensities stored in row-major order.
// It backs per-angle projection images as well as reconstructed slices.
type Image struct {
	// Data holds Rows*Cols values, row-major
	Data []float64

	// Rows is the number of rows (height)
	Rows int

	// Cols is the number of columns (width)
	Cols int
}

// NewImage allocates a zeroed image of the given dimensions
func NewImage(rows, cols int) *Image {
	return &Image{
		Data: make([]float64, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// NewImageFromData wraps an existing buffer. The buffer length must match rows*cols.
func NewImageFromData(rows, cols int, data []float64) (*Image, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("data length %d does not match %dx%d", len(data), rows, cols)
	}
	return &Image{Data: data, Rows: rows, Cols: cols}, nil
}

// At returns the value at (row, col)
func (im *Image) At(row, col int) float64 {
	return im.Data[row*im.Cols+col]
}

// Set stores v at (row, col)
func (im *Image) Set(row, col int, v float64) {
	im.Data[row*im.Cols+col] = v
}

// Row returns a view of a single row. Mutating the result mutates the image.
func (im *Image) Row(row int) []float64 {
	return im.Data[row*im.Cols : (row+1)*im.Cols]
}

// Clone returns a deep copy
func (im *Image) Clone() *Image {
	data := make([]float64, len(im.Data))
	copy(data, im.Data)
	return &Image{Data: data, Rows: im.Rows, Cols: im.Cols}
}

// Square reports whether the image has as many rows as columns
func (im *Image) Square() bool {
	return im.Rows == im.Cols
}

// Sum returns the sum of all values
func (im *Image) Sum() float64 {
	total := 0.0
	for _, v := range im.Data {
		total += v
	}
	return total
}

// MinMax returns the smallest and largest values. An empty image yields (0, 0).
func (im *Image) MinMax() (min, max float64) {
	if len(im.Data) == 0 {
		return 0, 0
	}

	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range im.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// ArgMax returns the row and column of the brightest pixel
func (im *Image) ArgMax() (row, col int) {
	best := math.Inf(-1)
	for i, v := range im.Data {
		if v > best {
			best = v
			row, col = i/im.Cols, i%im.Cols
		}
	}
	return row, col
}
