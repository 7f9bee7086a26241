package models

import (
	"errors"
	"fmt"
)

// ProjectionSet is the ordered stack of per-angle projection images together
// with the acquisition angle of each one.
type ProjectionSet struct {
	// Images holds one count image per acquisition angle. All share dimensions.
	Images []*Image

	// Angles holds the acquisition angle in degrees for each image.
	// Angles need not be sorted but index-correspond to Images.
	Angles []float64

	// Synthetic is set when the set was fabricated because no acquisition
	// data was available
	Synthetic bool

	// Phantom is the ground truth used to fabricate a synthetic set, nil otherwise
	Phantom *Image
}

// Len returns the number of projections
func (ps *ProjectionSet) Len() int {
	return len(ps.Images)
}

// Dims returns the rows and columns shared by every projection image
func (ps *ProjectionSet) Dims() (rows, cols int) {
	if len(ps.Images) == 0 {
		return 0, 0
	}
	return ps.Images[0].Rows, ps.Images[0].Cols
}

// Validate checks the invariants of the set: at least one image, one angle
// per image and identical image dimensions.
func (ps *ProjectionSet) Validate() error {
	if len(ps.Images) == 0 {
		return errors.New("projection set is empty")
	}
	if len(ps.Angles) != len(ps.Images) {
		return fmt.Errorf("projection set has %d images but %d angles", len(ps.Images), len(ps.Angles))
	}

	rows, cols := ps.Dims()
	for i, img := range ps.Images {
		if img == nil {
			return fmt.Errorf("projection %d is nil", i)
		}
		if img.Rows != rows || img.Cols != cols {
			return fmt.Errorf("projection %d is %dx%d, expected %dx%d", i, img.Rows, img.Cols, rows, cols)
		}
	}
	return nil
}

// TotalCounts sums the counts of every projection
func (ps *ProjectionSet) TotalCounts() float64 {
	total := 0.0
	for _, img := range ps.Images {
		total += img.Sum()
	}
	return total
}

// Sinogram is the (angle x detector bin) grid used by 2D reconstruction.
// Row i is the detector response at angle i.
type Sinogram struct {
	// Data holds Angles*Bins values, row-major
	Data []float64

	// Angles is the number of rows
	Angles int

	// Bins is the number of detector bins per row
	Bins int
}

// NewSinogram allocates a zeroed sinogram
func NewSinogram(angles, bins int) *Sinogram {
	return &Sinogram{
		Data:   make([]float64, angles*bins),
		Angles: angles,
		Bins:   bins,
	}
}

// Row returns a view of the detector profile for angle index i
func (s *Sinogram) Row(i int) []float64 {
	return s.Data[i*s.Bins : (i+1)*s.Bins]
}

// SubRows returns a view over rows [start, end). The data is shared.
func (s *Sinogram) SubRows(start, end int) *Sinogram {
	return &Sinogram{
		Data:   s.Data[start*s.Bins : end*s.Bins],
		Angles: end - start,
		Bins:   s.Bins,
	}
}

// Clone returns a deep copy
func (s *Sinogram) Clone() *Sinogram {
	data := make([]float64, len(s.Data))
	copy(data, s.Data)
	return &Sinogram{Data: data, Angles: s.Angles, Bins: s.Bins}
}

// AsImage exposes the sinogram as an Angles x Bins image sharing its data
func (s *Sinogram) AsImage() *Image {
	return &Image{Data: s.Data, Rows: s.Angles, Cols: s.Bins}
}
