// Package sinogram extracts the 2D sinogram of one axial slice from a stack
// of per-angle projection images.
package sinogram

import (
	"fmt"

	"spectrecon/internal/models"
)

// Build stacks the central axial row (Rows/2) of every projection in
// angle-index order
func Build(ps *models.ProjectionSet) (*models.Sinogram, error) {
	if err := ps.Validate(); err != nil {
		return nil, fmt.Errorf("cannot build sinogram: %w", err)
	}
	rows, _ := ps.Dims()
	return BuildSlice(ps, rows/2)
}

// BuildSlice stacks axial row `row` of every projection
func BuildSlice(ps *models.ProjectionSet, row int) (*models.Sinogram, error) {
	if err := ps.Validate(); err != nil {
		return nil, fmt.Errorf("cannot build sinogram: %w", err)
	}

	rows, cols := ps.Dims()
	if row < 0 || row >= rows {
		return nil, fmt.Errorf("slice %d out of range [0, %d)", row, rows)
	}

	sino := models.NewSinogram(ps.Len(), cols)
	for a, img := range ps.Images {
		copy(sino.Row(a), img.Row(row))
	}
	return sino, nil
}

// BuildSummed collapses every projection along its axial axis, giving the
// sinogram of the whole field of view
func BuildSummed(ps *models.ProjectionSet) (*models.Sinogram, error) {
	if err := ps.Validate(); err != nil {
		return nil, fmt.Errorf("cannot build sinogram: %w", err)
	}

	_, cols := ps.Dims()
	sino := models.NewSinogram(ps.Len(), cols)
	for a, img := range ps.Images {
		dst := sino.Row(a)
		for r := 0; r < img.Rows; r++ {
			for c, v := range img.Row(r) {
				dst[c] += v
			}
		}
	}
	return sino, nil
}
