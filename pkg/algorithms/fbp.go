package algorithms

import (
	"fmt"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/projector"
)

// FBP is filtered back projection: a single deterministic pass that filters
// every profile with the selected kernel and back projects the result.
type FBP struct {
	proj   *projector.Projector
	Filter projector.Filter
	opts   options
}

// NewFBP creates an FBP strategy with the given kernel
func NewFBP(proj *projector.Projector, filter projector.Filter, opts ...Option) *FBP {
	f := &FBP{proj: proj, Filter: filter}
	for _, opt := range opts {
		opt(&f.opts)
	}
	return f
}

// Name implements Algorithm
func (f *FBP) Name() string { return config.AlgorithmFBP }

// Reconstruct implements Algorithm
func (f *FBP) Reconstruct(sino *models.Sinogram, angles []float64) (*models.Image, error) {
	if err := validateInput(sino, angles); err != nil {
		return nil, err
	}
	if f.Filter == projector.FilterNone {
		return nil, fmt.Errorf("fbp needs a filter kernel")
	}

	img, err := f.proj.Back(sino, angles, f.Filter)
	if err != nil {
		return nil, fmt.Errorf("filtered back projection failed: %w", err)
	}

	f.opts.report(1, 1, fmt.Sprintf("FBP with %s filter", f.Filter))
	return img, nil
}
