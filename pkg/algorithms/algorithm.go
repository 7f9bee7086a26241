// Package algorithms provides the interchangeable reconstruction strategies
// (FBP, SIRT, MLEM and OSEM). Every strategy shares one Projector and turns a
// sinogram plus its acquisition angles into a square image.
//
// The iterative strategies follow the same state machine: initialize the
// image, then for a fixed number of iterations forward project, compare with
// the measurement, back project the comparison and update the image. The
// iteration count is the only termination criterion.
package algorithms

import (
	"errors"
	"fmt"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/projector"
)

// ErrUnknownAlgorithm is returned by New for unsupported algorithm names
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Algorithm reconstructs an image from a sinogram and its angles in degrees.
// The returned image is square with a side equal to the sinogram bin count.
type Algorithm interface {
	Name() string
	Reconstruct(sino *models.Sinogram, angles []float64) (*models.Image, error)
}

// ProgressCallback is called after every completed update step
type ProgressCallback func(completed, total int, message string)

type options struct {
	progress ProgressCallback
	initial  *models.Image
}

// Option customizes an algorithm built by New
type Option func(*options)

// WithProgress registers a callback invoked after each iteration (and each
// subset for OSEM)
func WithProgress(cb ProgressCallback) Option {
	return func(o *options) { o.progress = cb }
}

// WithInitialImage seeds the iterative algorithms with a copy of img instead
// of their default uniform start. FBP ignores it.
func WithInitialImage(img *models.Image) Option {
	return func(o *options) { o.initial = img }
}

func (o *options) report(completed, total int, message string) {
	if o.progress != nil {
		o.progress(completed, total, message)
	}
}

// New builds the algorithm named by cfg.Algorithm using cfg's parameters
func New(cfg config.Reconstruction, proj *projector.Projector, opts ...Option) (Algorithm, error) {
	iterations := cfg.EffectiveIterations()

	switch cfg.Algorithm {
	case config.AlgorithmFBP:
		filter, err := projector.ParseFilter(cfg.Filter)
		if err != nil {
			return nil, err
		}
		return NewFBP(proj, filter, opts...), nil
	case config.AlgorithmSIRT:
		return NewSIRT(proj, iterations, cfg.Relaxation, opts...), nil
	case config.AlgorithmMLEM:
		return NewMLEM(proj, iterations, cfg.Epsilon, opts...), nil
	case config.AlgorithmOSEM:
		return NewOSEM(proj, iterations, cfg.Subsets, cfg.Epsilon, opts...), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
}

func validateInput(sino *models.Sinogram, angles []float64) error {
	if sino == nil || sino.Angles == 0 || sino.Bins == 0 {
		return errors.New("sinogram is empty")
	}
	if sino.Angles != len(angles) {
		return fmt.Errorf("sinogram has %d rows but %d angles were given", sino.Angles, len(angles))
	}
	return nil
}

// startImage returns a copy of the seed image when one was supplied,
// otherwise a size x size image filled with fill inside the reconstruction
// circle
func (o *options) startImage(size int, fill float64) (*models.Image, error) {
	if o.initial != nil {
		if o.initial.Rows != size || o.initial.Cols != size {
			return nil, fmt.Errorf("initial image is %dx%d, expected %dx%d",
				o.initial.Rows, o.initial.Cols, size, size)
		}
		return o.initial.Clone(), nil
	}

	img := models.NewImage(size, size)
	if fill != 0 {
		fillCircle(img, fill)
	}
	return img, nil
}

// fillCircle sets every pixel of the inscribed reconstruction circle to v
func fillCircle(img *models.Image, v float64) {
	n := img.Cols
	center := float64(n / 2)
	radius := float64(n / 2)
	for r := 0; r < img.Rows; r++ {
		dr := float64(r) - center
		for c := 0; c < n; c++ {
			dc := float64(c) - center
			if dr*dr+dc*dc <= radius*radius {
				img.Set(r, c, v)
			}
		}
	}
}
