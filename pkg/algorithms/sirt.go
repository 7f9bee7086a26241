package algorithms

import (
	"errors"
	"fmt"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/projector"
)

// SIRT is the simultaneous iterative reconstruction technique. Each iteration
// adds the back projected residual, weighted by inverse ray length and inverse
// pixel sensitivity and scaled by Relaxation, then clips negatives.
type SIRT struct {
	proj       *projector.Projector
	Iterations int
	Relaxation float64
	opts       options
}

// NewSIRT creates a SIRT strategy
func NewSIRT(proj *projector.Projector, iterations int, relaxation float64, opts ...Option) *SIRT {
	s := &SIRT{proj: proj, Iterations: iterations, Relaxation: relaxation}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// Name implements Algorithm
func (s *SIRT) Name() string { return config.AlgorithmSIRT }

// Reconstruct implements Algorithm
func (s *SIRT) Reconstruct(sino *models.Sinogram, angles []float64) (*models.Image, error) {
	if err := validateInput(sino, angles); err != nil {
		return nil, err
	}
	if s.Iterations < 1 {
		return nil, fmt.Errorf("sirt needs at least one iteration, got %d", s.Iterations)
	}
	if s.Relaxation <= 0 {
		return nil, errors.New("sirt relaxation must be positive")
	}

	n := sino.Bins

	// Row weights: inverse length of each ray through the reconstruction circle
	support := models.NewImage(n, n)
	fillCircle(support, 1)
	rayLength, err := s.proj.Forward(support, angles)
	if err != nil {
		return nil, err
	}
	invRay := inverse(rayLength.Data)

	// Column weights: inverse number of rays crossing each pixel
	ones := models.NewSinogram(sino.Angles, n)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	sens, err := s.proj.Back(ones, angles, projector.FilterNone)
	if err != nil {
		return nil, err
	}
	invSens := inverse(sens.Data)

	img, err := s.opts.startImage(n, 0)
	if err != nil {
		return nil, err
	}

	residual := models.NewSinogram(sino.Angles, n)
	for it := 0; it < s.Iterations; it++ {
		estimate, err := s.proj.Forward(img, angles)
		if err != nil {
			return nil, err
		}
		for i := range residual.Data {
			residual.Data[i] = (sino.Data[i] - estimate.Data[i]) * invRay[i]
		}

		correction, err := s.proj.Back(residual, angles, projector.FilterNone)
		if err != nil {
			return nil, err
		}
		for i := range img.Data {
			v := img.Data[i] + s.Relaxation*correction.Data[i]*invSens[i]
			if v < 0 {
				v = 0
			}
			img.Data[i] = v
		}

		s.opts.report(it+1, s.Iterations, fmt.Sprintf("SIRT iteration %d/%d", it+1, s.Iterations))
	}

	return img, nil
}

// inverse returns 1/v for positive entries and 0 elsewhere
func inverse(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v > 1e-12 {
			out[i] = 1 / v
		}
	}
	return out
}
