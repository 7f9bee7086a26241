package algorithms

import (
	"fmt"
	"math"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/projector"
)

// MLEM is maximum-likelihood expectation maximization for Poisson counts.
// Every iteration multiplies the image by the back projected ratio of measured
// to estimated counts, normalized by the pixel sensitivity. A non-negative
// start therefore stays non-negative.
type MLEM struct {
	proj       *projector.Projector
	Iterations int
	Epsilon    float64
	opts       options
}

// NewMLEM creates an MLEM strategy
func NewMLEM(proj *projector.Projector, iterations int, epsilon float64, opts ...Option) *MLEM {
	m := &MLEM{proj: proj, Iterations: iterations, Epsilon: epsilon}
	for _, opt := range opts {
		opt(&m.opts)
	}
	return m
}

// Name implements Algorithm
func (m *MLEM) Name() string { return config.AlgorithmMLEM }

// Reconstruct implements Algorithm
func (m *MLEM) Reconstruct(sino *models.Sinogram, angles []float64) (*models.Image, error) {
	if err := validateInput(sino, angles); err != nil {
		return nil, err
	}
	em := emSolver{proj: m.proj, epsilon: m.Epsilon, opts: &m.opts, label: "MLEM"}
	return em.run(sino, angles, m.Iterations, [][2]int{{0, sino.Angles}})
}

// OSEM is ordered-subsets EM. Each iteration walks the contiguous angle
// blocks returned by Partition in order, applying the MLEM update with only
// that block's rows, so corrections compound within the iteration.
//
// Subsets are contiguous index ranges; callers are expected to supply evenly
// spaced angles so each block still covers the full angular range sparsely
// enough to avoid subset imbalance.
type OSEM struct {
	proj       *projector.Projector
	Iterations int
	Subsets    int
	Epsilon    float64
	opts       options
}

// NewOSEM creates an OSEM strategy
func NewOSEM(proj *projector.Projector, iterations, subsets int, epsilon float64, opts ...Option) *OSEM {
	o := &OSEM{proj: proj, Iterations: iterations, Subsets: subsets, Epsilon: epsilon}
	for _, opt := range opts {
		opt(&o.opts)
	}
	return o
}

// Name implements Algorithm
func (o *OSEM) Name() string { return config.AlgorithmOSEM }

// Reconstruct implements Algorithm
func (o *OSEM) Reconstruct(sino *models.Sinogram, angles []float64) (*models.Image, error) {
	if err := validateInput(sino, angles); err != nil {
		return nil, err
	}
	blocks, err := Partition(sino.Angles, o.Subsets)
	if err != nil {
		return nil, err
	}
	em := emSolver{proj: o.proj, epsilon: o.Epsilon, opts: &o.opts, label: "OSEM"}
	return em.run(sino, angles, o.Iterations, blocks)
}

// Partition splits [0, numAngles) into subsets contiguous [start, end)
// blocks of numAngles/subsets indices; the last block absorbs the remainder
// so every angle is used exactly once.
func Partition(numAngles, subsets int) ([][2]int, error) {
	if subsets < 1 {
		return nil, fmt.Errorf("subsets must be at least 1, got %d", subsets)
	}
	if subsets > numAngles {
		return nil, fmt.Errorf("cannot split %d angles into %d subsets", numAngles, subsets)
	}

	size := numAngles / subsets
	blocks := make([][2]int, subsets)
	for s := range blocks {
		start := s * size
		end := start + size
		if s == subsets-1 {
			end = numAngles
		}
		blocks[s] = [2]int{start, end}
	}
	return blocks, nil
}

// emSolver holds the shared multiplicative update of MLEM and OSEM. MLEM is
// the single-block case, so both strategies run exactly the same arithmetic.
type emSolver struct {
	proj    *projector.Projector
	epsilon float64
	opts    *options
	label   string
}

func (e *emSolver) run(sino *models.Sinogram, angles []float64, iterations int, blocks [][2]int) (*models.Image, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("%s needs at least one iteration, got %d", e.label, iterations)
	}
	if e.epsilon <= 0 {
		return nil, fmt.Errorf("%s epsilon must be positive", e.label)
	}

	n := sino.Bins
	img, err := e.opts.startImage(n, 1)
	if err != nil {
		return nil, err
	}

	// Sensitivity of each block: back projection of a sinogram of ones
	sens := make([][]float64, len(blocks))
	for b, blk := range blocks {
		ones := models.NewSinogram(blk[1]-blk[0], n)
		for i := range ones.Data {
			ones.Data[i] = 1
		}
		s, err := e.proj.Back(ones, angles[blk[0]:blk[1]], projector.FilterNone)
		if err != nil {
			return nil, err
		}
		sens[b] = inverse(s.Data)
	}

	total := iterations * len(blocks)
	step := 0
	for it := 0; it < iterations; it++ {
		for b, blk := range blocks {
			if err := e.update(img, sino.SubRows(blk[0], blk[1]), angles[blk[0]:blk[1]], sens[b]); err != nil {
				return nil, err
			}

			step++
			msg := fmt.Sprintf("%s iteration %d/%d", e.label, it+1, iterations)
			if len(blocks) > 1 {
				msg = fmt.Sprintf("%s subset %d/%d", msg, b+1, len(blocks))
			}
			e.opts.report(step, total, msg)
		}
	}

	return img, nil
}

// update applies one multiplicative correction using the given rows
func (e *emSolver) update(img *models.Image, measured *models.Sinogram, angles []float64, invSens []float64) error {
	estimate, err := e.proj.Forward(img, angles)
	if err != nil {
		return err
	}

	ratio := models.NewSinogram(measured.Angles, measured.Bins)
	for i, v := range estimate.Data {
		if v < e.epsilon {
			v = e.epsilon
		}
		ratio.Data[i] = measured.Data[i] / v
	}

	correction, err := e.proj.Back(ratio, angles, projector.FilterNone)
	if err != nil {
		return err
	}

	for i := range img.Data {
		v := img.Data[i] * correction.Data[i] * invSens[i]
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		img.Data[i] = v
	}
	return nil
}
