// Package reconstruction orchestrates a complete SPECT reconstruction run.
package reconstruction

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"spectrecon/internal/models"
	"spectrecon/pkg/algorithms"
	"spectrecon/pkg/config"
	"spectrecon/pkg/loader"
	"spectrecon/pkg/output"
	"spectrecon/pkg/postprocess"
	"spectrecon/pkg/projector"
	"spectrecon/pkg/sinogram"
)

// Reconstructor runs the reconstruction pipeline:
// 1. Loading the projection set (or synthesizing one)
// 2. Extracting the sinogram of the selected axial slice
// 3. Reconstructing the slice with the configured algorithm
// 4. Post-processing (cleanup, smoothing, normalization)
// 5. Calculating quality metrics when a ground truth phantom exists
// 6. Writing every artifact and the run manifest
type Reconstructor struct {
	cfg  *config.Config
	log  logrus.FieldLogger
	proj *projector.Projector

	// Progress receives iteration updates from the reconstruction stage
	Progress algorithms.ProgressCallback

	projections *models.ProjectionSet
	sinogram    *models.Sinogram
	image       *models.Image
	metrics     *models.QualityMetrics
}

// NewReconstructor creates a reconstructor for cfg. A nil logger uses the
// logrus standard logger.
func NewReconstructor(cfg *config.Config, log logrus.FieldLogger) *Reconstructor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconstructor{
		cfg:  cfg,
		log:  log,
		proj: projector.New(cfg.NumCores),
	}
}

// Process runs the complete reconstruction pipeline and returns its manifest
func (r *Reconstructor) Process() (*models.RunManifest, error) {
	start := time.Now()
	log := r.log.WithField("component", "pipeline")

	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	rc := r.cfg.Reconstruction

	var opts []algorithms.Option
	if r.Progress != nil {
		opts = append(opts, algorithms.WithProgress(r.Progress))
	}
	alg, err := algorithms.New(rc, r.proj, opts...)
	if err != nil {
		return nil, err
	}

	writer := output.NewWriter(r.cfg.OutputDir(), r.cfg.Output.Formats, r.log)
	if err := writer.Prepare(); err != nil {
		return nil, err
	}

	// Step 1: Load projections
	log.Info("Step 1: Loading projection data...")
	ps, err := loader.New(r.cfg.Loader, r.proj, r.log).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load projections: %w", err)
	}
	if err := ps.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load projections: %w", err)
	}
	r.projections = ps

	// Step 2: Extract the sinogram
	log.Info("Step 2: Creating sinogram...")
	sino, err := r.buildSinogram(ps)
	if err != nil {
		return nil, fmt.Errorf("failed to create sinogram: %w", err)
	}
	r.sinogram = sino
	log.WithFields(logrus.Fields{"angles": sino.Angles, "bins": sino.Bins}).Info("Sinogram created")

	artifacts, err := writer.WriteSinogram(sino)
	if err != nil {
		return nil, err
	}

	// Step 3: Reconstruct
	iterations := rc.EffectiveIterations()
	log.WithFields(logrus.Fields{
		"algorithm":  alg.Name(),
		"iterations": iterations,
	}).Info("Step 3: Reconstructing...")
	raw, err := alg.Reconstruct(sino, ps.Angles)
	if err != nil {
		return nil, fmt.Errorf("%s reconstruction failed: %w", alg.Name(), err)
	}

	// Step 4: Post-process
	log.WithField("sigma", rc.Smooth).Info("Step 4: Post-processing...")
	r.image = postprocess.Process(raw, rc.Smooth)

	// Step 5: Quality metrics against the phantom
	if ps.Phantom != nil && ps.Phantom.Rows == r.image.Rows && ps.Phantom.Cols == r.image.Cols {
		log.Info("Step 5: Calculating quality metrics...")
		truth := ps.Phantom.Clone()
		postprocess.Normalize(truth)
		r.metrics = calculateQualityMetrics(truth, r.image)
		log.WithFields(logrus.Fields{
			"rmse": r.metrics.RMSE,
			"ssim": r.metrics.SSIM,
		}).Info("Quality metrics")
	}

	// Step 6: Write artifacts
	log.WithField("dir", writer.Dir).Info("Step 6: Saving results...")
	written, err := writer.WriteImage(r.image, alg.Name())
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, written...)

	manifest := r.manifest(alg.Name(), iterations, artifacts, time.Since(start))
	written, err = writer.WriteManifest(manifest)
	if err != nil {
		return nil, err
	}
	manifest.Artifacts = append(manifest.Artifacts, written...)

	log.WithFields(logrus.Fields{
		"algorithm": manifest.Algorithm,
		"elapsed":   manifest.Elapsed.Round(time.Millisecond),
		"artifacts": len(manifest.Artifacts),
	}).Info("Reconstruction complete")

	return manifest, nil
}

func (r *Reconstructor) buildSinogram(ps *models.ProjectionSet) (*models.Sinogram, error) {
	slice := r.cfg.Reconstruction.Slice
	if slice < 0 {
		return sinogram.Build(ps)
	}

	rows, _ := ps.Dims()
	if slice >= rows {
		return nil, errors.New("configured slice lies outside the projections")
	}
	return sinogram.BuildSlice(ps, slice)
}

func (r *Reconstructor) manifest(algorithm string, iterations int, artifacts []string, elapsed time.Duration) *models.RunManifest {
	rc := r.cfg.Reconstruction

	m := &models.RunManifest{
		Algorithm:  algorithm,
		Iterations: iterations,
		Smoothing:  rc.Smooth,
		Synthetic:  r.projections.Synthetic,
		InputDir:   r.cfg.Loader.InputDir,
		OutputDir:  r.cfg.OutputDir(),
		Angles:     r.sinogram.Angles,
		Rows:       r.image.Rows,
		Cols:       r.image.Cols,
		Stats:      postprocess.Stats(r.image),
		Metrics:    r.metrics,
		Elapsed:    elapsed,
		Artifacts:  artifacts,
	}

	switch algorithm {
	case config.AlgorithmFBP:
		m.Filter = rc.Filter
	case config.AlgorithmSIRT:
		m.Relaxation = rc.Relaxation
	case config.AlgorithmOSEM:
		m.Subsets = rc.Subsets
	}
	return m
}

// Projections returns the loaded projection set, nil before Process
func (r *Reconstructor) Projections() *models.ProjectionSet {
	return r.projections
}

// Sinogram returns the reconstructed slice's sinogram, nil before Process
func (r *Reconstructor) Sinogram() *models.Sinogram {
	return r.sinogram
}

// Image returns the post-processed reconstruction, nil before Process
func (r *Reconstructor) Image() *models.Image {
	return r.image
}

// Metrics returns the quality metrics of a synthetic run, nil otherwise
func (r *Reconstructor) Metrics() *models.QualityMetrics {
	return r.metrics
}
