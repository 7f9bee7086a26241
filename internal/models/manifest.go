package models

import "time"

// ImageStats summarizes the final reconstructed image
type ImageStats struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Mean float64 `yaml:"mean"`
	Std  float64 `yaml:"std"`
}

// QualityMetrics compares a reconstruction against a known ground truth.
// They are only available when the input was synthesized from a phantom.
type QualityMetrics struct {
	// RMSE between the normalized phantom and the normalized reconstruction
	RMSE float64 `yaml:"rmse"`

	// SSIM is the global structural similarity index
	SSIM float64 `yaml:"ssim"`

	// MI approximates the mutual information under a Gaussian assumption
	MI float64 `yaml:"mutualInformation"`

	// EntropyDiff is the absolute Shannon entropy difference of the histograms
	EntropyDiff float64 `yaml:"entropyDifference"`

	// Contrast is (hot - background) / background over the phantom support,
	// hot being the pixels the phantom marks above its mean support intensity
	Contrast float64 `yaml:"contrast"`
}

// RunManifest records what a reconstruction run did. It is assembled once at
// the end of a run and never modified afterwards.
type RunManifest struct {
	Algorithm  string          `yaml:"algorithm"`
	Iterations int             `yaml:"iterations"`
	Subsets    int             `yaml:"subsets,omitempty"`
	Filter     string          `yaml:"filter,omitempty"`
	Relaxation float64         `yaml:"relaxation,omitempty"`
	Smoothing  float64         `yaml:"smoothingSigma"`
	Synthetic  bool            `yaml:"synthetic"`
	InputDir   string          `yaml:"inputDir"`
	OutputDir  string          `yaml:"outputDir"`
	Angles     int             `yaml:"angles"`
	Rows       int             `yaml:"rows"`
	Cols       int             `yaml:"cols"`
	Stats      ImageStats      `yaml:"stats"`
	Metrics    *QualityMetrics `yaml:"metrics,omitempty"`
	Elapsed    time.Duration   `yaml:"elapsed"`
	Artifacts  []string        `yaml:"artifacts,omitempty"`
}
