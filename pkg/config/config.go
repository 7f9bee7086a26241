// Package config provides configuration loading and management for spectrecon.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for any rejected field
var ErrInvalidConfig = errors.New("invalid configuration")

// Algorithm names accepted by the reconstruction stage
const (
	AlgorithmFBP  = "fbp"
	AlgorithmSIRT = "sirt"
	AlgorithmMLEM = "mlem"
	AlgorithmOSEM = "osem"
)

// Algorithms lists the supported algorithm names in CLI order
var Algorithms = []string{AlgorithmFBP, AlgorithmSIRT, AlgorithmMLEM, AlgorithmOSEM}

// Filters lists the FBP filter names
var Filters = []string{"ramp", "shepp-logan", "hamming", "hann"}

// Output format names understood by the result writer
const (
	FormatNPY   = "npy"
	FormatMHD   = "mhd"
	FormatNIfTI = "nifti"
	FormatTIFF  = "tiff"
	FormatPNG   = "png"
)

// DefaultInputDir is where the acquisition scripts drop their phase space files
const DefaultInputDir = "./output_rotating_spect"

// Loader configures how projection data is found and binned
type Loader struct {
	// InputDir is scanned for phase_space_head_<h>_angle_<i> artifacts
	InputDir string `yaml:"inputDir"`

	// RotationLog is the angle log file name, relative to InputDir
	RotationLog string `yaml:"rotationLog"`

	// Bins is the side length of each projection histogram
	Bins int `yaml:"bins"`

	// Extent is the half width of the binned detector area, in the units of
	// the recorded positions
	Extent float64 `yaml:"extent"`

	// PositionX, PositionY name the event branches/columns holding positions
	PositionX string `yaml:"positionX"`
	PositionY string `yaml:"positionY"`

	// SyntheticAngles is the number of evenly spaced angles of the fallback
	SyntheticAngles int `yaml:"syntheticAngles"`

	// SyntheticPeakCounts is the expected count of the brightest synthetic bin
	SyntheticPeakCounts float64 `yaml:"syntheticPeakCounts"`

	// Seed drives the Poisson noise of the synthetic fallback
	Seed uint64 `yaml:"seed"`
}

// Reconstruction holds the per-algorithm parameters
type Reconstruction struct {
	// Algorithm is one of fbp, sirt, mlem, osem
	Algorithm string `yaml:"algorithm"`

	// Iterations of the iterative algorithms. Zero selects DefaultIterations.
	Iterations int `yaml:"iterations"`

	// Subsets is the number of ordered subsets (osem only)
	Subsets int `yaml:"subsets"`

	// Filter is the FBP kernel (fbp only)
	Filter string `yaml:"filter"`

	// Relaxation scales each SIRT correction
	Relaxation float64 `yaml:"relaxation"`

	// Epsilon floors forward projected values before EM division
	Epsilon float64 `yaml:"epsilon"`

	// Smooth is the post-reconstruction Gaussian sigma in pixels, 0 disables
	Smooth float64 `yaml:"smooth"`

	// Slice selects the axial projection row fed to the sinogram builder.
	// Negative selects the central row.
	Slice int `yaml:"slice"`
}

// Output configures the result writer
type Output struct {
	// Dir receives every artifact. Empty means <input>/reconstruction.
	Dir string `yaml:"dir"`

	// Formats lists the image formats to write in addition to npy
	Formats []string `yaml:"formats"`

	// Verbose controls progress output
	Verbose bool `yaml:"verbose"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	Loader         Loader         `yaml:"loader"`
	Reconstruction Reconstruction `yaml:"reconstruction"`
	Output         Output         `yaml:"output"`

	// NumCores bounds the goroutines used by the projector
	NumCores int `yaml:"numCores"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Loader.InputDir = DefaultInputDir
	cfg.Loader.RotationLog = "rotation_log.txt"
	cfg.Loader.Bins = 128
	cfg.Loader.Extent = 30
	cfg.Loader.PositionX = "Position_X"
	cfg.Loader.PositionY = "Position_Y"
	cfg.Loader.SyntheticAngles = 60
	cfg.Loader.SyntheticPeakCounts = 1000
	cfg.Loader.Seed = 1

	cfg.Reconstruction.Algorithm = AlgorithmSIRT
	cfg.Reconstruction.Subsets = 8
	cfg.Reconstruction.Filter = "ramp"
	cfg.Reconstruction.Relaxation = 0.15
	cfg.Reconstruction.Epsilon = 1e-10
	cfg.Reconstruction.Smooth = 1.0
	cfg.Reconstruction.Slice = -1

	cfg.Output.Formats = []string{FormatMHD, FormatNIfTI, FormatPNG}
	cfg.Output.Verbose = true

	cfg.NumCores = runtime.NumCPU()

	return cfg
}

// DefaultIterations returns the iteration count used when none is configured
func DefaultIterations(algorithm string) int {
	switch algorithm {
	case AlgorithmFBP:
		return 1
	case AlgorithmSIRT:
		return 100
	case AlgorithmMLEM:
		return 20
	case AlgorithmOSEM:
		return 10
	}
	return 0
}

// EffectiveIterations resolves a zero iteration count to the algorithm default
func (r Reconstruction) EffectiveIterations() int {
	if r.Iterations > 0 {
		return r.Iterations
	}
	return DefaultIterations(r.Algorithm)
}

// OutputDir resolves the output directory, defaulting to <input>/reconstruction
func (c *Config) OutputDir() string {
	if c.Output.Dir != "" {
		return c.Output.Dir
	}
	return filepath.Join(c.Loader.InputDir, "reconstruction")
}

// Validate rejects configurations no pipeline stage can run with
func (c *Config) Validate() error {
	r := c.Reconstruction
	if !contains(Algorithms, r.Algorithm) {
		return fmt.Errorf("%w: unknown algorithm %q (want one of %s)",
			ErrInvalidConfig, r.Algorithm, strings.Join(Algorithms, ", "))
	}
	if !contains(Filters, r.Filter) {
		return fmt.Errorf("%w: unknown filter %q (want one of %s)",
			ErrInvalidConfig, r.Filter, strings.Join(Filters, ", "))
	}
	if r.Iterations < 0 {
		return fmt.Errorf("%w: iterations must be non-negative, got %d", ErrInvalidConfig, r.Iterations)
	}
	if r.Algorithm == AlgorithmOSEM && r.Subsets < 1 {
		return fmt.Errorf("%w: subsets must be at least 1, got %d", ErrInvalidConfig, r.Subsets)
	}
	if r.Relaxation <= 0 {
		return fmt.Errorf("%w: relaxation must be positive, got %g", ErrInvalidConfig, r.Relaxation)
	}
	if r.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrInvalidConfig, r.Epsilon)
	}
	if r.Smooth < 0 {
		return fmt.Errorf("%w: smoothing sigma must be non-negative, got %g", ErrInvalidConfig, r.Smooth)
	}

	l := c.Loader
	if l.Bins < 2 {
		return fmt.Errorf("%w: bins must be at least 2, got %d", ErrInvalidConfig, l.Bins)
	}
	if l.Extent <= 0 {
		return fmt.Errorf("%w: extent must be positive, got %g", ErrInvalidConfig, l.Extent)
	}
	if l.SyntheticAngles < 1 {
		return fmt.Errorf("%w: synthetic angles must be at least 1, got %d", ErrInvalidConfig, l.SyntheticAngles)
	}
	if l.SyntheticPeakCounts <= 0 {
		return fmt.Errorf("%w: synthetic peak counts must be positive, got %g", ErrInvalidConfig, l.SyntheticPeakCounts)
	}

	for _, f := range c.Output.Formats {
		switch f {
		case FormatNPY, FormatMHD, FormatNIfTI, FormatTIFF, FormatPNG:
		default:
			return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, f)
		}
	}

	if c.NumCores < 1 {
		return fmt.Errorf("%w: numCores must be at least 1, got %d", ErrInvalidConfig, c.NumCores)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
