package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"spectrecon/internal/models"
)

// Manifest file names
const (
	ManifestText = "reconstruction_log.txt"
	ManifestYAML = "reconstruction_log.yaml"
)

// WriteManifest writes the run manifest as a human readable log and as YAML.
// The text log is primary; the YAML copy is optional.
func (w *Writer) WriteManifest(m *models.RunManifest) ([]string, error) {
	f, err := os.Create(w.path(ManifestText))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPrimaryWrite, ManifestText, err)
	}
	defer f.Close()

	if err := FormatManifest(f, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPrimaryWrite, ManifestText, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPrimaryWrite, ManifestText, err)
	}
	written := []string{ManifestText}
	w.log.WithField("file", ManifestText).Info("Saved reconstruction log")

	if name, ok := w.optional(ManifestYAML, func(path string) error {
		data, err := yaml.Marshal(m)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	}); ok {
		written = append(written, name)
	}

	return written, nil
}

// FormatManifest renders the text form of a run manifest
func FormatManifest(out io.Writer, m *models.RunManifest) error {
	var b strings.Builder

	b.WriteString("SPECT Reconstruction Log\n")
	b.WriteString(strings.Repeat("=", 70) + "\n\n")

	b.WriteString("RECONSTRUCTION PARAMETERS:\n")
	fmt.Fprintf(&b, "  Algorithm: %s\n", strings.ToUpper(m.Algorithm))
	fmt.Fprintf(&b, "  Iterations: %d\n", m.Iterations)
	if m.Subsets > 0 {
		fmt.Fprintf(&b, "  Subsets: %d\n", m.Subsets)
	}
	if m.Filter != "" {
		fmt.Fprintf(&b, "  Filter: %s\n", m.Filter)
	}
	if m.Relaxation > 0 {
		fmt.Fprintf(&b, "  Relaxation: %g\n", m.Relaxation)
	}
	fmt.Fprintf(&b, "  Smoothing sigma: %g\n", m.Smoothing)
	b.WriteString("\n")

	b.WriteString("INPUT:\n")
	fmt.Fprintf(&b, "  Directory: %s\n", m.InputDir)
	fmt.Fprintf(&b, "  Synthetic: %t\n", m.Synthetic)
	fmt.Fprintf(&b, "  Projections: %d\n", m.Angles)
	b.WriteString("\n")

	b.WriteString("RECONSTRUCTED IMAGE STATISTICS:\n")
	fmt.Fprintf(&b, "  Shape: (%d, %d)\n", m.Rows, m.Cols)
	fmt.Fprintf(&b, "  Min value: %.6f\n", m.Stats.Min)
	fmt.Fprintf(&b, "  Max value: %.6f\n", m.Stats.Max)
	fmt.Fprintf(&b, "  Mean value: %.6f\n", m.Stats.Mean)
	fmt.Fprintf(&b, "  Std dev: %.6f\n", m.Stats.Std)

	if q := m.Metrics; q != nil {
		b.WriteString("\nQUALITY METRICS (against phantom):\n")
		fmt.Fprintf(&b, "  RMSE: %.6f\n", q.RMSE)
		fmt.Fprintf(&b, "  SSIM: %.6f\n", q.SSIM)
		fmt.Fprintf(&b, "  Mutual information: %.6f\n", q.MI)
		fmt.Fprintf(&b, "  Entropy difference: %.6f\n", q.EntropyDiff)
		fmt.Fprintf(&b, "  Contrast: %.6f\n", q.Contrast)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Output directory: %s\n", m.OutputDir)
	fmt.Fprintf(&b, "Elapsed: %s\n", m.Elapsed)
	if len(m.Artifacts) > 0 {
		b.WriteString("Artifacts:\n")
		for _, a := range m.Artifacts {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}

	_, err := io.WriteString(out, b.String())
	return err
}
