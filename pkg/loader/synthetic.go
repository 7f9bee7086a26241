package loader

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/projector"
)

// EvenAngles returns n angles evenly spaced over [0, 360) degrees
func EvenAngles(n int) []float64 {
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = float64(i) * 360 / float64(n)
	}
	return angles
}

// Synthesize fabricates a projection set from a Shepp-Logan phantom. The
// phantom is forward projected at cfg.SyntheticAngles evenly spaced angles,
// scaled so the brightest bin expects cfg.SyntheticPeakCounts counts and
// Poisson sampled with a source seeded from cfg.Seed. Each noisy profile is
// repeated over cfg.Bins axial rows.
func Synthesize(cfg config.Loader, proj *projector.Projector) (*models.ProjectionSet, error) {
	if cfg.Bins < 1 || cfg.SyntheticAngles < 1 {
		return nil, fmt.Errorf("cannot synthesize %d angles of %d bins", cfg.SyntheticAngles, cfg.Bins)
	}

	phantom := SheppLogan(cfg.Bins)
	angles := EvenAngles(cfg.SyntheticAngles)

	sino, err := proj.Forward(phantom, angles)
	if err != nil {
		return nil, fmt.Errorf("error projecting phantom: %w", err)
	}

	scale := 0.0
	if peak := floats.Max(sino.Data); peak > 0 {
		scale = cfg.SyntheticPeakCounts / peak
	}

	src := rand.NewSource(cfg.Seed)
	for i, v := range sino.Data {
		lambda := v * scale
		if lambda <= 0 {
			sino.Data[i] = 0
			continue
		}
		sino.Data[i] = distuv.Poisson{Lambda: lambda, Src: src}.Rand()
	}

	ps := &models.ProjectionSet{
		Images:    make([]*models.Image, len(angles)),
		Angles:    angles,
		Synthetic: true,
		Phantom:   phantom,
	}
	for a := range angles {
		img := models.NewImage(cfg.Bins, sino.Bins)
		profile := sino.Row(a)
		for r := 0; r < img.Rows; r++ {
			copy(img.Row(r), profile)
		}
		ps.Images[a] = img
	}

	return ps, nil
}
