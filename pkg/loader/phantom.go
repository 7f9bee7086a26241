package loader

import (
	"math"

	"spectrecon/internal/models"
)

// ellipse describes one component of the Shepp-Logan head phantom in
// normalized coordinates ([-1, 1] on both axes, y pointing up)
type ellipse struct {
	intensity float64
	a, b      float64
	x0, y0    float64
	phi       float64 // degrees
}

// modifiedSheppLogan uses the contrast-enhanced intensities of Toft, which
// keep the soft tissue features visible after reconstruction
var modifiedSheppLogan = []ellipse{
	{1.0, 0.6900, 0.9200, 0, 0, 0},
	{-0.8, 0.6624, 0.8740, 0, -0.0184, 0},
	{-0.2, 0.1100, 0.3100, 0.22, 0, -18},
	{-0.2, 0.1600, 0.4100, -0.22, 0, 18},
	{0.1, 0.2100, 0.2500, 0, 0.35, 0},
	{0.1, 0.0460, 0.0460, 0, 0.1, 0},
	{0.1, 0.0460, 0.0460, 0, -0.1, 0},
	{0.1, 0.0460, 0.0230, -0.08, -0.605, 0},
	{0.1, 0.0230, 0.0230, 0, -0.606, 0},
	{0.1, 0.0230, 0.0460, 0.06, -0.605, 0},
}

// SheppLogan renders the modified Shepp-Logan phantom on an n x n grid.
// Values are clamped to be non-negative; the skull is 1 and the brain 0.2.
func SheppLogan(n int) *models.Image {
	img := models.NewImage(n, n)
	if n <= 0 {
		return img
	}

	for _, e := range modifiedSheppLogan {
		phi := e.phi * math.Pi / 180
		cos, sin := math.Cos(phi), math.Sin(phi)

		for r := 0; r < n; r++ {
			y := 1 - (2*float64(r)+1)/float64(n)
			for c := 0; c < n; c++ {
				x := (2*float64(c)+1)/float64(n) - 1

				dx, dy := x-e.x0, y-e.y0
				xr := dx*cos + dy*sin
				yr := -dx*sin + dy*cos
				if (xr*xr)/(e.a*e.a)+(yr*yr)/(e.b*e.b) <= 1 {
					img.Data[r*n+c] += e.intensity
				}
			}
		}
	}

	for i, v := range img.Data {
		if v < 0 {
			img.Data[i] = 0
		}
	}
	return img
}
