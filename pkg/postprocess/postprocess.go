// Package postprocess turns a raw reconstruction into a bounded display image:
// non-finite and negative voxels are cleared, the image is optionally
// Gaussian smoothed and finally min-max normalized to [0, 1].
package postprocess

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"spectrecon/internal/models"
)

// truncate is the kernel half-width in standard deviations
const truncate = 4.0

// Process returns a cleaned, optionally smoothed and normalized copy of img.
// The input is left untouched. A constant image becomes all zeros.
func Process(img *models.Image, sigma float64) *models.Image {
	out := img.Clone()

	for i, v := range out.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			out.Data[i] = 0
		}
	}

	if sigma > 0 {
		out = GaussianFilter(out, sigma)
	}

	Normalize(out)
	return out
}

// Normalize rescales img in place to [0, 1]. If every value is equal the
// image is zeroed instead of dividing by zero.
func Normalize(img *models.Image) {
	if len(img.Data) == 0 {
		return
	}

	min, max := floats.Min(img.Data), floats.Max(img.Data)
	if !(max > min) {
		for i := range img.Data {
			img.Data[i] = 0
		}
		return
	}

	floats.AddConst(-min, img.Data)
	floats.Scale(1/(max-min), img.Data)
}

// GaussianFilter applies an isotropic Gaussian blur with the given standard
// deviation in pixels. The kernel is truncated at four sigma and the image
// edges are mirrored (d c b a | a b c d | d c b a).
func GaussianFilter(img *models.Image, sigma float64) *models.Image {
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	tmp := models.NewImage(img.Rows, img.Cols)
	for r := 0; r < img.Rows; r++ {
		src := img.Row(r)
		dst := tmp.Row(r)
		for c := range dst {
			sum := 0.0
			for k, w := range kernel {
				sum += w * src[mirror(c+k-radius, img.Cols)]
			}
			dst[c] = sum
		}
	}

	out := models.NewImage(img.Rows, img.Cols)
	for c := 0; c < img.Cols; c++ {
		for r := 0; r < img.Rows; r++ {
			sum := 0.0
			for k, w := range kernel {
				sum += w * tmp.At(mirror(r+k-radius, img.Rows), c)
			}
			out.Set(r, c, sum)
		}
	}

	return out
}

func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// mirror reflects an out-of-range index back into [0, n), repeating the
// edge sample, for kernels wider than the image as well
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// Stats summarizes img with population statistics
func Stats(img *models.Image) models.ImageStats {
	if len(img.Data) == 0 {
		return models.ImageStats{}
	}

	mean, std := stat.PopMeanStdDev(img.Data, nil)
	return models.ImageStats{
		Min:  floats.Min(img.Data),
		Max:  floats.Max(img.Data),
		Mean: mean,
		Std:  std,
	}
}
