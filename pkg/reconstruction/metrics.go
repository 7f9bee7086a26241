package reconstruction

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"spectrecon/internal/models"
)

// calculateQualityMetrics compares a normalized reconstruction with the
// normalized phantom it was synthesized from
func calculateQualityMetrics(phantom, reconstructed *models.Image) *models.QualityMetrics {
	original := phantom.Data
	recon := reconstructed.Data

	return &models.QualityMetrics{
		RMSE:        calculateRMSE(original, recon),
		SSIM:        calculateSSIM(original, recon),
		MI:          calculateMutualInformation(original, recon),
		EntropyDiff: calculateEntropyDifference(original, recon),
		Contrast:    calculateContrast(original, recon),
	}
}

// calculateMutualInformation approximates the mutual information of two
// datasets assuming they are jointly Gaussian: -0.5 * log(1 - rho^2)
func calculateMutualInformation(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n < 2 {
		return 0
	}

	if stat.Variance(original, nil) <= 0 || stat.Variance(reconstructed, nil) <= 0 {
		return 0
	}
	// Perfectly correlated data has unbounded MI and is reported as 0
	rho := stat.Correlation(original, reconstructed, nil)
	if rho*rho >= 1 {
		return 0
	}
	return -0.5 * math.Log(1-rho*rho)
}

// calculateRMSE computes the root mean square error
func calculateRMSE(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}
	return floats.Distance(original, reconstructed, 2) / math.Sqrt(float64(n))
}

// calculateSSIM computes the global Structural Similarity Index for data in
// [0, 1]
func calculateSSIM(original, reconstructed []float64) float64 {
	const L = 1.0 // Dynamic range
	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	n := len(original)
	if n != len(reconstructed) || n < 2 {
		return 0
	}

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)
	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reconstructed, nil)
	sigmaXY := stat.Covariance(original, reconstructed, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)

	if den > 0 {
		return num / den
	}
	return 0
}

// calculateEntropyDifference computes the absolute entropy difference
func calculateEntropyDifference(original, reconstructed []float64) float64 {
	if len(original) != len(reconstructed) || len(original) == 0 {
		return 0
	}
	return math.Abs(calculateEntropy(original) - calculateEntropy(reconstructed))
}

// calculateEntropy computes the Shannon entropy in bits of a 256 bin
// histogram of data
func calculateEntropy(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}

	min, max := floats.Min(data), floats.Max(data)
	if max <= min {
		return 0
	}

	const numBins = 256
	p := make([]float64, numBins)
	binWidth := (max - min) / numBins
	for _, v := range data {
		binIdx := int((v - min) / binWidth)
		if binIdx >= numBins {
			binIdx = numBins - 1
		} else if binIdx < 0 {
			binIdx = 0
		}
		p[binIdx]++
	}
	floats.Scale(1/float64(n), p)

	return stat.Entropy(p) / math.Ln2
}

// calculateContrast measures (hot - background) / background inside the
// phantom support. Hot pixels are those the phantom marks above its mean
// support intensity; the rest of the support is background.
func calculateContrast(original, reconstructed []float64) float64 {
	if len(original) != len(reconstructed) {
		return 0
	}

	var support []float64
	for _, v := range original {
		if v > 0 {
			support = append(support, v)
		}
	}
	if len(support) == 0 {
		return 0
	}
	threshold := stat.Mean(support, nil)

	var hot, background []float64
	for i, v := range original {
		switch {
		case v <= 0:
		case v > threshold:
			hot = append(hot, reconstructed[i])
		default:
			background = append(background, reconstructed[i])
		}
	}
	if len(hot) == 0 || len(background) == 0 {
		return 0
	}

	bg := stat.Mean(background, nil)
	if bg <= 0 {
		return 0
	}
	return (stat.Mean(hot, nil) - bg) / bg
}
