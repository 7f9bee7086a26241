package projector

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrUnknownFilter is returned by ParseFilter for unsupported kernel names
var ErrUnknownFilter = errors.New("unknown filter")

// Filter selects the frequency-domain kernel applied before back projection
type Filter int

const (
	// FilterNone back projects the raw profiles (used by iterative methods)
	FilterNone Filter = iota
	FilterRamp
	FilterSheppLogan
	FilterHamming
	FilterHann
)

var filterNames = map[Filter]string{
	FilterNone:       "none",
	FilterRamp:       "ramp",
	FilterSheppLogan: "shepp-logan",
	FilterHamming:    "hamming",
	FilterHann:       "hann",
}

// String returns the CLI name of the filter
func (f Filter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

// ParseFilter maps a kernel name to a Filter
func ParseFilter(name string) (Filter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for f, n := range filterNames {
		if n == key {
			return f, nil
		}
	}
	return FilterNone, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
}

// paddedSize returns the FFT length used to filter profiles of n bins:
// the next power of two of 2n, and never less than 64.
func paddedSize(n int) int {
	size := 64
	for size < 2*n {
		size *= 2
	}
	return size
}

// filterResponse computes the real frequency response of the kernel for an
// FFT of the given size. Only the size/2+1 non-negative frequencies are
// returned since the response is applied to a real-input transform.
//
// The ramp is built from the band-limited spatial-domain ramp kernel so its
// DC term is not forced to zero, which avoids a constant offset in the
// reconstruction.
func filterResponse(f Filter, size int) []float64 {
	half := size/2 + 1
	response := make([]float64, half)
	if f == FilterNone {
		for k := range response {
			response[k] = 1
		}
		return response
	}

	kernel := make([]float64, size)
	kernel[0] = 0.25
	for k := 1; k < size; k += 2 {
		d := float64(k)
		if size-k < k {
			d = float64(size - k)
		}
		kernel[k] = -1 / (math.Pi * d * math.Pi * d)
	}

	fft := fourier.NewFFT(size)
	coeffs := fft.Coefficients(nil, kernel)
	for k := 0; k < half; k++ {
		response[k] = 2 * real(coeffs[k])
	}

	switch f {
	case FilterSheppLogan:
		for k := 1; k < half; k++ {
			omega := math.Pi * float64(k) / float64(size)
			response[k] *= math.Sin(omega) / omega
		}
	case FilterHamming:
		for k := 0; k < half; k++ {
			response[k] *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(shifted(k, size))/float64(size-1))
		}
	case FilterHann:
		for k := 0; k < half; k++ {
			response[k] *= 0.5 - 0.5*math.Cos(2*math.Pi*float64(shifted(k, size))/float64(size-1))
		}
	}

	return response
}

// shifted maps frequency index k to the window sample that lands on it once
// the window is centred on zero frequency
func shifted(k, size int) int {
	return (k + size/2) % size
}

// profileFilter filters detector profiles of a fixed length. It owns its FFT
// work buffers and is therefore not safe for concurrent use.
type profileFilter struct {
	bins     int
	fft      *fourier.FFT
	response []float64
	padded   []float64
	coeffs   []complex128
	out      []float64
}

func newProfileFilter(f Filter, bins int) *profileFilter {
	size := paddedSize(bins)
	return &profileFilter{
		bins:     bins,
		fft:      fourier.NewFFT(size),
		response: filterResponse(f, size),
		padded:   make([]float64, size),
		coeffs:   make([]complex128, size/2+1),
		out:      make([]float64, size),
	}
}

// apply filters src into dst; both have length bins
func (p *profileFilter) apply(dst, src []float64) {
	copy(p.padded, src)
	for i := len(src); i < len(p.padded); i++ {
		p.padded[i] = 0
	}

	p.fft.Coefficients(p.coeffs, p.padded)
	for k := range p.coeffs {
		p.coeffs[k] *= complex(p.response[k], 0)
	}
	p.fft.Sequence(p.out, p.coeffs)

	// gonum leaves the inverse transform unnormalized
	scale := 1 / float64(len(p.padded))
	for i := 0; i < p.bins; i++ {
		dst[i] = p.out[i] * scale
	}
}
