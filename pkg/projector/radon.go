// Package projector implements the discrete Radon transform pair used by
// every reconstruction algorithm: forward projection of an image into
// sinogram rows and (optionally filtered) back projection of sinogram rows
// into an image.
package projector

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"spectrecon/internal/models"
)

// Projector holds the execution parameters of the projection pair.
// It carries no per-call state and may be shared by several algorithms.
type Projector struct {
	// Workers bounds the goroutines used per call
	Workers int
}

// New creates a projector using the given number of workers.
// A non-positive count uses every available CPU.
func New(workers int) *Projector {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Projector{Workers: workers}
}

// Forward computes the discrete Radon transform of a square image: for each
// angle the image is rotated about its centre and summed down its columns,
// giving one detector profile with as many bins as the image is wide.
func (p *Projector) Forward(img *models.Image, angles []float64) (*models.Sinogram, error) {
	if !img.Square() {
		return nil, fmt.Errorf("forward projection needs a square image, got %dx%d", img.Rows, img.Cols)
	}

	n := img.Cols
	sino := models.NewSinogram(len(angles), n)
	center := float64(n / 2)

	p.parallel(len(angles), func(start, end int) {
		for a := start; a < end; a++ {
			theta := angles[a] * math.Pi / 180
			cos, sin := math.Cos(theta), math.Sin(theta)
			row := sino.Row(a)

			for x := 0; x < n; x++ {
				dx := float64(x) - center
				sum := 0.0
				for y := 0; y < n; y++ {
					dy := float64(y) - center
					col := center + cos*dx + sin*dy
					r := center - sin*dx + cos*dy
					sum += bilinear(img, r, col)
				}
				row[x] = sum
			}
		}
	})

	return sino, nil
}

// Back smears each sinogram row back across a square image along its
// acquisition direction and accumulates over all angles. The output side
// equals the number of detector bins and pixels outside the inscribed
// reconstruction circle are zero.
//
// With FilterNone the raw accumulation is returned, which is the adjoint
// used by the iterative methods. With any other filter each profile is
// filtered first and the sum is scaled by pi/(2*angles), giving filtered
// back projection.
func (p *Projector) Back(sino *models.Sinogram, angles []float64, filter Filter) (*models.Image, error) {
	if sino.Angles != len(angles) {
		return nil, fmt.Errorf("sinogram has %d rows but %d angles were given", sino.Angles, len(angles))
	}

	n := sino.Bins
	img := models.NewImage(n, n)
	if len(angles) == 0 {
		return img, nil
	}

	profiles := sino
	if filter != FilterNone {
		profiles = models.NewSinogram(sino.Angles, n)
		pf := newProfileFilter(filter, n)
		for a := 0; a < sino.Angles; a++ {
			pf.apply(profiles.Row(a), sino.Row(a))
		}
	}

	cos := make([]float64, len(angles))
	sin := make([]float64, len(angles))
	for a, deg := range angles {
		theta := deg * math.Pi / 180
		cos[a], sin[a] = math.Cos(theta), math.Sin(theta)
	}

	center := float64(n / 2)
	radius := float64(n / 2)

	p.parallel(n, func(start, end int) {
		for r := start; r < end; r++ {
			dr := float64(r) - center
			for c := 0; c < n; c++ {
				dc := float64(c) - center
				if dr*dr+dc*dc > radius*radius {
					continue
				}

				sum := 0.0
				for a := range angles {
					t := dc*cos[a] - dr*sin[a] + center
					sum += linear(profiles.Row(a), t)
				}
				img.Set(r, c, sum)
			}
		}
	})

	if filter != FilterNone {
		scale := math.Pi / (2 * float64(len(angles)))
		for i := range img.Data {
			img.Data[i] *= scale
		}
	}

	return img, nil
}

// parallel splits [0, n) into contiguous chunks, one per worker, in the same
// way the volume assembly of the slice viewer divides slices among cores.
// Each index is handled by exactly one goroutine, so results do not depend
// on the worker count.
func (p *Projector) parallel(n int, fn func(start, end int)) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	perWorker := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}

// bilinear samples img at fractional (row, col) with zero outside the grid
func bilinear(img *models.Image, row, col float64) float64 {
	r0 := math.Floor(row)
	c0 := math.Floor(col)
	fr := row - r0
	fc := col - c0
	ri, ci := int(r0), int(c0)

	v := 0.0
	if w := (1 - fr) * (1 - fc); w != 0 {
		v += w * pixel(img, ri, ci)
	}
	if w := (1 - fr) * fc; w != 0 {
		v += w * pixel(img, ri, ci+1)
	}
	if w := fr * (1 - fc); w != 0 {
		v += w * pixel(img, ri+1, ci)
	}
	if w := fr * fc; w != 0 {
		v += w * pixel(img, ri+1, ci+1)
	}
	return v
}

func pixel(img *models.Image, r, c int) float64 {
	if r < 0 || r >= img.Rows || c < 0 || c >= img.Cols {
		return 0
	}
	return img.Data[r*img.Cols+c]
}

// linear interpolates profile at fractional index t with zero outside
// [0, len-1]
func linear(profile []float64, t float64) float64 {
	last := float64(len(profile) - 1)
	if t < 0 || t > last {
		return 0
	}

	i := int(t)
	if i >= len(profile)-1 {
		return profile[len(profile)-1]
	}
	f := t - float64(i)
	return profile[i]*(1-f) + profile[i+1]*f
}
