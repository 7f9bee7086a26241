package projector

import (
	"errors"
	"math"
	"testing"

	"spectrecon/internal/models"
)

func evenAngles(n int) []float64 {
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = float64(i) * 360 / float64(n)
	}
	return angles
}

func TestForwardZeroImage(t *testing.T) {
	p := New(2)
	img := models.NewImage(32, 32)

	sino, err := p.Forward(img, evenAngles(12))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if sino.Angles != 12 || sino.Bins != 32 {
		t.Fatalf("Expected 12x32 sinogram, got %dx%d", sino.Angles, sino.Bins)
	}
	for i, v := range sino.Data {
		if v != 0 {
			t.Fatalf("Expected all-zero output, got %f at %d", v, i)
		}
	}
}

func TestForwardRejectsNonSquare(t *testing.T) {
	p := New(1)
	if _, err := p.Forward(models.NewImage(8, 16), []float64{0}); err == nil {
		t.Error("Expected error for non-square image")
	}
}

func TestForwardPointSource(t *testing.T) {
	p := New(1)
	img := models.NewImage(32, 32)
	img.Set(16, 20, 1)

	sino, err := p.Forward(img, []float64{0, 90})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	// At 0 degrees columns are summed directly
	if got := sino.Row(0)[20]; math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected unit response at bin 20 for 0 degrees, got %f", got)
	}
	// At 90 degrees the point sits on the central row, so it maps to the centre bin
	if got := sino.Row(1)[16]; math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected unit response at bin 16 for 90 degrees, got %f", got)
	}

	for a := 0; a < 2; a++ {
		sum := 0.0
		for _, v := range sino.Row(a) {
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("Angle %d: expected mass 1, got %f", a, sum)
		}
	}
}

func TestBackProjectionMatchesForwardGeometry(t *testing.T) {
	p := New(1)
	img := models.NewImage(32, 32)
	img.Set(10, 22, 1)

	angles := evenAngles(36)
	sino, err := p.Forward(img, angles)
	if err != nil {
		t.Fatal(err)
	}

	back, err := p.Back(sino, angles, FilterNone)
	if err != nil {
		t.Fatal(err)
	}

	r, c := back.ArgMax()
	if r != 10 || c != 22 {
		t.Errorf("Expected back projection peak at (10,22), got (%d,%d)", r, c)
	}
}

func TestBackProjectionCircleMask(t *testing.T) {
	p := New(3)
	sino := models.NewSinogram(8, 16)
	for i := range sino.Data {
		sino.Data[i] = 1
	}

	img, err := p.Back(sino, evenAngles(8), FilterNone)
	if err != nil {
		t.Fatal(err)
	}

	if img.Rows != 16 || img.Cols != 16 {
		t.Fatalf("Expected 16x16 image, got %dx%d", img.Rows, img.Cols)
	}
	if img.At(0, 0) != 0 || img.At(15, 15) != 0 {
		t.Error("Corners outside the reconstruction circle should be zero")
	}
	if img.At(8, 8) <= 0 {
		t.Error("Centre should receive every angle")
	}
}

func TestBackRejectsAngleMismatch(t *testing.T) {
	p := New(1)
	if _, err := p.Back(models.NewSinogram(4, 8), evenAngles(3), FilterNone); err == nil {
		t.Error("Expected error for mismatched angle count")
	}
}

func TestWorkerCountDoesNotChangeResult(t *testing.T) {
	img := models.NewImage(24, 24)
	for r := 6; r < 14; r++ {
		for c := 8; c < 18; c++ {
			img.Set(r, c, float64(r+c))
		}
	}
	angles := evenAngles(20)

	serial, _ := New(1).Forward(img, angles)
	parallel, _ := New(7).Forward(img, angles)
	for i := range serial.Data {
		if serial.Data[i] != parallel.Data[i] {
			t.Fatalf("Forward differs at %d: %f vs %f", i, serial.Data[i], parallel.Data[i])
		}
	}

	bs, _ := New(1).Back(serial, angles, FilterRamp)
	bp, _ := New(5).Back(serial, angles, FilterRamp)
	for i := range bs.Data {
		if bs.Data[i] != bp.Data[i] {
			t.Fatalf("Back differs at %d: %f vs %f", i, bs.Data[i], bp.Data[i])
		}
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name string
		want Filter
	}{
		{"ramp", FilterRamp},
		{"shepp-logan", FilterSheppLogan},
		{"Hamming", FilterHamming},
		{" hann ", FilterHann},
		{"none", FilterNone},
	}
	for _, tt := range tests {
		got, err := ParseFilter(tt.name)
		if err != nil {
			t.Errorf("ParseFilter(%q) failed: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFilter(%q) = %v, want %v", tt.name, got, tt.want)
		}
		if tt.want != FilterNone && got.String() != tt.want.String() {
			t.Errorf("String round trip failed for %v", got)
		}
	}

	if _, err := ParseFilter("cosine"); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("Expected ErrUnknownFilter, got %v", err)
	}
}

func TestPaddedSize(t *testing.T) {
	tests := map[int]int{1: 64, 32: 64, 33: 128, 64: 128, 128: 256, 129: 512}
	for n, want := range tests {
		if got := paddedSize(n); got != want {
			t.Errorf("paddedSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestFilterResponseShape(t *testing.T) {
	size := 256
	ramp := filterResponse(FilterRamp, size)
	if len(ramp) != size/2+1 {
		t.Fatalf("Expected %d coefficients, got %d", size/2+1, len(ramp))
	}

	// The band-limited ramp has a small positive DC term and rises to ~1 at Nyquist
	if ramp[0] <= 0 || ramp[0] > 0.05 {
		t.Errorf("Unexpected DC response %f", ramp[0])
	}
	if math.Abs(ramp[size/2]-1) > 0.05 {
		t.Errorf("Expected Nyquist response near 1, got %f", ramp[size/2])
	}
	if !(ramp[size/8] > ramp[8] && ramp[size/4] > ramp[size/8] && ramp[size/2] > ramp[size/4]) {
		t.Error("Ramp response should grow with frequency")
	}
	if math.Abs(ramp[size/4]-0.5) > 0.02 {
		t.Errorf("Expected response near 0.5 at half Nyquist, got %f", ramp[size/4])
	}

	// Apodized kernels never exceed the ramp and damp high frequencies
	for _, f := range []Filter{FilterSheppLogan, FilterHamming, FilterHann} {
		resp := filterResponse(f, size)
		for k := range resp {
			if resp[k] > ramp[k]+1e-12 {
				t.Errorf("%v exceeds ramp at %d", f, k)
				break
			}
		}
		if resp[size/2] >= ramp[size/2] {
			t.Errorf("%v should attenuate Nyquist", f)
		}
	}

	none := filterResponse(FilterNone, size)
	for k, v := range none {
		if v != 1 {
			t.Fatalf("FilterNone should be identity, got %f at %d", v, k)
		}
	}
}
