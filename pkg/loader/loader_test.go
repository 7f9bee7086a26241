package loader

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kshedden/gonpy"
	"github.com/sirupsen/logrus"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/projector"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig(dir string) config.Loader {
	cfg := config.DefaultConfig().Loader
	cfg.InputDir = dir
	cfg.Bins = 16
	cfg.Extent = 8
	cfg.SyntheticAngles = 12
	return cfg
}

// writeEvents stores an N x 3 (x, y, energy) event table
func writeEvents(t *testing.T, path string, xs, ys []float64) {
	t.Helper()
	data := make([]float64, 0, 3*len(xs))
	for i := range xs {
		data = append(data, xs[i], ys[i], 0.140)
	}

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		t.Fatalf("Failed to create npy writer: %v", err)
	}
	w.Shape = []int{len(xs), 3}
	if err := w.WriteFloat64(data); err != nil {
		t.Fatalf("Failed to write npy file: %v", err)
	}
}

func artifactName(head, idx int) string {
	return fmt.Sprintf("phase_space_head_%d_angle_%03d.npy", head, idx)
}

func TestSheppLogan(t *testing.T) {
	const n = 128
	img := SheppLogan(n)

	if img.Rows != n || img.Cols != n {
		t.Fatalf("Expected %dx%d phantom, got %dx%d", n, n, img.Rows, img.Cols)
	}

	min, max := img.MinMax()
	if min < 0 {
		t.Errorf("Expected non-negative phantom, min is %f", min)
	}
	if math.Abs(max-1) > 1e-9 {
		t.Errorf("Expected skull intensity 1, got %f", max)
	}
	if v := img.At(n/2, n/2); math.Abs(v-0.2) > 1e-9 {
		t.Errorf("Expected brain intensity 0.2 at the centre, got %f", v)
	}
	if v := img.At(0, 0); v != 0 {
		t.Errorf("Expected empty corner, got %f", v)
	}

	if empty := SheppLogan(0); len(empty.Data) != 0 {
		t.Error("Expected empty phantom for n=0")
	}
}

func TestParseRotationLog(t *testing.T) {
	log := strings.Join([]string{
		"ROTATING SPECT ACQUISITION",
		"Total time: 60.0 s",
		"ANGULAR POSITIONS:",
		"  Projection   0:    0.00° at t=   0.00s",
		"  Projection   1:    6.00° at t=   1.00s",
		"Projection 2: 12.50° at t=2.00s",
		"  Projection   3:    bogus° at t=   3.00s",
		"  Projection four:   24.00° at t=   4.00s",
		"  Projection   5     30.00° at t=   5.00s",
		"  Projection   6:    36.00 at t=   6.00s",
		"  Projection   7:  -42.00° at t=   7.00s",
	}, "\n")

	angles, err := ParseRotationLog(strings.NewReader(log))
	if err != nil {
		t.Fatalf("ParseRotationLog failed: %v", err)
	}

	want := map[int]float64{0: 0, 1: 6, 2: 12.5, 7: -42}
	if len(angles) != len(want) {
		t.Fatalf("Expected %d angles, got %d: %v", len(want), len(angles), angles)
	}
	for idx, a := range want {
		if got, ok := angles[idx]; !ok || got != a {
			t.Errorf("Projection %d: expected %f, got %f (present=%v)", idx, a, got, ok)
		}
	}
}

func TestParseRotationLogEmpty(t *testing.T) {
	angles, err := ParseRotationLog(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(angles) != 0 {
		t.Errorf("Expected no angles, got %v", angles)
	}
}

func TestHistogram(t *testing.T) {
	tests := []struct {
		name     string
		x, y     float64
		row, col int
		accepted bool
	}{
		{"lower corner", -4, -4, 0, 0, true},
		{"upper edge inclusive", 4, 4, 3, 3, true},
		{"centre", 0, 0, 2, 2, true},
		{"rows follow y", -3.5, 3.5, 3, 0, true},
		{"below range", -4.01, 0, 0, 0, false},
		{"above range", 0, 4.01, 0, 0, false},
		{"nan", math.NaN(), 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := models.NewImage(4, 4)
			n := Histogram(img, []float64{tt.x}, []float64{tt.y}, 4)

			if !tt.accepted {
				if n != 0 || img.Sum() != 0 {
					t.Errorf("Expected event to be dropped, accepted=%d", n)
				}
				return
			}
			if n != 1 || img.At(tt.row, tt.col) != 1 {
				t.Errorf("Expected count at (%d,%d), image %v", tt.row, tt.col, img.Data)
			}
		})
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	cfg := testConfig(t.TempDir())
	proj := projector.New(2)

	a, err := Synthesize(cfg, proj)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	b, _ := Synthesize(cfg, proj)

	if !a.Synthetic || a.Phantom == nil {
		t.Error("Expected synthetic set with phantom")
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Invalid synthetic set: %v", err)
	}
	if a.Len() != cfg.SyntheticAngles {
		t.Fatalf("Expected %d projections, got %d", cfg.SyntheticAngles, a.Len())
	}

	for i := range a.Images {
		for j, v := range a.Images[i].Data {
			if v != b.Images[i].Data[j] {
				t.Fatalf("Same seed produced different counts at projection %d", i)
			}
			if v < 0 || v != math.Trunc(v) {
				t.Fatalf("Expected non-negative integer counts, got %f", v)
			}
		}
	}

	// Every axial row repeats the same profile
	img := a.Images[3]
	for r := 1; r < img.Rows; r++ {
		for c := 0; c < img.Cols; c++ {
			if img.At(r, c) != img.At(0, c) {
				t.Fatalf("Row %d differs from row 0 at column %d", r, c)
			}
		}
	}

	cfg.Seed = 99
	c, _ := Synthesize(cfg, proj)
	if c.TotalCounts() == a.TotalCounts() {
		t.Error("Expected a different seed to change the noise")
	}
}

func TestSynthesizeAngles(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SyntheticAngles = 60
	ps, err := Synthesize(cfg, projector.New(1))
	if err != nil {
		t.Fatal(err)
	}
	for i, a := range ps.Angles {
		if math.Abs(a-float64(i)*6) > 1e-9 {
			t.Fatalf("Angle %d: expected %f, got %f", i, float64(i)*6, a)
		}
	}
}

func TestLoadFallsBackWhenDirectoryMissing(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "absent"))
	ps, err := New(cfg, projector.New(1), quietLogger()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ps.Synthetic || ps.Len() != cfg.SyntheticAngles {
		t.Errorf("Expected %d synthetic projections, got %d (synthetic=%v)", cfg.SyntheticAngles, ps.Len(), ps.Synthetic)
	}
}

func TestLoadFallsBackWithoutReader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "phase_space_head_0_angle_000.h5"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ps, err := New(testConfig(dir), projector.New(1), quietLogger()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ps.Synthetic {
		t.Error("Expected synthetic fallback when no reader handles the artifacts")
	}
}

func TestLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	// Two heads for angle 0 are summed, angle 1 has a single head
	writeEvents(t, filepath.Join(dir, artifactName(0, 0)), []float64{0, 0}, []float64{0, 0})
	writeEvents(t, filepath.Join(dir, artifactName(1, 0)), []float64{0, 100}, []float64{0, 0})
	writeEvents(t, filepath.Join(dir, artifactName(0, 1)), []float64{-8}, []float64{-8})

	rotation := "ANGULAR POSITIONS:\n  Projection   0:   10.00° at t=   0.00s\n"
	if err := os.WriteFile(filepath.Join(dir, cfg.RotationLog), []byte(rotation), 0644); err != nil {
		t.Fatal(err)
	}

	ps, err := New(cfg, projector.New(1), quietLogger()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ps.Synthetic {
		t.Fatal("Did not expect synthetic data")
	}
	if ps.Len() != 2 {
		t.Fatalf("Expected 2 projections, got %d", ps.Len())
	}

	// Logged angle for index 0, evenly spaced fallback for index 1
	if ps.Angles[0] != 10 || ps.Angles[1] != 180 {
		t.Errorf("Expected angles [10 180], got %v", ps.Angles)
	}

	c := cfg.Bins / 2
	if v := ps.Images[0].At(c, c); v != 3 {
		t.Errorf("Expected 3 summed counts at the centre of projection 0, got %f", v)
	}
	if v := ps.Images[0].Sum(); v != 3 {
		t.Errorf("Expected out-of-range event to be dropped, total %f", v)
	}
	if v := ps.Images[1].At(0, 0); v != 1 {
		t.Errorf("Expected corner count in projection 1, got %f", v)
	}
}

func TestLoadSparseIndicesStayInRange(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	for _, idx := range []int{0, 2, 4} {
		writeEvents(t, filepath.Join(dir, artifactName(0, idx)), []float64{0}, []float64{0})
	}

	ps, err := New(cfg, projector.New(1), quietLogger()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []float64{0, 120, 240}
	if len(ps.Angles) != len(want) {
		t.Fatalf("Expected %d angles, got %v", len(want), ps.Angles)
	}
	for i, a := range want {
		if math.Abs(ps.Angles[i]-a) > 1e-9 {
			t.Errorf("Angle %d: expected %f, got %f", i, a, ps.Angles[i])
		}
	}
}

func TestLoadToleratesUnreadableArtifact(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	writeEvents(t, filepath.Join(dir, artifactName(0, 0)), []float64{1}, []float64{1})
	if err := os.WriteFile(filepath.Join(dir, artifactName(0, 1)), []byte("not numpy"), 0644); err != nil {
		t.Fatal(err)
	}

	ps, err := New(cfg, projector.New(1), quietLogger()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ps.Len() != 2 {
		t.Fatalf("Expected 2 projections, got %d", ps.Len())
	}
	if ps.Images[1].Sum() != 0 {
		t.Error("Expected the unreadable artifact to contribute zero counts")
	}
	if ps.Images[0].Sum() != 1 {
		t.Errorf("Expected 1 count in projection 0, got %f", ps.Images[0].Sum())
	}
}

func TestRegisterReader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "phase_space_head_2_angle_000.csv"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	l := New(testConfig(dir), projector.New(1), quietLogger())
	l.RegisterReader(".CSV", func(string, config.Loader) ([]float64, []float64, error) {
		return []float64{0}, []float64{0}, nil
	})

	ps, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if ps.Synthetic || ps.Len() != 1 || ps.Images[0].Sum() != 1 {
		t.Errorf("Expected one projection from the custom reader, got %d (synthetic=%v)", ps.Len(), ps.Synthetic)
	}
	if ps.Angles[0] != 0 {
		t.Errorf("Expected angle 0 without a rotation log, got %f", ps.Angles[0])
	}
}
