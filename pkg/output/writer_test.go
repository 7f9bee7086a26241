package output

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kshedden/gonpy"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func gradient(rows, cols int) *models.Image {
	img := models.NewImage(rows, cols)
	for i := range img.Data {
		img.Data[i] = float64(i) / float64(len(img.Data)-1)
	}
	return img
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestWriteSinogram(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, []string{config.FormatPNG}, quietLogger())

	sino := models.NewSinogram(3, 5)
	for i := range sino.Data {
		sino.Data[i] = float64(i)
	}

	written, err := w.WriteSinogram(sino)
	if err != nil {
		t.Fatalf("WriteSinogram failed: %v", err)
	}
	if !contains(written, "sinogram.npy") || !contains(written, "sinogram.png") {
		t.Errorf("Unexpected artifacts %v", written)
	}

	r, err := gonpy.NewFileReader(filepath.Join(dir, "sinogram.npy"))
	if err != nil {
		t.Fatalf("Failed to open sinogram.npy: %v", err)
	}
	if len(r.Shape) != 2 || r.Shape[0] != 3 || r.Shape[1] != 5 {
		t.Errorf("Expected shape [3 5], got %v", r.Shape)
	}
	data, err := r.GetFloat64()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range data {
		if v != sino.Data[i] {
			t.Fatalf("Value %d: expected %f, got %f", i, sino.Data[i], v)
		}
	}
}

func TestWriteImageFormats(t *testing.T) {
	dir := t.TempDir()
	formats := []string{config.FormatMHD, config.FormatTIFF, config.FormatPNG}
	w := NewWriter(dir, formats, quietLogger())

	img := gradient(6, 4)
	written, err := w.WriteImage(img, "osem")
	if err != nil {
		t.Fatalf("WriteImage failed: %v", err)
	}

	for _, name := range []string{
		"reconstructed_osem.npy",
		"reconstructed_osem.mhd",
		"reconstructed_osem.raw",
		"reconstructed_osem.tiff",
		"reconstructed_osem.png",
	} {
		if !contains(written, name) {
			t.Errorf("Expected %s in %v", name, written)
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s on disk: %v", name, err)
		}
	}
	if contains(written, "reconstructed_osem.nii.gz") {
		t.Error("NIfTI was not requested")
	}

	header, err := os.ReadFile(filepath.Join(dir, "reconstructed_osem.mhd"))
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"DimSize = 4 6", "ElementType = MET_FLOAT", "ElementDataFile = reconstructed_osem.raw"} {
		if !strings.Contains(string(header), line) {
			t.Errorf("MetaImage header lacks %q", line)
		}
	}
	raw, _ := os.Stat(filepath.Join(dir, "reconstructed_osem.raw"))
	if raw.Size() != int64(4*len(img.Data)) {
		t.Errorf("Expected %d raw bytes, got %d", 4*len(img.Data), raw.Size())
	}

	f, err := os.Open(filepath.Join(dir, "reconstructed_osem.tiff"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("TIFF does not decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 4 || b.Dy() != 6 {
		t.Errorf("Expected 4x6 TIFF, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestWriteImageNIfTI(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, []string{config.FormatNIfTI}, quietLogger())

	img := gradient(6, 4)
	written, err := w.WriteImage(img, "mlem")
	if err != nil {
		t.Fatalf("WriteImage failed: %v", err)
	}

	name := "reconstructed_mlem.nii.gz"
	if !contains(written, name) {
		t.Fatalf("Expected %s in %v", name, written)
	}

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("NIfTI file missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("NIfTI file is not gzipped: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}

	if want := 348 + 4*len(img.Data); len(data) != want {
		t.Fatalf("Expected %d bytes, got %d", want, len(data))
	}
	if dt := binary.LittleEndian.Uint16(data[70:72]); dt != 16 {
		t.Errorf("Expected float32 datatype 16, got %d", dt)
	}
	for i := 1; i <= 3; i++ {
		if dx := math.Float32frombits(binary.LittleEndian.Uint32(data[76+4*i:])); dx != 1 {
			t.Errorf("Expected unit pixdim[%d], got %f", i, dx)
		}
	}

	// Voxels follow x fastest, which is the image's row-major order
	for i, v := range img.Data {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[348+4*i:]))
		if got != float32(v) {
			t.Fatalf("Voxel %d: expected %f, got %f", i, v, got)
		}
	}
}

func TestOptionalFailureIsSkipped(t *testing.T) {
	dir := t.TempDir()
	// A directory in the way makes the PNG preview unwritable
	if err := os.Mkdir(filepath.Join(dir, "reconstructed_fbp.png"), 0755); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(dir, []string{config.FormatPNG, config.FormatMHD}, quietLogger())
	written, err := w.WriteImage(gradient(4, 4), "fbp")
	if err != nil {
		t.Fatalf("Optional failure must not fail the write: %v", err)
	}
	if contains(written, "reconstructed_fbp.png") {
		t.Error("Expected the PNG preview to be skipped")
	}
	if !contains(written, "reconstructed_fbp.mhd") {
		t.Error("Expected the remaining formats to be written")
	}
}

func TestPrimaryFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(filepath.Join(blocker, "out"), nil, quietLogger())
	if err := w.Prepare(); !errors.Is(err, ErrPrimaryWrite) {
		t.Errorf("Expected ErrPrimaryWrite from Prepare, got %v", err)
	}
	if _, err := w.WriteImage(gradient(2, 2), "mlem"); !errors.Is(err, ErrPrimaryWrite) {
		t.Errorf("Expected ErrPrimaryWrite from WriteImage, got %v", err)
	}
	if _, err := w.WriteSinogram(models.NewSinogram(2, 2)); !errors.Is(err, ErrPrimaryWrite) {
		t.Errorf("Expected ErrPrimaryWrite from WriteSinogram, got %v", err)
	}
}

func sampleManifest() *models.RunManifest {
	return &models.RunManifest{
		Algorithm:  "sirt",
		Iterations: 100,
		Relaxation: 0.15,
		Smoothing:  1,
		Synthetic:  true,
		InputDir:   "./output_rotating_spect",
		OutputDir:  "./output_rotating_spect/reconstruction",
		Angles:     60,
		Rows:       128,
		Cols:       128,
		Stats:      models.ImageStats{Min: 0, Max: 1, Mean: 0.25, Std: 0.125},
		Metrics:    &models.QualityMetrics{RMSE: 0.1, SSIM: 0.8},
		Elapsed:    1500 * time.Millisecond,
		Artifacts:  []string{"sinogram.npy", "reconstructed_sirt.npy"},
	}
}

func TestFormatManifest(t *testing.T) {
	var buf bytes.Buffer
	if err := FormatManifest(&buf, sampleManifest()); err != nil {
		t.Fatal(err)
	}
	text := buf.String()

	for _, want := range []string{
		"RECONSTRUCTION PARAMETERS:",
		"  Algorithm: SIRT",
		"  Iterations: 100",
		"  Relaxation: 0.15",
		"  Shape: (128, 128)",
		"  Min value: 0.000000",
		"  Max value: 1.000000",
		"  Mean value: 0.250000",
		"  Std dev: 0.125000",
		"  Synthetic: true",
		"QUALITY METRICS",
		"  reconstructed_sirt.npy",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Manifest lacks %q", want)
		}
	}
	if strings.Contains(text, "Subsets:") || strings.Contains(text, "Filter:") {
		t.Error("Manifest lists parameters the algorithm does not use")
	}
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil, quietLogger())

	m := sampleManifest()
	written, err := w.WriteManifest(m)
	if err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	if !contains(written, ManifestText) || !contains(written, ManifestYAML) {
		t.Errorf("Unexpected artifacts %v", written)
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestYAML))
	if err != nil {
		t.Fatal(err)
	}
	var got models.RunManifest
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("YAML manifest does not parse: %v", err)
	}
	if got.Algorithm != m.Algorithm || got.Stats != m.Stats || got.Elapsed != m.Elapsed {
		t.Errorf("YAML manifest mismatch: %+v", got)
	}
	if got.Metrics == nil || got.Metrics.SSIM != 0.8 {
		t.Error("Expected metrics in YAML manifest")
	}
}
