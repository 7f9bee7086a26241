// Package output persists the artifacts of a reconstruction run: the
// sinogram, the reconstructed image in several formats and the run manifest.
//
// NumPy arrays are the primary artifacts and a failure to write them fails
// the run. Every other format is optional; a failure is logged and the
// format is skipped.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KyungWonPark/nifti"
	"github.com/kshedden/gonpy"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/visualization"
)

// ErrPrimaryWrite wraps failures to write a primary artifact
var ErrPrimaryWrite = errors.New("failed to write primary artifact")

// previewScale magnifies PNG previews
const previewScale = 4

// Writer writes artifacts into Dir
type Writer struct {
	// Dir receives every artifact
	Dir string

	// Formats selects the optional image formats
	Formats []string

	log logrus.FieldLogger
}

// NewWriter creates a writer for dir
func NewWriter(dir string, formats []string, log logrus.FieldLogger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{
		Dir:     dir,
		Formats: formats,
		log:     log.WithField("component", "output"),
	}
}

// Prepare creates the output directory
func (w *Writer) Prepare() error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("%w: error creating output directory: %v", ErrPrimaryWrite, err)
	}
	return nil
}

func (w *Writer) path(name string) string {
	return filepath.Join(w.Dir, name)
}

func (w *Writer) wants(format string) bool {
	for _, f := range w.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// WriteSinogram saves the sinogram as sinogram.npy and, when PNG output is
// enabled, a sinogram.png preview. It returns the written file names.
func (w *Writer) WriteSinogram(sino *models.Sinogram) ([]string, error) {
	name := "sinogram.npy"
	if err := writeNPY(w.path(name), sino.Data, sino.Angles, sino.Bins); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPrimaryWrite, name, err)
	}
	written := []string{name}
	w.log.WithField("file", name).Info("Saved sinogram")

	if w.wants(config.FormatPNG) {
		if name, ok := w.optional("sinogram.png", func(path string) error {
			v, err := visualization.NewSinogramViewer(sino)
			if err != nil {
				return err
			}
			v.Scale = previewScale
			return v.SavePlane(0, path)
		}); ok {
			written = append(written, name)
		}
	}

	return written, nil
}

// WriteImage saves the reconstructed image as reconstructed_<algorithm>.npy
// followed by every enabled optional format. It returns the written file
// names.
func (w *Writer) WriteImage(img *models.Image, algorithm string) ([]string, error) {
	prefix := "reconstructed_" + algorithm

	name := prefix + ".npy"
	if err := writeNPY(w.path(name), img.Data, img.Rows, img.Cols); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPrimaryWrite, name, err)
	}
	written := []string{name}
	w.log.WithField("file", name).Info("Saved reconstruction")

	type target struct {
		format string
		name   string
		write  func(path string) error
	}
	targets := []target{
		{config.FormatMHD, prefix + ".mhd", func(path string) error { return WriteMetaImage(path, img) }},
		{config.FormatNIfTI, prefix + ".nii.gz", func(path string) error { return writeNIfTI(path, img) }},
		{config.FormatTIFF, prefix + ".tiff", func(path string) error { return writeTIFF(path, img) }},
		{config.FormatPNG, prefix + ".png", func(path string) error {
			v, err := visualization.NewViewer(img)
			if err != nil {
				return err
			}
			v.Scale = previewScale
			return v.SavePlane(0, path)
		}},
	}

	for _, t := range targets {
		if !w.wants(t.format) {
			continue
		}
		if name, ok := w.optional(t.name, t.write); ok {
			written = append(written, name)
			if t.format == config.FormatMHD {
				written = append(written, rawName(name))
			}
		}
	}

	return written, nil
}

// optional runs write for an optional artifact and logs instead of failing
func (w *Writer) optional(name string, write func(path string) error) (string, bool) {
	if err := write(w.path(name)); err != nil {
		w.log.WithError(err).WithField("file", name).Warn("Skipping optional artifact")
		return "", false
	}
	w.log.WithField("file", name).Debug("Saved optional artifact")
	return name, true
}

// writeNPY stores a rows x cols float64 array in row-major order
func writeNPY(path string, data []float64, rows, cols int) error {
	npy, err := gonpy.NewFileWriter(path)
	if err != nil {
		return err
	}
	npy.Shape = []int{rows, cols}
	return npy.WriteFloat64(data)
}

// niftiFloat32 is the NIfTI-1 datatype code of 32-bit float voxels
const niftiFloat32 = 16

// writeNIfTI stores the image as a gzipped single-slice float32 volume with
// x along columns, y along rows and unit voxel spacing. path must end in
// .nii.gz.
func writeNIfTI(path string, img *models.Image) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("nifti encoder failed: %v", r)
		}
	}()

	vol := nifti.NewImg(img.Cols, img.Rows, 1, 1)

	header := vol.GetHeader()
	header.Datatype = niftiFloat32
	header.Bitpix = 32
	header.Pixdim = [8]float32{1, 1, 1, 1, 1, 1, 1, 1}
	header.XyztUnits = 2 // mm
	header.CalMin, header.CalMax = 0, 0
	header.QformCode, header.SformCode = 1, 1
	header.QuaternB, header.QuaternC, header.QuaternD = 0, 0, 0
	header.QoffsetX, header.QoffsetY, header.QoffsetZ = 0, 0, 0
	header.SrowX = [4]float32{1, 0, 0, 0}
	header.SrowY = [4]float32{0, 1, 0, 0}
	header.SrowZ = [4]float32{0, 0, 1, 0}
	vol.SetNewHeader(header)

	for r := 0; r < img.Rows; r++ {
		for c := 0; c < img.Cols; c++ {
			vol.SetAt(uint32(c), uint32(r), 0, 0, float32(img.At(r, c)))
		}
	}

	// Save appends the .gz suffix itself
	vol.Save(strings.TrimSuffix(path, ".gz"))

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("nifti file was not created: %w", err)
	}
	return nil
}

// writeTIFF stores the image as a 16-bit grayscale TIFF spanning its
// min-max range
func writeTIFF(path string, img *models.Image) error {
	v, err := visualization.NewViewer(img)
	if err != nil {
		return err
	}
	gray, err := v.ExtractSlice("z", 0)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := tiff.Encode(f, gray, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return err
	}
	return f.Close()
}
