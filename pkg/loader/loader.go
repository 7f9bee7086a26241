// Package loader turns the artifacts of a rotating SPECT acquisition into an
// ordered projection set. Phase space files are grouped by angle index and
// binned into count images, angles come from the rotation log, and a
// synthetic phantom acquisition stands in when no readable data exists.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
	"spectrecon/pkg/projector"
)

// ErrNoProjections signals that the input directory holds no readable
// projection artifacts. Load reacts to it by synthesizing data.
var ErrNoProjections = errors.New("no projection artifacts found")

var artifactPattern = regexp.MustCompile(`^phase_space_head_(\d+)_angle_(\d+)(\.[A-Za-z0-9]+)$`)

// Loader reads projection sets from an acquisition directory
type Loader struct {
	cfg     config.Loader
	proj    *projector.Projector
	log     logrus.FieldLogger
	readers map[string]EventReader
}

// New creates a loader. The projector is only used by the synthetic fallback.
func New(cfg config.Loader, proj *projector.Projector, log logrus.FieldLogger) *Loader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loader{
		cfg:     cfg,
		proj:    proj,
		log:     log.WithField("component", "loader"),
		readers: defaultReaders(),
	}
}

// RegisterReader installs or replaces the reader for an artifact extension
// such as ".root"
func (l *Loader) RegisterReader(ext string, r EventReader) {
	l.readers[strings.ToLower(ext)] = r
}

// Load returns the projection set of the configured directory. When the
// directory has no readable artifacts a synthetic set is returned instead and
// a warning is logged; any other failure is returned as an error.
func (l *Loader) Load() (*models.ProjectionSet, error) {
	ps, err := l.loadArtifacts()
	if errors.Is(err, ErrNoProjections) {
		l.log.WithError(err).Warn("Acquisition data unavailable, generating synthetic Shepp-Logan projections")
		ps, err = Synthesize(l.cfg, l.proj)
		if err != nil {
			return nil, fmt.Errorf("synthetic fallback failed: %w", err)
		}
		l.log.WithFields(logrus.Fields{
			"angles":       ps.Len(),
			"total_counts": ps.TotalCounts(),
		}).Info("Synthetic projections generated")
		return ps, nil
	}
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func (l *Loader) loadArtifacts() (*models.ProjectionSet, error) {
	groups, err := l.scan()
	if err != nil {
		return nil, err
	}

	logged, err := l.rotationAngles()
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(groups))
	for idx := range groups {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	l.log.WithFields(logrus.Fields{
		"dir":    l.cfg.InputDir,
		"angles": len(indices),
	}).Info("Loading phase space data")

	ps := &models.ProjectionSet{
		Images: make([]*models.Image, 0, len(indices)),
		Angles: make([]float64, 0, len(indices)),
	}
	for i, idx := range indices {
		img := models.NewImage(l.cfg.Bins, l.cfg.Bins)
		for _, path := range groups[idx] {
			reader := l.readers[strings.ToLower(filepath.Ext(path))]
			xs, ys, err := reader(path, l.cfg)
			if err != nil {
				l.log.WithError(err).WithField("file", filepath.Base(path)).Warn("Could not read artifact")
				continue
			}
			accepted := Histogram(img, xs, ys, l.cfg.Extent)
			l.log.WithFields(logrus.Fields{
				"file":     filepath.Base(path),
				"events":   len(xs),
				"accepted": accepted,
			}).Debug("Binned artifact")
		}

		// Unlogged angles are spaced by position, so sparse indices stay in [0, 360)
		angle, ok := logged[idx]
		if !ok {
			angle = float64(i) * 360 / float64(len(indices))
		}
		ps.Images = append(ps.Images, img)
		ps.Angles = append(ps.Angles, angle)
	}

	l.log.WithFields(logrus.Fields{
		"projections":  ps.Len(),
		"total_counts": ps.TotalCounts(),
	}).Info("Projection matrix assembled")

	return ps, nil
}

// scan groups readable artifacts by angle index. A missing directory, an
// empty one or one whose artifacts have no registered reader all yield
// ErrNoProjections.
func (l *Loader) scan() (map[int][]string, error) {
	entries, err := os.ReadDir(l.cfg.InputDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoProjections, l.cfg.InputDir)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading input directory: %w", err)
	}

	groups := make(map[int][]string)
	found, unsupported := 0, 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := artifactPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		found++

		if _, ok := l.readers[strings.ToLower(m[3])]; !ok {
			unsupported++
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		groups[idx] = append(groups[idx], filepath.Join(l.cfg.InputDir, e.Name()))
	}

	if len(groups) == 0 {
		if unsupported > 0 {
			return nil, fmt.Errorf("%w: no reader for %d artifacts in %s", ErrNoProjections, unsupported, l.cfg.InputDir)
		}
		return nil, fmt.Errorf("%w in %s", ErrNoProjections, l.cfg.InputDir)
	}

	for idx := range groups {
		sort.Strings(groups[idx])
	}
	l.log.WithFields(logrus.Fields{"artifacts": found, "skipped": unsupported}).Debug("Scanned input directory")

	return groups, nil
}

// rotationAngles parses the rotation log if one exists. A missing log yields
// an empty map.
func (l *Loader) rotationAngles() (map[int]float64, error) {
	if l.cfg.RotationLog == "" {
		return map[int]float64{}, nil
	}

	path := filepath.Join(l.cfg.InputDir, l.cfg.RotationLog)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		l.log.Warn("No rotation log found, using evenly spaced angles")
		return map[int]float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening rotation log: %w", err)
	}
	defer f.Close()

	angles, err := ParseRotationLog(f)
	if err != nil {
		return nil, err
	}
	if len(angles) == 0 {
		l.log.Warn("Rotation log has no projection entries, using evenly spaced angles")
	} else {
		l.log.WithField("angles", len(angles)).Info("Loaded rotation info")
	}
	return angles, nil
}
