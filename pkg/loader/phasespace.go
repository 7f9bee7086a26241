package loader

import (
	"errors"
	"fmt"
	"math"

	"github.com/kshedden/gonpy"
	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rtree"

	"spectrecon/internal/models"
	"spectrecon/pkg/config"
)

// EventReader returns the detector hit positions recorded in one phase space
// artifact
type EventReader func(path string, cfg config.Loader) (xs, ys []float64, err error)

// defaultReaders maps artifact extensions to their readers
func defaultReaders() map[string]EventReader {
	return map[string]EventReader{
		".root": readROOT,
		".npy":  readNPY,
	}
}

// phaseSpaceTree is the tree name written by the Monte Carlo phase space actor
const phaseSpaceTree = "PhaseSpace"

// readROOT reads the position branches of the phase space tree in a ROOT
// file. When no tree carries the expected name, the first tree is used.
func readROOT(path string, cfg config.Loader) ([]float64, []float64, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening ROOT file: %w", err)
	}
	defer f.Close()

	tree, err := findTree(f)
	if err != nil {
		return nil, nil, err
	}

	var rvars []rtree.ReadVar
	for _, rv := range rtree.NewReadVars(tree) {
		if rv.Name == cfg.PositionX || rv.Name == cfg.PositionY {
			rvars = append(rvars, rv)
		}
	}
	if len(rvars) != 2 {
		return nil, nil, fmt.Errorf("tree %q lacks branches %s and %s", tree.Name(), cfg.PositionX, cfg.PositionY)
	}

	r, err := rtree.NewReader(tree, rvars)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating tree reader: %w", err)
	}
	defer r.Close()

	n := tree.Entries()
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)

	err = r.Read(func(ctx rtree.RCtx) error {
		for _, rv := range rvars {
			v, err := branchValue(rv.Value)
			if err != nil {
				return fmt.Errorf("branch %s: %w", rv.Name, err)
			}
			if rv.Name == cfg.PositionX {
				xs = append(xs, v)
			} else {
				ys = append(ys, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error reading tree %q: %w", tree.Name(), err)
	}

	return xs, ys, nil
}

func findTree(f *groot.File) (rtree.Tree, error) {
	var first rtree.Tree
	for _, key := range f.Keys() {
		obj, err := f.Get(key.Name())
		if err != nil {
			continue
		}
		tree, ok := obj.(rtree.Tree)
		if !ok {
			continue
		}
		if key.Name() == phaseSpaceTree {
			return tree, nil
		}
		if first == nil {
			first = tree
		}
	}

	if first == nil {
		return nil, errors.New("no tree found in ROOT file")
	}
	return first, nil
}

func branchValue(ptr any) (float64, error) {
	switch v := ptr.(type) {
	case *float32:
		return float64(*v), nil
	case *float64:
		return *v, nil
	case *int32:
		return float64(*v), nil
	case *int64:
		return float64(*v), nil
	}
	return 0, fmt.Errorf("unsupported branch type %T", ptr)
}

// readNPY reads an N x k event table (k >= 2) whose first two columns hold
// the x and y positions
func readNPY(path string, _ config.Loader) ([]float64, []float64, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening npy file: %w", err)
	}
	if len(r.Shape) != 2 || r.Shape[1] < 2 {
		return nil, nil, fmt.Errorf("npy event table must be N x k with k >= 2, got shape %v", r.Shape)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading npy data: %w", err)
	}

	n, k := r.Shape[0], r.Shape[1]
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		if r.ColumnMajor {
			xs[i], ys[i] = data[i], data[n+i]
		} else {
			xs[i], ys[i] = data[i*k], data[i*k+1]
		}
	}
	return xs, ys, nil
}

// Histogram accumulates events into img, a bins x bins histogram covering
// [-extent, extent] on both axes. Rows follow y and columns follow x. Events
// exactly on the upper edge land in the last bin; events outside the range
// are dropped. It returns the number of events accepted.
func Histogram(img *models.Image, xs, ys []float64, extent float64) int {
	accepted := 0
	for i := range xs {
		if i >= len(ys) {
			break
		}
		c, okX := binIndex(xs[i], extent, img.Cols)
		r, okY := binIndex(ys[i], extent, img.Rows)
		if !okX || !okY {
			continue
		}
		img.Data[r*img.Cols+c]++
		accepted++
	}
	return accepted
}

func binIndex(v, extent float64, bins int) (int, bool) {
	if math.IsNaN(v) || v < -extent || v > extent {
		return 0, false
	}
	idx := int((v + extent) / (2 * extent) * float64(bins))
	if idx >= bins {
		idx = bins - 1
	}
	return idx, true
}
