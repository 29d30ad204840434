package occupancy

import (
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hpalin2/picarnav/spatialmath"
)

// ErrBadDocument is returned when a persisted grid cannot be decoded into a valid grid.
var ErrBadDocument = errors.New("invalid occupancy document")

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// document is the persisted form of a grid: cells are row-major from the origin, one int8 each.
type document struct {
	Size   int               `json:"size"`
	Origin point             `json:"origin"`
	Cells  []int8            `json:"cells"`
	Pose   *spatialmath.Pose `json:"pose,omitempty"`
}

// Save writes the grid and, if given, the robot pose as JSON.
func (g *Grid) Save(w io.Writer, pose *spatialmath.Pose) error {
	snap := g.Snapshot()
	doc := document{
		Size:   snap.size,
		Origin: point{snap.origin.X, snap.origin.Y},
		Cells:  make([]int8, len(snap.cells)),
		Pose:   pose,
	}
	for i, s := range snap.cells {
		doc.Cells[i] = int8(s)
	}
	enc := json.NewEncoder(w)
	return errors.Wrap(enc.Encode(&doc), "encoding occupancy grid")
}

// Load decodes a grid written by Save. The pose is nil if none was saved.
func Load(r io.Reader) (*Grid, *spatialmath.Pose, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, errors.Wrapf(ErrBadDocument, "decoding: %v", err)
	}
	if doc.Size <= 0 {
		return nil, nil, errors.Wrapf(ErrBadDocument, "size must be positive, got %d", doc.Size)
	}
	if len(doc.Cells) != doc.Size*doc.Size {
		return nil, nil, errors.Wrapf(ErrBadDocument, "expected %d cells, got %d", doc.Size*doc.Size, len(doc.Cells))
	}

	g := NewGridWithOrigin(doc.Size, image.Pt(doc.Origin.X, doc.Origin.Y))
	for i, raw := range doc.Cells {
		s := State(raw)
		if s != Unknown && s != Free && s != Occupied {
			return nil, nil, errors.Wrapf(ErrBadDocument, "cell %d has state %d", i, raw)
		}
		g.cells[i] = s
	}
	return g, doc.Pose, nil
}

// SaveFile writes the grid to path through a temporary file in the same directory so that
// readers never observe a partial document.
func (g *Grid) SaveFile(path string, pose *spatialmath.Pose) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temporary map file")
	}
	defer func() {
		if err != nil {
			//nolint:errcheck
			os.Remove(tmp.Name())
		}
	}()

	if err := g.Save(tmp, pose); err != nil {
		//nolint:errcheck
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temporary map file")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "moving map into place at %q", path)
}

// LoadFile reads a grid saved with SaveFile.
func LoadFile(path string) (*Grid, *spatialmath.Pose, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening map %q", path)
	}
	defer func() {
		//nolint:errcheck
		f.Close()
	}()
	return Load(f)
}
