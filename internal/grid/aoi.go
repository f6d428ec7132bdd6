package grid

import (
	"math"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the tessellation lifecycle of an AreaOfInterest.
type State int

const (
	// Undivided is the initial state: no cells exist yet.
	Undivided State = iota
	// Divided is terminal: the cell sequence is fixed for the AOI's lifetime.
	Divided
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Undivided:
		return "undivided"
	case Divided:
		return "divided"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyDivided is returned by Divide on every call after the first.
	ErrAlreadyDivided = eris.New("grid: area of interest already divided")
	// ErrNotDivided is returned by cell accessors before Divide has run.
	ErrNotDivided = eris.New("grid: area of interest not divided")
	// ErrCellIndex is returned for an index outside the cell sequence.
	ErrCellIndex = eris.New("grid: cell index out of range")
	// ErrAttributeSet is returned when a cell's attribute is written twice.
	ErrAttributeSet = eris.New("grid: cell attribute already set")
	// ErrTooManyCells is returned when a resolution would produce more cells
	// than the AOI's cap allows.
	ErrTooManyCells = eris.New("grid: too many cells")
)

// DefaultMaxCells caps an AOI whose MaxCells is zero.
const DefaultMaxCells = 10_000_000

// Cell is one grid square. Its bounding box never changes after Divide; the
// attribute is written at most once by the worker owning the cell's index.
type Cell struct {
	BBox
	Attribute    string `json:"attribute,omitempty"`
	HasAttribute bool   `json:"has_attribute"`
}

// AreaOfInterest is a bounding box to tessellate at a fixed resolution.
// The anchor is the lower-left corner and is the origin of the grid.
type AreaOfInterest struct {
	Lon1, Lat1, Lon2, Lat2 float64
	Resolution             float64 // meters
	AnchorLon, AnchorLat   float64
	MaxCells               int // 0 means DefaultMaxCells

	mu    sync.Mutex
	state State
	cells []Cell
	cols  int
	rows  int
}

// NewAreaOfInterest validates the corners and resolution and returns an
// undivided AOI. Corners may be given in any order.
func NewAreaOfInterest(lon1, lat1, lon2, lat2, resMeters float64) (*AreaOfInterest, error) {
	if math.IsNaN(resMeters) || math.IsInf(resMeters, 0) || resMeters <= 0 {
		return nil, eris.Errorf("grid: resolution must be a positive number of meters, got %v", resMeters)
	}
	for _, lon := range []float64{lon1, lon2} {
		if math.IsNaN(lon) || lon < -180 || lon > 180 {
			return nil, eris.Errorf("grid: longitude %v out of range [-180, 180]", lon)
		}
	}
	for _, lat := range []float64{lat1, lat2} {
		if math.IsNaN(lat) || lat < -90 || lat > 90 {
			return nil, eris.Errorf("grid: latitude %v out of range [-90, 90]", lat)
		}
	}

	return &AreaOfInterest{
		Lon1:       lon1,
		Lat1:       lat1,
		Lon2:       lon2,
		Lat2:       lat2,
		Resolution: resMeters,
		AnchorLon:  math.Min(lon1, lon2),
		AnchorLat:  math.Min(lat1, lat2),
	}, nil
}

// NewFromBBox is NewAreaOfInterest for a BBox value.
func NewFromBBox(b BBox, resMeters float64) (*AreaOfInterest, error) {
	return NewAreaOfInterest(b.Lon1, b.Lat1, b.Lon2, b.Lat2, resMeters)
}

// BBox returns the AOI's requested extent as given at construction.
func (a *AreaOfInterest) BBox() BBox {
	return BBox{Lon1: a.Lon1, Lat1: a.Lat1, Lon2: a.Lon2, Lat2: a.Lat2}
}

// MidLatitude returns the reference latitude for this AOI's conversions.
func (a *AreaOfInterest) MidLatitude() float64 {
	return MidLatitude(a.Lat1, a.Lat2)
}

// State returns the current lifecycle state.
func (a *AreaOfInterest) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Divide tessellates the AOI into cells of Resolution meters per side. The
// grid has floor(meters/res)+1 cells along each axis so a partial trailing
// cell covers any remainder. Cells are stored row-major from the anchor:
// index = row*cols + col.
//
// Divide succeeds once. Later calls return ErrAlreadyDivided and leave the
// existing cells untouched. A grid over the cell cap returns ErrTooManyCells
// and the AOI stays undivided.
func (a *AreaOfInterest) Divide() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Divided {
		return ErrAlreadyDivided
	}

	midLat := a.MidLatitude()
	cols, rows, err := a.PlannedDimensions()
	if err != nil {
		return err
	}

	lonStep, err := ToDegrees(a.Resolution, Lon, midLat)
	if err != nil {
		return eris.Wrap(err, "grid: divide")
	}
	latStep, err := ToDegrees(a.Resolution, Lat, midLat)
	if err != nil {
		return eris.Wrap(err, "grid: divide")
	}

	cells := make([]Cell, 0, cols*rows)
	for row := range rows {
		lat := a.AnchorLat + float64(row)*latStep
		for col := range cols {
			lon := a.AnchorLon + float64(col)*lonStep
			cells = append(cells, Cell{BBox: BBox{
				Lon1: lon,
				Lat1: lat,
				Lon2: lon + lonStep,
				Lat2: lat + latStep,
			}})
		}
	}

	a.cells = cells
	a.cols = cols
	a.rows = rows
	a.state = Divided

	zap.L().Debug("grid: divided area of interest",
		zap.Int("cols", cols),
		zap.Int("rows", rows),
		zap.Int("cells", len(cells)),
		zap.Float64("resolution_m", a.Resolution),
	)
	return nil
}

// PlannedDimensions returns the columns and rows Divide produces, without
// allocating any cells. It returns ErrTooManyCells when the grid would exceed
// the cell cap or cannot be represented at all.
func (a *AreaOfInterest) PlannedDimensions() (cols, rows int, err error) {
	lonMeters, latMeters := ToEuclideanDistance(a.BBox(), a.MidLatitude())
	fc := math.Floor(lonMeters/a.Resolution) + 1
	fr := math.Floor(latMeters/a.Resolution) + 1

	limit := a.MaxCells
	if limit <= 0 {
		limit = DefaultMaxCells
	}
	// Compared as floats: the int conversion of a huge or infinite count is
	// undefined and cols*rows may overflow.
	if math.IsNaN(fc) || math.IsNaN(fr) || math.IsInf(fc, 0) || math.IsInf(fr, 0) || fc*fr > float64(limit) {
		return 0, 0, eris.Wrapf(ErrTooManyCells, "%.0f x %.0f cells at %g m exceeds the limit of %d",
			fc, fr, a.Resolution, limit)
	}
	return int(fc), int(fr), nil
}

// Dimensions returns the number of columns and rows. Both are zero before Divide.
func (a *AreaOfInterest) Dimensions() (cols, rows int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cols, a.rows
}

// Len returns the number of cells.
func (a *AreaOfInterest) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cells)
}

// Cells returns a copy of the cell sequence in row-major order.
func (a *AreaOfInterest) Cells() []Cell {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Cell, len(a.cells))
	copy(out, a.cells)
	return out
}

// Cell returns a copy of the cell at index i.
func (a *AreaOfInterest) Cell(i int) (Cell, error) {
	if err := a.checkIndex(i); err != nil {
		return Cell{}, err
	}
	return a.cells[i], nil
}

// CellBBox returns the bounding box of the cell at index i.
func (a *AreaOfInterest) CellBBox(i int) (BBox, error) {
	c, err := a.Cell(i)
	if err != nil {
		return BBox{}, err
	}
	return c.BBox, nil
}

// SetAttribute records the attribute of cell i. Each index belongs to exactly
// one writer, so no lock is taken here; the caller's join barrier orders the
// writes before any reader. A second write to the same cell fails.
func (a *AreaOfInterest) SetAttribute(i int, value string) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	c := &a.cells[i]
	if c.HasAttribute {
		return eris.Wrapf(ErrAttributeSet, "cell %d", i)
	}
	c.Attribute = value
	c.HasAttribute = true
	return nil
}

// checkIndex reads the cell slice without the mutex. The slice is assigned
// once inside Divide and never resized afterwards.
func (a *AreaOfInterest) checkIndex(i int) error {
	if a.cells == nil {
		return ErrNotDivided
	}
	if i < 0 || i >= len(a.cells) {
		return eris.Wrapf(ErrCellIndex, "index %d, len %d", i, len(a.cells))
	}
	return nil
}
