package remap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

// ErrNotConfigured is returned by remap calls made before AssignMaps.
var ErrNotConfigured = errors.New("remapper has no weights assigned")

// ColumnDim names the flattened cubed-sphere cell axis.
const ColumnDim = "ncol"

// RowSumTolerance is how far a weight row may sum from 1 before AssignMaps
// logs a warning.
const RowSumTolerance = 1e-6

// Columns is a cubed-sphere forecast with the face, height and width axes
// merged into one ncol axis, laid out
// [forecast_lead_time, initialization_time, varlev, ncol].
type Columns struct {
	LeadTimes []time.Duration
	InitTimes []time.Time
	VarLevels []datasets.VarLevel
	NCol      int

	Data []float32
}

// DimNames returns the dimension names in storage order.
func (c *Columns) DimNames() []string {
	return []string{forecast.LeadTimeDim, forecast.InitTimeDim, forecast.VarLevDim, ColumnDim}
}

// Dims returns the dimension sizes in storage order.
func (c *Columns) Dims() []int {
	return []int{len(c.LeadTimes), len(c.InitTimes), len(c.VarLevels), c.NCol}
}

// Remapper is the CubeSphereRemapper. It starts unconfigured; AssignMaps
// moves it to configured. Once configured it may be used concurrently.
type Remapper struct {
	cube   grid.Topology
	latlon grid.Topology
	logger *slog.Logger

	mu      sync.RWMutex
	forward *Weights // lat/lon -> cubed sphere
	inverse *Weights // cubed sphere -> lat/lon
}

// NewRemapper returns an unconfigured remapper between cube and latlon.
func NewRemapper(cube, latlon grid.Topology) (*Remapper, error) {
	if cube.Kind != grid.KindCubeSphere {
		return nil, fmt.Errorf("source grid must be a cubed sphere, got %v", cube.Kind)
	}
	if latlon.Kind != grid.KindLatLon {
		return nil, fmt.Errorf("target grid must be lat/lon, got %v", latlon.Kind)
	}
	if err := cube.Validate(); err != nil {
		return nil, err
	}
	if err := latlon.Validate(); err != nil {
		return nil, err
	}
	return &Remapper{cube: cube, latlon: latlon, logger: slog.Default()}, nil
}

// WithLogger sets the logger.
func (r *Remapper) WithLogger(l *slog.Logger) *Remapper {
	if l != nil {
		r.logger = l
	}
	return r
}

// CubeSphere returns the cubed-sphere topology.
func (r *Remapper) CubeSphere() grid.Topology { return r.cube }

// LatLon returns the lat/lon topology.
func (r *Remapper) LatLon() grid.Topology { return r.latlon }

// Configured reports whether weights have been assigned.
func (r *Remapper) Configured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inverse != nil
}

// AssignMaps installs the lat/lon->cubed sphere (forward) and cubed
// sphere->lat/lon (inverse) weights after checking them against the
// configured grids. On error the remapper keeps its previous state.
func (r *Remapper) AssignMaps(forward, inverse *Weights) error {
	if forward == nil || inverse == nil {
		return fmt.Errorf("both forward and inverse weights are required")
	}
	checks := []struct {
		what      string
		want, got int
	}{
		{"forward map source cells", r.latlon.Cells(), forward.SrcCells},
		{"forward map destination cells", r.cube.Cells(), forward.DstCells},
		{"inverse map source cells", r.cube.Cells(), inverse.SrcCells},
		{"inverse map destination cells", r.latlon.Cells(), inverse.DstCells},
	}
	for _, c := range checks {
		if err := grid.CheckDim(c.what, c.want, c.got); err != nil {
			return err
		}
	}
	if err := forward.Check(); err != nil {
		return fmt.Errorf("forward map: %w", err)
	}
	if err := inverse.Check(); err != nil {
		return fmt.Errorf("inverse map: %w", err)
	}
	if err := forward.Validate(RowSumTolerance); err != nil {
		r.logger.Warn("forward map is not normalized", "error", err)
	}
	if err := inverse.Validate(RowSumTolerance); err != nil {
		r.logger.Warn("inverse map is not normalized", "error", err)
	}

	r.mu.Lock()
	r.forward, r.inverse = forward, inverse
	r.mu.Unlock()
	r.logger.Info("remap weights assigned", "cube", r.cube, "latlon", r.latlon,
		"forward_nnz", forward.NNZ(), "inverse_nnz", inverse.NNZ())
	return nil
}

// AssignMapFiles loads both maps with LoadMap and assigns them.
func (r *Remapper) AssignMapFiles(forwardPath, inversePath string) error {
	forward, err := LoadMap(forwardPath)
	if err != nil {
		return fmt.Errorf("failed to load forward map: %w", err)
	}
	inverse, err := LoadMap(inversePath)
	if err != nil {
		return fmt.Errorf("failed to load inverse map: %w", err)
	}
	return r.AssignMaps(forward, inverse)
}

// ConvertFromFaces merges the face, height and width axes of a cubed-sphere
// forecast into ncol. Other axes are unchanged and no values are
// interpolated. It works in any state.
func (r *Remapper) ConvertFromFaces(src *forecast.Labeled) (*Columns, error) {
	if err := r.checkLabeled(src, r.cube); err != nil {
		return nil, err
	}
	return &Columns{
		LeadTimes: append([]time.Duration(nil), src.LeadTimes...),
		InitTimes: append([]time.Time(nil), src.InitTimes...),
		VarLevels: append([]datasets.VarLevel(nil), src.VarLevels...),
		NCol:      r.cube.Cells(),
		Data:      append([]float32(nil), src.Data...),
	}, nil
}

// ConvertToFaces splits ncol back into face, height and width.
func (r *Remapper) ConvertToFaces(src *Columns) (*forecast.Labeled, error) {
	if err := checkColumns(src, r.cube.Cells()); err != nil {
		return nil, err
	}
	return &forecast.Labeled{
		LeadTimes: append([]time.Duration(nil), src.LeadTimes...),
		InitTimes: append([]time.Time(nil), src.InitTimes...),
		VarLevels: append([]datasets.VarLevel(nil), src.VarLevels...),
		Topology:  r.cube,
		Data:      append([]float32(nil), src.Data...),
	}, nil
}

// InverseRemap regrids the selected fields of src onto the lat/lon grid.
// An empty selection regrids every field; the output holds the selected
// fields in selection order.
func (r *Remapper) InverseRemap(src *Columns, sel []datasets.VarLevel) (*forecast.Labeled, error) {
	r.mu.RLock()
	w := r.inverse
	r.mu.RUnlock()
	if w == nil {
		return nil, ErrNotConfigured
	}
	if err := checkColumns(src, r.cube.Cells()); err != nil {
		return nil, err
	}
	idx, vars, err := selectFields(src.VarLevels, sel)
	if err != nil {
		return nil, err
	}

	out := &forecast.Labeled{
		LeadTimes: append([]time.Duration(nil), src.LeadTimes...),
		InitTimes: append([]time.Time(nil), src.InitTimes...),
		VarLevels: vars,
		Topology:  r.latlon,
		Data:      make([]float32, len(src.LeadTimes)*len(src.InitTimes)*len(vars)*r.latlon.Cells()),
	}
	ncol := src.NCol
	for lead := range src.LeadTimes {
		for init := range src.InitTimes {
			for o, v := range idx {
				off := ((lead*len(src.InitTimes)+init)*len(src.VarLevels) + v) * ncol
				if _, err := w.Apply(src.Data[off:off+ncol], out.Field(lead, init, o)); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// ForwardRemap regrids the selected fields of a lat/lon forecast onto the
// cubed sphere, returned in ncol layout.
func (r *Remapper) ForwardRemap(src *forecast.Labeled, sel []datasets.VarLevel) (*Columns, error) {
	r.mu.RLock()
	w := r.forward
	r.mu.RUnlock()
	if w == nil {
		return nil, ErrNotConfigured
	}
	if err := r.checkLabeled(src, r.latlon); err != nil {
		return nil, err
	}
	idx, vars, err := selectFields(src.VarLevels, sel)
	if err != nil {
		return nil, err
	}

	ncol := r.cube.Cells()
	out := &Columns{
		LeadTimes: append([]time.Duration(nil), src.LeadTimes...),
		InitTimes: append([]time.Time(nil), src.InitTimes...),
		VarLevels: vars,
		NCol:      ncol,
		Data:      make([]float32, len(src.LeadTimes)*len(src.InitTimes)*len(vars)*ncol),
	}
	for lead := range src.LeadTimes {
		for init := range src.InitTimes {
			for o, v := range idx {
				off := ((lead*len(out.InitTimes)+init)*len(vars) + o) * ncol
				if _, err := w.Apply(src.Field(lead, init, v), out.Data[off:off+ncol]); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

func (r *Remapper) checkLabeled(src *forecast.Labeled, want grid.Topology) error {
	if src == nil {
		return fmt.Errorf("source cannot be nil")
	}
	if !src.Topology.Equal(want) {
		return fmt.Errorf("source grid %v does not match %v", src.Topology, want)
	}
	return src.Validate()
}

func checkColumns(c *Columns, ncol int) error {
	if c == nil {
		return fmt.Errorf("source cannot be nil")
	}
	if err := grid.CheckDim(ColumnDim, ncol, c.NCol); err != nil {
		return err
	}
	want := len(c.LeadTimes) * len(c.InitTimes) * len(c.VarLevels) * c.NCol
	return grid.CheckDim("column data", want, len(c.Data))
}

// selectFields resolves sel against have. Empty sel selects everything.
func selectFields(have, sel []datasets.VarLevel) ([]int, []datasets.VarLevel, error) {
	if len(sel) == 0 {
		idx := make([]int, len(have))
		for i := range idx {
			idx[i] = i
		}
		return idx, append([]datasets.VarLevel(nil), have...), nil
	}
	pos := make(map[datasets.VarLevel]int, len(have))
	for i, vl := range have {
		pos[vl] = i
	}
	idx := make([]int, len(sel))
	for i, vl := range sel {
		j, ok := pos[vl]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", datasets.ErrUnknownVarLevel, vl)
		}
		idx[i] = j
	}
	return idx, append([]datasets.VarLevel(nil), sel...), nil
}
