package forecast

import (
	"fmt"
	"time"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/grid"
)

// Dimension names of a labeled forecast, before the spatial dimensions.
const (
	LeadTimeDim = "forecast_lead_time"
	InitTimeDim = "initialization_time"
	VarLevDim   = "varlev"
)

// Labeled is a forecast in the layout the remap stage reads:
// [forecast_lead_time, initialization_time, varlev, <spatial>] where
// <spatial> is face, height, width on the cubed sphere and lat, lon on a
// regular grid.
type Labeled struct {
	LeadTimes []time.Duration
	InitTimes []time.Time
	VarLevels []datasets.VarLevel
	Topology  grid.Topology

	// Data is dense in DimNames order.
	Data []float32
}

// DimNames returns the dimension names in storage order.
func (l *Labeled) DimNames() []string {
	return append([]string{LeadTimeDim, InitTimeDim, VarLevDim}, l.Topology.DimNames()...)
}

// Dims returns the dimension sizes in storage order.
func (l *Labeled) Dims() []int {
	return append([]int{len(l.LeadTimes), len(l.InitTimes), len(l.VarLevels)}, l.Topology.Dims()...)
}

// Field returns the cells of one (lead, init, varlev) slice, aliasing Data.
func (l *Labeled) Field(lead, init, v int) []float32 {
	cells := l.Topology.Cells()
	off := ((lead*len(l.InitTimes)+init)*len(l.VarLevels) + v) * cells
	return l.Data[off : off+cells : off+cells]
}

// Validate checks the labels against Data.
func (l *Labeled) Validate() error {
	if err := l.Topology.Validate(); err != nil {
		return err
	}
	want := len(l.LeadTimes) * len(l.InitTimes) * len(l.VarLevels) * l.Topology.Cells()
	return grid.CheckDim("labeled forecast data", want, len(l.Data))
}

// ValidTimes returns init + lead for every pair, indexed [lead][init].
func (l *Labeled) ValidTimes() [][]time.Time {
	out := make([][]time.Time, len(l.LeadTimes))
	for i, lead := range l.LeadTimes {
		out[i] = make([]time.Time, len(l.InitTimes))
		for j, init := range l.InitTimes {
			out[i][j] = init.Add(lead)
		}
	}
	return out
}

// Reformat is the ForecastMetadataReformatter. It attaches lead-time,
// initialization-time, variable and grid labels to a raw forecast. Every
// label sequence must match the corresponding tensor axis exactly. The tensor
// data is copied.
func Reformat(f *ForecastTensor, leads []time.Duration, inits []time.Time, varLevels []datasets.VarLevel, topo grid.Topology) (*Labeled, error) {
	if f == nil {
		return nil, fmt.Errorf("forecast cannot be nil")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if err := grid.CheckDim(LeadTimeDim, f.Leads, len(leads)); err != nil {
		return nil, err
	}
	if err := CheckLeadTimes(leads); err != nil {
		return nil, err
	}
	if err := grid.CheckDim(InitTimeDim, f.Inits, len(inits)); err != nil {
		return nil, err
	}
	if err := grid.CheckDim(VarLevDim, f.Channels, len(varLevels)); err != nil {
		return nil, err
	}
	if err := grid.CheckDim("cells", f.Cells, topo.Cells()); err != nil {
		return nil, err
	}
	return &Labeled{
		LeadTimes: append([]time.Duration(nil), leads...),
		InitTimes: append([]time.Time(nil), inits...),
		VarLevels: append([]datasets.VarLevel(nil), varLevels...),
		Topology:  topo,
		Data:      append([]float32(nil), f.Data...),
	}, nil
}

// InitTimes looks up the timestamps of initialization indices in s.
func InitTimes(s *datasets.Series, inits []int) ([]time.Time, error) {
	out := make([]time.Time, len(inits))
	for i, init := range inits {
		if init < 0 || init >= s.Len() {
			return nil, fmt.Errorf("%w: initialization %d", datasets.ErrIndexOutOfRange, init)
		}
		out[i] = s.Times[init]
	}
	return out, nil
}
