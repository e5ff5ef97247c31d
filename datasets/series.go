package datasets

import (
	"fmt"
	"time"

	"github.com/Noofbiz/gridcast/grid"
)

// Series is a GriddedTimeSeries: evenly spaced snapshots that all share one
// topology and one VarLevel set. A Series is read-only once constructed.
type Series struct {
	Times     []time.Time
	VarLevels []VarLevel
	Topology  grid.Topology

	// data is indexed [time][varlev][cell]
	data  []float32
	step  time.Duration
	index map[VarLevel]int
}

// NewSeries validates and wraps data, which must be laid out
// [time][varlev][cell]. The series takes ownership of data.
func NewSeries(topo grid.Topology, times []time.Time, varLevels []VarLevel, data []float32) (*Series, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("series has no snapshots")
	}
	if len(varLevels) == 0 {
		return nil, fmt.Errorf("series has no variables")
	}
	want := len(times) * len(varLevels) * topo.Cells()
	if err := grid.CheckDim("series data", want, len(data)); err != nil {
		return nil, err
	}

	s := &Series{
		Times:     times,
		VarLevels: varLevels,
		Topology:  topo,
		data:      data,
		index:     make(map[VarLevel]int, len(varLevels)),
	}
	for i, vl := range varLevels {
		if _, dup := s.index[vl]; dup {
			return nil, fmt.Errorf("duplicate variable/level %s", vl)
		}
		s.index[vl] = i
	}

	if len(times) > 1 {
		s.step = times[1].Sub(times[0])
		if s.step <= 0 {
			return nil, fmt.Errorf("series times must be strictly increasing")
		}
		for i := 2; i < len(times); i++ {
			if d := times[i].Sub(times[i-1]); d != s.step {
				return nil, fmt.Errorf("series times not evenly spaced at index %d: %v != %v", i, d, s.step)
			}
		}
	}
	return s, nil
}

// Len returns the number of snapshots.
func (s *Series) Len() int { return len(s.Times) }

// Step returns the spacing between snapshots, zero for a single snapshot.
func (s *Series) Step() time.Duration { return s.step }

// Cells returns the number of grid cells per field.
func (s *Series) Cells() int { return s.Topology.Cells() }

// Field returns the values of varlev v at snapshot t. The returned slice
// aliases the series buffer and must not be modified.
func (s *Series) Field(t, v int) []float32 {
	cells := s.Topology.Cells()
	off := (t*len(s.VarLevels) + v) * cells
	return s.data[off : off+cells : off+cells]
}

// Index returns the position of vl in VarLevels.
func (s *Series) Index(vl VarLevel) (int, bool) {
	i, ok := s.index[vl]
	return i, ok
}

// TimeIndex returns the snapshot index with exactly timestamp t.
func (s *Series) TimeIndex(t time.Time) (int, bool) {
	if len(s.Times) == 0 {
		return 0, false
	}
	if s.step == 0 {
		return 0, s.Times[0].Equal(t)
	}
	d := t.Sub(s.Times[0])
	if d < 0 || d%s.step != 0 {
		return 0, false
	}
	i := int(d / s.step)
	if i >= len(s.Times) {
		return 0, false
	}
	return i, true
}

// Select maps a selection onto VarLevel indices. An empty selection selects
// every field in series order.
func (s *Series) Select(sel []VarLevel) ([]int, error) {
	if len(sel) == 0 {
		idx := make([]int, len(s.VarLevels))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	idx := make([]int, len(sel))
	for i, vl := range sel {
		j, ok := s.index[vl]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVarLevel, vl)
		}
		idx[i] = j
	}
	return idx, nil
}
