package datasets

import (
	"fmt"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/gridcast/grid"
)

// Window is a contiguous run of snapshots in model layout. Windows handed out
// by a Generator are never modified afterwards; sliding builds a new one.
type Window struct {
	Times    []time.Time
	Channels int
	Topology grid.Topology
	Layout   Layout

	// Data is dense in the order given by Dims.
	Data []float32
}

// NewWindow allocates a zeroed window.
func NewWindow(times []time.Time, channels int, topo grid.Topology, layout Layout) *Window {
	return &Window{
		Times:    times,
		Channels: channels,
		Topology: topo,
		Layout:   layout,
		Data:     make([]float32, len(times)*channels*topo.Cells()),
	}
}

// Steps returns the number of timesteps in the window.
func (w *Window) Steps() int { return len(w.Times) }

// Cells returns the number of grid cells per field.
func (w *Window) Cells() int { return w.Topology.Cells() }

// Dims returns the window shape: [T, C, <spatial>] or [T, <spatial>, C].
func (w *Window) Dims() []int {
	spatial := w.Topology.Dims()
	dims := make([]int, 0, 2+len(spatial))
	dims = append(dims, len(w.Times))
	if w.Layout == ChannelsFirst {
		dims = append(dims, w.Channels)
		dims = append(dims, spatial...)
	} else {
		dims = append(dims, spatial...)
		dims = append(dims, w.Channels)
	}
	return dims
}

func (w *Window) index(t, c, cell int) int {
	if w.Layout == ChannelsFirst {
		return (t*w.Channels+c)*w.Cells() + cell
	}
	return (t*w.Cells()+cell)*w.Channels + c
}

// At returns the value at step t, channel c and cell.
func (w *Window) At(t, c, cell int) float32 {
	return w.Data[w.index(t, c, cell)]
}

// Field copies the values of channel c at step t into dst, which is allocated
// when nil.
func (w *Window) Field(t, c int, dst []float32) []float32 {
	cells := w.Cells()
	if dst == nil {
		dst = make([]float32, cells)
	}
	if w.Layout == ChannelsFirst {
		off := w.index(t, c, 0)
		copy(dst, w.Data[off:off+cells])
		return dst
	}
	for cell := range cells {
		dst[cell] = w.Data[w.index(t, c, cell)]
	}
	return dst
}

// SetField writes src into channel c at step t. Call it only on a window
// that is still being built.
func (w *Window) SetField(t, c int, src []float32) {
	if w.Layout == ChannelsFirst {
		copy(w.Data[w.index(t, c, 0):], src[:w.Cells()])
		return
	}
	for cell, v := range src[:w.Cells()] {
		w.Data[w.index(t, c, cell)] = v
	}
}

// Validate checks that Data matches the declared shape.
func (w *Window) Validate() error {
	want := len(w.Times) * w.Channels * w.Topology.Cells()
	return grid.CheckDim("window data", want, len(w.Data))
}

// ToTensor converts the window into a gomlx tensor with dimensions Dims().
func (w *Window) ToTensor() (*tensors.Tensor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(w.Data, w.Dims()...), nil
}

// StackTensor packs windows sharing one shape into a single tensor with a
// leading batch axis.
func StackTensor(ws []*Window) (*tensors.Tensor, error) {
	if len(ws) == 0 {
		return nil, fmt.Errorf("no windows to stack")
	}
	dims := ws[0].Dims()
	per := len(ws[0].Data)
	flat := make([]float32, 0, per*len(ws))
	for i, w := range ws {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		if err := sameDims(dims, w.Dims()); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		flat = append(flat, w.Data...)
	}
	return tensors.FromFlatDataAndDimensions(flat, append([]int{len(ws)}, dims...)...), nil
}

func sameDims(want, got []int) error {
	if err := grid.CheckDim("window rank", len(want), len(got)); err != nil {
		return err
	}
	for i := range want {
		if err := grid.CheckDim(fmt.Sprintf("window axis %d", i), want[i], got[i]); err != nil {
			return err
		}
	}
	return nil
}
