package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/grid"
)

// TensorFunc runs a model on a stacked batch of input windows shaped
// [batch, Ti, ...window dims] and returns predictions shaped
// [batch, steps, ...window dims] in the same layout. A compiled gomlx graph
// usually sits behind it.
type TensorFunc func(ctx context.Context, input *tensors.Tensor, steps int) (*tensors.Tensor, error)

// TensorPredictor adapts a TensorFunc to the Predictor interface.
type TensorPredictor struct {
	fn       TensorFunc
	channels int
	topo     grid.Topology
	layout   datasets.Layout
}

// NewTensorPredictor returns a predictor producing channels output channels
// on topo.
func NewTensorPredictor(fn TensorFunc, channels int, topo grid.Topology, layout datasets.Layout) (*TensorPredictor, error) {
	if fn == nil {
		return nil, fmt.Errorf("tensor function cannot be nil")
	}
	if channels < 1 {
		return nil, fmt.Errorf("channels must be >= 1, got %d", channels)
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return &TensorPredictor{fn: fn, channels: channels, topo: topo, layout: layout}, nil
}

func (p *TensorPredictor) Predict(ctx context.Context, inputs []*datasets.Window, steps int) ([]*datasets.Window, error) {
	in, err := datasets.StackTensor(inputs)
	if err != nil {
		return nil, err
	}
	out, err := p.fn(ctx, in, steps)
	if err != nil {
		return nil, err
	}
	flat, dims, err := datasets.Flatten(out.Value())
	if err != nil {
		return nil, fmt.Errorf("failed to read prediction tensor: %w", err)
	}

	// [batch, steps, ...] with the window dims of a one-step output after
	// the batch axis
	probe := datasets.NewWindow(make([]time.Time, 1), p.channels, p.topo, p.layout)
	want := probe.Dims()
	if err := grid.CheckDim("prediction rank", len(want)+1, len(dims)); err != nil {
		return nil, err
	}
	if err := grid.CheckDim("prediction batch", len(inputs), dims[0]); err != nil {
		return nil, err
	}
	for i := 1; i < len(want); i++ {
		if err := grid.CheckDim(fmt.Sprintf("prediction axis %d", i+1), want[i], dims[i+1]); err != nil {
			return nil, err
		}
	}

	n := dims[1]
	per := n * p.channels * p.topo.Cells()
	preds := make([]*datasets.Window, len(inputs))
	for b := range preds {
		w := datasets.NewWindow(make([]time.Time, n), p.channels, p.topo, p.layout)
		copy(w.Data, flat[b*per:(b+1)*per])
		preds[b] = w
	}
	return preds, nil
}
