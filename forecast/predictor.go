// Package forecast rolls a Predictor forward over a forecast horizon,
// feeding each prediction back as the next input, and labels the result for
// the remap stage.
package forecast

import (
	"context"
	"fmt"

	"github.com/Noofbiz/gridcast/datasets"
)

// Capabilities describes what a Predictor expects and produces. It is given
// to the Estimator alongside the predictor instead of being discovered at run
// time.
type Capabilities struct {
	// InputTimeSteps is the number of snapshots in each input window (Ti).
	InputTimeSteps int

	// OutputTimeSteps is the number of snapshots returned per call (To) when
	// SupportsNSteps is false.
	OutputTimeSteps int

	// SupportsNSteps marks predictors that roll themselves forward and can
	// return any requested number of steps in one call.
	SupportsNSteps bool

	Layout datasets.Layout

	// MaxBatch caps how many initializations go into one Predict call. Zero
	// puts every initialization in a single call.
	MaxBatch int
}

// Validate checks the capabilities are usable.
func (c Capabilities) Validate() error {
	if c.InputTimeSteps < 1 {
		return fmt.Errorf("input time steps must be >= 1, got %d", c.InputTimeSteps)
	}
	if c.OutputTimeSteps < 1 {
		return fmt.Errorf("output time steps must be >= 1, got %d", c.OutputTimeSteps)
	}
	if c.MaxBatch < 0 {
		return fmt.Errorf("max batch must be >= 0, got %d", c.MaxBatch)
	}
	return nil
}

// Predictor maps a batch of input windows to one prediction window each.
//
// steps is the number of snapshots the caller still needs. Predictors without
// SupportsNSteps ignore it and return OutputTimeSteps snapshots. Returned
// windows hold only the output channels; their Times are ignored and the
// estimator stamps the following timestamps itself.
//
// An error fails the whole batch.
type Predictor interface {
	Predict(ctx context.Context, inputs []*datasets.Window, steps int) ([]*datasets.Window, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, inputs []*datasets.Window, steps int) ([]*datasets.Window, error)

func (f PredictorFunc) Predict(ctx context.Context, inputs []*datasets.Window, steps int) ([]*datasets.Window, error) {
	return f(ctx, inputs, steps)
}
