package simple

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
	"github.com/Noofbiz/gridcast/store"
)

// Config holds the shape of the MLP.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// InputTimeSteps and InputChannels size the per-cell input vector
	// (InputTimeSteps*InputChannels values, time major). InputChannels
	// includes the insolation channel when the generator adds one.
	InputTimeSteps int
	InputChannels  int

	// OutputTimeSteps and OutputChannels size the per-cell output vector.
	OutputTimeSteps int
	OutputChannels  int

	// Residual adds the last input step of each output channel to the
	// network output, so the network predicts tendencies.
	Residual bool

	// Seed controls RNG for weight init. If zero, time-based seed is used.
	Seed int64
}

// Model is a small MLP applied independently at every grid cell. It reads a
// cell's history across all input channels and predicts that cell's next
// OutputTimeSteps snapshots. It implements forecast.Predictor.
type Model struct {
	// Config used for initialization.
	Config Config

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	// rng used for weight initialization
	rng *rand.Rand
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights to small random values.
func NewModel(cfg Config) (*Model, error) {
	// defaults
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.InputTimeSteps < 1 || cfg.InputChannels < 1 {
		return nil, fmt.Errorf("input must have at least one step and channel, got %dx%d", cfg.InputTimeSteps, cfg.InputChannels)
	}
	if cfg.OutputTimeSteps < 1 || cfg.OutputChannels < 1 {
		return nil, fmt.Errorf("output must have at least one step and channel, got %dx%d", cfg.OutputTimeSteps, cfg.OutputChannels)
	}
	if cfg.OutputChannels > cfg.InputChannels {
		return nil, fmt.Errorf("output channels (%d) cannot exceed input channels (%d)", cfg.OutputChannels, cfg.InputChannels)
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	// build layer sizes
	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputTimeSteps*cfg.InputChannels)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, cfg.OutputTimeSteps*cfg.OutputChannels)
	m.layerSizes = sizes

	// allocate weights and biases
	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		// Xavier/Glorot uniform initialization heuristic
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}

	return m, nil
}

// Capabilities describes the model to the estimator.
func (m *Model) Capabilities(layout datasets.Layout, maxBatch int) forecast.Capabilities {
	return forecast.Capabilities{
		InputTimeSteps:  m.Config.InputTimeSteps,
		OutputTimeSteps: m.Config.OutputTimeSteps,
		Layout:          layout,
		MaxBatch:        maxBatch,
	}
}

// LayerSizes returns the input, hidden and output sizes.
func (m *Model) LayerSizes() []int { return append([]int(nil), m.layerSizes...) }

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forwardSingle performs a forward pass for a single input vector, returning
// the activations of every layer (activations[0] is the input).
func (m *Model) forwardSingle(input []float32) (acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, errors.New("input has incorrect dimension")
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = make([]float32, len(input))
	copy(acts[0], input)

	for l := 0; l < L; l++ {
		inVec := acts[l]
		W := m.weights[l]
		b := m.biases[l]
		act := make([]float32, len(b))
		for j := range act {
			sum := b[j]
			for i, x := range inVec {
				sum += W[j][i] * x
			}
			act[j] = sum
		}
		// Activation: ReLU for hidden, linear for last layer
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return acts, nil
}

// PredictBatch returns model outputs for a batch of per-cell feature
// vectors. The returned [][]float32 has shape [batch][OutputTimeSteps*OutputChannels].
func (m *Model) PredictBatch(inputs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		acts, err := m.forwardSingle(in)
		if err != nil {
			return nil, err
		}
		// last activation is output
		out[i] = acts[len(acts)-1]
	}
	return out, nil
}

// Predict runs the model at every cell of every input window. steps is
// ignored; each call returns OutputTimeSteps snapshots.
func (m *Model) Predict(ctx context.Context, inputs []*datasets.Window, steps int) ([]*datasets.Window, error) {
	cfg := m.Config
	preds := make([]*datasets.Window, len(inputs))
	for b, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := grid.CheckDim("model input steps", cfg.InputTimeSteps, in.Steps()); err != nil {
			return nil, err
		}
		if err := grid.CheckDim("model input channels", cfg.InputChannels, in.Channels); err != nil {
			return nil, err
		}

		out := datasets.NewWindow(make([]time.Time, cfg.OutputTimeSteps), cfg.OutputChannels, in.Topology, in.Layout)
		features := make([][]float32, in.Cells())
		for cell := range features {
			f := make([]float32, 0, cfg.InputTimeSteps*cfg.InputChannels)
			for t := range cfg.InputTimeSteps {
				for c := range cfg.InputChannels {
					f = append(f, in.At(t, c, cell))
				}
			}
			features[cell] = f
		}
		values, err := m.PredictBatch(features)
		if err != nil {
			return nil, err
		}

		field := make([]float32, in.Cells())
		for t := range cfg.OutputTimeSteps {
			for c := range cfg.OutputChannels {
				for cell, v := range values {
					field[cell] = v[t*cfg.OutputChannels+c]
					if cfg.Residual {
						field[cell] += in.At(cfg.InputTimeSteps-1, c, cell)
					}
				}
				out.SetField(t, c, field)
			}
		}
		preds[b] = out
	}
	return preds, nil
}

// TensorFunc evaluates the model on stacked input windows on topo, shaped
// [batch, Ti, ...window dims], and returns the stacked predictions. It backs
// a forecast.TensorPredictor.
func (m *Model) TensorFunc(topo grid.Topology, layout datasets.Layout) forecast.TensorFunc {
	cfg := m.Config
	return func(ctx context.Context, input *tensors.Tensor, steps int) (*tensors.Tensor, error) {
		flat, dims, err := datasets.Flatten(input.Value())
		if err != nil {
			return nil, fmt.Errorf("failed to read input tensor: %w", err)
		}
		if len(dims) == 0 {
			return nil, errors.New("input tensor is a scalar")
		}
		per := cfg.InputTimeSteps * cfg.InputChannels * topo.Cells()
		if err := grid.CheckDim("model input size", dims[0]*per, len(flat)); err != nil {
			return nil, err
		}
		windows := make([]*datasets.Window, dims[0])
		for b := range windows {
			w := datasets.NewWindow(make([]time.Time, cfg.InputTimeSteps), cfg.InputChannels, topo, layout)
			copy(w.Data, flat[b*per:(b+1)*per])
			windows[b] = w
		}
		preds, err := m.Predict(ctx, windows, steps)
		if err != nil {
			return nil, err
		}
		return datasets.StackTensor(preds)
	}
}

var modelHeader = store.Header{Kind: "simple-mlp", Version: 1}

type modelFile struct {
	Config  Config        `msgpack:"config"`
	Weights [][][]float32 `msgpack:"weights"`
	Biases  [][]float32   `msgpack:"biases"`
}

// Save writes the model configuration and weights to path.
func (m *Model) Save(path string) error {
	return store.Write(path, modelHeader, &modelFile{Config: m.Config, Weights: m.weights, Biases: m.biases})
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	var f modelFile
	if err := store.Read(path, modelHeader, &f); err != nil {
		return nil, err
	}
	m, err := NewModel(f.Config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := m.SetWeights(f.Weights, f.Biases); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// SetWeights replaces the weights after checking they match the layer sizes.
func (m *Model) SetWeights(weights [][][]float32, biases [][]float32) error {
	L := len(m.layerSizes) - 1
	if err := grid.CheckDim("weight layers", L, len(weights)); err != nil {
		return err
	}
	if err := grid.CheckDim("bias layers", L, len(biases)); err != nil {
		return err
	}
	for l := 0; l < L; l++ {
		in, out := m.layerSizes[l], m.layerSizes[l+1]
		if err := grid.CheckDim(fmt.Sprintf("layer %d rows", l), out, len(weights[l])); err != nil {
			return err
		}
		if err := grid.CheckDim(fmt.Sprintf("layer %d biases", l), out, len(biases[l])); err != nil {
			return err
		}
		for j, row := range weights[l] {
			if err := grid.CheckDim(fmt.Sprintf("layer %d row %d", l, j), in, len(row)); err != nil {
				return err
			}
		}
	}
	m.weights = weights
	m.biases = biases
	return nil
}
