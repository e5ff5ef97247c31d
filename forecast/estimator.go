package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/grid"
)

// Source is what the estimator needs from a windowed series.
// *datasets.Generator implements it.
type Source interface {
	Config() datasets.Config
	Topology() grid.Topology
	Step() time.Duration
	OutputChannels() int
	CheckHistory(init int) error
	InputWindow(init int) (*datasets.Window, error)
	Slide(in, pred *datasets.Window) (*datasets.Window, error)
}

// RolloutState is the position of one initialization in its rollout: the
// input window for the next call and the index of the next lead-time slab.
type RolloutState struct {
	Init     int
	Window   *datasets.Window
	NextLead int
}

// Estimator is the AutoregressiveEstimator. It is safe for concurrent use;
// all rollout state lives in RolloutState values.
type Estimator struct {
	predictor Predictor
	caps      Capabilities
	src       Source
	workers   int
	logger    *slog.Logger
}

// NewEstimator checks that caps agrees with the windows src produces.
func NewEstimator(p Predictor, caps Capabilities, src Source) (*Estimator, error) {
	if p == nil {
		return nil, fmt.Errorf("predictor cannot be nil")
	}
	if src == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	cfg := src.Config()
	if err := grid.CheckDim("input time steps", caps.InputTimeSteps, cfg.InputTimeSteps); err != nil {
		return nil, err
	}
	if caps.Layout != cfg.Layout {
		return nil, fmt.Errorf("predictor layout %v does not match generator layout %v", caps.Layout, cfg.Layout)
	}
	return &Estimator{
		predictor: p,
		caps:      caps,
		src:       src,
		workers:   1,
		logger:    slog.Default(),
	}, nil
}

// WithLogger sets the logger used for progress messages.
func (e *Estimator) WithLogger(l *slog.Logger) *Estimator {
	if l != nil {
		e.logger = l
	}
	return e
}

// WithWorkers sets how many batches may run at once. Values below 1 mean 1.
func (e *Estimator) WithWorkers(n int) *Estimator {
	e.workers = max(n, 1)
	return e
}

// Capabilities returns the predictor capabilities.
func (e *Estimator) Capabilities() Capabilities { return e.caps }

// Start builds the initial state for init.
func (e *Estimator) Start(init int) (RolloutState, error) {
	w, err := e.src.InputWindow(init)
	if err != nil {
		return RolloutState{}, err
	}
	return RolloutState{Init: init, Window: w}, nil
}

// Advance consumes a prediction and returns the state for the next call. The
// input state is not modified.
func (e *Estimator) Advance(st RolloutState, pred *datasets.Window) (RolloutState, error) {
	next, err := e.src.Slide(st.Window, pred)
	if err != nil {
		return RolloutState{}, fmt.Errorf("failed to slide window for initialization %d: %w", st.Init, err)
	}
	return RolloutState{Init: st.Init, Window: next, NextLead: st.NextLead + pred.Steps()}, nil
}

// Predict rolls every initialization in inits forward k steps and returns a
// tensor with exactly k lead-time slabs per initialization, in the order of
// inits.
//
// Every initialization is checked for history before any prediction runs.
// When a batch fails the other batches still run. Predict then returns the
// tensor together with a *RolloutError naming the failed initializations;
// their slabs are NaN and every other slab is a complete forecast.
func (e *Estimator) Predict(ctx context.Context, inits []int, k int) (*ForecastTensor, error) {
	if k < 1 {
		return nil, fmt.Errorf("number of forecast steps must be >= 1, got %d", k)
	}
	if len(inits) == 0 {
		return nil, fmt.Errorf("no initializations requested")
	}
	for _, init := range inits {
		if err := e.src.CheckHistory(init); err != nil {
			return nil, err
		}
	}

	out := NewForecastTensor(k, len(inits), e.src.OutputChannels(), e.src.Topology().Cells())
	batches := e.batches(len(inits))
	errs := make([]error, len(batches))

	started := time.Now()
	e.logger.Info("starting rollout", "inits", len(inits), "steps", k, "batches", len(batches), "workers", e.workers)

	var eg errgroup.Group
	eg.SetLimit(e.workers)
	for b, pos := range batches {
		eg.Go(func() error {
			// errors are collected per batch so one failure does not stop the others
			errs[b] = e.rolloutBatch(ctx, inits, pos, k, out)
			return nil
		})
	}
	_ = eg.Wait()

	var rerr RolloutError
	for b, err := range errs {
		if err == nil {
			continue
		}
		for _, p := range batches[b] {
			rerr.Failed = append(rerr.Failed, inits[p])
			out.fillInit(p, float32(math.NaN()))
		}
		rerr.Errs = append(rerr.Errs, err)
	}
	if len(rerr.Errs) > 0 {
		e.logger.Error("rollout failed", "failed", rerr.Failed, "succeeded", len(inits)-len(rerr.Failed), "error", rerr.Errs[0])
		return out, &rerr
	}

	e.logger.Info("rollout finished", "inits", len(inits), "steps", k, "elapsed", time.Since(started))
	return out, nil
}

// batches splits positions [0, n) into groups of at most MaxBatch.
func (e *Estimator) batches(n int) [][]int {
	size := e.caps.MaxBatch
	if size == 0 || size > n {
		size = n
	}
	var out [][]int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		pos := make([]int, 0, end-start)
		for p := start; p < end; p++ {
			pos = append(pos, p)
		}
		out = append(out, pos)
	}
	return out
}

// rolloutBatch runs one batch to completion, writing into out at the
// positions in pos. Batches write disjoint regions of out.
func (e *Estimator) rolloutBatch(ctx context.Context, inits, pos []int, k int, out *ForecastTensor) error {
	batchInits := make([]int, len(pos))
	states := make([]RolloutState, len(pos))
	for i, p := range pos {
		batchInits[i] = inits[p]
		st, err := e.Start(inits[p])
		if err != nil {
			return err
		}
		states[i] = st
	}

	inputs := make([]*datasets.Window, len(states))
	for states[0].NextLead < k {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := k - states[0].NextLead
		steps := e.caps.OutputTimeSteps
		if e.caps.SupportsNSteps {
			steps = remaining
		}

		for i := range states {
			inputs[i] = states[i].Window
		}
		preds, err := e.predictor.Predict(ctx, inputs, steps)
		if err != nil {
			return &InferenceError{Inits: batchInits, Err: err}
		}
		if err := e.checkPredictions(preds, len(inputs)); err != nil {
			return fmt.Errorf("initializations %v: %w", batchInits, err)
		}

		n := min(preds[0].Steps(), remaining)
		for i, pred := range preds {
			lead := states[i].NextLead
			for s := range n {
				for c := range pred.Channels {
					pred.Field(s, c, out.Field(lead+s, pos[i], c))
				}
			}
		}

		if n == remaining {
			for i := range states {
				states[i].NextLead += n
			}
			break
		}
		for i := range states {
			st, err := e.Advance(states[i], preds[i])
			if err != nil {
				return err
			}
			states[i] = st
		}
		e.logger.Debug("rollout progress", "inits", batchInits, "lead", states[0].NextLead, "of", k)
	}
	return nil
}

func (e *Estimator) checkPredictions(preds []*datasets.Window, n int) error {
	if err := grid.CheckDim("predictions", n, len(preds)); err != nil {
		return err
	}
	for i, p := range preds {
		if p == nil {
			return fmt.Errorf("prediction %d is nil", i)
		}
	}
	steps := preds[0].Steps()
	if steps < 1 {
		return fmt.Errorf("predictor returned no steps")
	}
	channels := e.src.OutputChannels()
	cells := e.src.Topology().Cells()
	for _, p := range preds {
		if err := grid.CheckDim("prediction steps", steps, p.Steps()); err != nil {
			return err
		}
		if err := grid.CheckDim("prediction channels", channels, p.Channels); err != nil {
			return err
		}
		if err := grid.CheckDim("prediction cells", cells, p.Cells()); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
