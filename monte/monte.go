// Package monte forecasts by analogy: it finds the K library samples whose
// input windows are closest to the current state and combines what happened
// next in each of them. With Sims > 0 the combination is a Monte Carlo
// ensemble mean over neighbors drawn with inverse-distance probability;
// otherwise it is the exact inverse-distance weighted mean. Each forecast
// draws from its own generator seeded by the Monte seed and the forecast's
// valid time, so seeded results do not depend on batching or scheduling.
package monte

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

// Library is the set of historical samples searched for analogs.
// *datasets.Generator implements it.
type Library interface {
	Config() datasets.Config
	Step() time.Duration
	Len() int
	Window(s int) (in, out *datasets.Window, err error)
}

// Monte is an analog-ensemble forecast.Predictor.
type Monte struct {
	lib Library
	K   int

	// Sims is the number of Monte Carlo draws per forecast. Zero uses the
	// exact weighted mean.
	Sims int

	// Eps keeps inverse-distance weights finite for exact matches.
	Eps float64

	workers int
	logger  *slog.Logger

	// library windows, loaded once
	once    sync.Once
	loadErr error
	inputs  [][]float32
	outputs []*datasets.Window

	seed int64
}

// NewMonte creates a new Monte over lib. k must be >= 1.
func NewMonte(lib Library, k int) (*Monte, error) {
	if lib == nil {
		return nil, errors.New("library cannot be nil")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}
	return &Monte{
		lib:     lib,
		K:       k,
		Eps:     1e-6,
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
		seed:    time.Now().UnixNano(),
	}, nil
}

// SetSeed makes the Monte Carlo draws reproducible.
func (m *Monte) SetSeed(seed int64) { m.seed = seed }

// SetWorkers sets the number of goroutines used for the distance scan.
func (m *Monte) SetWorkers(n int) { m.workers = max(n, 1) }

// SetLogger sets the logger used for library loading messages.
func (m *Monte) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l
	}
}

// Capabilities describes the predictor to the estimator. Every call returns
// exactly the library's OutputTimeSteps.
func (m *Monte) Capabilities(maxBatch int) forecast.Capabilities {
	cfg := m.lib.Config()
	return forecast.Capabilities{
		InputTimeSteps:  cfg.InputTimeSteps,
		OutputTimeSteps: cfg.OutputTimeSteps,
		Layout:          cfg.Layout,
		MaxBatch:        maxBatch,
	}
}

func (m *Monte) load() error {
	m.once.Do(func() {
		n := m.lib.Len()
		if n == 0 {
			m.loadErr = errors.New("analog library is empty")
			return
		}
		started := time.Now()
		m.inputs = make([][]float32, n)
		m.outputs = make([]*datasets.Window, n)
		for s := range n {
			in, out, err := m.lib.Window(s)
			if err != nil {
				m.loadErr = fmt.Errorf("failed to load library sample %d: %w", s, err)
				return
			}
			m.inputs[s] = in.Data
			m.outputs[s] = out
		}
		m.logger.Debug("analog library loaded", "samples", n, "elapsed", time.Since(started))
	})
	return m.loadErr
}

// Predict returns, for every input window, the analog forecast of the next
// OutputTimeSteps snapshots. steps is ignored.
func (m *Monte) Predict(ctx context.Context, inputs []*datasets.Window, steps int) ([]*datasets.Window, error) {
	if err := m.load(); err != nil {
		return nil, err
	}
	preds := make([]*datasets.Window, len(inputs))
	for b, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := grid.CheckDim("analog input size", len(m.inputs[0]), len(in.Data)); err != nil {
			return nil, err
		}
		neighbors, err := m.knnNeighbors(ctx, in.Data, m.K)
		if err != nil {
			return nil, err
		}
		times := m.futureTimes(in)
		preds[b] = m.combine(neighbors, times, m.rng(times))
	}
	return preds, nil
}

// neighbor holds a library sample index and its distance to the query.
type neighbor struct {
	idx      int
	distance float64
}

// knnNeighbors performs a linear scan KNN search over the library. It returns
// up to k neighbors sorted by increasing distance, ties broken by index.
func (m *Monte) knnNeighbors(ctx context.Context, query []float32, k int) ([]neighbor, error) {
	n := len(m.inputs)
	candidates := make([]neighbor, n)

	jobs := make(chan int, n)
	workerCount := min(m.workers, n)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for range workerCount {
		go func() {
			defer wg.Done()
			for i := range jobs {
				candidates[i] = neighbor{idx: i, distance: math.Sqrt(euclideanDistanceSquared(query, m.inputs[i]))}
			}
		}()
	}
	for i := range n {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	return candidates[:min(k, n)], nil
}

// rng returns the generator for the forecast valid at times.
func (m *Monte) rng(times []time.Time) *rand.Rand {
	seed := m.seed
	if len(times) > 0 {
		seed ^= times[0].UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// futureTimes stamps the OutputTimeSteps snapshots following in.
func (m *Monte) futureTimes(in *datasets.Window) []time.Time {
	times := make([]time.Time, m.lib.Config().OutputTimeSteps)
	if in.Steps() == 0 {
		return times
	}
	last := in.Times[in.Steps()-1]
	for i := range times {
		times[i] = last.Add(time.Duration(i+1) * m.lib.Step())
	}
	return times
}

// combine averages the neighbors' output windows.
func (m *Monte) combine(neighbors []neighbor, times []time.Time, rng *rand.Rand) *datasets.Window {
	weights := make([]float64, len(neighbors))
	var total float64
	for i, nb := range neighbors {
		weights[i] = 1.0 / (nb.distance + m.Eps)
		total += weights[i]
	}

	if m.Sims > 0 {
		counts := make([]float64, len(neighbors))
		for range m.Sims {
			counts[sample(rng, weights, total)]++
		}
		weights, total = counts, float64(m.Sims)
	}

	first := m.outputs[neighbors[0].idx]
	out := datasets.NewWindow(times, first.Channels, first.Topology, first.Layout)
	acc := make([]float64, len(out.Data))
	for i, nb := range neighbors {
		if weights[i] == 0 {
			continue
		}
		w := weights[i] / total
		for j, v := range m.outputs[nb.idx].Data {
			acc[j] += w * float64(v)
		}
	}
	for j, v := range acc {
		out.Data[j] = float32(v)
	}
	return out
}

// sample draws an index with probability proportional to weights.
func sample(rng *rand.Rand, weights []float64, total float64) int {
	r := rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}

// euclideanDistanceSquared computes squared Euclidean distance between two equal-length float32 slices.
func euclideanDistanceSquared(a, b []float32) float64 {
	sum := 0.0
	for i := 0; i < len(a) && i < len(b); i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}
