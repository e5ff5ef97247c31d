package monte

import (
	"context"
	"testing"
	"time"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

// newLibrary builds a 6-hourly C2 series whose every value equals its
// snapshot index, so each analog is identified by its values.
func newLibrary(t *testing.T, steps int) *datasets.Generator {
	t.Helper()
	topo := grid.CubeSphere(2)
	vars := []datasets.VarLevel{{Variable: "z", Level: 500}, {Variable: "t2m"}}
	times := make([]time.Time, steps)
	data := make([]float32, 0, steps*len(vars)*topo.Cells())
	for i := range times {
		times[i] = time.Date(2021, 1, 1, 6*i, 0, 0, 0, time.UTC)
		for range len(vars) * topo.Cells() {
			data = append(data, float32(i))
		}
	}
	s, err := datasets.NewSeries(topo, times, vars, data)
	if err != nil {
		t.Fatalf("NewSeries error: %v", err)
	}
	g, err := datasets.NewGenerator(s, datasets.Config{InputTimeSteps: 2, OutputTimeSteps: 1})
	if err != nil {
		t.Fatalf("NewGenerator error: %v", err)
	}
	return g
}

func TestNearestAnalogReturnsItsSuccessor(t *testing.T) {
	g := newLibrary(t, 10)
	m, err := NewMonte(g, 1)
	if err != nil {
		t.Fatalf("NewMonte error: %v", err)
	}

	in, err := g.InputWindow(4)
	if err != nil {
		t.Fatalf("InputWindow error: %v", err)
	}
	preds, err := m.Predict(context.Background(), []*datasets.Window{in}, 1)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if len(preds) != 1 || preds[0].Steps() != 1 || preds[0].Channels != 2 {
		t.Fatalf("unexpected prediction dims %v", preds[0].Dims())
	}
	for i, v := range preds[0].Data {
		if v != 5 {
			t.Fatalf("value %d: got %v want 5", i, v)
		}
	}
	if want := in.Times[1].Add(6 * time.Hour); !preds[0].Times[0].Equal(want) {
		t.Fatalf("prediction time %v, want %v", preds[0].Times[0], want)
	}
}

func TestMonteDrivesEstimator(t *testing.T) {
	g := newLibrary(t, 10)
	m, err := NewMonte(g, 1)
	if err != nil {
		t.Fatalf("NewMonte error: %v", err)
	}
	m.SetWorkers(2)

	est, err := forecast.NewEstimator(m, m.Capabilities(0), g)
	if err != nil {
		t.Fatalf("NewEstimator error: %v", err)
	}
	ft, err := est.Predict(context.Background(), []int{3, 5}, 3)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	for k := range 3 {
		for i, init := range []int{3, 5} {
			want := float32(init + k + 1)
			for c := range 2 {
				for _, v := range ft.Field(k, i, c) {
					if v != want {
						t.Fatalf("lead %d init %d channel %d: got %v want %v", k, init, c, v, want)
					}
				}
			}
		}
	}
}

func TestMonteCarloEnsembleIsReproducible(t *testing.T) {
	g := newLibrary(t, 10)
	in, err := g.InputWindow(4)
	if err != nil {
		t.Fatalf("InputWindow error: %v", err)
	}

	run := func() []float32 {
		m, err := NewMonte(g, 3)
		if err != nil {
			t.Fatalf("NewMonte error: %v", err)
		}
		m.Sims = 50
		m.Eps = 1e6
		m.SetSeed(7)
		preds, err := m.Predict(context.Background(), []*datasets.Window{in}, 1)
		if err != nil {
			t.Fatalf("Predict error: %v", err)
		}
		return preds[0].Data
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("value %d differs between seeded runs: %v != %v", i, a[i], b[i])
		}
		// the three nearest analogs have successors 4, 5 and 6
		if a[i] < 4 || a[i] > 6 {
			t.Fatalf("value %d = %v outside the analog range", i, a[i])
		}
	}
}

func TestSeededEnsembleIgnoresScheduling(t *testing.T) {
	g := newLibrary(t, 12)
	inits := []int{3, 4, 5, 6, 7}

	run := func(workers, maxBatch int) *forecast.ForecastTensor {
		m, err := NewMonte(g, 3)
		if err != nil {
			t.Fatalf("NewMonte error: %v", err)
		}
		m.Sims = 20
		m.Eps = 1e6
		m.SetSeed(11)
		est, err := forecast.NewEstimator(m, m.Capabilities(maxBatch), g)
		if err != nil {
			t.Fatalf("NewEstimator error: %v", err)
		}
		est.WithWorkers(workers)
		ft, err := est.Predict(context.Background(), inits, 2)
		if err != nil {
			t.Fatalf("Predict error: %v", err)
		}
		return ft
	}

	want := run(1, 0)
	for _, got := range []*forecast.ForecastTensor{run(4, 1), run(3, 2), run(4, 1)} {
		for i := range want.Data {
			if got.Data[i] != want.Data[i] {
				t.Fatalf("value %d differs across schedules: %v != %v", i, got.Data[i], want.Data[i])
			}
		}
	}
}

type emptyLibrary struct{ *datasets.Generator }

func (emptyLibrary) Len() int { return 0 }

func TestMonteErrors(t *testing.T) {
	if _, err := NewMonte(nil, 1); err == nil {
		t.Fatalf("expected error for nil library")
	}
	g := newLibrary(t, 10)
	if _, err := NewMonte(g, 0); err == nil {
		t.Fatalf("expected error for k = 0")
	}

	m, _ := NewMonte(g, 2)
	bad := datasets.NewWindow(make([]time.Time, 1), 2, grid.CubeSphere(2), datasets.ChannelsFirst)
	if _, err := m.Predict(context.Background(), []*datasets.Window{bad}, 1); err == nil {
		t.Fatalf("expected error for short input window")
	}

	m, _ = NewMonte(emptyLibrary{g}, 2)
	in, _ := g.InputWindow(4)
	if _, err := m.Predict(context.Background(), []*datasets.Window{in}, 1); err == nil {
		t.Fatalf("expected error for empty library")
	}
}
