package datasets

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/gridcast/grid"
)

var t0 = time.Date(2020, 3, 20, 0, 0, 0, 0, time.UTC)

// value encodes (time, varlev, cell) so tests can check where a number came from.
func value(t, v, cell int) float32 {
	return float32(t*1000 + v*100 + cell)
}

// makeSeries builds a six-hourly series on a C2 cubed sphere.
func makeSeries(t *testing.T, steps int, vls []VarLevel) *Series {
	t.Helper()
	topo := grid.CubeSphere(2)
	times := make([]time.Time, steps)
	for i := range times {
		times[i] = t0.Add(time.Duration(i) * 6 * time.Hour)
	}
	data := make([]float32, 0, steps*len(vls)*topo.Cells())
	for ti := range steps {
		for v := range vls {
			for cell := range topo.Cells() {
				data = append(data, value(ti, v, cell))
			}
		}
	}
	s, err := NewSeries(topo, times, vls, data)
	require.NoError(t, err)
	return s
}

var testVars = []VarLevel{{"z", 500}, {"t2m", 0}, {"tcwv", 0}}

func TestNewSeriesValidation(t *testing.T) {
	topo := grid.CubeSphere(2)
	times := []time.Time{t0, t0.Add(time.Hour)}

	_, err := NewSeries(topo, times, testVars, make([]float32, 5))
	var dm *grid.DimensionMismatchError
	require.True(t, errors.As(err, &dm))

	uneven := []time.Time{t0, t0.Add(time.Hour), t0.Add(3 * time.Hour)}
	_, err = NewSeries(topo, uneven, testVars[:1], make([]float32, 3*topo.Cells()))
	assert.Error(t, err)

	_, err = NewSeries(topo, times, []VarLevel{{"z", 500}, {"z", 500}}, make([]float32, 4*topo.Cells()))
	assert.Error(t, err)
}

func TestSeriesLookups(t *testing.T) {
	s := makeSeries(t, 10, testVars)
	assert.Equal(t, 6*time.Hour, s.Step())

	i, ok := s.TimeIndex(t0.Add(30 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, 5, i)
	_, ok = s.TimeIndex(t0.Add(31 * time.Hour))
	assert.False(t, ok)
	_, ok = s.TimeIndex(t0.Add(-6 * time.Hour))
	assert.False(t, ok)

	idx, err := s.Select([]VarLevel{{"t2m", 0}, {"z", 500}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, idx)

	_, err = s.Select([]VarLevel{{"t2m", 850}})
	assert.ErrorIs(t, err, ErrUnknownVarLevel)

	f := s.Field(3, 2)
	assert.Equal(t, value(3, 2, 7), f[7])
}

func TestWindowsContiguousAtOutputStride(t *testing.T) {
	s := makeSeries(t, 12, testVars)
	g, err := NewGenerator(s, Config{InputTimeSteps: 2, OutputTimeSteps: 2})
	require.NoError(t, err)
	assert.Equal(t, 12-2-2+1, g.Len())

	for sIdx := 0; sIdx+2 < g.Len(); sIdx += 2 {
		in, out, err := g.Window(sIdx)
		require.NoError(t, err)
		_, nextOut, err := g.Window(sIdx + 2)
		require.NoError(t, err)

		assert.Equal(t, s.Times[sIdx], in.Times[0])
		assert.Equal(t, in.Times[1].Add(6*time.Hour), out.Times[0])
		// consecutive outputs at stride To neither overlap nor leave gaps
		assert.Equal(t, out.Times[1].Add(6*time.Hour), nextOut.Times[0])
		assert.Equal(t, value(sIdx+2, 0, 0), out.At(0, 0, 0))
	}

	_, _, err = g.Window(g.Len())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestLayoutsAgree(t *testing.T) {
	s := makeSeries(t, 6, testVars)
	sel := []VarLevel{{"tcwv", 0}, {"z", 500}}
	first, err := NewGenerator(s, Config{Selection: sel, InputTimeSteps: 3, OutputTimeSteps: 1, Layout: ChannelsFirst})
	require.NoError(t, err)
	last, err := NewGenerator(s, Config{Selection: sel, InputTimeSteps: 3, OutputTimeSteps: 1, Layout: ChannelsLast})
	require.NoError(t, err)

	a, _, err := first.Window(1)
	require.NoError(t, err)
	b, _, err := last.Window(1)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 6, 2, 2}, a.Dims())
	assert.Equal(t, []int{3, 6, 2, 2, 2}, b.Dims())
	for ti := range 3 {
		for c := range 2 {
			for cell := range a.Cells() {
				require.Equal(t, a.At(ti, c, cell), b.At(ti, c, cell))
			}
		}
	}
	// channel 0 is tcwv (series index 2)
	assert.Equal(t, value(2, 2, 5), a.At(1, 0, 5))
	assert.Equal(t, value(2, 0, 5), b.At(1, 1, 5))
}

func TestInputWindowHistory(t *testing.T) {
	s := makeSeries(t, 10, testVars)
	g, err := NewGenerator(s, Config{InputTimeSteps: 2, OutputTimeSteps: 1})
	require.NoError(t, err)

	w, err := g.InputWindow(5)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{s.Times[4], s.Times[5]}, w.Times)

	// the last snapshot has no ground truth but is a valid initialization
	w, err = g.InputWindow(9)
	require.NoError(t, err)
	assert.Equal(t, s.Times[9], w.Times[1])

	_, err = g.InputWindow(0)
	var ih *InsufficientHistoryError
	require.True(t, errors.As(err, &ih))
	assert.Equal(t, 0, ih.Init)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
	assert.ErrorIs(t, g.CheckHistory(0), ErrInsufficientHistory)

	_, err = g.InputWindow(10)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestInsolationIsPure(t *testing.T) {
	s := makeSeries(t, 4, testVars)
	g, err := NewGenerator(s, Config{InputTimeSteps: 1, OutputTimeSteps: 1, AddInsolation: true})
	require.NoError(t, err)

	ts := t0.Add(13 * time.Hour)
	a := g.Insolation(ts)
	b := g.Insolation(ts)
	assert.Equal(t, a, b)

	c := g.Insolation(ts.Add(6 * time.Hour))
	assert.NotEqual(t, a, c)

	for _, v := range a {
		assert.True(t, v >= 0 && v <= 1.04, "insolation out of range: %v", v)
	}

	// Near the equinox at noon UTC, the sub-solar point is close to (0, 0).
	noon := Insolation(time.Date(2020, 3, 20, 12, 0, 0, 0, time.UTC), []float64{0, 0}, []float64{0, 180}, nil)
	assert.InDelta(t, 1.0, noon[0], 0.02)
	assert.Equal(t, float32(0), noon[1])

	in, _, err := g.Window(0)
	require.NoError(t, err)
	assert.Equal(t, 4, in.Channels)
	assert.Equal(t, g.Insolation(in.Times[0]), in.Field(0, 3, nil))
}

func TestSlideRecomputesInsolation(t *testing.T) {
	s := makeSeries(t, 10, testVars)
	for _, layout := range []Layout{ChannelsFirst, ChannelsLast} {
		g, err := NewGenerator(s, Config{InputTimeSteps: 2, OutputTimeSteps: 1, AddInsolation: true, Layout: layout})
		require.NoError(t, err)

		in, err := g.InputWindow(5)
		require.NoError(t, err)

		pred := NewWindow([]time.Time{{}}, g.OutputChannels(), g.Topology(), layout)
		for i := range pred.Data {
			pred.Data[i] = -1
		}

		next, err := g.Slide(in, pred)
		require.NoError(t, err)
		require.Equal(t, 2, next.Steps())
		assert.Equal(t, s.Times[5], next.Times[0])
		assert.Equal(t, s.Times[5].Add(6*time.Hour), next.Times[1])

		// step 0 is the old step 1, unchanged, including its insolation
		assert.Equal(t, in.Field(1, 0, nil), next.Field(0, 0, nil))
		assert.Equal(t, in.Field(1, 3, nil), next.Field(0, 3, nil))
		// step 1 holds the prediction and fresh insolation
		assert.Equal(t, float32(-1), next.At(1, 2, 3))
		assert.Equal(t, g.Insolation(next.Times[1]), next.Field(1, 3, nil))

		// the source window is untouched
		assert.Equal(t, s.Times[4], in.Times[0])
	}
}

func TestSlideLongPrediction(t *testing.T) {
	s := makeSeries(t, 10, testVars)
	g, err := NewGenerator(s, Config{InputTimeSteps: 2, OutputTimeSteps: 3})
	require.NoError(t, err)
	in, err := g.InputWindow(3)
	require.NoError(t, err)

	pred := NewWindow(make([]time.Time, 3), 3, g.Topology(), ChannelsFirst)
	for ti := range 3 {
		field := make([]float32, pred.Cells())
		for i := range field {
			field[i] = float32(ti)
		}
		for c := range 3 {
			pred.SetField(ti, c, field)
		}
	}
	next, err := g.Slide(in, pred)
	require.NoError(t, err)
	assert.Equal(t, float32(1), next.At(0, 0, 0))
	assert.Equal(t, float32(2), next.At(1, 0, 0))
	assert.Equal(t, s.Times[3].Add(18*time.Hour), next.Times[1])
}

func TestWindowTensor(t *testing.T) {
	s := makeSeries(t, 5, testVars)
	g, err := NewGenerator(s, Config{InputTimeSteps: 2, OutputTimeSteps: 1, Layout: ChannelsLast})
	require.NoError(t, err)
	in, out, err := g.Window(0)
	require.NoError(t, err)

	tt, err := in.ToTensor()
	require.NoError(t, err)
	assert.Equal(t, in.Dims(), tt.Shape().Dimensions)

	batch, err := StackTensor([]*Window{in, in})
	require.NoError(t, err)
	assert.Equal(t, append([]int{2}, in.Dims()...), batch.Shape().Dimensions)

	_, err = StackTensor([]*Window{in, out})
	assert.Error(t, err)
}

func TestParseVarLevel(t *testing.T) {
	vl, err := ParseVarLevel("z/500")
	require.NoError(t, err)
	assert.Equal(t, VarLevel{"z", 500}, vl)
	assert.Equal(t, "z/500", vl.String())

	vl, err = ParseVarLevel("t2m")
	require.NoError(t, err)
	assert.Equal(t, VarLevel{"t2m", 0}, vl)

	_, err = ParseVarLevel("z/abc")
	assert.Error(t, err)
	_, err = ParseVarLevel("/5")
	assert.Error(t, err)

	l, err := ParseLayout("channels_last")
	require.NoError(t, err)
	assert.Equal(t, ChannelsLast, l)
}

func TestFlatten(t *testing.T) {
	flat, dims, err := Flatten([][][]float64{{{1, 2}, {3, 4}}, {{5, 6}, {7, 8}}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, dims)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, flat)

	_, _, err = Flatten([][]float32{{1, 2}, {3}})
	assert.Error(t, err)
	_, _, err = Flatten(3.0)
	assert.Error(t, err)

	times := []time.Time{t0, t0.Add(6 * time.Hour)}
	back, err := HoursToTimes(TimesToHours(times))
	require.NoError(t, err)
	assert.True(t, times[1].Equal(back[1]))
}
