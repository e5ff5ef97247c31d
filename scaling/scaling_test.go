package scaling

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

var (
	z500 = datasets.VarLevel{Variable: "z", Level: 500}
	t2m  = datasets.VarLevel{Variable: "t2m", Level: 0}
)

func testTensor() *forecast.ForecastTensor {
	f := forecast.NewForecastTensor(2, 3, 2, 5)
	for i := range f.Data {
		f.Data[i] = float32(i%7) - 3
	}
	return f
}

func TestInverseScaleAffine(t *testing.T) {
	f := testTensor()
	p := ScaleParameters{
		z500: {Mean: 5500, Std: 100},
		t2m:  {Mean: 280, Std: 10},
	}
	out, err := InverseScale(f, []datasets.VarLevel{z500, t2m}, p)
	require.NoError(t, err)

	assert.InDelta(t, float64(f.At(1, 2, 0, 4))*100+5500, float64(out.At(1, 2, 0, 4)), 1e-3)
	assert.InDelta(t, float64(f.At(0, 1, 1, 3))*10+280, float64(out.At(0, 1, 1, 3)), 1e-3)
	// input untouched
	assert.Equal(t, testTensor().Data, f.Data)
}

func TestScaleRoundTrip(t *testing.T) {
	f := testTensor()
	vars := []datasets.VarLevel{t2m, z500}
	p := ScaleParameters{
		z500: {Mean: 5500, Std: 100},
		t2m:  {Mean: 280, Std: 10},
	}
	phys, err := InverseScale(f, vars, p)
	require.NoError(t, err)
	back, err := Scale(phys, vars, p)
	require.NoError(t, err)
	assert.InDeltaSlice(t, f.Data, back.Data, 1e-3)
}

func TestMissingScaleParameter(t *testing.T) {
	f := testTensor()
	p := ScaleParameters{z500: {Mean: 5500, Std: 100}}

	out, err := InverseScale(f, []datasets.VarLevel{z500, t2m}, p)
	assert.Nil(t, out)
	var missing *MissingScaleParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []datasets.VarLevel{t2m}, missing.Missing)
	assert.Contains(t, err.Error(), "t2m/0")
}

func TestScaleChecks(t *testing.T) {
	f := testTensor()
	p := ScaleParameters{z500: {Mean: 1, Std: 0}, t2m: {Mean: 0, Std: 1}}

	_, err := Scale(f, []datasets.VarLevel{z500, t2m}, p)
	assert.ErrorIs(t, err, ErrZeroStd)

	_, err = InverseScale(f, []datasets.VarLevel{z500}, p)
	var dm *grid.DimensionMismatchError
	assert.True(t, errors.As(err, &dm))
}

func TestComputeAndScaleSeries(t *testing.T) {
	topo := grid.LatLon(2, 2)
	times := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC),
	}
	data := []float32{
		// t0: z500, t2m
		1, 2, 3, 4, 10, 10, 10, 10,
		// t1
		5, 6, 7, 8, 10, 10, 10, 12,
	}
	s, err := datasets.NewSeries(topo, times, []datasets.VarLevel{z500, t2m}, data)
	require.NoError(t, err)

	p := Compute(s)
	assert.InDelta(t, 4.5, p[z500].Mean, 1e-9)
	assert.InDelta(t, 10.25, p[t2m].Mean, 1e-9)

	norm, err := ScaleSeries(s, nil, p)
	require.NoError(t, err)
	back := Compute(norm)
	assert.InDelta(t, 0, back[z500].Mean, 1e-6)
	assert.InDelta(t, 1, back[z500].Std, 1e-6)

	_, err = ScaleSeries(s, nil, ScaleParameters{z500: p[z500]})
	var missing *MissingScaleParameterError
	assert.True(t, errors.As(err, &missing))
}

func TestScaleSeriesLeavesUnselectedFields(t *testing.T) {
	lsm := datasets.VarLevel{Variable: "lsm"}
	topo := grid.LatLon(1, 2)
	times := []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := datasets.NewSeries(topo, times, []datasets.VarLevel{z500, lsm}, []float32{3, 5, 0, 1})
	require.NoError(t, err)

	norm, err := ScaleSeries(s, []datasets.VarLevel{z500}, ScaleParameters{z500: {Mean: 4, Std: 2}})
	require.NoError(t, err)
	assert.Equal(t, []float32{-0.5, 0.5}, norm.Field(0, 0))
	assert.Equal(t, []float32{0, 1}, norm.Field(0, 1))

	_, err = ScaleSeries(s, nil, ScaleParameters{z500: {Mean: 4, Std: 2}})
	var missing *MissingScaleParameterError
	require.True(t, errors.As(err, &missing))

	_, err = ScaleSeries(s, []datasets.VarLevel{t2m}, ScaleParameters{t2m: {Mean: 0, Std: 1}})
	assert.ErrorIs(t, err, datasets.ErrUnknownVarLevel)
}
