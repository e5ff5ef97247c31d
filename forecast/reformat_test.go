package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/grid"
)

func TestReformatCubeSphere(t *testing.T) {
	s := newSeries(t, 10)
	ft := NewForecastTensor(3, 2, 2, s.Cells())
	for i := range ft.Data {
		ft.Data[i] = float32(i)
	}
	inits, err := InitTimes(s, []int{4, 7})
	require.NoError(t, err)

	l, err := Reformat(ft, LeadTimes(s.Step(), 3), inits, s.VarLevels, s.Topology)
	require.NoError(t, err)
	assert.Equal(t, []string{"forecast_lead_time", "initialization_time", "varlev", "face", "height", "width"}, l.DimNames())
	assert.Equal(t, []int{3, 2, 2, 6, 2, 2}, l.Dims())
	assert.Equal(t, ft.Field(2, 1, 0), l.Field(2, 1, 0))
	assert.Equal(t, s.Times[7].Add(12*time.Hour), l.ValidTimes()[1][1])
	require.NoError(t, l.Validate())

	// the labeled copy does not alias the tensor
	ft.Data[0] = -1
	assert.Equal(t, float32(0), l.Data[0])
}

func TestReformatLatLon(t *testing.T) {
	topo := grid.LatLon(3, 4)
	ft := NewForecastTensor(2, 1, 1, topo.Cells())
	l, err := Reformat(ft, []time.Duration{6 * time.Hour, 12 * time.Hour}, []time.Time{t0},
		[]datasets.VarLevel{{Variable: "t2m"}}, topo)
	require.NoError(t, err)
	assert.Equal(t, []string{"forecast_lead_time", "initialization_time", "varlev", "lat", "lon"}, l.DimNames())
	assert.Equal(t, []int{2, 1, 1, 3, 4}, l.Dims())
}

func TestReformatRejectsMismatches(t *testing.T) {
	s := newSeries(t, 10)
	ft := NewForecastTensor(3, 1, 2, s.Cells())
	inits := []time.Time{s.Times[5]}
	var dm *grid.DimensionMismatchError

	_, err := Reformat(ft, LeadTimes(6*time.Hour, 2), inits, s.VarLevels, s.Topology)
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, LeadTimeDim, dm.What)
	assert.Equal(t, 3, dm.Want)
	assert.Equal(t, 2, dm.Got)

	_, err = Reformat(ft, LeadTimes(6*time.Hour, 3), append(inits, s.Times[6]), s.VarLevels, s.Topology)
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, InitTimeDim, dm.What)

	_, err = Reformat(ft, LeadTimes(6*time.Hour, 3), inits, s.VarLevels[:1], s.Topology)
	require.True(t, errors.As(err, &dm))

	_, err = Reformat(ft, LeadTimes(6*time.Hour, 3), inits, s.VarLevels, grid.CubeSphere(3))
	require.True(t, errors.As(err, &dm))

	_, err = Reformat(ft, []time.Duration{6 * time.Hour, 12 * time.Hour, 24 * time.Hour}, inits, s.VarLevels, s.Topology)
	assert.Error(t, err)

	_, err = InitTimes(s, []int{10})
	assert.ErrorIs(t, err, datasets.ErrIndexOutOfRange)
}

func TestForecastTensorToTensor(t *testing.T) {
	ft := NewForecastTensor(2, 3, 1, 4)
	tt, err := ft.ToTensor()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1, 4}, tt.Shape().Dimensions)

	ft.Data = ft.Data[:5]
	_, err = ft.ToTensor()
	assert.Error(t, err)
}

func TestTensorPredictor(t *testing.T) {
	s := newSeries(t, 10)
	g := newGenerator(t, s, datasets.Config{InputTimeSteps: 2, OutputTimeSteps: 1, AddInsolation: true})

	var seen []int
	fn := func(_ context.Context, in *tensors.Tensor, steps int) (*tensors.Tensor, error) {
		seen = in.Shape().Dimensions
		dims := append([]int{seen[0], steps}, 2)
		dims = append(dims, seen[3:]...)
		n := 1
		for _, d := range dims {
			n *= d
		}
		data := make([]float32, n)
		for i := range data {
			data[i] = 7
		}
		return tensors.FromFlatDataAndDimensions(data, dims...), nil
	}
	p, err := NewTensorPredictor(fn, 2, s.Topology, datasets.ChannelsFirst)
	require.NoError(t, err)

	est, err := NewEstimator(p, Capabilities{InputTimeSteps: 2, OutputTimeSteps: 1, SupportsNSteps: true}, g)
	require.NoError(t, err)
	ft, err := est.Predict(context.Background(), []int{3, 4}, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 3, 6, 2, 2}, seen)
	for _, v := range ft.Data {
		require.Equal(t, float32(7), v)
	}

	bad := func(_ context.Context, in *tensors.Tensor, steps int) (*tensors.Tensor, error) {
		return tensors.FromFlatDataAndDimensions(make([]float32, 4), 2, 2), nil
	}
	p, err = NewTensorPredictor(bad, 2, s.Topology, datasets.ChannelsFirst)
	require.NoError(t, err)
	w, err := g.InputWindow(3)
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), []*datasets.Window{w}, 1)
	var dm *grid.DimensionMismatchError
	assert.True(t, errors.As(err, &dm))
}
