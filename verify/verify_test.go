package verify

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

var vars = []datasets.VarLevel{{Variable: "z", Level: 500}, {Variable: "t2m"}}

// truthSeries holds 8 six-hourly C2 snapshots where every cell of varlev v at
// step t equals t*10+v.
func truthSeries(t *testing.T) *datasets.Series {
	t.Helper()
	topo := grid.CubeSphere(2)
	times := make([]time.Time, 8)
	var data []float32
	for i := range times {
		times[i] = time.Date(2022, 6, 1, 6*i, 0, 0, 0, time.UTC)
		for v := range vars {
			for range topo.Cells() {
				data = append(data, float32(i*10+v))
			}
		}
	}
	s, err := datasets.NewSeries(topo, times, vars, data)
	require.NoError(t, err)
	return s
}

func emptyForecast(s *datasets.Series, inits []int, leads int) *forecast.Labeled {
	l := &forecast.Labeled{
		LeadTimes: forecast.LeadTimes(s.Step(), leads),
		VarLevels: vars,
		Topology:  s.Topology,
	}
	for _, i := range inits {
		l.InitTimes = append(l.InitTimes, s.Times[i])
	}
	l.Data = make([]float32, leads*len(inits)*len(vars)*s.Cells())
	return l
}

func TestPersistenceScores(t *testing.T) {
	s := truthSeries(t)
	p, err := Persistence(emptyForecast(s, []int{2, 6}, 2), s)
	require.NoError(t, err)
	assert.Equal(t, float32(61), p.Field(1, 1, 1)[0])

	scores, err := Evaluate(p, s)
	require.NoError(t, err)
	require.Len(t, scores, 4)

	// lead 6h: both inits verify, persistence lags by one step
	assert.Equal(t, 6*time.Hour, scores[0].Lead)
	assert.Equal(t, vars[0], scores[0].VarLevel)
	assert.Equal(t, 2, scores[0].Count)
	assert.InDelta(t, 10, scores[0].RMSE, 1e-9)
	assert.InDelta(t, -10, scores[0].Bias, 1e-9)
	assert.Equal(t, vars[1], scores[1].VarLevel)

	// lead 12h: init 6 runs past the end of the series
	assert.Equal(t, 1, scores[2].Count)
	assert.InDelta(t, 20, scores[2].RMSE, 1e-9)
	assert.InDelta(t, -20, scores[3].Bias, 1e-9)
}

func TestPerfectForecastAndNoTruth(t *testing.T) {
	s := truthSeries(t)
	l := emptyForecast(s, []int{3}, 2)
	for k := range 2 {
		for v := range vars {
			copy(l.Field(k, 0, v), s.Field(3+k+1, v))
		}
	}
	scores, err := Evaluate(l, s)
	require.NoError(t, err)
	for _, sc := range scores {
		assert.Equal(t, 1, sc.Count)
		assert.Zero(t, sc.RMSE)
		assert.Zero(t, sc.Bias)
	}

	scores, err = Evaluate(emptyForecast(s, []int{7}, 1), s)
	require.NoError(t, err)
	assert.Zero(t, scores[0].Count)
	assert.True(t, math.IsNaN(scores[0].RMSE))
}

func TestEvaluateErrors(t *testing.T) {
	s := truthSeries(t)
	l := emptyForecast(s, []int{2}, 1)

	other := *l
	other.Topology = grid.CubeSphere(3)
	other.Data = make([]float32, 2*grid.CubeSphere(3).Cells())
	_, err := Evaluate(&other, s)
	assert.Error(t, err)

	unknown := *l
	unknown.VarLevels = []datasets.VarLevel{{Variable: "q", Level: 850}, vars[1]}
	_, err = Evaluate(&unknown, s)
	assert.True(t, errors.Is(err, datasets.ErrUnknownVarLevel))
	_, err = Persistence(&unknown, s)
	assert.True(t, errors.Is(err, datasets.ErrUnknownVarLevel))

	late := *l
	late.InitTimes = []time.Time{s.Times[7].Add(time.Hour)}
	_, err = Persistence(&late, s)
	assert.True(t, errors.Is(err, datasets.ErrIndexOutOfRange))
}

func TestWriteCSV(t *testing.T) {
	scores := []Score{
		{Lead: 6 * time.Hour, VarLevel: vars[0], Count: 2, RMSE: 1.5, Bias: -0.25},
		{Lead: 12 * time.Hour, VarLevel: vars[1], RMSE: math.NaN(), Bias: math.NaN()},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, scores))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"lead_hours,varlev,count,rmse,bias",
		"6,z/500,2,1.5,-0.25",
		"12,t2m/0,0,NaN,NaN",
	}, lines)

	require.NoError(t, WriteCSVFile(filepath.Join(t.TempDir(), "scores.csv"), scores))
	assert.Error(t, WriteCSVFile(filepath.Join(t.TempDir(), "missing", "scores.csv"), scores))
}
