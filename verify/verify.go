// Package verify scores forecasts against the series they were initialized
// from, per lead time and variable/level.
package verify

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

// Score summarizes the error of one (lead, varlev) pair over every
// initialization whose valid time is present in the truth series.
type Score struct {
	Lead     time.Duration
	VarLevel datasets.VarLevel
	// Count is the number of initializations scored.
	Count int
	// RMSE and Bias are NaN when Count is zero.
	RMSE float64
	Bias float64
}

// Evaluate scores l against truth. Both must share a topology and truth must
// hold every varlev of l.
func Evaluate(l *forecast.Labeled, truth *datasets.Series) ([]Score, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if !l.Topology.Equal(truth.Topology) {
		return nil, fmt.Errorf("forecast grid %v does not match truth grid %v", l.Topology, truth.Topology)
	}
	vars := make([]int, len(l.VarLevels))
	for v, vl := range l.VarLevels {
		i, ok := truth.Index(vl)
		if !ok {
			return nil, fmt.Errorf("%w: %s", datasets.ErrUnknownVarLevel, vl)
		}
		vars[v] = i
	}

	cells := l.Topology.Cells()
	diff := make([]float64, cells)
	scores := make([]Score, 0, len(l.LeadTimes)*len(l.VarLevels))
	for k, lead := range l.LeadTimes {
		for v, vl := range l.VarLevels {
			var sumSq, sum float64
			count := 0
			for i, init := range l.InitTimes {
				t, ok := truth.TimeIndex(init.Add(lead))
				if !ok {
					continue
				}
				obs := truth.Field(t, vars[v])
				for c, x := range l.Field(k, i, v) {
					diff[c] = float64(x) - float64(obs[c])
				}
				sumSq += floats.Dot(diff, diff)
				sum += floats.Sum(diff)
				count++
			}
			s := Score{Lead: lead, VarLevel: vl, Count: count, RMSE: math.NaN(), Bias: math.NaN()}
			if count > 0 {
				n := float64(count * cells)
				s.RMSE = math.Sqrt(sumSq / n)
				s.Bias = sum / n
			}
			scores = append(scores, s)
		}
	}
	return scores, nil
}

// Persistence returns the forecast that repeats the truth at each
// initialization for every lead time. Scoring it gives a baseline.
func Persistence(l *forecast.Labeled, truth *datasets.Series) (*forecast.Labeled, error) {
	if err := grid.CheckDim("persistence cells", l.Topology.Cells(), truth.Cells()); err != nil {
		return nil, err
	}
	p := &forecast.Labeled{
		LeadTimes: l.LeadTimes,
		InitTimes: l.InitTimes,
		VarLevels: l.VarLevels,
		Topology:  l.Topology,
		Data:      make([]float32, len(l.Data)),
	}
	for i, init := range l.InitTimes {
		t, ok := truth.TimeIndex(init)
		if !ok {
			return nil, fmt.Errorf("%w: initialization %v not in truth series", datasets.ErrIndexOutOfRange, init)
		}
		for v, vl := range l.VarLevels {
			j, ok := truth.Index(vl)
			if !ok {
				return nil, fmt.Errorf("%w: %s", datasets.ErrUnknownVarLevel, vl)
			}
			for k := range l.LeadTimes {
				copy(p.Field(k, i, v), truth.Field(t, j))
			}
		}
	}
	return p, nil
}

// WriteCSV writes scores with a header row.
func WriteCSV(w io.Writer, scores []Score) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lead_hours", "varlev", "count", "rmse", "bias"}); err != nil {
		return err
	}
	for _, s := range scores {
		if err := cw.Write([]string{
			strconv.FormatFloat(s.Lead.Hours(), 'f', -1, 64),
			s.VarLevel.String(),
			strconv.Itoa(s.Count),
			strconv.FormatFloat(s.RMSE, 'g', 8, 64),
			strconv.FormatFloat(s.Bias, 'g', 8, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes scores to path.
func WriteCSVFile(path string, scores []Score) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, scores); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
