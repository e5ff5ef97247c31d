// Package scaling converts forecasts between normalized model units and
// physical units with per-field affine parameters.
package scaling

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

// Params is the (mean, std) pair of one variable/level.
type Params struct {
	Mean float64
	Std  float64
}

// ScaleParameters maps each variable/level to its Params. It is read-only
// once loaded and may be shared freely.
type ScaleParameters map[datasets.VarLevel]Params

// ErrZeroStd is returned when forward scaling would divide by zero.
var ErrZeroStd = errors.New("standard deviation is zero")

// MissingScaleParameterError reports selected fields with no entry in the
// scale parameters.
type MissingScaleParameterError struct {
	Missing []datasets.VarLevel
}

func (e *MissingScaleParameterError) Error() string {
	return fmt.Sprintf("missing scale parameters for %v", e.Missing)
}

// Lookup returns the parameters of vars in order, or a
// *MissingScaleParameterError naming every field without an entry.
func (p ScaleParameters) Lookup(vars []datasets.VarLevel) ([]Params, error) {
	out := make([]Params, len(vars))
	var missing []datasets.VarLevel
	for i, vl := range vars {
		sp, ok := p[vl]
		if !ok {
			missing = append(missing, vl)
			continue
		}
		out[i] = sp
	}
	if len(missing) > 0 {
		return nil, &MissingScaleParameterError{Missing: missing}
	}
	return out, nil
}

// InverseScale returns a new tensor with every channel c of f mapped as
// value*std + mean, using the parameters of vars[c]. All parameters are
// resolved before any output is produced. f is not modified.
func InverseScale(f *forecast.ForecastTensor, vars []datasets.VarLevel, p ScaleParameters) (*forecast.ForecastTensor, error) {
	params, err := prepare(f, vars, p)
	if err != nil {
		return nil, err
	}
	out := f.Clone()
	apply(out, params, func(v float32, sp Params) float32 {
		return float32(float64(v)*sp.Std + sp.Mean)
	})
	return out, nil
}

// Scale is the forward transform, (value - mean) / std.
func Scale(f *forecast.ForecastTensor, vars []datasets.VarLevel, p ScaleParameters) (*forecast.ForecastTensor, error) {
	params, err := prepare(f, vars, p)
	if err != nil {
		return nil, err
	}
	if err := checkStd(vars, params); err != nil {
		return nil, err
	}
	out := f.Clone()
	apply(out, params, func(v float32, sp Params) float32 {
		return float32((float64(v) - sp.Mean) / sp.Std)
	})
	return out, nil
}

// ScaleSeries returns a copy of s with the fields in vars normalized. Fields
// not in vars are copied unchanged, so parameters are only needed for the
// selection. An empty vars selects every field of s, as in a generator.
func ScaleSeries(s *datasets.Series, vars []datasets.VarLevel, p ScaleParameters) (*datasets.Series, error) {
	if len(vars) == 0 {
		vars = s.VarLevels
	}
	params, err := p.Lookup(vars)
	if err != nil {
		return nil, err
	}
	if err := checkStd(vars, params); err != nil {
		return nil, err
	}
	byField := make([]*Params, len(s.VarLevels))
	for i, vl := range vars {
		v, ok := s.Index(vl)
		if !ok {
			return nil, fmt.Errorf("%w: %s", datasets.ErrUnknownVarLevel, vl)
		}
		byField[v] = &params[i]
	}
	data := make([]float32, 0, s.Len()*len(s.VarLevels)*s.Cells())
	for t := range s.Len() {
		for v, sp := range byField {
			if sp == nil {
				data = append(data, s.Field(t, v)...)
				continue
			}
			for _, x := range s.Field(t, v) {
				data = append(data, float32((float64(x)-sp.Mean)/sp.Std))
			}
		}
	}
	return datasets.NewSeries(s.Topology, s.Times, s.VarLevels, data)
}

// Compute estimates parameters for every field of s over all snapshots and
// cells.
func Compute(s *datasets.Series) ScaleParameters {
	out := make(ScaleParameters, len(s.VarLevels))
	buf := make([]float64, 0, s.Len()*s.Cells())
	for v, vl := range s.VarLevels {
		buf = buf[:0]
		for t := range s.Len() {
			for _, x := range s.Field(t, v) {
				buf = append(buf, float64(x))
			}
		}
		mean, std := stat.MeanStdDev(buf, nil)
		out[vl] = Params{Mean: mean, Std: std}
	}
	return out
}

func prepare(f *forecast.ForecastTensor, vars []datasets.VarLevel, p ScaleParameters) ([]Params, error) {
	if f == nil {
		return nil, fmt.Errorf("forecast cannot be nil")
	}
	if err := grid.CheckDim("scaled channels", f.Channels, len(vars)); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return p.Lookup(vars)
}

func checkStd(vars []datasets.VarLevel, params []Params) error {
	for i, sp := range params {
		if sp.Std == 0 {
			return fmt.Errorf("%s: %w", vars[i], ErrZeroStd)
		}
	}
	return nil
}

func apply(f *forecast.ForecastTensor, params []Params, fn func(float32, Params) float32) {
	for lead := range f.Leads {
		for init := range f.Inits {
			for c, sp := range params {
				field := f.Field(lead, init, c)
				for i, v := range field {
					field[i] = fn(v, sp)
				}
			}
		}
	}
}
