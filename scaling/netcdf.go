package scaling

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/grid"
)

// Variable names read from a scale dataset.
const (
	MeanVar = "mean"
	StdVar  = "std"
)

// LoadNetCDF reads mean(varlev) and std(varlev) from a statistics file. The
// file may be the source series itself.
func LoadNetCDF(path string) (ScaleParameters, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer nc.Close()

	vars, err := datasets.ReadVarLevels(nc)
	if err != nil {
		return nil, err
	}
	mean, err := readVector(nc, MeanVar)
	if err != nil {
		return nil, err
	}
	std, err := readVector(nc, StdVar)
	if err != nil {
		return nil, err
	}
	if err := grid.CheckDim(MeanVar, len(vars), len(mean)); err != nil {
		return nil, err
	}
	if err := grid.CheckDim(StdVar, len(vars), len(std)); err != nil {
		return nil, err
	}

	out := make(ScaleParameters, len(vars))
	for i, vl := range vars {
		out[vl] = Params{Mean: mean[i], Std: std[i]}
	}
	return out, nil
}

func readVector(nc api.Group, name string) ([]float64, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	switch vals := v.Values.(type) {
	case []float64:
		return vals, nil
	case []float32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%q has unsupported type %T", name, v.Values)
	}
}
