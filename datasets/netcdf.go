package datasets

import (
	"fmt"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/Noofbiz/gridcast/grid"
)

// Variable names used by series files.
const (
	PredictorsVar = "predictors"
	SampleVar     = "sample"
	VarLevVar     = "varlev"
)

// LoadNetCDF reads a series file holding
//
//	predictors(sample, varlev, face, height, width)   cubed sphere
//	predictors(sample, varlev, lat, lon)              lat/lon
//
// with sample in hours since 1970-01-01 and varlev labels "variable/level".
func LoadNetCDF(path string) (*Series, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer nc.Close()

	times, err := readTimes(nc, SampleVar)
	if err != nil {
		return nil, err
	}
	varLevels, err := ReadVarLevels(nc)
	if err != nil {
		return nil, err
	}

	pv, err := nc.GetVariable(PredictorsVar)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", PredictorsVar, err)
	}
	data, dims, err := Flatten(pv.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", PredictorsVar, err)
	}

	var topo grid.Topology
	switch len(dims) {
	case 5:
		if err := grid.CheckDim("faces", grid.Faces, dims[2]); err != nil {
			return nil, err
		}
		if err := grid.CheckDim("face width", dims[3], dims[4]); err != nil {
			return nil, err
		}
		topo = grid.CubeSphere(dims[3])
	case 4:
		topo = grid.LatLon(dims[2], dims[3])
	default:
		return nil, fmt.Errorf("%q must have 4 or 5 dimensions, got %d", PredictorsVar, len(dims))
	}
	if err := grid.CheckDim("sample", len(times), dims[0]); err != nil {
		return nil, err
	}
	if err := grid.CheckDim("varlev", len(varLevels), dims[1]); err != nil {
		return nil, err
	}
	return NewSeries(topo, times, varLevels, data)
}

// ReadVarLevels decodes the varlev label coordinate of an open netCDF group.
func ReadVarLevels(nc api.Group) ([]VarLevel, error) {
	v, err := nc.GetVariable(VarLevVar)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", VarLevVar, err)
	}
	var labels []string
	switch vals := v.Values.(type) {
	case []string:
		labels = vals
	case string:
		labels = []string{vals}
	default:
		return nil, fmt.Errorf("%q has unsupported type %T", VarLevVar, v.Values)
	}
	return ParseVarLevels(labels)
}

func readTimes(nc api.Group, name string) ([]time.Time, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	times, err := HoursToTimes(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	return times, nil
}
