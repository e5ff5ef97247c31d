package remap

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Variable names of an ESMF/TempestRemap offline map file.
const (
	esmfS           = "S"
	esmfRow         = "row"
	esmfCol         = "col"
	esmfSrcGridDims = "src_grid_dims"
	esmfDstGridDims = "dst_grid_dims"
)

// LoadESMF reads an offline map file. Row and column indices are 1-based in
// the file; grid sizes come from the product of the grid dims variables.
func LoadESMF(path string) (*Weights, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map file %s: %w", path, err)
	}
	defer nc.Close()

	srcDims, err := readInts(nc, esmfSrcGridDims)
	if err != nil {
		return nil, err
	}
	dstDims, err := readInts(nc, esmfDstGridDims)
	if err != nil {
		return nil, err
	}
	rows, err := readInts(nc, esmfRow)
	if err != nil {
		return nil, err
	}
	cols, err := readInts(nc, esmfCol)
	if err != nil {
		return nil, err
	}
	v, err := nc.GetVariable(esmfS)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", esmfS, err)
	}
	var vals []float64
	switch s := v.Values.(type) {
	case []float64:
		vals = s
	case []float32:
		vals = make([]float64, len(s))
		for i, x := range s {
			vals[i] = float64(x)
		}
	default:
		return nil, fmt.Errorf("%q has unsupported type %T", esmfS, v.Values)
	}

	for i := range rows {
		rows[i]--
	}
	for i := range cols {
		cols[i]--
	}
	w, err := NewWeights(product(srcDims), product(dstDims), rows, cols, vals)
	if err != nil {
		return nil, fmt.Errorf("malformed map file %s: %w", path, err)
	}
	return w, nil
}

func readInts(nc api.Group, name string) ([]int, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	var out []int
	switch vals := v.Values.(type) {
	case []int32:
		out = make([]int, len(vals))
		for i, x := range vals {
			out[i] = int(x)
		}
	case []int64:
		out = make([]int, len(vals))
		for i, x := range vals {
			out[i] = int(x)
		}
	case int32:
		out = []int{int(vals)}
	case int64:
		out = []int{int(vals)}
	default:
		return nil, fmt.Errorf("%q has unsupported type %T", name, v.Values)
	}
	return out, nil
}

func product(dims []int) int {
	if len(dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
