package archive

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
)

// Global attribute names.
const (
	AttrRunID   = "run_id"
	AttrVarLevs = "varlevs"
	AttrGrid    = "grid"
	AttrCreated = "created"
)

// ForecastVar is the netCDF variable holding the forecast values.
const ForecastVar = "forecast"

// attrLabels on the varlev coordinate lists the variable/level labels in
// index order.
const attrLabels = "labels"

const hoursSinceEpoch = "hours since 1970-01-01 00:00:00"

// coord is a one-dimensional coordinate variable named after its dimension.
type coord struct {
	name   string
	values any
	attrs  map[string]any
}

func indexes(n int) []int32 {
	idx := make([]int32, n)
	for j := range idx {
		idx[j] = int32(j)
	}
	return idx
}

// WriteNetCDF writes l as a single variable named ForecastVar with
// dimensions [forecast_lead_time, initialization_time, varlev, <spatial>],
// plus a coordinate variable for every dimension. The varlev coordinate is
// an index whose labels attribute names each variable/level.
func WriteNetCDF(path string, l *forecast.Labeled, runID string) error {
	if err := l.Validate(); err != nil {
		return err
	}
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	// Close flushes the file, so its error matters on the success path.
	closed := false
	defer func() {
		if !closed {
			cw.Close()
		}
	}()

	leadHours := make([]float64, len(l.LeadTimes))
	for i, d := range l.LeadTimes {
		leadHours[i] = d.Hours()
	}
	varLabels := strings.Join(labels(l.VarLevels), ",")
	coords := []coord{
		{forecast.LeadTimeDim, leadHours, map[string]any{"units": "hours", "long_name": "forecast lead time"}},
		{forecast.InitTimeDim, datasets.TimesToHours(l.InitTimes), map[string]any{"units": hoursSinceEpoch, "calendar": "standard"}},
		{forecast.VarLevDim, indexes(len(l.VarLevels)), map[string]any{attrLabels: varLabels, "long_name": "variable/level"}},
	}
	switch l.Topology.Kind {
	case grid.KindLatLon:
		coords = append(coords,
			coord{"lat", l.Topology.Latitudes(), map[string]any{"units": "degrees_north"}},
			coord{"lon", l.Topology.Longitudes(), map[string]any{"units": "degrees_east"}},
		)
	case grid.KindCubeSphere:
		for i, name := range grid.CubeSphereDims {
			coords = append(coords, coord{name, indexes(l.Topology.Dims()[i]), map[string]any{}})
		}
	}
	for _, c := range coords {
		attrs, err := orderedAttrs(c.attrs)
		if err != nil {
			return err
		}
		if err := cw.AddVar(c.name, api.Variable{Values: c.values, Dimensions: []string{c.name}, Attributes: attrs}); err != nil {
			return fmt.Errorf("failed to write %q: %w", c.name, err)
		}
	}

	attrs, err := orderedAttrs(map[string]any{"long_name": "forecast"})
	if err != nil {
		return err
	}
	if err := cw.AddVar(ForecastVar, api.Variable{Values: nest(l.Data, l.Dims()), Dimensions: l.DimNames(), Attributes: attrs}); err != nil {
		return fmt.Errorf("failed to write %q: %w", ForecastVar, err)
	}

	global, err := orderedAttrs(map[string]any{
		AttrRunID:   runID,
		AttrVarLevs: varLabels,
		AttrGrid:    l.Topology.String(),
		AttrCreated: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := cw.AddGlobalAttrs(global); err != nil {
		return fmt.Errorf("failed to write global attributes: %w", err)
	}

	closed = true
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// ReadNetCDF reads a file written by WriteNetCDF back into a labeled
// forecast, along with its run ID.
func ReadNetCDF(path string) (*forecast.Labeled, string, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer nc.Close()

	runID, _ := attrString(nc.Attributes(), AttrRunID)

	vlVar, err := nc.GetVariable(forecast.VarLevDim)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %q: %w", forecast.VarLevDim, err)
	}
	varLabels, ok := attrString(vlVar.Attributes, attrLabels)
	if !ok {
		return nil, "", fmt.Errorf("%s: %q has no %q attribute", path, forecast.VarLevDim, attrLabels)
	}
	vars, err := datasets.ParseVarLevels(strings.Split(varLabels, ","))
	if err != nil {
		return nil, "", err
	}

	leadVar, err := nc.GetVariable(forecast.LeadTimeDim)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %q: %w", forecast.LeadTimeDim, err)
	}
	leadHours, ok := leadVar.Values.([]float64)
	if !ok {
		return nil, "", fmt.Errorf("%q has unsupported type %T", forecast.LeadTimeDim, leadVar.Values)
	}
	leads := make([]time.Duration, len(leadHours))
	for i, h := range leadHours {
		leads[i] = time.Duration(h * float64(time.Hour))
	}
	initVar, err := nc.GetVariable(forecast.InitTimeDim)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %q: %w", forecast.InitTimeDim, err)
	}
	inits, err := datasets.HoursToTimes(initVar.Values)
	if err != nil {
		return nil, "", err
	}

	v, err := nc.GetVariable(ForecastVar)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %q: %w", ForecastVar, err)
	}
	flat, dims, err := datasets.Flatten(v.Values)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %q: %w", ForecastVar, err)
	}
	var topo grid.Topology
	switch len(dims) {
	case 6:
		topo = grid.CubeSphere(dims[4])
	case 5:
		topo = grid.LatLon(dims[3], dims[4])
	default:
		return nil, "", fmt.Errorf("%q has %d dimensions", ForecastVar, len(dims))
	}

	out := &forecast.Labeled{
		LeadTimes: leads,
		InitTimes: inits,
		VarLevels: vars,
		Topology:  topo,
		Data:      flat,
	}
	if want := out.DimNames(); !slices.Equal(v.Dimensions, want) {
		return nil, "", fmt.Errorf("%q has dimensions %v, want %v", ForecastVar, v.Dimensions, want)
	}
	for i, d := range out.Dims() {
		if err := grid.CheckDim(out.DimNames()[i], d, dims[i]); err != nil {
			return nil, "", err
		}
	}
	return out, runID, nil
}

func orderedAttrs(m map[string]any) (*util.OrderedMap, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	attrs, err := util.NewOrderedMap(keys, m)
	if err != nil {
		return nil, fmt.Errorf("failed to build attributes: %w", err)
	}
	return attrs, nil
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// nest turns a flat row-major buffer into nested slices of the given shape,
// the form the netCDF writer expects for multi-dimensional variables.
func nest(flat []float32, shape []int) any {
	if len(shape) == 1 {
		return flat
	}
	inner := 1
	for _, d := range shape[1:] {
		inner *= d
	}
	first := nest(flat[:min(inner, len(flat))], shape[1:])
	out := reflect.MakeSlice(reflect.SliceOf(reflect.TypeOf(first)), shape[0], shape[0])
	for i := range shape[0] {
		out.Index(i).Set(reflect.ValueOf(nest(flat[i*inner:(i+1)*inner], shape[1:])))
	}
	return out.Interface()
}
