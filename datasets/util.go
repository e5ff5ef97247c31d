package datasets

import (
	"fmt"
	"reflect"
	"time"
)

// Flatten turns a rectangular nested slice of float32 or float64 (as
// returned by netCDF readers and by gomlx Tensor.Value) into a flat float32
// buffer in row-major order, returning the dimensions it found.
func Flatten(v any) ([]float32, []int, error) {
	rv := reflect.ValueOf(v)
	var dims []int
	for cur := rv; cur.Kind() == reflect.Slice; {
		dims = append(dims, cur.Len())
		if cur.Len() == 0 {
			break
		}
		cur = cur.Index(0)
	}
	if len(dims) == 0 {
		return nil, nil, fmt.Errorf("value of type %T is not a slice", v)
	}

	total := 1
	for _, d := range dims {
		total *= d
	}
	out := make([]float32, 0, total)

	var walk func(cur reflect.Value, depth int) error
	walk = func(cur reflect.Value, depth int) error {
		if cur.Len() != dims[depth] {
			return fmt.Errorf("ragged array at depth %d: %d != %d", depth, cur.Len(), dims[depth])
		}
		if depth == len(dims)-1 {
			switch leaf := cur.Interface().(type) {
			case []float32:
				out = append(out, leaf...)
			case []float64:
				for _, x := range leaf {
					out = append(out, float32(x))
				}
			default:
				return fmt.Errorf("unsupported element type %T", leaf)
			}
			return nil
		}
		for i := range cur.Len() {
			if err := walk(cur.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if total > 0 {
		if err := walk(rv, 0); err != nil {
			return nil, nil, err
		}
	}
	return out, dims, nil
}

// HoursToTimes decodes "hours since 1970-01-01" coordinate values.
func HoursToTimes(v any) ([]time.Time, error) {
	var hours []float64
	switch vals := v.(type) {
	case []float64:
		hours = vals
	case []float32:
		for _, h := range vals {
			hours = append(hours, float64(h))
		}
	case []int32:
		for _, h := range vals {
			hours = append(hours, float64(h))
		}
	case []int64:
		for _, h := range vals {
			hours = append(hours, float64(h))
		}
	default:
		return nil, fmt.Errorf("unsupported time coordinate type %T", v)
	}
	times := make([]time.Time, len(hours))
	for i, h := range hours {
		times[i] = time.Unix(0, 0).UTC().Add(time.Duration(h * float64(time.Hour)))
	}
	return times, nil
}

// TimesToHours is the inverse of the netCDF time decoding used by LoadNetCDF.
func TimesToHours(times []time.Time) []float64 {
	hours := make([]float64, len(times))
	for i, t := range times {
		hours[i] = t.Sub(time.Unix(0, 0).UTC()).Hours()
	}
	return hours
}
