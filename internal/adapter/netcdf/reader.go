package netcdf

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Coordinate variable names in MERRA-2 granules.
const (
	TimeVar = "time"
	LatVar  = "lat"
	LonVar  = "lon"
)

var errShape = errors.New("unexpected variable shape")

// File is an open NetCDF-4 granule with its coordinate axes decoded.
// Gridded variables are read on demand.
type File struct {
	path  string
	group api.Group
	lat   []float64
	lon   []float64
	times []time.Time
	vars  []string
}

// Open reads the coordinate axes of a NetCDF file.
func Open(path string) (*File, error) {
	group, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	f := &File{path: path, group: group, vars: group.ListVariables()}
	if err := f.readAxes(); err != nil {
		group.Close()
		return nil, fmt.Errorf("read axes of %s: %w", path, err)
	}
	return f, nil
}

func (f *File) readAxes() error {
	var err error
	if f.lat, err = f.readAxis(LatVar); err != nil {
		return err
	}
	if f.lon, err = f.readAxis(LonVar); err != nil {
		return err
	}

	v, err := f.group.GetVariable(TimeVar)
	if err != nil {
		return fmt.Errorf("variable %s: %w", TimeVar, err)
	}
	offsets, _, err := flatten(v.Values)
	if err != nil {
		return fmt.Errorf("variable %s: %w", TimeVar, err)
	}
	units, ok := attrString(v.Attributes, "units")
	if !ok {
		return fmt.Errorf("variable %s has no units", TimeVar)
	}
	f.times, err = DecodeTimes(offsets, units)
	return err
}

func (f *File) readAxis(name string) ([]float64, error) {
	v, err := f.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	values, _, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return values, nil
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Lat returns the latitude axis in degrees north.
func (f *File) Lat() []float64 { return f.lat }

// Lon returns the longitude axis in degrees east.
func (f *File) Lon() []float64 { return f.lon }

// Times returns the decoded time axis in UTC.
func (f *File) Times() []time.Time { return f.times }

// Variables lists every variable in the file.
func (f *File) Variables() []string { return f.vars }

// Series reads the time series of a (time, lat, lon) variable at one grid
// cell. Fill and missing values are returned as NaN.
func (f *File) Series(name string, latIdx, lonIdx int) ([]float64, error) {
	v, err := f.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	series, err := cellSeries(v.Values, v.Dimensions, latIdx, lonIdx)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	maskFill(series, fillValues(v.Attributes))
	return series, nil
}

// Close releases the underlying file.
func (f *File) Close() error {
	f.group.Close()
	return nil
}

// number covers the element types MERRA-2 stores gridded fields in.
type number interface {
	~float32 | ~float64 | ~int8 | ~int16 | ~int32 | ~int64
}

// cellSeries indexes the grid cell straight out of the decoded array.
// Element types without a typed path go through flatten.
func cellSeries(values interface{}, dims []string, latIdx, lonIdx int) ([]float64, error) {
	order, err := axisOrder(dims, 3)
	if err != nil {
		return nil, err
	}
	switch grid := values.(type) {
	case [][][]float32:
		return gridCell(grid, order, latIdx, lonIdx)
	case [][][]float64:
		return gridCell(grid, order, latIdx, lonIdx)
	case [][][]int16:
		return gridCell(grid, order, latIdx, lonIdx)
	case [][][]int32:
		return gridCell(grid, order, latIdx, lonIdx)
	}
	flat, shape, err := flatten(values)
	if err != nil {
		return nil, err
	}
	return extractCell(flat, shape, dims, latIdx, lonIdx)
}

// axisOrder returns the positions of the time, lat and lon dimensions.
// Unnamed dimensions are taken as (time, lat, lon).
func axisOrder(dims []string, rank int) ([3]int, error) {
	if len(dims) != rank {
		return [3]int{0, 1, 2}, nil
	}
	order := [3]int{slices.Index(dims, TimeVar), slices.Index(dims, LatVar), slices.Index(dims, LonVar)}
	if order[0] < 0 || order[1] < 0 || order[2] < 0 {
		return order, fmt.Errorf("%w: dimensions %v", errShape, dims)
	}
	return order, nil
}

func gridCell[T number](grid [][][]T, order [3]int, latIdx, lonIdx int) ([]float64, error) {
	shape := [3]int{len(grid)}
	if shape[0] > 0 {
		shape[1] = len(grid[0])
		if shape[1] > 0 {
			shape[2] = len(grid[0][0])
		}
	}
	ti, yi, xi := order[0], order[1], order[2]
	if latIdx < 0 || latIdx >= shape[yi] || lonIdx < 0 || lonIdx >= shape[xi] {
		return nil, fmt.Errorf("%w: cell (%d, %d) outside %v", errShape, latIdx, lonIdx, shape)
	}

	out := make([]float64, shape[ti])
	var idx [3]int
	for t := range out {
		idx[ti], idx[yi], idx[xi] = t, latIdx, lonIdx
		row := grid[idx[0]][idx[1]]
		if idx[2] >= len(row) {
			return nil, fmt.Errorf("%w: ragged array", errShape)
		}
		out[t] = float64(row[idx[2]])
	}
	return out, nil
}

// extractCell pulls the per-time values at (latIdx, lonIdx) out of a
// row-major array. dims names each axis of shape.
func extractCell(values []float64, shape []int, dims []string, latIdx, lonIdx int) ([]float64, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: rank %d", errShape, len(shape))
	}
	order, err := axisOrder(dims, 3)
	if err != nil {
		return nil, err
	}
	ti, yi, xi := order[0], order[1], order[2]
	if latIdx < 0 || latIdx >= shape[yi] || lonIdx < 0 || lonIdx >= shape[xi] {
		return nil, fmt.Errorf("%w: cell (%d, %d) outside %v", errShape, latIdx, lonIdx, shape)
	}

	strides := []int{shape[1] * shape[2], shape[2], 1}
	out := make([]float64, shape[ti])
	for t := range out {
		idx := make([]int, 3)
		idx[ti], idx[yi], idx[xi] = t, latIdx, lonIdx
		out[t] = values[idx[0]*strides[0]+idx[1]*strides[1]+idx[2]*strides[2]]
	}
	return out, nil
}

// DecodeTimes converts CF offsets ("<unit> since <reference>") to UTC times.
func DecodeTimes(offsets []float64, units string) ([]time.Time, error) {
	unit, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(offsets))
	for i, o := range offsets {
		times[i] = ref.Add(time.Duration(math.Round(o * float64(unit))))
	}
	return times, nil
}

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimeUnits parses a CF time units string.
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	name, refText, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}

	var unit time.Duration
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "seconds", "second", "secs", "s":
		unit = time.Second
	case "minutes", "minute", "mins", "min":
		unit = time.Minute
	case "hours", "hour", "hrs", "h":
		unit = time.Hour
	case "days", "day", "d":
		unit = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", name)
	}

	refText = strings.TrimSuffix(strings.TrimSpace(refText), " UTC")
	for _, layout := range referenceLayouts {
		if ref, err := time.ParseInLocation(layout, refText, time.UTC); err == nil {
			return unit, ref.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unsupported time reference %q", refText)
}

// flatten walks nested numeric slices into a row-major []float64 and
// reports the shape. Scalars have an empty shape.
func flatten(v interface{}) ([]float64, []int, error) {
	var shape []int
	for t := reflect.TypeOf(v); t != nil && t.Kind() == reflect.Slice; t = t.Elem() {
		shape = append(shape, 0)
	}
	var out []float64
	if err := walk(reflect.ValueOf(v), 0, shape, &out); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func walk(rv reflect.Value, depth int, shape []int, out *[]float64) error {
	if rv.Kind() == reflect.Slice {
		n := rv.Len()
		if shape[depth] == 0 {
			shape[depth] = n
		} else if shape[depth] != n {
			return fmt.Errorf("%w: ragged array", errShape)
		}
		for i := 0; i < n; i++ {
			if err := walk(rv.Index(i), depth+1, shape, out); err != nil {
				return err
			}
		}
		return nil
	}

	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		*out = append(*out, rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*out = append(*out, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*out = append(*out, float64(rv.Uint()))
	default:
		return fmt.Errorf("%w: non-numeric element %s", errShape, rv.Kind())
	}
	return nil
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

func fillValues(attrs api.AttributeMap) []float64 {
	if attrs == nil {
		return nil
	}
	var fills []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		v, ok := attrs.Get(key)
		if !ok {
			continue
		}
		values, _, err := flatten(v)
		if err != nil {
			continue
		}
		fills = append(fills, values...)
	}
	return fills
}

// maskFill replaces fill values with NaN in place.
func maskFill(values, fills []float64) {
	if len(fills) == 0 {
		return
	}
	for i, v := range values {
		if slices.Contains(fills, v) {
			values[i] = math.NaN()
		}
	}
}
