package dataset

import (
	"fmt"
	"math"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
)

// NearestIndex returns the index of the axis value closest to v. A point
// midway between two values resolves to the larger value.
func NearestIndex(axis []float64, v float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, a := range axis {
		d := math.Abs(a - v)
		if d < bestDist || (d == bestDist && a > axis[best]) {
			best, bestDist = i, d
		}
	}
	return best
}

// Select returns the samples at the grid cell nearest (lat, lon) whose UTC
// hour falls inside hours, in time order. An empty selection is ErrNoData.
func (ds *Dataset) Select(lat, lon float64, hours domain.HourWindow) ([]domain.Sample, error) {
	yi, xi := NearestIndex(ds.lat, lat), NearestIndex(ds.lon, lon)

	series := make(map[int]map[string][]float64)
	read := func(file int) (map[string][]float64, error) {
		if s, ok := series[file]; ok {
			return s, nil
		}
		s := make(map[string][]float64, len(domain.DataVariables))
		for _, name := range domain.DataVariables {
			values, err := ds.files[file].Series(name, yi, xi)
			if err != nil {
				return nil, &domain.DatasetError{Path: ds.paths[file], Reason: err.Error()}
			}
			if len(values) != len(ds.files[file].Times()) {
				return nil, &domain.DatasetError{
					Path:   ds.paths[file],
					Reason: fmt.Sprintf("%s has %d samples for %d times", name, len(values), len(ds.files[file].Times())),
				}
			}
			s[name] = values
		}
		series[file] = s
		return s, nil
	}

	var samples []domain.Sample
	for _, ref := range ds.refs {
		if !hours.Contains(ref.t.Hour()) {
			continue
		}
		s, err := read(ref.file)
		if err != nil {
			return nil, err
		}
		samples = append(samples, domain.Sample{
			Time: ref.t,
			T2M:  s["T2M"][ref.pos],
			QV2M: s["QV2M"][ref.pos],
			TQL:  s["TQL"][ref.pos],
			TQV:  s["TQV"][ref.pos],
		})
	}

	if len(samples) == 0 {
		return nil, &domain.NoDataError{
			Message: fmt.Sprintf("No data in hours %02d-%02d UTC at lat=%g, lon=%g.", hours.Low, hours.High, ds.lat[yi], ds.lon[xi]),
		}
	}
	return samples, nil
}
