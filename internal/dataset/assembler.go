// Package dataset merges downloaded granules into a single time-indexed
// dataset and selects point time series from it.
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
)

// GridFile is one opened granule: shared lat/lon axes, a time axis, and
// gridded variables readable at a single cell.
type GridFile interface {
	Lat() []float64
	Lon() []float64
	Times() []time.Time
	Variables() []string
	Series(name string, latIdx, lonIdx int) ([]float64, error)
	Close() error
}

// Opener opens a granule file.
type Opener func(path string) (GridFile, error)

// Assembler opens and validates downloaded files.
type Assembler struct {
	open   Opener
	logger *slog.Logger
}

// NewAssembler creates an Assembler using open to read files.
func NewAssembler(open Opener, logger *slog.Logger) *Assembler {
	return &Assembler{open: open, logger: logger.With("component", "assembler")}
}

// timeRef locates one merged time coordinate within a file.
type timeRef struct {
	t    time.Time
	file int
	pos  int
}

// Dataset is the merged view of all files. Variable data stays in the files
// until Select reads it.
type Dataset struct {
	lat   []float64
	lon   []float64
	files []GridFile
	paths []string
	refs  []timeRef
}

// Assemble opens every path and joins the files by time coordinate value.
// A timestamp present in several files is taken from the first file. All
// files must share identical lat/lon axes and expose the required variables;
// otherwise a *domain.DatasetError is returned.
func (a *Assembler) Assemble(paths []string) (*Dataset, error) {
	if len(paths) == 0 {
		return nil, &domain.NoDataError{Message: domain.NoGranulesMessage}
	}

	ds := &Dataset{paths: paths}
	seen := make(map[int64]struct{})
	for i, p := range paths {
		f, err := a.open(p)
		if err != nil {
			ds.Close()
			return nil, &domain.DatasetError{Path: p, Reason: err.Error()}
		}
		ds.files = append(ds.files, f)

		if err := ds.check(f, p); err != nil {
			ds.Close()
			return nil, err
		}

		for pos, t := range f.Times() {
			key := t.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ds.refs = append(ds.refs, timeRef{t: t.UTC(), file: i, pos: pos})
		}
	}

	sort.SliceStable(ds.refs, func(i, j int) bool { return ds.refs[i].t.Before(ds.refs[j].t) })
	a.logger.Info("dataset assembled", "files", len(paths), "time_points", len(ds.refs))
	return ds, nil
}

func (ds *Dataset) check(f GridFile, path string) error {
	vars := f.Variables()
	for _, name := range domain.DataVariables {
		if !slices.Contains(vars, name) {
			return &domain.DatasetError{Path: path, Reason: "missing variable " + name}
		}
	}
	if len(f.Lat()) == 0 || len(f.Lon()) == 0 {
		return &domain.DatasetError{Path: path, Reason: "empty lat/lon axis"}
	}
	if ds.lat == nil {
		ds.lat, ds.lon = f.Lat(), f.Lon()
		return nil
	}
	if !slices.Equal(ds.lat, f.Lat()) || !slices.Equal(ds.lon, f.Lon()) {
		return &domain.DatasetError{Path: path, Reason: "lat/lon grid differs from " + ds.paths[0]}
	}
	return nil
}

// Len returns the number of merged time points.
func (ds *Dataset) Len() int { return len(ds.refs) }

// Times returns the merged, sorted time axis.
func (ds *Dataset) Times() []time.Time {
	times := make([]time.Time, len(ds.refs))
	for i, r := range ds.refs {
		times[i] = r.t
	}
	return times
}

// Close closes every opened file.
func (ds *Dataset) Close() error {
	var errs []error
	for _, f := range ds.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ds.files = nil
	if len(errs) > 0 {
		return fmt.Errorf("close dataset: %w", errors.Join(errs...))
	}
	return nil
}
