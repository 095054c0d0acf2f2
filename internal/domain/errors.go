package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate is returned when the target date cannot be parsed.
	ErrInvalidDate = errors.New("invalid target date")
	// ErrInvalidRequest is returned when request fields fail validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoData is returned when nothing usable was downloaded or selected.
	ErrNoData = errors.New("no data")
)

// NoGranulesMessage is the error text reported when every download failed.
const NoGranulesMessage = "No granules downloaded."

// AcquisitionError reports a catalog search failure. Year is zero when the
// failure covers the whole request.
type AcquisitionError struct {
	Year int
	Err  error
}

func (e *AcquisitionError) Error() string {
	if e.Year == 0 {
		return fmt.Sprintf("granule search failed: %v", e.Err)
	}
	return fmt.Sprintf("granule search for %d failed: %v", e.Year, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// DatasetError reports downloaded files that cannot be combined.
type DatasetError struct {
	Path   string
	Reason string
}

func (e *DatasetError) Error() string {
	if e.Path == "" {
		return "dataset: " + e.Reason
	}
	return fmt.Sprintf("dataset %s: %s", e.Path, e.Reason)
}

// NoDataError marks ErrNoData with a caller-facing message.
type NoDataError struct {
	Message string
}

func (e *NoDataError) Error() string { return e.Message }

func (e *NoDataError) Is(target error) bool { return target == ErrNoData }
