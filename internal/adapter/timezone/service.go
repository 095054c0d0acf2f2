// Package timezone resolves the IANA time zone of a coordinate.
package timezone

import (
	"fmt"
	"sync"
	"time"

	"github.com/ringsaturn/tzf"
)

// Service looks up time zones with an in-memory tzf finder.
type Service struct {
	finder tzf.F
}

var (
	instance *Service
	initErr  error
	once     sync.Once
)

// NewService returns the process-wide timezone service. The finder holds the
// boundary data in memory, so it is built only once.
func NewService() (*Service, error) {
	once.Do(func() {
		finder, err := tzf.NewDefaultFinder()
		if err != nil {
			initErr = fmt.Errorf("initialize timezone finder: %w", err)
			return
		}
		instance = &Service{finder: finder}
	})
	return instance, initErr
}

// Name returns the IANA zone name for the coordinate, e.g. "Europe/Paris".
func (s *Service) Name(lat, lon float64) (string, error) {
	name := s.finder.GetTimezoneName(lon, lat)
	if name == "" {
		return "", fmt.Errorf("no timezone for lat=%f, lon=%f", lat, lon)
	}
	return name, nil
}

// Location returns the loaded *time.Location for the coordinate.
func (s *Service) Location(lat, lon float64) (*time.Location, error) {
	name, err := s.Name(lat, lon)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %s: %w", name, err)
	}
	return loc, nil
}
