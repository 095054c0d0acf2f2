package http

import (
	"context"
	"errors"
)

// ReadinessGroup is ready when every member is ready.
type ReadinessGroup []ReadinessChecker

func (g ReadinessGroup) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range g {
		if c == nil {
			continue
		}
		if err := c.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
