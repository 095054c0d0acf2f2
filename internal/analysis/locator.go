package analysis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
)

// Catalog finds granules for one search window.
type Catalog interface {
	SearchGranules(ctx context.Context, window domain.SearchWindow) ([]domain.Granule, error)
}

// Locator runs one catalog search per window, in order.
type Locator struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewLocator creates a Locator.
func NewLocator(catalog Catalog, logger *slog.Logger) *Locator {
	return &Locator{catalog: catalog, logger: logger}
}

// Locate concatenates the granules of every window. A window whose search
// fails is logged and skipped; an *domain.AcquisitionError is returned only
// when every search fails.
func (l *Locator) Locate(ctx context.Context, windows []domain.SearchWindow) ([]domain.Granule, error) {
	var (
		granules []domain.Granule
		errs     []error
	)
	for _, w := range windows {
		l.logger.Info("searching granules",
			"year", w.Year,
			"start", w.Start.Format(domain.DateLayout),
			"end", w.End.Format(domain.DateLayout),
		)
		found, err := l.catalog.SearchGranules(ctx, w)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			acqErr := &domain.AcquisitionError{Year: w.Year, Err: err}
			l.logger.Warn("granule search failed, skipping year", "year", w.Year, "error", err)
			errs = append(errs, acqErr)
			continue
		}
		granules = append(granules, found...)
	}

	if len(windows) > 0 && len(errs) == len(windows) {
		return nil, &domain.AcquisitionError{Err: errors.Join(errs...)}
	}
	l.logger.Info("granules found", "total", len(granules))
	return granules, nil
}
