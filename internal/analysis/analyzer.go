// Package analysis runs the historical comfort analysis: catalog search,
// download, dataset assembly, point selection, and aggregation.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-history-analyzer/internal/dataset"
	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

// Downloader turns OPeNDAP URLs into local files.
type Downloader interface {
	Tasks(urls []string) []domain.DownloadTask
	Download(ctx context.Context, tasks []domain.DownloadTask) []string
}

// Assembler merges downloaded files into one dataset.
type Assembler interface {
	Assemble(paths []string) (*dataset.Dataset, error)
}

// TimezoneResolver finds the local time zone of a coordinate.
type TimezoneResolver interface {
	Location(lat, lon float64) (*time.Location, error)
}

// Defaults fill request fields left unset.
type Defaults struct {
	TargetHour    int
	YearsBack     int
	WindowHours   int
	PressureHPa   float64
	RainThreshold float64
}

// DefaultDefaults returns hour 12, five years, ±2 hours, 1000 hPa and a 0.3
// percent rain threshold.
func DefaultDefaults() Defaults {
	return Defaults{
		TargetHour:    12,
		YearsBack:     5,
		WindowHours:   2,
		PressureHPa:   1000,
		RainThreshold: 0.3,
	}
}

// Analyzer runs the full analysis for one request at a time.
type Analyzer struct {
	locator    *Locator
	downloader Downloader
	assembler  Assembler
	timezones  TimezoneResolver
	defaults   Defaults
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithDefaults overrides the request defaults.
func WithDefaults(d Defaults) Option {
	return func(a *Analyzer) { a.defaults = d }
}

// WithTimezones enables local-hour requests.
func WithTimezones(tz TimezoneResolver) Option {
	return func(a *Analyzer) { a.timezones = tz }
}

// New creates an Analyzer.
func New(catalog Catalog, downloader Downloader, assembler Assembler, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Analyzer {
	logger = logger.With("component", "analyzer")
	a := &Analyzer{
		locator:    NewLocator(catalog, logger),
		downloader: downloader,
		assembler:  assembler,
		defaults:   DefaultDefaults(),
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// params is a request with defaults applied and the hour in UTC.
type params struct {
	date          time.Time
	lat, lon      float64
	hourUTC       int
	yearsBack     int
	windowHours   int
	pressureHPa   float64
	rainThreshold float64
}

// Analyze estimates typical conditions around the request's date, hour and
// location over past years.
func (a *Analyzer) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	start := time.Now()
	result, err := a.analyze(ctx, req)
	a.metrics.Analyses.WithLabelValues(outcome(err)).Inc()
	a.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Warn("analysis failed", "error", err, "duration", time.Since(start))
		return domain.AnalysisResult{}, err
	}
	a.logger.Info("analysis complete",
		"files_used", result.FilesUsed,
		"comfort", result.Comfort.Label,
		"duration", time.Since(start),
	)
	return result, nil
}

func (a *Analyzer) analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	p, err := a.resolve(req)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	windows := domain.SearchWindows(p.date, p.yearsBack)
	granules, err := a.locator.Locate(ctx, windows)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	urls := domain.ExtractOPeNDAPURLs(granules)
	a.logger.Info("opendap urls extracted", "count", len(urls))

	files := a.downloader.Download(ctx, a.downloader.Tasks(urls))
	if err := ctx.Err(); err != nil {
		return domain.AnalysisResult{}, err
	}
	if len(files) == 0 {
		return domain.AnalysisResult{}, &domain.NoDataError{Message: domain.NoGranulesMessage}
	}

	ds, err := a.assembler.Assemble(files)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			a.logger.Warn("close dataset", "error", err)
		}
	}()

	hours := domain.NewHourWindow(p.hourUTC, p.windowHours)
	a.logger.Info("selecting point series",
		"lat", p.lat, "lon", p.lon,
		"hour_utc", p.hourUTC, "window_hours", p.windowHours,
	)
	samples, err := ds.Select(p.lat, p.lon, hours)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	derived := domain.Derive(samples, p.pressureHPa)
	daily := domain.AggregateDaily(derived)
	result := domain.Summarize(daily, p.rainThreshold)
	result.FilesUsed = len(files)
	result.Comfort = domain.ScoreComfort(float64(result.MeanT2M), float64(result.MeanRH))
	return result, nil
}

func (a *Analyzer) resolve(req domain.AnalysisRequest) (params, error) {
	if err := Validate(req); err != nil {
		return params{}, err
	}
	date, err := domain.ParseTargetDate(req.TargetDate)
	if err != nil {
		return params{}, err
	}

	p := params{
		date:          date,
		lat:           *req.Lat,
		lon:           *req.Lon,
		hourUTC:       valueOr(req.TargetHour, a.defaults.TargetHour),
		yearsBack:     valueOr(req.YearsBack, a.defaults.YearsBack),
		windowHours:   valueOr(req.WindowHours, a.defaults.WindowHours),
		pressureHPa:   valueOr(req.PressureHPa, a.defaults.PressureHPa),
		rainThreshold: valueOr(req.RainThreshold, a.defaults.RainThreshold),
	}

	if req.HourReference == domain.HourReferenceLocal {
		if a.timezones == nil {
			return params{}, fmt.Errorf("%w: local hour reference requires timezone lookup", domain.ErrInvalidRequest)
		}
		loc, err := a.timezones.Location(p.lat, p.lon)
		if err != nil {
			return params{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		local := time.Date(date.Year(), date.Month(), date.Day(), p.hourUTC, 0, 0, 0, loc)
		p.hourUTC = local.UTC().Hour()
	}
	return p, nil
}

func valueOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNoData):
		return "no_data"
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidDate):
		return "invalid"
	default:
		return "error"
	}
}

// Respond converts an analysis outcome into its wire shape. Errors become
// {"error": message}.
func Respond(result domain.AnalysisResult, err error) domain.Response {
	if err == nil {
		return domain.Response{AnalysisResult: &result}
	}
	var noData *domain.NoDataError
	if errors.As(err, &noData) {
		return domain.Response{Error: noData.Message}
	}
	return domain.Response{Error: err.Error()}
}
