// Package app assembles the analysis stack from configuration.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/weather-history-analyzer/internal/adapter/cmr"
	"github.com/couchcryptid/weather-history-analyzer/internal/adapter/netcdf"
	"github.com/couchcryptid/weather-history-analyzer/internal/adapter/opendap"
	"github.com/couchcryptid/weather-history-analyzer/internal/adapter/timezone"
	"github.com/couchcryptid/weather-history-analyzer/internal/analysis"
	"github.com/couchcryptid/weather-history-analyzer/internal/config"
	"github.com/couchcryptid/weather-history-analyzer/internal/dataset"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

// Stack is a ready-to-run Analyzer plus the granule cache it writes to.
type Stack struct {
	Analyzer *analysis.Analyzer
	Cache    *opendap.LocalFileCache
}

// NewStack wires the catalog client, downloader, dataset assembler and
// optional timezone lookup into an Analyzer.
func NewStack(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Stack, error) {
	client := cmr.NewClient(cmr.Options{
		BaseURL:       cfg.CMRURL,
		Token:         cfg.EarthdataToken,
		ShortName:     cfg.CollectionShortName,
		Version:       cfg.CollectionVersion,
		Timeout:       cfg.CMRTimeout,
		MaxAttempts:   cfg.DownloadAttempts,
		RetryInterval: cfg.DownloadRetryInterval,
	}, logger, metrics)
	collection := cfg.CollectionShortName + "." + cfg.CollectionVersion
	catalog := cmr.NewCachedSearcher(client, collection, cfg.CatalogCacheSize, metrics)

	cache := opendap.NewLocalFileCache(cfg.CacheDir)
	fetcher := opendap.NewClient(&http.Client{}, cfg.EarthdataToken)
	downloader := opendap.NewDownloader(fetcher, cache, opendap.Options{
		Workers:       cfg.DownloadWorkers,
		Attempts:      cfg.DownloadAttempts,
		Timeout:       cfg.DownloadTimeout,
		RetryInterval: cfg.DownloadRetryInterval,
	}, logger, metrics)

	assembler := dataset.NewAssembler(openGranule, logger)

	opts := []analysis.Option{analysis.WithDefaults(analysis.Defaults{
		TargetHour:    cfg.DefaultTargetHour,
		YearsBack:     cfg.DefaultYearsBack,
		WindowHours:   cfg.WindowHours,
		PressureHPa:   cfg.PressureHPa,
		RainThreshold: cfg.RainThreshold,
	})}
	if cfg.TimezoneLookupEnabled {
		tz, err := timezone.NewService()
		if err != nil {
			return nil, fmt.Errorf("timezone lookup: %w", err)
		}
		opts = append(opts, analysis.WithTimezones(tz))
		logger.Info("local hour reference enabled")
	}

	return &Stack{
		Analyzer: analysis.New(catalog, downloader, assembler, logger, metrics, opts...),
		Cache:    cache,
	}, nil
}

func openGranule(path string) (dataset.GridFile, error) {
	f, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
