// Command analyze runs a single historical comfort analysis and prints the
// JSON response.
//
// Usage:
//
//	go run ./cmd/analyze 2024-07-15 --lat=40.71 --lon=-74.01 --hour=15 --years-back=3
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/couchcryptid/weather-history-analyzer/internal/analysis"
	"github.com/couchcryptid/weather-history-analyzer/internal/app"
	"github.com/couchcryptid/weather-history-analyzer/internal/config"
	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

type cli struct {
	Date          string   `arg:"" help:"Target date (YYYY-MM-DD)."`
	Lat           float64  `required:"" help:"Latitude in degrees north."`
	Lon           float64  `required:"" help:"Longitude in degrees east."`
	Hour          *int     `help:"Target hour (0-23). Defaults to DEFAULT_TARGET_HOUR."`
	YearsBack     *int     `name:"years-back" help:"Number of past years to analyze."`
	WindowHours   *int     `name:"window-hours" help:"Hours on each side of the target hour."`
	PressureHPa   *float64 `name:"pressure" help:"Surface pressure in hPa used for relative humidity."`
	RainThreshold *float64 `name:"rain-threshold" help:"Liquid fraction percent above which a day is rainy."`
	Local         bool     `help:"Interpret --hour in the location's local time zone."`
	CacheDir      string   `name:"cache-dir" help:"Granule cache directory. Overrides CACHE_DIR."`
	Indent        bool     `help:"Pretty-print the JSON response."`
}

func (c *cli) request() domain.AnalysisRequest {
	req := domain.AnalysisRequest{
		TargetDate:    c.Date,
		Lat:           &c.Lat,
		Lon:           &c.Lon,
		TargetHour:    c.Hour,
		YearsBack:     c.YearsBack,
		WindowHours:   c.WindowHours,
		PressureHPa:   c.PressureHPa,
		RainThreshold: c.RainThreshold,
	}
	if c.Local {
		req.HourReference = domain.HourReferenceLocal
	}
	return req
}

func main() {
	var args cli
	kctx := kong.Parse(&args,
		kong.Name("analyze"),
		kong.Description("Estimate typical weather and comfort for a date and place from past MERRA-2 years."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)
	if args.CacheDir != "" {
		cfg.CacheDir = args.CacheDir
	}
	if args.Local {
		cfg.TimezoneLookupEnabled = true
	}

	logger := observability.NewLoggerTo(os.Stderr, cfg)
	stack, err := app.NewStack(cfg, logger, observability.NewMetrics())
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := stack.Analyzer.Analyze(ctx, args.request())
	resp := analysis.Respond(result, err)

	enc := json.NewEncoder(os.Stdout)
	if args.Indent {
		enc.SetIndent("", "  ")
	}
	if encErr := enc.Encode(resp); encErr != nil {
		fmt.Fprintln(os.Stderr, "encode response:", encErr)
		os.Exit(1)
	}
	if resp.Error != "" {
		os.Exit(1)
	}
}
