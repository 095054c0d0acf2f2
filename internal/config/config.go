package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Granule cache and download settings.
	CacheDir              string
	DownloadWorkers       int
	DownloadAttempts      int
	DownloadTimeout       time.Duration
	DownloadRetryInterval time.Duration

	// NASA CMR catalog settings.
	CMRURL              string
	CMRTimeout          time.Duration
	CollectionShortName string
	CollectionVersion   string
	EarthdataToken      string
	CatalogCacheSize    int

	// Analysis defaults applied when a request leaves a field unset.
	DefaultTargetHour int
	DefaultYearsBack  int
	WindowHours       int
	PressureHPa       float64
	RainThreshold     float64

	TimezoneLookupEnabled bool

	// Kafka request pipeline configuration.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	downloadTimeout, err := parseDuration("DOWNLOAD_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	retryInterval, err := parseDuration("DOWNLOAD_RETRY_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}
	cmrTimeout, err := parseDuration("CMR_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	flushInterval, err := parseDuration("BATCH_FLUSH_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("DOWNLOAD_WORKERS", 5, 1, 64)
	if err != nil {
		return nil, err
	}
	attempts, err := parseInt("DOWNLOAD_ATTEMPTS", 3, 1, 10)
	if err != nil {
		return nil, err
	}
	catalogCacheSize, err := parseInt("CATALOG_CACHE_SIZE", 256, 1, 100000)
	if err != nil {
		return nil, err
	}
	targetHour, err := parseInt("DEFAULT_TARGET_HOUR", 12, 0, 23)
	if err != nil {
		return nil, err
	}
	yearsBack, err := parseInt("DEFAULT_YEARS_BACK", 5, 1, 45)
	if err != nil {
		return nil, err
	}
	windowHours, err := parseInt("WINDOW_HOURS", 2, 0, 12)
	if err != nil {
		return nil, err
	}
	batchSize, err := parseInt("BATCH_SIZE", 10, 1, 1000)
	if err != nil {
		return nil, err
	}

	pressure, err := parseFloat("PRESSURE_HPA", 1000, func(f float64) bool { return f > 0 && !math.IsInf(f, 0) })
	if err != nil {
		return nil, err
	}
	rainThreshold, err := parseFloat("RAIN_THRESHOLD", 0.3, func(f float64) bool { return f >= 0 && f <= 100 })
	if err != nil {
		return nil, err
	}

	tzEnabled, err := parseBool("TIMEZONE_LOOKUP_ENABLED", false)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CacheDir:              EnvOrDefault("CACHE_DIR", "Data"),
		DownloadWorkers:       workers,
		DownloadAttempts:      attempts,
		DownloadTimeout:       downloadTimeout,
		DownloadRetryInterval: retryInterval,

		CMRURL:              EnvOrDefault("CMR_URL", "https://cmr.earthdata.nasa.gov"),
		CMRTimeout:          cmrTimeout,
		CollectionShortName: EnvOrDefault("COLLECTION_SHORT_NAME", "M2T1NXSLV"),
		CollectionVersion:   EnvOrDefault("COLLECTION_VERSION", "5.12.4"),
		EarthdataToken:      os.Getenv("EARTHDATA_TOKEN"),
		CatalogCacheSize:    catalogCacheSize,

		DefaultTargetHour: targetHour,
		DefaultYearsBack:  yearsBack,
		WindowHours:       windowHours,
		PressureHPa:       pressure,
		RainThreshold:     rainThreshold,

		TimezoneLookupEnabled: tzEnabled,

		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       ParseBrokers(EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   EnvOrDefault("KAFKA_SOURCE_TOPIC", "weather-analysis-requests"),
		KafkaSinkTopic:     EnvOrDefault("KAFKA_SINK_TOPIC", "weather-analysis-results"),
		KafkaGroupID:       EnvOrDefault("KAFKA_GROUP_ID", "weather-history-analyzer"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.CacheDir == "" {
		return nil, errors.New("CACHE_DIR is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}
