package opendap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

// Fetcher retrieves one variable subset of a granule.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string, variables []string) (io.ReadCloser, error)
}

// Options controls download concurrency and retries.
type Options struct {
	Workers       int
	Attempts      int
	Timeout       time.Duration // per attempt
	RetryInterval time.Duration
}

// DefaultOptions returns five workers, three attempts and a 30s attempt timeout.
func DefaultOptions() Options {
	return Options{
		Workers:       5,
		Attempts:      3,
		Timeout:       30 * time.Second,
		RetryInterval: 500 * time.Millisecond,
	}
}

// Downloader fetches granule subsets into a LocalFileCache using a fixed
// pool of workers.
type Downloader struct {
	fetcher Fetcher
	cache   *LocalFileCache
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDownloader creates a Downloader. Zero option fields take the defaults.
func NewDownloader(fetcher Fetcher, cache *LocalFileCache, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Downloader {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryInterval < 0 {
		opts.RetryInterval = 0
	}
	return &Downloader{
		fetcher: fetcher,
		cache:   cache,
		opts:    opts,
		logger:  logger.With("component", "downloader"),
		metrics: metrics,
	}
}

// Tasks builds one download task per URL with its cache destination.
func (d *Downloader) Tasks(urls []string) []domain.DownloadTask {
	tasks := make([]domain.DownloadTask, len(urls))
	for i, u := range urls {
		tasks[i] = domain.DownloadTask{
			SourceURL:       u,
			DestinationPath: d.cache.Path(u),
			Variables:       domain.Variables,
		}
	}
	return tasks
}

// Download runs every task through the worker pool and returns the local
// paths of the tasks that succeeded, in task order. Failed tasks are logged
// and omitted. Cancelling ctx stops queueing new tasks.
func (d *Downloader) Download(ctx context.Context, tasks []domain.DownloadTask) []string {
	results := make([]string, len(tasks))
	queue := make(chan int)

	var g errgroup.Group
	for w := 0; w < min(d.opts.Workers, max(len(tasks), 1)); w++ {
		g.Go(func() error {
			for i := range queue {
				if p, ok := d.downloadOne(ctx, tasks[i]); ok {
					results[i] = p
				}
			}
			return nil
		})
	}

feed:
	for i := range tasks {
		select {
		case queue <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	_ = g.Wait()

	paths := make([]string, 0, len(results))
	for _, p := range results {
		if p != "" {
			paths = append(paths, p)
		}
	}
	d.logger.Info("downloads complete", "requested", len(tasks), "available", len(paths))
	return paths
}

// downloadOne resolves a single task from the cache or the network.
func (d *Downloader) downloadOne(ctx context.Context, task domain.DownloadTask) (string, bool) {
	name := filepath.Base(task.DestinationPath)
	if p, ok := d.cache.Lookup(task.SourceURL); ok {
		d.metrics.Downloads.WithLabelValues("cache_hit").Inc()
		d.logger.Debug("cache hit", "file", name)
		return p, true
	}

	start := time.Now()
	attempt := 0
	var path string
	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()

		body, err := d.fetcher.Fetch(attemptCtx, task.SourceURL, task.Variables)
		if err != nil {
			d.metrics.DownloadAttempts.WithLabelValues("error").Inc()
			return err
		}
		defer body.Close()

		p, err := d.cache.Store(task.SourceURL, body)
		if err != nil {
			d.metrics.DownloadAttempts.WithLabelValues("error").Inc()
			return err
		}
		d.metrics.DownloadAttempts.WithLabelValues("success").Inc()
		path = p
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.opts.RetryInterval), uint64(d.opts.Attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("download attempt failed", "file", name, "attempt", attempt, "error", err, "retry_in", wait)
	}
	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		d.metrics.Downloads.WithLabelValues("failed").Inc()
		d.logger.Warn("download failed", "file", name, "attempts", attempt, "error", err)
		return "", false
	}

	d.metrics.Downloads.WithLabelValues("downloaded").Inc()
	d.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	return path, true
}
