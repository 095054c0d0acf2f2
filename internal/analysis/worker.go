package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

// ErrWorkerStopped is returned by Submit once the worker has shut down.
var ErrWorkerStopped = errors.New("analysis worker stopped")

// Runner executes one analysis.
type Runner interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)
}

type job struct {
	ctx   context.Context
	req   domain.AnalysisRequest
	reply chan<- jobResult
}

type jobResult struct {
	result domain.AnalysisResult
	err    error
}

// Worker runs analyses one at a time on a single goroutine. HTTP handlers
// and the request pipeline submit to it and wait for the result.
type Worker struct {
	runner  Runner
	jobs    chan job
	done    chan struct{}
	running atomic.Bool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWorker creates a Worker. Call Run to start it.
func NewWorker(runner Runner, logger *slog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		runner:  runner,
		jobs:    make(chan job),
		done:    make(chan struct{}),
		logger:  logger.With("component", "worker"),
		metrics: metrics,
	}
}

// Run processes submitted jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		close(w.done)
	}()
	w.logger.Info("analysis worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("analysis worker stopping", "reason", ctx.Err())
			return nil
		case j := <-w.jobs:
			if err := j.ctx.Err(); err != nil {
				j.reply <- jobResult{err: err}
				continue
			}
			w.metrics.WorkerBusy.Set(1)
			result, err := w.runner.Analyze(j.ctx, j.req)
			w.metrics.WorkerBusy.Set(0)
			j.reply <- jobResult{result: result, err: err}
		}
	}
}

// Submit queues req and blocks until it has been analyzed, ctx is done, or
// the worker stops.
func (w *Worker) Submit(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	reply := make(chan jobResult, 1)
	select {
	case w.jobs <- job{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		return domain.AnalysisResult{}, ctx.Err()
	case <-w.done:
		return domain.AnalysisResult{}, ErrWorkerStopped
	}

	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return domain.AnalysisResult{}, ctx.Err()
	}
}

// CheckReadiness reports whether the worker loop is running.
func (w *Worker) CheckReadiness(_ context.Context) error {
	if !w.running.Load() {
		return errors.New("analysis worker is not running")
	}
	return nil
}
