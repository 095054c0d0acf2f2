package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

// BatchExtractor reads up to batchSize analysis requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRequest, error)
}

// Transformer answers one raw request. An error means the request could not
// be decoded and no result is published for it.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawRequest) (domain.ResultEvent, error)
}

// BatchLoader publishes multiple results to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.ResultEvent) error
}

// Pipeline consumes analysis requests, runs them, and publishes the results.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline loop has started.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("request pipeline is not running")
	}
	return nil
}

// Run answers request batches until the context is cancelled. Offsets are
// committed only after a request's result is published, so a failed publish
// leaves the batch to be redelivered.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("request pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	p.ready.Store(true)
	defer func() {
		p.ready.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	retry := newRetryDelay()
	for ctx.Err() == nil {
		if !p.serveBatch(ctx, retry) {
			break
		}
	}
	p.logger.Info("request pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// serveBatch reads one batch of requests, answers it, and publishes the
// results. Returns false once the pipeline should stop.
func (p *Pipeline) serveBatch(ctx context.Context, retry *backoff.ExponentialBackOff) bool {
	start := time.Now()

	requests, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("read request batch failed", "error", err)
		return waitRetry(ctx, retry)
	}
	if len(requests) == 0 {
		return ctx.Err() == nil
	}
	retry.Reset()

	p.metrics.MessagesConsumed.Add(float64(len(requests)))
	p.metrics.BatchSize.Observe(float64(len(requests)))

	answered, ok := p.answer(ctx, requests)
	if !ok {
		return false
	}
	if len(answered.results) == 0 {
		return true
	}
	if !p.publish(ctx, answered, retry) {
		return ctx.Err() == nil
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

// answeredBatch pairs each published result with the request it answers.
type answeredBatch struct {
	results  []domain.ResultEvent
	requests []domain.RawRequest
}

// answer runs every request in the batch. Requests that cannot be decoded
// are committed and dropped. Returns false if the context ended mid-batch.
func (p *Pipeline) answer(ctx context.Context, requests []domain.RawRequest) (answeredBatch, bool) {
	batch := answeredBatch{
		results:  make([]domain.ResultEvent, 0, len(requests)),
		requests: make([]domain.RawRequest, 0, len(requests)),
	}
	for _, req := range requests {
		result, err := p.transformer.Transform(ctx, req)
		if ctx.Err() != nil {
			return answeredBatch{}, false
		}
		if err != nil {
			p.logger.Warn("undecodable request dropped", append(requestAttrs(req), "error", err)...)
			p.metrics.TransformErrors.Inc()
			p.commit(ctx, req)
			continue
		}
		batch.results = append(batch.results, result)
		batch.requests = append(batch.requests, req)
	}
	return batch, true
}

// publish sends the results and commits the requests behind them. On a
// publish failure nothing is committed and the retry delay is waited out.
func (p *Pipeline) publish(ctx context.Context, batch answeredBatch, retry *backoff.ExponentialBackOff) bool {
	if err := p.loader.LoadBatch(ctx, batch.results); err != nil {
		p.logger.Error("publish results failed", "error", err, "results", len(batch.results))
		waitRetry(ctx, retry)
		return false
	}
	p.metrics.MessagesProduced.Add(float64(len(batch.results)))
	for _, req := range batch.requests {
		p.commit(ctx, req)
	}
	return true
}

// commit acknowledges a request on the source topic when it carries a commit hook.
func (p *Pipeline) commit(ctx context.Context, req domain.RawRequest) {
	if req.Commit == nil {
		return
	}
	if err := req.Commit(ctx); err != nil {
		p.logger.Warn("commit request offset failed", append(requestAttrs(req), "error", err)...)
	}
}

func requestAttrs(req domain.RawRequest) []any {
	return []any{
		"request_key", string(req.Key),
		"topic", req.Topic,
		"partition", req.Partition,
		"offset", req.Offset,
	}
}

// newRetryDelay doubles from 200ms up to 5s and never gives up.
func newRetryDelay() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// waitRetry sleeps for the next retry delay. Returns false if the context
// ends first.
func waitRetry(ctx context.Context, retry *backoff.ExponentialBackOff) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(retry.NextBackOff())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
