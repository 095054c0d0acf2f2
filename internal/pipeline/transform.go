package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-history-analyzer/internal/analysis"
	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
)

// Submitter runs one analysis and waits for its outcome.
type Submitter interface {
	Submit(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)
}

// AnalysisTransformer decodes a request message, runs the analysis, and
// wraps the response for publishing. Analysis failures are published as
// {"error": ...} results; only undecodable messages return an error.
type AnalysisTransformer struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewTransformer creates an AnalysisTransformer.
func NewTransformer(submitter Submitter, logger *slog.Logger) *AnalysisTransformer {
	return &AnalysisTransformer{
		submitter: submitter,
		logger:    logger,
	}
}

func (t *AnalysisTransformer) Transform(ctx context.Context, raw domain.RawRequest) (domain.ResultEvent, error) {
	var req domain.AnalysisRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return domain.ResultEvent{}, fmt.Errorf("decode analysis request: %w", err)
	}

	result, err := t.submitter.Submit(ctx, req)
	if err != nil {
		t.logger.Info("analysis returned error", "key", string(raw.Key), "error", err)
	}
	return domain.NewResultEvent(raw.Key, analysis.Respond(result, err)), nil
}
