package domain

import (
	"context"
	"time"
)

// RawRequest is an unprocessed analysis request read from the source topic.
type RawRequest struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ResultEvent is an analysis response destined for the sink topic.
type ResultEvent struct {
	Key         []byte
	Response    Response
	Status      string // "ok" or "error"
	ProcessedAt time.Time
}

// NewResultEvent wraps a response for publishing, stamped with the package clock.
func NewResultEvent(key []byte, resp Response) ResultEvent {
	status := "ok"
	if resp.Error != "" {
		status = "error"
	}
	return ResultEvent{
		Key:         key,
		Response:    resp,
		Status:      status,
		ProcessedAt: Now(),
	}
}
