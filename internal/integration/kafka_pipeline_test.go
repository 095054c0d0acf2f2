//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-history-analyzer/internal/adapter/kafka"
	"github.com/couchcryptid/weather-history-analyzer/internal/analysis"
	"github.com/couchcryptid/weather-history-analyzer/internal/config"
	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
	"github.com/couchcryptid/weather-history-analyzer/internal/pipeline"
)

const (
	testSourceTopic = "test-requests"
	testSinkTopic   = "test-results"
)

// stubRunner answers every request without touching the network. Requests
// for 1999 report missing data.
type stubRunner struct{}

func (stubRunner) Analyze(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	if req.TargetDate == "1999-01-01" {
		return domain.AnalysisResult{}, &domain.NoDataError{Message: domain.NoGranulesMessage}
	}
	temp := *req.Lat / 2
	return domain.AnalysisResult{
		MeanT2M:   domain.Number(temp),
		FilesUsed: 70,
		Comfort:   domain.ScoreComfort(temp, 50),
	}, nil
}

// resultMessage holds a decoded message read from the sink topic.
type resultMessage struct {
	Body    map[string]any
	Key     string
	Headers map[string]string
}

func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body), "unmarshal sink message")
	return resultMessage{Body: body, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// startWorker runs an analysis worker backed by stubRunner.
func startWorker(ctx context.Context, t *testing.T) *analysis.Worker {
	t.Helper()
	w := analysis.NewWorker(stubRunner{}, discardLogger(), observability.NewMetricsForTesting())
	workerCtx, cancel := context.WithCancel(ctx)
	go func() { _ = w.Run(workerCtx) }()
	t.Cleanup(cancel)
	require.Eventually(t, func() bool { return w.CheckReadiness(ctx) == nil }, 5*time.Second, 10*time.Millisecond)
	return w
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (extractor)
// and kafka.Writer (loader) round-trip a request and its result.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := []byte(`{"target_date_str":"2024-07-15","lat":40,"lon":-74}`)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("req-1"), Value: payload}))

	// Retry while the consumer group rebalances.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawRequest
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	transformer := pipeline.NewTransformer(startWorker(ctx, t), discardLogger())
	event, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.ResultEvent{event}))

	rm := readResult(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "req-1", rm.Key)
	assert.Equal(t, "ok", rm.Headers["status"])
	_, err = time.Parse(time.RFC3339, rm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")
	assert.InDelta(t, 20.0, rm.Body["mean_T2M"], 1e-9)
	assert.InDelta(t, 70, rm.Body["files_used"], 1e-9)
}

// TestPipelineEndToEnd wires Reader, Transformer and Writer with real Kafka
// and checks every request gets exactly one keyed result.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := []kafkago.Message{
		{Key: []byte("warm"), Value: []byte(`{"target_date_str":"2024-07-15","lat":44,"lon":10}`)},
		{Key: []byte("cool"), Value: []byte(`{"target_date_str":"2024-07-15","lat":8,"lon":10}`)},
		{Key: []byte("empty"), Value: []byte(`{"target_date_str":"1999-01-01","lat":0,"lon":0}`)},
		{Key: []byte("invalid"), Value: []byte(`{"target_date_str":"2024-07-15","lat":120,"lon":0}`)},
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	transformer := pipeline.NewTransformer(validatingSubmitter{startWorker(ctx, t)}, discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), observability.NewMetricsForTesting(), 10)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := map[string]resultMessage{}
	for len(received) < len(msgs) {
		rm := readResult(ctx, t, consumer)
		received[rm.Key] = rm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, "ok", received["warm"].Headers["status"])
	assert.Equal(t, "Pleasant", received["warm"].Body["comfort"].(map[string]any)["comfort_label"])
	assert.Equal(t, "Cold", received["cool"].Body["comfort"].(map[string]any)["comfort_label"])

	assert.Equal(t, "error", received["empty"].Headers["status"])
	assert.Equal(t, domain.NoGranulesMessage, received["empty"].Body["error"])

	assert.Equal(t, "error", received["invalid"].Headers["status"])
	assert.Contains(t, received["invalid"].Body["error"], "lat must satisfy lte=90")
}

// validatingSubmitter applies request validation before handing off to the
// stub-backed worker, as the real Analyzer does.
type validatingSubmitter struct{ w *analysis.Worker }

func (v validatingSubmitter) Submit(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	if err := analysis.Validate(req); err != nil {
		return domain.AnalysisResult{}, err
	}
	return v.w.Submit(ctx, req)
}

// TestPipelineTransformError verifies that an undecodable message is skipped
// and the pipeline keeps answering valid requests.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: []byte(`{"target_date_str":"2024-07-15","lat":40,"lon":0}`)},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(startWorker(ctx, t), discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 10)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	rm := readResult(ctx, t, consumer)
	assert.Equal(t, "good", rm.Key)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
