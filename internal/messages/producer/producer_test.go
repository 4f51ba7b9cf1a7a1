package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"message-bridge/internal/config"
	"message-bridge/internal/messages"
	"message-bridge/internal/metrics"
	"message-bridge/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWriter records written messages and returns the result of onWrite.
type mockWriter struct {
	mu       sync.Mutex
	written  []kafkago.Message
	onWrite  func(ctx context.Context) error
	closed   bool
	attempts int
}

func (w *mockWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	w.attempts++
	w.mu.Unlock()

	if w.onWrite != nil {
		if err := w.onWrite(ctx); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer(w MessageWriter, cfg Config) (*Producer, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	p := New(w, cfg, observability.NewLogger(), m)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p, m
}

func headerMap(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

var createEnvelope = messages.Envelope{
	Action:    messages.ActionCreate,
	MessageID: 42,
	Data:      &messages.Payload{Name: "a", Message: "hi"},
}

func TestSend_PublishesEncodedEnvelope(t *testing.T) {
	w := &mockWriter{}
	p, m := newTestProducer(w, Config{})

	ctx := observability.WithRequestID(context.Background(), "req-1")
	ack, err := p.Send(ctx, createEnvelope)
	require.NoError(t, err)

	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, "messages", msg.Topic)
	assert.Equal(t, "1", string(msg.Key))

	decoded, err := messages.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, createEnvelope, decoded)

	headers := headerMap(msg)
	assert.Equal(t, "message-bridge", headers[HeaderProducer])
	assert.Equal(t, "2024-05-01T12:00:00Z", headers[HeaderProducedAt])
	assert.Equal(t, "Create", headers[HeaderAction])
	assert.Equal(t, "req-1", headers[HeaderRequestID])
	assert.Equal(t, ack.RecordID, headers[HeaderRecordID])

	assert.Equal(t, "messages", ack.Topic)
	assert.Equal(t, "1", ack.Key)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishedMessages.WithLabelValues(metrics.ResultOK)))
}

func TestSend_WithoutRequestIDOmitsHeader(t *testing.T) {
	w := &mockWriter{}
	p, _ := newTestProducer(w, Config{})

	_, err := p.Send(context.Background(), messages.Envelope{Action: messages.ActionDelete, MessageID: 1})
	require.NoError(t, err)

	_, ok := headerMap(w.written[0])[HeaderRequestID]
	assert.False(t, ok)
}

func TestSend_PartitionKeyStrategy(t *testing.T) {
	tests := []struct {
		strategy string
		want     string
	}{
		{strategy: config.PartitionKeyConstant, want: "1"},
		{strategy: "", want: "1"},
		{strategy: config.PartitionKeyMessageID, want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			w := &mockWriter{}
			p, _ := newTestProducer(w, Config{Topic: "custom", PartitionKey: tt.strategy})

			ack, err := p.Send(context.Background(), createEnvelope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ack.Key)
			assert.Equal(t, tt.want, string(w.written[0].Key))
			assert.Equal(t, "custom", w.written[0].Topic)
		})
	}
}

func TestSend_InvalidEnvelopeIsNotWritten(t *testing.T) {
	w := &mockWriter{}
	p, m := newTestProducer(w, Config{})

	_, err := p.Send(context.Background(), messages.Envelope{Action: messages.ActionUpdate, MessageID: 1})

	assert.ErrorIs(t, err, messages.ErrMalformedEnvelope)
	assert.Zero(t, w.attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishedMessages.WithLabelValues(metrics.ResultMalformed)))
}

func TestSend_BrokerFailure(t *testing.T) {
	brokerErr := errors.New("leader not available")
	w := &mockWriter{onWrite: func(context.Context) error { return brokerErr }}
	p, m := newTestProducer(w, Config{})

	_, err := p.Send(context.Background(), createEnvelope)

	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorIs(t, err, brokerErr)
	assert.Equal(t, 1, w.attempts, "exactly one write attempt")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishedMessages.WithLabelValues(metrics.ResultError)))
}

func TestSend_Timeout(t *testing.T) {
	w := &mockWriter{onWrite: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	p, m := newTestProducer(w, Config{PublishTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := p.Send(context.Background(), createEnvelope)

	assert.ErrorIs(t, err, ErrPublishTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishedMessages.WithLabelValues(metrics.ResultTimeout)))
}

func TestSend_CallerCancelled(t *testing.T) {
	w := &mockWriter{onWrite: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	p, _ := newTestProducer(w, Config{PublishTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Send(ctx, createEnvelope)

	assert.ErrorIs(t, err, ErrPublishCancelled)
	assert.NotErrorIs(t, err, ErrPublishTimeout)
}

func TestSend_Concurrent(t *testing.T) {
	w := &mockWriter{}
	p, _ := newTestProducer(w, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			_, err := p.Send(context.Background(), messages.Envelope{Action: messages.ActionDelete, MessageID: id})
			assert.NoError(t, err)
		}(int32(i))
	}
	wg.Wait()

	assert.Len(t, w.written, 20)
}

func TestConfigFromKafka(t *testing.T) {
	cfg := ConfigFromKafka(config.KafkaConfig{
		Topic:          "messages",
		PartitionKey:   config.PartitionKeyMessageID,
		PublishTimeout: 3 * time.Second,
	})

	assert.Equal(t, Config{Topic: "messages", PartitionKey: "message_id", PublishTimeout: 3 * time.Second}, cfg)
}

func TestClose(t *testing.T) {
	w := &mockWriter{}
	p, _ := newTestProducer(w, Config{})

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
