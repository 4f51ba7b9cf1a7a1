// Package producer publishes message envelopes to the broker.
package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"message-bridge/internal/config"
	"message-bridge/internal/kafka"
	"message-bridge/internal/messages"
	"message-bridge/internal/metrics"
	"message-bridge/internal/observability"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

var (
	ErrPublish          = errors.New("failed to publish message")
	ErrPublishTimeout   = errors.New("timed out publishing message")
	ErrPublishCancelled = errors.New("publish cancelled")
)

// Header keys attached to every produced record.
const (
	HeaderProducer   = "producer"
	HeaderProducedAt = "produced_at"
	HeaderRequestID  = "request_id"
	HeaderAction     = "action"
	HeaderRecordID   = "record_id"
)

const producerName = "message-bridge"

// MessageWriter is the subset of *kafkago.Writer used to publish.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config holds the routing settings of the gateway.
type Config struct {
	Topic          string
	PartitionKey   string
	PublishTimeout time.Duration
}

// ConfigFromKafka derives the gateway settings from the broker configuration.
func ConfigFromKafka(cfg config.KafkaConfig) Config {
	return Config{
		Topic:          cfg.Topic,
		PartitionKey:   cfg.PartitionKey,
		PublishTimeout: cfg.PublishTimeout,
	}
}

// Ack describes a record the broker accepted.
type Ack struct {
	Topic      string
	Key        string
	RecordID   string
	ProducedAt time.Time
}

// Producer publishes envelopes with one synchronous write per call. It is safe for
// concurrent use when the writer is.
type Producer struct {
	writer  MessageWriter
	config  Config
	logger  *observability.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(writer MessageWriter, cfg Config, logger *observability.Logger, m *metrics.Metrics) *Producer {
	if cfg.Topic == "" {
		cfg.Topic = kafka.TopicMessages
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &Producer{
		writer:  writer,
		config:  cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Send encodes the envelope and waits until the broker acknowledges it or the publish
// timeout elapses. There is no retry.
func (p *Producer) Send(ctx context.Context, envelope messages.Envelope) (Ack, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "action", Value: string(envelope.Action)},
		observability.Field{Key: "message_id", Value: envelope.MessageID},
	)

	value, err := messages.Encode(envelope)
	if err != nil {
		p.metrics.PublishedMessages.WithLabelValues(metrics.ResultMalformed).Inc()
		p.logger.Error(ctx, "failed to encode envelope", err)
		return Ack{}, err
	}

	ack := Ack{
		Topic:      p.config.Topic,
		Key:        p.keyFor(envelope),
		RecordID:   uuid.New().String(),
		ProducedAt: p.now().UTC(),
	}

	headers := []kafkago.Header{
		{Key: HeaderProducer, Value: []byte(producerName)},
		{Key: HeaderProducedAt, Value: []byte(ack.ProducedAt.Format(time.RFC3339Nano))},
		{Key: HeaderAction, Value: []byte(envelope.Action)},
		{Key: HeaderRecordID, Value: []byte(ack.RecordID)},
	}
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		headers = append(headers, kafkago.Header{Key: HeaderRequestID, Value: []byte(requestID)})
	}

	msg := kafkago.Message{
		Topic:   ack.Topic,
		Key:     []byte(ack.Key),
		Value:   value,
		Headers: headers,
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(sendCtx, msg); err != nil {
		err = p.classify(ctx, sendCtx, err)
		p.logger.Error(ctx, "failed to write message to kafka", err)
		return Ack{}, err
	}

	p.metrics.PublishedMessages.WithLabelValues(metrics.ResultOK).Inc()
	p.logger.Info(ctx, fmt.Sprintf("sent message %s to topic %s", envelope, ack.Topic))
	return ack, nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) keyFor(envelope messages.Envelope) string {
	if p.config.PartitionKey == config.PartitionKeyMessageID {
		return envelope.Key()
	}
	return kafka.DefaultPartitionKey
}

// classify maps a write error onto the gateway's error kinds. The caller's context is
// checked first so a cancelled request is not reported as a timeout.
func (p *Producer) classify(ctx, sendCtx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		p.metrics.PublishedMessages.WithLabelValues(metrics.ResultCancelled).Inc()
		return fmt.Errorf("%w: %w", ErrPublishCancelled, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(sendCtx.Err(), context.DeadlineExceeded):
		p.metrics.PublishedMessages.WithLabelValues(metrics.ResultTimeout).Inc()
		return fmt.Errorf("%w after %s: %w", ErrPublishTimeout, p.config.PublishTimeout, err)
	default:
		p.metrics.PublishedMessages.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
}
